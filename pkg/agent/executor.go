package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/councilkit/council/pkg/llm"
	"github.com/councilkit/council/pkg/models"
	"github.com/councilkit/council/pkg/pacer"
)

// Retry policy per candidate: one retry on transient failures, backing off
// 250ms → 1s before advancing to the next candidate.
const (
	retryInitialInterval = 250 * time.Millisecond
	retryMaxInterval     = time.Second
	maxRetriesPerTarget  = 1
)

// Invoker performs one provider call. Satisfied by *llm.Client; tests
// substitute fakes.
type Invoker interface {
	Invoke(ctx context.Context, inv models.ModelInvocation, credential string) (*models.InvocationResult, error)
}

// Request describes one role execution.
type Request struct {
	Role        models.Role
	UserPrompt  string
	Pack        models.ContextPack
	Credentials *models.CredentialMap
	Preferred   models.ProviderID // optional per-role override
	Deadline    time.Time
	Directive   bool // append the quality directive to the system prompt
}

// Executor runs one role once, choosing a provider and model. Selection
// walks an ordered candidate list; transient failures fall through to the
// next candidate, a rejected credential removes its provider from the run.
type Executor struct {
	invoker  Invoker
	registry *llm.Registry
	pacers   *pacer.Set
	prompts  PromptTable

	mu       sync.Mutex
	breakers map[models.ProviderID]*gobreaker.CircuitBreaker
}

// NewExecutor creates an executor. A nil prompt table uses the defaults.
func NewExecutor(invoker Invoker, registry *llm.Registry, pacers *pacer.Set, prompts PromptTable) *Executor {
	if prompts == nil {
		prompts = DefaultPromptTable()
	}
	return &Executor{
		invoker:  invoker,
		registry: registry,
		pacers:   pacers,
		prompts:  prompts,
		breakers: make(map[models.ProviderID]*gobreaker.CircuitBreaker),
	}
}

// Execute runs the role against the first viable candidate provider. Stage
// events are emitted to the scheduler's internal channel throughout. The
// returned result is never nil.
func (e *Executor) Execute(ctx context.Context, req Request, emit StageEmitter) (*models.InvocationResult, error) {
	emit(StageEvent{Role: req.Role, Type: StageStart})

	candidates := e.candidates(req)
	if len(candidates) == 0 {
		return e.fail(req, emit, models.ErrKindNoProvider,
			fmt.Errorf("no provider with credentials for role %s", req.Role))
	}

	ctx, cancel := context.WithDeadline(ctx, req.Deadline)
	defer cancel()

	var lastErr error
	for _, provider := range candidates {
		result, err := e.tryProvider(ctx, req, provider)
		if err == nil {
			emit(StageEvent{Role: req.Role, Type: StageDelta, Delta: result.Content})
			emit(StageEvent{Role: req.Role, Type: StageEnd, Result: result})
			return result, nil
		}
		lastErr = err

		switch models.KindOf(err) {
		case models.ErrKindUnauthorized:
			// A rejected credential is dead for the whole run.
			req.Credentials.Drop(provider)
			slog.Warn("Provider rejected credential, dropping from run",
				"role", req.Role, "provider", provider)
		case models.ErrKindCancelled:
			return e.fail(req, emit, models.ErrKindCancelled, err)
		case models.ErrKindTimeout:
			if ctx.Err() != nil {
				return e.fail(req, emit, models.ErrKindTimeout, err)
			}
		default:
			slog.Debug("Provider candidate failed, trying next",
				"role", req.Role, "provider", provider, "error", err)
		}
	}

	if models.KindOf(lastErr) == models.ErrKindTimeout {
		return e.fail(req, emit, models.ErrKindTimeout, lastErr)
	}
	return e.fail(req, emit, models.ErrKindNoProvider,
		fmt.Errorf("all candidates exhausted for role %s: %w", req.Role, lastErr))
}

// candidates builds the ordered provider list: explicit preference, the
// role's canonical provider, then the fixed priority order. Providers
// without credentials are skipped; duplicates collapse to first position.
func (e *Executor) candidates(req Request) []models.ProviderID {
	ordered := make([]models.ProviderID, 0, len(models.ProviderPriority)+2)
	seen := make(map[models.ProviderID]bool)
	add := func(id models.ProviderID) {
		if id == "" || seen[id] || !req.Credentials.Has(id) {
			return
		}
		if _, ok := e.registry.Get(id); !ok {
			return
		}
		seen[id] = true
		ordered = append(ordered, id)
	}
	add(req.Preferred)
	add(req.Role.CanonicalProvider())
	for _, id := range models.ProviderPriority {
		add(id)
	}
	return ordered
}

// tryProvider performs up to two paced attempts against one provider.
func (e *Executor) tryProvider(ctx context.Context, req Request, provider models.ProviderID) (*models.InvocationResult, error) {
	adapter, ok := e.registry.Get(provider)
	if !ok {
		return nil, models.NewKindError(models.ErrKindNoProvider,
			fmt.Errorf("no adapter for %q", provider))
	}
	defaults := adapter.Defaults()
	inv := models.ModelInvocation{
		Role:                req.Role,
		Provider:            provider,
		Model:               defaults.DefaultModel,
		SystemPrompt:        e.prompts.BuildSystemPrompt(req.Role, req.Pack, req.Directive),
		UserPrompt:          req.UserPrompt,
		MaxCompletionTokens: defaults.MaxCompletionTokens,
		Deadline:            req.Deadline,
	}

	breaker := e.breaker(provider)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	bo.MaxInterval = retryMaxInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxRetriesPerTarget), ctx)

	var result *models.InvocationResult
	err := backoff.Retry(func() error {
		lease, err := e.pacers.For(provider).Acquire(ctx)
		if err != nil {
			return backoff.Permanent(models.NewKindError(pacerKind(ctx), err))
		}
		defer lease()

		out, err := breaker.Execute(func() (any, error) {
			return e.invoker.Invoke(ctx, inv, req.Credentials.Get(provider))
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(models.NewKindError(models.ErrKindUnavailable, err))
			}
			if models.KindOf(err).Transient() {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		result = out.(*models.InvocationResult)
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// breaker returns the shared circuit breaker for a provider, creating it
// on first use. Three consecutive failures open the circuit for 30s.
func (e *Executor) breaker(provider models.ProviderID) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[provider]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    string(provider),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	e.breakers[provider] = cb
	return cb
}

func (e *Executor) fail(req Request, emit StageEmitter, kind models.ErrorKind, err error) (*models.InvocationResult, error) {
	result := &models.InvocationResult{
		Status:    models.InvocationFailed,
		ErrorKind: kind,
	}
	emit(StageEvent{Role: req.Role, Type: StageEnd, Result: result, Err: err})
	if models.KindOf(err) == kind {
		return result, err
	}
	return result, models.NewKindError(kind, err)
}

// pacerKind classifies a pacer acquisition failure.
func pacerKind(ctx context.Context) models.ErrorKind {
	if errors.Is(ctx.Err(), context.Canceled) {
		return models.ErrKindCancelled
	}
	return models.ErrKindTimeout
}
