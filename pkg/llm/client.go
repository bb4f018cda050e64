package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/councilkit/council/pkg/models"
)

// maxResponseSize caps the response body read to guard against a
// misbehaving backend streaming unbounded output.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Client executes invocations through registered adapters over an injected
// Doer. It owns deadline enforcement and error-kind normalisation; it does
// no retries and no pacing.
type Client struct {
	registry *Registry
	doer     Doer
}

// NewClient creates a client over the given registry and transport. A nil
// doer falls back to a default http.Client; production callers inject their
// own transport.
func NewClient(registry *Registry, doer Doer) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: 180 * time.Second}
	}
	return &Client{registry: registry, doer: doer}
}

// Invoke performs one completion call. The returned result always carries
// accounting fields; on failure its Status is failed and ErrorKind is set,
// and the same kind is returned as a *models.KindError.
func (c *Client) Invoke(ctx context.Context, inv models.ModelInvocation, credential string) (*models.InvocationResult, error) {
	adapter, ok := c.registry.Get(inv.Provider)
	if !ok {
		return failed(inv, models.ErrKindNoProvider),
			models.NewKindError(models.ErrKindNoProvider, fmt.Errorf("no adapter registered for %q", inv.Provider))
	}

	if !inv.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, inv.Deadline)
		defer cancel()
	}

	start := time.Now()
	req, err := adapter.BuildRequest(inv, credential)
	if err != nil {
		return failed(inv, models.ErrKindInternal),
			models.NewKindError(models.ErrKindInternal, fmt.Errorf("build request: %w", err))
	}
	req = req.WithContext(ctx)

	resp, err := c.doer.Do(req)
	if err != nil {
		kind := transportKind(ctx, err)
		return failed(inv, kind), models.NewKindError(kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		kind := transportKind(ctx, err)
		return failed(inv, kind), models.NewKindError(kind, fmt.Errorf("read response: %w", err))
	}

	if kind, ok := statusKind(resp.StatusCode); ok {
		return failed(inv, kind),
			models.NewKindError(kind, fmt.Errorf("%s returned HTTP %d", inv.Provider, resp.StatusCode))
	}

	completion, err := adapter.ParseResponse(body)
	if err != nil {
		return failed(inv, models.ErrKindInvalidResponse),
			models.NewKindError(models.ErrKindInvalidResponse, err)
	}

	model := completion.Model
	if model == "" {
		model = inv.Model
	}
	return &models.InvocationResult{
		Content:      completion.Content,
		ProviderUsed: inv.Provider,
		ModelUsed:    model,
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
		LatencyMS:    time.Since(start).Milliseconds(),
		Status:       models.InvocationOK,
	}, nil
}

// statusKind maps a non-2xx HTTP status to an error kind.
func statusKind(status int) (models.ErrorKind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return models.ErrKindUnauthorized, true
	case status == http.StatusTooManyRequests:
		return models.ErrKindRateLimited, true
	case status >= 500:
		return models.ErrKindUnavailable, true
	default:
		return models.ErrKindInvalidResponse, true
	}
}

// transportKind classifies transport-level failures, distinguishing the
// caller's deadline from network trouble.
func transportKind(ctx context.Context, err error) models.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return models.ErrKindTimeout
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return models.ErrKindCancelled
	default:
		return models.ErrKindUnavailable
	}
}

func failed(inv models.ModelInvocation, kind models.ErrorKind) *models.InvocationResult {
	return &models.InvocationResult{
		ProviderUsed: inv.Provider,
		ModelUsed:    inv.Model,
		Status:       models.InvocationFailed,
		ErrorKind:    kind,
	}
}
