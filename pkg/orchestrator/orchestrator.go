// Package orchestrator is the facade wiring classifier, context pack,
// scheduler, validator and sessions into single run and session APIs.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/councilkit/council/pkg/agent"
	"github.com/councilkit/council/pkg/classifier"
	"github.com/councilkit/council/pkg/contextpack"
	"github.com/councilkit/council/pkg/events"
	"github.com/councilkit/council/pkg/llm"
	"github.com/councilkit/council/pkg/masking"
	"github.com/councilkit/council/pkg/models"
	"github.com/councilkit/council/pkg/pacer"
	"github.com/councilkit/council/pkg/scheduler"
	"github.com/councilkit/council/pkg/session"
	"github.com/councilkit/council/pkg/validator"
)

// DefaultOverallTimeout bounds a whole run unless overridden per run.
const DefaultOverallTimeout = 180 * time.Second

// DefaultMaxConcurrentRuns caps simultaneous runs per process.
const DefaultMaxConcurrentRuns = 16

// Options configures an Orchestrator. Zero values fall back to defaults.
type Options struct {
	Registry *llm.Registry
	Invoker  agent.Invoker
	Pacers   *pacer.Set
	Prompts  agent.PromptTable
	Assist   classifier.AssistFunc
	Store    session.Store
	Masker   *masking.Service

	TokenBudget       int
	OverallTimeout    time.Duration
	MaxConcurrentRuns int64
}

// Orchestrator is the engine's entry point. One instance serves all runs.
type Orchestrator struct {
	classifier *classifier.Classifier
	packs      *contextpack.Builder
	scheduler  *scheduler.Scheduler
	validator  *validator.Validator
	sessions   *session.Manager
	masker     *masking.Service

	runSem         *semaphore.Weighted
	overallTimeout time.Duration
}

// New wires an orchestrator from options.
func New(opts Options) *Orchestrator {
	if opts.Registry == nil {
		opts.Registry = llm.NewRegistry()
	}
	if opts.Invoker == nil {
		opts.Invoker = llm.NewClient(opts.Registry, nil)
	}
	if opts.Pacers == nil {
		opts.Pacers = pacer.NewSet(nil)
	}
	if opts.Masker == nil {
		opts.Masker = masking.NewService(nil)
	}
	if opts.OverallTimeout <= 0 {
		opts.OverallTimeout = DefaultOverallTimeout
	}
	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = DefaultMaxConcurrentRuns
	}

	estimator := contextpack.DefaultEstimator()
	executor := agent.NewExecutor(opts.Invoker, opts.Registry, opts.Pacers, opts.Prompts)

	return &Orchestrator{
		classifier:     classifier.New(estimator, opts.Assist),
		packs:          contextpack.NewBuilder(estimator, opts.TokenBudget),
		scheduler:      scheduler.New(executor, opts.Registry),
		validator:      validator.New(),
		sessions:       session.NewManager(opts.Store),
		masker:         opts.Masker,
		runSem:         semaphore.NewWeighted(opts.MaxConcurrentRuns),
		overallTimeout: opts.OverallTimeout,
	}
}

// Sessions exposes the session manager for sweepers and transports.
func (o *Orchestrator) Sessions() *session.Manager { return o.sessions }

// Run executes one council run synchronously, emitting events throughout.
// It always returns a RunResult, and always wipes the input credentials
// before returning.
func (o *Orchestrator) Run(ctx context.Context, input models.RunInput, emit events.Emitter) models.RunResult {
	start := time.Now()
	if emit == nil {
		emit = events.EmitFunc(nil)
	}

	defer func() {
		for _, provider := range input.Credentials.Providers() {
			o.masker.ForgetLiteral(input.Credentials.Get(provider))
		}
		input.Credentials.Wipe()
	}()
	for _, provider := range input.Credentials.Providers() {
		o.masker.RegisterLiteral(input.Credentials.Get(provider))
	}

	if input.Query == "" {
		return o.fail(emit, start, models.RunError, models.ErrKindInternal,
			errors.New("empty query"))
	}
	if input.Credentials.Len() == 0 {
		return o.fail(emit, start, models.RunError, models.ErrKindNoCredentials,
			errors.New("no provider credentials supplied"))
	}
	if input.OutputMode == "" {
		input.OutputMode = models.OutputDeliverableOnly
	}
	if !input.OutputMode.IsValid() {
		return o.fail(emit, start, models.RunError, models.ErrKindInternal,
			errors.New("unknown output mode "+string(input.OutputMode)))
	}

	if err := o.runSem.Acquire(ctx, 1); err != nil {
		return o.fail(emit, start, runStatusFor(models.KindOf(err)), models.KindOf(err), err)
	}
	defer o.runSem.Release(1)
	activeRuns.Inc()
	defer activeRuns.Dec()

	level := input.ComplexityOverride
	if level < 1 || level > 5 {
		level = o.classifier.Classify(ctx, input.Query).Level
	}
	pack := o.packs.Build(input.Query, input.ContextPackFragments, level)
	if input.OutputMode == models.OutputDeliverableOwnership {
		pack.OutputContract.RequiredHeadings =
			withOwnershipHeading(pack.OutputContract.RequiredHeadings)
	}

	runCtx, cancel := context.WithTimeout(ctx, input.Deadlines.Overall(o.overallTimeout))
	defer cancel()

	var scores *models.QualityScore
	params := scheduler.Params{
		Query:         input.Query,
		Pack:          pack,
		Credentials:   input.Credentials,
		Preferred:     input.PreferredProviders,
		OutputMode:    input.OutputMode,
		Directive:     input.QualityDirectiveEnabled(),
		Phase1Timeout: input.Deadlines.Phase1(scheduler.DefaultPhase1Timeout),
		Phase2Timeout: input.Deadlines.Phase2(scheduler.DefaultPhase2Timeout),
		Phase3Timeout: input.Deadlines.Phase3(scheduler.DefaultPhase3Timeout),
		Confidence: func(final string) string {
			if !input.ValidationEnabled() {
				return events.ConfidenceMedium
			}
			s := o.validator.Validate(input.Query, pack, final)
			scores = &s
			return confidenceFor(s.Overall)
		},
	}
	outcome := o.scheduler.Run(runCtx, params, emit)

	result := models.RunResult{
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		ProviderUsed:    outcome.ProviderUsed,
		ComplexityLevel: level,
	}
	if includeTranscript(input.OutputMode) {
		result.PhaseOutputs = outcome.PhaseOutputs
	}

	if outcome.Err != nil {
		kind := models.KindOf(outcome.Err)
		result.Status = runStatusFor(kind)
		result.ErrorKind = kind
		result.Error = o.masker.Mask(outcome.Err.Error())
		// A run-level timeout still surfaces the synthesizer's partial
		// artefact when one exists.
		if kind == models.ErrKindTimeout && outcome.SynthOutput != "" {
			result.Output = outcome.SynthOutput
		}
		emit.Emit(events.Event{
			Type:      events.TypeError,
			ErrorKind: kind,
			Message:   result.Error,
		})
		observeRun(string(result.Status), string(kind), time.Since(start))
		slog.Warn("Council run failed", "error_kind", kind,
			"execution_time_ms", result.ExecutionTimeMS)
		return result
	}

	result.Status = models.RunSuccess
	result.Output = outcome.Final
	result.QualityScores = scores
	if scores != nil {
		result.Confidence = confidenceFor(scores.Overall)
	} else {
		result.Confidence = events.ConfidenceMedium
	}
	observeRun(string(result.Status), "", time.Since(start))
	slog.Info("Council run completed", "complexity", level,
		"execution_time_ms", result.ExecutionTimeMS,
		"gate_passed", scores == nil || scores.GatePassed)
	return result
}

// fail builds an error result and emits the terminal error event.
func (o *Orchestrator) fail(emit events.Emitter, start time.Time, status models.RunStatus, kind models.ErrorKind, err error) models.RunResult {
	message := o.masker.Mask(err.Error())
	emit.Emit(events.Event{Type: events.TypeError, ErrorKind: kind, Message: message})
	observeRun(string(status), string(kind), time.Since(start))
	return models.RunResult{
		Status:          status,
		ErrorKind:       kind,
		Error:           message,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}
}

// StartSession registers a session and launches its run in the background.
// The run's lifetime is detached from the caller's ctx; cancellation goes
// through Cancel.
func (o *Orchestrator) StartSession(ctx context.Context, input models.RunInput) (models.Session, error) {
	sess, err := o.sessions.Create(ctx, input.OrgScope)
	if err != nil {
		return models.Session{}, err
	}

	bus := events.NewBus(events.DefaultBufferSize)
	runCtx, cancel := context.WithCancel(context.Background())
	if err := o.sessions.Start(sess.ID, cancel, bus); err != nil {
		cancel()
		bus.Close()
		return sess, err
	}

	go func() {
		defer bus.Close()
		emit := events.EmitFunc(func(ev events.Event) {
			if ev.Type == events.TypePhaseStart {
				o.sessions.SetPhase(sess.ID, ev.Phase)
			}
			bus.Emit(ev)
		})
		result := o.Run(runCtx, input, emit)
		o.sessions.Complete(sess.ID, result)
		cancel()
	}()

	sess.Status = models.SessionRunning
	return sess, nil
}

// GetSession returns a session snapshot.
func (o *Orchestrator) GetSession(ctx context.Context, id string) (models.Session, error) {
	return o.sessions.Get(ctx, id)
}

// ListSessions returns sessions for an org scope, newest first.
func (o *Orchestrator) ListSessions(ctx context.Context, orgScope string) ([]models.Session, error) {
	return o.sessions.List(ctx, orgScope)
}

// Cancel requests cooperative cancellation of a session's run.
func (o *Orchestrator) Cancel(id string) error {
	return o.sessions.Cancel(id)
}

// Observe attaches the session's single event observer.
func (o *Orchestrator) Observe(id string) (<-chan events.Event, error) {
	return o.sessions.Observe(id)
}

// confidenceFor maps a quality overall score to a confidence level.
func confidenceFor(overall float64) string {
	switch {
	case overall >= 8:
		return events.ConfidenceHigh
	case overall >= 6:
		return events.ConfidenceMedium
	}
	return events.ConfidenceLow
}

// runStatusFor distinguishes cancelled runs from plain errors.
func runStatusFor(kind models.ErrorKind) models.RunStatus {
	if kind == models.ErrKindCancelled {
		return models.RunCancelled
	}
	return models.RunError
}

// includeTranscript reports whether per-role outputs belong in the result.
func includeTranscript(mode models.OutputMode) bool {
	return mode == models.OutputAudit || mode == models.OutputFullTranscript
}

// ownershipHeading is required in the final artefact under
// deliverable-ownership mode.
const ownershipHeading = "Ownership Map"

// withOwnershipHeading adds the ownership heading to the output contract
// unless the caller already named it.
func withOwnershipHeading(headings []string) []string {
	for _, h := range headings {
		if strings.EqualFold(strings.TrimSpace(h), ownershipHeading) {
			return headings
		}
	}
	out := make([]string, 0, len(headings)+1)
	out = append(out, headings...)
	return append(out, ownershipHeading)
}
