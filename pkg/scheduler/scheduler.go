// Package scheduler drives the three-phase council state machine — parallel
// specialists, synthesis, judgement — and projects its internal stage
// events into the public five-phase stream.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/councilkit/council/pkg/agent"
	"github.com/councilkit/council/pkg/events"
	"github.com/councilkit/council/pkg/llm"
	"github.com/councilkit/council/pkg/models"
)

// Default phase budgets. Overridable per run via RunInput.Deadlines.
const (
	DefaultPhase1Timeout = 60 * time.Second
	DefaultPhase2Timeout = 30 * time.Second
	DefaultPhase3Timeout = 60 * time.Second
)

// RoleExecutor runs one role once. Satisfied by *agent.Executor.
type RoleExecutor interface {
	Execute(ctx context.Context, req agent.Request, emit agent.StageEmitter) (*models.InvocationResult, error)
}

// Params is everything the scheduler needs for one run.
type Params struct {
	Query       string
	Pack        models.ContextPack
	Credentials *models.CredentialMap
	Preferred   map[models.Role]models.ProviderID
	OutputMode  models.OutputMode
	Directive   bool

	Phase1Timeout time.Duration
	Phase2Timeout time.Duration
	Phase3Timeout time.Duration

	// Confidence computes the final_answer_end confidence from the judge's
	// artefact. Called on the success path only; nil means medium.
	Confidence func(final string) string
}

// Outcome is the scheduler's result. Err is nil iff the run produced a
// final artefact; SynthOutput is retained even on later failure so a
// run-level timeout can surface the partial artefact.
type Outcome struct {
	Final        string
	SynthOutput  string
	PhaseOutputs map[models.Role]string
	ProviderUsed map[models.Role]models.ProviderID
	Records      []models.PhaseRecord
	Err          error
}

// Scheduler owns phase ordering, fan-out/fan-in, and cancellation for runs.
type Scheduler struct {
	executor RoleExecutor
	registry *llm.Registry
}

// New creates a scheduler over an executor and the adapter registry (used
// to announce planned models on phase_start).
func New(executor RoleExecutor, registry *llm.Registry) *Scheduler {
	return &Scheduler{executor: executor, registry: registry}
}

// Run executes the full pipeline. The ctx carries the overall run budget
// and the cooperative cancellation signal; cancellation is checked before
// each phase, at fan-in, and inside every pacer acquisition.
func (s *Scheduler) Run(ctx context.Context, params Params, emitter events.Emitter) Outcome {
	if params.Phase1Timeout <= 0 {
		params.Phase1Timeout = DefaultPhase1Timeout
	}
	if params.Phase2Timeout <= 0 {
		params.Phase2Timeout = DefaultPhase2Timeout
	}
	if params.Phase3Timeout <= 0 {
		params.Phase3Timeout = DefaultPhase3Timeout
	}

	proj := newProjector(emitter)
	proj.start(s.plannedModels(params))

	outcome := Outcome{
		PhaseOutputs: make(map[models.Role]string),
		ProviderUsed: make(map[models.Role]models.ProviderID),
	}

	// Phase 1: parallel specialists.
	specialistResults, err := s.runSpecialists(ctx, params, proj)
	if err != nil {
		outcome.Err = err
		outcome.Records = proj.snapshots()
		return outcome
	}
	succeeded := 0
	var missing []models.Role
	for role, result := range specialistResults {
		if result.Status == models.InvocationOK {
			outcome.PhaseOutputs[role] = result.Content
			outcome.ProviderUsed[role] = result.ProviderUsed
			succeeded++
		} else {
			missing = append(missing, role)
		}
	}
	if succeeded == 0 {
		outcome.Err = models.NewKindError(models.ErrKindPhase1Empty,
			errors.New("no specialist produced output"))
		outcome.Records = proj.snapshots()
		return outcome
	}
	if len(missing) > 0 {
		slog.Info("Proceeding with partial council", "missing", missing)
	}

	// Phase 2: synthesis (sequential).
	if err := checkpoint(ctx); err != nil {
		outcome.Err = err
		outcome.Records = proj.snapshots()
		return outcome
	}
	synth, err := s.runSequential(ctx, params, proj, models.RoleSynthesizer,
		synthesisPrompt(params.Query, outcome.PhaseOutputs), missing, params.Phase2Timeout)
	if err != nil {
		outcome.Err = wrapPhaseError(err, models.ErrKindSynthesisFailed)
		outcome.Records = proj.snapshots()
		return outcome
	}
	outcome.SynthOutput = synth.Content
	outcome.PhaseOutputs[models.RoleSynthesizer] = synth.Content
	outcome.ProviderUsed[models.RoleSynthesizer] = synth.ProviderUsed

	// Phase 3: judgement (sequential).
	if err := checkpoint(ctx); err != nil {
		outcome.Err = err
		outcome.Records = proj.snapshots()
		return outcome
	}
	emitter.Emit(events.Event{Type: events.TypeFinalAnswerStart,
		Phase: models.PhaseSynthesize, StepIndex: models.PhaseSynthesize.StepIndex()})

	judgePrompt := judgementPrompt(params.Query, outcome.SynthOutput,
		params.OutputMode, outcome.PhaseOutputs)
	judge, err := s.runSequentialWithDelta(ctx, params, proj, models.RoleJudge,
		judgePrompt, missing, params.Phase3Timeout, emitter)
	if err != nil {
		outcome.Err = wrapPhaseError(err, models.ErrKindJudgementFailed)
		outcome.Records = proj.snapshots()
		return outcome
	}
	outcome.Final = judge.Content
	outcome.PhaseOutputs[models.RoleJudge] = judge.Content
	outcome.ProviderUsed[models.RoleJudge] = judge.ProviderUsed

	confidence := events.ConfidenceMedium
	if params.Confidence != nil {
		confidence = params.Confidence(outcome.Final)
	}
	emitter.Emit(events.Event{Type: events.TypeFinalAnswerEnd, Confidence: confidence,
		Phase: models.PhaseSynthesize, StepIndex: models.PhaseSynthesize.StepIndex()})

	outcome.Records = proj.snapshots()
	return outcome
}

// runSpecialists fans out the five specialist roles under the Phase 1
// budget and collects every result. Executors always deliver a result,
// failed ones included, so fan-in is a plain barrier.
func (s *Scheduler) runSpecialists(ctx context.Context, params Params, proj *projector) (map[models.Role]*models.InvocationResult, error) {
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	phaseCtx, cancel := context.WithTimeout(ctx, params.Phase1Timeout)
	defer cancel()
	deadline := time.Now().Add(params.Phase1Timeout)

	var (
		mu      sync.Mutex
		results = make(map[models.Role]*models.InvocationResult, len(models.SpecialistRoles))
		wg      sync.WaitGroup
	)
	for _, role := range models.SpecialistRoles {
		wg.Add(1)
		go func(role models.Role) {
			defer wg.Done()
			result, err := s.executor.Execute(phaseCtx, agent.Request{
				Role:        role,
				UserPrompt:  params.Query,
				Pack:        params.Pack,
				Credentials: params.Credentials,
				Preferred:   params.Preferred[role],
				Deadline:    deadline,
				Directive:   params.Directive,
			}, proj.handle)
			if err != nil {
				slog.Debug("Specialist failed", "role", role, "kind", models.KindOf(err))
			}
			mu.Lock()
			results[role] = result
			mu.Unlock()
		}(role)
	}
	wg.Wait()

	// A cancelled run must not be mistaken for an empty council.
	if ctx.Err() != nil {
		return nil, checkpoint(ctx)
	}
	return results, nil
}

// runSequential executes one sequential role (synthesizer) under its own
// budget, with missing perspectives surfaced through the context pack.
func (s *Scheduler) runSequential(ctx context.Context, params Params, proj *projector,
	role models.Role, prompt string, missing []models.Role, budget time.Duration) (*models.InvocationResult, error) {

	phaseCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	result, err := s.executor.Execute(phaseCtx, agent.Request{
		Role:        role,
		UserPrompt:  prompt,
		Pack:        packWithMissing(params.Pack, missing),
		Credentials: params.Credentials,
		Preferred:   params.Preferred[role],
		Deadline:    time.Now().Add(budget),
		Directive:   params.Directive,
	}, proj.handle)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// runSequentialWithDelta is runSequential for the judge: its deltas are
// mirrored as final_answer_delta events.
func (s *Scheduler) runSequentialWithDelta(ctx context.Context, params Params, proj *projector,
	role models.Role, prompt string, missing []models.Role, budget time.Duration,
	emitter events.Emitter) (*models.InvocationResult, error) {

	phaseCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	emit := func(ev agent.StageEvent) {
		proj.handle(ev)
		if ev.Type == agent.StageDelta && ev.Delta != "" {
			emitter.Emit(events.Event{Type: events.TypeFinalAnswerDelta, Text: ev.Delta,
				Phase: models.PhaseSynthesize, StepIndex: models.PhaseSynthesize.StepIndex()})
		}
	}
	result, err := s.executor.Execute(phaseCtx, agent.Request{
		Role:        role,
		UserPrompt:  prompt,
		Pack:        packWithMissing(params.Pack, missing),
		Credentials: params.Credentials,
		Preferred:   params.Preferred[role],
		Deadline:    time.Now().Add(budget),
		Directive:   params.Directive,
	}, emit)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// plannedModels resolves the model each role would use with its canonical
// provider, for phase_start announcements.
func (s *Scheduler) plannedModels(params Params) map[models.Role]models.ModelInfo {
	planned := make(map[models.Role]models.ModelInfo)
	for _, roles := range phaseRoles {
		for _, role := range roles {
			provider := params.Preferred[role]
			if provider == "" || !params.Credentials.Has(provider) {
				provider = role.CanonicalProvider()
			}
			adapter, ok := s.registry.Get(provider)
			if !ok {
				continue
			}
			planned[role] = models.ModelInfo{Provider: provider, Model: adapter.Defaults().DefaultModel}
		}
	}
	return planned
}

// checkpoint translates ctx state into the run error taxonomy.
func checkpoint(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return models.NewKindError(models.ErrKindCancelled, models.ErrCancelled)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return models.NewKindError(models.ErrKindTimeout, models.ErrDeadlineExceeded)
	}
	return nil
}

// wrapPhaseError maps a sequential phase failure to its run-level kind,
// preserving cancellation and run-level timeouts.
func wrapPhaseError(err error, phaseKind models.ErrorKind) error {
	switch models.KindOf(err) {
	case models.ErrKindCancelled:
		return err
	case models.ErrKindTimeout:
		return err
	}
	return models.NewKindError(phaseKind, err)
}

// packWithMissing appends an open question naming absent perspectives, so
// synthesis and judgement account for the gap. Content policy only; the
// scheduler itself proceeds on partial success.
func packWithMissing(pack models.ContextPack, missing []models.Role) models.ContextPack {
	if len(missing) == 0 {
		return pack
	}
	names := make([]string, len(missing))
	for i, role := range missing {
		names[i] = string(role)
	}
	pack.OpenQuestions = append(append([]string(nil), pack.OpenQuestions...),
		"Perspectives missing from the council: "+strings.Join(names, ", "))
	return pack
}

// synthesisPrompt concatenates the specialist outputs with role labels.
func synthesisPrompt(query string, outputs map[models.Role]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original query:\n%s\n\nCouncil perspectives:\n", query)
	for _, role := range models.SpecialistRoles {
		content, ok := outputs[role]
		if !ok || content == "" {
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n%s\n", role, content)
	}
	b.WriteString("\nSynthesize these perspectives into a single coherent deliverable.")
	return b.String()
}

// judgementPrompt hands the judge the synthesized artefact, and the raw
// transcripts when the caller asked for a full-transcript run.
func judgementPrompt(query, synthesis string, mode models.OutputMode, outputs map[models.Role]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original query:\n%s\n\nSynthesized deliverable:\n%s\n", query, synthesis)
	if mode == models.OutputFullTranscript {
		b.WriteString("\nRaw specialist transcripts:\n")
		for _, role := range models.SpecialistRoles {
			if content := outputs[role]; content != "" {
				fmt.Fprintf(&b, "\n### %s\n%s\n", role, content)
			}
		}
	}
	b.WriteString("\nReview and produce the final artefact.")
	return b.String()
}
