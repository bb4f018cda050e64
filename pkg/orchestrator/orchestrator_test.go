package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/councilkit/council/pkg/events"
	"github.com/councilkit/council/pkg/models"
	"github.com/councilkit/council/pkg/pacer"
)

const deliverable = `# Plan

## Steps
1. Define the ingestion endpoint contract
2. Add the dedupe key and retention policy

## Ownership
- the ingestion team owns the endpoint
`

// cannedInvoker satisfies agent.Invoker with per-role canned responses, no
// HTTP involved.
type cannedInvoker struct {
	mu      sync.Mutex
	content map[models.Role]string // overrides per role
	block   map[models.Role]bool   // block until ctx is done
	calls   []models.ModelInvocation
}

func newCannedInvoker() *cannedInvoker {
	return &cannedInvoker{
		content: make(map[models.Role]string),
		block:   make(map[models.Role]bool),
	}
}

func (c *cannedInvoker) Invoke(ctx context.Context, inv models.ModelInvocation, _ string) (*models.InvocationResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, inv)
	content, override := c.content[inv.Role]
	blocks := c.block[inv.Role]
	c.mu.Unlock()

	if blocks {
		<-ctx.Done()
		kind := models.ErrKindCancelled
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = models.ErrKindTimeout
		}
		return &models.InvocationResult{Status: models.InvocationFailed, ErrorKind: kind},
			models.NewKindError(kind, ctx.Err())
	}

	if !override {
		content = string(inv.Role) + " perspective"
		if inv.Role == models.RoleJudge || inv.Role == models.RoleSynthesizer {
			content = deliverable
		}
	}
	return &models.InvocationResult{
		Content:      content,
		ProviderUsed: inv.Provider,
		ModelUsed:    inv.Model,
		InputTokens:  10,
		OutputTokens: 50,
		LatencyMS:    5,
		Status:       models.InvocationOK,
	}, nil
}

func (c *cannedInvoker) systemPrompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.calls))
	for _, inv := range c.calls {
		out = append(out, inv.SystemPrompt)
	}
	return out
}

type captureEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureEmitter) Emit(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureEmitter) countByType() map[events.Type]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[events.Type]int)
	for _, ev := range c.events {
		counts[ev.Type]++
	}
	return counts
}

func newTestOrchestrator(invoker *cannedInvoker) *Orchestrator {
	generous := map[models.ProviderID]models.RateLimit{}
	for _, id := range models.ProviderPriority {
		generous[id] = models.RateLimit{RPS: 1000, Burst: 1000, Concurrency: 16}
	}
	return New(Options{Invoker: invoker, Pacers: pacer.NewSet(generous)})
}

func testInput() models.RunInput {
	return models.RunInput{
		Query: "design an idempotent ingestion endpoint",
		Credentials: models.NewCredentialMap(map[string]string{
			"openai": "sk-secret-0123456789", "gemini": "g-secret-0123456789",
			"perplexity": "p-secret-0123456789", "kimi": "k-secret-0123456789",
		}),
	}
}

func TestRunHappyPath(t *testing.T) {
	o := newTestOrchestrator(newCannedInvoker())
	emit := &captureEmitter{}

	result := o.Run(context.Background(), testInput(), emit)

	assert.Equal(t, models.RunSuccess, result.Status)
	assert.Equal(t, deliverable, result.Output)
	assert.Empty(t, result.ErrorKind)
	require.NotNil(t, result.QualityScores)
	assert.True(t, result.QualityScores.GatePassed)
	assert.Equal(t, events.ConfidenceHigh, result.Confidence)
	assert.GreaterOrEqual(t, result.ComplexityLevel, 1)
	assert.Nil(t, result.PhaseOutputs, "deliverable-only hides the transcript")

	counts := emit.countByType()
	assert.Equal(t, 5, counts[events.TypePhaseStart])
	assert.Equal(t, 5, counts[events.TypePhaseEnd])
	assert.Equal(t, 1, counts[events.TypeFinalAnswerStart])
	assert.Equal(t, 1, counts[events.TypeFinalAnswerEnd])
	assert.Zero(t, counts[events.TypeError])
}

func TestRunAuditModeIncludesTranscript(t *testing.T) {
	o := newTestOrchestrator(newCannedInvoker())

	input := testInput()
	input.OutputMode = models.OutputAudit
	result := o.Run(context.Background(), input, nil)

	require.Equal(t, models.RunSuccess, result.Status)
	assert.Len(t, result.PhaseOutputs, 7)
	assert.Contains(t, result.PhaseOutputs[models.RoleArchitect], "architect")
}

func TestRunSingleProviderDegradation(t *testing.T) {
	invoker := newCannedInvoker()
	o := newTestOrchestrator(invoker)

	input := testInput()
	input.Credentials = models.NewCredentialMap(map[string]string{"openai": "sk-only-0123456789"})
	result := o.Run(context.Background(), input, nil)

	require.Equal(t, models.RunSuccess, result.Status)
	for role, provider := range result.ProviderUsed {
		assert.Equal(t, models.ProviderOpenAI, provider, "role %s", role)
	}
}

func TestRunLexiconViolationFailsGate(t *testing.T) {
	invoker := newCannedInvoker()
	invoker.content[models.RoleJudge] = "# Severity\n1. This is a P0 outage.\n"
	o := newTestOrchestrator(invoker)

	input := testInput()
	input.ContextPackFragments = &models.ContextPackFragments{
		LexiconLock: models.LexiconLock{ForbiddenTerms: []string{"P0"}},
	}
	result := o.Run(context.Background(), input, nil)

	require.Equal(t, models.RunSuccess, result.Status)
	require.NotNil(t, result.QualityScores)
	assert.False(t, result.QualityScores.GatePassed)
	assert.Contains(t, result.QualityScores.Violations, "lexicon:forbidden:P0")
}

func TestRunOwnershipModeRequiresOwnershipMap(t *testing.T) {
	owned := deliverable + "\n## Ownership Map\n- ingestion endpoint: platform team\n"
	invoker := newCannedInvoker()
	invoker.content[models.RoleSynthesizer] = owned
	invoker.content[models.RoleJudge] = owned
	o := newTestOrchestrator(invoker)

	input := testInput()
	input.OutputMode = models.OutputDeliverableOwnership
	result := o.Run(context.Background(), input, nil)

	require.Equal(t, models.RunSuccess, result.Status)
	require.NotNil(t, result.QualityScores)
	assert.True(t, result.QualityScores.GatePassed)

	// Every agent sees the contract requirement, not just the validator.
	prompts := invoker.systemPrompts()
	require.NotEmpty(t, prompts)
	for _, prompt := range prompts {
		assert.Contains(t, prompt, "Ownership Map")
	}
}

func TestRunOwnershipModeFlagsMissingOwnershipMap(t *testing.T) {
	o := newTestOrchestrator(newCannedInvoker())

	input := testInput()
	input.OutputMode = models.OutputDeliverableOwnership
	result := o.Run(context.Background(), input, nil)

	require.Equal(t, models.RunSuccess, result.Status)
	require.NotNil(t, result.QualityScores)
	assert.False(t, result.QualityScores.GatePassed)
	assert.Contains(t, result.QualityScores.Violations, "contract:heading:Ownership Map")
}

func TestRunValidationDisabled(t *testing.T) {
	o := newTestOrchestrator(newCannedInvoker())

	off := false
	input := testInput()
	input.EnableValidation = &off
	result := o.Run(context.Background(), input, nil)

	require.Equal(t, models.RunSuccess, result.Status)
	assert.Nil(t, result.QualityScores)
	assert.Equal(t, events.ConfidenceMedium, result.Confidence)
}

func TestRunWipesCredentials(t *testing.T) {
	o := newTestOrchestrator(newCannedInvoker())

	input := testInput()
	result := o.Run(context.Background(), input, nil)

	require.Equal(t, models.RunSuccess, result.Status)
	assert.Zero(t, input.Credentials.Len())
	assert.False(t, input.Credentials.Has(models.ProviderOpenAI))
	assert.Empty(t, input.Credentials.Get(models.ProviderOpenAI))
}

func TestRunNoCredentials(t *testing.T) {
	o := newTestOrchestrator(newCannedInvoker())
	emit := &captureEmitter{}

	input := testInput()
	input.Credentials = models.NewCredentialMap(nil)
	result := o.Run(context.Background(), input, emit)

	assert.Equal(t, models.RunError, result.Status)
	assert.Equal(t, models.ErrKindNoCredentials, result.ErrorKind)
	assert.Equal(t, 1, emit.countByType()[events.TypeError])
}

func TestRunEmptyQuery(t *testing.T) {
	o := newTestOrchestrator(newCannedInvoker())

	input := testInput()
	input.Query = ""
	result := o.Run(context.Background(), input, nil)

	assert.Equal(t, models.RunError, result.Status)
	assert.Equal(t, models.ErrKindInternal, result.ErrorKind)
}

func TestRunInvalidOutputMode(t *testing.T) {
	o := newTestOrchestrator(newCannedInvoker())

	input := testInput()
	input.OutputMode = "verbose"
	result := o.Run(context.Background(), input, nil)

	assert.Equal(t, models.RunError, result.Status)
	assert.Equal(t, models.ErrKindInternal, result.ErrorKind)
}

func TestRunComplexityOverride(t *testing.T) {
	o := newTestOrchestrator(newCannedInvoker())

	input := testInput()
	input.ComplexityOverride = 5
	result := o.Run(context.Background(), input, nil)

	require.Equal(t, models.RunSuccess, result.Status)
	assert.Equal(t, 5, result.ComplexityLevel)
}

func TestRunCancellation(t *testing.T) {
	invoker := newCannedInvoker()
	for _, role := range models.SpecialistRoles {
		invoker.block[role] = true
	}
	o := newTestOrchestrator(invoker)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	emit := &captureEmitter{}
	result := o.Run(ctx, testInput(), emit)

	assert.Equal(t, models.RunCancelled, result.Status)
	assert.Equal(t, models.ErrKindCancelled, result.ErrorKind)
	assert.Equal(t, 1, emit.countByType()[events.TypeError])
}

func TestRunTimeoutSurfacesPartialArtefact(t *testing.T) {
	invoker := newCannedInvoker()
	invoker.block[models.RoleJudge] = true
	o := newTestOrchestrator(invoker)

	input := testInput()
	input.Deadlines = models.Deadlines{OverallMS: 300}
	result := o.Run(context.Background(), input, nil)

	assert.Equal(t, models.RunError, result.Status)
	assert.Equal(t, models.ErrKindTimeout, result.ErrorKind)
	assert.Equal(t, deliverable, result.Output, "partial synthesis artefact survives the timeout")
}

func TestRunMasksCredentialInError(t *testing.T) {
	invoker := newCannedInvoker()
	invoker.content[models.RoleJudge] = "" // unused; judge blocks below
	invoker.block[models.RoleJudge] = true
	o := newTestOrchestrator(invoker)

	input := testInput()
	input.Deadlines = models.Deadlines{OverallMS: 300}
	result := o.Run(context.Background(), input, nil)

	assert.NotContains(t, result.Error, "sk-secret-0123456789")
}

func TestStartSessionLifecycle(t *testing.T) {
	o := newTestOrchestrator(newCannedInvoker())

	sess, err := o.StartSession(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, models.SessionRunning, sess.Status)

	ch, err := o.Observe(sess.ID)
	require.NoError(t, err)

	var last events.Event
	var prevSeq int64 = -1
	for ev := range ch {
		assert.Greater(t, ev.Seq, prevSeq, "seq must be strictly increasing")
		prevSeq = ev.Seq
		last = ev
	}
	assert.Equal(t, events.TypeFinalAnswerEnd, last.Type)

	got, err := o.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionSuccess, got.Status)
	assert.Equal(t, deliverable, got.Output)
	assert.Empty(t, got.CurrentPhase)
}

func TestStartSessionSecondObserverRejected(t *testing.T) {
	invoker := newCannedInvoker()
	for _, role := range models.SpecialistRoles {
		invoker.block[role] = true
	}
	o := newTestOrchestrator(invoker)

	sess, err := o.StartSession(context.Background(), testInput())
	require.NoError(t, err)

	_, err = o.Observe(sess.ID)
	require.NoError(t, err)
	_, err = o.Observe(sess.ID)
	assert.ErrorIs(t, err, models.ErrObserverAttached)

	require.NoError(t, o.Cancel(sess.ID))
}

func TestCancelSession(t *testing.T) {
	invoker := newCannedInvoker()
	for _, role := range models.SpecialistRoles {
		invoker.block[role] = true
	}
	o := newTestOrchestrator(invoker)

	sess, err := o.StartSession(context.Background(), testInput())
	require.NoError(t, err)
	require.NoError(t, o.Cancel(sess.ID))

	assert.Eventually(t, func() bool {
		got, err := o.GetSession(context.Background(), sess.ID)
		return err == nil && got.Status == models.SessionCancelled
	}, 5*time.Second, 20*time.Millisecond)

	assert.ErrorIs(t, o.Cancel(sess.ID), models.ErrSessionTerminal)
}

func TestConfidenceFor(t *testing.T) {
	assert.Equal(t, events.ConfidenceHigh, confidenceFor(9.5))
	assert.Equal(t, events.ConfidenceHigh, confidenceFor(8))
	assert.Equal(t, events.ConfidenceMedium, confidenceFor(7.2))
	assert.Equal(t, events.ConfidenceLow, confidenceFor(4))
}
