package scheduler

import (
	"sync"
	"time"

	"github.com/councilkit/council/pkg/agent"
	"github.com/councilkit/council/pkg/events"
	"github.com/councilkit/council/pkg/models"
)

// phaseRoles lists, per abstract phase, the internal roles whose stage
// events it aggregates, in the order buffered deltas are flushed.
var phaseRoles = map[models.AbstractPhase][]models.Role{
	models.PhaseUnderstand:   {models.RoleArchitect},
	models.PhaseResearch:     {models.RoleResearcher},
	models.PhaseReasonRefine: {models.RoleDataEngineer, models.RoleOptimizer, models.RoleRedTeamer},
	models.PhaseCrosscheck:   {models.RoleSynthesizer},
	models.PhaseSynthesize:   {models.RoleJudge},
}

// projector turns interleaved internal stage events into the totally
// ordered public phase stream. Specialists run concurrently, so deltas for
// phases that have not opened yet are buffered per role and flushed, in
// per-role arrival order, when their phase starts. A phase closes once
// every one of its roles has ended; closing cascades when later phases
// already finished while buffered.
type projector struct {
	mu      sync.Mutex
	emitter events.Emitter
	records []*models.PhaseRecord

	current  int
	buffered map[models.Role][]string
	ended    map[models.Role]bool
	planned  map[models.Role]models.ModelInfo
	models   map[models.Role]models.ModelInfo
	tokens   map[models.Role]int
	latency  map[models.Role]int64
}

func newProjector(emitter events.Emitter) *projector {
	return &projector{
		emitter:  emitter,
		records:  models.NewPhaseRecords(),
		current:  -1,
		buffered: make(map[models.Role][]string),
		ended:    make(map[models.Role]bool),
		models:   make(map[models.Role]models.ModelInfo),
		tokens:   make(map[models.Role]int),
		latency:  make(map[models.Role]int64),
	}
}

// start opens the first phase. Called once before any stage event.
func (p *projector) start(planned map[models.Role]models.ModelInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.planned = planned
	p.openLocked(0)
}

// plannedFor returns the model announced for a role on phase_start. Best
// effort; provider fallback may change what actually runs.
func (p *projector) plannedFor(role models.Role) (models.ModelInfo, bool) {
	info, ok := p.planned[role]
	return info, ok
}

// handle consumes one internal stage event. Safe for concurrent use by the
// five specialist goroutines.
func (p *projector) handle(ev agent.StageEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	phase := ev.Role.Phase()
	idx := phase.StepIndex()
	if idx < 0 || idx < p.current {
		return
	}

	switch ev.Type {
	case agent.StageStart:
		// Stage starts are not projected; phase_start is driven by
		// phase transitions, not by individual roles.
	case agent.StageDelta:
		if idx == p.current {
			p.appendDeltaLocked(idx, ev.Role, ev.Delta)
		} else {
			p.buffered[ev.Role] = append(p.buffered[ev.Role], ev.Delta)
		}
	case agent.StageEnd:
		p.ended[ev.Role] = true
		if ev.Result != nil {
			p.latency[ev.Role] = ev.Result.LatencyMS
			p.tokens[ev.Role] = ev.Result.InputTokens + ev.Result.OutputTokens
			if ev.Result.Status == models.InvocationOK {
				p.models[ev.Role] = models.ModelInfo{
					Provider: ev.Result.ProviderUsed,
					Model:    ev.Result.ModelUsed,
				}
			}
		}
		p.advanceLocked()
	}
}

// advanceLocked closes the current phase while all its roles have ended,
// cascading through phases that completed while buffered.
func (p *projector) advanceLocked() {
	for p.current >= 0 && p.current < len(p.records) && p.phaseDoneLocked(p.current) {
		p.closeLocked(p.current)
		if p.current+1 >= len(p.records) {
			p.current = len(p.records)
			return
		}
		p.openLocked(p.current + 1)
	}
}

func (p *projector) phaseDoneLocked(idx int) bool {
	for _, role := range phaseRoles[p.records[idx].Phase] {
		if !p.ended[role] {
			return false
		}
	}
	return true
}

// openLocked marks a phase running, announces it, and flushes deltas that
// arrived while the phase was pending.
func (p *projector) openLocked(idx int) {
	p.current = idx
	rec := p.records[idx]
	rec.Status = models.PhaseRunning
	rec.StartedAt = time.Now()

	var planned []models.ModelInfo
	for _, role := range phaseRoles[rec.Phase] {
		if info, ok := p.plannedFor(role); ok {
			planned = append(planned, info)
		}
	}
	p.emitter.Emit(events.Event{
		Type:          events.TypePhaseStart,
		Phase:         rec.Phase,
		StepIndex:     idx,
		ModelsPlanned: planned,
	})

	for _, role := range phaseRoles[rec.Phase] {
		for _, delta := range p.buffered[role] {
			p.appendDeltaLocked(idx, role, delta)
		}
		delete(p.buffered, role)
	}
}

func (p *projector) appendDeltaLocked(idx int, role models.Role, delta string) {
	if delta == "" {
		return
	}
	rec := p.records[idx]
	rec.PreviewText += delta
	ev := events.Event{
		Type:      events.TypePhaseDelta,
		Phase:     rec.Phase,
		StepIndex: idx,
		DeltaText: delta,
	}
	if info, ok := p.models[role]; ok {
		ev.Model = &info
	}
	p.emitter.Emit(ev)
}

// closeLocked completes a phase record and emits phase_end. Phase latency
// is the slowest participating role.
func (p *projector) closeLocked(idx int) {
	rec := p.records[idx]
	rec.Status = models.PhaseCompleted
	rec.EndedAt = time.Now()

	var maxLatency int64
	var tokens int
	succeeded := 0
	roles := phaseRoles[rec.Phase]
	for _, role := range roles {
		if p.latency[role] > maxLatency {
			maxLatency = p.latency[role]
		}
		tokens += p.tokens[role]
		if info, ok := p.models[role]; ok {
			rec.ModelInfo = append(rec.ModelInfo, info)
			succeeded++
		}
	}
	rec.LatencyMS = maxLatency
	rec.TokensUsed = tokens
	// Partial success still completes the phase; only a phase where every
	// role failed is marked failed.
	if succeeded == 0 && len(roles) > 0 {
		rec.Status = models.PhaseFailed
	}

	p.emitter.Emit(events.Event{
		Type:       events.TypePhaseEnd,
		Phase:      rec.Phase,
		StepIndex:  idx,
		LatencyMS:  rec.LatencyMS,
		TokensUsed: rec.TokensUsed,
		ModelInfo:  append([]models.ModelInfo(nil), rec.ModelInfo...),
		CouncilSum: rec.CouncilSummary,
	})
}

// snapshots returns copies of all phase records.
func (p *projector) snapshots() []models.PhaseRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.PhaseRecord, len(p.records))
	for i, rec := range p.records {
		out[i] = rec.Snapshot()
	}
	return out
}

// currentPhase returns the phase currently running, if any.
func (p *projector) currentPhase() (models.AbstractPhase, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current < 0 || p.current >= len(p.records) {
		return "", false
	}
	return p.records[p.current].Phase, true
}
