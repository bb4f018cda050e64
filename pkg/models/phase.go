package models

import "time"

// PhaseStatus is the lifecycle state of one abstract phase within a run.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
)

// ModelInfo is the provider/model attribution attached to completed phases.
type ModelInfo struct {
	Provider ProviderID `json:"provider"`
	Model    string     `json:"model"`
}

// PhaseRecord tracks one abstract phase of a run. Mutated only by the phase
// scheduler; everything leaving the scheduler is a snapshot copy.
type PhaseRecord struct {
	Phase          AbstractPhase `json:"phase"`
	StepIndex      int           `json:"step_index"`
	Status         PhaseStatus   `json:"status"`
	PreviewText    string        `json:"preview_text"`
	StartedAt      time.Time     `json:"started_at,omitempty"`
	EndedAt        time.Time     `json:"ended_at,omitempty"`
	LatencyMS      int64         `json:"latency_ms,omitempty"`
	ModelInfo      []ModelInfo   `json:"model_info,omitempty"`
	CouncilSummary string        `json:"council_summary,omitempty"`
	TokensUsed     int           `json:"tokens_used,omitempty"`
}

// Snapshot returns a copy safe to hand to observers.
func (r *PhaseRecord) Snapshot() PhaseRecord {
	cp := *r
	cp.ModelInfo = append([]ModelInfo(nil), r.ModelInfo...)
	return cp
}

// NewPhaseRecords eagerly creates the five pending records for a run, in
// public phase order.
func NewPhaseRecords() []*PhaseRecord {
	records := make([]*PhaseRecord, len(AbstractPhases))
	for i, phase := range AbstractPhases {
		records[i] = &PhaseRecord{Phase: phase, StepIndex: i, Status: PhasePending}
	}
	return records
}
