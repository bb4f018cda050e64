package models

import "time"

// OutputMode selects how much of the council transcript reaches the caller.
type OutputMode string

const (
	OutputDeliverableOnly      OutputMode = "deliverable-only"
	OutputDeliverableOwnership OutputMode = "deliverable-ownership"
	OutputAudit                OutputMode = "audit"
	OutputFullTranscript       OutputMode = "full-transcript"
)

// IsValid reports whether the mode is one of the supported output modes.
func (m OutputMode) IsValid() bool {
	switch m {
	case OutputDeliverableOnly, OutputDeliverableOwnership,
		OutputAudit, OutputFullTranscript:
		return true
	}
	return false
}

// Deadlines carries the optional per-run timeout overrides. Zero values
// fall back to the configured defaults.
type Deadlines struct {
	OverallMS int64 `json:"overall_ms,omitempty"`
	Phase1MS  int64 `json:"phase1_ms,omitempty"`
	Phase2MS  int64 `json:"phase2_ms,omitempty"`
	Phase3MS  int64 `json:"phase3_ms,omitempty"`
}

// Overall returns the overall run budget, or def when unset.
func (d Deadlines) Overall(def time.Duration) time.Duration { return orDefault(d.OverallMS, def) }

// Phase1 returns the Phase 1 budget, or def when unset.
func (d Deadlines) Phase1(def time.Duration) time.Duration { return orDefault(d.Phase1MS, def) }

// Phase2 returns the Phase 2 budget, or def when unset.
func (d Deadlines) Phase2(def time.Duration) time.Duration { return orDefault(d.Phase2MS, def) }

// Phase3 returns the Phase 3 budget, or def when unset.
func (d Deadlines) Phase3(def time.Duration) time.Duration { return orDefault(d.Phase3MS, def) }

func orDefault(ms int64, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// RunInput is the complete per-run policy. No global mutable configuration
// exists after startup; everything the pipeline needs arrives here.
type RunInput struct {
	Query                  string
	Credentials            *CredentialMap
	OutputMode             OutputMode
	ComplexityOverride     int                 // 1..5, 0 = classify
	PreferredProviders     map[Role]ProviderID // per-role override
	ContextPackFragments   *ContextPackFragments
	EnableValidation       *bool // nil = true
	EnableQualityDirective *bool // nil = true
	Deadlines              Deadlines
	OrgScope               string
}

// ValidationEnabled resolves the tri-state flag (default true).
func (in *RunInput) ValidationEnabled() bool {
	return in.EnableValidation == nil || *in.EnableValidation
}

// QualityDirectiveEnabled resolves the tri-state flag (default true).
func (in *RunInput) QualityDirectiveEnabled() bool {
	return in.EnableQualityDirective == nil || *in.EnableQualityDirective
}

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	RunSuccess   RunStatus = "success"
	RunError     RunStatus = "error"
	RunCancelled RunStatus = "cancelled"
)

// QualityScore is the validator's scored report over the final artefact.
type QualityScore struct {
	Substance    float64  `json:"substance"`
	Completeness float64  `json:"completeness"`
	Depth        float64  `json:"depth"`
	Accuracy     float64  `json:"accuracy"`
	Overall      float64  `json:"overall"`
	GatePassed   bool     `json:"gate_passed"`
	Violations   []string `json:"violations,omitempty"`
}

// RunResult is the single return value of a run. Status is error or
// cancelled iff ErrorKind is set. Output is set on success, and on a
// run-level timeout when a partial synthesis artefact exists.
type RunResult struct {
	Status          RunStatus           `json:"status"`
	Output          string              `json:"output,omitempty"`
	PhaseOutputs    map[Role]string     `json:"phase_outputs,omitempty"`
	ProviderUsed    map[Role]ProviderID `json:"provider_used_per_role,omitempty"`
	ExecutionTimeMS int64               `json:"execution_time_ms"`
	QualityScores   *QualityScore       `json:"quality_scores,omitempty"`
	ErrorKind       ErrorKind           `json:"error_kind,omitempty"`
	Error           string              `json:"error,omitempty"`
	ComplexityLevel int                 `json:"complexity_level,omitempty"`
	Confidence      string              `json:"confidence,omitempty"`
}
