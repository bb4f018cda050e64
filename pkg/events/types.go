// Package events defines the phase-abstracted event stream of a council
// run and the single-subscriber bus that delivers it.
//
// Every run emits events in a fixed grammar:
//
//	phase_start(k) → phase_delta(k)* → phase_end(k)       for k = 0..4
//	final_answer_start → final_answer_delta* → final_answer_end
//	error                                                  (terminal, alone)
//
// phase_start(k) precedes every phase_delta(k); phase_end(k) is emitted
// exactly once, after all deltas of phase k and before phase_start(k+1).
// final_answer_* events occur within the synthesize phase only. Exactly one
// of final_answer_end or error terminates the stream.
package events

import (
	"time"

	"github.com/councilkit/council/pkg/models"
)

// Type discriminates the tagged event record.
type Type string

const (
	TypePhaseStart       Type = "phase_start"
	TypePhaseDelta       Type = "phase_delta"
	TypePhaseEnd         Type = "phase_end"
	TypeFinalAnswerStart Type = "final_answer_start"
	TypeFinalAnswerDelta Type = "final_answer_delta"
	TypeFinalAnswerEnd   Type = "final_answer_end"
	TypeError            Type = "error"
)

// Confidence levels reported on final_answer_end.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Event is the tagged record delivered to the run's subscriber. Fields
// beyond Type/Seq/Timestamp are populated per type; additions are
// backward-compatible only by appending optional fields.
type Event struct {
	Type      Type      `json:"type"`
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`

	// phase_start / phase_delta / phase_end
	Phase         models.AbstractPhase `json:"phase,omitempty"`
	StepIndex     int                  `json:"step_index"`
	ModelsPlanned []models.ModelInfo   `json:"models_planned,omitempty"`
	DeltaText     string               `json:"delta_text,omitempty"`
	Model         *models.ModelInfo    `json:"model,omitempty"`
	LatencyMS     int64                `json:"latency_ms,omitempty"`
	TokensUsed    int                  `json:"tokens_used,omitempty"`
	ModelInfo     []models.ModelInfo   `json:"model_info,omitempty"`
	CouncilSum    string               `json:"council_summary,omitempty"`

	// final_answer_delta / final_answer_end
	Text       string `json:"text,omitempty"`
	Confidence string `json:"confidence,omitempty"`

	// error
	ErrorKind models.ErrorKind `json:"error_kind,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// Terminal reports whether the event closes the stream.
func (e Event) Terminal() bool {
	return e.Type == TypeFinalAnswerEnd || e.Type == TypeError
}

// Droppable reports whether the event may be shed under back-pressure.
// Only deltas are; lifecycle events must reach the subscriber.
func (e Event) Droppable() bool {
	return e.Type == TypePhaseDelta || e.Type == TypeFinalAnswerDelta
}

// Emitter receives the projected event stream of one run.
type Emitter interface {
	Emit(Event)
}

// EmitFunc adapts a plain function to Emitter.
type EmitFunc func(Event)

// Emit implements Emitter.
func (f EmitFunc) Emit(ev Event) {
	if f != nil {
		f(ev)
	}
}
