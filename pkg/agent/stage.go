package agent

import "github.com/councilkit/council/pkg/models"

// StageEventType discriminates internal stage events. These are the raw
// per-role events the scheduler projects into the public phase stream.
type StageEventType string

const (
	StageStart StageEventType = "stage_start"
	StageDelta StageEventType = "stage_delta"
	StageEnd   StageEventType = "stage_end"
)

// StageEvent is one internal per-role event.
type StageEvent struct {
	Role  models.Role
	Type  StageEventType
	Delta string // stage_delta: preview text snapshot

	// stage_end only.
	Result *models.InvocationResult
	Err    error
}

// StageEmitter receives internal stage events. Implemented by the phase
// scheduler; emission never blocks on the public subscriber.
type StageEmitter func(StageEvent)
