package models

import "time"

// SessionStatus is the externally visible lifecycle state of a run handle.
// Transitions are monotonic: pending → running → one terminal state.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionSuccess   SessionStatus = "success"
	SessionError     SessionStatus = "error"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the status is one of the three end states.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionSuccess, SessionError, SessionCancelled:
		return true
	}
	return false
}

// IsValid reports whether the status is a member of the lifecycle set.
func (s SessionStatus) IsValid() bool {
	return s == SessionPending || s == SessionRunning || s.Terminal()
}

// Session is the snapshot form of one run handle. The session manager owns
// the mutable state; every Session leaving it is an immutable copy.
type Session struct {
	ID              string        `json:"id"`
	CreatedAt       time.Time     `json:"created_at"`
	EndedAt         time.Time     `json:"ended_at,omitempty"`
	OrgScope        string        `json:"org_scope,omitempty"`
	Status          SessionStatus `json:"status"`
	CurrentPhase    AbstractPhase `json:"current_phase,omitempty"`
	ExecutionTimeMS int64         `json:"execution_time_ms,omitempty"`
	Output          string        `json:"output,omitempty"`
	Error           string        `json:"error,omitempty"`
	ErrorKind       ErrorKind     `json:"error_kind,omitempty"`
	CancelRequested bool          `json:"cancel_requested"`
}

// RetentionTime is the timestamp TTL eviction is measured from: when the
// session ended, falling back to creation for snapshots without an end time.
func (s Session) RetentionTime() time.Time {
	if !s.EndedAt.IsZero() {
		return s.EndedAt
	}
	return s.CreatedAt
}
