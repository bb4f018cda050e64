package models

import (
	"context"
	"errors"
)

// ErrorKind is the closed error taxonomy carried in RunResults and error
// events. Failures crossing a package boundary are mapped to exactly one
// kind; raw errors never leak past the facade.
type ErrorKind string

const (
	ErrKindNoCredentials   ErrorKind = "no_credentials"
	ErrKindNoProvider      ErrorKind = "no_provider"
	ErrKindUnauthorized    ErrorKind = "unauthorized"
	ErrKindRateLimited     ErrorKind = "rate_limited"
	ErrKindUnavailable     ErrorKind = "unavailable"
	ErrKindTimeout         ErrorKind = "timeout"
	ErrKindInvalidResponse ErrorKind = "invalid_response"
	ErrKindCancelled       ErrorKind = "cancelled"
	ErrKindPhase1Empty     ErrorKind = "phase1_empty"
	ErrKindSynthesisFailed ErrorKind = "synthesis_failed"
	ErrKindJudgementFailed ErrorKind = "judgement_failed"
	ErrKindValidationFail  ErrorKind = "validation_failed"
	ErrKindInternal        ErrorKind = "internal"
)

// IsValid reports whether the kind is a member of the taxonomy.
func (k ErrorKind) IsValid() bool {
	switch k {
	case ErrKindNoCredentials, ErrKindNoProvider, ErrKindUnauthorized,
		ErrKindRateLimited, ErrKindUnavailable, ErrKindTimeout,
		ErrKindInvalidResponse, ErrKindCancelled, ErrKindPhase1Empty,
		ErrKindSynthesisFailed, ErrKindJudgementFailed,
		ErrKindValidationFail, ErrKindInternal:
		return true
	}
	return false
}

// Transient reports whether the kind may succeed on retry or fallback.
func (k ErrorKind) Transient() bool {
	return k == ErrKindRateLimited || k == ErrKindUnavailable
}

// KindError pairs an ErrorKind with an underlying cause so failures can be
// classified with errors.As while still unwrapping to the root error.
type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *KindError) Unwrap() error { return e.Err }

// NewKindError wraps err with an error kind.
func NewKindError(kind ErrorKind, err error) error {
	return &KindError{Kind: kind, Err: err}
}

// KindOf extracts the error kind from err, mapping context errors to
// timeout/cancelled and everything unclassified to internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	switch {
	case errors.Is(err, ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return ErrKindTimeout
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return ErrKindCancelled
	}
	return ErrKindInternal
}

// Sentinel errors shared across packages.
var (
	ErrDeadlineExceeded = errors.New("deadline exceeded")
	ErrCancelled        = errors.New("run cancelled")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionTerminal  = errors.New("session already terminal")
	ErrObserverAttached = errors.New("session already has an observer")
)
