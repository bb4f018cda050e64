package models

import "time"

// ModelInvocation is the immutable request record handed to a provider
// adapter. Deadline is absolute; adapters must fail with a timeout kind
// once it has passed.
type ModelInvocation struct {
	Role                Role
	Provider            ProviderID
	Model               string
	SystemPrompt        string
	UserPrompt          string
	MaxCompletionTokens int
	Deadline            time.Time
}

// InvocationStatus is the terminal state of one adapter call.
type InvocationStatus string

const (
	InvocationOK     InvocationStatus = "ok"
	InvocationFailed InvocationStatus = "failed"
)

// InvocationResult is the immutable outcome of one adapter call, including
// the accounting fields surfaced in phase events and RunResults.
type InvocationResult struct {
	Content      string
	ProviderUsed ProviderID
	ModelUsed    string
	InputTokens  int
	OutputTokens int
	LatencyMS    int64
	Status       InvocationStatus
	ErrorKind    ErrorKind
}
