// Package contextpack builds the canonical, size-bounded state block
// injected into every agent invocation.
package contextpack

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator counts token equivalents for budget enforcement.
type TokenEstimator interface {
	CountTokens(text string) int
}

// TiktokenEstimator counts tokens with the cl100k_base encoding, a close
// approximation for every model family the council invokes.
type TiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

// NewTiktokenEstimator loads the cl100k_base encoding.
func NewTiktokenEstimator() (*TiktokenEstimator, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &TiktokenEstimator{encoding: encoding}, nil
}

// CountTokens returns the token count for text. Thread-safe.
func (e *TiktokenEstimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.encoding.Encode(text, nil, nil))
}

// HeuristicEstimator approximates tokens as len/4. Used when the tiktoken
// encoding cannot be loaded and in tests.
type HeuristicEstimator struct{}

// CountTokens returns an estimate at ~4 characters per token.
func (HeuristicEstimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	n := (len(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// DefaultEstimator returns the tiktoken estimator, falling back to the
// heuristic one when the encoding is unavailable.
func DefaultEstimator() TokenEstimator {
	est, err := NewTiktokenEstimator()
	if err != nil {
		return HeuristicEstimator{}
	}
	return est
}
