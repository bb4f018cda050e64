// Package pacer enforces per-provider admission control: a token bucket
// (steady-state rps with a burst allowance) plus a concurrency gate
// bounding in-flight calls. Pacers are shared across runs; all policy the
// adapters themselves must not carry lives here.
package pacer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/councilkit/council/pkg/models"
)

// Lease is returned by a successful acquire. Release returns the in-flight
// slot; the rate token stays consumed. Release is idempotent.
type Lease func()

// Pacer gates admission for one provider. Waiters queue FIFO: the
// concurrency slot is acquired first (semaphore waiters are served in
// order), then the rate token.
type Pacer struct {
	provider models.ProviderID
	limiter  *rate.Limiter
	slots    *semaphore.Weighted
}

// New creates a pacer from a rate-limit configuration. Non-positive fields
// fall back to permissive defaults.
func New(provider models.ProviderID, cfg models.RateLimit) *Pacer {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pacer{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		slots:    semaphore.NewWeighted(int64(concurrency)),
	}
}

// Acquire blocks until both a concurrency slot and a rate token are held,
// or ctx expires. On success the returned lease must be released when the
// provider call finishes.
func (p *Pacer) Acquire(ctx context.Context) (Lease, error) {
	start := time.Now()
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("pacer %s: %w", p.provider, err)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		p.slots.Release(1)
		return nil, fmt.Errorf("pacer %s: %w", p.provider, err)
	}
	observeWait(p.provider, time.Since(start))

	var once sync.Once
	return func() {
		once.Do(func() { p.slots.Release(1) })
	}, nil
}

// Set holds one pacer per provider, created lazily from the configured
// rate limits. Shared process-wide.
type Set struct {
	mu     sync.Mutex
	pacers map[models.ProviderID]*Pacer
	limits map[models.ProviderID]models.RateLimit
}

// NewSet creates a pacer set with per-provider limits. Providers missing
// from limits get a conservative 1 rps / burst 1 / concurrency 1 pacer.
func NewSet(limits map[models.ProviderID]models.RateLimit) *Set {
	copied := make(map[models.ProviderID]models.RateLimit, len(limits))
	for id, l := range limits {
		copied[id] = l
	}
	return &Set{
		pacers: make(map[models.ProviderID]*Pacer),
		limits: copied,
	}
}

// For returns the pacer for a provider, creating it on first use.
func (s *Set) For(provider models.ProviderID) *Pacer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pacers[provider]; ok {
		return p
	}
	p := New(provider, s.limits[provider])
	s.pacers[provider] = p
	return p
}
