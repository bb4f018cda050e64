package pacer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/councilkit/council/pkg/models"
)

func TestAcquireRelease(t *testing.T) {
	p := New(models.ProviderOpenAI, models.RateLimit{RPS: 100, Burst: 10, Concurrency: 2})

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease()
	// Idempotent: releasing twice must not free a second slot.
	assert.NotPanics(t, func() { lease() })
}

func TestAdmissionBound(t *testing.T) {
	// rps=10, burst=2: over a 500ms window at most 2 + 10*0.5 = 7 admits.
	p := New(models.ProviderGemini, models.RateLimit{RPS: 10, Burst: 2, Concurrency: 10})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				lease, err := p.Acquire(ctx)
				if err != nil {
					return
				}
				admitted.Add(1)
				lease()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, admitted.Load(), int64(8), "admissions must respect burst + rps*window")
	assert.Greater(t, admitted.Load(), int64(0))
}

func TestConcurrencyGate(t *testing.T) {
	p := New(models.ProviderKimi, models.RateLimit{RPS: 1000, Burst: 1000, Concurrency: 2})

	var inFlight, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := p.Acquire(context.Background())
			require.NoError(t, err)
			defer lease()

			now := inFlight.Add(1)
			for {
				old := peak.Load()
				if now <= old || peak.CompareAndSwap(old, now) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestAcquireHonoursContext(t *testing.T) {
	p := New(models.ProviderOpenAI, models.RateLimit{RPS: 1000, Burst: 1000, Concurrency: 1})

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer lease()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSetCreatesLazily(t *testing.T) {
	s := NewSet(map[models.ProviderID]models.RateLimit{
		models.ProviderOpenAI: {RPS: 5, Burst: 5, Concurrency: 5},
	})

	assert.Same(t, s.For(models.ProviderOpenAI), s.For(models.ProviderOpenAI))
	assert.NotNil(t, s.For(models.ProviderKimi), "unknown providers get a conservative default pacer")
}
