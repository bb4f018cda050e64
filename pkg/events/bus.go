package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the bus channel capacity. Sized so a healthy
// subscriber never blocks the scheduler.
const DefaultBufferSize = 256

// Bus is a single-producer / single-consumer stream of run events with
// bounded buffering. Deltas are shed when the subscriber falls behind;
// lifecycle events (phase_start, phase_end, final_answer_end, error) are
// always delivered, blocking the producer if necessary. The full preview
// text survives drops because the scheduler accumulates it in PhaseRecords.
type Bus struct {
	ch      chan Event
	done    chan struct{}
	seq     atomic.Int64
	dropped atomic.Int64

	closeOnce sync.Once
}

// NewBus creates a bus with the given buffer capacity (0 = default).
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	return &Bus{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
}

// Events returns the subscriber channel. Exactly one consumer must drain
// it; the channel is closed after the terminal event.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Emit stamps and delivers an event. Droppable events are shed when the
// buffer is full; all others block until delivered or the bus is closed.
func (b *Bus) Emit(ev Event) {
	ev.Seq = b.seq.Add(1)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	if ev.Droppable() {
		select {
		case b.ch <- ev:
		case <-b.done:
		default:
			b.dropped.Add(1)
		}
		return
	}

	select {
	case b.ch <- ev:
	case <-b.done:
	}

	if ev.Terminal() {
		b.Close()
	}
}

// Close closes the event channel. Producer-side only: it is invoked
// automatically when a terminal event is emitted, or by the owner after the
// producer has stopped. Safe to call more than once.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		close(b.ch)
		if n := b.dropped.Load(); n > 0 {
			slog.Debug("Event bus shed deltas under back-pressure", "dropped", n)
		}
	})
}

// Dropped returns the number of deltas shed so far.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
