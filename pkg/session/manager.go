// Package session tracks run handles: lifecycle state, cancellation, the
// single event observer per run, and durable snapshots via a Store.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/councilkit/council/pkg/events"
	"github.com/councilkit/council/pkg/models"
)

// handle is the mutable in-memory state of one session. The manager's
// lock guards all fields.
type handle struct {
	session  models.Session
	cancel   context.CancelFunc
	bus      *events.Bus
	observed bool
}

// Manager owns session lifecycle. Status transitions are monotonic:
// pending → running → one terminal state; a terminal session never
// changes again.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*handle
	store    Store
}

// NewManager creates a manager backed by store. A nil store falls back to
// an in-memory one.
func NewManager(store Store) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{
		sessions: make(map[string]*handle),
		store:    store,
	}
}

// Create registers a new pending session and returns its snapshot.
func (m *Manager) Create(ctx context.Context, orgScope string) (models.Session, error) {
	sess := models.Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		OrgScope:  orgScope,
		Status:    models.SessionPending,
	}

	m.mu.Lock()
	m.sessions[sess.ID] = &handle{session: sess}
	m.mu.Unlock()

	m.persist(ctx, sess)
	return sess, nil
}

// Start transitions a session to running and attaches its cancel function
// and event bus. Fails if the session was cancelled before starting.
func (m *Manager) Start(id string, cancel context.CancelFunc, bus *events.Bus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.sessions[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	if h.session.Status.Terminal() {
		return models.ErrSessionTerminal
	}
	if h.session.CancelRequested {
		return models.ErrCancelled
	}
	if err := transition(h.session.Status, models.SessionRunning); err != nil {
		return err
	}
	h.session.Status = models.SessionRunning
	h.cancel = cancel
	h.bus = bus

	m.persist(context.Background(), h.session)
	return nil
}

// SetPhase records the currently running abstract phase.
func (m *Manager) SetPhase(id string, phase models.AbstractPhase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.sessions[id]; ok && !h.session.Status.Terminal() {
		h.session.CurrentPhase = phase
	}
}

// Complete records a run's terminal result on the session. No-op for an
// already terminal session.
func (m *Manager) Complete(id string, result models.RunResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.sessions[id]
	if !ok || h.session.Status.Terminal() {
		return
	}

	status := models.SessionError
	switch result.Status {
	case models.RunSuccess:
		status = models.SessionSuccess
	case models.RunCancelled:
		status = models.SessionCancelled
	}
	h.session.Status = status
	h.session.EndedAt = time.Now()
	h.session.ExecutionTimeMS = result.ExecutionTimeMS
	h.session.Output = result.Output
	h.session.Error = result.Error
	h.session.ErrorKind = result.ErrorKind
	h.session.CurrentPhase = ""
	h.cancel = nil

	m.persist(context.Background(), h.session)
}

// Cancel requests cooperative cancellation. A pending session that never
// started goes terminal immediately; a running one is signalled through
// its context and reaches cancelled when the run unwinds.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.sessions[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	if h.session.Status.Terminal() {
		return models.ErrSessionTerminal
	}

	h.session.CancelRequested = true
	if h.session.Status == models.SessionPending {
		h.session.Status = models.SessionCancelled
		h.session.EndedAt = time.Now()
		h.session.ErrorKind = models.ErrKindCancelled
		h.session.Error = models.ErrCancelled.Error()
	}
	if h.cancel != nil {
		h.cancel()
	}

	m.persist(context.Background(), h.session)
	return nil
}

// Get returns a session snapshot, falling back to the store for sessions
// evicted from memory.
func (m *Manager) Get(ctx context.Context, id string) (models.Session, error) {
	m.mu.Lock()
	if h, ok := m.sessions[id]; ok {
		sess := h.session
		m.mu.Unlock()
		return sess, nil
	}
	m.mu.Unlock()
	return m.store.Get(ctx, id)
}

// List returns session snapshots for an org scope, newest first.
func (m *Manager) List(ctx context.Context, orgScope string) ([]models.Session, error) {
	return m.store.List(ctx, orgScope)
}

// Observe attaches the single event observer of a run and returns its
// stream. A second observer, or observing a session with no bus, fails.
func (m *Manager) Observe(id string) (<-chan events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	if h.bus == nil {
		return nil, fmt.Errorf("session %s has no event stream: %w", id, models.ErrSessionNotFound)
	}
	if h.observed {
		return nil, models.ErrObserverAttached
	}
	h.observed = true
	return h.bus.Events(), nil
}

// Sweep evicts terminal sessions whose end time is older than ttl from
// memory and the store, returning the number removed from the store.
func (m *Manager) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	for id, h := range m.sessions {
		if h.session.Status.Terminal() && h.session.RetentionTime().Before(cutoff) {
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	return m.store.DeleteOlderThan(ctx, cutoff)
}

// persist mirrors a snapshot to the store. Persistence failures are
// logged, not propagated; memory remains authoritative for live sessions.
func (m *Manager) persist(ctx context.Context, sess models.Session) {
	if err := m.store.Save(ctx, sess); err != nil {
		slog.Error("Failed to persist session", "session_id", sess.ID, "error", err)
	}
}

// transition validates a status edge.
func transition(from, to models.SessionStatus) error {
	switch from {
	case models.SessionPending:
		if to == models.SessionRunning || to.Terminal() {
			return nil
		}
	case models.SessionRunning:
		if to.Terminal() {
			return nil
		}
	}
	return fmt.Errorf("invalid session transition %s -> %s", from, to)
}
