package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/councilkit/council/pkg/events"
	"github.com/councilkit/council/pkg/models"
)

func newSession(t *testing.T, m *Manager) models.Session {
	t.Helper()
	sess, err := m.Create(context.Background(), "org-a")
	require.NoError(t, err)
	return sess
}

func TestCreatePendingSession(t *testing.T) {
	m := NewManager(nil)
	sess := newSession(t, m)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, models.SessionPending, sess.Status)
	assert.Equal(t, "org-a", sess.OrgScope)

	got, err := m.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestGetUnknownSession(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestLifecycleSuccess(t *testing.T) {
	m := NewManager(nil)
	sess := newSession(t, m)

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(sess.ID, cancel, events.NewBus(8)))

	m.SetPhase(sess.ID, models.PhaseResearch)
	got, _ := m.Get(context.Background(), sess.ID)
	assert.Equal(t, models.SessionRunning, got.Status)
	assert.Equal(t, models.PhaseResearch, got.CurrentPhase)

	m.Complete(sess.ID, models.RunResult{
		Status:          models.RunSuccess,
		Output:          "artefact",
		ExecutionTimeMS: 1234,
	})

	got, _ = m.Get(context.Background(), sess.ID)
	assert.Equal(t, models.SessionSuccess, got.Status)
	assert.Equal(t, "artefact", got.Output)
	assert.Equal(t, int64(1234), got.ExecutionTimeMS)
	assert.Empty(t, got.CurrentPhase)
	assert.False(t, got.EndedAt.IsZero())
}

func TestCompleteIsIdempotentOnTerminal(t *testing.T) {
	m := NewManager(nil)
	sess := newSession(t, m)
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(sess.ID, cancel, events.NewBus(8)))

	m.Complete(sess.ID, models.RunResult{Status: models.RunSuccess, Output: "first"})
	m.Complete(sess.ID, models.RunResult{Status: models.RunError, Error: "late"})

	got, _ := m.Get(context.Background(), sess.ID)
	assert.Equal(t, models.SessionSuccess, got.Status)
	assert.Equal(t, "first", got.Output)
}

func TestCancelPendingGoesTerminal(t *testing.T) {
	m := NewManager(nil)
	sess := newSession(t, m)

	require.NoError(t, m.Cancel(sess.ID))

	got, _ := m.Get(context.Background(), sess.ID)
	assert.Equal(t, models.SessionCancelled, got.Status)
	assert.Equal(t, models.ErrKindCancelled, got.ErrorKind)
	assert.True(t, got.CancelRequested)
}

func TestStartAfterCancelFails(t *testing.T) {
	m := NewManager(nil)
	sess := newSession(t, m)
	require.NoError(t, m.Cancel(sess.ID))

	err := m.Start(sess.ID, func() {}, events.NewBus(8))
	assert.Error(t, err)
}

func TestCancelRunningSignalsContext(t *testing.T) {
	m := NewManager(nil)
	sess := newSession(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(sess.ID, cancel, events.NewBus(8)))

	require.NoError(t, m.Cancel(sess.ID))

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("cancel did not signal the run context")
	}

	// Still running until the run unwinds and reports cancelled.
	got, _ := m.Get(context.Background(), sess.ID)
	assert.Equal(t, models.SessionRunning, got.Status)
	assert.True(t, got.CancelRequested)

	m.Complete(sess.ID, models.RunResult{Status: models.RunCancelled, ErrorKind: models.ErrKindCancelled})
	got, _ = m.Get(context.Background(), sess.ID)
	assert.Equal(t, models.SessionCancelled, got.Status)
}

func TestCancelTerminalSession(t *testing.T) {
	m := NewManager(nil)
	sess := newSession(t, m)
	require.NoError(t, m.Cancel(sess.ID))

	assert.ErrorIs(t, m.Cancel(sess.ID), models.ErrSessionTerminal)
}

func TestCancelUnknownSession(t *testing.T) {
	m := NewManager(nil)
	assert.ErrorIs(t, m.Cancel("nope"), models.ErrSessionNotFound)
}

func TestObserveSingleObserver(t *testing.T) {
	m := NewManager(nil)
	sess := newSession(t, m)

	bus := events.NewBus(8)
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(sess.ID, cancel, bus))

	ch, err := m.Observe(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, ch)

	_, err = m.Observe(sess.ID)
	assert.ErrorIs(t, err, models.ErrObserverAttached)
}

func TestObservePendingSessionFails(t *testing.T) {
	m := NewManager(nil)
	sess := newSession(t, m)

	_, err := m.Observe(sess.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestListScopesByOrg(t *testing.T) {
	m := NewManager(nil)
	a := newSession(t, m)
	_, err := m.Create(context.Background(), "org-b")
	require.NoError(t, err)

	got, err := m.List(context.Background(), "org-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
}

func TestSweepEvictsOldTerminalSessions(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store)

	old := newSession(t, m)
	require.NoError(t, m.Cancel(old.ID))

	live := newSession(t, m)
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(live.ID, cancel, events.NewBus(8)))

	// Zero TTL: everything terminal created before now is stale. The old
	// session was cancelled above, so its CreatedAt is in the past.
	time.Sleep(5 * time.Millisecond)
	removed, err := m.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = m.Get(context.Background(), old.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	got, err := m.Get(context.Background(), live.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionRunning, got.Status)
}

func TestSweepKeepsRecentlyEndedSessions(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store)

	// Both created well before the TTL window; only the one that also
	// ended before the window is stale.
	stale := models.Session{
		ID:        "ended-long-ago",
		CreatedAt: time.Now().Add(-48 * time.Hour),
		EndedAt:   time.Now().Add(-25 * time.Hour),
		Status:    models.SessionSuccess,
	}
	fresh := models.Session{
		ID:        "ended-just-now",
		CreatedAt: time.Now().Add(-48 * time.Hour),
		EndedAt:   time.Now(),
		Status:    models.SessionSuccess,
	}
	require.NoError(t, store.Save(context.Background(), stale))
	require.NoError(t, store.Save(context.Background(), fresh))

	removed, err := m.Sweep(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(context.Background(), stale.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	_, err = store.Get(context.Background(), fresh.ID)
	assert.NoError(t, err)
}

func TestTransitionEdges(t *testing.T) {
	assert.NoError(t, transition(models.SessionPending, models.SessionRunning))
	assert.NoError(t, transition(models.SessionPending, models.SessionCancelled))
	assert.NoError(t, transition(models.SessionRunning, models.SessionError))
	assert.Error(t, transition(models.SessionRunning, models.SessionPending))
	assert.Error(t, transition(models.SessionSuccess, models.SessionRunning))
}
