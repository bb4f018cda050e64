package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/councilkit/council/pkg/models"
)

// Store persists session snapshots. The manager owns the authoritative
// in-memory state; the store is its durable mirror.
type Store interface {
	// Save upserts a session snapshot.
	Save(ctx context.Context, s models.Session) error
	// Get returns one session, or models.ErrSessionNotFound.
	Get(ctx context.Context, id string) (models.Session, error)
	// List returns sessions for an org scope, newest first. Empty scope
	// lists all.
	List(ctx context.Context, orgScope string) ([]models.Session, error)
	// DeleteOlderThan removes terminal sessions that ended before cutoff
	// (falling back to creation time when no end time was recorded) and
	// returns the number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore is the in-process Store used when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]models.Session)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return models.Session{}, models.ErrSessionNotFound
	}
	return sess, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, orgScope string) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if orgScope != "" && sess.OrgScope != orgScope {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DeleteOlderThan implements Store.
func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.Status.Terminal() && sess.RetentionTime().Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}
