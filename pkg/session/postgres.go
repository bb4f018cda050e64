package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/councilkit/council/pkg/models"
)

// PostgresStore persists sessions to the sessions table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const sessionColumns = `id, created_at, ended_at, org_scope, status, current_phase,
	execution_time_ms, output, error, error_kind, cancel_requested`

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, sess models.Session) error {
	var endedAt *time.Time
	if !sess.EndedAt.IsZero() {
		endedAt = &sess.EndedAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			status = EXCLUDED.status,
			current_phase = EXCLUDED.current_phase,
			execution_time_ms = EXCLUDED.execution_time_ms,
			output = EXCLUDED.output,
			error = EXCLUDED.error,
			error_kind = EXCLUDED.error_kind,
			cancel_requested = EXCLUDED.cancel_requested`,
		sess.ID, sess.CreatedAt, endedAt, sess.OrgScope, string(sess.Status),
		string(sess.CurrentPhase), sess.ExecutionTimeMS, sess.Output,
		sess.Error, string(sess.ErrorKind), sess.CancelRequested)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (models.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, models.ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return sess, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, orgScope string) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	args := []any{}
	if orgScope != "" {
		query += ` WHERE org_scope = $1`
		args = append(args, orgScope)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteOlderThan implements Store.
func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM sessions
		WHERE COALESCE(ended_at, created_at) < $1
		  AND status IN ('success', 'error', 'cancelled')`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.Row) (models.Session, error) {
	var (
		sess    models.Session
		endedAt *time.Time
		status  string
		phase   string
		kind    string
	)
	err := row.Scan(&sess.ID, &sess.CreatedAt, &endedAt, &sess.OrgScope, &status,
		&phase, &sess.ExecutionTimeMS, &sess.Output, &sess.Error, &kind,
		&sess.CancelRequested)
	if err != nil {
		return models.Session{}, err
	}
	if endedAt != nil {
		sess.EndedAt = *endedAt
	}
	sess.Status = models.SessionStatus(status)
	sess.CurrentPhase = models.AbstractPhase(phase)
	sess.ErrorKind = models.ErrorKind(kind)
	return sess, nil
}
