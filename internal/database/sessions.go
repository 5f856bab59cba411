package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session id has no stored record.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository persists serialized session records keyed by session id.
// The payload is opaque JSON owned by the store layer.
type SessionRepository interface {
	Load(ctx context.Context, id string) ([]byte, error)
	Save(ctx context.Context, id string, data []byte) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

type sessionRepo struct {
	db *DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *DB) SessionRepository {
	return &sessionRepo{db: db}
}

// Load returns the stored payload for a session id.
func (r *sessionRepo) Load(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE id = ?`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	return data, nil
}

// Save upserts the payload for a session id.
func (r *sessionRepo) Save(ctx context.Context, id string, data []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, data, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = datetime('now')`,
		id, data,
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", id, err)
	}
	return nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

// Count returns the number of stored sessions.
func (r *sessionRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}
