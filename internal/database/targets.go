package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNoTarget is returned when no known target matches a query.
var ErrNoTarget = errors.New("no known target for query")

// Target maps a callable organization name to its phone number.
type Target struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

// TargetRepository manages the known-target phone book.
type TargetRepository interface {
	Resolve(ctx context.Context, query string) (string, error)
	List(ctx context.Context) ([]Target, error)
	Create(ctx context.Context, t *Target) error
}

type targetRepo struct {
	db *DB
}

// NewTargetRepository creates a new TargetRepository.
func NewTargetRepository(db *DB) TargetRepository {
	return &targetRepo{db: db}
}

// Resolve returns the phone number of the first target whose name appears
// inside the query text. Returns ErrNoTarget when nothing matches.
func (r *targetRepo) Resolve(ctx context.Context, query string) (string, error) {
	var number string
	err := r.db.QueryRowContext(ctx,
		`SELECT number FROM targets
		 WHERE instr(lower(?), lower(name)) > 0
		 ORDER BY length(name) DESC
		 LIMIT 1`, query,
	).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %q", ErrNoTarget, query)
	}
	if err != nil {
		return "", fmt.Errorf("resolving target for query: %w", err)
	}
	return number, nil
}

// List returns all known targets ordered by name.
func (r *targetRepo) List(ctx context.Context) ([]Target, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, number FROM targets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying targets: %w", err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(&t.ID, &t.Name, &t.Number); err != nil {
			return nil, fmt.Errorf("scanning target row: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// Create inserts a new target.
func (r *targetRepo) Create(ctx context.Context, t *Target) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO targets (name, number) VALUES (?, ?)`,
		t.Name, t.Number,
	)
	if err != nil {
		return fmt.Errorf("inserting target: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	t.ID = id
	return nil
}
