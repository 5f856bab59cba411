package store

import (
	"context"
	"errors"

	"github.com/xdial/xdial/internal/database"
)

// sqliteBackend adapts the embedded database session repository to the
// Backend contract.
type sqliteBackend struct {
	repo database.SessionRepository
}

// NewSQLiteBackend returns a Backend over the embedded sqlite database.
func NewSQLiteBackend(repo database.SessionRepository) Backend {
	return &sqliteBackend{repo: repo}
}

func (b *sqliteBackend) Load(ctx context.Context, id string) ([]byte, error) {
	data, err := b.repo.Load(ctx, id)
	if errors.Is(err, database.ErrSessionNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

func (b *sqliteBackend) Save(ctx context.Context, id string, data []byte) error {
	return b.repo.Save(ctx, id, data)
}

func (b *sqliteBackend) Delete(ctx context.Context, id string) error {
	return b.repo.Delete(ctx, id)
}
