package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed pgmigrations/*.sql
var pgMigrationsFS embed.FS

// PostgresBackend stores serialized sessions in a PostgreSQL table. It is
// the backend of choice when several crawler instances share state.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend opens a PostgreSQL connection and runs pending
// migrations.
func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgresql: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgresql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	b := &PostgresBackend{db: db}

	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("postgresql session backend opened")
	return b, nil
}

// Close closes the underlying database connection.
func (b *PostgresBackend) Close() error {
	return b.db.Close()
}

// migrate runs all pending SQL migration files in order.
func (b *PostgresBackend) migrate() error {
	_, err := b.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(pgMigrationsFS, "pgmigrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version := strings.TrimSuffix(entry.Name(), ".sql")

		var count int
		err := b.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = $1", version).Scan(&count)
		if err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if count > 0 {
			continue
		}

		content, err := pgMigrationsFS.ReadFile("pgmigrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", version, err)
		}

		tx, err := b.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %s: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", version, err)
		}

		slog.Info("applied migration", "version", version)
	}

	return nil
}

func (b *PostgresBackend) Load(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, "SELECT data FROM sessions WHERE id = $1", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return data, nil
}

func (b *PostgresBackend) Save(ctx context.Context, id string, data []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO sessions (id, data, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		id, data)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Delete(ctx context.Context, id string) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
