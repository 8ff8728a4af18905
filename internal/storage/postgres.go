package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so the store can be exercised with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores key-value records in a single table. Suited to fleet
// deployments where many agents share learned state per domain.
type Postgres struct {
	pool DBPool
	log  *zap.Logger
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS kv_state (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// NewPostgres creates the store, verifies connectivity and ensures the
// schema exists.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return nil, fmt.Errorf("failed to ensure kv_state schema: %w", err)
	}
	return &Postgres{pool: pool, log: logger.Named("PostgresStorage")}, nil
}

// Connect dials a pgx pool for the given URL and wraps it in a store.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return NewPostgres(ctx, pool, logger)
}

// Close releases the underlying pool when the store owns one.
func (p *Postgres) Close() {
	if closer, ok := p.pool.(interface{ Close() }); ok {
		closer.Close()
	}
}

// Get returns the stored value and whether the key existed.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM kv_state WHERE key = $1;`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("querying %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts the value under key.
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO kv_state (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at;
	`, key, value)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", key, err)
	}
	return nil
}
