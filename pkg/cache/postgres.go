package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	backendPostgres = "postgres"

	// DefaultPostgresSchema is the schema holding the cache table.
	DefaultPostgresSchema = "cache"

	// DefaultPostgresTable is the cache table name.
	DefaultPostgresTable = "nexusmods_cache"
)

// PostgresBackend stores payloads as rows of a single table. Expired rows
// are invisible to reads and deleted by Sweep.
type PostgresBackend struct {
	pool   *pgxpool.Pool
	schema string
	table  string
}

// NewPostgresBackend creates a backend on pool. Empty schema or table fall
// back to DefaultPostgresSchema and DefaultPostgresTable.
func NewPostgresBackend(pool *pgxpool.Pool, schema, table string) *PostgresBackend {
	if pool == nil {
		panic("postgres pool cannot be nil")
	}
	if schema == "" {
		schema = DefaultPostgresSchema
	}
	if table == "" {
		table = DefaultPostgresTable
	}
	return &PostgresBackend{
		pool:   pool,
		schema: schema,
		table:  table,
	}
}

func (b *PostgresBackend) qualifiedTable() string {
	return pgx.Identifier{b.schema, b.table}.Sanitize()
}

// EnsureSchema creates the schema, table and expiry index if missing.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	table := b.qualifiedTable()
	stmts := []string{
		"CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{b.schema}.Sanitize(),
		"CREATE TABLE IF NOT EXISTS " + table + ` (
			id text PRIMARY KEY,
			value text NOT NULL,
			expires_at timestamptz NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS " + pgx.Identifier{b.table + "_expires_at_idx"}.Sanitize() +
			" ON " + table + " (expires_at)",
	}
	for _, stmt := range stmts {
		if _, err := b.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres ensure schema: %w", err)
		}
	}
	return nil
}

// GetString retrieves the value stored under key if it has not expired.
func (b *PostgresBackend) GetString(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := b.pool.QueryRow(ctx,
		"SELECT value FROM "+b.qualifiedTable()+" WHERE id = $1 AND expires_at > now()",
		key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			CacheMisses.WithLabelValues(backendPostgres).Inc()
			return "", false, nil
		}
		CacheErrors.WithLabelValues(backendPostgres, "get").Inc()
		return "", false, fmt.Errorf("postgres get: %w", err)
	}

	CacheHits.WithLabelValues(backendPostgres).Inc()
	return value, true, nil
}

// SetString upserts value under key with an absolute expiry of now+ttl.
func (b *PostgresBackend) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	_, err := b.pool.Exec(ctx,
		"INSERT INTO "+b.qualifiedTable()+` (id, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, time.Now().Add(ttl),
	)
	if err != nil {
		CacheErrors.WithLabelValues(backendPostgres, "set").Inc()
		return fmt.Errorf("postgres set: %w", err)
	}
	return nil
}

// RemoveString deletes key.
func (b *PostgresBackend) RemoveString(ctx context.Context, key string) error {
	if _, err := b.pool.Exec(ctx, "DELETE FROM "+b.qualifiedTable()+" WHERE id = $1", key); err != nil {
		CacheErrors.WithLabelValues(backendPostgres, "remove").Inc()
		return fmt.Errorf("postgres delete: %w", err)
	}
	return nil
}

// Sweep deletes expired rows and returns how many were removed.
func (b *PostgresBackend) Sweep(ctx context.Context) (int64, error) {
	tag, err := b.pool.Exec(ctx, "DELETE FROM "+b.qualifiedTable()+" WHERE expires_at <= now()")
	if err != nil {
		CacheErrors.WithLabelValues(backendPostgres, "sweep").Inc()
		return 0, fmt.Errorf("postgres sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the database connection.
func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}
