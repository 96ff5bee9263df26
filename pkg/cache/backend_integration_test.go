//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a Redis container and returns a client
func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() {
		client.Close()
		container.Terminate(ctx)
	})
	return client
}

// setupPostgresContainer starts a Postgres container and returns a pool
func setupPostgresContainer(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "stats",
				"POSTGRES_PASSWORD": "stats",
				"POSTGRES_DB":       "stats",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Postgres endpoint: %v", err)
	}

	pool, err := pgxpool.New(ctx, "postgres://stats:stats@"+endpoint+"/stats?sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to connect to Postgres: %v", err)
	}
	t.Cleanup(func() {
		pool.Close()
		container.Terminate(ctx)
	})
	return pool
}

// exerciseBackend runs the shared Backend contract against b.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	key := NewKey("/v1/games/skyrim/mods/1.json", "api-key").String()

	if _, ok, err := b.GetString(ctx, key); err != nil || ok {
		t.Fatalf("initial GetString() = %v, %v; want miss", ok, err)
	}

	if err := b.SetString(ctx, key, `{"version":"1.0"}`, time.Minute); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	if err := b.SetString(ctx, key, `{"version":"2.0"}`, time.Minute); err != nil {
		t.Fatalf("SetString overwrite failed: %v", err)
	}

	value, ok, err := b.GetString(ctx, key)
	if err != nil || !ok || value != `{"version":"2.0"}` {
		t.Fatalf("GetString() = %q, %v, %v", value, ok, err)
	}

	if err := b.SetString(ctx, "short", "v", time.Second); err != nil {
		t.Fatalf("SetString short ttl failed: %v", err)
	}
	time.Sleep(2100 * time.Millisecond)
	if _, ok, _ := b.GetString(ctx, "short"); ok {
		t.Error("entry should have expired")
	}

	if err := b.RemoveString(ctx, key); err != nil {
		t.Fatalf("RemoveString failed: %v", err)
	}
	if _, ok, _ := b.GetString(ctx, key); ok {
		t.Error("expected miss after RemoveString")
	}
}

func TestRedisBackend_Integration(t *testing.T) {
	exerciseBackend(t, NewRedisBackend(setupRedisContainer(t)))
}

func TestPostgresBackend_Integration(t *testing.T) {
	pool := setupPostgresContainer(t)
	backend := NewPostgresBackend(pool, "", "")
	ctx := context.Background()

	if err := backend.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	// Idempotent
	if err := backend.EnsureSchema(ctx); err != nil {
		t.Fatalf("second EnsureSchema failed: %v", err)
	}

	exerciseBackend(t, backend)

	if err := backend.SetString(ctx, "gone", "v", time.Second); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)
	removed, err := backend.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed < 1 {
		t.Errorf("Sweep removed %d rows, want >= 1", removed)
	}
}
