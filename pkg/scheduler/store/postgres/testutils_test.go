package postgres

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/distask/scheduler/pkg/infrastructure/logging"
)

// setupTestStore starts a throwaway PostgreSQL container, applies
// migrations, and returns a connected Store; the container and the Store
// are released through t.Cleanup — the same shape as the teacher's
// setupTestContainer/setupTestDatabase pair.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping testcontainers-backed integration test in -short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("tasksched_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
		postgres.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := MigrateToLatest(connString, "file://"+migrationsDir(t)); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	s, err := New(ctx, DatabaseConfig{
		ConnString:      connString,
		MaxConns:        5,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}, logging.NewLogger(logging.DefaultConfig()))
	if err != nil {
		t.Fatalf("failed to connect store: %v", err)
	}
	t.Cleanup(s.Close)

	return s
}

// migrationsDir resolves the repository-root migrations/ directory
// relative to this test file so tests pass regardless of working
// directory.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to resolve test file path")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "..", "migrations")
}
