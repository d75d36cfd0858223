package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRunner(ctx context.Context, t *testing.T) MigrationRunner {
	t.Helper()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dns_smart_block_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(120*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(pgContainer)
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	runner, err := NewMigrationRunner(&Config{
		DatabaseURL:    connStr,
		MigrationTable: "schema_migrations",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = runner.Close()
	})

	return runner
}

func TestMigrationUpDownCycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	runner := setupRunner(ctx, t)

	require.NoError(t, runner.Up())

	// Up is idempotent.
	require.NoError(t, runner.Up())

	require.NoError(t, runner.Version())
	require.NoError(t, runner.Status())

	require.NoError(t, runner.Down())

	// Down past the first migration is a no-op, not an error.
	assert.NoError(t, runner.Down())
}

func TestMigrationDrop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	runner := setupRunner(ctx, t)

	require.NoError(t, runner.Up())
	require.NoError(t, runner.Drop())
}
