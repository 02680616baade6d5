// Package pgtest hands integration tests a throwaway postgres server.
package pgtest

import (
	"context"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// URLEnv points tests at an existing server instead of starting a container.
const URLEnv = "TEST_DATABASE_URL"

// ServerURL returns a postgres URL without a database path. The server is either
// TEST_DATABASE_URL or a container terminated at test cleanup. Skips in -short mode.
func ServerURL(t testing.TB) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	if raw, ok := os.LookupEnv(URLEnv); ok && strings.TrimSpace(raw) != "" {
		return stripDatabase(t, raw)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("postgres"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return stripDatabase(t, connString)
}

func stripDatabase(t testing.TB, raw string) string {
	t.Helper()
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	parsed.Path = ""
	return parsed.String()
}
