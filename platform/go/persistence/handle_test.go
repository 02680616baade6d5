package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestHandle(cluster *MemoryCluster, database string) *ConnectionHandle {
	return NewConnectionHandle(DatabaseConfig{
		URLs:     []string{"postgres://localhost:5432"},
		Database: database,
	}, WithDialer(cluster.Dial))
}

func TestConnectionHandleDisposeIsIdempotent(t *testing.T) {
	h := newTestHandle(NewMemoryCluster(), "acme")

	require.NotPanics(t, h.Dispose)
	require.False(t, h.IsInitialized())

	require.NoError(t, h.Initialize(context.Background()))
	h.Dispose()
	h.Dispose()
	require.False(t, h.IsInitialized())
}

func TestConnectionHandleRejectsDoubleInitialize(t *testing.T) {
	h := newTestHandle(NewMemoryCluster(), "acme")
	ctx := context.Background()

	require.NoError(t, h.Initialize(ctx))
	err := h.Initialize(ctx)
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.True(t, h.IsInitialized())
}

func TestConnectionHandleRequiresInitialize(t *testing.T) {
	h := newTestHandle(NewMemoryCluster(), "acme")

	_, err := h.OpenSession()
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = h.Store()
	require.ErrorIs(t, err, ErrNotInitialized)

	err = h.WithSession(context.Background(), func(Session) error { return nil })
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestConnectionHandleNotInitializedAfterDispose(t *testing.T) {
	h := newTestHandle(NewMemoryCluster(), "acme")
	require.NoError(t, h.Initialize(context.Background()))
	h.Dispose()

	_, err := h.OpenSession()
	require.ErrorIs(t, err, ErrNotInitialized)

	// a disposed handle may be initialized again
	require.NoError(t, h.Initialize(context.Background()))
	require.True(t, h.IsInitialized())
}

func TestConnectionHandleWrapsDialFailure(t *testing.T) {
	cluster := NewMemoryCluster()
	cause := errors.New("connection refused")
	cluster.FailDial("acme", cause)

	h := newTestHandle(cluster, "acme")
	err := h.Initialize(context.Background())

	var initErr *InitializationError
	require.ErrorAs(t, err, &initErr)
	require.Equal(t, "acme", initErr.Database)
	require.ErrorIs(t, err, cause)
	require.False(t, h.IsInitialized())
}

func TestConnectionHandleRejectsInvalidConfig(t *testing.T) {
	h := NewConnectionHandle(DatabaseConfig{Database: "acme"}, WithDialer(NewMemoryCluster().Dial))

	var initErr *InitializationError
	require.ErrorAs(t, h.Initialize(context.Background()), &initErr)
	require.Contains(t, initErr.Error(), "at least one database url")
}

func TestConnectionHandleWithSessionCommits(t *testing.T) {
	cluster := NewMemoryCluster()
	h := newTestHandle(cluster, "acme")
	ctx := context.Background()
	require.NoError(t, h.Initialize(ctx))

	err := h.WithSession(ctx, func(s Session) error {
		return s.Store("widgets", "w-1", map[string]any{"name": "gear"})
	})
	require.NoError(t, err)

	// a second handle on the same database observes the commit
	other := newTestHandle(cluster, "acme")
	require.NoError(t, other.Initialize(ctx))
	defer other.Dispose()

	var got map[string]any
	require.NoError(t, other.WithSession(ctx, func(s Session) error {
		return s.Load(ctx, "widgets", "w-1", &got)
	}))
	require.Equal(t, "gear", got["name"])
}

func TestConnectionHandleWithSessionDiscardsOnError(t *testing.T) {
	h := newTestHandle(NewMemoryCluster(), "acme")
	ctx := context.Background()
	require.NoError(t, h.Initialize(ctx))

	boom := errors.New("boom")
	err := h.WithSession(ctx, func(s Session) error {
		if err := s.Store("widgets", "w-1", map[string]any{"name": "gear"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = h.WithSession(ctx, func(s Session) error {
		var out map[string]any
		return s.Load(ctx, "widgets", "w-1", &out)
	})
	require.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestConnectionHandleAppliesSessionDefaults(t *testing.T) {
	h := newTestHandle(NewMemoryCluster(), "acme")
	require.True(t, h.Config().UseOptimisticConcurrency())
	require.Equal(t, DefaultMaxRequestsPerSession, h.Config().MaxRequests())
}
