package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestBuildDatabaseName(t *testing.T) {
	id := uuid.MustParse("6f1c2a4e-8b7d-4c1e-9a2f-0d3b5e7c9a11")

	name := BuildDatabaseName(id)
	require.Equal(t, "tenant_6f1c2a4e8b7d4c1e9a2f0d3b5e7c9a11", name)
	require.Equal(t, "6f1c2a4e", ShortID(id))

	parsed, ok := ParseDatabaseName(name)
	require.True(t, ok)
	require.Equal(t, id, parsed)
}

func TestParseDatabaseNameRejectsForeignNames(t *testing.T) {
	for _, name := range []string{"palmyra_management", "tenant_", "tenant_xyz", "postgres"} {
		_, ok := ParseDatabaseName(name)
		require.False(t, ok, name)
	}
}

func TestRouteContext(t *testing.T) {
	route := NewRoute(NewID())
	got, ok := FromContext(WithRoute(context.Background(), route))
	require.True(t, ok)
	require.Equal(t, route, got)

	_, ok = FromContext(context.Background())
	require.False(t, ok)
}
