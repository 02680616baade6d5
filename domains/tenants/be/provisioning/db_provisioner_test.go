package provisioning

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence/pgtest"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/setups"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

func maintenancePool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	serverURL := pgtest.ServerURL(t)

	pool, err := setups.AdminPool(context.Background(), persistence.DatabaseConfig{URLs: []string{serverURL}})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestDBProvisionerLifecycle(t *testing.T) {
	pool := maintenancePool(t)
	ctx := context.Background()
	p := NewDBProvisioner(pool, nil)

	name := tenant.BuildDatabaseName(uuid.New())
	req := service.DatabaseRequest{Name: name, ReplicationFactor: 1}
	t.Cleanup(func() { _ = p.Drop(context.Background(), name) })

	res, err := p.Check(ctx, req)
	require.NoError(t, err)
	require.False(t, res.Ready)

	res, err = p.Ensure(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Ready)

	// second ensure is a no-op
	res, err = p.Ensure(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Ready)

	names, err := p.List(ctx)
	require.NoError(t, err)
	require.Contains(t, names, name)

	require.NoError(t, p.Drop(ctx, name))
	require.NoError(t, p.Drop(ctx, name))

	res, err = p.Check(ctx, req)
	require.NoError(t, err)
	require.False(t, res.Ready)
}

func TestDBProvisionerRejectsUnsafeNames(t *testing.T) {
	p := NewDBProvisioner(&pgxpool.Pool{}, nil)
	_, err := p.Ensure(context.Background(), service.DatabaseRequest{Name: `tenant"; DROP DATABASE postgres; --`})
	require.Error(t, err)
	require.Error(t, p.Drop(context.Background(), "Tenant-Upper"))
}

func TestMemoryProvisioner(t *testing.T) {
	ctx := context.Background()
	mc := persistence.NewMemoryCluster(persistence.RequireCreatedDatabases())
	p := NewMemoryProvisioner(mc)

	_, err := p.Ensure(ctx, service.DatabaseRequest{Name: "tenant_one"})
	require.NoError(t, err)

	res, err := p.Check(ctx, service.DatabaseRequest{Name: "tenant_one"})
	require.NoError(t, err)
	require.True(t, res.Ready)

	names, err := p.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"tenant_one"}, names)

	require.NoError(t, p.Drop(ctx, "tenant_one"))
	res, err = p.Check(ctx, service.DatabaseRequest{Name: "tenant_one"})
	require.NoError(t, err)
	require.False(t, res.Ready)
}
