package service_test

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/provisioning"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/cluster"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence/pgtest"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/setups"
)

// singleNode places every tenant database on one server.
type singleNode struct {
	url string
}

func (n singleNode) ResolveCurrent() (cluster.Topology, error) {
	return cluster.Topology{
		Nodes:             []cluster.Node{{ID: "node-1", URL: n.url, Role: cluster.RolePrimary}},
		ReplicationFactor: 1,
		ShardCount:        1,
	}, nil
}

// TestPostgresTenantLifecycle runs against a server whose topology endpoint carries no
// credentials, so tenant connections only work when they reuse the management ones.
func TestPostgresTenantLifecycle(t *testing.T) {
	serverURL := pgtest.ServerURL(t)
	ctx := context.Background()

	parsed, err := url.Parse(serverURL)
	require.NoError(t, err)
	require.NotNil(t, parsed.User)
	bareEndpoint := "postgres://" + parsed.Host

	admin, err := setups.AdminPool(ctx, persistence.DatabaseConfig{URLs: []string{serverURL}})
	require.NoError(t, err)
	t.Cleanup(admin.Close)
	provisioner := provisioning.NewDBProvisioner(admin, nil)

	management := "mgmt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	_, err = provisioner.Ensure(ctx, service.DatabaseRequest{Name: management, ReplicationFactor: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provisioner.Drop(context.Background(), management) })

	svc, err := service.New(ctx, service.Config{
		Management:  persistence.DatabaseConfig{URLs: []string{serverURL}, Database: management},
		Topologies:  singleNode{url: bareEndpoint},
		Provisioner: provisioner,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	created, err := svc.CreateTenant(ctx, service.CreateTenantInput{
		Name:  "Acme",
		Plan:  service.PlanStandard,
		Owner: service.Owner{UserID: "owner-1", Email: "owner@acme.test"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provisioner.Drop(context.Background(), created.DatabaseName) })
	require.True(t, created.Provisioning.DatabaseReady)

	client, err := svc.GetTenantClient(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, client.IsInitialized())

	system, err := svc.GetTenantConfig(ctx, created.ID, service.ConfigSystem)
	require.NoError(t, err)
	require.Equal(t, 1, system.Version)

	_, err = svc.AddUserToTenant(ctx, created.ID, service.AddMemberInput{UserID: "user-1", Role: service.RoleAdmin})
	require.NoError(t, err)
	memberships, err := svc.GetUserMemberships(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, memberships, 1)

	require.NoError(t, svc.DeleteTenant(ctx, created.ID))
	res, err := provisioner.Check(ctx, service.DatabaseRequest{Name: created.DatabaseName})
	require.NoError(t, err)
	require.False(t, res.Ready)
}
