package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveCurrentDevelopment(t *testing.T) {
	cases := []Environment{
		{AppEnv: "development"},
		{AppEnv: ""},
		{AppEnv: "production", DatabaseURL: "postgres://localhost:5432"},
	}
	for _, env := range cases {
		topo, err := NewRegistry(env).ResolveCurrent()
		require.NoError(t, err)
		require.Len(t, topo.Nodes, 3)
		require.Equal(t, "node-1", topo.Nodes[0].ID)
		require.Equal(t, RolePrimary, topo.Nodes[0].Role)
		require.Equal(t, RoleReplica, topo.Nodes[1].Role)
		require.Equal(t, RoleReplica, topo.Nodes[2].Role)
	}
}

func TestResolveCurrentProduction(t *testing.T) {
	r := NewRegistry(Environment{
		AppEnv:      "production",
		DatabaseURL: "postgres://db.internal:5432",
		ClusterIPs:  []string{"1.2.3.4", "5.6.7.8", "9.10.11.12", "13.14.15.16"},
	})

	topo, err := r.ResolveCurrent()
	require.NoError(t, err)
	require.Equal(t, 3, topo.ReplicationFactor)
	require.Equal(t, 2, topo.ShardCount)
	require.True(t, topo.Sharding)
	require.Len(t, topo.Nodes, 4)
	require.Equal(t, RolePrimary, topo.Nodes[0].Role)
	require.Equal(t, "postgres://1.2.3.4:5432", topo.Nodes[0].URL)
	for _, n := range topo.Nodes[1:] {
		require.Equal(t, RoleReplica, n.Role)
	}
}

func TestProductionTopologyScaling(t *testing.T) {
	cases := []struct {
		hosts       []string
		replication int
		shards      int
	}{
		{[]string{"10.0.0.1"}, 1, 1},
		{[]string{"10.0.0.1", "10.0.0.2"}, 2, 1},
		{[]string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, 3, 1},
		{[]string{"a", "b", "c", "d", "e", "f"}, 3, 3},
	}
	for _, tc := range cases {
		topo, err := ProductionTopology(tc.hosts)
		require.NoError(t, err)
		require.Equal(t, tc.replication, topo.ReplicationFactor)
		require.Equal(t, tc.shards, topo.ShardCount)
	}
}

func TestResolveCurrentProductionWithoutHosts(t *testing.T) {
	for _, ips := range [][]string{nil, {}, {" ", ""}} {
		r := NewRegistry(Environment{AppEnv: "production", DatabaseURL: "postgres://db:5432", ClusterIPs: ips})
		topo, err := r.ResolveCurrent()

		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		require.Contains(t, cfgErr.Error(), "cluster IPs not configured for production")
		require.Empty(t, topo.Nodes)
	}
}

func TestRegistryStartupRegistrations(t *testing.T) {
	require.Equal(t, []string{DevelopmentName}, NewRegistry(Environment{}).Names())

	withIPs := NewRegistry(Environment{ClusterIPs: []string{"10.0.0.1"}})
	require.Equal(t, []string{DevelopmentName, ProductionName}, withIPs.Names())
	require.Len(t, withIPs.Get(ProductionName), 1)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(Environment{})

	require.Empty(t, r.Get("staging"))
	_, err := r.Lookup("staging")
	require.ErrorIs(t, err, ErrClusterNotFound)

	staging := Topology{Nodes: []Node{{ID: "s-1", URL: "postgres://s1:5432", Role: RolePrimary}}, ReplicationFactor: 1, ShardCount: 1}
	r.Register("staging", staging)
	require.Len(t, r.Get("staging"), 1)

	// replacing is allowed and callers cannot mutate registry state
	staging.Nodes[0].ID = "mutated"
	r.Register("staging", Topology{Nodes: []Node{{ID: "s-2", Role: RolePrimary}}})
	nodes := r.Get("staging")
	require.Equal(t, "s-2", nodes[0].ID)
	nodes[0].ID = "mutated"
	require.Equal(t, "s-2", r.Get("staging")[0].ID)
}

func TestTopologyPrimaryValidation(t *testing.T) {
	_, err := Topology{Nodes: []Node{{Role: RoleReplica}}}.Primary()
	require.ErrorIs(t, err, ErrInvalidTopology)

	_, err = Topology{Nodes: []Node{{Role: RolePrimary}, {Role: RolePrimary}}}.Primary()
	require.ErrorIs(t, err, ErrInvalidTopology)

	urls, err := Topology{Nodes: []Node{
		{URL: "postgres://r1", Role: RoleReplica},
		{URL: "postgres://p", Role: RolePrimary},
		{URL: "postgres://r2", Role: RoleReplica},
	}}.URLs()
	require.NoError(t, err)
	require.Equal(t, []string{"postgres://p", "postgres://r1", "postgres://r2"}, urls)
}
