package cluster

import (
	"fmt"
	"strings"
)

// Role is a node's responsibility inside a topology.
type Role string

const (
	RolePrimary Role = "primary"
	RoleReplica Role = "replica"
)

// Node is one member of a database cluster.
type Node struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	StudioURL string `json:"studioUrl"`
	TCPPort   int    `json:"tcpPort"`
	Role      Role   `json:"role"`
}

// Topology describes the nodes a connection talks to and how data is spread across them.
type Topology struct {
	Nodes             []Node `json:"nodes"`
	ReplicationFactor int    `json:"replicationFactor"`
	Sharding          bool   `json:"sharding"`
	ShardCount        int    `json:"shardCount"`
}

const (
	DevelopmentName = "development"
	ProductionName  = "production"

	productionPort       = 5432
	productionStudioPort = 8080
	maxReplicationFactor = 3
)

// DevelopmentTopology is the fixed three node localhost cluster.
func DevelopmentTopology() Topology {
	return Topology{
		Nodes: []Node{
			{ID: "node-1", URL: "postgres://localhost:5432", StudioURL: "http://localhost:8080", TCPPort: 5432, Role: RolePrimary},
			{ID: "node-2", URL: "postgres://localhost:5433", StudioURL: "http://localhost:8081", TCPPort: 5433, Role: RoleReplica},
			{ID: "node-3", URL: "postgres://localhost:5434", StudioURL: "http://localhost:8082", TCPPort: 5434, Role: RoleReplica},
		},
		ReplicationFactor: 3,
		Sharding:          false,
		ShardCount:        1,
	}
}

// ProductionTopology derives a topology from host IPs: the first host is primary,
// replication factor is min(hosts, 3) and shard count max(1, hosts/2).
func ProductionTopology(hosts []string) (Topology, error) {
	cleaned := cleanHosts(hosts)
	if len(cleaned) == 0 {
		return Topology{}, &ConfigurationError{Setting: "CLUSTER_IPS", Reason: "cluster IPs not configured for production"}
	}

	nodes := make([]Node, 0, len(cleaned))
	for i, host := range cleaned {
		role := RoleReplica
		if i == 0 {
			role = RolePrimary
		}
		nodes = append(nodes, Node{
			ID:        fmt.Sprintf("node-%d", i+1),
			URL:       fmt.Sprintf("postgres://%s:%d", host, productionPort),
			StudioURL: fmt.Sprintf("http://%s:%d", host, productionStudioPort),
			TCPPort:   productionPort,
			Role:      role,
		})
	}

	shards := len(cleaned) / 2
	if shards < 1 {
		shards = 1
	}
	return Topology{
		Nodes:             nodes,
		ReplicationFactor: min(len(cleaned), maxReplicationFactor),
		Sharding:          shards > 1,
		ShardCount:        shards,
	}, nil
}

func cleanHosts(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// Primary returns the single primary node, failing when the topology has zero or several.
func (t Topology) Primary() (Node, error) {
	var (
		primary Node
		count   int
	)
	for _, n := range t.Nodes {
		if n.Role == RolePrimary {
			primary = n
			count++
		}
	}
	if count != 1 {
		return Node{}, fmt.Errorf("%w: %d primary nodes", ErrInvalidTopology, count)
	}
	return primary, nil
}

// URLs lists node endpoints with the primary first, then replicas in declaration order.
func (t Topology) URLs() ([]string, error) {
	primary, err := t.Primary()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(t.Nodes))
	out = append(out, primary.URL)
	for _, n := range t.Nodes {
		if n.Role != RolePrimary {
			out = append(out, n.URL)
		}
	}
	return out, nil
}
