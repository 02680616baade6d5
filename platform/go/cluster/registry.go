package cluster

import (
	"sort"
	"strings"
	"sync"
)

// Environment holds the signals used to pick the current topology.
type Environment struct {
	// AppEnv is the deployment marker; only "production" selects the production topology.
	AppEnv string `env:"APP_ENV" envDefault:"development"`
	// DatabaseURL is the configured cluster URL; a localhost URL forces development.
	DatabaseURL string `env:"DATABASE_URL"`
	// ClusterIPs is the comma separated production host list.
	ClusterIPs []string `env:"CLUSTER_IPS" envSeparator:","`
}

// IsDevelopment reports whether the environment points at a local cluster.
func (e Environment) IsDevelopment() bool {
	if !strings.EqualFold(strings.TrimSpace(e.AppEnv), "production") {
		return true
	}
	return strings.Contains(e.DatabaseURL, "localhost")
}

// Registry maps topology names to topologies. It is owned by the composition root
// and shared by reference; every method is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	env        Environment
	topologies map[string]Topology
}

// NewRegistry registers the development topology and, when host IPs are present, production.
func NewRegistry(env Environment) *Registry {
	r := &Registry{
		env:        env,
		topologies: make(map[string]Topology),
	}
	r.Register(DevelopmentName, DevelopmentTopology())
	if prod, err := ProductionTopology(env.ClusterIPs); err == nil {
		r.Register(ProductionName, prod)
	}
	return r
}

// Register inserts or replaces a named topology. Node roles are not validated here.
func (r *Registry) Register(name string, t Topology) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topologies[name] = cloneTopology(t)
}

// Get returns the nodes of a registered topology, or an empty slice when unknown.
func (r *Registry) Get(name string) []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topologies[name]
	if !ok {
		return []Node{}
	}
	return append([]Node(nil), t.Nodes...)
}

// Lookup returns a registered topology or ErrClusterNotFound.
func (r *Registry) Lookup(name string) (Topology, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topologies[name]
	if !ok {
		return Topology{}, ErrClusterNotFound
	}
	return cloneTopology(t), nil
}

// Names lists registered topology names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.topologies))
	for name := range r.topologies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ResolveCurrent recomputes the topology from the environment on every call;
// the registered entries are a convenience cache and are never trusted here.
func (r *Registry) ResolveCurrent() (Topology, error) {
	if r.env.IsDevelopment() {
		return DevelopmentTopology(), nil
	}
	return ProductionTopology(r.env.ClusterIPs)
}

// Environment returns the signals the registry resolves against.
func (r *Registry) Environment() Environment {
	env := r.env
	env.ClusterIPs = append([]string(nil), r.env.ClusterIPs...)
	return env
}

func cloneTopology(t Topology) Topology {
	t.Nodes = append([]Node(nil), t.Nodes...)
	return t
}
