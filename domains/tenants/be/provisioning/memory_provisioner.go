package provisioning

import (
	"context"
	"slices"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// MemoryProvisioner creates databases inside an in-process MemoryCluster; used for local runs.
type MemoryProvisioner struct {
	cluster *persistence.MemoryCluster
}

func NewMemoryProvisioner(cluster *persistence.MemoryCluster) *MemoryProvisioner {
	if cluster == nil {
		panic("memory provisioner requires cluster")
	}
	return &MemoryProvisioner{cluster: cluster}
}

func (p *MemoryProvisioner) Ensure(_ context.Context, req service.DatabaseRequest) (service.DatabaseResult, error) {
	if err := p.cluster.Create(req.Name); err != nil {
		return service.DatabaseResult{}, err
	}
	return service.DatabaseResult{Ready: true}, nil
}

func (p *MemoryProvisioner) Check(_ context.Context, req service.DatabaseRequest) (service.DatabaseResult, error) {
	return service.DatabaseResult{Ready: slices.Contains(p.cluster.Names(), req.Name)}, nil
}

func (p *MemoryProvisioner) Drop(_ context.Context, name string) error {
	p.cluster.Drop(name)
	return nil
}

func (p *MemoryProvisioner) List(context.Context) ([]string, error) {
	return p.cluster.Names(), nil
}

var _ service.DatabaseProvisioner = (*MemoryProvisioner)(nil)
