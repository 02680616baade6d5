package service

import (
	"context"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/cluster"
)

// DatabaseProvisioner creates and drops the physical tenant databases.
// Ensure is mutating/idempotent, Check is read-only.
type DatabaseProvisioner interface {
	Ensure(ctx context.Context, req DatabaseRequest) (DatabaseResult, error)
	Check(ctx context.Context, req DatabaseRequest) (DatabaseResult, error)
	Drop(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
}

// DatabaseRequest names the database to provision and the topology it should span.
type DatabaseRequest struct {
	Name              string
	ReplicationFactor int
	Topology          cluster.Topology
}

type DatabaseResult struct {
	Ready bool
}

// ConfigValidator checks a tenant config payload against the schema registered for its type.
type ConfigValidator interface {
	Validate(ctx context.Context, name string, payload []byte) error
}
