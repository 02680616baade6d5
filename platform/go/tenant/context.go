package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Route captures the resolved database routing for a tenant-scoped request.
type Route struct {
	TenantID     uuid.UUID
	ShortID      string
	DatabaseName string
}

// NewRoute derives the routing metadata for a tenant id.
func NewRoute(id uuid.UUID) Route {
	return Route{
		TenantID:     id,
		ShortID:      ShortID(id),
		DatabaseName: BuildDatabaseName(id),
	}
}

type ctxKey string

const routeKey ctxKey = "PALMYRA_TENANT_ROUTE"

// WithRoute returns a derived context carrying the tenant Route.
func WithRoute(ctx context.Context, route Route) context.Context {
	return context.WithValue(ctx, routeKey, route)
}

// FromContext extracts the tenant Route and a boolean indicating presence.
func FromContext(ctx context.Context) (Route, bool) {
	route, ok := ctx.Value(routeKey).(Route)
	return route, ok
}
