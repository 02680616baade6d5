package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// WithTenantRoute parses the tenant id from the named chi URL parameter and attaches tenant.Route to context.
func WithTenantRoute(param string) func(http.Handler) http.Handler {
	if param == "" {
		panic("tenant middleware: url parameter name is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, param))
			if err != nil {
				http.Error(w, "invalid tenant id", http.StatusBadRequest)
				return
			}
			ctx := tenant.WithRoute(r.Context(), tenant.NewRoute(id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
