package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

func TestWithTenantRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/tenants/{tenantId}", func(r chi.Router) {
		r.Use(WithTenantRoute("tenantId"))
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			route, ok := tenant.FromContext(req.Context())
			require.True(t, ok)
			_, _ = w.Write([]byte(route.DatabaseName))
		})
	})

	id := tenant.NewID()
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/tenants/"+id.String()+"/", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, tenant.BuildDatabaseName(id), resp.Body.String())

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/tenants/not-a-uuid/", nil))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
