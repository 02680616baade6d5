package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/handler"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/provisioning"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/cluster"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

type testEnv struct {
	svc    *service.Service
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mc := persistence.NewMemoryCluster(persistence.RequireCreatedDatabases())
	require.NoError(t, mc.Create(service.ManagementDatabase))

	registry := cluster.NewRegistry(cluster.Environment{AppEnv: "development"})
	svc, err := service.New(context.Background(), service.Config{
		Management:  persistence.DatabaseConfig{URLs: []string{"postgres://localhost:5432"}},
		Dialer:      mc.Dial,
		Topologies:  registry,
		Provisioner: provisioning.NewMemoryProvisioner(mc),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	h := handler.New(svc, registry, zap.NewNop())
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &testEnv{svc: svc, server: srv}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) createTenant(t *testing.T) service.Tenant {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/tenants", map[string]any{
		"name":  "Acme",
		"plan":  "standard",
		"owner": map[string]any{"userId": "owner-1", "email": "owner@acme.test"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[service.Tenant](t, resp)
}

func TestCreateAndFetchTenant(t *testing.T) {
	env := newTestEnv(t)

	created := env.createTenant(t)
	require.NotEqual(t, uuid.Nil, created.ID)
	require.Equal(t, service.StatusActive, created.Status)

	resp := env.do(t, http.MethodGet, "/tenants/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decode[service.Tenant](t, resp)
	require.Equal(t, created.ID, fetched.ID)
	require.Equal(t, created.DatabaseName, fetched.DatabaseName)
}

func TestCreateTenantValidationProblem(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/tenants", map[string]any{"plan": "gold"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	problem := decode[handler.ProblemDetails](t, resp)
	require.Equal(t, "https://palmyra.pro/problems/validation-error", problem.Type)
	require.Contains(t, problem.Errors, "CreateTenantInput.Name")
	require.Contains(t, problem.Errors, "CreateTenantInput.Plan")
}

func TestUnknownFieldsRejected(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/tenants", map[string]any{"name": "Acme", "colour": "red"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTenantNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/tenants/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	problem := decode[handler.ProblemDetails](t, resp)
	require.Equal(t, http.StatusNotFound, problem.Status)
}

func TestInvalidTenantID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/tenants/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMembersAndUserTenants(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTenant(t)

	resp := env.do(t, http.MethodPost, "/tenants/"+created.ID.String()+"/members", map[string]any{
		"userId": "user-7",
		"role":   "viewer",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/users/user-7/tenants", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[struct {
		Items []service.Tenant `json:"items"`
	}](t, resp)
	require.Len(t, list.Items, 1)
	require.Equal(t, created.ID, list.Items[0].ID)

	resp = env.do(t, http.MethodDelete, "/tenants/"+created.ID.String()+"/members/user-7", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/tenants/"+created.ID.String()+"/members/user-7", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfigRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTenant(t)
	path := "/tenants/" + created.ID.String() + "/configs/system"

	resp := env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	before := decode[service.TenantConfig](t, resp)

	resp = env.do(t, http.MethodPatch, path, map[string]any{"timezone": "Europe/Madrid"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	after := decode[service.TenantConfig](t, resp)
	require.Equal(t, before.Version+1, after.Version)
	require.Equal(t, "Europe/Madrid", after.Config["timezone"])
}

func TestDeleteTenant(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTenant(t)

	resp := env.do(t, http.MethodDelete, "/tenants/"+created.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/tenants/"+created.ID.String(), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTopology(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/topology", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Registered []string         `json:"registered"`
		Current    cluster.Topology `json:"current"`
	}](t, resp)
	require.Contains(t, body.Registered, cluster.DevelopmentName)
	require.Len(t, body.Current.Nodes, 3)
}

func TestClosedServiceIsUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.svc.Close()

	resp := env.do(t, http.MethodGet, "/tenants", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
