package provisioning

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// EndpointError is a non-success answer from the cluster admin endpoint.
type EndpointError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("admin endpoint %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// HTTPConfig points the provisioner at the cluster admin surface.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	// TLS carries the client certificate when the endpoint requires one.
	TLS    *tls.Config
	Logger *zap.Logger
}

// HTTPProvisioner drives the cluster admin HTTP endpoint. Calls are never retried.
type HTTPProvisioner struct {
	client *resty.Client
	logger *zap.Logger
}

type createDatabaseBody struct {
	Name              string   `json:"name"`
	ReplicationFactor int      `json:"replicationFactor"`
	Nodes             []string `json:"nodes,omitempty"`
	Sharded           bool     `json:"sharded"`
	ShardCount        int      `json:"shardCount,omitempty"`
}

type databaseListBody struct {
	Databases []struct {
		Name string `json:"name"`
	} `json:"databases"`
}

func NewHTTPProvisioner(cfg HTTPConfig) *HTTPProvisioner {
	if cfg.BaseURL == "" {
		panic("http provisioner requires base url")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.TLS != nil {
		client.SetTLSClientConfig(cfg.TLS)
	}

	return &HTTPProvisioner{client: client, logger: logging.OrNop(cfg.Logger)}
}

// Ensure asks the cluster to create the database. A conflict means it already exists.
func (p *HTTPProvisioner) Ensure(ctx context.Context, req service.DatabaseRequest) (service.DatabaseResult, error) {
	if err := persistence.ValidateDatabaseName(req.Name); err != nil {
		return service.DatabaseResult{}, err
	}

	body := createDatabaseBody{
		Name:              req.Name,
		ReplicationFactor: req.ReplicationFactor,
		Sharded:           req.Topology.Sharding,
		ShardCount:        req.Topology.ShardCount,
	}
	for _, n := range req.Topology.Nodes {
		body.Nodes = append(body.Nodes, n.ID)
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		Put("/admin/databases")
	if err != nil {
		return service.DatabaseResult{}, fmt.Errorf("create database %s: %w", req.Name, err)
	}
	if resp.StatusCode() == http.StatusConflict {
		return service.DatabaseResult{Ready: true}, nil
	}
	if resp.IsError() {
		return service.DatabaseResult{}, endpointError(resp)
	}

	p.logger.Info("tenant database created",
		zap.String("database", req.Name),
		zap.Int("replication_factor", req.ReplicationFactor),
	)
	return service.DatabaseResult{Ready: true}, nil
}

func (p *HTTPProvisioner) Check(ctx context.Context, req service.DatabaseRequest) (service.DatabaseResult, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("name", req.Name).
		Get("/admin/databases/{name}")
	if err != nil {
		return service.DatabaseResult{}, fmt.Errorf("check database %s: %w", req.Name, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return service.DatabaseResult{Ready: false}, nil
	case resp.IsError():
		return service.DatabaseResult{}, endpointError(resp)
	}
	return service.DatabaseResult{Ready: true}, nil
}

// Drop deletes the database. A missing database is not an error.
func (p *HTTPProvisioner) Drop(ctx context.Context, name string) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("name", name).
		Delete("/admin/databases/{name}")
	if err != nil {
		return fmt.Errorf("drop database %s: %w", name, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return endpointError(resp)
	}
	p.logger.Info("tenant database dropped", zap.String("database", name))
	return nil
}

func (p *HTTPProvisioner) List(ctx context.Context) ([]string, error) {
	var out databaseListBody
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/admin/databases")
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	if resp.IsError() {
		return nil, endpointError(resp)
	}

	names := make([]string, 0, len(out.Databases))
	for _, db := range out.Databases {
		names = append(names, db.Name)
	}
	return names, nil
}

func endpointError(resp *resty.Response) error {
	return &EndpointError{
		Method: resp.Request.Method,
		Path:   resp.Request.URL,
		Status: resp.StatusCode(),
		Body:   resp.String(),
	}
}

var _ service.DatabaseProvisioner = (*HTTPProvisioner)(nil)
