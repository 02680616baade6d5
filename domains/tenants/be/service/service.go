package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/cluster"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/lock"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// ManagementDatabase is the central database holding tenants, partners and the membership mirror.
const ManagementDatabase = "palmyra_management"

const defaultLockTTL = 2 * time.Minute

// TopologyResolver yields the cluster layout tenant databases are placed on.
// *cluster.Registry is the production implementation.
type TopologyResolver interface {
	ResolveCurrent() (cluster.Topology, error)
}

// Config wires the service dependencies.
type Config struct {
	// Management is the connection configuration of the management database. Its
	// credentials and tuning are reused for tenant databases.
	Management  persistence.DatabaseConfig
	Dialer      persistence.Dialer
	Topologies  TopologyResolver
	Provisioner DatabaseProvisioner
	// Locker guards database creation; defaults to an in-process locker.
	Locker lock.Locker
	// Configs validates tenant config payloads; defaults to the embedded JSON schemas.
	Configs ConfigValidator
	Logger  *zap.Logger
	Now     func() time.Time
	LockTTL time.Duration
}

// Service is the tenant provisioning orchestrator. It owns the management connection and
// a cache holding at most one live tenant connection per tenant id.
type Service struct {
	base        persistence.DatabaseConfig
	dial        persistence.Dialer
	topologies  TopologyResolver
	provisioner DatabaseProvisioner
	locker      lock.Locker
	configs     ConfigValidator
	validate    *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
	lockTTL     time.Duration

	mu         sync.Mutex
	closed     bool
	management *persistence.ConnectionHandle
	clients    map[uuid.UUID]*clientEntry
}

// clientEntry is a cache slot. ready is closed once handle or err is set.
type clientEntry struct {
	ready  chan struct{}
	handle *persistence.ConnectionHandle
	err    error
}

// New connects to the management database and returns a ready service.
func New(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Topologies == nil {
		panic("tenants service: topology registry is required")
	}
	if cfg.Provisioner == nil {
		panic("tenants service: database provisioner is required")
	}

	logger := logging.OrNop(cfg.Logger).Named("tenants")
	s := &Service{
		dial:        cfg.Dialer,
		topologies:  cfg.Topologies,
		provisioner: cfg.Provisioner,
		locker:      cfg.Locker,
		configs:     cfg.Configs,
		validate:    newValidator(),
		logger:      logger,
		now:         cfg.Now,
		lockTTL:     cfg.LockTTL,
		clients:     make(map[uuid.UUID]*clientEntry),
	}
	if s.dial == nil {
		s.dial = persistence.DialPostgres
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.configs == nil {
		s.configs = persistence.NewConfigSchemaValidator()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}

	s.base = cfg.Management
	if s.base.Database == "" {
		s.base = s.base.WithDatabase(ManagementDatabase)
	}

	management := s.newHandle(s.base)
	if err := management.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize management database: %w", err)
	}
	s.management = management

	logger.Info("tenant provisioning service ready", zap.String("database", s.base.Database))
	return s, nil
}

func (s *Service) newHandle(cfg persistence.DatabaseConfig) *persistence.ConnectionHandle {
	return persistence.NewConnectionHandle(cfg,
		persistence.WithDialer(s.dial),
		persistence.WithLogger(s.logger),
	)
}

// managementHandle returns the management connection unless the service is closed.
func (s *Service) managementHandle() (*persistence.ConnectionHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServiceClosed
	}
	return s.management, nil
}

func (s *Service) withManagement(ctx context.Context, fn func(persistence.Session) error) error {
	h, err := s.managementHandle()
	if err != nil {
		return err
	}
	return h.WithSession(ctx, fn)
}

// tenantDatabaseConfig targets name on the nodes of the current topology, keeping the
// management credentials and connection options.
func (s *Service) tenantDatabaseConfig(name string) (persistence.DatabaseConfig, cluster.Topology, error) {
	topology, err := s.topologies.ResolveCurrent()
	if err != nil {
		return persistence.DatabaseConfig{}, cluster.Topology{}, fmt.Errorf("resolve topology: %w", err)
	}
	urls, err := topology.URLs()
	if err != nil {
		return persistence.DatabaseConfig{}, cluster.Topology{}, fmt.Errorf("resolve topology: %w", err)
	}
	return s.base.WithDatabase(name).OnEndpoints(urls), topology, nil
}

// GetTenantClient returns the cached connection of a tenant, opening it on first use.
// Concurrent callers for the same tenant share a single initialization.
func (s *Service) GetTenantClient(ctx context.Context, tenantID uuid.UUID) (*persistence.ConnectionHandle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceClosed
	}
	if entry, ok := s.clients[tenantID]; ok {
		s.mu.Unlock()
		select {
		case <-entry.ready:
			return entry.handle, entry.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	entry := &clientEntry{ready: make(chan struct{})}
	s.clients[tenantID] = entry
	s.mu.Unlock()

	handle, err := s.openTenantClient(ctx, tenantID)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(entry.ready)

	current, cached := s.clients[tenantID]
	switch {
	case err != nil:
		if cached && current == entry {
			delete(s.clients, tenantID)
		}
		entry.err = err
	case s.closed:
		handle.Dispose()
		entry.err = ErrServiceClosed
	case !cached || current != entry:
		// evicted by DeleteTenant while connecting
		handle.Dispose()
		entry.err = fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	default:
		entry.handle = handle
	}
	return entry.handle, entry.err
}

func (s *Service) openTenantClient(ctx context.Context, tenantID uuid.UUID) (*persistence.ConnectionHandle, error) {
	t, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cfg, _, err := s.tenantDatabaseConfig(t.DatabaseName)
	if err != nil {
		return nil, err
	}
	h := s.newHandle(cfg)
	if err := h.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("open tenant %s database: %w", tenantID, err)
	}
	s.logger.Debug("tenant client cached",
		zap.String("tenant_id", tenantID.String()),
		zap.String("database", t.DatabaseName),
	)
	return h, nil
}

// evictClient drops the cached connection of one tenant. A connection still being opened
// is disposed by its opener once it notices the eviction.
func (s *Service) evictClient(tenantID uuid.UUID) {
	s.mu.Lock()
	entry, ok := s.clients[tenantID]
	delete(s.clients, tenantID)
	s.mu.Unlock()

	if !ok {
		return
	}
	select {
	case <-entry.ready:
		if entry.handle != nil {
			entry.handle.Dispose()
		}
	default:
	}
}

// CachedClients reports how many tenant connections are cached.
func (s *Service) CachedClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Ping checks the management database.
func (s *Service) Ping(ctx context.Context) error {
	h, err := s.managementHandle()
	if err != nil {
		return err
	}
	store, err := h.Store()
	if err != nil {
		return err
	}
	return store.Ping(ctx)
}

// Close disposes every cached tenant connection and the management connection.
// The service cannot be used afterwards.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	entries := s.clients
	s.clients = make(map[uuid.UUID]*clientEntry)
	management := s.management
	s.management = nil
	s.mu.Unlock()

	for _, entry := range entries {
		select {
		case <-entry.ready:
			if entry.handle != nil {
				entry.handle.Dispose()
			}
		default:
		}
	}
	if management != nil {
		management.Dispose()
	}
	s.logger.Info("tenant provisioning service closed")
}
