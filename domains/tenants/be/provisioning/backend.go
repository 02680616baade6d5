package provisioning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/setups"
)

const (
	BackendPostgres = "postgres"
	BackendHTTP     = "http"
	BackendMemory   = "memory"
)

// Settings selects how tenant databases are created.
type Settings struct {
	Backend string        `env:"PROVISIONER_BACKEND" envDefault:"postgres"`
	URL     string        `env:"PROVISIONER_URL"`
	Timeout time.Duration `env:"PROVISIONER_TIMEOUT" envDefault:"30s"`
}

// Backend bundles a provisioner with the dialer that reaches the databases it creates.
type Backend struct {
	Provisioner service.DatabaseProvisioner
	Dialer      persistence.Dialer
	close       func()
}

// Close releases whatever the backend opened.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Open builds the backend named in s. db describes the cluster used by the postgres backend.
func Open(ctx context.Context, s Settings, db persistence.DatabaseConfig, logger *zap.Logger) (*Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s.Backend)) {
	case BackendPostgres, "":
		pool, err := setups.AdminPool(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("open admin pool: %w", err)
		}
		return &Backend{
			Provisioner: NewDBProvisioner(pool, logger),
			Dialer:      persistence.DialPostgres,
			close:       func() { persistence.ClosePool(pool) },
		}, nil
	case BackendHTTP:
		if strings.TrimSpace(s.URL) == "" {
			return nil, fmt.Errorf("PROVISIONER_URL is required for the %s backend", BackendHTTP)
		}
		tlsCfg, err := db.TLSConfig()
		if err != nil {
			return nil, err
		}
		return &Backend{
			Provisioner: NewHTTPProvisioner(HTTPConfig{BaseURL: s.URL, Timeout: s.Timeout, TLS: tlsCfg, Logger: logger}),
			Dialer:      persistence.DialPostgres,
		}, nil
	case BackendMemory:
		mc := persistence.NewMemoryCluster(persistence.RequireCreatedDatabases())
		if err := mc.Create(db.Database); err != nil {
			return nil, err
		}
		logger.Warn("using in-memory databases; data is lost on exit")
		return &Backend{Provisioner: NewMemoryProvisioner(mc), Dialer: mc.Dial}, nil
	default:
		return nil, fmt.Errorf("unknown provisioner backend %q (use %s, %s or %s)", s.Backend, BackendPostgres, BackendHTTP, BackendMemory)
	}
}
