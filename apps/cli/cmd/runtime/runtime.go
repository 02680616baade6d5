// Package runtime assembles the tenancy stack for one cli invocation from the environment.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/provisioning"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/cluster"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/dbconfig"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/lock"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/setups"
)

type settings struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"warn"`
	RedisURL    string `env:"REDIS_URL"`
	Provisioner provisioning.Settings
}

// Env is the partially built stack: config, logger, topology registry and provisioner backend.
type Env struct {
	Config   dbconfig.Config
	Logger   *zap.Logger
	Registry *cluster.Registry
	Backend  *provisioning.Backend

	locker  lock.Locker
	closers []func()
}

// Load reads the environment and opens the provisioner backend.
func Load(ctx context.Context) (*Env, error) {
	var s settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("load cli settings: %w", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "tenancy-cli",
		Level:     s.LogLevel,
		Output:    os.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := dbconfig.Load()
	if err != nil {
		return nil, err
	}

	backend, err := provisioning.Open(ctx, s.Provisioner, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	e := &Env{
		Config:   cfg,
		Logger:   logger,
		Registry: cluster.NewRegistry(cfg.Cluster),
		Backend:  backend,
		closers:  []func(){backend.Close},
	}

	locker, closeLocker, err := setups.Locker(ctx, s.RedisURL, logger)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.closers = append(e.closers, closeLocker)
	e.locker = locker
	return e, nil
}

// Service connects to the management database.
func (e *Env) Service(ctx context.Context) (*service.Service, error) {
	svc, err := service.New(ctx, service.Config{
		Management:  e.Config.Database,
		Dialer:      e.Backend.Dialer,
		Topologies:  e.Registry,
		Provisioner: e.Backend.Provisioner,
		Locker:      e.locker,
		Logger:      e.Logger,
	})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, svc.Close)
	return svc, nil
}

// Close releases resources in reverse order of acquisition.
func (e *Env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
	_ = e.Logger.Sync()
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
