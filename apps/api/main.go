package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	tenantshandler "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/handler"
	tenantsprov "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/provisioning"
	tenantsservice "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/cluster"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/dbconfig"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/palmyra-tenancy/platform/go/middleware"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/setups"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	RedisURL        string        `env:"REDIS_URL"`
	LockTTL         time.Duration `env:"TENANT_LOCK_TTL" envDefault:"2m"`

	Provisioner tenantsprov.Settings
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "tenancy-api",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	dbCfg, err := dbconfig.Load()
	if err != nil {
		logger.Fatal("load database config", zap.Error(err))
	}

	registry := cluster.NewRegistry(dbCfg.Cluster)
	if _, err := registry.ResolveCurrent(); err != nil {
		// Tenant creation fails fast until CLUSTER_IPS is fixed; reads keep working.
		logger.Warn("no topology for current environment", zap.Error(err))
	}

	backend, err := tenantsprov.Open(ctx, cfg.Provisioner, dbCfg.Database, logger)
	if err != nil {
		logger.Fatal("init provisioner", zap.Error(err))
	}
	defer backend.Close()

	locker, closeLocker, err := setups.Locker(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal("init locker", zap.Error(err))
	}
	defer closeLocker()

	tenantService, err := tenantsservice.New(ctx, tenantsservice.Config{
		Management:  dbCfg.Database,
		Dialer:      backend.Dialer,
		Topologies:  registry,
		Provisioner: backend.Provisioner,
		Locker:      locker,
		Logger:      logger,
		LockTTL:     cfg.LockTTL,
	})
	if err != nil {
		logger.Fatal("init tenant service", zap.Error(err))
	}
	defer tenantService.Close()

	tenantHTTPHandler := tenantshandler.New(tenantService, registry, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := tenantService.Ping(r.Context()); err != nil {
			platformlogging.FromRequest(r, logger).Warn("readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	apiRouter := chi.NewRouter()
	apiRouter.Use(platformmiddleware.RequestTrace)
	apiRouter.Mount("/", tenantHTTPHandler.Routes())

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server",
			zap.String("port", cfg.Port),
			zap.String("appEnv", dbCfg.Cluster.AppEnv),
			zap.String("provisioner", cfg.Provisioner.Backend),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
