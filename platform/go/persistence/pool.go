package persistence

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig captures the knobs used to bootstrap a pgxpool for one database.
type PoolConfig struct {
	ConnString          string        // multi-host DSN, see DatabaseConfig.ConnString
	TLSConfig           *tls.Config   // optional client certificate material
	MaxConns            int32         // optional cap for concurrent connections
	MinConns            int32         // optional floor for warm pool size
	MaxConnLifetime     time.Duration // recycle connections after this duration (0 leaves pgx default)
	MaxConnIdleTime     time.Duration // close idle connections after this duration (0 leaves pgx default)
	HealthCheckInterval time.Duration // override pgx health check period (0 leaves pgx default)
}

// NewPool builds a pgxpool.Pool and eagerly verifies connectivity.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("conn string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("parse pgx pool config: %w", err)
	}

	if cfg.TLSConfig != nil {
		if err := applyClientCertificates(poolConfig, cfg.TLSConfig); err != nil {
			return nil, err
		}
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckInterval
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// applyClientCertificates attaches the client certificate to the primary and every fallback TLS config.
func applyClientCertificates(cfg *pgxpool.Config, client *tls.Config) error {
	if cfg.ConnConfig.TLSConfig == nil {
		return errors.New("client certificate requires sslmode other than disable")
	}
	cfg.ConnConfig.TLSConfig.Certificates = client.Certificates
	for _, fb := range cfg.ConnConfig.Fallbacks {
		if fb.TLSConfig != nil {
			fb.TLSConfig.Certificates = client.Certificates
		}
	}
	return nil
}

// ClosePool shuts down the pool gracefully; safe to call with nil.
func ClosePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
