// Package setups builds the process-level dependencies shared by the api server and the cli.
package setups

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/lock"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// AdminDatabase is the maintenance database CREATE/DROP DATABASE statements run against.
const AdminDatabase = "postgres"

const lockPrefix = "palmyra:tenancy:lock:"

// Locker returns a redis backed locker when redisURL is set, otherwise an in-process one.
// The returned close func is never nil.
func Locker(ctx context.Context, redisURL string, logger *zap.Logger) (lock.Locker, func(), error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		logger.Info("using in-process tenant locks")
		return lock.NewLocal(), func() {}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("using redis tenant locks", zap.String("addr", opts.Addr))
	return lock.NewRedis(client, lockPrefix), func() { _ = client.Close() }, nil
}

// AdminPool opens a pool on the maintenance database of the cluster described by cfg.
func AdminPool(ctx context.Context, cfg persistence.DatabaseConfig) (*pgxpool.Pool, error) {
	admin := cfg.WithDatabase(AdminDatabase)
	dsn, err := admin.ConnString()
	if err != nil {
		return nil, err
	}
	tlsCfg, err := admin.TLSConfig()
	if err != nil {
		return nil, err
	}
	return persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString: dsn,
		TLSConfig:  tlsCfg,
		MaxConns:   4,
	})
}
