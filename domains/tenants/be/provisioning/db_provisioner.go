package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

const pgDuplicateDatabase = "42P04"

// execQuerier is the subset of *pgxpool.Pool used for database DDL.
type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DBProvisioner creates tenant databases with SQL DDL on a maintenance connection.
// The documents table is created by the store on first dial.
type DBProvisioner struct {
	pool   execQuerier
	logger *zap.Logger
}

func NewDBProvisioner(pool execQuerier, logger *zap.Logger) *DBProvisioner {
	if pool == nil {
		panic("db provisioner requires pool")
	}
	return &DBProvisioner{pool: pool, logger: logging.OrNop(logger)}
}

func (p *DBProvisioner) Ensure(ctx context.Context, req service.DatabaseRequest) (service.DatabaseResult, error) {
	if err := persistence.ValidateDatabaseName(req.Name); err != nil {
		return service.DatabaseResult{}, err
	}

	exists, err := p.exists(ctx, req.Name)
	if err != nil {
		return service.DatabaseResult{}, err
	}
	if exists {
		return service.DatabaseResult{Ready: true}, nil
	}

	stmt := "CREATE DATABASE " + pgx.Identifier{req.Name}.Sanitize()
	if _, err := p.pool.Exec(ctx, stmt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgDuplicateDatabase {
			return service.DatabaseResult{Ready: true}, nil
		}
		return service.DatabaseResult{}, fmt.Errorf("create database %s: %w", req.Name, err)
	}

	p.logger.Info("tenant database created", zap.String("database", req.Name))
	return service.DatabaseResult{Ready: true}, nil
}

func (p *DBProvisioner) Check(ctx context.Context, req service.DatabaseRequest) (service.DatabaseResult, error) {
	exists, err := p.exists(ctx, req.Name)
	if err != nil {
		return service.DatabaseResult{}, err
	}
	return service.DatabaseResult{Ready: exists}, nil
}

// Drop terminates open connections and removes the database. Missing databases are ignored.
func (p *DBProvisioner) Drop(ctx context.Context, name string) error {
	if err := persistence.ValidateDatabaseName(name); err != nil {
		return err
	}
	stmt := "DROP DATABASE IF EXISTS " + pgx.Identifier{name}.Sanitize() + " WITH (FORCE)"
	if _, err := p.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("drop database %s: %w", name, err)
	}
	p.logger.Info("tenant database dropped", zap.String("database", name))
	return nil
}

// List returns every tenant database on the server.
func (p *DBProvisioner) List(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT datname FROM pg_database WHERE starts_with(datname, $1) ORDER BY datname`,
		tenant.DatabasePrefix,
	)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan databases: %w", err)
	}
	return names, nil
}

func (p *DBProvisioner) exists(ctx context.Context, name string) (bool, error) {
	var found bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`,
		strings.TrimSpace(name),
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check database %s: %w", name, err)
	}
	return found, nil
}

var _ service.DatabaseProvisioner = (*DBProvisioner)(nil)
