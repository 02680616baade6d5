package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	sqlassets "github.com/zenGate-Global/palmyra-tenancy/database"
)

// documentsBootstrapLock serialises concurrent bootstraps of the same database.
const documentsBootstrapLock = 727_001

// EnsureDocumentsSchema applies the embedded documents DDL in a single transaction.
// The DDL is idempotent; an advisory lock keeps parallel dials from racing on catalog rows.
func EnsureDocumentsSchema(ctx context.Context, pool txBeginner) error {
	if pool == nil {
		return fmt.Errorf("ensure documents schema: pool is required")
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, documentsBootstrapLock); err != nil {
		return fmt.Errorf("acquire bootstrap lock: %w", err)
	}

	for _, stmt := range splitStatements(sqlassets.DocumentsSQL) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply documents ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func splitStatements(sql string) []string {
	raw := strings.Split(sql, ";")
	out := make([]string, 0, len(raw))
	for _, stmt := range raw {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
