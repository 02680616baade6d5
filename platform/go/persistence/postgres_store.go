package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txBeginner exposes the minimal pgx pool behaviour needed to run a unit of work.
type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// pgQuerier is the subset of *pgxpool.Pool used by sessions.
type pgQuerier interface {
	txBeginner
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore keeps JSON documents in a single `documents` table of one database.
type PostgresStore struct {
	pool     *pgxpool.Pool
	database string
}

// DialPostgres connects to the configured database and ensures the documents table exists.
func DialPostgres(ctx context.Context, cfg DatabaseConfig) (DocumentStore, error) {
	connString, err := cfg.ConnString()
	if err != nil {
		return nil, err
	}
	tlsConfig, err := cfg.TLSConfig()
	if err != nil {
		return nil, err
	}

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString, TLSConfig: tlsConfig})
	if err != nil {
		return nil, err
	}

	if err := EnsureDocumentsSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, database: cfg.Database}, nil
}

// Pool exposes the underlying pgx pool.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

func (s *PostgresStore) OpenSession(opts SessionOptions) Session {
	return &pgSession{
		db:       s.pool,
		opts:     opts,
		budget:   requestBudget{max: opts.MaxRequests},
		versions: make(map[string]int64),
		pending:  make(map[string]int),
	}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	ClosePool(s.pool)
}

type pgSession struct {
	db       pgQuerier
	opts     SessionOptions
	budget   requestBudget
	versions map[string]int64 // document versions observed by Load
	ops      []pendingOp
	pending  map[string]int // key -> index in ops
	closed   bool
}

func (s *pgSession) Load(ctx context.Context, collection, id string, dst any) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := validateDocumentKey(collection, id); err != nil {
		return err
	}

	key := collection + "/" + id
	if idx, ok := s.pending[key]; ok {
		if s.ops[idx].body == nil {
			return ErrDocumentNotFound
		}
		return json.Unmarshal(s.ops[idx].body, dst)
	}

	if err := s.budget.spend(); err != nil {
		return err
	}

	var (
		body    []byte
		version int64
	)
	err := s.db.QueryRow(ctx,
		`SELECT body, version FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&body, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("load %s: %w", key, err)
	}

	s.versions[key] = version
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *pgSession) Store(collection, id string, doc any) error {
	if s.closed {
		return ErrSessionClosed
	}
	body, err := encodeDocument(collection, id, doc)
	if err != nil {
		return err
	}
	s.schedule(pendingOp{collection: collection, id: id, body: body})
	return nil
}

func (s *pgSession) Delete(collection, id string) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := validateDocumentKey(collection, id); err != nil {
		return err
	}
	s.schedule(pendingOp{collection: collection, id: id})
	return nil
}

func (s *pgSession) schedule(op pendingOp) {
	if idx, ok := s.pending[op.key()]; ok {
		s.ops[idx] = op
		return
	}
	s.pending[op.key()] = len(s.ops)
	s.ops = append(s.ops, op)
}

func (s *pgSession) Query(ctx context.Context, collection string, filter map[string]any) ([]json.RawMessage, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if !collectionPattern.MatchString(collection) {
		return nil, fmt.Errorf("invalid collection %q", collection)
	}
	if filter == nil {
		filter = map[string]any{}
	}
	containment, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}

	if err := s.budget.spend(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND body @> $2::jsonb ORDER BY id`,
		collection, string(containment),
	)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		out = append(out, json.RawMessage(body))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return out, nil
}

func (s *pgSession) Commit(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if len(s.ops) == 0 {
		return nil
	}
	if err := s.budget.spend(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, op := range s.ops {
		tag, err := s.apply(ctx, tx, op)
		if err != nil {
			return fmt.Errorf("write %s: %w", op.key(), err)
		}
		if s.opts.OptimisticConcurrency && tag.RowsAffected() == 0 && !s.isBlindDelete(op) {
			return fmt.Errorf("%w: %s", ErrConcurrencyConflict, op.key())
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	for _, op := range s.ops {
		key := op.key()
		switch {
		case op.body == nil:
			delete(s.versions, key)
		case s.opts.OptimisticConcurrency:
			s.versions[key]++
		default:
			delete(s.versions, key)
		}
	}
	s.ops = nil
	s.pending = make(map[string]int)
	return nil
}

// isBlindDelete reports deletes of documents never loaded in this session; those never conflict.
func (s *pgSession) isBlindDelete(op pendingOp) bool {
	_, loaded := s.versions[op.key()]
	return op.body == nil && !loaded
}

func (s *pgSession) apply(ctx context.Context, tx pgx.Tx, op pendingOp) (pgconn.CommandTag, error) {
	version, loaded := s.versions[op.key()]
	optimistic := s.opts.OptimisticConcurrency

	switch {
	case op.body == nil && optimistic && loaded:
		return tx.Exec(ctx,
			`DELETE FROM documents WHERE collection = $1 AND id = $2 AND version = $3`,
			op.collection, op.id, version)
	case op.body == nil:
		return tx.Exec(ctx,
			`DELETE FROM documents WHERE collection = $1 AND id = $2`,
			op.collection, op.id)
	case optimistic && loaded:
		return tx.Exec(ctx,
			`UPDATE documents SET body = $3::jsonb, version = version + 1, updated_at = now()
			 WHERE collection = $1 AND id = $2 AND version = $4`,
			op.collection, op.id, string(op.body), version)
	case optimistic:
		return tx.Exec(ctx,
			`INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3::jsonb)
			 ON CONFLICT (collection, id) DO NOTHING`,
			op.collection, op.id, string(op.body))
	default:
		return tx.Exec(ctx,
			`INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3::jsonb)
			 ON CONFLICT (collection, id) DO UPDATE
			 SET body = EXCLUDED.body, version = documents.version + 1, updated_at = now()`,
			op.collection, op.id, string(op.body))
	}
}

func (s *pgSession) Close() {
	s.closed = true
	s.ops = nil
}

var _ DocumentStore = (*PostgresStore)(nil)
