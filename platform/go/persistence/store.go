package persistence

import (
	"context"
	"encoding/json"
	"fmt"
)

// DocumentStore is the engine binding a ConnectionHandle owns once initialized.
type DocumentStore interface {
	// OpenSession starts a new unit of work.
	OpenSession(opts SessionOptions) Session
	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error
	// Close releases every resource held by the store.
	Close()
}

// Dialer builds a DocumentStore for the provided configuration.
type Dialer func(ctx context.Context, cfg DatabaseConfig) (DocumentStore, error)

// SessionOptions tune a single unit of work.
type SessionOptions struct {
	OptimisticConcurrency bool
	MaxRequests           int
}

// Session is a unit of work: reads hit the store immediately, writes are buffered until Commit.
type Session interface {
	// Load decodes the document into dst; ErrDocumentNotFound when absent.
	Load(ctx context.Context, collection, id string, dst any) error
	// Store schedules an insert or replace of the document.
	Store(collection, id string, doc any) error
	// Delete schedules removal of the document.
	Delete(collection, id string) error
	// Query returns every document whose top-level fields equal the filter values.
	Query(ctx context.Context, collection string, filter map[string]any) ([]json.RawMessage, error)
	// Commit applies the buffered writes atomically.
	Commit(ctx context.Context) error
	// Close discards uncommitted writes. Safe to call more than once.
	Close()
}

// QueryInto runs a session query and decodes each match into a new T.
func QueryInto[T any](ctx context.Context, s Session, collection string, filter map[string]any) ([]T, error) {
	raws, err := s.Query(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", collection, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// pendingOp is a buffered write inside a session.
type pendingOp struct {
	collection string
	id         string
	body       []byte // nil for deletes
}

func (op pendingOp) key() string { return op.collection + "/" + op.id }

// requestBudget counts round trips issued by one session.
type requestBudget struct {
	max  int
	used int
}

func (b *requestBudget) spend() error {
	b.used++
	if b.max > 0 && b.used > b.max {
		return fmt.Errorf("%w: limit %d", ErrTooManyRequests, b.max)
	}
	return nil
}

func encodeDocument(collection, id string, doc any) ([]byte, error) {
	if err := validateDocumentKey(collection, id); err != nil {
		return nil, err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if len(body) == 0 || body[0] != '{' {
		return nil, fmt.Errorf("document %s/%s must encode to a JSON object", collection, id)
	}
	return body, nil
}
