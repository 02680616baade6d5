package persistence

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ConnectionHandle owns the connection to one named database and enforces an
// init-once / dispose-once lifecycle. The store is non-nil iff the handle is initialized.
type ConnectionHandle struct {
	mu     sync.RWMutex
	cfg    DatabaseConfig
	dial   Dialer
	logger *zap.Logger
	store  DocumentStore
}

// HandleOption customises a ConnectionHandle.
type HandleOption func(*ConnectionHandle)

// WithDialer overrides the store dialer (DialPostgres by default).
func WithDialer(d Dialer) HandleOption {
	return func(h *ConnectionHandle) {
		if d != nil {
			h.dial = d
		}
	}
}

// WithLogger attaches a logger used for lifecycle events.
func WithLogger(logger *zap.Logger) HandleOption {
	return func(h *ConnectionHandle) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewConnectionHandle returns a handle in the not-initialized state.
func NewConnectionHandle(cfg DatabaseConfig, opts ...HandleOption) *ConnectionHandle {
	h := &ConnectionHandle{
		cfg:    cfg.WithURLs(cfg.URLs),
		dial:   DialPostgres,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(zap.String("database", cfg.Database))
	return h
}

// Database returns the target database name.
func (h *ConnectionHandle) Database() string { return h.cfg.Database }

// Config returns a copy of the configuration the handle was built with.
func (h *ConnectionHandle) Config() DatabaseConfig { return h.cfg.WithURLs(h.cfg.URLs) }

// Initialize dials the underlying store.
func (h *ConnectionHandle) Initialize(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.store != nil {
		return ErrAlreadyInitialized
	}
	if err := h.cfg.Validate(); err != nil {
		return &InitializationError{Database: h.cfg.Database, Err: err}
	}

	store, err := h.dial(ctx, h.cfg)
	if err != nil {
		return &InitializationError{Database: h.cfg.Database, Err: err}
	}

	h.store = store
	h.logger.Debug("connection handle initialized",
		zap.Strings("urls", h.cfg.URLs),
		zap.Bool("optimistic_concurrency", h.cfg.UseOptimisticConcurrency()),
		zap.Int("max_requests_per_session", h.cfg.MaxRequests()),
	)
	return nil
}

// IsInitialized reports whether the handle currently owns a store.
func (h *ConnectionHandle) IsInitialized() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store != nil
}

// Store exposes the raw store for advanced operations.
func (h *ConnectionHandle) Store() (DocumentStore, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.store == nil {
		return nil, ErrNotInitialized
	}
	return h.store, nil
}

// OpenSession starts a new unit of work bound to this connection.
func (h *ConnectionHandle) OpenSession() (Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.store == nil {
		return nil, ErrNotInitialized
	}
	return h.store.OpenSession(SessionOptions{
		OptimisticConcurrency: h.cfg.UseOptimisticConcurrency(),
		MaxRequests:           h.cfg.MaxRequests(),
	}), nil
}

// WithSession executes fn inside a session and commits when fn succeeds.
func (h *ConnectionHandle) WithSession(ctx context.Context, fn func(s Session) error) error {
	s, err := h.OpenSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := fn(s); err != nil {
		return err
	}
	if err := s.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", h.cfg.Database, err)
	}
	return nil
}

// Dispose releases the store. Disposing a never-initialized or disposed handle is a no-op.
func (h *ConnectionHandle) Dispose() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.store == nil {
		return
	}
	h.store.Close()
	h.store = nil
	h.logger.Debug("connection handle disposed")
}
