package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// MemoryCluster is an in-process stand-in for the database cluster, used by tests and
// local development. Databases outlive the stores dialed against them.
type MemoryCluster struct {
	mu        sync.Mutex
	strict    bool
	databases map[string]*memoryDatabase
	dials     map[string]int
	dialErrs  map[string]error
	commitErr map[string]error
}

// MemoryClusterOption customises a MemoryCluster.
type MemoryClusterOption func(*MemoryCluster)

// RequireCreatedDatabases makes Dial fail for databases not created through Create.
func RequireCreatedDatabases() MemoryClusterOption {
	return func(c *MemoryCluster) { c.strict = true }
}

// NewMemoryCluster returns an empty cluster.
func NewMemoryCluster(opts ...MemoryClusterOption) *MemoryCluster {
	c := &MemoryCluster{
		databases: make(map[string]*memoryDatabase),
		dials:     make(map[string]int),
		dialErrs:  make(map[string]error),
		commitErr: make(map[string]error),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create registers a database; creating an existing database is a no-op.
func (c *MemoryCluster) Create(name string) error {
	if err := ValidateDatabaseName(name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.databases[name]; !ok {
		c.databases[name] = newMemoryDatabase()
	}
	return nil
}

// Drop removes a database and every document in it.
func (c *MemoryCluster) Drop(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.databases, name)
}

// Names lists existing databases in lexical order.
func (c *MemoryCluster) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.databases))
	for name := range c.databases {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dials reports how many stores were dialed for the database.
func (c *MemoryCluster) Dials(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials[name]
}

// FailDial makes subsequent dials of the database return err; nil clears it.
func (c *MemoryCluster) FailDial(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.dialErrs, name)
		return
	}
	c.dialErrs[name] = err
}

// FailCommit makes subsequent non-empty commits against the database return err and
// apply nothing; nil clears it.
func (c *MemoryCluster) FailCommit(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.commitErr, name)
		return
	}
	c.commitErr[name] = err
}

func (c *MemoryCluster) commitFailure(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commitErr[name]
}

// Dial satisfies Dialer.
func (c *MemoryCluster) Dial(ctx context.Context, cfg DatabaseConfig) (DocumentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.dials[cfg.Database]++
	if err := c.dialErrs[cfg.Database]; err != nil {
		return nil, err
	}

	db, ok := c.databases[cfg.Database]
	if !ok {
		if c.strict {
			return nil, fmt.Errorf("database %q does not exist", cfg.Database)
		}
		db = newMemoryDatabase()
		c.databases[cfg.Database] = db
	}
	return &memoryStore{cluster: c, name: cfg.Database, db: db}, nil
}

type memoryDoc struct {
	body    []byte
	version int64
}

type memoryDatabase struct {
	mu   sync.RWMutex
	docs map[string]map[string]memoryDoc // collection -> id -> doc
}

func newMemoryDatabase() *memoryDatabase {
	return &memoryDatabase{docs: make(map[string]map[string]memoryDoc)}
}

type memoryStore struct {
	cluster *MemoryCluster
	name    string
	db      *memoryDatabase
}

func (s *memoryStore) OpenSession(opts SessionOptions) Session {
	return &memorySession{
		store:    s,
		db:       s.db,
		opts:     opts,
		budget:   requestBudget{max: opts.MaxRequests},
		versions: make(map[string]int64),
		pending:  make(map[string]int),
	}
}

func (s *memoryStore) Ping(ctx context.Context) error {
	s.cluster.mu.Lock()
	defer s.cluster.mu.Unlock()
	if _, ok := s.cluster.databases[s.name]; !ok {
		return fmt.Errorf("database %q does not exist", s.name)
	}
	return nil
}

func (s *memoryStore) Close() {}

type memorySession struct {
	store    *memoryStore
	db       *memoryDatabase
	opts     SessionOptions
	budget   requestBudget
	versions map[string]int64
	ops      []pendingOp
	pending  map[string]int
	closed   bool
}

func (s *memorySession) Load(ctx context.Context, collection, id string, dst any) error {
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

	s.db.mu.RLock()
	doc, ok := s.db.docs[collection][id]
	s.db.mu.RUnlock()
	if !ok {
		return ErrDocumentNotFound
	}

	s.versions[key] = doc.version
	return json.Unmarshal(doc.body, dst)
}

func (s *memorySession) Store(collection, id string, doc any) error {
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

func (s *memorySession) Delete(collection, id string) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := validateDocumentKey(collection, id); err != nil {
		return err
	}
	s.schedule(pendingOp{collection: collection, id: id})
	return nil
}

func (s *memorySession) schedule(op pendingOp) {
	if idx, ok := s.pending[op.key()]; ok {
		s.ops[idx] = op
		return
	}
	s.pending[op.key()] = len(s.ops)
	s.ops = append(s.ops, op)
}

func (s *memorySession) Query(ctx context.Context, collection string, filter map[string]any) ([]json.RawMessage, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if !collectionPattern.MatchString(collection) {
		return nil, fmt.Errorf("invalid collection %q", collection)
	}
	// normalise the filter through JSON so typed values compare like stored ones
	var want map[string]any
	raw, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}
	if err := json.Unmarshal(raw, &want); err != nil {
		return nil, fmt.Errorf("decode filter: %w", err)
	}

	if err := s.budget.spend(); err != nil {
		return nil, err
	}

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	ids := make([]string, 0, len(s.db.docs[collection]))
	for id := range s.db.docs[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []json.RawMessage
	for _, id := range ids {
		doc := s.db.docs[collection][id]
		var fields map[string]any
		if err := json.Unmarshal(doc.body, &fields); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		if matches(fields, want) {
			out = append(out, json.RawMessage(append([]byte(nil), doc.body...)))
		}
	}
	return out, nil
}

func matches(fields, filter map[string]any) bool {
	for k, v := range filter {
		if !reflect.DeepEqual(fields[k], v) {
			return false
		}
	}
	return true
}

func (s *memorySession) Commit(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if len(s.ops) == 0 {
		return nil
	}
	if err := s.budget.spend(); err != nil {
		return err
	}
	if err := s.store.cluster.commitFailure(s.store.name); err != nil {
		return err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	// validate every op before applying any so the commit stays atomic
	if s.opts.OptimisticConcurrency {
		for _, op := range s.ops {
			current, exists := s.db.docs[op.collection][op.id]
			version, loaded := s.versions[op.key()]
			switch {
			case loaded && (!exists || current.version != version):
				return fmt.Errorf("%w: %s", ErrConcurrencyConflict, op.key())
			case !loaded && exists && op.body != nil:
				return fmt.Errorf("%w: %s", ErrConcurrencyConflict, op.key())
			}
		}
	}

	for _, op := range s.ops {
		key := op.key()
		if op.body == nil {
			delete(s.db.docs[op.collection], op.id)
			delete(s.versions, key)
			continue
		}
		coll, ok := s.db.docs[op.collection]
		if !ok {
			coll = make(map[string]memoryDoc)
			s.db.docs[op.collection] = coll
		}
		next := coll[op.id].version + 1
		coll[op.id] = memoryDoc{body: op.body, version: next}
		if s.opts.OptimisticConcurrency {
			s.versions[key] = next
		} else {
			delete(s.versions, key)
		}
	}

	s.ops = nil
	s.pending = make(map[string]int)
	return nil
}

func (s *memorySession) Close() {
	s.closed = true
	s.ops = nil
}

var _ Dialer = (*MemoryCluster)(nil).Dial
