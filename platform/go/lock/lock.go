// Package lock provides short-lived mutual exclusion for provisioning steps that must not
// run twice for the same tenant, even across API replicas.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when the key is already held by someone else.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out leases on string keys.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock. Release is idempotent.
type Lease interface {
	Release(ctx context.Context) error
}

// Local is an in-process Locker for single-replica deployments and tests.
type Local struct {
	mu   sync.Mutex
	now  func() time.Time
	held map[string]localEntry
}

type localEntry struct {
	owner   *localLease
	expires time.Time
}

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
	return &Local{now: time.Now, held: make(map[string]localEntry)}
}

// Acquire takes the key unless an unexpired lease holds it.
func (l *Local) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrNotAcquired
	}
	lease := &localLease{locker: l, key: key}
	l.held[key] = localEntry{owner: lease, expires: now.Add(ttl)}
	return lease, nil
}

type localLease struct {
	locker *Local
	key    string
}

func (l *localLease) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if e, ok := l.locker.held[l.key]; ok && e.owner == l {
		delete(l.locker.held, l.key)
	}
	return nil
}

var _ Locker = (*Local)(nil)
