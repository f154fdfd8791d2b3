// Package lock serializes critical sections per key. Appointment state
// transitions hold the appointment key; conflict checks additionally hold
// the slot key of the department resource.
package lock

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker runs fn while holding the lock for key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

func AppointmentKey(id uuid.UUID) string {
	return "appointment:" + id.String()
}

// SlotKey identifies one start time of one department resource.
func SlotKey(resource, slot string) string {
	return "slot:" + resource + ":" + slot
}

// LocalLocker is an in-process Locker for single-instance deployments and
// tests. Waiters block until the key is free or ctx is done.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*entry)}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	e := l.acquireEntry(key)
	defer l.releaseEntry(key, e)

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.ch }()

	return fn(ctx)
}

func (l *LocalLocker) acquireEntry(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *LocalLocker) releaseEntry(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
