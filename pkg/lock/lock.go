// Package lock serializes posting attempts per event identifier, so a
// concurrent second attempt either waits for the first or fails fast as a
// duplicate.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrHeld is returned when the lock for an event is already held and the
// locker does not wait. Callers treat it as an already-handled posting,
// not as a user-facing error.
var ErrHeld = errors.New("posting lock already held")

// Locker guards a single event's posting critical section. Acquire blocks
// until the lock is available or the context is done; the returned release
// function must always be called.
type Locker interface {
	Acquire(ctx context.Context, eventID string) (release func(), err error)
}

// KeyedMutex is the in-process Locker: one mutex per event identifier.
// Sufficient whenever a single engine instance owns posting; deployments
// with several instances use the Redis locker instead.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Acquire implements Locker.
func (m *KeyedMutex) Acquire(ctx context.Context, eventID string) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[eventID]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[eventID] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return func() { m.release(eventID, e) }, nil
	case <-ctx.Done():
		m.unref(eventID, e)
		return nil, ctx.Err()
	}
}

func (m *KeyedMutex) release(eventID string, e *entry) {
	<-e.ch
	m.unref(eventID, e)
}

func (m *KeyedMutex) unref(eventID string, e *entry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, eventID)
	}
	m.mu.Unlock()
}
