// Package lock provides short-lived exclusive claims on string keys, used to
// keep two callers from running the same remediation step at once.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrHeld is returned when the key is already claimed by someone else.
var ErrHeld = errors.New("lock: key already claimed")

// Release gives a claim back. Releasing twice is a no-op.
type Release func(ctx context.Context) error

type Claimer interface {
	// Acquire claims key for at most ttl. It returns ErrHeld without blocking
	// when the key is taken.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// Memory is an in-process Claimer.
type Memory struct {
	mu     sync.Mutex
	held   map[string]entry
	nextID uint64
	now    func() time.Time
}

type entry struct {
	id      uint64
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]entry), now: time.Now}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.held[key]; ok && (ttl <= 0 || e.expires.IsZero() || now.Before(e.expires)) {
		return nil, ErrHeld
	}

	m.nextID++
	id := m.nextID
	e := entry{id: id}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	m.held[key] = e

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if cur, ok := m.held[key]; ok && cur.id == id {
				delete(m.held, key)
			}
		})
		return nil
	}, nil
}
