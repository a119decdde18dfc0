// Package lock provides per-key critical sections used to serialize
// mutations of a single post.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pulse/internal/observability"
)

// ErrTimeout is returned when a lock could not be acquired before the
// context ended. Callers treat it as retryable contention.
var ErrTimeout = errors.New("lock wait timed out")

// Unlock releases a held lock. It is safe to call once.
type Unlock func()

// Locker grants exclusive critical sections keyed by string.
type Locker interface {
	Acquire(ctx context.Context, key string) (Unlock, error)
}

type entry struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process keyed mutex. Entries are dropped when no goroutine
// holds or waits for them.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewLocal returns an empty Local locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

// Acquire blocks until key is free or ctx ends.
func (l *Local) Acquire(ctx context.Context, key string) (Unlock, error) {
	start := time.Now()

	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		observability.LockWaitSeconds.WithLabelValues("local", "acquired").Observe(time.Since(start).Seconds())
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				l.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, e)
		observability.LockWaitSeconds.WithLabelValues("local", "timeout").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, key, ctx.Err())
	}
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Len reports how many keys are currently tracked.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
