package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Lock serializes calls and keeps a minimum spacing between them.
type Lock interface {
	Lock(ctx context.Context) func()
}

type lock struct {
	lck  sync.Mutex
	wait time.Duration
	last time.Time
}

// New returns a lock that waits around the given duration between calls.
// A zero duration only serializes calls.
func New(wait time.Duration) Lock {
	return &lock{wait: wait}
}

// Lock blocks until the previous call has been released and the wait time
// has passed. The returned function releases the lock.
func (l *lock) Lock(ctx context.Context) func() {
	l.lck.Lock()
	if l.wait > 0 && !l.last.IsZero() {
		// Wait between 85% and 115% of the configured time
		jitter := time.Duration(float64(l.wait) * (0.85 + 0.3*rand.Float64()))
		elapsed := time.Since(l.last)
		if elapsed < jitter {
			t := time.NewTimer(jitter - elapsed)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}
	return func() {
		l.last = time.Now()
		l.lck.Unlock()
	}
}
