package sessionpool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/observability/metrics"
)

// Lease is an exclusive right to use a session. Exactly one of Release or Invalidate must be
// called; later calls to either are no-ops.
type Lease struct {
	Browser core.Browser
	Session core.BrowserSession
	Page    core.Page

	// Reused reports that the session came from the pool rather than being created.
	Reused bool
	// Pooled reports that the session returns to the pool on Release.
	Pooled bool
	// Key is the cache key of the leased session.
	Key string
	// LockWait is how long Acquire waited for the identity lock.
	LockWait time.Duration

	pool     *Pool
	entry    *entry
	lock     *keyLock
	released atomic.Bool
}

// Release hands the session back. Pooled sessions stay open for the next holder; single-use
// sessions are torn down.
func (l *Lease) Release() {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return
	}
	defer l.pool.unlockKey(l.lock)

	if !l.Pooled || l.entry == nil {
		l.pool.teardown(context.Background(), l.Browser, l.Session, l.Page)
		return
	}

	p := l.pool
	p.mu.Lock()
	closed := p.closed
	if closed {
		p.removeLocked(l.entry)
	} else {
		l.entry.inUse = false
		l.entry.lastUsedAt = p.now()
		if l.entry.elem != nil {
			p.lru.MoveToFront(l.entry.elem)
		}
	}
	p.mu.Unlock()

	if closed {
		p.teardown(context.Background(), l.Browser, l.Session, l.Page)
	}
}

// Invalidate removes the session from the pool and tears it down. Use it when the session
// state can no longer be trusted.
func (l *Lease) Invalidate() {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return
	}
	defer l.pool.unlockKey(l.lock)

	if l.entry != nil {
		l.pool.remove(l.entry)
	}
	l.pool.logger.Info("session invalidated", "cache_key", l.Key)
	l.pool.teardown(context.Background(), l.Browser, l.Session, l.Page)
	metrics.EmitPoolEvent(l.pool.metrics, metrics.PoolEventInvalid, 0)
}

// Released reports whether Release or Invalidate has been called.
func (l *Lease) Released() bool {
	return l.released.Load()
}
