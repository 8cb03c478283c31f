package sessionpool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// keyLock serializes lease holders for one agent identity. semaphore.Weighted serves waiters in
// FIFO order and lets a waiter give up when its context ends.
type keyLock struct {
	key  string
	sem  *semaphore.Weighted
	refs int // holders plus waiters; guarded by Pool.mu
}

func newKeyLock(key string) *keyLock {
	return &keyLock{key: key, sem: semaphore.NewWeighted(1)}
}

// lockKey registers interest in key and waits for exclusive ownership.
func (p *Pool) lockKey(ctx context.Context, key string) (*keyLock, error) {
	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = newKeyLock(key)
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		p.dropRef(l)
		return nil, err
	}
	return l, nil
}

// unlockKey releases ownership and forgets the lock once nobody holds or awaits it.
func (p *Pool) unlockKey(l *keyLock) {
	l.sem.Release(1)
	p.dropRef(l)
}

func (p *Pool) dropRef(l *keyLock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l.refs--
	if l.refs <= 0 && p.locks[l.key] == l {
		delete(p.locks, l.key)
	}
}
