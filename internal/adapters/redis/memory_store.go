package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/domain/money"
)

// MemoryStateStore is an in-process core.SessionStateStore used when Redis is disabled.
// State does not survive a restart.
type MemoryStateStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	state     []byte
	expiresAt time.Time
}

var _ core.SessionStateStore = (*MemoryStateStore)(nil)

// NewMemoryStateStore returns an empty store. now defaults to time.Now.
func NewMemoryStateStore(now func() time.Time) *MemoryStateStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStateStore{now: now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryStateStore) Save(_ context.Context, identity string, state []byte, ttl time.Duration) error {
	key := money.NormalizeText(identity)
	if key == "" {
		return ErrEmptyIdentity
	}
	if len(state) == 0 {
		return errors.New("session state cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("session state TTL must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{
		state:     append([]byte(nil), state...),
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

func (m *MemoryStateStore) Load(_ context.Context, identity string) ([]byte, bool, error) {
	key := money.NormalizeText(identity)
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.state...), true, nil
}

func (m *MemoryStateStore) Delete(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, money.NormalizeText(identity))
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStateStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
