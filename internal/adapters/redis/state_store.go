// Package redis provides Redis-backed adapters for cashier.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/domain/money"
)

// DefaultStatePrefix namespaces browser session state keys.
const DefaultStatePrefix = "cashier:state:"

// StateStore persists exported browser session state in Redis. Entries expire with the TTL
// passed to Save.
type StateStore struct {
	client redis.UniversalClient
	prefix string
}

var _ core.SessionStateStore = (*StateStore)(nil)

// NewStateStore creates a Redis-based state store.
func NewStateStore(client redis.UniversalClient) *StateStore {
	return NewStateStoreWithPrefix(client, DefaultStatePrefix)
}

// NewStateStoreWithPrefix creates a Redis state store with a custom key prefix.
func NewStateStoreWithPrefix(client redis.UniversalClient, prefix string) *StateStore {
	return &StateStore{client: client, prefix: prefix}
}

// Key returns the Redis key for identity. Identities are normalized the same way the session
// pool normalizes them, so "Agent01" and "agent01 " share state.
func (s *StateStore) Key(identity string) string {
	return s.prefix + money.NormalizeText(identity)
}

func (s *StateStore) Save(ctx context.Context, identity string, state []byte, ttl time.Duration) error {
	if money.NormalizeText(identity) == "" {
		return ErrEmptyIdentity
	}
	if len(state) == 0 {
		return errors.New("session state cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("session state TTL must be positive")
	}
	if err := s.client.Set(ctx, s.Key(identity), state, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *StateStore) Load(ctx context.Context, identity string) ([]byte, bool, error) {
	if money.NormalizeText(identity) == "" {
		return nil, false, nil
	}
	data, err := s.client.Get(ctx, s.Key(identity)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

func (s *StateStore) Delete(ctx context.Context, identity string) error {
	if money.NormalizeText(identity) == "" {
		return nil // Nothing to delete
	}
	return s.client.Del(ctx, s.Key(identity)).Err()
}

// ErrEmptyIdentity is returned when saving state without an agent identity.
var ErrEmptyIdentity = errors.New("identity cannot be empty")
