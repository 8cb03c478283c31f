package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/data/cryptoutil"
	"github.com/target/cashier/internal/domain/money"
)

// SealedStateStore encrypts session state before handing it to the wrapped store. Each blob is
// bound to its normalized identity, so state copied between agents fails to open.
type SealedStateStore struct {
	inner  core.SessionStateStore
	sealer cryptoutil.Sealer
}

var _ core.SessionStateStore = (*SealedStateStore)(nil)

// NewSealedStateStore wraps inner with sealer.
func NewSealedStateStore(inner core.SessionStateStore, sealer cryptoutil.Sealer) *SealedStateStore {
	return &SealedStateStore{inner: inner, sealer: sealer}
}

func (s *SealedStateStore) Save(ctx context.Context, identity string, state []byte, ttl time.Duration) error {
	if money.NormalizeText(identity) == "" {
		return ErrEmptyIdentity
	}
	sealed, err := s.sealer.Seal(state, money.NormalizeText(identity))
	if err != nil {
		return fmt.Errorf("seal session state: %w", err)
	}
	return s.inner.Save(ctx, identity, sealed, ttl)
}

// Load treats a blob that cannot be opened as absent and deletes it, so a rotated key costs one
// fresh login rather than a failed job.
func (s *SealedStateStore) Load(ctx context.Context, identity string) ([]byte, bool, error) {
	sealed, ok, err := s.inner.Load(ctx, identity)
	if err != nil || !ok {
		return nil, ok, err
	}
	state, err := s.sealer.Open(sealed, money.NormalizeText(identity))
	if err != nil {
		if delErr := s.inner.Delete(ctx, identity); delErr != nil {
			return nil, false, errors.Join(fmt.Errorf("discard unreadable session state: %w", delErr), err)
		}
		return nil, false, nil
	}
	return state, true, nil
}

func (s *SealedStateStore) Delete(ctx context.Context, identity string) error {
	return s.inner.Delete(ctx, identity)
}
