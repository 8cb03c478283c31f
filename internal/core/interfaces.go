// Package core defines the ports between the cashier services and their adapters.
package core

import (
	"context"
	"time"

	"github.com/target/cashier/internal/domain/model"
)

// SessionStateStore persists exported browser session state per agent identity so a fresh
// session can skip the login form.
type SessionStateStore interface {
	Save(ctx context.Context, identity string, state []byte, ttl time.Duration) error
	// Load returns (nil, false, nil) when nothing is stored.
	Load(ctx context.Context, identity string) ([]byte, bool, error)
	Delete(ctx context.Context, identity string) error
}

// JobArchive stores terminal job records beyond the in-memory retention window.
type JobArchive interface {
	Save(ctx context.Context, rec model.JobRecord) error
	Get(ctx context.Context, id string) (*model.JobRecord, error)
}

// ArtifactStore keeps screenshots and traces and returns opaque references to them.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
