package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cashier/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func TestStateStore_SaveAndLoad(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewStateStore(client)
	ctx := context.Background()

	state := []byte(`{"cookies":[{"name":"sid","value":"abc"}],"origins":[]}`)
	require.NoError(t, store.Save(ctx, "Agent01", state, time.Minute))

	got, ok, err := store.Load(ctx, " agent01 ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state, got)

	ttl, err := client.TTL(ctx, "cashier:state:agent01").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
}

func TestStateStore_LoadMissing(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewStateStore(client)
	got, ok, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestStateStore_Delete(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewStateStoreWithPrefix(client, "test:state:")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "agent02", []byte("state"), time.Minute))
	require.NoError(t, store.Delete(ctx, "AGENT02"))

	_, ok, err := store.Load(ctx, "agent02")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, store.Delete(ctx, ""))
}

func TestStateStore_Expiry(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewStateStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "agent03", []byte("state"), 100*time.Millisecond))
	time.Sleep(250 * time.Millisecond)

	_, ok, err := store.Load(ctx, "agent03")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateStore_Validation(t *testing.T) {
	// Validation happens before any round-trip, so no server is needed.
	store := NewStateStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}))
	ctx := context.Background()

	assert.ErrorIs(t, store.Save(ctx, "  ", []byte("x"), time.Minute), ErrEmptyIdentity)
	assert.Error(t, store.Save(ctx, "agent", nil, time.Minute))
	assert.Error(t, store.Save(ctx, "agent", []byte("x"), 0))
	assert.Equal(t, "cashier:state:jose", store.Key("José"))
}

func TestMemoryStateStore(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	store := NewMemoryStateStore(clock.Now)

	state := []byte("state")
	require.NoError(t, store.Save(ctx, "Agent01", state, time.Minute))
	state[0] = 'X'

	got, ok, err := store.Load(ctx, "agent01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("state"), got, "stored copy is isolated from the caller")

	clock.Advance(time.Minute)
	_, ok, err = store.Load(ctx, "agent01")
	require.NoError(t, err)
	assert.False(t, ok, "entries expire at exactly their TTL")
	assert.Equal(t, 0, store.Len())

	require.NoError(t, store.Save(ctx, "agent02", []byte("s"), time.Hour))
	require.NoError(t, store.Delete(ctx, "AGENT02"))
	assert.Equal(t, 0, store.Len())

	assert.ErrorIs(t, store.Save(ctx, "", []byte("s"), time.Hour), ErrEmptyIdentity)
}
