package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasnin090/iq-sub003/internal/config"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	s, err := store.Create(ctx, 42)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)
	assert.Equal(t, now.Add(time.Hour), s.ExpiresAt)

	got, err := store.Get(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.UserID)

	_, err = store.Get(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Invalidate(ctx, s.Token))
	_, err = store.Get(ctx, s.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	s, err := store.Create(ctx, 1)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, s.Token)
	assert.ErrorIs(t, err, ErrExpired)

	_, err = store.Get(ctx, s.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed session tests")
	}
	client, err := NewRedisClient(config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	store := NewRedisStore(client, time.Minute)

	s, err := store.Create(ctx, 7)
	require.NoError(t, err)

	got, err := store.Get(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)

	require.NoError(t, store.Invalidate(ctx, s.Token))
	_, err = store.Get(ctx, s.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}
