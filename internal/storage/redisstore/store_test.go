package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelnotes/reelnotes-backend/internal/storage"
	"github.com/reelnotes/reelnotes-backend/internal/storage/storetest"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, mr
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		client, _ := setupTestRedis(t)
		s := New(client, "test")
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSessionExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	s := New(client, "test")
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, "tok", "u1", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := s.SessionUserID(ctx, "tok")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNamespacesAreIsolated(t *testing.T) {
	client, mr := setupTestRedis(t)
	a := New(client, "a")
	b := New(client, "b")
	ctx := context.Background()

	require.NoError(t, a.SaveSession(ctx, "tok", "u1", 0))
	_, err := b.SessionUserID(ctx, "tok")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.True(t, mr.Exists("a:session:tok"))
}
