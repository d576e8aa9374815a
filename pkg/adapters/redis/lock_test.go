package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/deckhand/pkg/adapters/redis"
)

func newTestLocker(t *testing.T) (*redis.Locker, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	return redis.NewLocker(client, "deckhand:"), mr
}

func TestLockerLockUnlock(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	start := time.Now()
	unlock, err := locker.Lock(ctx, "document:/decks/a.pptx", 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, unlock)

	// Uncontended acquisition must not wait out a poll interval.
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	assert.True(t, mr.Exists("deckhand:lock:document:/decks/a.pptx"))
	assert.InDelta(t, 5*time.Second, mr.TTL("deckhand:lock:document:/decks/a.pptx"), float64(time.Second))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("deckhand:lock:document:/decks/a.pptx"))
}

func TestLockerContention(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := "document:/decks/shared.pptx"

	unlock1, err := locker.Lock(ctx, key, 5*time.Second)
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = locker.Lock(shortCtx, key, 5*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, redis.ErrLockAcquire)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.WithinDuration(t, start.Add(300*time.Millisecond), time.Now(), 150*time.Millisecond)

	require.NoError(t, unlock1(ctx))

	unlock2, err := locker.Lock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	defer func() { _ = unlock2(ctx) }()

	assert.True(t, mr.Exists("deckhand:lock:"+key))
}

func TestLockerStaleUnlockKeepsNewHolder(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := "session:abc"

	unlockOld, err := locker.Lock(ctx, key, time.Second)
	require.NoError(t, err)

	// Let the first lock expire, then hand the key to a new holder.
	mr.FastForward(2 * time.Second)

	unlockNew, err := locker.Lock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	defer func() { _ = unlockNew(ctx) }()

	// The stale release compares tokens and must leave the new lock alone.
	require.NoError(t, unlockOld(ctx))
	assert.True(t, mr.Exists("deckhand:lock:session:abc"))
}
