package distributed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, "eb:lock:"), mr
}

func TestLock_MutualExclusion(t *testing.T) {
	locker, _ := newLocker(t)
	ctx := context.Background()

	a := locker.New("sweep", time.Minute)
	b := locker.New("sweep", time.Minute)

	ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	held, err := a.Held(ctx)
	require.NoError(t, err)
	assert.True(t, held)

	assert.ErrorIs(t, b.Unlock(ctx), ErrNotHeld)
	require.NoError(t, a.Unlock(ctx))

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_Expires(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	a := locker.New("sweep", time.Second)
	ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	held, err := a.Held(ctx)
	require.NoError(t, err)
	assert.False(t, held)

	b := locker.New("sweep", time.Second)
	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ErrorIs(t, a.Unlock(ctx), ErrNotHeld)
}

func TestLock_LockWaitsForContext(t *testing.T) {
	locker, _ := newLocker(t)

	holder := locker.New("busy", time.Minute)
	ok, err := holder.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = locker.New("busy", time.Minute).Lock(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
