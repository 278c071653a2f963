package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Unlock when the lock expired or was taken over.
var ErrNotHeld = errors.New("lock not held")

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Lock is a best-effort mutual exclusion lease held in Redis. It expires on
// its own after ttl, so a crashed holder never blocks others for long.
type Lock struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
}

// Locker hands out locks under a common key prefix.
type Locker struct {
	client redis.Cmdable
	prefix string
}

func NewLocker(client redis.Cmdable, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

// New returns an unacquired lock for name.
func (l *Locker) New(name string, ttl time.Duration) *Lock {
	return &Lock{
		client: l.client,
		key:    l.prefix + name,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryLock acquires the lock without waiting.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Lock retries TryLock every interval until it succeeds or ctx is done.
func (l *Lock) Lock(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Unlock releases the lock if this holder still owns it.
func (l *Lock) Unlock(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Held reports whether this holder still owns the lock.
func (l *Lock) Held(ctx context.Context) (bool, error) {
	v, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == l.token, nil
}
