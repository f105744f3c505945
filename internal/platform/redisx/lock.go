package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock for the whole wait window.
var ErrLockHeld = errors.New("redisx: lock held by another owner")

// releaseScript deletes the lock only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements short-lived mutual exclusion on top of SET NX PX.
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// LockerOption customises a Locker.
type LockerOption func(*Locker)

// WithLockTTL sets the lock expiry.
func WithLockTTL(ttl time.Duration) LockerOption {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLockWait sets how long Acquire keeps retrying a held lock. Zero fails immediately.
func WithLockWait(wait time.Duration) LockerOption {
	return func(l *Locker) {
		if wait >= 0 {
			l.wait = wait
		}
	}
}

// NewLocker constructs a Locker backed by client.
func NewLocker(client redis.UniversalClient, opts ...LockerOption) *Locker {
	l := &Locker{client: client, ttl: TTLLock, wait: 2 * time.Second, retry: 50 * time.Millisecond}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire obtains the lock for name and returns a release function that is safe to call once the
// lock has expired or been taken over.
func (l *Locker) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	key := fmt.Sprintf(KeyLock, name)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redisx: acquire %s: %w", name, err)
		}
		if ok {
			return func(ctx context.Context) error {
				if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
					return fmt.Errorf("redisx: release %s: %w", name, err)
				}
				return nil
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, name)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}
