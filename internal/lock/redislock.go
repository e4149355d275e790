package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock stays contended for the whole
// MaxWait window. Callers treat it as a retryable condition.
var ErrNotAcquired = errors.New("lock: not acquired")

// release deletes the key only when the stored token matches, so an expired
// lock reacquired by another holder is never removed.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Locker is a Redis SetNX lock guarding replenishment work per option code.
// MaxWait bounds how long an acquisition may block; zero means wait until the
// context is done.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	MaxWait      time.Duration
}

// WithLock runs fn while holding the lock for key. The lock is released when
// fn returns, success or not. Acquisition polls every RetryBackoff until the
// context ends or MaxWait elapses.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	token, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer l.release(key, token)
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}

	var deadline <-chan time.Time
	if l.MaxWait > 0 {
		waitTimer := time.NewTimer(l.MaxWait)
		defer waitTimer.Stop()
		deadline = waitTimer.C
	}

	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		retryTimer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			retryTimer.Stop()
			return "", ctx.Err()
		case <-deadline:
			retryTimer.Stop()
			return "", ErrNotAcquired
		case <-retryTimer.C:
		}
	}
}

func (l Locker) release(key, token string) {
	// Detached context: the lock must be released even when the job context
	// was cancelled mid-flight.
	_ = l.R.Eval(context.Background(), releaseScript, []string{key}, token).Err()
}
