package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates the lock is currently owned by another caller.
var ErrLockHeld = errors.New("lock already held")

// releaseScript deletes the key only when the token still matches the owner.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// Locker provides redis-backed advisory locks for critical sections.
type Locker struct {
	client *redis.Client
}

// NewLocker constructs a Locker.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire takes the named lock for at most ttl and returns a release function.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	release := func() {
		_ = l.client.Eval(context.WithoutCancel(ctx), releaseScript, []string{key}, token).Err()
	}
	return release, nil
}

// PurchaseOrderLockKey builds redis keys for purchase order critical sections.
func PurchaseOrderLockKey(poID int64) string {
	return fmt.Sprintf("purchasing:po:%d:lock", poID)
}

// JobCardLockKey builds redis keys for job card critical sections.
func JobCardLockKey(jobID int64) string {
	return fmt.Sprintf("jobwork:job:%d:lock", jobID)
}
