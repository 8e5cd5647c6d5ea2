package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var (
	ErrLockFailed  = errors.New("failed to acquire lock")
	ErrLockExpired = errors.New("lock expired before release")
)

// Unlocker releases a held lock.
type Unlocker interface {
	Unlock(ctx context.Context) error
}

// Locker hands out mutually exclusive locks by key. owner identifies the
// holder so a lock that expired and was re-acquired elsewhere is never
// released by its former owner.
type Locker interface {
	Obtain(ctx context.Context, key, owner string) (Unlocker, error)
}

// DistributedLock is a single redis lock: SET NX EX to acquire, a
// compare-and-delete script to release.
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock attempts the lock once without waiting.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock retries TryLock every retryInterval, at most maxRetries times.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Unlock deletes the key only while it still holds our value.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockExpired
	}
	return nil
}

// RedisLocker obtains DistributedLocks sharing one client and retry policy.
type RedisLocker struct {
	client        *redis.Client
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, expiration, retryInterval time.Duration, maxRetries int) *RedisLocker {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &RedisLocker{
		client:        client,
		expiration:    expiration,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

func (r *RedisLocker) Obtain(ctx context.Context, key, owner string) (Unlocker, error) {
	l := NewDistributedLock(r.client, key, owner, r.expiration)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		return nil, err
	}
	return l, nil
}

func OrderLockKey(orderNo string) string {
	return fmt.Sprintf("ignitia:lock:order:%s", orderNo)
}

func RegistrationLockKey(userID, eventID string) string {
	return fmt.Sprintf("ignitia:lock:registration:%s:%s", userID, eventID)
}

func PaymentLockKey(gatewayTransactionID string) string {
	return fmt.Sprintf("ignitia:lock:payment:%s", gatewayTransactionID)
}
