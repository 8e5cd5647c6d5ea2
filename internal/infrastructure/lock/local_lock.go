package lock

import (
	"context"
	"sync"
	"time"
)

// LocalLocker serialises holders of the same key inside one process. It is
// used when redis is disabled. Like RedisLocker it waits at most
// retryInterval*maxRetries for a held key, then fails with ErrLockFailed.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
	wait  time.Duration
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker(retryInterval time.Duration, maxRetries int) *LocalLocker {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &LocalLocker{
		slots: make(map[string]*localSlot),
		wait:  time.Duration(maxRetries) * retryInterval,
	}
}

func (l *LocalLocker) Obtain(ctx context.Context, key, _ string) (Unlocker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return &localUnlocker{locker: l, key: key, slot: slot}, nil
	default:
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	select {
	case slot.ch <- struct{}{}:
		return &localUnlocker{locker: l, key: key, slot: slot}, nil
	case <-timer.C:
		l.release(key, slot)
		return nil, ErrLockFailed
	case <-ctx.Done():
		l.release(key, slot)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(key string, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

type localUnlocker struct {
	locker *LocalLocker
	key    string
	slot   *localSlot
	once   sync.Once
}

func (u *localUnlocker) Unlock(context.Context) error {
	err := ErrLockExpired
	u.once.Do(func() {
		<-u.slot.ch
		u.locker.release(u.key, u.slot)
		err = nil
	})
	return err
}
