package clinic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mlnyx/algo-dental/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// Locker grants exclusive update scope over a single chair. The returned
// release func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, chairID int) (release func(), err error)
}

// LocalLocker serialises chair updates inside one process. A chair's slot
// lives only while someone holds or waits on it.
type LocalLocker struct {
	wait  time.Duration
	mu    sync.Mutex
	slots map[int]*localSlot
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{wait: wait, slots: make(map[int]*localSlot)}
}

func (l *LocalLocker) acquire(chairID int) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[chairID]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[chairID] = slot
	}
	slot.refs++
	return slot
}

func (l *LocalLocker) drop(chairID int, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, chairID)
	}
}

func (l *LocalLocker) Lock(ctx context.Context, chairID int) (func(), error) {
	slot := l.acquire(chairID)
	release := func() {
		<-slot.ch
		l.drop(chairID, slot)
	}

	select {
	case slot.ch <- struct{}{}:
		return release, nil
	default:
	}
	if l.wait <= 0 {
		l.drop(chairID, slot)
		return nil, ErrChairBusy
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	select {
	case slot.ch <- struct{}{}:
		return release, nil
	case <-timer.C:
		l.drop(chairID, slot)
		return nil, ErrChairBusy
	case <-ctx.Done():
		l.drop(chairID, slot)
		return nil, ctx.Err()
	}
}

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// RedisLocker holds chair locks in Redis so several service replicas share
// one update scope per chair. Locks expire after ttl if the holder dies.
type RedisLocker struct {
	client   redis.Cmdable
	ttl      time.Duration
	wait     time.Duration
	retry    time.Duration
	newToken func() string
}

func NewRedisLocker(client redis.Cmdable, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client:   client,
		ttl:      ttl,
		wait:     wait,
		retry:    50 * time.Millisecond,
		newToken: func() string { return uuid.New().String() },
	}
}

func chairLockKey(chairID int) string {
	return fmt.Sprintf("clinic:chair-lock:%d", chairID)
}

func (l *RedisLocker) Lock(ctx context.Context, chairID int) (func(), error) {
	key := chairLockKey(chairID)
	token := l.newToken()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire chair lock: %w", err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrChairBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		logger.Log.WithError(err).WithField("key", key).Warn("failed to release chair lock")
	}
}
