package shared

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained is returned when a keyed lock stays busy past the retry budget.
var ErrLockNotObtained = errors.New("lock not obtained")

// SettlementLockKey builds the lock key serialising recomputation of one
// contract period.
func SettlementLockKey(contractID int64, year, month int) string {
	return fmt.Sprintf("aluga:settlement:%d:%04d-%02d:lock", contractID, year, month)
}

// ReleaseFunc releases a held lock.
type ReleaseFunc func(ctx context.Context) error

// Locker serialises work on a key.
type Locker interface {
	Acquire(ctx context.Context, key string) (ReleaseFunc, error)
}

// RedisLocker is a Locker shared across processes.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

// NewRedisLocker constructs a distributed locker. Locks expire after ttl if the
// holder dies without releasing.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50),
	}
}

// WithRetry overrides the retry strategy used while the key is busy.
func (l *RedisLocker) WithRetry(retry redislock.RetryStrategy) *RedisLocker {
	if retry != nil {
		l.retry = retry
	}
	return l
}

// Acquire obtains the lock or returns ErrLockNotObtained.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("redis locker not initialised")
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%s: %w", key, ErrLockNotObtained)
	}
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}

// KeyedMutex is an in-process Locker for single-instance deployments and tests.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*keySlot
}

type keySlot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex constructs an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*keySlot)}
}

// Acquire blocks until key is free or ctx is done.
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	m.mu.Lock()
	slot, ok := m.slots[key]
	if !ok {
		slot = &keySlot{ch: make(chan struct{}, 1)}
		m.slots[key] = slot
	}
	slot.refs++
	m.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		m.unref(key, slot)
		return nil, fmt.Errorf("%s: %w", key, ErrLockNotObtained)
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-slot.ch
			m.unref(key, slot)
		})
		return nil
	}, nil
}

func (m *KeyedMutex) unref(key string, slot *keySlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(m.slots, key)
	}
}
