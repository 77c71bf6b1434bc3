package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes scan processing per student so two concurrent scans of
// the same token cannot both observe the same latest action.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// MemoryLocker keys mutexes by student; enough for a single api process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the per-key mutex.
func (l *MemoryLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

// RedisLocker takes a short-lived SET NX lock per student, so serialization
// holds across api replicas. The conditional insert in the repository remains
// the backstop if a lock expires mid-scan.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker with the given lock TTL.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// Lock polls SET NX until the lock is held or the context ends.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := "quitescan:scanlock:" + key
	owner := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, owner, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
	unlock := func() {
		// Release only if still the owner; an expired lock may have been
		// re-acquired by another scan.
		val, err := l.client.Get(context.Background(), redisKey).Result()
		if err == nil && val == owner {
			_ = l.client.Del(context.Background(), redisKey).Err()
		}
	}
	return unlock, nil
}
