package autoscaler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"tierscale/pkg/logger"
)

const (
	// PollLockKey guards the periodic reconcile so one replica polls at a time
	PollLockKey = "tierscale:poll-lock"

	lockTTL            = 30 * time.Second
	lockAcquireTimeout = 5 * time.Second
	lockExtendInterval = 10 * time.Second
)

var (
	unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

	renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("expire", KEYS[1], ARGV[2])
else
	return 0
end`)
)

// DistributedLock is a best-effort leader lock
type DistributedLock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
	IsHeld() bool
}

// RedisDistributedLock is a SET NX lock with an owner token and background renewal.
// A nil client degrades to an always-granted lock for single replica setups.
type RedisDistributedLock struct {
	client  *redis.Client
	key     string
	token   string
	ttl     time.Duration
	mu      sync.Mutex
	held    bool
	stopCh  chan struct{}
	stopped bool
}

// NewRedisDistributedLock creates a lock on key
func NewRedisDistributedLock(client *redis.Client, key string) *RedisDistributedLock {
	if key == "" {
		key = PollLockKey
	}
	return &RedisDistributedLock{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    lockTTL,
	}
}

// TryLock attempts to take the lock without waiting for it
func (l *RedisDistributedLock) TryLock(ctx context.Context) (bool, error) {
	if l.client == nil {
		l.mu.Lock()
		l.held = true
		l.mu.Unlock()
		return true, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, lockAcquireTimeout)
	defer cancel()

	acquired, err := l.client.SetNX(acquireCtx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !acquired {
		logger.DebugCtx(ctx, "lock %s held by another replica", l.key)
		return false, nil
	}

	l.mu.Lock()
	l.held = true
	// fresh channel per acquisition so the lock can be reused
	l.stopCh = make(chan struct{})
	l.stopped = false
	stopCh := l.stopCh
	l.mu.Unlock()

	go l.renew(ctx, stopCh)

	logger.DebugCtx(ctx, "lock %s acquired", l.key)
	return true, nil
}

// Unlock releases the lock if this instance still owns it
func (l *RedisDistributedLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if !l.held && (l.stopCh == nil || l.stopped) {
		l.mu.Unlock()
		return nil
	}
	l.held = false
	if l.client == nil {
		l.mu.Unlock()
		return nil
	}
	if !l.stopped {
		l.stopped = true
		close(l.stopCh)
	}
	l.mu.Unlock()

	released, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if released == 0 {
		logger.WarnCtx(ctx, "lock %s was already released or taken over", l.key)
	}
	return nil
}

// IsHeld reports whether this instance believes it owns the lock
func (l *RedisDistributedLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *RedisDistributedLock) renew(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(lockExtendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, int(l.ttl.Seconds())).Int64()
			if err != nil || renewed == 0 {
				logger.WarnCtx(ctx, "lock %s lost during renewal: %v", l.key, err)
				l.mu.Lock()
				l.held = false
				l.mu.Unlock()
				return
			}
		}
	}
}

// WithLock runs fn only if the lock could be taken. It reports whether fn ran.
func WithLock(ctx context.Context, lock DistributedLock, fn func(ctx context.Context)) (bool, error) {
	acquired, err := lock.TryLock(ctx)
	if err != nil || !acquired {
		return false, err
	}
	defer func() {
		if err := lock.Unlock(ctx); err != nil {
			logger.WarnCtx(ctx, "failed to release lock: %v", err)
		}
	}()
	fn(ctx)
	return true, nil
}
