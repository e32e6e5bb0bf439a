package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const minTickLockTTL = 10 * time.Second

var (
	releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// lockClient is the part of the Redis client the tick lock needs
type lockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisTickLock is a lock shared by every replica running the reconciler.
// Each acquisition stores its own token, so only the holder can release or extend it.
// While held, the TTL is refreshed in the background; the TTL alone bounds how long
// a crashed holder can block other instances.
type RedisTickLock struct {
	rc           lockClient
	key          string
	ttl          time.Duration
	refreshEvery time.Duration

	mu    sync.Mutex
	token string
	stop  context.CancelFunc
	done  chan struct{}
}

func NewRedisTickLock(rc *redis.Client, prefix string, ttl time.Duration) *RedisTickLock {
	return newTickLock(rc, prefix+"reconciler:lock", ttl)
}

func newTickLock(rc lockClient, key string, ttl time.Duration) *RedisTickLock {
	if ttl < minTickLockTTL {
		ttl = minTickLockTTL
	}
	return &RedisTickLock{rc: rc, key: key, ttl: ttl, refreshEvery: ttl / 3}
}

func (l *RedisTickLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.rc.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil || !ok {
		return false, err
	}

	refreshCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.mu.Lock()
	l.token, l.stop, l.done = token, stop, done
	l.mu.Unlock()

	go l.refresh(refreshCtx, token, done)
	return true, nil
}

func (l *RedisTickLock) refresh(ctx context.Context, token string, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := extendLockScript.Run(ctx, l.rc, []string{l.key}, token, l.ttl.Milliseconds()).Int64()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("tick lock: refresh of %s failed: %v", l.key, err)
				continue
			}
			if n == 0 {
				log.Printf("tick lock: %s is no longer held by this instance", l.key)
				return
			}
		}
	}
}

// Release deletes the lock only if it still carries this instance's token
func (l *RedisTickLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token, stop, done := l.token, l.stop, l.done
	l.token, l.stop, l.done = "", nil, nil
	l.mu.Unlock()

	if token == "" {
		return nil
	}
	stop()
	<-done
	return releaseLockScript.Run(ctx, l.rc, []string{l.key}, token).Err()
}
