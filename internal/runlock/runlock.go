// Package runlock provides per-key mutual exclusion for settlement runs,
// backed by Redis when configured and by process memory otherwise.
package runlock

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

// Unlock releases a held lock.
type Unlock func(ctx context.Context)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

// RedisLocker holds locks as SET NX PX keys; the value is a random token so
// only the holder can release. A held lock is extended every ttl/3 until it
// is released, so ttl only bounds how long a crashed holder blocks others.
type RedisLocker struct {
	client  rueidis.Client
	prefix  string
	ttl     time.Duration
	release *rueidis.Lua
	extend  *rueidis.Lua
}

// NewRedisLocker constructs a Redis-backed locker.
func NewRedisLocker(client rueidis.Client, prefix string, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("runlock: nil redis client")
	}
	if ttl <= 0 {
		return nil, errors.New("runlock: ttl must be positive")
	}
	return &RedisLocker{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		release: rueidis.NewLuaScript(releaseScript),
		extend:  rueidis.NewLuaScript(extendScript),
	}, nil
}

// TryLock acquires key without waiting. ok is false when another holder has it.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (Unlock, bool, error) {
	if l == nil || l.client == nil {
		return nil, false, errors.New("runlock: nil locker")
	}
	lockKey := l.prefix + key
	token := uuid.NewString()
	cmd := l.client.B().Set().Key(lockKey).Value(token).Nx().PxMilliseconds(l.ttl.Milliseconds()).Build()
	if err := l.client.Do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(lockKey, token, stop, done)

	var once sync.Once
	unlock := func(ctx context.Context) {
		once.Do(func() {
			close(stop)
			<-done
			_ = l.release.Exec(ctx, l.client, []string{lockKey}, []string{token}).Error()
		})
	}
	return unlock, true, nil
}

func (l *RedisLocker) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := l.ttl / 3
	if interval <= 0 {
		interval = l.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ttl := strconv.FormatInt(l.ttl.Milliseconds(), 10)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := l.extend.Exec(ctx, l.client, []string{key}, []string{token, ttl}).AsInt64()
			cancel()
			if err == nil && n == 0 {
				// Lost the key; another holder may own it now.
				return
			}
		}
	}
}

// LocalLocker is an in-process locker for single-instance deployments and tests.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker constructs an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// TryLock acquires key without waiting.
func (l *LocalLocker) TryLock(ctx context.Context, key string) (Unlock, bool, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	var once sync.Once
	unlock := func(context.Context) {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}
	return unlock, true, nil
}
