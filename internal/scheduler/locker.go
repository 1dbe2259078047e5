package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Locker grants at most one holder per key. TryLock never waits: a busy
// key reports ok=false with a nil error.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

// LocalLocker serializes jobs inside one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker { return &LocalLocker{held: make(map[string]struct{})} }

func (l *LocalLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

// RedisLocker serializes jobs across instances with a redsync mutex. A held
// mutex is extended every expiry/3 until unlock, so a long sweep keeps the
// key; the expiry only bounds how long a crashed holder blocks it.
type RedisLocker struct {
	rs      *redsync.Redsync
	prefix  string
	expiry  time.Duration
	refresh time.Duration
}

func NewRedisLocker(client *redis.Client, prefix string, expiry time.Duration) *RedisLocker {
	if expiry <= 0 {
		expiry = 10 * time.Minute
	}
	return &RedisLocker{
		rs:      redsync.New(goredis.NewPool(client)),
		prefix:  prefix,
		expiry:  expiry,
		refresh: expiry / 3,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	mutex := l.rs.NewMutex(l.prefix+key, redsync.WithExpiry(l.expiry), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		msg := err.Error()
		if errors.Is(err, redsync.ErrFailed) ||
			strings.Contains(msg, "lock already taken") ||
			strings.Contains(msg, "failed to acquire lock") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	stop, done := make(chan struct{}), make(chan struct{})
	go l.keepAlive(mutex, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// A fresh context: the caller's may already be cancelled.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, _ = mutex.UnlockContext(ctx)
		})
	}, true, nil
}

// keepAlive pushes the mutex expiry forward until stop is closed or an
// extension fails, which means the key is no longer ours.
func (l *RedisLocker) keepAlive(mutex *redsync.Mutex, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(l.refresh)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.refresh)
			ok, err := mutex.ExtendContext(ctx)
			cancel()
			if err != nil || !ok {
				return
			}
		}
	}
}
