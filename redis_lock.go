package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

// RedisLockOptions configures RedisLock.
type RedisLockOptions struct {
	// KeyPrefix is prepended to instance ids. Default: "saga:lock:".
	KeyPrefix string

	// Tries is the number of acquisition attempts. Default: 1 (fail fast).
	Tries int

	// RetryDelay is the delay between attempts. Default: 50ms.
	RetryDelay time.Duration
}

// RedisLock implements Lock with the RedLock algorithm, for engines running
// in several processes against shared storage.
type RedisLock struct {
	redsync *redsync.Redsync
	opts    RedisLockOptions

	mu      sync.Mutex
	mutexes map[string]*redsync.Mutex
}

// NewRedisLock creates a new RedisLock over a go-redis client.
func NewRedisLock(client goredislib.UniversalClient, opts RedisLockOptions) (*RedisLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "saga:lock:"
	}
	if opts.Tries <= 0 {
		opts.Tries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}

	return &RedisLock{
		redsync: redsync.New(goredis.NewPool(client)),
		opts:    opts,
		mutexes: make(map[string]*redsync.Mutex),
	}, nil
}

// Acquire acquires the RedLock mutex for id.
func (l *RedisLock) Acquire(ctx context.Context, id string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	mutex := l.redsync.NewMutex(
		l.opts.KeyPrefix+id,
		redsync.WithExpiry(ttl),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		// Taken, quorum lost or node errors all mean another attempt must
		// come from redelivery.
		return "", NewInstanceLockedError(id, err)
	}

	token := mutex.Value()
	l.mu.Lock()
	l.mutexes[id+"/"+token] = mutex
	l.mu.Unlock()

	return token, nil
}

// Release releases the RedLock mutex for id.
func (l *RedisLock) Release(ctx context.Context, id string, token string) error {
	l.mu.Lock()
	mutex, ok := l.mutexes[id+"/"+token]
	delete(l.mutexes, id+"/"+token)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	if _, err := mutex.UnlockContext(ctx); err != nil {
		return fmt.Errorf("redis unlock: %w", err)
	}
	return nil
}

// Ensure RedisLock implements Lock.
var _ Lock = (*RedisLock)(nil)
