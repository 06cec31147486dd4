package saga

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// Lock is the interface for single-writer-per-instance locking.
type Lock interface {
	// Acquire acquires the lock for an instance id.
	// Returns a token if successful. Distributed implementations fail fast
	// with an InstanceLockedError when another writer holds the id.
	Acquire(ctx context.Context, id string, ttl time.Duration) (string, error)

	// Release releases the lock for an instance id.
	Release(ctx context.Context, id string, token string) error
}

// LocalLock serialises writers per id inside one process. Acquire blocks
// until the id is free or ctx is done; waiters are admitted in arrival
// order, so signals for one id are applied in the order they were handed in.
type LocalLock struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

// localEntry exists while the id is held. Release hands the id straight to
// the oldest waiter.
type localEntry struct {
	waiters []chan struct{}
}

// NewLocalLock creates a new LocalLock.
func NewLocalLock() *LocalLock {
	return &LocalLock{entries: make(map[string]*localEntry)}
}

// Acquire blocks until the id is free. ttl is ignored: the holder always
// releases within the same process.
func (l *LocalLock) Acquire(ctx context.Context, id string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	e, held := l.entries[id]
	if !held {
		l.entries[id] = &localEntry{}
		l.mu.Unlock()
		return "local", nil
	}
	turn := make(chan struct{})
	e.waiters = append(e.waiters, turn)
	l.mu.Unlock()

	select {
	case <-turn:
		return "local", nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i, w := range e.waiters {
		if w == turn {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return "", ctx.Err()
		}
	}
	// Handed over while giving up: pass the id on.
	l.handOff(id, e)
	return "", ctx.Err()
}

// Release frees the id, or hands it to the oldest waiter.
func (l *LocalLock) Release(ctx context.Context, id string, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return fmt.Errorf("release %s: not locked", id)
	}
	l.handOff(id, e)
	return nil
}

// handOff must be called with l.mu held.
func (l *LocalLock) handOff(id string, e *localEntry) {
	if len(e.waiters) == 0 {
		delete(l.entries, id)
		return
	}
	next := e.waiters[0]
	e.waiters = e.waiters[1:]
	close(next)
}

// Ensure LocalLock implements Lock.
var _ Lock = (*LocalLock)(nil)

// PostgresLock implements Lock using PostgreSQL advisory locks.
type PostgresLock struct {
	db *sql.DB

	mu    sync.Mutex
	conns map[string]*sql.Conn
}

// NewPostgresLock creates a new PostgresLock.
func NewPostgresLock(db *sql.DB) *PostgresLock {
	return &PostgresLock{db: db, conns: make(map[string]*sql.Conn)}
}

// hashToLockKey converts an instance ID to a 64-bit lock key using SHA-256.
func hashToLockKey(id string) int64 {
	hash := sha256.Sum256([]byte(id))
	// Read first 8 bytes as signed int64
	return int64(binary.BigEndian.Uint64(hash[:8]))
}

// Acquire attempts to acquire a PostgreSQL advisory lock. Advisory locks are
// session scoped, so the connection is pinned until Release.
func (l *PostgresLock) Acquire(ctx context.Context, id string, ttl time.Duration) (string, error) {
	lockKey := hashToLockKey(id)

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("advisory lock conn: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockKey).Scan(&acquired); err != nil {
		conn.Close()
		return "", fmt.Errorf("advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return "", NewInstanceLockedError(id, nil)
	}

	token := fmt.Sprintf("%d", lockKey)
	l.mu.Lock()
	l.conns[id+"/"+token] = conn
	l.mu.Unlock()

	return token, nil
}

// Release releases a PostgreSQL advisory lock.
func (l *PostgresLock) Release(ctx context.Context, id string, token string) error {
	l.mu.Lock()
	conn, ok := l.conns[id+"/"+token]
	delete(l.conns, id+"/"+token)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	defer conn.Close()

	var released bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", hashToLockKey(id)).Scan(&released); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}

	// Note: released will be false if we didn't hold the lock, which is fine
	return nil
}

// Ensure PostgresLock implements Lock.
var _ Lock = (*PostgresLock)(nil)
