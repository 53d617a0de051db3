// Package distlock keeps multiple scheduler instances from firing the same
// cron tick twice. A lock is held per schedule name per tick; whoever wins
// the acquire enqueues, everyone else skips.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a single-owner lease. One instance per goroutine; sharing an
// instance across goroutines breaks ownership tracking.
type DistLock interface {
	// Acquire attempts the lease, returning true when this instance won it.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lease up, but only when this instance still owns it.
	Release(ctx context.Context) error
}

// NewLock picks the backend: Redis when a client is available (works across
// hosts), otherwise a Postgres advisory lock on the same database the
// repositories use.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// PGAdvisoryLock leases a pg_try_advisory_lock slot. Advisory locks are
// session-scoped, so a crashed holder frees the slot when its connection
// drops; there is no TTL to tune.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewPGAdvisoryLock maps the key onto Postgres's int64 lock space via FNV-1a,
// so the same schedule name always contends on the same slot.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire is non-blocking: pg_try_advisory_lock returns immediately rather
// than queueing behind the current holder.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

// Release unlocks the advisory slot.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
