// Package distlock provides a best-effort cross-instance lock for the
// scheduler's poll cycle.
//
// With a Redis client it uses SET NX with a TTL and ownership verification;
// without one it falls back to PostgreSQL advisory locks, which release
// automatically if the session drops.
package distlock

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a single-holder lock. A Lock instance is for one goroutine;
// concurrent holders need separate instances.
type Lock interface {
	// TryAcquire attempts to take the lock without blocking.
	TryAcquire(ctx context.Context) (bool, error)
	// Release releases the lock if this instance still owns it.
	Release(ctx context.Context) error
}

// New picks the best available backend: Redis when a client is provided,
// otherwise PostgreSQL advisory locks.
func New(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) Lock {
	if redisClient != nil {
		return newRedisLock(redisClient, key, ttl)
	}
	return newAdvisoryLock(db, key)
}

type redisLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

func newRedisLock(client *redis.Client, key string, ttl time.Duration) *redisLock {
	b := make([]byte, 16)
	rand.Read(b)
	return &redisLock{
		client: client,
		key:    "lock:" + key,
		owner:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

func (l *redisLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

func (l *redisLock) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Result()
	return err
}

type advisoryLock struct {
	db     *sql.DB
	lockID int64
}

func newAdvisoryLock(db *sql.DB, key string) *advisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &advisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *advisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	if l.db == nil {
		// No coordination backend at all: single-instance deployment is
		// assumed and the lock is a pass-through.
		return true, nil
	}
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

func (l *advisoryLock) Release(ctx context.Context) error {
	if l.db == nil {
		return nil
	}
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
