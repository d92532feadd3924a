// Package distlock guards operations that must run at most once across
// server instances, such as a campaign dispatch for one sender.
package distlock

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a single-use distributed lock. Acquire and Release must be
// called from the same goroutine.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// New returns a Redis-backed lock when a client is available, otherwise
// a Postgres advisory lock on the same key.
func New(rdb *redis.Client, db *sql.DB, key string, ttl time.Duration) Lock {
	if rdb != nil {
		return newRedisLock(rdb, key, ttl)
	}
	return newAdvisoryLock(db, key)
}

// redisLock holds the key with SET NX and a random owner token; release
// is a compare-and-delete so an expired lock taken over by another
// process is never deleted from here.
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
		key:    "outreach:lock:" + key,
		owner:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

func (l *redisLock) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

func (l *redisLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err()
}

// advisoryLock maps the key onto a pg_try_advisory_lock id. The lock is
// session scoped, so a dropped connection releases it much like a Redis
// TTL expiry would.
type advisoryLock struct {
	db *sql.DB
	id int64
}

func newAdvisoryLock(db *sql.DB, key string) *advisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &advisoryLock{db: db, id: int64(h.Sum64())}
}

func (l *advisoryLock) Acquire(ctx context.Context) (bool, error) {
	var got bool
	err := l.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.id).Scan(&got)
	return got, err
}

func (l *advisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, l.id)
	return err
}
