package lease

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Lease decides whether this instance may run a scan. Several scanners can run against the same
// store; only the lease holder does work.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Always is used when no lease backend is configured.
type Always struct{}

func (Always) Acquire(context.Context) (bool, error) { return true, nil }
func (Always) Release(context.Context) error { return nil }

// acquire takes a free lease or extends one this owner already holds.
var acquire = goredis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur == false then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
if cur == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

var release = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLease struct {
	client goredis.Scripter
	key    string
	owner  string
	ttl    time.Duration
}

func NewRedisLease(client goredis.Scripter, key, owner string, ttl time.Duration) *RedisLease {
	return &RedisLease{
		client: client,
		key:    key,
		owner:  owner,
		ttl:    ttl,
	}
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	n, err := acquire.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", l.key, err)
	}

	return n == 1, nil
}

func (l *RedisLease) Release(ctx context.Context) error {
	if err := release.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", l.key, err)
	}

	return nil
}
