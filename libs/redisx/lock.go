package redisx

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock is a single-holder lease in Redis. Holders are identified by a random
// token so a lease that expired and was re-acquired elsewhere is never released
// by the previous holder.
type Lock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewLock(rdb *redis.Client, key string, ttl time.Duration) *Lock {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "lock"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Lock{rdb: rdb, key: key, ttl: ttl}
}

// TryAcquire returns ok=false without error when another holder owns the lease.
func (l *Lock) TryAcquire(ctx context.Context) (release func(context.Context) error, ok bool, err error) {
	token := uuid.NewString()
	ok, err = l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err()
	}, true, nil
}
