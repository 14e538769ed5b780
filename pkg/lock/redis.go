// pkg/lock/redis.go
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by someone else is never released by us.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisLocker implements Locker with SET NX PX and a random owner token.
type RedisLocker struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewRedisLocker creates a RedisLocker whose locks expire after ttl.
func NewRedisLocker(client goredis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Lock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &redisLock{client: l.client, key: key, token: token}, nil
}

type redisLock struct {
	client goredis.UniversalClient
	key    string
	token  string
	once   sync.Once
	err    error
}

func (r *redisLock) Release(ctx context.Context) error {
	r.once.Do(func() {
		n, err := releaseScript.Run(ctx, r.client, []string{r.key}, r.token).Int64()
		if err != nil {
			r.err = fmt.Errorf("redis unlock %s: %w", r.key, err)
			return
		}
		if n == 0 {
			r.err = fmt.Errorf("redis unlock %s: lock expired before release", r.key)
		}
	})
	return r.err
}
