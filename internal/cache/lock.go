package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 仅删除自己持有的锁
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock 分布式互斥锁
type Lock struct {
	key   string
	token string
}

// TryLock 以 SET NX PX 抢占锁；Redis 未启用时视为单实例直接成功
func TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	lock := &Lock{key: buildKey(key), token: uuid.NewString()}
	client := Client()
	if client == nil {
		return lock, true, nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	ok, err := client.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return lock, true, nil
}

// Unlock 释放锁，锁已过期或被他人持有时不做任何事
func (l *Lock) Unlock(ctx context.Context) error {
	client := Client()
	if l == nil || client == nil {
		return nil
	}
	return releaseLockScript.Run(ctx, client, []string{l.key}, l.token).Err()
}
