package carrier

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type loginFunc func(ctx context.Context) (string, error)

// tokenCache 持有承运商会话 token，过期或被判失效后懒刷新，并发刷新合并为一次登录
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	ttl       time.Duration
	now       func() time.Time
	login     loginFunc
	group     singleflight.Group
}

func newTokenCache(ttl time.Duration, login loginFunc) *tokenCache {
	return &tokenCache{
		ttl:   ttl,
		now:   time.Now,
		login: login,
	}
}

// Get 返回可用 token，必要时登录
func (c *tokenCache) Get(ctx context.Context) (string, error) {
	if token, ok := c.current(); ok {
		return token, nil
	}
	value, err, _ := c.group.Do("token", func() (interface{}, error) {
		if token, ok := c.current(); ok {
			return token, nil
		}
		// 共享登录不受首个调用方取消影响
		token, err := c.login(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = token
		if c.ttl > 0 {
			c.expiresAt = c.now().Add(c.ttl)
		} else {
			c.expiresAt = time.Time{}
		}
		c.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// Invalidate 作废指定 token；若期间已被别的调用刷新则保留新 token
func (c *tokenCache) Invalidate(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == stale {
		c.token = ""
		c.expiresAt = time.Time{}
	}
}

func (c *tokenCache) current() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return "", false
	}
	if !c.expiresAt.IsZero() && !c.now().Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}
