package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/parcelsync/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix      = "ps"
	defaultDialTimeout = 2 * time.Second
	defaultIOTimeout   = time.Second
	pingTimeout        = 3 * time.Second
)

// store 当前生效的连接与键前缀，整体替换避免关闭与读取交错
type store struct {
	client *redis.Client
	prefix string
}

var active atomic.Pointer[store]

// InitRedis 建立 Redis 连接并探活。
// 探活失败时客户端仍保留，后续调用各自报错：对账锁与限流在调用处按不可用处理。
func InitRedis(cfg *config.RedisConfig) error {
	if cfg == nil || !cfg.Enabled {
		replace(nil)
		return nil
	}
	opts := newOptions(cfg)
	s := &store{client: redis.NewClient(opts), prefix: prefixOrDefault(cfg.Prefix)}
	replace(s)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s failed: %w", opts.Addr, err)
	}
	return nil
}

func newOptions(cfg *config.RedisConfig) *redis.Options {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	ioTimeout := millisOr(cfg.IOTimeoutMs, defaultIOTimeout)
	return &redis.Options{
		Addr:         net.JoinHostPort(host, strconv.Itoa(port)),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  millisOr(cfg.DialTimeoutMs, defaultDialTimeout),
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
	}
}

func millisOr(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func prefixOrDefault(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		return defaultPrefix
	}
	return prefix
}

func replace(next *store) {
	if prev := active.Swap(next); prev != nil && prev.client != nil {
		_ = prev.client.Close()
	}
}

// Enabled 判断缓存是否启用
func Enabled() bool {
	return active.Load() != nil
}

// Client 获取 Redis 客户端，未启用时为 nil
func Client() *redis.Client {
	s := active.Load()
	if s == nil {
		return nil
	}
	return s.client
}

// GetJSON 读取 JSON 值，键不存在或未启用时 found 为 false
func GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	s := active.Load()
	if s == nil {
		return false, nil
	}
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, fmt.Errorf("decode cached %s failed: %w", key, err)
	}
	return true, nil
}

// SetJSON 写入 JSON 值
func SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	s := active.Load()
	if s == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), payload, ttl).Err()
}

// Close 关闭连接并停用缓存
func Close() error {
	s := active.Swap(nil)
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *store) key(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return s.prefix
	}
	return s.prefix + ":" + trimmed
}

// buildKey 以当前前缀拼接键，未启用时使用默认前缀
func buildKey(key string) string {
	s := active.Load()
	if s == nil {
		s = &store{prefix: defaultPrefix}
	}
	return s.key(key)
}
