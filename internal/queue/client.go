package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parcelsync/internal/config"
	"github.com/parcelsync/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 通知等时效敏感任务
	CriticalQueue = constants.QueueCritical
)

// 入队发生在回调请求链路上，Redis 迟缓时尽快失败交给进程内派发
const defaultEnqueueTimeout = 2 * time.Second

// ErrQueueDisabled 队列未启用
var ErrQueueDisabled = errors.New("queue disabled")

// Client 队列客户端封装
type Client struct {
	client         *asynq.Client
	enabled        bool
	defaultQueue   string
	enqueueTimeout time.Duration
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false, defaultQueue: DefaultQueue}, nil
	}
	opt := buildRedisOpt(cfg)
	client := asynq.NewClient(opt)
	timeout := time.Duration(cfg.EnqueueTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultEnqueueTimeout
	}
	return &Client{
		client:         client,
		enabled:        true,
		defaultQueue:   DefaultQueue,
		enqueueTimeout: timeout,
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueShipmentNotification 推送通知任务；通知至多投递一次，不做重试
func (c *Client) EnqueueShipmentNotification(ctx context.Context, payload ShipmentNotificationPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return ErrQueueDisabled
	}
	task, err := NewShipmentNotificationTask(payload)
	if err != nil {
		return err
	}
	options := append([]asynq.Option{
		asynq.Queue(CriticalQueue),
		asynq.MaxRetry(0),
		asynq.Timeout(time.Minute),
	}, opts...)
	return c.enqueue(ctx, task, options...)
}

// EnqueueReconcileOrder 推送单笔对账任务，同一订单短时间内只保留一个
func (c *Client) EnqueueReconcileOrder(ctx context.Context, payload ReconcileOrderPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return ErrQueueDisabled
	}
	task, err := NewReconcileOrderTask(payload)
	if err != nil {
		return err
	}
	options := append([]asynq.Option{
		asynq.Queue(c.defaultQueue),
		asynq.MaxRetry(2),
		asynq.Unique(time.Minute),
	}, opts...)
	err = c.enqueue(ctx, task, options...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// enqueue 在 enqueueTimeout 内完成写入，超时返回错误而不是阻塞调用方
func (c *Client) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.enqueueTimeout)
	defer cancel()
	_, err := c.client.EnqueueContext(ctx, task, opts...)
	return err
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 10
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{CriticalQueue: 6, DefaultQueue: 3}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
