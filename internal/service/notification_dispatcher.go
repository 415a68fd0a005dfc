package service

import (
	"context"
	"sync"
	"time"

	"github.com/parcelsync/internal/logger"
	"github.com/parcelsync/internal/metrics"
	"github.com/parcelsync/internal/notify"
	"github.com/parcelsync/internal/queue"
)

// NotificationJob 已通过守卫、等待投递的通知
type NotificationJob struct {
	OrderID uint
	Message notify.Message
}

// NotificationDispatcher 通知派发，必须非阻塞返回
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, job NotificationJob) error
}

// DeliverNotification 调用发送方完成投递，失败仅记录，不重试
func DeliverNotification(ctx context.Context, sender notify.Sender, job NotificationJob) error {
	if sender == nil {
		return nil
	}
	err := sender.Send(ctx, job.Message)
	if err != nil {
		metrics.Notifications.WithLabelValues(job.Message.Kind, "send_failed").Inc()
		logger.Errorw("notification_send_failed",
			"order_id", job.OrderID,
			"order_no", job.Message.OrderNo,
			"kind", job.Message.Kind,
			"channel", sender.Channel(),
			"error", err,
		)
		return err
	}
	metrics.Notifications.WithLabelValues(job.Message.Kind, "sent").Inc()
	logger.Infow("notification_sent",
		"order_id", job.OrderID,
		"order_no", job.Message.OrderNo,
		"kind", job.Message.Kind,
		"channel", sender.Channel(),
	)
	return nil
}

// QueueNotificationDispatcher 通过 asynq 任务派发，入队失败时退回进程内派发
type QueueNotificationDispatcher struct {
	client   *queue.Client
	fallback NotificationDispatcher
}

// NewQueueNotificationDispatcher 创建队列派发器
func NewQueueNotificationDispatcher(client *queue.Client, fallback NotificationDispatcher) *QueueNotificationDispatcher {
	return &QueueNotificationDispatcher{client: client, fallback: fallback}
}

// Dispatch 入队通知任务
func (d *QueueNotificationDispatcher) Dispatch(ctx context.Context, job NotificationJob) error {
	err := d.client.EnqueueShipmentNotification(ctx, queue.ShipmentNotificationPayload{
		OrderID: job.OrderID,
		OrderNo: job.Message.OrderNo,
		Kind:    job.Message.Kind,
		Phone:   job.Message.Phone,
		Email:   job.Message.Email,
		Subject: job.Message.Subject,
		Body:    job.Message.Body,
	})
	if err == nil || d.fallback == nil {
		return err
	}
	logger.Warnw("notification_enqueue_failed_fallback_local",
		"order_id", job.OrderID,
		"kind", job.Message.Kind,
		"error", err,
	)
	return d.fallback.Dispatch(ctx, job)
}

// JobFromPayload 还原队列载荷
func JobFromPayload(payload queue.ShipmentNotificationPayload) NotificationJob {
	return NotificationJob{
		OrderID: payload.OrderID,
		Message: notify.Message{
			Kind:    payload.Kind,
			OrderNo: payload.OrderNo,
			Phone:   payload.Phone,
			Email:   payload.Email,
			Subject: payload.Subject,
			Body:    payload.Body,
		},
	}
}

// LocalNotificationDispatcher 进程内有界派发：固定 worker 消费缓冲通道，满时丢弃
type LocalNotificationDispatcher struct {
	sender  notify.Sender
	jobs    chan NotificationJob
	workers int
	timeout time.Duration

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// NewLocalNotificationDispatcher 创建进程内派发器
func NewLocalNotificationDispatcher(sender notify.Sender, workers, bufferSize int, timeout time.Duration) *LocalNotificationDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LocalNotificationDispatcher{
		sender:  sender,
		jobs:    make(chan NotificationJob, bufferSize),
		workers: workers,
		timeout: timeout,
	}
}

// Start 启动 worker，可重复调用
func (d *LocalNotificationDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.loop()
	}
}

func (d *LocalNotificationDispatcher) loop() {
	defer d.wg.Done()
	for job := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		_ = DeliverNotification(ctx, d.sender, job)
		cancel()
	}
}

// Dispatch 非阻塞投入缓冲通道
func (d *LocalNotificationDispatcher) Dispatch(_ context.Context, job NotificationJob) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	select {
	case d.jobs <- job:
		return nil
	default:
		logger.Warnw("notification_dispatch_dropped",
			"order_id", job.OrderID,
			"kind", job.Message.Kind,
			"buffer", cap(d.jobs),
		)
		return ErrDispatchQueueFull
	}
}

// Stop 停止接收新任务并等待缓冲中的任务投递完成
func (d *LocalNotificationDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.jobs)
	started := d.started
	d.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
