package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/parcelsync/internal/carrier"
	"github.com/parcelsync/internal/logger"
	"github.com/parcelsync/internal/provider"
	"github.com/parcelsync/internal/queue"
	"github.com/parcelsync/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskShipmentNotification, c.handleShipmentNotification)
	mux.HandleFunc(queue.TaskReconcileOrder, c.handleReconcileOrder)
}

// handleShipmentNotification 投递通知。任务不重试，失败只记录。
func (c *Consumer) handleShipmentNotification(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.Container == nil || task == nil {
		logger.Debugw("worker_notification_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ShipmentNotificationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_notification_unmarshal_failed", "error", err)
		return nil
	}
	if payload.OrderID == 0 || payload.Kind == "" {
		logger.Debugw("worker_notification_skip_invalid_payload", "order_id", payload.OrderID, "kind", payload.Kind)
		return nil
	}
	if c.NotifySender == nil {
		logger.Warnw("worker_notification_skip_sender_nil", "order_id", payload.OrderID)
		return nil
	}
	job := service.JobFromPayload(payload)
	if err := service.DeliverNotification(ctx, c.NotifySender, job); err != nil {
		logger.Warnw("worker_notification_delivery_failed",
			"order_id", payload.OrderID,
			"order_no", payload.OrderNo,
			"kind", payload.Kind,
			"error", err,
		)
	}
	return nil
}

func (c *Consumer) handleReconcileOrder(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.Container == nil || task == nil {
		logger.Debugw("worker_reconcile_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ReconcileOrderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_reconcile_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_reconcile_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.ReconcileService == nil {
		logger.Warnw("worker_reconcile_skip_service_nil", "order_id", payload.OrderID)
		return nil
	}
	result, err := c.ReconcileService.ReconcileOrder(ctx, payload.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			logger.Debugw("worker_reconcile_skip_order_not_found", "order_id", payload.OrderID)
			return nil
		case errors.Is(err, service.ErrOrderNoShipment), errors.Is(err, service.ErrCarrierMismatch):
			logger.Debugw("worker_reconcile_skip_not_reconcilable", "order_id", payload.OrderID, "error", err)
			return nil
		case errors.Is(err, carrier.ErrNotFound):
			logger.Warnw("worker_reconcile_tracking_not_found", "order_id", payload.OrderID, "error", err)
			return nil
		default:
			logger.Warnw("worker_reconcile_failed", "order_id", payload.OrderID, "error", err)
			return err
		}
	}
	logger.Debugw("worker_reconcile_done",
		"order_id", payload.OrderID,
		"outcome", result.Outcome,
		"from", result.From,
		"to", result.To,
	)
	return nil
}
