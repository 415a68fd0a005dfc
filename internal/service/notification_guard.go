package service

import (
	"context"
	"strings"

	"github.com/parcelsync/internal/config"
	"github.com/parcelsync/internal/constants"
	"github.com/parcelsync/internal/logger"
	"github.com/parcelsync/internal/metrics"
	"github.com/parcelsync/internal/models"
	"github.com/parcelsync/internal/notify"
	"github.com/parcelsync/internal/repository"
)

type notificationRule struct {
	kind string
	bit  uint
}

// 进入这些状态时需要通知顾客；跳过 shipped 直接进入 in_transit 时仍补发发货通知
var notificationRules = map[string]notificationRule{
	constants.OrderStatusShipped:   {kind: constants.NotificationKindShipped, bit: constants.NotifiedFlagShipped},
	constants.OrderStatusInTransit: {kind: constants.NotificationKindShipped, bit: constants.NotifiedFlagShipped},
	constants.OrderStatusDelivered: {kind: constants.NotificationKindDelivered, bit: constants.NotifiedFlagDelivered},
}

// NotificationGuard 保证每类通知对每个订单至多发送一次
type NotificationGuard struct {
	orderRepo  repository.OrderRepository
	dispatcher NotificationDispatcher
	templates  config.TemplateConfig
}

// NewNotificationGuard 创建通知守卫
func NewNotificationGuard(orderRepo repository.OrderRepository, dispatcher NotificationDispatcher, templates config.TemplateConfig) *NotificationGuard {
	return &NotificationGuard{
		orderRepo:  orderRepo,
		dispatcher: dispatcher,
		templates:  templates,
	}
}

// MaybeNotify 原子置位通知位，只有本次调用完成置位时才派发。
// 派发失败只记录日志和指标，不回滚状态与通知位。
func (g *NotificationGuard) MaybeNotify(ctx context.Context, order *models.Order, oldStatus, newStatus string) bool {
	if g == nil || order == nil {
		return false
	}
	rule, ok := notificationRules[newStatus]
	if !ok || oldStatus == newStatus {
		return false
	}

	// 通知位只增不减，内存中已置位说明早已发送
	if order.HasNotified(rule.bit) {
		metrics.Notifications.WithLabelValues(rule.kind, "duplicate").Inc()
		return false
	}

	claimed, err := g.orderRepo.SetNotifiedFlag(ctx, order.ID, rule.bit)
	if err != nil {
		metrics.Notifications.WithLabelValues(rule.kind, "flag_error").Inc()
		logger.Errorw("notification_flag_failed",
			"order_id", order.ID,
			"kind", rule.kind,
			"error", err,
		)
		return false
	}
	if !claimed {
		metrics.Notifications.WithLabelValues(rule.kind, "duplicate").Inc()
		logger.Debugw("notification_already_sent", "order_id", order.ID, "kind", rule.kind)
		return false
	}
	order.NotifiedFlags |= rule.bit

	job := NotificationJob{OrderID: order.ID, Message: g.buildMessage(order, rule.kind)}
	if g.dispatcher == nil {
		metrics.Notifications.WithLabelValues(rule.kind, "dropped").Inc()
		logger.Warnw("notification_dispatcher_missing", "order_id", order.ID, "kind", rule.kind)
		return true
	}
	if err := g.dispatcher.Dispatch(ctx, job); err != nil {
		metrics.Notifications.WithLabelValues(rule.kind, "dropped").Inc()
		logger.Errorw("notification_dispatch_failed",
			"order_id", order.ID,
			"kind", rule.kind,
			"error", err,
		)
		return true
	}
	metrics.Notifications.WithLabelValues(rule.kind, "dispatched").Inc()
	return true
}

func (g *NotificationGuard) buildMessage(order *models.Order, kind string) notify.Message {
	vars := map[string]string{
		"name":         firstNonBlank(order.CustomerName, order.Delivery.Name, "there"),
		"order_no":     order.OrderNo,
		"tracking_ref": order.ShipmentRef,
	}
	body, subject := g.templates.Shipped, g.templates.ShippedSubject
	if kind == constants.NotificationKindDelivered {
		body, subject = g.templates.Delivered, g.templates.DeliveredSubject
	}
	return notify.Message{
		Kind:    kind,
		OrderNo: order.OrderNo,
		Phone:   firstNonBlank(order.CustomerPhone, order.Delivery.Phone),
		Email:   strings.TrimSpace(order.CustomerEmail),
		Subject: notify.Render(subject, vars),
		Body:    notify.Render(body, vars),
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
