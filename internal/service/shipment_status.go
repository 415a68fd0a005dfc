package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/parcelsync/internal/carrier"
	"github.com/parcelsync/internal/constants"
	"github.com/parcelsync/internal/logger"
	"github.com/parcelsync/internal/metrics"
	"github.com/parcelsync/internal/models"
	"github.com/parcelsync/internal/repository"
)

// ObserveOutcome 状态观测结果
type ObserveOutcome string

const (
	ObserveApplied ObserveOutcome = "applied"
	ObserveIgnored ObserveOutcome = "ignored"
)

// ObserveResult 一次观测的判定结果
type ObserveResult struct {
	Outcome ObserveOutcome `json:"outcome"`
	From    string         `json:"from"`
	To      string         `json:"to"`
}

// Applied 是否发生了状态迁移
func (r ObserveResult) Applied() bool {
	return r.Outcome == ObserveApplied
}

var statusRanks = map[string]int{
	constants.OrderStatusPending:   0,
	constants.OrderStatusConfirmed: 1,
	constants.OrderStatusShipped:   2,
	constants.OrderStatusInTransit: 3,
	constants.OrderStatusDelivered: 4,
}

// 状态只会前进，重读次数上限覆盖全部可能的迁移
const maxObserveAttempts = 6

// 状态提交后通知守卫的执行上限，与调用方的取消解耦
const guardTimeout = 10 * time.Second

// IsTerminalStatus 是否终态
func IsTerminalStatus(status string) bool {
	return status == constants.OrderStatusDelivered || status == constants.OrderStatusCancelled
}

// IsKnownStatus 是否为规范状态
func IsKnownStatus(status string) bool {
	if status == constants.OrderStatusCancelled {
		return true
	}
	_, ok := statusRanks[status]
	return ok
}

// shouldApply 判断 candidate 能否从 current 迁移
func shouldApply(current, candidate string) bool {
	if IsTerminalStatus(current) || !IsKnownStatus(current) {
		return false
	}
	if candidate == constants.OrderStatusCancelled {
		return true
	}
	candidateRank, ok := statusRanks[candidate]
	if !ok {
		return false
	}
	return candidateRank > statusRanks[current]
}

// ShipmentStatusService 订单履约状态机，是订单状态唯一的写入方
type ShipmentStatusService struct {
	orderRepo repository.OrderRepository
	eventRepo repository.ShipmentEventRepository
	guard     *NotificationGuard
	now       func() time.Time
}

// NewShipmentStatusService 创建状态机
func NewShipmentStatusService(orderRepo repository.OrderRepository, eventRepo repository.ShipmentEventRepository, guard *NotificationGuard) *ShipmentStatusService {
	return &ShipmentStatusService{
		orderRepo: orderRepo,
		eventRepo: eventRepo,
		guard:     guard,
		now:       time.Now,
	}
}

// ObserveEvent 记录承运商事件并以其映射结果调用 Observe，回调与对账共用
func (s *ShipmentStatusService) ObserveEvent(ctx context.Context, order *models.Order, event carrier.TrackingEvent, source string) (ObserveResult, error) {
	if order == nil || order.ID == 0 {
		return ObserveResult{}, ErrOrderNotFound
	}
	candidate := carrier.MapEvent(event, order.Status)
	if s.eventRepo != nil {
		record := &models.ShipmentEvent{
			OrderID:      order.ID,
			TrackingRef:  order.ShipmentRef,
			StatusCode:   strings.TrimSpace(event.StatusCode),
			StatusText:   strings.TrimSpace(event.Status),
			Location:     strings.TrimSpace(event.Location),
			EventTime:    event.EventTime,
			Source:       source,
			MappedStatus: candidate,
		}
		if record.StatusCode == "" {
			record.StatusCode = carrier.NormalizeStatus(event.Status)
		}
		if record.EventTime.IsZero() {
			record.EventTime = s.now().UTC().Truncate(time.Second)
		}
		if _, err := s.eventRepo.Append(ctx, record); err != nil {
			return ObserveResult{}, fmt.Errorf("%w: append shipment event: %v", ErrOrderUpdateFailed, err)
		}
	}
	return s.Observe(ctx, order, candidate, event.EventTime, source)
}

// Observe 提交一次状态观测。迁移通过条件更新完成，未命中时重读订单并重新判定；
// 成功迁移后交给通知守卫。order 会被更新为最新读取到的状态。
func (s *ShipmentStatusService) Observe(ctx context.Context, order *models.Order, candidate string, observedAt time.Time, source string) (ObserveResult, error) {
	if order == nil || order.ID == 0 {
		return ObserveResult{}, ErrOrderNotFound
	}
	if observedAt.IsZero() {
		observedAt = s.now()
	}

	for attempt := 0; attempt < maxObserveAttempts; attempt++ {
		current := order.Status
		if !shouldApply(current, candidate) {
			s.record(source, ObserveIgnored)
			logger.Debugw("shipment_status_ignored",
				"order_id", order.ID,
				"current", current,
				"candidate", candidate,
				"source", source,
			)
			return ObserveResult{Outcome: ObserveIgnored, From: current, To: current}, nil
		}

		stamp := observedAt
		if order.LastObservedAt != nil && order.LastObservedAt.After(stamp) {
			stamp = *order.LastObservedAt
		}
		applied, err := s.orderRepo.ConditionalUpdateStatus(ctx, order.ID, repository.StatusUpdate{
			From:           current,
			To:             candidate,
			LastObservedAt: stamp,
		})
		if err != nil {
			s.record(source, "error")
			return ObserveResult{}, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
		}
		if applied {
			order.Status = candidate
			order.LastObservedAt = &stamp
			s.record(source, ObserveApplied)
			logger.Infow("shipment_status_applied",
				"order_id", order.ID,
				"order_no", order.OrderNo,
				"from", current,
				"to", candidate,
				"source", source,
			)
			if s.guard != nil {
				// 迁移已提交，回调断开或对账超时都不能让通知位落空
				guardCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), guardTimeout)
				s.guard.MaybeNotify(guardCtx, order, current, candidate)
				cancel()
			}
			return ObserveResult{Outcome: ObserveApplied, From: current, To: candidate}, nil
		}

		fresh, err := s.orderRepo.GetByID(ctx, order.ID)
		if err != nil {
			s.record(source, "error")
			return ObserveResult{}, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
		}
		if fresh == nil {
			return ObserveResult{}, ErrOrderNotFound
		}
		*order = *fresh
	}

	s.record(source, "error")
	return ObserveResult{}, fmt.Errorf("%w: status kept changing under observation", ErrOrderUpdateFailed)
}

func (s *ShipmentStatusService) record(source string, outcome ObserveOutcome) {
	metrics.StatusObservations.WithLabelValues(source, string(outcome)).Inc()
}
