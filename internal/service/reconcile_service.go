package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/parcelsync/internal/carrier"
	"github.com/parcelsync/internal/constants"
	"github.com/parcelsync/internal/logger"
	"github.com/parcelsync/internal/metrics"
	"github.com/parcelsync/internal/models"
	"github.com/parcelsync/internal/repository"

	"golang.org/x/sync/errgroup"
)

// TrackingFetcher 查询运单轨迹
type TrackingFetcher interface {
	FetchTracking(ctx context.Context, trackingRef string) (*carrier.TrackingSnapshot, error)
}

// ReconcileOptions 对账参数
type ReconcileOptions struct {
	BatchSize    int
	Concurrency  int
	OrderTimeout time.Duration
	CarrierName  string
}

// ReconcileReport 一轮对账汇总
type ReconcileReport struct {
	Scanned int `json:"scanned"`
	Applied int `json:"applied"`
	Ignored int `json:"ignored"`
	Failed  int `json:"failed"`
}

// ReconcileService 轮询承运商纠正漏掉的回调
type ReconcileService struct {
	orderRepo repository.OrderRepository
	tracker   TrackingFetcher
	machine   *ShipmentStatusService
	opts      ReconcileOptions
}

// NewReconcileService 创建对账服务
func NewReconcileService(orderRepo repository.OrderRepository, tracker TrackingFetcher, machine *ShipmentStatusService, opts ReconcileOptions) *ReconcileService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.OrderTimeout <= 0 {
		opts.OrderTimeout = 20 * time.Second
	}
	return &ReconcileService{
		orderRepo: orderRepo,
		tracker:   tracker,
		machine:   machine,
		opts:      opts,
	}
}

// RunOnce 按主键游标遍历所有非终态且已有运单号的订单。
// 单笔失败只计数，不中断整轮；上下文取消时返回已完成部分的汇总。
func (s *ReconcileService) RunOnce(ctx context.Context) (ReconcileReport, error) {
	started := time.Now()
	defer func() {
		metrics.ReconcileRunDuration.Observe(time.Since(started).Seconds())
	}()

	var (
		mu     sync.Mutex
		report ReconcileReport
		after  uint
	)
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		orders, err := s.orderRepo.ListReconcilable(ctx, after, s.opts.BatchSize)
		if err != nil {
			return report, fmt.Errorf("list reconcilable orders: %w", err)
		}
		if len(orders) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(s.opts.Concurrency)
		for i := range orders {
			order := orders[i]
			g.Go(func() error {
				result, err := s.reconcile(ctx, &order)
				outcome := "ignored"
				switch {
				case err != nil:
					outcome = "failed"
					logger.Warnw("reconcile_order_failed",
						"order_id", order.ID,
						"shipment_ref", order.ShipmentRef,
						"result", carrier.ResultLabel(err),
						"error", err,
					)
				case result.Applied():
					outcome = "applied"
				}
				metrics.ReconcileOrders.WithLabelValues(outcome).Inc()

				mu.Lock()
				report.Scanned++
				switch outcome {
				case "failed":
					report.Failed++
				case "applied":
					report.Applied++
				default:
					report.Ignored++
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		after = orders[len(orders)-1].ID
		if len(orders) < s.opts.BatchSize {
			break
		}
	}

	logger.Infow("reconcile_run_finished",
		"scanned", report.Scanned,
		"applied", report.Applied,
		"ignored", report.Ignored,
		"failed", report.Failed,
		"elapsed", time.Since(started).String(),
	)
	return report, nil
}

// ReconcileOrder 对单笔订单立即对账，供运营接口与队列任务调用
func (s *ReconcileService) ReconcileOrder(ctx context.Context, orderID uint) (ObserveResult, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return ObserveResult{}, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
	}
	if order == nil {
		return ObserveResult{}, ErrOrderNotFound
	}
	return s.reconcile(ctx, order)
}

func (s *ReconcileService) reconcile(ctx context.Context, order *models.Order) (ObserveResult, error) {
	if !order.HasShipment() {
		return ObserveResult{}, ErrOrderNoShipment
	}
	if IsTerminalStatus(order.Status) {
		return ObserveResult{Outcome: ObserveIgnored, From: order.Status, To: order.Status}, nil
	}
	if order.Carrier != "" && s.opts.CarrierName != "" && !strings.EqualFold(order.Carrier, s.opts.CarrierName) {
		return ObserveResult{}, ErrCarrierMismatch
	}

	orderCtx, cancel := context.WithTimeout(ctx, s.opts.OrderTimeout)
	defer cancel()

	snapshot, err := s.tracker.FetchTracking(orderCtx, order.ShipmentRef)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ObserveResult{}, fmt.Errorf("%w: %v", carrier.ErrNetwork, err)
		}
		return ObserveResult{}, err
	}
	latest, ok := snapshot.Latest()
	if !ok {
		return ObserveResult{Outcome: ObserveIgnored, From: order.Status, To: order.Status}, nil
	}
	return s.machine.ObserveEvent(orderCtx, order, latest, constants.ObserveSourcePoller)
}
