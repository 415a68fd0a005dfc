package admin

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	handlershared "github.com/parcelsync/internal/http/handlers/shared"
	"github.com/parcelsync/internal/http/response"
	"github.com/parcelsync/internal/queue"
	"github.com/parcelsync/internal/repository"

	"github.com/gin-gonic/gin"
)

const (
	defaultTrackingEventLimit = 50
	maxTrackingEventLimit     = 500
	defaultManualRunTimeout   = 30 * time.Minute
)

// ListOrders 运营端订单列表
func (h *Handler) ListOrders(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	orders, total, err := h.ShipmentService.ListOrders(c.Request.Context(), repository.OrderListFilter{
		Status:   strings.TrimSpace(c.Query("status")),
		Keyword:  strings.TrimSpace(c.Query("keyword")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		handlershared.RespondMappedError(c, err, orderLookupErrorRules, response.CodeInternal, "order fetch failed")
		return
	}
	response.SuccessWithPage(c, orders, response.NewPagination(page, pageSize, total))
}

// GetOrderTracking 订单状态与轨迹
func (h *Handler) GetOrderTracking(c *gin.Context) {
	orderID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		response.BadRequest(c, "invalid order id")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultTrackingEventLimit)))
	if limit <= 0 {
		limit = defaultTrackingEventLimit
	}
	if limit > maxTrackingEventLimit {
		limit = maxTrackingEventLimit
	}
	view, err := h.ShipmentService.GetTracking(c.Request.Context(), orderID, limit)
	if err != nil {
		handlershared.RespondMappedError(c, err, orderLookupErrorRules, response.CodeInternal, "order fetch failed")
		return
	}
	response.Success(c, view)
}

// CreateShipment 为订单向承运商下单
func (h *Handler) CreateShipment(c *gin.Context) {
	orderID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		response.BadRequest(c, "invalid order id")
		return
	}
	output, err := h.ShipmentService.CreateShipment(c.Request.Context(), orderID)
	if err != nil {
		handlershared.RespondMappedError(c, err, shipmentCreateErrorRules, response.CodeInternal, "shipment create failed")
		return
	}
	requestLog(c).Infow("admin_shipment_created",
		"operator", getOperator(c),
		"order_id", orderID,
		"tracking_ref", output.TrackingRef,
	)
	response.Success(c, output)
}

// ReconcileOrder 单笔订单对账：队列启用时异步执行，否则同步执行并返回结果
func (h *Handler) ReconcileOrder(c *gin.Context) {
	orderID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		response.BadRequest(c, "invalid order id")
		return
	}
	if h.QueueClient.Enabled() {
		err := h.QueueClient.EnqueueReconcileOrder(c.Request.Context(), queue.ReconcileOrderPayload{OrderID: orderID})
		if err == nil {
			requestLog(c).Infow("admin_reconcile_enqueued", "operator", getOperator(c), "order_id", orderID)
			response.Accepted(c, gin.H{"order_id": orderID, "queued": true})
			return
		}
		if !errors.Is(err, queue.ErrQueueDisabled) {
			requestLog(c).Warnw("admin_reconcile_enqueue_failed_run_inline", "order_id", orderID, "error", err)
		}
	}

	result, err := h.ReconcileService.ReconcileOrder(c.Request.Context(), orderID)
	if err != nil {
		handlershared.RespondMappedError(c, err, reconcileErrorRules, response.CodeInternal, "reconcile failed")
		return
	}
	requestLog(c).Infow("admin_reconcile_done",
		"operator", getOperator(c),
		"order_id", orderID,
		"outcome", result.Outcome,
	)
	response.Success(c, gin.H{"order_id": orderID, "queued": false, "result": result})
}

// TriggerReconcileRun 立即触发一轮全量对账，后台执行
func (h *Handler) TriggerReconcileRun(c *gin.Context) {
	if h.ReconcileJob == nil {
		respondError(c, response.CodeUnavailable, "reconcile job unavailable", nil)
		return
	}
	operator := getOperator(c)
	log := requestLog(c)
	timeout := time.Duration(h.Config.Reconcile.RunTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultManualRunTimeout
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := h.ReconcileJob.Run(ctx); err != nil {
			log.Warnw("admin_reconcile_run_failed", "operator", operator, "error", err)
		}
	}()
	log.Infow("admin_reconcile_run_triggered", "operator", operator)
	response.Accepted(c, gin.H{"triggered": true})
}
