package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/parcelsync/internal/carrier"
	"github.com/parcelsync/internal/config"
	"github.com/parcelsync/internal/constants"
	"github.com/parcelsync/internal/logger"
	"github.com/parcelsync/internal/models"
	"github.com/parcelsync/internal/repository"

	"github.com/shopspring/decimal"
)

// ShipmentCreator 承运商下单
type ShipmentCreator interface {
	CreateShipment(ctx context.Context, req carrier.ShipmentRequest) (*carrier.ShipmentResult, error)
}

// ShipmentOutput 创建运单结果
type ShipmentOutput struct {
	Order       *models.Order `json:"order"`
	TrackingRef string        `json:"tracking_ref"`
	LabelRef    string        `json:"label_ref"`
	TrackingURL string        `json:"tracking_url,omitempty"`
	Observe     ObserveResult `json:"observe"`
}

// TrackingView 订单状态与轨迹
type TrackingView struct {
	Order  *models.Order          `json:"order"`
	Events []models.ShipmentEvent `json:"events"`
}

// ShipmentService 运单创建与查询
type ShipmentService struct {
	orderRepo   repository.OrderRepository
	eventRepo   repository.ShipmentEventRepository
	creator     ShipmentCreator
	machine     *ShipmentStatusService
	carrierName string
	pickup      config.AddressConfig
}

// NewShipmentService 创建运单服务
func NewShipmentService(orderRepo repository.OrderRepository, eventRepo repository.ShipmentEventRepository, creator ShipmentCreator, machine *ShipmentStatusService, cfg config.CarrierConfig) *ShipmentService {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = constants.CarrierXpressbees
	}
	return &ShipmentService{
		orderRepo:   orderRepo,
		eventRepo:   eventRepo,
		creator:     creator,
		machine:     machine,
		carrierName: name,
		pickup:      cfg.Pickup,
	}
}

// CreateShipment 为订单创建运单。运单号只写入一次，随后通过状态机观测 confirmed。
func (s *ShipmentService) CreateShipment(ctx context.Context, orderID uint) (*ShipmentOutput, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.HasShipment() {
		return nil, ErrOrderAlreadyShipped
	}
	if IsTerminalStatus(order.Status) {
		return nil, ErrOrderNotShippable
	}

	req, err := s.buildShipmentRequest(order)
	if err != nil {
		return nil, err
	}
	result, err := s.creator.CreateShipment(ctx, req)
	if err != nil {
		logger.Warnw("shipment_create_failed",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"result", carrier.ResultLabel(err),
			"error", err,
		)
		return nil, err
	}

	stored, err := s.orderRepo.SetShipmentRef(ctx, order.ID, s.carrierName, result.TrackingRef, result.LabelRef)
	if err != nil {
		logger.Errorw("shipment_ref_store_failed",
			"order_id", order.ID,
			"tracking_ref", result.TrackingRef,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
	}
	if !stored {
		// 并发创建时承运商侧已生成的运单需要人工作废
		logger.Errorw("shipment_ref_already_set",
			"order_id", order.ID,
			"orphan_tracking_ref", result.TrackingRef,
		)
		return nil, ErrOrderAlreadyShipped
	}
	order.Carrier = s.carrierName
	order.ShipmentRef = result.TrackingRef
	order.LabelRef = result.LabelRef

	observed, err := s.machine.Observe(ctx, order, constants.OrderStatusConfirmed, time.Now(), constants.ObserveSourceShipment)
	if err != nil {
		return nil, err
	}
	logger.Infow("shipment_created",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"tracking_ref", result.TrackingRef,
		"status", order.Status,
	)
	return &ShipmentOutput{
		Order:       order,
		TrackingRef: result.TrackingRef,
		LabelRef:    result.LabelRef,
		TrackingURL: result.TrackingURL,
		Observe:     observed,
	}, nil
}

// GetTracking 查询订单状态与最近轨迹
func (s *ShipmentService) GetTracking(ctx context.Context, orderID uint, limit int) (*TrackingView, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	events, err := s.eventRepo.ListByOrder(ctx, orderID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
	}
	return &TrackingView{Order: order, Events: events}, nil
}

// ListOrders 运营端订单列表
func (s *ShipmentService) ListOrders(ctx context.Context, filter repository.OrderListFilter) ([]models.Order, int64, error) {
	if filter.Status != "" && !IsKnownStatus(filter.Status) {
		return nil, 0, ErrStatusFilterInvalid
	}
	return s.orderRepo.ListAdmin(ctx, filter)
}

func (s *ShipmentService) buildShipmentRequest(order *models.Order) (carrier.ShipmentRequest, error) {
	destination := order.Delivery
	if strings.TrimSpace(destination.Name) == "" {
		destination.Name = order.CustomerName
	}
	if strings.TrimSpace(destination.Phone) == "" {
		destination.Phone = order.CustomerPhone
	}
	if !destination.IsComplete() {
		return carrier.ShipmentRequest{}, fmt.Errorf("%w: delivery address incomplete", ErrOrderAddressInvalid)
	}

	origin := order.Pickup
	if !origin.IsComplete() {
		origin = models.Address{
			Name:    s.pickup.Name,
			Phone:   s.pickup.Phone,
			Line1:   s.pickup.Line1,
			Line2:   s.pickup.Line2,
			City:    s.pickup.City,
			State:   s.pickup.State,
			Pincode: s.pickup.Pincode,
		}
	}
	if !origin.IsComplete() {
		return carrier.ShipmentRequest{}, fmt.Errorf("%w: pickup address incomplete", ErrOrderAddressInvalid)
	}

	qty := order.Quantity
	if qty <= 0 {
		qty = 1
	}
	unitPrice := order.TotalAmount.Decimal.Div(decimal.NewFromInt(int64(qty))).Round(2)
	itemName := firstNonBlank(order.ItemName, "Order "+order.OrderNo)

	return carrier.ShipmentRequest{
		OrderNumber:   order.OrderNo,
		OrderAmount:   order.TotalAmount.String(),
		WarehouseName: origin.Name,
		WeightGrams:   order.WeightGrams,
		Origin:        toCarrierAddress(origin),
		Destination:   toCarrierAddress(destination),
		Items: []carrier.Item{{
			Name:  itemName,
			SKU:   order.ItemSKU,
			Qty:   qty,
			Price: unitPrice.StringFixed(2),
		}},
	}, nil
}

func toCarrierAddress(a models.Address) carrier.Address {
	return carrier.Address{
		Name:    strings.TrimSpace(a.Name),
		Phone:   strings.TrimSpace(a.Phone),
		Line1:   strings.TrimSpace(a.Line1),
		Line2:   strings.TrimSpace(a.Line2),
		City:    strings.TrimSpace(a.City),
		State:   strings.TrimSpace(a.State),
		Pincode: strings.TrimSpace(a.Pincode),
	}
}
