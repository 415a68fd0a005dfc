package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/parcelsync/internal/constants"
	"github.com/parcelsync/internal/models"

	"gorm.io/gorm"
)

// OrderListFilter 运营端订单列表筛选
type OrderListFilter struct {
	Status   string
	Keyword  string
	Page     int
	PageSize int
}

// StatusUpdate 一次条件状态写入
type StatusUpdate struct {
	From           string
	To             string
	LastObservedAt time.Time
}

// OrderRepository 订单数据访问接口
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uint) (*models.Order, error)
	GetByTrackingRef(ctx context.Context, trackingRef string) (*models.Order, error)
	ListReconcilable(ctx context.Context, afterID uint, limit int) ([]models.Order, error)
	ListAdmin(ctx context.Context, filter OrderListFilter) ([]models.Order, int64, error)
	ConditionalUpdateStatus(ctx context.Context, id uint, update StatusUpdate) (bool, error)
	SetNotifiedFlag(ctx context.Context, id uint, bit uint) (bool, error)
	SetShipmentRef(ctx context.Context, id uint, carrier, trackingRef, labelRef string) (bool, error)
}

// GormOrderRepository GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Create 创建订单
func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order is nil")
	}
	if strings.TrimSpace(order.Status) == "" {
		order.Status = constants.OrderStatusPending
	}
	return r.db.WithContext(ctx).Create(order).Error
}

// GetByID 根据 ID 获取订单
func (r *GormOrderRepository) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByTrackingRef 根据运单号获取订单
func (r *GormOrderRepository) GetByTrackingRef(ctx context.Context, trackingRef string) (*models.Order, error) {
	trackingRef = strings.TrimSpace(trackingRef)
	if trackingRef == "" {
		return nil, nil
	}
	var order models.Order
	if err := r.db.WithContext(ctx).Where("shipment_ref = ?", trackingRef).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ListReconcilable 按主键游标分页列出需要对账的订单（非终态且已有运单号）
func (r *GormOrderRepository) ListReconcilable(ctx context.Context, afterID uint, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Where("shipment_ref <> ''").
		Where("status NOT IN ?", []string{constants.OrderStatusDelivered, constants.OrderStatusCancelled}).
		Order("id ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListAdmin 运营端订单列表
func (r *GormOrderRepository) ListAdmin(ctx context.Context, filter OrderListFilter) ([]models.Order, int64, error) {
	var orders []models.Order
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		condition, argCount := buildLikeCondition(r.db, orderKeywordColumns)
		query = query.Where("("+condition+")", repeatLikeArgs("%"+keyword+"%", argCount)...)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)
	if err := query.Order("id DESC").Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ConditionalUpdateStatus 仅当当前状态等于 From 时写入 To，返回是否命中
func (r *GormOrderRepository) ConditionalUpdateStatus(ctx context.Context, id uint, update StatusUpdate) (bool, error) {
	if update.From == "" || update.To == "" {
		return false, errors.New("status update requires from and to")
	}
	updates := map[string]interface{}{
		"status":     update.To,
		"updated_at": time.Now(),
	}
	if !update.LastObservedAt.IsZero() {
		updates["last_observed_at"] = update.LastObservedAt
	}
	stamp := update.LastObservedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	switch update.To {
	case constants.OrderStatusShipped, constants.OrderStatusInTransit:
		updates["shipped_at"] = gorm.Expr("COALESCE(shipped_at, ?)", stamp)
	case constants.OrderStatusDelivered:
		updates["shipped_at"] = gorm.Expr("COALESCE(shipped_at, ?)", stamp)
		updates["delivered_at"] = gorm.Expr("COALESCE(delivered_at, ?)", stamp)
	case constants.OrderStatusCancelled:
		updates["cancelled_at"] = gorm.Expr("COALESCE(cancelled_at, ?)", stamp)
	}

	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, update.From).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SetNotifiedFlag 原子置位通知位，仅当该位此前未置位时返回 true
func (r *GormOrderRepository) SetNotifiedFlag(ctx context.Context, id uint, bit uint) (bool, error) {
	if bit == 0 {
		return false, errors.New("notified flag bit is zero")
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND (notified_flags & ?) = 0", id, bit).
		UpdateColumn("notified_flags", gorm.Expr("notified_flags | ?", bit))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SetShipmentRef 写入运单号，仅当此前为空时生效
func (r *GormOrderRepository) SetShipmentRef(ctx context.Context, id uint, carrier, trackingRef, labelRef string) (bool, error) {
	trackingRef = strings.TrimSpace(trackingRef)
	if trackingRef == "" {
		return false, errors.New("tracking ref is empty")
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND shipment_ref = ''", id).
		Updates(map[string]interface{}{
			"carrier":      carrier,
			"shipment_ref": trackingRef,
			"label_ref":    strings.TrimSpace(labelRef),
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
