package repository

import (
	"context"
	"errors"

	"github.com/parcelsync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ShipmentEventRepository 轨迹事件数据访问接口
type ShipmentEventRepository interface {
	Append(ctx context.Context, event *models.ShipmentEvent) (bool, error)
	ListByOrder(ctx context.Context, orderID uint, limit int) ([]models.ShipmentEvent, error)
}

// GormShipmentEventRepository GORM 实现
type GormShipmentEventRepository struct {
	db *gorm.DB
}

// NewShipmentEventRepository 创建轨迹事件仓库
func NewShipmentEventRepository(db *gorm.DB) *GormShipmentEventRepository {
	return &GormShipmentEventRepository{db: db}
}

// Append 追加事件，同一运单同一状态同一时间的事件只保留一条
func (r *GormShipmentEventRepository) Append(ctx context.Context, event *models.ShipmentEvent) (bool, error) {
	if event == nil {
		return false, errors.New("shipment event is nil")
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListByOrder 按事件时间倒序列出订单轨迹
func (r *GormShipmentEventRepository) ListByOrder(ctx context.Context, orderID uint, limit int) ([]models.ShipmentEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.ShipmentEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("event_time DESC").
		Order("id DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
