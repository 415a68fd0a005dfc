package models

import "time"

// ShipmentEvent 承运商轨迹事件，仅追加，用于审计排查
type ShipmentEvent struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	OrderID      uint      `gorm:"index;not null" json:"order_id"`                                                     // 订单ID
	TrackingRef  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_shipment_event_dedup,priority:1" json:"tracking_ref"` // 运单号
	StatusCode   string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_shipment_event_dedup,priority:2" json:"status_code"`  // 承运商状态码
	EventTime    time.Time `gorm:"not null;uniqueIndex:idx_shipment_event_dedup,priority:3" json:"event_time"`                    // 事件时间
	StatusText   string    `gorm:"type:varchar(255)" json:"status_text"`                                               // 状态描述
	Location     string    `gorm:"type:varchar(255)" json:"location"`                                                  // 事件地点
	Source       string    `gorm:"type:varchar(16);not null" json:"source"`                                            // webhook / poller
	MappedStatus string    `gorm:"type:varchar(32)" json:"mapped_status"`                                              // 映射后的规范状态
	CreatedAt    time.Time `json:"created_at"`
}

// TableName 指定表名
func (ShipmentEvent) TableName() string {
	return "shipment_events"
}
