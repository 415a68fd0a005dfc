package models

import (
	"strings"
	"time"
)

// Address 收发货地址
type Address struct {
	Name    string `gorm:"type:varchar(120)" json:"name"`   // 联系人
	Phone   string `gorm:"type:varchar(32)" json:"phone"`   // 联系电话
	Line1   string `gorm:"type:varchar(255)" json:"line1"`  // 地址行一
	Line2   string `gorm:"type:varchar(255)" json:"line2"`  // 地址行二
	City    string `gorm:"type:varchar(80)" json:"city"`    // 城市
	State   string `gorm:"type:varchar(80)" json:"state"`   // 省/州
	Pincode string `gorm:"type:varchar(16)" json:"pincode"` // 邮编
}

// IsComplete 判断承运商下单所需字段是否齐全
func (a Address) IsComplete() bool {
	return strings.TrimSpace(a.Name) != "" &&
		strings.TrimSpace(a.Phone) != "" &&
		strings.TrimSpace(a.Line1) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.State) != "" &&
		strings.TrimSpace(a.Pincode) != ""
}

// Order 订单表，履约状态只由状态机写入
type Order struct {
	ID             uint       `gorm:"primarykey" json:"id"`                                     // 主键
	OrderNo        string     `gorm:"uniqueIndex;not null" json:"order_no"`                     // 订单编号
	Status         string     `gorm:"index;not null;default:pending" json:"status"`             // 履约状态
	Carrier        string     `gorm:"type:varchar(32);not null;default:''" json:"carrier"`      // 承运商
	ShipmentRef    string     `gorm:"type:varchar(64);not null;default:''" json:"shipment_ref"` // 运单号，仅可写入一次
	LabelRef       string     `gorm:"type:varchar(512)" json:"label_ref,omitempty"`             // 面单地址
	NotifiedFlags  uint       `gorm:"not null;default:0" json:"notified_flags"`                 // 已发送通知位
	LastObservedAt *time.Time `json:"last_observed_at"`                                         // 最近一次被接受的观测时间

	CustomerName  string `gorm:"type:varchar(120)" json:"customer_name"`  // 收件人姓名
	CustomerPhone string `gorm:"type:varchar(32)" json:"customer_phone"`  // 收件人手机
	CustomerEmail string `gorm:"type:varchar(255)" json:"customer_email"` // 收件人邮箱

	Delivery Address `gorm:"embedded;embeddedPrefix:delivery_" json:"delivery"` // 收货地址
	Pickup   Address `gorm:"embedded;embeddedPrefix:pickup_" json:"pickup"`     // 发货地址（为空时取配置）

	ItemName    string `gorm:"type:varchar(255)" json:"item_name"`                           // 商品名称
	ItemSKU     string `gorm:"type:varchar(64)" json:"item_sku"`                             // 商品 SKU
	Quantity    int    `gorm:"not null;default:1" json:"quantity"`                           // 数量
	TotalAmount Money  `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"`    // 订单金额
	WeightGrams int    `gorm:"not null;default:500" json:"weight_grams"`                     // 包裹重量

	ShippedAt   *time.Time `json:"shipped_at,omitempty"`   // 揽收时间
	DeliveredAt *time.Time `json:"delivered_at,omitempty"` // 签收时间
	CancelledAt *time.Time `json:"cancelled_at,omitempty"` // 取消时间
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"index" json:"updated_at"`

	Events []ShipmentEvent `gorm:"foreignKey:OrderID" json:"events,omitempty"` // 轨迹历史
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// HasShipment 是否已创建运单
func (o *Order) HasShipment() bool {
	return o != nil && strings.TrimSpace(o.ShipmentRef) != ""
}

// HasNotified 判断通知位是否已置位
func (o *Order) HasNotified(bit uint) bool {
	return o != nil && o.NotifiedFlags&bit != 0
}
