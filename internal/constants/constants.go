package constants

// 订单履约状态常量
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipped   = "shipped"
	OrderStatusInTransit = "in_transit"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// 承运商常量
const (
	CarrierXpressbees = "xpressbees"
)

// 状态观测来源
const (
	ObserveSourceWebhook  = "webhook"
	ObserveSourcePoller   = "poller"
	ObserveSourceShipment = "shipment"
)

// 通知类型与通知位
const (
	NotificationKindShipped   = "shipped"
	NotificationKindDelivered = "delivered"

	NotifiedFlagShipped   uint = 1 << 0
	NotifiedFlagDelivered uint = 1 << 1
)

// 通知渠道
const (
	NotifyChannelSMS   = "sms"
	NotifyChannelEmail = "email"
	NotifyChannelLog   = "log"
)

// 队列名称
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 队列任务类型
const (
	TaskShipmentNotification = "notify:shipment"
	TaskReconcileOrder       = "reconcile:order"
)
