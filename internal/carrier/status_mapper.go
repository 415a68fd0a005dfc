package carrier

import (
	"strings"

	"github.com/parcelsync/internal/constants"
)

// statusTable 承运商状态码与描述到规范状态的映射；未列出的一律视为无法识别
var statusTable = map[string]string{
	// 已下单待揽收
	"MANIFESTED":         constants.OrderStatusConfirmed,
	"MANIFEST":           constants.OrderStatusConfirmed,
	"DRC":                constants.OrderStatusConfirmed,
	"DATA RECEIVED":      constants.OrderStatusConfirmed,
	"PP":                 constants.OrderStatusConfirmed,
	"PENDING PICKUP":     constants.OrderStatusConfirmed,
	"PICKUP SCHEDULED":   constants.OrderStatusConfirmed,
	"OUT FOR PICKUP":     constants.OrderStatusConfirmed,
	"OFP":                constants.OrderStatusConfirmed,
	"READY TO SHIP":      constants.OrderStatusConfirmed,
	"SHIPMENT BOOKED":    constants.OrderStatusConfirmed,
	"AWB ASSIGNED":       constants.OrderStatusConfirmed,
	"LABEL GENERATED":    constants.OrderStatusConfirmed,
	"PICKUP GENERATED":   constants.OrderStatusConfirmed,
	"PICKUP QUEUED":      constants.OrderStatusConfirmed,
	"PICKUP RESCHEDULED": constants.OrderStatusConfirmed,
	"PENDING":            constants.OrderStatusConfirmed,
	"ORDER PLACED":       constants.OrderStatusConfirmed,
	"SHIPMENT CREATED":   constants.OrderStatusConfirmed,
	"CONFIRMED":          constants.OrderStatusConfirmed,
	"PROCESSING":         constants.OrderStatusConfirmed,
	"AWAITING PICKUP":    constants.OrderStatusConfirmed,
	"PICKUP PENDING":     constants.OrderStatusConfirmed,

	// 已揽收
	"PUD":        constants.OrderStatusShipped,
	"PKD":        constants.OrderStatusShipped,
	"PICKED":     constants.OrderStatusShipped,
	"PICKED UP":  constants.OrderStatusShipped,
	"PICKEDUP":   constants.OrderStatusShipped,
	"SHIPPED":    constants.OrderStatusShipped,
	"DISPATCHED": constants.OrderStatusShipped,

	// 运输中
	"IT":                        constants.OrderStatusInTransit,
	"IN TRANSIT":                constants.OrderStatusInTransit,
	"INTRANSIT":                 constants.OrderStatusInTransit,
	"RAD":                       constants.OrderStatusInTransit,
	"REACHED AT DESTINATION":    constants.OrderStatusInTransit,
	"REACHED DESTINATION HUB":   constants.OrderStatusInTransit,
	"OFD":                       constants.OrderStatusInTransit,
	"OUT FOR DELIVERY":          constants.OrderStatusInTransit,
	"IN TRANSIT TO DESTINATION": constants.OrderStatusInTransit,

	// 已签收
	"DL":        constants.OrderStatusDelivered,
	"DLVD":      constants.OrderStatusDelivered,
	"DELIVERED": constants.OrderStatusDelivered,

	// 已取消
	"CAN":                constants.OrderStatusCancelled,
	"CANCELLED":          constants.OrderStatusCancelled,
	"CANCELED":           constants.OrderStatusCancelled,
	"SHIPMENT CANCELLED": constants.OrderStatusCancelled,
	"ORDER CANCELLED":    constants.OrderStatusCancelled,
}

// NormalizeStatus 规范化原始状态：去空白、转大写、分隔符视为空格并压缩
func NormalizeStatus(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	upper = strings.NewReplacer("_", " ", "-", " ", "/", " ").Replace(upper)
	return strings.Join(strings.Fields(upper), " ")
}

// LookupStatus 查表，未识别时返回 false
func LookupStatus(raw string) (string, bool) {
	key := NormalizeStatus(raw)
	if key == "" {
		return "", false
	}
	status, ok := statusTable[key]
	return status, ok
}

// MapStatus 将承运商状态映射为规范状态；无法识别时原样返回 current，由状态机判定为忽略
func MapStatus(raw, current string) string {
	if status, ok := LookupStatus(raw); ok {
		return status
	}
	return current
}

// MapEvent 依次尝试状态码与描述文本
func MapEvent(event TrackingEvent, current string) string {
	if status, ok := LookupStatus(event.StatusCode); ok {
		return status
	}
	return MapStatus(event.Status, current)
}
