package carrier

import (
	"strings"
	"time"
)

// Address 承运商下单使用的地址
type Address struct {
	Name    string
	Phone   string
	Line1   string
	Line2   string
	City    string
	State   string
	Pincode string
}

func (a Address) fullLine() string {
	line1 := strings.TrimSpace(a.Line1)
	line2 := strings.TrimSpace(a.Line2)
	if line2 == "" {
		return line1
	}
	return line1 + ", " + line2
}

func (a Address) missingField() string {
	switch {
	case strings.TrimSpace(a.Name) == "":
		return "name"
	case strings.TrimSpace(a.Phone) == "":
		return "phone"
	case strings.TrimSpace(a.Line1) == "":
		return "address"
	case strings.TrimSpace(a.City) == "":
		return "city"
	case strings.TrimSpace(a.State) == "":
		return "state"
	case strings.TrimSpace(a.Pincode) == "":
		return "pincode"
	}
	return ""
}

// Item 包裹内商品
type Item struct {
	Name  string
	SKU   string
	Qty   int
	Price string
}

// ShipmentRequest 创建运单输入
type ShipmentRequest struct {
	OrderNumber   string
	OrderAmount   string
	WarehouseName string
	WeightGrams   int
	Origin        Address
	Destination   Address
	Items         []Item
}

// ShipmentResult 创建运单返回
type ShipmentResult struct {
	TrackingRef string
	LabelRef    string
	TrackingURL string
}

// TrackingEvent 单条轨迹
type TrackingEvent struct {
	StatusCode string
	Status     string
	Location   string
	EventTime  time.Time
}

// Raw 返回用于映射的原始状态，优先使用状态码
func (e TrackingEvent) Raw() string {
	if code := strings.TrimSpace(e.StatusCode); code != "" {
		return code
	}
	return strings.TrimSpace(e.Status)
}

// TrackingSnapshot 承运商返回的运单快照，不做任何解释
type TrackingSnapshot struct {
	TrackingRef string
	Status      string
	StatusCode  string
	Events      []TrackingEvent
}

// Latest 返回最新事件，无轨迹时退回快照顶层状态
func (s *TrackingSnapshot) Latest() (TrackingEvent, bool) {
	if s == nil {
		return TrackingEvent{}, false
	}
	if event, ok := LatestEvent(s.Events); ok {
		return event, true
	}
	if strings.TrimSpace(s.StatusCode) == "" && strings.TrimSpace(s.Status) == "" {
		return TrackingEvent{}, false
	}
	return TrackingEvent{StatusCode: s.StatusCode, Status: s.Status}, true
}

// LatestEvent 按事件时间取最新一条；时间相同或缺失时保留靠前的一条（承运商按新到旧排列）
func LatestEvent(events []TrackingEvent) (TrackingEvent, bool) {
	if len(events) == 0 {
		return TrackingEvent{}, false
	}
	best := events[0]
	for _, event := range events[1:] {
		if event.EventTime.After(best.EventTime) {
			best = event
		}
	}
	return best, true
}

var eventTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"2006-01-02",
}

// ParseEventTime 解析承运商事件时间，无法识别时返回零值
func ParseEventTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
