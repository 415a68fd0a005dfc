package service

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/parcelsync/internal/carrier"
	"github.com/parcelsync/internal/config"
	"github.com/parcelsync/internal/constants"
	"github.com/parcelsync/internal/logger"
	"github.com/parcelsync/internal/repository"
)

// WebhookResult 回调处理结果
type WebhookResult struct {
	Accepted    bool   `json:"accepted"`
	Applied     bool   `json:"applied"`
	Status      string `json:"status"`
	TrackingRef string `json:"tracking_ref"`
}

// flexString 兼容承运商以数字或字符串下发的编号
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type webhookEvent struct {
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
	Activity   string `json:"activity"`
	Location   string `json:"location"`
	EventTime  string `json:"event_time"`
	Date       string `json:"date"`
}

func (e webhookEvent) toTrackingEvent() carrier.TrackingEvent {
	status := e.Status
	if strings.TrimSpace(status) == "" {
		status = e.Activity
	}
	eventTime := e.EventTime
	if strings.TrimSpace(eventTime) == "" {
		eventTime = e.Date
	}
	return carrier.TrackingEvent{
		StatusCode: strings.TrimSpace(e.StatusCode),
		Status:     strings.TrimSpace(status),
		Location:   strings.TrimSpace(e.Location),
		EventTime:  carrier.ParseEventTime(eventTime),
	}
}

type webhookShipmentTrack struct {
	AWBCode       flexString `json:"awb_code"`
	ShipmentID    flexString `json:"shipment_id"`
	CurrentStatus string     `json:"current_status"`
	UpdatedTime   string     `json:"updated_time"`
}

type webhookPayload struct {
	AWBNumber   flexString     `json:"awb_number"`
	TrackingRef flexString     `json:"tracking_ref"`
	StatusCode  string         `json:"status_code"`
	Status      string         `json:"status"`
	Location    string         `json:"location"`
	EventTime   string         `json:"event_time"`
	History     []webhookEvent `json:"history"`

	TrackingData *struct {
		ShipmentTrack           []webhookShipmentTrack `json:"shipment_track"`
		ShipmentTrackActivities []webhookEvent         `json:"shipment_track_activities"`
	} `json:"tracking_data"`
}

// ParseWebhookPayload 解析回调载荷，返回运单号与最新事件。
// 同时兼容扁平格式（awb_number + history）与 tracking_data.shipment_track 嵌套格式。
func ParseWebhookPayload(body []byte) (string, carrier.TrackingEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", carrier.TrackingEvent{}, fmt.Errorf("%w: %v", ErrWebhookPayloadInvalid, err)
	}

	ref := firstNonBlank(string(payload.AWBNumber), string(payload.TrackingRef))
	history := payload.History
	top := webhookEvent{
		StatusCode: payload.StatusCode,
		Status:     payload.Status,
		Location:   payload.Location,
		EventTime:  payload.EventTime,
	}
	if payload.TrackingData != nil {
		if len(payload.TrackingData.ShipmentTrack) > 0 {
			track := payload.TrackingData.ShipmentTrack[0]
			ref = firstNonBlank(ref, string(track.AWBCode), string(track.ShipmentID))
			if strings.TrimSpace(top.Status) == "" && strings.TrimSpace(top.StatusCode) == "" {
				top.Status = track.CurrentStatus
				top.EventTime = track.UpdatedTime
			}
		}
		if len(history) == 0 {
			history = payload.TrackingData.ShipmentTrackActivities
		}
	}
	if ref == "" {
		return "", carrier.TrackingEvent{}, fmt.Errorf("%w: tracking reference missing", ErrWebhookPayloadInvalid)
	}

	events := make([]carrier.TrackingEvent, 0, len(history))
	for _, item := range history {
		event := item.toTrackingEvent()
		if event.Raw() == "" {
			continue
		}
		events = append(events, event)
	}
	latest, ok := carrier.LatestEvent(events)
	if !ok {
		latest = top.toTrackingEvent()
		if latest.Raw() == "" {
			return "", carrier.TrackingEvent{}, fmt.Errorf("%w: no status event", ErrWebhookPayloadInvalid)
		}
	}
	return ref, latest, nil
}

// TrackingWebhookService 承运商推送回调
type TrackingWebhookService struct {
	orderRepo   repository.OrderRepository
	machine     *ShipmentStatusService
	secret      string
	carrierName string
}

// NewTrackingWebhookService 创建回调服务
func NewTrackingWebhookService(orderRepo repository.OrderRepository, machine *ShipmentStatusService, cfg config.CarrierConfig) *TrackingWebhookService {
	return &TrackingWebhookService{
		orderRepo:   orderRepo,
		machine:     machine,
		secret:      cfg.WebhookSecret,
		carrierName: strings.TrimSpace(cfg.Name),
	}
}

// VerifySecret 常量时间比对共享密钥
func (s *TrackingWebhookService) VerifySecret(provided string) error {
	if s.secret == "" || provided == "" {
		return ErrWebhookUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.secret)) != 1 {
		return ErrWebhookUnauthorized
	}
	return nil
}

// Handle 处理一次回调：鉴权、解析、定位订单、记录并观测。
// 被忽略的事件同样视为处理成功，避免承运商无限重推。
func (s *TrackingWebhookService) Handle(ctx context.Context, providedSecret string, body []byte) (*WebhookResult, error) {
	if err := s.VerifySecret(providedSecret); err != nil {
		return nil, err
	}
	ref, event, err := ParseWebhookPayload(body)
	if err != nil {
		return nil, err
	}

	order, err := s.orderRepo.GetByTrackingRef(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if order.Carrier != "" && s.carrierName != "" && !strings.EqualFold(order.Carrier, s.carrierName) {
		logger.Warnw("webhook_carrier_mismatch",
			"order_id", order.ID,
			"order_carrier", order.Carrier,
			"webhook_carrier", s.carrierName,
		)
		return &WebhookResult{Accepted: true, Status: order.Status, TrackingRef: ref}, nil
	}

	result, err := s.machine.ObserveEvent(ctx, order, event, constants.ObserveSourceWebhook)
	if err != nil {
		return nil, err
	}
	return &WebhookResult{
		Accepted:    true,
		Applied:     result.Applied(),
		Status:      order.Status,
		TrackingRef: ref,
	}, nil
}
