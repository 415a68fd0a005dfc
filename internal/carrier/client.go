package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/parcelsync/internal/logger"
	"github.com/parcelsync/internal/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	defaultTimeout       = 15 * time.Second
	defaultTokenTTL      = 2 * time.Hour
	defaultWarehouseName = "Primary Warehouse"
	maxResponseBytes     = 4 << 20

	opLogin          = "login"
	opCreateShipment = "create_shipment"
	opFetchTracking  = "fetch_tracking"
)

// BreakerSettings 熔断参数
type BreakerSettings struct {
	MaxRequests         uint32
	Interval            time.Duration
	OpenTimeout         time.Duration
	ConsecutiveFailures uint32
}

// Config 承运商客户端配置
type Config struct {
	Name       string
	BaseURL    string
	Email      string
	Password   string
	Timeout    time.Duration
	TokenTTL   time.Duration
	Breaker    BreakerSettings
	HTTPClient *http.Client
}

// Client 承运商 HTTP 客户端，除 token 缓存外无状态
type Client struct {
	cfg     Config
	http    *http.Client
	tokens  *tokenCache
	breaker *gobreaker.CircuitBreaker
	log     *zap.SugaredLogger
}

// NewClient 创建承运商客户端
func NewClient(cfg Config) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: base_url is invalid", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.Email) == "" || strings.TrimSpace(cfg.Password) == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrConfigInvalid)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "carrier"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		cfg:  cfg,
		http: httpClient,
		log:  logger.Component("carrier").With("carrier", cfg.Name),
	}
	c.tokens = newTokenCache(cfg.TokenTTL, c.login)
	c.breaker = gobreaker.NewCircuitBreaker(c.breakerSettings())
	return c, nil
}

// Name 承运商名称
func (c *Client) Name() string {
	return c.cfg.Name
}

func (c *Client) breakerSettings() gobreaker.Settings {
	b := c.cfg.Breaker
	threshold := b.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.Settings{
		Name:        c.cfg.Name,
		MaxRequests: b.MaxRequests,
		Interval:    b.Interval,
		Timeout:     b.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warnw("carrier_breaker_state_changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
}

type shipmentItemPayload struct {
	Name  string `json:"name"`
	Qty   string `json:"qty"`
	Price string `json:"price"`
	SKU   string `json:"sku"`
}

type shipmentAddressPayload struct {
	WarehouseName string `json:"warehouse_name,omitempty"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	City          string `json:"city"`
	State         string `json:"state"`
	Pincode       string `json:"pincode"`
	Phone         string `json:"phone"`
}

type shipmentPayload struct {
	OrderNumber       string                 `json:"order_number"`
	UniqueOrderNumber string                 `json:"unique_order_number"`
	PaymentType       string                 `json:"payment_type"`
	OrderAmount       string                 `json:"order_amount"`
	PackageWeight     int                    `json:"package_weight,omitempty"`
	RequestAutoPickup string                 `json:"request_auto_pickup"`
	Consignee         shipmentAddressPayload `json:"consignee"`
	Pickup            shipmentAddressPayload `json:"pickup"`
	OrderItems        []shipmentItemPayload  `json:"order_items"`
	CollectableAmount int                    `json:"collectable_amount"`
}

type carrierEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type shipmentData struct {
	AWBNumber   string `json:"awb_number"`
	Label       string `json:"label"`
	LabelURL    string `json:"label_url"`
	TrackingURL string `json:"tracking_url"`
}

type trackingHistoryItem struct {
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	Location   string `json:"location"`
	EventTime  string `json:"event_time"`
}

type trackingData struct {
	AWBNumber string                `json:"awb_number"`
	Status    string                `json:"status"`
	History   []trackingHistoryItem `json:"history"`
}

// CreateShipment 在承运商侧创建运单
func (c *Client) CreateShipment(ctx context.Context, req ShipmentRequest) (result *ShipmentResult, err error) {
	started := time.Now()
	defer func() { metrics.ObserveCarrierRequest(opCreateShipment, ResultLabel(err), started) }()

	payload, err := buildShipmentPayload(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, wrapf(ErrValidationFailed, "marshal request failed")
	}

	respBody, statusCode, err := c.authorizedRequest(ctx, http.MethodPost, "/shipments2", body)
	if err != nil {
		return nil, err
	}
	envelope, err := decodeEnvelope(respBody)
	if statusCode < 200 || statusCode >= 300 {
		message := ""
		if err == nil {
			message = envelope.Message
		}
		return nil, wrapf(ErrValidationFailed, "create shipment status %d %s", statusCode, strings.TrimSpace(message))
	}
	if err != nil {
		return nil, wrapf(ErrValidationFailed, "decode create shipment response failed")
	}
	if !envelope.Status {
		return nil, wrapf(ErrValidationFailed, "%s", strings.TrimSpace(envelope.Message))
	}

	var data shipmentData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, wrapf(ErrValidationFailed, "decode shipment data failed")
	}
	awb := strings.TrimSpace(data.AWBNumber)
	if awb == "" {
		return nil, wrapf(ErrValidationFailed, "awb_number missing in response")
	}
	label := strings.TrimSpace(data.Label)
	if label == "" {
		label = strings.TrimSpace(data.LabelURL)
	}
	return &ShipmentResult{
		TrackingRef: awb,
		LabelRef:    label,
		TrackingURL: strings.TrimSpace(data.TrackingURL),
	}, nil
}

// FetchTracking 查询运单快照
func (c *Client) FetchTracking(ctx context.Context, trackingRef string) (snapshot *TrackingSnapshot, err error) {
	started := time.Now()
	defer func() { metrics.ObserveCarrierRequest(opFetchTracking, ResultLabel(err), started) }()

	trackingRef = strings.TrimSpace(trackingRef)
	if trackingRef == "" {
		return nil, wrapf(ErrValidationFailed, "tracking ref is required")
	}
	respBody, statusCode, err := c.authorizedRequest(ctx, http.MethodGet, "/shipments2/track/"+url.PathEscape(trackingRef), nil)
	if err != nil {
		return nil, err
	}
	if statusCode == http.StatusNotFound {
		return nil, wrapf(ErrNotFound, "tracking ref %s", trackingRef)
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, wrapf(ErrNetwork, "tracking status %d", statusCode)
	}
	envelope, err := decodeEnvelope(respBody)
	if err != nil {
		return nil, wrapf(ErrNetwork, "decode tracking response failed")
	}
	if !envelope.Status {
		return nil, wrapf(ErrNotFound, "tracking ref %s: %s", trackingRef, strings.TrimSpace(envelope.Message))
	}

	var data trackingData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, wrapf(ErrNetwork, "decode tracking data failed")
	}
	snapshot = &TrackingSnapshot{
		TrackingRef: firstNonEmpty(data.AWBNumber, trackingRef),
		Status:      strings.TrimSpace(data.Status),
		Events:      make([]TrackingEvent, 0, len(data.History)),
	}
	for _, item := range data.History {
		snapshot.Events = append(snapshot.Events, TrackingEvent{
			StatusCode: strings.TrimSpace(item.StatusCode),
			Status:     firstNonEmpty(item.Status, item.Message),
			Location:   strings.TrimSpace(item.Location),
			EventTime:  ParseEventTime(item.EventTime),
		})
	}
	if latest, ok := LatestEvent(snapshot.Events); ok {
		snapshot.StatusCode = latest.StatusCode
	}
	return snapshot, nil
}

// authorizedRequest 携带会话 token 调用；收到 401 时重新登录并且只重试一次
func (c *Client) authorizedRequest(ctx context.Context, method, endpoint string, body []byte) ([]byte, int, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.tokens.Get(ctx)
		if err != nil {
			return nil, 0, err
		}
		respBody, statusCode, err := c.doJSONRequest(ctx, method, endpoint, token, body)
		if err != nil {
			return nil, statusCode, err
		}
		if statusCode != http.StatusUnauthorized {
			return respBody, statusCode, nil
		}
		c.tokens.Invalidate(token)
		if attempt == 0 {
			c.log.Infow("carrier_token_rejected_reauth", "endpoint", endpoint)
		}
	}
	return nil, http.StatusUnauthorized, wrapf(ErrAuthFailed, "token rejected after re-authentication")
}

func (c *Client) login(ctx context.Context) (token string, err error) {
	started := time.Now()
	defer func() { metrics.ObserveCarrierRequest(opLogin, ResultLabel(err), started) }()

	body, err := json.Marshal(map[string]string{
		"email":    c.cfg.Email,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", wrapf(ErrAuthFailed, "marshal login request failed")
	}
	respBody, statusCode, err := c.doJSONRequest(ctx, http.MethodPost, "/users/login", "", body)
	if err != nil {
		return "", err
	}
	if statusCode < 200 || statusCode >= 300 {
		return "", wrapf(ErrAuthFailed, "login status %d", statusCode)
	}
	envelope, err := decodeEnvelope(respBody)
	if err != nil {
		return "", wrapf(ErrAuthFailed, "decode login response failed")
	}
	var raw string
	if err := json.Unmarshal(envelope.Data, &raw); err != nil || strings.TrimSpace(raw) == "" {
		return "", wrapf(ErrAuthFailed, "token missing in login response")
	}
	c.log.Debugw("carrier_login_succeeded")
	return strings.TrimSpace(raw), nil
}

// doJSONRequest 单次 HTTP 往返；传输失败与 5xx 计入熔断
func (c *Client) doJSONRequest(ctx context.Context, method, endpoint, token string, body []byte) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := c.withDefaultTimeout(ctx)
	defer cancel()

	type roundTrip struct {
		body   []byte
		status int
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+endpoint, reader)
		if err != nil {
			return nil, wrapf(ErrNetwork, "build request failed")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, endpoint, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, wrapf(ErrNetwork, "read response failed")
		}
		if resp.StatusCode >= 500 {
			return nil, wrapf(ErrNetwork, "%s %s status %d", method, endpoint, resp.StatusCode)
		}
		return roundTrip{body: respBody, status: resp.StatusCode}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, 0, fmt.Errorf("%w: circuit %s", ErrNetwork, err.Error())
		}
		return nil, 0, err
	}
	rt := out.(roundTrip)
	return rt.body, rt.status, nil
}

func (c *Client) withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func buildShipmentPayload(req ShipmentRequest) (*shipmentPayload, error) {
	orderNumber := strings.TrimSpace(req.OrderNumber)
	if orderNumber == "" {
		return nil, wrapf(ErrValidationFailed, "order number is required")
	}
	if field := req.Destination.missingField(); field != "" {
		return nil, wrapf(ErrValidationFailed, "destination %s is required", field)
	}
	if field := req.Origin.missingField(); field != "" {
		return nil, wrapf(ErrValidationFailed, "origin %s is required", field)
	}
	if len(req.Items) == 0 {
		return nil, wrapf(ErrValidationFailed, "at least one item is required")
	}
	warehouse := strings.TrimSpace(req.WarehouseName)
	if warehouse == "" {
		warehouse = defaultWarehouseName
	}

	items := make([]shipmentItemPayload, 0, len(req.Items))
	for _, item := range req.Items {
		qty := item.Qty
		if qty <= 0 {
			qty = 1
		}
		items = append(items, shipmentItemPayload{
			Name:  strings.TrimSpace(item.Name),
			Qty:   strconv.Itoa(qty),
			Price: strings.TrimSpace(item.Price),
			SKU:   strings.TrimSpace(item.SKU),
		})
	}

	return &shipmentPayload{
		OrderNumber:       orderNumber,
		UniqueOrderNumber: "yes",
		PaymentType:       "prepaid",
		OrderAmount:       strings.TrimSpace(req.OrderAmount),
		PackageWeight:     req.WeightGrams,
		RequestAutoPickup: "yes",
		Consignee: shipmentAddressPayload{
			Name:    req.Destination.Name,
			Address: req.Destination.fullLine(),
			City:    req.Destination.City,
			State:   req.Destination.State,
			Pincode: req.Destination.Pincode,
			Phone:   req.Destination.Phone,
		},
		Pickup: shipmentAddressPayload{
			WarehouseName: warehouse,
			Name:          req.Origin.Name,
			Address:       req.Origin.fullLine(),
			City:          req.Origin.City,
			State:         req.Origin.State,
			Pincode:       req.Origin.Pincode,
			Phone:         req.Origin.Phone,
		},
		OrderItems:        items,
		CollectableAmount: 0,
	}, nil
}

func decodeEnvelope(body []byte) (*carrierEnvelope, error) {
	var envelope carrierEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
