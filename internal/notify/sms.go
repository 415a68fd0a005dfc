package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/parcelsync/internal/config"
	"github.com/parcelsync/internal/constants"

	"github.com/cenkalti/backoff/v4"
)

const defaultSMSTimeout = 8 * time.Second

// SMSSender 通过 HTTP 短信网关发送
type SMSSender struct {
	cfg     config.SMSConfig
	client  *http.Client
	backoff func() backoff.BackOff
}

// NewSMSSender 创建短信发送方
func NewSMSSender(cfg config.SMSConfig, client *http.Client) (*SMSSender, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("sms endpoint is required")
	}
	if client == nil {
		timeout := defaultSMSTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	s := &SMSSender{cfg: cfg, client: client}
	s.backoff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 300 * time.Millisecond
		b.MaxInterval = 3 * time.Second
		b.MaxElapsedTime = 0
		return b
	}
	return s, nil
}

// Channel 渠道名称
func (s *SMSSender) Channel() string {
	return constants.NotifyChannelSMS
}

// Send 发送短信；网关 5xx 与网络错误按配置退避重试，4xx 直接失败
func (s *SMSSender) Send(ctx context.Context, msg Message) error {
	phone := normalizePhone(msg.Phone)
	if phone == "" {
		return ErrRecipientMissing
	}
	body, err := json.Marshal(map[string]string{
		"to":      phone,
		"sender":  s.cfg.Sender,
		"message": msg.Body,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal sms payload failed", ErrSendFailed)
	}

	retries := s.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(s.backoff(), uint64(retries)), ctx)
	return backoff.Retry(func() error {
		return s.post(ctx, body)
	}, policy)
}

func (s *SMSSender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: build request failed", ErrSendFailed))
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(s.cfg.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: gateway status %d", ErrSendFailed, resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("%w: gateway status %d", ErrSendFailed, resp.StatusCode))
	}
}

func normalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		if r >= '0' && r <= '9' || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
