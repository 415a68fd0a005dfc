package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/parcelsync/internal/config"
	"github.com/parcelsync/internal/constants"
)

var (
	ErrRecipientMissing = errors.New("notification recipient missing")
	ErrRecipientInvalid = errors.New("notification recipient invalid")
	ErrSendFailed       = errors.New("notification send failed")
)

// Message 一条面向顾客的通知
type Message struct {
	Kind    string
	OrderNo string
	Phone   string
	Email   string
	Subject string
	Body    string
}

// Sender 通知发送方，实现只负责投递不做去重
type Sender interface {
	Channel() string
	Send(ctx context.Context, msg Message) error
}

// NewSender 按配置构建发送方
func NewSender(cfg *config.NotificationConfig) (Sender, error) {
	if cfg == nil {
		return NewLogSender(), nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Channel)) {
	case constants.NotifyChannelSMS:
		return NewSMSSender(cfg.SMS, nil)
	case constants.NotifyChannelEmail:
		return NewEmailSender(cfg.Email)
	case "", constants.NotifyChannelLog:
		return NewLogSender(), nil
	default:
		return nil, fmt.Errorf("unsupported notification channel: %s", cfg.Channel)
	}
}

// Render 以 {key} 占位符渲染模板
func Render(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
