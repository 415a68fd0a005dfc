package notify

import (
	"context"

	"github.com/parcelsync/internal/constants"
	"github.com/parcelsync/internal/logger"
)

// LogSender 只写日志，用于未接入短信/邮件的环境
type LogSender struct{}

// NewLogSender 创建日志发送方
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Channel 渠道名称
func (s *LogSender) Channel() string {
	return constants.NotifyChannelLog
}

// Send 记录通知内容
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if msg.Phone == "" && msg.Email == "" {
		return ErrRecipientMissing
	}
	logger.Infow("notification_logged",
		"kind", msg.Kind,
		"order_no", msg.OrderNo,
		"phone", msg.Phone,
		"email", msg.Email,
		"body", msg.Body,
	)
	return nil
}
