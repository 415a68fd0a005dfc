package shared

import (
	"errors"

	"github.com/parcelsync/internal/http/response"
	"github.com/parcelsync/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		log := RequestLog(c)
		if appErr.HTTPStatus() >= 500 {
			log.Errorw("handler_error", "code", appErr.Code, "message", appErr.Message, "error", err)
		} else {
			log.Warnw("handler_error", "code", appErr.Code, "message", appErr.Message, "error", err)
		}
	}
	response.Error(c, appErr.Code, appErr.Message)
}

// MappedError 业务错误到接口响应的映射规则。
type MappedError struct {
	Target error
	Code   int
	Msg    string
}

// RespondMappedError 按规则表匹配错误，未命中时使用兜底响应。
func RespondMappedError(c *gin.Context, err error, rules []MappedError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			var logged error
			if rule.Code >= response.CodeInternal {
				logged = err
			}
			RespondError(c, rule.Code, rule.Msg, logged)
			return
		}
	}
	RespondError(c, fallbackCode, fallbackMsg, err)
}
