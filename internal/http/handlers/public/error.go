package public

import (
	handlershared "github.com/parcelsync/internal/http/handlers/shared"
	"github.com/parcelsync/internal/http/response"
	"github.com/parcelsync/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

var webhookErrorRules = []handlershared.MappedError{
	{Target: service.ErrWebhookUnauthorized, Code: response.CodeUnauthorized, Msg: "unauthorized"},
	{Target: service.ErrWebhookPayloadInvalid, Code: response.CodeBadRequest, Msg: "invalid payload"},
	{Target: service.ErrOrderNotFound, Code: response.CodeNotFound, Msg: "tracking reference not found"},
}

func respondWebhookError(c *gin.Context, err error) {
	handlershared.RespondMappedError(c, err, webhookErrorRules, response.CodeInternal, "webhook processing failed")
}
