package public

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/parcelsync/internal/http/response"
	"github.com/parcelsync/internal/metrics"

	"github.com/gin-gonic/gin"
)

const (
	defaultWebhookHeader   = "X-Api-Key"
	defaultWebhookMaxBytes = 1 << 20
)

// CarrierWebhook 承运商轨迹推送回调。
// 被忽略的事件同样返回 200，只有鉴权、解析、运单定位失败返回错误码。
func (h *Handler) CarrierWebhook(c *gin.Context) {
	log := requestLog(c)
	defer func() {
		metrics.WebhookRequests.WithLabelValues(strconv.Itoa(c.Writer.Status())).Inc()
	}()

	header := strings.TrimSpace(h.Config.Carrier.WebhookHeader)
	if header == "" {
		header = defaultWebhookHeader
	}
	provided := strings.TrimSpace(c.GetHeader(header))
	if err := h.WebhookService.VerifySecret(provided); err != nil {
		log.Warnw("carrier_webhook_unauthorized", "client_ip", c.ClientIP(), "header_present", provided != "")
		respondWebhookError(c, err)
		return
	}

	maxBytes := h.Config.Webhook.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultWebhookMaxBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warnw("carrier_webhook_body_too_large", "limit", maxBytes)
			respondError(c, response.CodePayloadTooLarge, "payload too large", nil)
			return
		}
		log.Warnw("carrier_webhook_body_read_failed", "error", err)
		respondError(c, response.CodeBadRequest, "invalid payload", nil)
		return
	}

	result, err := h.WebhookService.Handle(c.Request.Context(), provided, body)
	if err != nil {
		log.Warnw("carrier_webhook_handle_failed", "body_size", len(body), "error", err)
		respondWebhookError(c, err)
		return
	}

	log.Infow("carrier_webhook_processed",
		"tracking_ref", result.TrackingRef,
		"applied", result.Applied,
		"status", result.Status,
	)
	response.Success(c, gin.H{
		"accepted": result.Accepted,
		"applied":  result.Applied,
		"status":   result.Status,
	})
}
