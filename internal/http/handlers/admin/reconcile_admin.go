package admin

import (
	"github.com/parcelsync/internal/http/response"
	"github.com/parcelsync/internal/job"

	"github.com/gin-gonic/gin"
)

// GetLastReconcileRun 最近一轮对账汇总，Redis 未启用时为空
func (h *Handler) GetLastReconcileRun(c *gin.Context) {
	record, found, err := job.LastRun(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "reconcile record fetch failed", err)
		return
	}
	if !found {
		response.Success(c, gin.H{"found": false})
		return
	}
	response.Success(c, gin.H{"found": true, "run": record})
}
