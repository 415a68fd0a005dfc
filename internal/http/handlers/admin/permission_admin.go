package admin

import (
	"github.com/parcelsync/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetMyPermissions 当前运营人员的角色与生效路由
func (h *Handler) GetMyPermissions(c *gin.Context) {
	operator := getOperator(c)
	if operator == "" {
		response.Unauthorized(c, "operator missing")
		return
	}
	access, err := h.AuthzService.Describe(operator)
	if err != nil {
		respondError(c, response.CodeInternal, "permission fetch failed", err)
		return
	}
	response.Success(c, access)
}
