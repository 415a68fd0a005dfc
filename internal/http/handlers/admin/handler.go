package admin

import "github.com/parcelsync/internal/provider"

// Handler 运营接口处理器入口
// 说明：该处理器仅用于需 JWT 鉴权的运营 API。
type Handler struct {
	*provider.Container
}

// New 创建运营接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
