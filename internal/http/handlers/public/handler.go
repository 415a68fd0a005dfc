package public

import "github.com/parcelsync/internal/provider"

// Handler 公开接口处理器入口
// 说明：该处理器仅服务承运商回调等无需运营鉴权的接口。
type Handler struct {
	*provider.Container
}

// New 创建公开接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
