package checkout

import (
	core "github.com/joya-checkout/internal/checkout"
	"github.com/joya-checkout/internal/http/response"
	"github.com/joya-checkout/internal/provider"
	"github.com/joya-checkout/internal/service"

	"github.com/gin-gonic/gin"
)

// Handler 结算会话接口处理器
type Handler struct {
	*provider.Container
	tokens *service.SessionTokenIssuer
}

// New 创建结算处理器
func New(c *provider.Container) *Handler {
	h := &Handler{Container: c}
	if c != nil && c.Config != nil {
		h.tokens = service.NewSessionTokenIssuer(c.Config.JWT.SecretKey, c.Config.JWT.Expire())
	}
	return h
}

// orchestrator 按鉴权上下文中的 session_id 取得会话
func (h *Handler) orchestrator(c *gin.Context) (*core.Orchestrator, bool) {
	if h == nil || h.Container == nil || h.CheckoutService == nil {
		respondError(c, response.CodeUnavailable, "checkout service unavailable", nil)
		return nil, false
	}
	orch, err := h.CheckoutService.Session(c.Request.Context(), c.GetString("session_id"), c.GetString("store_token"))
	if err != nil {
		respondCheckoutError(c, err)
		return nil, false
	}
	return orch, true
}
