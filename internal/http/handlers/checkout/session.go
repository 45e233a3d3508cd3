package checkout

import (
	"time"

	"github.com/joya-checkout/internal/http/response"

	"github.com/gin-gonic/gin"
)

// IssueSessionRequest 创建游客结算会话请求
type IssueSessionRequest struct {
	StoreToken string `json:"store_token"`
}

// IssueSessionResponse 结算会话凭证
type IssueSessionResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueSession 签发新的游客结算会话 token
func (h *Handler) IssueSession(c *gin.Context) {
	if h.tokens == nil {
		respondError(c, response.CodeUnavailable, "session tokens unavailable", nil)
		return
	}
	var req IssueSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "invalid request body", nil)
			return
		}
	}
	token, sessionID, expiresAt, err := h.tokens.Issue("", req.StoreToken)
	if err != nil {
		respondError(c, response.CodeInternal, "issue session token failed", err)
		return
	}
	response.Success(c, IssueSessionResponse{
		Token:     token,
		SessionID: sessionID,
		ExpiresAt: expiresAt,
	})
}
