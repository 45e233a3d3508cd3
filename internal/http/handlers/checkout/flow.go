package checkout

import (
	"errors"

	core "github.com/joya-checkout/internal/checkout"
	"github.com/joya-checkout/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ShippingRequest 收货信息请求
type ShippingRequest struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Notes      string `json:"notes"`
}

func (r ShippingRequest) toShipping() core.ShippingInfo {
	return core.ShippingInfo{
		FullName:   r.FullName,
		Email:      r.Email,
		Phone:      r.Phone,
		Address:    r.Address,
		City:       r.City,
		Region:     r.Region,
		PostalCode: r.PostalCode,
		Notes:      r.Notes,
	}
}

// PaymentRequest 银行卡支付请求
type PaymentRequest struct {
	Number         string `json:"number"`
	CVV            string `json:"cvv"`
	Expiry         string `json:"expiry"`
	ExpMonth       string `json:"exp_month"`
	ExpYear        string `json:"exp_year"`
	HolderName     string `json:"holder_name"`
	HolderLastName string `json:"holder_last_name"`
	Installments   int    `json:"installments" binding:"gte=0,lte=36"`
}

func (r PaymentRequest) toCard() core.CardInput {
	return core.CardInput{
		Number:       r.Number,
		CVV:          r.CVV,
		Expiry:       r.Expiry,
		ExpMonth:     r.ExpMonth,
		ExpYear:      r.ExpYear,
		HolderName:   r.HolderName,
		HolderLast:   r.HolderLastName,
		Installments: r.Installments,
	}
}

// PaymentResponse 支付结果与最新状态
type PaymentResponse struct {
	Result *core.PaymentResult `json:"result"`
	State  core.State          `json:"state"`
}

// GetState 获取会话渲染状态
func (h *Handler) GetState(c *gin.Context) {
	orch, ok := h.orchestrator(c)
	if !ok {
		return
	}
	response.Success(c, orch.State())
}

// EnsureDraft 获取或创建草稿订单
func (h *Handler) EnsureDraft(c *gin.Context) {
	orch, ok := h.orchestrator(c)
	if !ok {
		return
	}
	if _, err := orch.EnsureDraft(c.Request.Context()); err != nil {
		respondCheckoutError(c, err)
		return
	}
	response.Success(c, orch.State())
}

// Advance 同步、保存地址、锁单并获取支付令牌
func (h *Handler) Advance(c *gin.Context) {
	var req ShippingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	orch, ok := h.orchestrator(c)
	if !ok {
		return
	}
	if err := orch.AdvanceToPayment(c.Request.Context(), req.toShipping()); err != nil {
		respondCheckoutError(c, err)
		return
	}
	response.Success(c, orch.State())
}

// Pay 提交 3DS 扣款；待确认视为成功响应，由前端轮询状态
func (h *Handler) Pay(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	orch, ok := h.orchestrator(c)
	if !ok {
		return
	}
	result, err := orch.SubmitPayment(c.Request.Context(), req.toCard())
	if err != nil && !errors.Is(err, core.ErrPaymentPending) {
		respondCheckoutError(c, err)
		return
	}
	response.Success(c, PaymentResponse{Result: result, State: orch.State()})
}

// Retry 失败后回到支付步骤
func (h *Handler) Retry(c *gin.Context) {
	orch, ok := h.orchestrator(c)
	if !ok {
		return
	}
	if err := orch.RetryPayment(); err != nil {
		respondCheckoutError(c, err)
		return
	}
	response.Success(c, orch.State())
}

// Reset 重置支付状态并重新建立草稿订单
func (h *Handler) Reset(c *gin.Context) {
	orch, ok := h.orchestrator(c)
	if !ok {
		return
	}
	if err := orch.ResetPaymentState(c.Request.Context()); err != nil {
		respondCheckoutError(c, err)
		return
	}
	response.Success(c, orch.State())
}

// ClearForm 丢弃收货信息
func (h *Handler) ClearForm(c *gin.Context) {
	orch, ok := h.orchestrator(c)
	if !ok {
		return
	}
	orch.ClearForm()
	response.Success(c, orch.State())
}
