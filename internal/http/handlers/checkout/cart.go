package checkout

import (
	"strings"

	"github.com/joya-checkout/internal/cart"
	"github.com/joya-checkout/internal/http/response"
	"github.com/joya-checkout/internal/models"

	"github.com/gin-gonic/gin"
)

// AddCartItemRequest 加购请求；stock 缺省或为负表示库存未知
type AddCartItemRequest struct {
	ProductID      string `json:"product_id" binding:"required"`
	Variant        string `json:"variant"`
	Quantity       int    `json:"quantity"`
	Stock          *int   `json:"stock"`
	UnitPriceCents int64  `json:"unit_price_cents" binding:"gte=0"`
}

// UpdateCartItemRequest 修改数量请求
type UpdateCartItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Variant   string `json:"variant"`
	Quantity  int    `json:"quantity"`
}

// AdjustmentsRequest 运费/税费/优惠（分）
type AdjustmentsRequest struct {
	ShippingCents int64 `json:"shipping_cents" binding:"gte=0"`
	TaxCents      int64 `json:"tax_cents" binding:"gte=0"`
	DiscountCents int64 `json:"discount_cents" binding:"gte=0"`
}

// CartMutationResponse 购物车变更结果
type CartMutationResponse struct {
	Applied bool        `json:"applied"`
	State   interface{} `json:"state"`
}

// AddCartItem 加购；超过库存时 applied=false
func (h *Handler) AddCartItem(c *gin.Context) {
	var req AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	orch, ok := h.orchestrator(c)
	if !ok {
		return
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	stock := -1
	if req.Stock != nil {
		stock = *req.Stock
	}
	applied := orch.Cart().AddOrIncrement(cart.AddInput{
		ProductID:      strings.TrimSpace(req.ProductID),
		Variant:        strings.TrimSpace(req.Variant),
		Quantity:       quantity,
		Stock:          stock,
		UnitPriceCents: req.UnitPriceCents,
	})
	response.Success(c, CartMutationResponse{Applied: applied, State: orch.State()})
}

// UpdateCartItem 设置行数量
func (h *Handler) UpdateCartItem(c *gin.Context) {
	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	orch, ok := h.orchestrator(c)
	if !ok {
		return
	}
	if err := orch.Cart().SetQuantity(strings.TrimSpace(req.ProductID), strings.TrimSpace(req.Variant), req.Quantity); err != nil {
		respondCheckoutError(c, err)
		return
	}
	response.Success(c, CartMutationResponse{Applied: true, State: orch.State()})
}

// RemoveCartItem 删除行：?product_id=&variant=
func (h *Handler) RemoveCartItem(c *gin.Context) {
	productID := strings.TrimSpace(c.Query("product_id"))
	if productID == "" {
		respondError(c, response.CodeBadRequest, "product_id required", nil)
		return
	}
	orch, ok := h.orchestrator(c)
	if !ok {
		return
	}
	removed := orch.Cart().Remove(productID, strings.TrimSpace(c.Query("variant")))
	response.Success(c, CartMutationResponse{Applied: removed, State: orch.State()})
}

// ClearCart 清空购物车
func (h *Handler) ClearCart(c *gin.Context) {
	orch, ok := h.orchestrator(c)
	if !ok {
		return
	}
	orch.Cart().Clear()
	response.Success(c, CartMutationResponse{Applied: true, State: orch.State()})
}

// SetAdjustments 更新运费/税费/优惠，必要时触发防抖同步
func (h *Handler) SetAdjustments(c *gin.Context) {
	var req AdjustmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	orch, ok := h.orchestrator(c)
	if !ok {
		return
	}
	scheduled := orch.SetAdjustments(models.Adjustments{
		ShippingCents: req.ShippingCents,
		TaxCents:      req.TaxCents,
		DiscountCents: req.DiscountCents,
	})
	response.Success(c, CartMutationResponse{Applied: scheduled, State: orch.State()})
}

// SyncCart 立即同步购物车，返回最新状态
func (h *Handler) SyncCart(c *gin.Context) {
	orch, ok := h.orchestrator(c)
	if !ok {
		return
	}
	if _, err := orch.SyncCart(c.Request.Context()); err != nil {
		respondCheckoutError(c, err)
		return
	}
	response.Success(c, orch.State())
}
