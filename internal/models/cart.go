package models

import "github.com/joya-checkout/internal/constants"

// CartLine 购物车行
type CartLine struct {
	ProductID      string `json:"productId"`
	VariantKey     string `json:"variantKey"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Stock          int    `json:"stock"` // constants.StockUnbounded 表示库存未知
}

// StockKnown 判断库存是否已知
func (l CartLine) StockKnown() bool {
	return l.Stock != constants.StockUnbounded
}

// SubtotalCents 行小计（分）
func (l CartLine) SubtotalCents() int64 {
	return int64(l.Quantity) * l.UnitPriceCents
}

// SameItem 判断是否为同一商品规格
func (l CartLine) SameItem(productID, variant string) bool {
	return l.ProductID == productID && l.VariantKey == variant
}

// Adjustments 运费/税费/优惠（分）
type Adjustments struct {
	ShippingCents int64 `json:"shippingCents"`
	TaxCents      int64 `json:"taxCents"`
	DiscountCents int64 `json:"discountCents"`
}

// CartSnapshot 本地持久化的购物车快照
type CartSnapshot struct {
	CartOrderID string     `json:"cartOrderId,omitempty"`
	Lines       []CartLine `json:"lines"`
}

// ServerLine 服务端返回的购物车行（价格由服务端重算）
type ServerLine struct {
	ProductID      string `json:"productId"`
	VariantKey     string `json:"variant"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	TotalCents     int64  `json:"totalCents"`
}

// ServerCart 服务端权威购物车（草稿订单）
type ServerCart struct {
	OrderID       string       `json:"_id"`
	Status        string       `json:"status"`
	Items         []ServerLine `json:"items"`
	SubtotalCents int64        `json:"subtotalCents"`
	ShippingCents int64        `json:"shippingCents"`
	TaxCents      int64        `json:"taxCents"`
	DiscountCents int64        `json:"discountCents"`
	TotalCents    int64        `json:"totalCents"`
}

// Totals 展示用金额汇总
type Totals struct {
	Items         int   `json:"items"`
	SubtotalCents int64 `json:"subtotalCents"`
	ShippingCents int64 `json:"shippingCents"`
	TaxCents      int64 `json:"taxCents"`
	DiscountCents int64 `json:"discountCents"`
	TotalCents    int64 `json:"totalCents"`
	Subtotal      Money `json:"subtotal"`
	Total         Money `json:"total"`
	FromServer    bool  `json:"fromServer"`
}
