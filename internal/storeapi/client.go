package storeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/joya-checkout/internal/constants"
	"github.com/joya-checkout/internal/models"
	"github.com/joya-checkout/internal/rest"
)

var (
	ErrResponseInvalid = errors.New("store api response invalid")
	ErrOrderIDRequired = errors.New("store api order id required")
)

// Doer 发送 JSON 请求的最小接口（rest.Client 实现）
type Doer interface {
	Do(ctx context.Context, method, path string, body interface{}, opts ...rest.RequestOption) ([]byte, error)
}

// SyncItem 同步到服务端的购物车行
type SyncItem struct {
	ProductID string `json:"productId"`
	Variant   string `json:"variant,omitempty"`
	Quantity  int    `json:"quantity"`
}

// SyncRequest 购物车同步请求体
type SyncRequest struct {
	Items         []SyncItem `json:"items"`
	ShippingCents int64      `json:"shippingCents"`
	TaxCents      int64      `json:"taxCents"`
	DiscountCents int64      `json:"discountCents"`
}

// ShippingAddress 收货信息请求体
type ShippingAddress struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postalCode,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// LockResult 锁单结果
type LockResult struct {
	OrderID   string
	Reference string
	Status    string
}

// Client 店铺订单接口
type Client struct {
	doer Doer
}

// NewClient 创建订单接口客户端
func NewClient(doer Doer) *Client {
	return &Client{doer: doer}
}

// GetOrCreateCart 获取或创建草稿购物车订单；idempotencyKey 为空时每次生成新键
func (c *Client) GetOrCreateCart(ctx context.Context, idempotencyKey string) (*models.ServerCart, error) {
	body, err := c.doer.Do(ctx, http.MethodGet, constants.PathCart, nil, rest.WithIdempotencyKey(idempotencyKey))
	if err != nil {
		return nil, err
	}
	cart, err := decodeServerCart(body)
	if err != nil {
		return nil, err
	}
	if cart.OrderID == "" {
		return nil, fmt.Errorf("%w: missing cart order id", ErrResponseInvalid)
	}
	return cart, nil
}

// SyncItems 替换服务端购物车行并返回权威购物车
func (c *Client) SyncItems(ctx context.Context, req SyncRequest) (*models.ServerCart, error) {
	if req.Items == nil {
		req.Items = []SyncItem{}
	}
	body, err := c.doer.Do(ctx, http.MethodPut, constants.PathCartItems, req)
	if err != nil {
		return nil, err
	}
	return decodeServerCart(body)
}

// SaveShipping 保存收货信息快照
func (c *Client) SaveShipping(ctx context.Context, address ShippingAddress) error {
	_, err := c.doer.Do(ctx, http.MethodPut, constants.PathCartAddresses, map[string]interface{}{
		"shippingAddress": address,
	})
	return err
}

// LockForPayment 将草稿订单转为待支付并返回网关参考号
func (c *Client) LockForPayment(ctx context.Context, draftOrderID string) (*LockResult, error) {
	draftOrderID = strings.TrimSpace(draftOrderID)
	if draftOrderID == "" {
		return nil, ErrOrderIDRequired
	}
	path := fmt.Sprintf(constants.PathOrderPending, url.PathEscape(draftOrderID))
	body, err := c.doer.Do(ctx, http.MethodPost, path, map[string]string{})
	if err != nil {
		return nil, err
	}
	raw, err := decodeRaw(body)
	if err != nil {
		return nil, err
	}
	order := unwrapOrder(raw)
	result := &LockResult{
		OrderID: firstString(order, "_id", "id"),
		Status:  firstString(order, "status"),
		Reference: firstNonEmpty(
			firstString(raw, "wompiReference", "paymentReference", "reference"),
			firstString(order, "wompiReference", "paymentReference", "reference"),
		),
	}
	if result.OrderID == "" {
		result.OrderID = draftOrderID
	}
	return result, nil
}

func decodeServerCart(body []byte) (*models.ServerCart, error) {
	raw, err := decodeRaw(body)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(unwrapOrder(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	var cart models.ServerCart
	if err := json.Unmarshal(payload, &cart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if cart.OrderID == "" {
		cart.OrderID = firstString(unwrapOrder(raw), "id")
	}
	cart.OrderID = strings.TrimSpace(cart.OrderID)
	return &cart, nil
}

func decodeRaw(body []byte) (map[string]interface{}, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return map[string]interface{}{}, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

// unwrapOrder 兼容 {order:{...}} / {data:{...}} / 裸对象
func unwrapOrder(raw map[string]interface{}) map[string]interface{} {
	for _, key := range []string{"order", "cart", "data"} {
		if nested, ok := raw[key].(map[string]interface{}); ok {
			return nested
		}
	}
	return raw
}

func firstString(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key].(string); ok {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
