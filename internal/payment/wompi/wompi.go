package wompi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/joya-checkout/internal/constants"
	"github.com/joya-checkout/internal/rest"
)

var (
	ErrInputInvalid    = errors.New("wompi input invalid")
	ErrResponseInvalid = errors.New("wompi response invalid")
)

// Doer 发送 JSON 请求的最小接口（rest.Client 实现）
type Doer interface {
	Do(ctx context.Context, method, path string, body interface{}, opts ...rest.RequestOption) ([]byte, error)
}

// OrderRef 支付关联的订单与网关参考号
type OrderRef struct {
	OrderID   string
	Reference string
	Attempt   int // 同一锁单的第几次有结论的扣款，网络失败重提时不变
}

// ChargeKey 扣款幂等键：同一锁单、网关引用与尝试序号重提时保持不变
func ChargeKey(ref OrderRef) string {
	return rest.IdempotencyKey("charge", strings.TrimSpace(ref.OrderID), strings.TrimSpace(ref.Reference), strconv.Itoa(ref.Attempt))
}

// Attempt 单次支付的卡信息（已校验并规范化，不落盘）
type Attempt struct {
	CardNumber   string
	CVV          string
	ExpMonth     string
	ExpYear      string
	HolderName   string
	HolderLast   string
	Email        string
	Installments int
}

// Outcome 规范化后的网关结果
type Outcome struct {
	Status        string
	Message       string
	TransactionID string
	Raw           map[string]interface{}
}

// Approved 是否支付成功
func (o Outcome) Approved() bool {
	return o.Status == constants.PaymentOutcomeApproved
}

// Pending 是否仍在处理中
func (o Outcome) Pending() bool {
	return o.Status == constants.PaymentOutcomePending
}

// Client 支付网关适配器，不做重试
type Client struct {
	doer Doer
}

// NewClient 创建网关客户端
func NewClient(doer Doer) *Client {
	return &Client{doer: doer}
}

// RequestToken 获取支付会话令牌
func (c *Client) RequestToken(ctx context.Context, ref OrderRef) (string, error) {
	orderID := strings.TrimSpace(ref.OrderID)
	if orderID == "" {
		return "", fmt.Errorf("%w: order id is required", ErrInputInvalid)
	}
	payload := map[string]string{"orderId": orderID}
	if reference := strings.TrimSpace(ref.Reference); reference != "" {
		payload["reference"] = reference
	}
	body, err := c.doer.Do(ctx, http.MethodPost, constants.PathPaymentToken, payload)
	if err != nil {
		return "", err
	}
	raw, err := decodeRawMap(body)
	if err != nil {
		return "", err
	}
	token := readString(raw, "accessToken")
	if token == "" {
		token = readString(raw, "token")
	}
	if token == "" {
		token = readString(readMap(raw, "data"), "token")
	}
	if token == "" {
		token = readString(readMap(raw, "data"), "accessToken")
	}
	if token == "" {
		return "", fmt.Errorf("%w: missing token", ErrResponseInvalid)
	}
	return token, nil
}

// Submit3DS 提交 3DS 扣款并返回规范化结果
func (c *Client) Submit3DS(ctx context.Context, token string, attempt Attempt, ref OrderRef) (*Outcome, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInputInvalid)
	}
	if strings.TrimSpace(ref.OrderID) == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrInputInvalid)
	}
	installments := attempt.Installments
	if installments <= 0 {
		installments = 1
	}
	payload := map[string]interface{}{
		"token":     token,
		"orderId":   strings.TrimSpace(ref.OrderID),
		"reference": strings.TrimSpace(ref.Reference),
		"card": map[string]string{
			"number":     attempt.CardNumber,
			"cvc":        attempt.CVV,
			"expMonth":   attempt.ExpMonth,
			"expYear":    attempt.ExpYear,
			"cardHolder": strings.TrimSpace(attempt.HolderName + " " + attempt.HolderLast),
		},
		"customer": map[string]string{
			"name":     attempt.HolderName,
			"lastName": attempt.HolderLast,
			"email":    attempt.Email,
		},
		"installments": installments,
	}
	body, err := c.doer.Do(ctx, http.MethodPost, constants.PathPayment3DS, payload, rest.WithIdempotencyKey(ChargeKey(ref)))
	if err != nil {
		return nil, err
	}
	raw, err := decodeRawMap(body)
	if err != nil {
		return nil, err
	}
	outcome := NormalizeOutcome(raw)
	return &outcome, nil
}

// NormalizeOutcome 将各种返回形态归一为 approved / declined / pending
func NormalizeOutcome(raw map[string]interface{}) Outcome {
	outcome := Outcome{
		Status:        constants.PaymentOutcomeDeclined,
		Message:       readMessage(raw),
		TransactionID: firstNonEmpty(readString(raw, "transactionId"), readString(readMap(raw, "data"), "id"), readString(raw, "id")),
		Raw:           raw,
	}
	if success, ok := raw["success"].(bool); ok && success {
		outcome.Status = constants.PaymentOutcomeApproved
		return outcome
	}

	states := []string{
		readString(raw, "transactionState"),
		readString(raw, "state"),
		readString(raw, "status"),
		readString(readMap(raw, "data"), "status"),
		readString(readMap(raw, "transaction"), "status"),
	}
	for _, state := range states {
		if mapped, ok := mapTransactionState(state); ok {
			outcome.Status = mapped
			return outcome
		}
	}
	return outcome
}

var negatedApproval = []string{"disapprov", "unapprov", "notapprov", "nonapprov"}

func mapTransactionState(state string) (string, bool) {
	state = strings.ToLower(strings.TrimSpace(state))
	if state == "" {
		return "", false
	}
	if isNegatedState(state) {
		return constants.PaymentOutcomeDeclined, true
	}
	switch {
	case strings.Contains(state, "approved"):
		return constants.PaymentOutcomeApproved, true
	case strings.Contains(state, "pending"):
		return constants.PaymentOutcomePending, true
	case state == "declined", state == "voided", state == "error", strings.Contains(state, "reject"):
		return constants.PaymentOutcomeDeclined, true
	default:
		return "", false
	}
}

// isNegatedState 识别 NOT_APPROVED / DISAPPROVED / "no aprobado" 等否定形态
func isNegatedState(state string) bool {
	for _, prefix := range negatedApproval {
		if strings.Contains(state, prefix) {
			return true
		}
	}
	tokens := strings.FieldsFunc(state, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, token := range tokens {
		switch token {
		case "not", "no", "non", "un":
			return true
		}
	}
	return false
}

func readMessage(raw map[string]interface{}) string {
	for _, key := range []string{"message", "error", "reason", "statusMessage"} {
		if msg := readString(raw, key); msg != "" {
			return msg
		}
		if nested := readMap(raw, key); nested != nil {
			if msg := readString(nested, "message"); msg != "" {
				return msg
			}
		}
	}
	if data := readMap(raw, "data"); data != nil {
		return readString(data, "status_message")
	}
	return ""
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return map[string]interface{}{}, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil || strings.TrimSpace(key) == "" {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	case json.Number:
		return typed.String()
	default:
		return ""
	}
}

func readMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil {
		return nil
	}
	mapped, ok := raw[key].(map[string]interface{})
	if !ok {
		return nil
	}
	return mapped
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
