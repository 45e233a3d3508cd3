package recovery

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/joya-checkout/internal/constants"
	"github.com/joya-checkout/internal/logger"
	"github.com/joya-checkout/internal/rest"
	"github.com/joya-checkout/internal/telemetry"
)

var (
	ErrDuplicateOrder   = errors.New("order already paid or processed")
	ErrOrderStale       = errors.New("order no longer payable")
	ErrInvalidInput     = errors.New("invalid input")
	ErrPaymentRejected  = errors.New("payment rejected")
	ErrResetterRequired = errors.New("recovery resetter required")
)

// Classification 错误分类结果
type Classification struct {
	Retryable    bool `json:"retryable"`
	Duplicate    bool `json:"duplicate"`
	Stale        bool `json:"stale"`
	ServerFault  bool `json:"serverFault"`
	CardFault    bool `json:"cardFault"`
	InvalidInput bool `json:"invalidInput"`
}

// Remedy 建议的恢复动作
func (c Classification) Remedy() string {
	switch {
	case c.Duplicate || c.Stale:
		return constants.RemedyReset
	case c.InvalidInput:
		return constants.RemedyFixInput
	case c.Retryable || c.CardFault:
		return constants.RemedyRetry
	default:
		return constants.RemedyGeneric
	}
}

// Resetter 能够重置支付状态的对象
type Resetter interface {
	ResetPaymentState(ctx context.Context) error
}

type messageRule struct {
	patterns []string
	apply    func(c *Classification)
}

var (
	duplicateRule = messageRule{
		patterns: []string{"duplicated", "duplicate", "ya fue pagad", "ya fue procesad", "already paid", "already processed"},
		apply:    func(c *Classification) { c.Duplicate = true },
	}
	staleRule = messageRule{
		patterns: []string{"no existe", "not found", "no longer exists", "expired", "expirad", "vencid"},
		apply:    func(c *Classification) { c.Stale = true },
	}
	cardRule = messageRule{
		patterns: []string{"card", "tarjeta", "cvc", "cvv", "declined", "rechaz", "fondos insuficientes", "insufficient funds"},
		apply:    func(c *Classification) { c.CardFault = true; c.Retryable = true },
	}
)

// 服务端消息关键字规则，按顺序匹配第一条
var messageRules = []messageRule{duplicateRule, staleRule, cardRule}

// 网关拒付时卡片关键字优先于失效关键字："Tarjeta expirada" 是卡片问题
var rejectionRules = []messageRule{duplicateRule, cardRule, staleRule}

// Classify 对错误做结构化 + 关键字分类
func Classify(err error) Classification {
	var c Classification
	if err == nil {
		return c
	}

	switch {
	case errors.Is(err, ErrDuplicateOrder):
		c.Duplicate = true
		return c
	case errors.Is(err, ErrOrderStale):
		c.Stale = true
		return c
	case errors.Is(err, ErrInvalidInput):
		c.InvalidInput = true
		return c
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.Retryable = true
		return c
	}

	rejected := errors.Is(err, ErrPaymentRejected)
	rules := messageRules
	if rejected {
		rules = rejectionRules
	}
	if matchMessage(err, rules, &c) {
		return c
	}

	if restErr, ok := rest.AsError(err); ok {
		switch restErr.Category {
		case rest.CategoryNetwork:
			c.Retryable = true
		case rest.CategoryServer, rest.CategoryDecode:
			c.ServerFault = true
			c.Retryable = true
		case rest.CategoryClient:
			if restErr.Status == http.StatusNotFound || restErr.Status == http.StatusGone {
				c.Stale = true
			}
		}
	}

	if rejected && c == (Classification{}) {
		c.CardFault = true
		c.Retryable = true
	}
	return c
}

// Recover 按分类执行恢复：重复/失效订单时重置支付状态
func Recover(ctx context.Context, err error, resetter Resetter) (Classification, bool, error) {
	c := Classify(err)
	if err == nil {
		return c, false, nil
	}
	remedy := c.Remedy()
	telemetry.ObserveRecovery(remedy)
	if remedy != constants.RemedyReset {
		return c, false, nil
	}
	if resetter == nil {
		return c, false, ErrResetterRequired
	}
	logger.Infow("recovery_reset_payment_state", "duplicate", c.Duplicate, "stale", c.Stale, "cause", err.Error())
	if resetErr := resetter.ResetPaymentState(ctx); resetErr != nil {
		return c, false, resetErr
	}
	return c, true, nil
}

func matchMessage(err error, rules []messageRule, c *Classification) bool {
	text := strings.ToLower(rest.MessageOf(err) + " " + err.Error())
	for _, rule := range rules {
		for _, pattern := range rule.patterns {
			if strings.Contains(text, pattern) {
				rule.apply(c)
				return true
			}
		}
	}
	return false
}
