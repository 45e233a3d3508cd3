package checkout

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/joya-checkout/internal/recovery"
)

var (
	ErrSyncFailed         = errors.New("cart sync failed")
	ErrAddressRejected    = errors.New("shipping address rejected")
	ErrLockFailed         = errors.New("order lock failed")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrPreconditionFailed = errors.New("checkout precondition failed")
	ErrPaymentPending     = errors.New("payment pending confirmation")
	ErrDraftUnavailable   = errors.New("draft order unavailable")
	ErrDraftNotRenewed    = errors.New("draft order not renewed")
	ErrInvalidStep        = errors.New("checkout step invalid")

	ErrDuplicateOrder = recovery.ErrDuplicateOrder
	ErrLockExpired    = fmt.Errorf("%w: payment lock expired", recovery.ErrOrderStale)
)

// StepError 推进结算时某一步失败
type StepError struct {
	Step string
	Kind error
	Err  error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("checkout %s: %v", e.Step, e.Kind)
	}
	return fmt.Sprintf("checkout %s: %v: %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// ValidationError 本地字段校验失败（字段名 -> 原因）
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+" "+e.Fields[key])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error {
	return recovery.ErrInvalidInput
}

func newValidationError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// PaymentRejectedError 网关拒绝支付，Message 为网关原文
type PaymentRejectedError struct {
	Message        string
	Status         int
	Classification recovery.Classification
	Err            error
}

func (e *PaymentRejectedError) Error() string {
	return "payment rejected: " + e.Message
}

func (e *PaymentRejectedError) Unwrap() error {
	return e.Err
}

// Is 匹配 recovery.ErrPaymentRejected；按分类额外匹配重复/失效订单
func (e *PaymentRejectedError) Is(target error) bool {
	switch target {
	case recovery.ErrPaymentRejected:
		return true
	case recovery.ErrDuplicateOrder:
		return e.Classification.Duplicate
	case recovery.ErrOrderStale:
		return e.Classification.Stale
	}
	return false
}

func newPaymentRejected(message string, status int, cause error) *PaymentRejectedError {
	rejected := &PaymentRejectedError{
		Message: strings.TrimSpace(message),
		Status:  status,
		Err:     cause,
	}
	rejected.Classification = recovery.Classify(rejected)
	return rejected
}
