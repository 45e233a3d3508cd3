package checkout

import (
	"errors"

	"github.com/joya-checkout/internal/cart"
	core "github.com/joya-checkout/internal/checkout"
	"github.com/joya-checkout/internal/http/response"
	"github.com/joya-checkout/internal/logger"
	"github.com/joya-checkout/internal/recovery"
	"github.com/joya-checkout/internal/rest"
	"github.com/joya-checkout/internal/service"
	"github.com/joya-checkout/internal/telemetry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
	// serverMessage 为 true 时优先使用后端返回的原始提示
	serverMessage bool
}

var checkoutErrorRules = []mappedHandlerError{
	{target: service.ErrSessionRequired, code: response.CodeUnauthorized, msg: "checkout session required"},
	{target: service.ErrServiceClosed, code: response.CodeUnavailable, msg: "checkout service is shutting down"},
	{target: cart.ErrQuantityInvalid, code: response.CodeBadRequest, msg: "quantity must be at least 1"},
	{target: cart.ErrLineNotFound, code: response.CodeNotFound, msg: "cart line not found"},
	{target: recovery.ErrInvalidInput, code: response.CodeBadRequest, msg: "please review the highlighted fields"},
	{target: core.ErrInvalidStep, code: response.CodeConflict, msg: "checkout step does not allow this action"},
	{target: core.ErrPreconditionFailed, code: response.CodeConflict, msg: "continue to payment before paying"},
	{target: core.ErrLockExpired, code: response.CodeGone, msg: "payment window expired, please restart checkout"},
	{target: core.ErrDraftNotRenewed, code: response.CodeConflict, msg: "could not start a new order, please try again"},
	{target: core.ErrDuplicateOrder, code: response.CodeConflict, msg: "order was already processed", serverMessage: true},
	{target: recovery.ErrOrderStale, code: response.CodeGone, msg: "order is no longer payable", serverMessage: true},
	{target: recovery.ErrPaymentRejected, code: response.CodePaymentRequired, msg: "payment rejected", serverMessage: true},
	{target: core.ErrAddressRejected, code: response.CodeUnprocessable, msg: "shipping address rejected", serverMessage: true},
	{target: core.ErrSyncFailed, code: response.CodeBadGateway, msg: "could not sync the cart", serverMessage: true},
	{target: core.ErrLockFailed, code: response.CodeBadGateway, msg: "could not reserve the order", serverMessage: true},
	{target: core.ErrGatewayUnavailable, code: response.CodeBadGateway, msg: "payment gateway unavailable", serverMessage: true},
	{target: core.ErrDraftUnavailable, code: response.CodeBadGateway, msg: "could not create the order", serverMessage: true},
}

// buildCheckoutError 映射业务错误并附带恢复动作
func buildCheckoutError(err error) (*response.AppError, bool) {
	remedy := recovery.Classify(err).Remedy()
	for _, rule := range checkoutErrorRules {
		if !errors.Is(err, rule.target) {
			continue
		}
		msg := rule.msg
		if rule.serverMessage {
			if server := serverMessage(err); server != "" {
				msg = server
			}
		}
		appErr := response.WrapError(rule.code, msg, err).WithRemedy(remedy)
		var validation *core.ValidationError
		if errors.As(err, &validation) {
			appErr.WithFields(validation.Fields)
		}
		return appErr, true
	}
	return response.WrapError(response.CodeInternal, "unexpected checkout error", err).WithRemedy(remedy), false
}

func serverMessage(err error) string {
	var rejected *core.PaymentRejectedError
	if errors.As(err, &rejected) && rejected.Message != "" {
		return rejected.Message
	}
	if restErr, ok := rest.AsError(err); ok {
		return restErr.Message
	}
	return ""
}

// respondCheckoutError 输出结算错误响应并记录恢复动作
func respondCheckoutError(c *gin.Context, err error) {
	appErr, mapped := buildCheckoutError(err)
	telemetry.ObserveRecovery(appErr.Remedy)
	if !mapped {
		requestLog(c).Errorw("handler_error", "code", appErr.Code, "message", appErr.Message, "error", err)
	} else {
		requestLog(c).Infow("checkout_request_failed", "code", appErr.Code, "remedy", appErr.Remedy, "error", err)
	}
	response.Fail(c, appErr)
}

// respondError 返回自定义消息错误响应，并在有原始错误时记录日志。
func respondError(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		requestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
	}
	response.Error(c, appErr.Code, appErr.Message)
}

// requestLog 提供携带 request_id 与 session_id 的日志实例。
func requestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	fields := make([]interface{}, 0, 4)
	if id := c.GetString("request_id"); id != "" {
		fields = append(fields, "request_id", id)
	}
	if sid := c.GetString("session_id"); sid != "" {
		fields = append(fields, "session_id", sid)
	}
	if len(fields) == 0 {
		return logger.S()
	}
	return logger.SW(fields...)
}
