package constants

// 结算步骤常量
const (
	StepCollectingShipping = "collecting_shipping"
	StepCollectingPayment  = "collecting_payment"
	StepConfirmed          = "confirmed"
	StepFailed             = "failed"
)

// 服务端订单状态常量
const (
	OrderStatusDraft          = "draft"
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPaid           = "paid"
)

// 网关结果常量
const (
	PaymentOutcomeApproved = "approved"
	PaymentOutcomeDeclined = "declined"
	PaymentOutcomePending  = "pending"
)

// 故障恢复动作常量
const (
	RemedyReset    = "reset"
	RemedyRetry    = "retry"
	RemedyFixInput = "fix_input"
	RemedyGeneric  = "generic"
)

// 推进结算失败的步骤常量
const (
	AdvanceStepValidate = "validate"
	AdvanceStepSync     = "sync"
	AdvanceStepAddress  = "address"
	AdvanceStepLock     = "lock"
	AdvanceStepToken    = "token"
)

// 存储驱动常量
const (
	StoreDriverMemory   = "memory"
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
)

// 库存哨兵值：库存未知时不限制数量
const StockUnbounded = -1

// 默认购物车快照存储键
const DefaultCartStorageKey = "joya_cart"

// 队列常量
const (
	QueueDefault           = "default"
	TaskCheckoutLockExpire = "checkout:lock_expire"
)

// 店铺后端接口路径
const (
	PathCart          = "/orders/cart"
	PathCartItems     = "/orders/cart/items"
	PathCartAddresses = "/orders/cart/addresses"
	PathOrderPending  = "/orders/%s/pending"
	PathPaymentToken  = "/payment/token"
	PathPayment3DS    = "/payment/3ds"
)
