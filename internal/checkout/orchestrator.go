package checkout

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joya-checkout/internal/cart"
	"github.com/joya-checkout/internal/cartsync"
	"github.com/joya-checkout/internal/constants"
	"github.com/joya-checkout/internal/logger"
	"github.com/joya-checkout/internal/models"
	"github.com/joya-checkout/internal/payment/wompi"
	"github.com/joya-checkout/internal/rest"
	"github.com/joya-checkout/internal/scheduler"
	"github.com/joya-checkout/internal/storeapi"
	"github.com/joya-checkout/internal/telemetry"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// OrdersAPI 店铺订单接口
type OrdersAPI interface {
	GetOrCreateCart(ctx context.Context, idempotencyKey string) (*models.ServerCart, error)
	SyncItems(ctx context.Context, req storeapi.SyncRequest) (*models.ServerCart, error)
	SaveShipping(ctx context.Context, address storeapi.ShippingAddress) error
	LockForPayment(ctx context.Context, draftOrderID string) (*storeapi.LockResult, error)
}

// Gateway 支付网关接口
type Gateway interface {
	RequestToken(ctx context.Context, ref wompi.OrderRef) (string, error)
	Submit3DS(ctx context.Context, token string, attempt wompi.Attempt, ref wompi.OrderRef) (*wompi.Outcome, error)
}

// LockExpiryScheduler 锁单后登记支付窗口到期任务
type LockExpiryScheduler interface {
	ScheduleLockExpiry(ctx context.Context, sessionID, lockedOrderID string) error
}

// Options 编排器参数
type Options struct {
	SessionID           string
	SyncDelay           time.Duration
	Debouncer           *scheduler.Debouncer
	PlaceholderLastName string
	LockExpiry          LockExpiryScheduler
	OnSyncError         func(err error)
	Now                 func() time.Time
}

// PaymentResult 扣款结果
type PaymentResult struct {
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	OrderID       string `json:"orderId"`
}

// Orchestrator 结算状态机（CheckoutOrchestrator）
type Orchestrator struct {
	sessionID   string
	cart        *cart.Store
	api         OrdersAPI
	gateway     Gateway
	engine      *cartsync.Engine
	lockExpiry  LockExpiryScheduler
	placeholder string
	now         func() time.Time
	log         *zap.SugaredLogger

	// opMu 串行化推进/支付/重置
	opMu  sync.Mutex
	group singleflight.Group

	mu          sync.Mutex
	session     Session
	draftGen    int
	adjustments models.Adjustments
	unsubscribe func()
	closed      bool
}

// New 创建编排器；购物车变更会自动触发防抖同步
func New(store *cart.Store, api OrdersAPI, gateway Gateway, opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sessionID := strings.TrimSpace(opts.SessionID)
	o := &Orchestrator{
		sessionID:   sessionID,
		cart:        store,
		api:         api,
		gateway:     gateway,
		lockExpiry:  opts.LockExpiry,
		placeholder: strings.TrimSpace(opts.PlaceholderLastName),
		now:         now,
		log:         logger.SW("component", "checkout", "session_id", sessionID),
		session:     newSession(store.CartOrderID()),
	}
	o.engine = cartsync.New(api, cartsync.Options{
		Key:       sessionID,
		Delay:     opts.SyncDelay,
		Debouncer: opts.Debouncer,
		Locked:    o.Locked,
		OnError:   o.handleSyncError(opts.OnSyncError),
	})
	o.unsubscribe = store.Subscribe(func(lines []models.CartLine) {
		o.engine.ScheduleSync(lines, o.currentAdjustments())
	})
	return o
}

// SessionID 会话 ID
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// Cart 购物车
func (o *Orchestrator) Cart() *cart.Store {
	return o.cart
}

// Sync 同步引擎
func (o *Orchestrator) Sync() *cartsync.Engine {
	return o.engine
}

// Locked 订单是否已锁定
func (o *Orchestrator) Locked() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.LockedOrderID != ""
}

// SetAdjustments 更新运费/税费/优惠并调度同步
func (o *Orchestrator) SetAdjustments(adjustments models.Adjustments) bool {
	o.mu.Lock()
	o.adjustments = adjustments
	o.mu.Unlock()
	return o.engine.ScheduleSync(o.cart.List(), adjustments)
}

// SyncCart 确保草稿订单后立即同步购物车；锁单后不发请求
func (o *Orchestrator) SyncCart(ctx context.Context) (*models.ServerCart, error) {
	if o.Locked() {
		return nil, nil
	}
	if _, err := o.EnsureDraft(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	o.engine.Cancel()
	server, err := o.engine.SyncNow(ctx, o.cart.List(), o.currentAdjustments())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	return server, nil
}

// EnsureDraft 幂等获取草稿订单；已知 ID 时不发请求，并发调用合并为一次
func (o *Orchestrator) EnsureDraft(ctx context.Context) (string, error) {
	o.mu.Lock()
	if id := o.session.DraftOrderID; id != "" {
		o.mu.Unlock()
		return id, nil
	}
	gen := o.draftGen
	o.mu.Unlock()

	value, err, _ := o.group.Do("draft:"+strconv.Itoa(gen), func() (interface{}, error) {
		o.mu.Lock()
		if id := o.session.DraftOrderID; id != "" && o.draftGen == gen {
			o.mu.Unlock()
			return id, nil
		}
		o.mu.Unlock()

		server, err := o.api.GetOrCreateCart(ctx, rest.IdempotencyKey("draft", o.SessionID(), strconv.Itoa(gen)))
		if err != nil {
			return "", err
		}
		if server == nil || strings.TrimSpace(server.OrderID) == "" {
			return "", storeapi.ErrResponseInvalid
		}
		o.mu.Lock()
		if o.draftGen != gen {
			o.mu.Unlock()
			return server.OrderID, nil
		}
		o.session.DraftOrderID = server.OrderID
		o.mu.Unlock()
		o.cart.SetCartOrderID(server.OrderID)
		o.log.Infow("checkout_draft_ready", "draft_order_id", server.OrderID)
		return server.OrderID, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDraftUnavailable, err)
	}
	return value.(string), nil
}

// AdvanceToPayment 同步 -> 保存地址 -> 锁单 -> 获取令牌，全部成功才进入支付步骤
func (o *Orchestrator) AdvanceToPayment(ctx context.Context, shipping ShippingInfo) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	current := o.snapshot()
	if current.Step != constants.StepCollectingShipping {
		return fmt.Errorf("%w: advance from %s", ErrInvalidStep, current.Step)
	}
	shipping = shipping.normalize()
	if err := ValidateShipping(shipping); err != nil {
		return err
	}
	o.mu.Lock()
	o.session.Shipping = &shipping
	o.mu.Unlock()

	if current.LockedOrderID == "" {
		draftID, err := o.EnsureDraft(ctx)
		if err != nil {
			return o.stepFailed(constants.AdvanceStepSync, ErrSyncFailed, err)
		}

		o.engine.Cancel()
		if _, err := o.engine.SyncNow(ctx, o.cart.List(), o.currentAdjustments()); err != nil {
			return o.stepFailed(constants.AdvanceStepSync, ErrSyncFailed, err)
		}

		if err := o.api.SaveShipping(ctx, shipping.toAddress()); err != nil {
			return o.stepFailed(constants.AdvanceStepAddress, ErrAddressRejected, err)
		}

		lock, err := o.api.LockForPayment(ctx, draftID)
		telemetry.ObserveLock(err == nil)
		if err != nil {
			return o.stepFailed(constants.AdvanceStepLock, ErrLockFailed, err)
		}
		lockedAt := o.now()
		o.mu.Lock()
		o.session.LockedOrderID = lock.OrderID
		o.session.PaymentReference = lock.Reference
		o.session.LockedAt = &lockedAt
		o.session.Stale = false
		o.mu.Unlock()
		o.log.Infow("checkout_order_locked", "draft_order_id", draftID, "locked_order_id", lock.OrderID, "reference", lock.Reference)

		if o.lockExpiry != nil {
			if err := o.lockExpiry.ScheduleLockExpiry(ctx, o.sessionID, lock.OrderID); err != nil {
				o.log.Warnw("checkout_lock_expiry_enqueue_failed", "locked_order_id", lock.OrderID, "error", err)
			}
		}
	}

	ref := o.orderRef()
	token, err := o.gateway.RequestToken(ctx, ref)
	if err != nil {
		return o.stepFailed(constants.AdvanceStepToken, ErrGatewayUnavailable, err)
	}

	o.mu.Lock()
	o.session.AccessToken = token
	o.session.Step = constants.StepCollectingPayment
	o.session.LastError = ""
	o.mu.Unlock()
	o.log.Infow("checkout_payment_ready", "locked_order_id", ref.OrderID)
	return nil
}

// SubmitPayment 校验卡信息并提交 3DS 扣款
func (o *Orchestrator) SubmitPayment(ctx context.Context, card CardInput) (*PaymentResult, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	current := o.snapshot()
	ref := o.orderRef()
	if current.Step != constants.StepCollectingPayment || ref.OrderID == "" || current.AccessToken == "" {
		return nil, fmt.Errorf("%w: step=%s order=%q token=%t", ErrPreconditionFailed, current.Step, ref.OrderID, current.AccessToken != "")
	}
	if current.Stale {
		return nil, ErrLockExpired
	}

	attempt, err := prepareAttempt(card, current.Shipping, o.placeholder, o.now())
	if err != nil {
		return nil, err
	}

	outcome, err := o.gateway.Submit3DS(ctx, current.AccessToken, attempt, ref)
	if err != nil {
		if restErr, ok := rest.AsError(err); ok && restErr.Category == rest.CategoryClient {
			rejected := newPaymentRejected(restErr.Message, restErr.Status, err)
			telemetry.ObservePayment(constants.PaymentOutcomeDeclined)
			o.markFailed(rejected.Message)
			o.nextChargeAttempt()
			return nil, rejected
		}
		o.setLastError(err.Error())
		return nil, &StepError{Step: "charge", Kind: ErrGatewayUnavailable, Err: err}
	}

	telemetry.ObservePayment(outcome.Status)
	result := &PaymentResult{
		Status:        outcome.Status,
		Message:       outcome.Message,
		TransactionID: outcome.TransactionID,
		OrderID:       ref.OrderID,
	}
	switch outcome.Status {
	case constants.PaymentOutcomeApproved:
		o.mu.Lock()
		o.session.Step = constants.StepConfirmed
		o.session.LastError = ""
		o.session.DraftOrderID = ""
		o.session.ChargeAttempt++
		o.draftGen++
		o.mu.Unlock()
		o.engine.Cancel()
		o.cart.Clear()
		o.cart.SetCartOrderID("")
		o.log.Infow("checkout_payment_approved", "order_id", ref.OrderID, "transaction_id", outcome.TransactionID)
		return result, nil
	case constants.PaymentOutcomePending:
		o.setLastError("payment pending confirmation")
		return result, ErrPaymentPending
	default:
		rejected := newPaymentRejected(outcome.Message, 0, nil)
		o.markFailed(rejected.Message)
		o.nextChargeAttempt()
		o.log.Infow("checkout_payment_declined", "order_id", ref.OrderID, "message", outcome.Message, "duplicate", rejected.Classification.Duplicate)
		return result, rejected
	}
}

// ResetPaymentState 清空锁单/令牌并重新建立草稿订单；不会解锁服务端订单
func (o *Orchestrator) ResetPaymentState(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.engine.Cancel()
	o.engine.ResetProjection()

	o.mu.Lock()
	previousLocked := o.session.LockedOrderID
	shipping := o.session.Shipping
	o.session = newSession("")
	o.session.Shipping = shipping
	o.draftGen++
	o.mu.Unlock()
	o.cart.SetCartOrderID("")

	draftID, err := o.EnsureDraft(ctx)
	if err != nil {
		o.setLastError(err.Error())
		return err
	}
	if previousLocked != "" && draftID == previousLocked {
		o.mu.Lock()
		o.session.DraftOrderID = ""
		o.draftGen++
		o.mu.Unlock()
		o.cart.SetCartOrderID("")
		return fmt.Errorf("%w: server returned locked order %s", ErrDraftNotRenewed, previousLocked)
	}
	o.log.Infow("checkout_payment_state_reset", "previous_locked_order_id", previousLocked, "draft_order_id", draftID)
	return nil
}

// RetryPayment failed -> collecting_payment
func (o *Orchestrator) RetryPayment() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.Step != constants.StepFailed {
		return fmt.Errorf("%w: retry from %s", ErrInvalidStep, o.session.Step)
	}
	o.session.Step = constants.StepCollectingPayment
	o.session.LastError = ""
	return nil
}

// ClearForm 丢弃收货信息并取消挂起的同步
func (o *Orchestrator) ClearForm() {
	o.engine.Cancel()
	o.mu.Lock()
	o.session.Shipping = nil
	o.mu.Unlock()
}

// ExpireLock 支付窗口到期：ID 仍匹配且未完成时标记失效
func (o *Orchestrator) ExpireLock(lockedOrderID string) bool {
	lockedOrderID = strings.TrimSpace(lockedOrderID)
	o.mu.Lock()
	defer o.mu.Unlock()
	if lockedOrderID == "" || o.session.LockedOrderID != lockedOrderID || o.session.Step == constants.StepConfirmed {
		return false
	}
	o.session.Stale = true
	o.session.LastError = "payment window expired"
	o.log.Infow("checkout_lock_expired", "locked_order_id", lockedOrderID)
	return true
}

// State 渲染用快照
func (o *Orchestrator) State() State {
	lines := o.cart.List()
	return State{
		Session:     o.snapshot(),
		Lines:       lines,
		Totals:      o.engine.DisplayTotals(lines),
		SyncPending: o.engine.Pending(),
	}
}

// Close 取消挂起的同步并解除订阅
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	unsubscribe := o.unsubscribe
	o.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	o.engine.Close()
}

func (o *Orchestrator) snapshot() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.clone()
}

func (o *Orchestrator) orderRef() wompi.OrderRef {
	o.mu.Lock()
	defer o.mu.Unlock()
	return wompi.OrderRef{OrderID: o.session.OrderRef(), Reference: o.session.PaymentReference, Attempt: o.session.ChargeAttempt}
}

func (o *Orchestrator) currentAdjustments() models.Adjustments {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.adjustments
}

func (o *Orchestrator) stepFailed(step string, kind, err error) error {
	stepErr := &StepError{Step: step, Kind: kind, Err: err}
	o.setLastError(rest.MessageOf(err))
	o.log.Warnw("checkout_advance_failed", "step", step, "error", err)
	return stepErr
}

func (o *Orchestrator) markFailed(message string) {
	if message == "" {
		message = "payment declined"
	}
	o.mu.Lock()
	o.session.Step = constants.StepFailed
	o.session.LastError = message
	o.mu.Unlock()
}

// nextChargeAttempt 有结论的扣款之后，下一次提交使用新的幂等键
func (o *Orchestrator) nextChargeAttempt() {
	o.mu.Lock()
	o.session.ChargeAttempt++
	o.mu.Unlock()
}

func (o *Orchestrator) setLastError(message string) {
	o.mu.Lock()
	o.session.LastError = message
	o.mu.Unlock()
}

func (o *Orchestrator) handleSyncError(fn func(err error)) func(err error) {
	return func(err error) {
		o.setLastError(rest.MessageOf(err))
		if fn != nil {
			fn(err)
		}
	}
}
