package cartsync

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/joya-checkout/internal/logger"
	"github.com/joya-checkout/internal/models"
	"github.com/joya-checkout/internal/scheduler"
	"github.com/joya-checkout/internal/storeapi"
	"github.com/joya-checkout/internal/telemetry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultDelay = 500 * time.Millisecond
	flushTimeout = 15 * time.Second
)

var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// CartAPI 服务端购物车同步接口
type CartAPI interface {
	SyncItems(ctx context.Context, req storeapi.SyncRequest) (*models.ServerCart, error)
}

// Options 同步引擎参数
type Options struct {
	Key       string
	Delay     time.Duration
	Debouncer *scheduler.Debouncer
	// Locked 返回 true 时订单已锁定，禁止一切写入
	Locked  func() bool
	OnError func(err error)
}

// Engine 购物车同步引擎（CartSyncEngine）
type Engine struct {
	api           CartAPI
	debouncer     *scheduler.Debouncer
	ownsDebouncer bool
	key           string
	delay         time.Duration
	locked        func() bool
	onError       func(err error)
	log           *zap.SugaredLogger

	mu          sync.Mutex
	dispatched  uint64
	applied     uint64
	projection  *models.ServerCart
	adjustments models.Adjustments
}

// New 创建同步引擎
func New(api CartAPI, opts Options) *Engine {
	debouncer := opts.Debouncer
	owns := false
	if debouncer == nil {
		debouncer = scheduler.NewDebouncer(nil)
		owns = true
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = defaultDelay
	}
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		key = "cart"
	}
	locked := opts.Locked
	if locked == nil {
		locked = func() bool { return false }
	}
	return &Engine{
		api:           api,
		debouncer:     debouncer,
		ownsDebouncer: owns,
		key:           key,
		delay:         delay,
		locked:        locked,
		onError:       opts.OnError,
		log:           logger.SW("component", "cartsync", "key", key),
	}
}

// ScheduleSync 防抖调度同步；已锁单时忽略并返回 false
func (e *Engine) ScheduleSync(lines []models.CartLine, adjustments models.Adjustments) bool {
	if e.locked() {
		telemetry.ObserveSync(telemetry.SyncSkippedLocked)
		e.log.Debugw("cartsync_schedule_skipped_locked")
		return false
	}
	snapshot := make([]models.CartLine, len(lines))
	copy(snapshot, lines)
	e.setAdjustments(adjustments)
	return e.debouncer.Debounce(e.key, e.delay, func() {
		e.flush(snapshot, adjustments)
	})
}

// SyncNow 立即同步（跳过防抖）；已锁单时返回 nil, nil
func (e *Engine) SyncNow(ctx context.Context, lines []models.CartLine, adjustments models.Adjustments) (*models.ServerCart, error) {
	if e.locked() {
		telemetry.ObserveSync(telemetry.SyncSkippedLocked)
		e.log.Debugw("cartsync_now_skipped_locked")
		return nil, nil
	}
	e.setAdjustments(adjustments)
	return e.dispatch(ctx, lines, adjustments)
}

// Cancel 丢弃挂起的防抖同步
func (e *Engine) Cancel() bool {
	return e.debouncer.Cancel(e.key)
}

// Pending 是否有挂起的防抖同步
func (e *Engine) Pending() bool {
	return e.debouncer.Pending(e.key)
}

// Projection 返回最近一次服务端购物车的副本
func (e *Engine) Projection() *models.ServerCart {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.projection == nil {
		return nil
	}
	projection := *e.projection
	projection.Items = append([]models.ServerLine(nil), e.projection.Items...)
	return &projection
}

// ResetProjection 清除服务端投影（重建草稿后使用）
func (e *Engine) ResetProjection() {
	e.mu.Lock()
	e.projection = nil
	e.applied = e.dispatched
	e.mu.Unlock()
}

// DisplayTotals 展示金额：有服务端数据时优先使用服务端金额
func (e *Engine) DisplayTotals(localLines []models.CartLine) models.Totals {
	items := 0
	var subtotal int64
	for _, line := range localLines {
		items += line.Quantity
		subtotal += line.SubtotalCents()
	}

	e.mu.Lock()
	projection := e.projection
	adjustments := e.adjustments
	e.mu.Unlock()

	totals := models.Totals{Items: items}
	if projection != nil {
		totals.SubtotalCents = projection.SubtotalCents
		totals.ShippingCents = projection.ShippingCents
		totals.TaxCents = projection.TaxCents
		totals.DiscountCents = projection.DiscountCents
		totals.TotalCents = projection.TotalCents
		totals.FromServer = true
	} else {
		totals.SubtotalCents = subtotal
		totals.ShippingCents = adjustments.ShippingCents
		totals.TaxCents = adjustments.TaxCents
		totals.DiscountCents = adjustments.DiscountCents
		totals.TotalCents = subtotal + adjustments.ShippingCents + adjustments.TaxCents - adjustments.DiscountCents
	}
	totals.Subtotal = models.MoneyFromCents(totals.SubtotalCents)
	totals.Total = models.MoneyFromCents(totals.TotalCents)
	return totals
}

// Close 取消挂起的同步并释放自有的防抖器
func (e *Engine) Close() {
	e.Cancel()
	if e.ownsDebouncer {
		e.debouncer.Stop()
	}
}

func (e *Engine) flush(lines []models.CartLine, adjustments models.Adjustments) {
	if e.locked() {
		telemetry.ObserveSync(telemetry.SyncSkippedLocked)
		e.log.Debugw("cartsync_flush_skipped_locked")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if _, err := e.dispatch(ctx, lines, adjustments); err != nil {
		e.log.Warnw("cartsync_flush_failed", "error", err)
		if e.onError != nil {
			e.onError(err)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, lines []models.CartLine, adjustments models.Adjustments) (*models.ServerCart, error) {
	req := BuildPayload(lines, adjustments)

	e.mu.Lock()
	e.dispatched++
	seq := e.dispatched
	e.mu.Unlock()

	cart, err := e.api.SyncItems(ctx, req)
	if err != nil {
		telemetry.ObserveSync(telemetry.SyncError)
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if seq <= e.applied {
		telemetry.ObserveSync(telemetry.SyncStale)
		e.log.Debugw("cartsync_stale_response_discarded", "seq", seq, "applied", e.applied)
		return cart, nil
	}
	e.applied = seq
	e.projection = cart
	telemetry.ObserveSync(telemetry.SyncOK)
	return cart, nil
}

func (e *Engine) setAdjustments(adjustments models.Adjustments) {
	e.mu.Lock()
	e.adjustments = adjustments
	e.mu.Unlock()
}

// BuildPayload 只保留商品 ID 合法且数量大于 0 的行
func BuildPayload(lines []models.CartLine, adjustments models.Adjustments) storeapi.SyncRequest {
	items := make([]storeapi.SyncItem, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 || !ValidProductID(line.ProductID) {
			logger.Debugw("cartsync_line_dropped", "product_id", line.ProductID, "quantity", line.Quantity)
			continue
		}
		items = append(items, storeapi.SyncItem{
			ProductID: line.ProductID,
			Variant:   line.VariantKey,
			Quantity:  line.Quantity,
		})
	}
	return storeapi.SyncRequest{
		Items:         items,
		ShippingCents: adjustments.ShippingCents,
		TaxCents:      adjustments.TaxCents,
		DiscountCents: adjustments.DiscountCents,
	}
}

// ValidProductID 判断商品 ID 是否为 24 位十六进制 ObjectID 或 UUID
func ValidProductID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if objectIDPattern.MatchString(id) {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil
}
