package cart

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/joya-checkout/internal/constants"
	"github.com/joya-checkout/internal/logger"
	"github.com/joya-checkout/internal/models"

	"go.uber.org/zap"
)

var (
	ErrQuantityInvalid = errors.New("cart quantity invalid")
	ErrLineNotFound    = errors.New("cart line not found")
)

const persistTimeout = 3 * time.Second

// SnapshotStore 购物车快照持久化接口
type SnapshotStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, payload []byte) error
}

// Listener 购物车变更订阅回调，参数为行的副本
type Listener func(lines []models.CartLine)

// AddInput 加购输入
type AddInput struct {
	ProductID      string
	Variant        string
	Quantity       int
	Stock          int // 小于 0 表示库存未知
	UnitPriceCents int64
}

// Store 购物车（CartStore）：行数据 + 本地持久化，无网络 I/O
type Store struct {
	mu          sync.Mutex
	lines       []models.CartLine
	cartOrderID string

	storage SnapshotStore
	key     string

	listeners    map[int]Listener
	nextListener int
	log          *zap.SugaredLogger
}

// New 创建空购物车
func New(storage SnapshotStore, key string) *Store {
	key = strings.TrimSpace(key)
	if key == "" {
		key = constants.DefaultCartStorageKey
	}
	return &Store{
		storage:   storage,
		key:       key,
		listeners: make(map[int]Listener),
		log:       logger.SW("component", "cart", "storage_key", key),
	}
}

// Open 创建购物车并从持久化存储恢复；缺失或损坏的数据得到空购物车
func Open(ctx context.Context, storage SnapshotStore, key string) *Store {
	s := New(storage, key)
	s.rehydrate(ctx)
	return s
}

// AddOrIncrement 加购或累加数量；已达库存上限时返回 false 且不修改
func (s *Store) AddOrIncrement(input AddInput) bool {
	productID := strings.TrimSpace(input.ProductID)
	variant := strings.TrimSpace(input.Variant)
	if productID == "" || input.Quantity < 1 {
		return false
	}
	stock := normalizeStock(input.Stock)
	if stock == 0 {
		return false
	}

	s.mu.Lock()
	idx := s.indexOf(productID, variant)
	if idx >= 0 {
		existing := s.lines[idx]
		if stock != constants.StockUnbounded && existing.Quantity >= stock {
			s.mu.Unlock()
			return false
		}
		existing.Quantity = clampQuantity(existing.Quantity+input.Quantity, stock)
		existing.Stock = stock
		if input.UnitPriceCents > 0 {
			existing.UnitPriceCents = input.UnitPriceCents
		}
		s.lines[idx] = existing
	} else {
		s.lines = append(s.lines, models.CartLine{
			ProductID:      productID,
			VariantKey:     variant,
			Quantity:       clampQuantity(input.Quantity, stock),
			UnitPriceCents: input.UnitPriceCents,
			Stock:          stock,
		})
	}
	lines := s.commitLocked()
	s.mu.Unlock()

	s.notify(lines)
	return true
}

// SetQuantity 设置数量并按库存截断；小于 1 的数量需走 Remove
func (s *Store) SetQuantity(productID, variant string, qty int) error {
	if qty < 1 {
		return ErrQuantityInvalid
	}
	s.mu.Lock()
	idx := s.indexOf(strings.TrimSpace(productID), strings.TrimSpace(variant))
	if idx < 0 {
		s.mu.Unlock()
		return ErrLineNotFound
	}
	s.lines[idx].Quantity = clampQuantity(qty, s.lines[idx].Stock)
	lines := s.commitLocked()
	s.mu.Unlock()

	s.notify(lines)
	return nil
}

// Remove 删除行，返回是否存在
func (s *Store) Remove(productID, variant string) bool {
	s.mu.Lock()
	idx := s.indexOf(strings.TrimSpace(productID), strings.TrimSpace(variant))
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	lines := s.commitLocked()
	s.mu.Unlock()

	s.notify(lines)
	return true
}

// Clear 清空购物车
func (s *Store) Clear() {
	s.mu.Lock()
	s.lines = nil
	lines := s.commitLocked()
	s.mu.Unlock()

	s.notify(lines)
}

// List 返回行的副本
func (s *Store) List() []models.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyLines(s.lines)
}

// TotalItems 商品件数
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, line := range s.lines {
		total += line.Quantity
	}
	return total
}

// TotalPriceCents 本地计算的商品总价（分）
func (s *Store) TotalPriceCents() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, line := range s.lines {
		total += line.SubtotalCents()
	}
	return total
}

// CartOrderID 当前草稿订单 ID
func (s *Store) CartOrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartOrderID
}

// SetCartOrderID 记录草稿订单 ID，随快照持久化
func (s *Store) SetCartOrderID(id string) {
	s.mu.Lock()
	s.cartOrderID = strings.TrimSpace(id)
	s.persistLocked()
	s.mu.Unlock()
}

// Subscribe 订阅变更，返回取消函数
func (s *Store) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) indexOf(productID, variant string) int {
	for i, line := range s.lines {
		if line.SameItem(productID, variant) {
			return i
		}
	}
	return -1
}

// commitLocked 持久化并返回通知用的副本，调用方持有锁
func (s *Store) commitLocked() []models.CartLine {
	s.persistLocked()
	return copyLines(s.lines)
}

func (s *Store) persistLocked() {
	if s.storage == nil {
		return
	}
	payload, err := json.Marshal(models.CartSnapshot{
		CartOrderID: s.cartOrderID,
		Lines:       s.lines,
	})
	if err != nil {
		s.log.Warnw("cart_snapshot_marshal_failed", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.storage.Save(ctx, s.key, payload); err != nil {
		s.log.Warnw("cart_snapshot_save_failed", "error", err)
	}
}

func (s *Store) rehydrate(ctx context.Context) {
	if s.storage == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := s.storage.Load(ctx, s.key)
	if err != nil {
		s.log.Warnw("cart_snapshot_load_failed", "error", err)
		return
	}
	if len(payload) == 0 {
		return
	}
	var snapshot models.CartSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		s.log.Warnw("cart_snapshot_corrupt", "error", err, "bytes", len(payload))
		return
	}

	lines := make([]models.CartLine, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		line.ProductID = strings.TrimSpace(line.ProductID)
		line.VariantKey = strings.TrimSpace(line.VariantKey)
		line.Stock = normalizeStock(line.Stock)
		if line.ProductID == "" || line.Quantity < 1 || line.Stock == 0 {
			continue
		}
		line.Quantity = clampQuantity(line.Quantity, line.Stock)
		lines = append(lines, line)
	}
	s.mu.Lock()
	s.lines = lines
	s.cartOrderID = strings.TrimSpace(snapshot.CartOrderID)
	s.mu.Unlock()
	s.log.Debugw("cart_snapshot_rehydrated", "lines", len(lines))
}

func (s *Store) notify(lines []models.CartLine) {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(copyLines(lines))
	}
}

func normalizeStock(stock int) int {
	if stock < 0 {
		return constants.StockUnbounded
	}
	return stock
}

func clampQuantity(qty, stock int) int {
	if qty < 1 {
		qty = 1
	}
	if stock != constants.StockUnbounded && qty > stock {
		qty = stock
	}
	return qty
}

func copyLines(lines []models.CartLine) []models.CartLine {
	if len(lines) == 0 {
		return []models.CartLine{}
	}
	out := make([]models.CartLine, len(lines))
	copy(out, lines)
	return out
}
