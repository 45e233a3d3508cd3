package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/joya-checkout/internal/cart"
	"github.com/joya-checkout/internal/checkout"
	"github.com/joya-checkout/internal/config"
	"github.com/joya-checkout/internal/constants"
	"github.com/joya-checkout/internal/logger"
	"github.com/joya-checkout/internal/payment/wompi"
	"github.com/joya-checkout/internal/rest"
	"github.com/joya-checkout/internal/scheduler"
	"github.com/joya-checkout/internal/storeapi"
	"github.com/joya-checkout/internal/telemetry"
)

var (
	ErrSessionRequired = errors.New("checkout session id required")
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrServiceClosed   = errors.New("checkout service closed")
)

// CheckoutServiceOptions 会话宿主依赖
type CheckoutServiceOptions struct {
	Config     *config.Config
	Snapshots  cart.SnapshotStore
	LockExpiry checkout.LockExpiryScheduler
	HTTPClient func() *http.Client
	Clock      scheduler.Clock
}

type sessionEntry struct {
	orch     *checkout.Orchestrator
	lastSeen time.Time
}

// CheckoutService 每个 UI 会话持有一套 {CartStore, CartSyncEngine, CheckoutOrchestrator}
type CheckoutService struct {
	cfg        *config.Config
	snapshots  cart.SnapshotStore
	lockExpiry checkout.LockExpiryScheduler
	httpClient func() *http.Client
	clock      scheduler.Clock
	debouncer  *scheduler.Debouncer

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	closed   bool
}

// NewCheckoutService 创建会话宿主服务
func NewCheckoutService(opts CheckoutServiceOptions) *CheckoutService {
	clock := opts.Clock
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	snapshots := opts.Snapshots
	if snapshots == nil {
		snapshots = cart.NewMemorySnapshotStore()
	}
	return &CheckoutService{
		cfg:        opts.Config,
		snapshots:  snapshots,
		lockExpiry: opts.LockExpiry,
		httpClient: opts.HTTPClient,
		clock:      clock,
		debouncer:  scheduler.NewDebouncer(clock),
		sessions:   make(map[string]*sessionEntry),
	}
}

// Session 获取或创建会话；storeToken 非空时覆盖默认后端 token
func (s *CheckoutService) Session(ctx context.Context, sessionID, storeToken string) (*checkout.Orchestrator, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServiceClosed
	}
	if entry, ok := s.sessions[sessionID]; ok {
		entry.lastSeen = s.clock.Now()
		return entry.orch, nil
	}

	orch, err := s.newOrchestrator(ctx, sessionID, storeToken)
	if err != nil {
		return nil, err
	}
	s.sessions[sessionID] = &sessionEntry{orch: orch, lastSeen: s.clock.Now()}
	telemetry.SetActiveSessions(len(s.sessions))
	logger.Infow("checkout_session_opened", "session_id", sessionID, "sessions", len(s.sessions))
	return orch, nil
}

// Lookup 获取已存在的会话
func (s *CheckoutService) Lookup(sessionID string) (*checkout.Orchestrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry.orch, nil
}

// ExpireLock 锁单到期：标记对应会话失效
func (s *CheckoutService) ExpireLock(sessionID, lockedOrderID string) (bool, error) {
	orch, err := s.Lookup(sessionID)
	if err != nil {
		return false, err
	}
	return orch.ExpireLock(lockedOrderID), nil
}

// CloseSession 关闭会话，取消挂起的同步
func (s *CheckoutService) CloseSession(sessionID string) bool {
	s.mu.Lock()
	entry, ok := s.sessions[strings.TrimSpace(sessionID)]
	if ok {
		delete(s.sessions, strings.TrimSpace(sessionID))
		telemetry.SetActiveSessions(len(s.sessions))
	}
	s.mu.Unlock()
	if ok {
		entry.orch.Close()
	}
	return ok
}

// Sweep 清理空闲超时的会话，返回清理数量
func (s *CheckoutService) Sweep(now time.Time) int {
	idle := s.idleTimeout()
	s.mu.Lock()
	expired := make([]*checkout.Orchestrator, 0)
	for id, entry := range s.sessions {
		if now.Sub(entry.lastSeen) >= idle {
			expired = append(expired, entry.orch)
			delete(s.sessions, id)
		}
	}
	telemetry.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()

	for _, orch := range expired {
		orch.Close()
	}
	if len(expired) > 0 {
		logger.Infow("checkout_sessions_swept", "count", len(expired))
	}
	return len(expired)
}

// Count 当前会话数
func (s *CheckoutService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close 关闭全部会话
func (s *CheckoutService) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[string]*sessionEntry)
	s.mu.Unlock()

	for _, entry := range sessions {
		entry.orch.Close()
	}
	s.debouncer.Stop()
	telemetry.SetActiveSessions(0)
}

func (s *CheckoutService) newOrchestrator(ctx context.Context, sessionID, storeToken string) (*checkout.Orchestrator, error) {
	cfg := s.config()
	token := strings.TrimSpace(storeToken)
	if token == "" {
		token = cfg.API.Token
	}
	restCfg := rest.Config{
		BaseURL: cfg.API.BaseURL,
		Token:   token,
		Timeout: cfg.API.Timeout(),
	}
	if s.httpClient != nil {
		restCfg.HTTPClient = s.httpClient()
	}
	transport, err := rest.NewClient(restCfg)
	if err != nil {
		return nil, err
	}

	store := cart.Open(ctx, s.snapshots, storageKey(cfg.Store.Key, sessionID))
	return checkout.New(store, storeapi.NewClient(transport), wompi.NewClient(transport), checkout.Options{
		SessionID:           sessionID,
		SyncDelay:           cfg.Checkout.Debounce(),
		Debouncer:           s.debouncer,
		PlaceholderLastName: cfg.Checkout.PlaceholderLastName,
		LockExpiry:          s.lockExpiry,
		Now:                 s.clock.Now,
		OnSyncError: func(err error) {
			logger.Warnw("checkout_session_sync_failed", "session_id", sessionID, "error", err)
		},
	}), nil
}

func (s *CheckoutService) config() *config.Config {
	if s.cfg != nil {
		return s.cfg
	}
	return &config.Config{}
}

func (s *CheckoutService) idleTimeout() time.Duration {
	minutes := s.config().Checkout.SessionIdleMinutes
	if minutes <= 0 {
		minutes = 120
	}
	return time.Duration(minutes) * time.Minute
}

func storageKey(base, sessionID string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = constants.DefaultCartStorageKey
	}
	return base + ":" + sessionID
}
