package app

import (
	"context"
	"errors"
	"time"

	"github.com/joya-checkout/internal/logger"
)

// SessionSweeper 能够清理空闲会话的对象
type SessionSweeper interface {
	Sweep(now time.Time) int
}

// SweeperService 周期清理空闲结算会话
type SweeperService struct {
	name     string
	sweeper  SessionSweeper
	interval time.Duration
	now      func() time.Time
}

// NewSweeperService 创建会话清理服务
func NewSweeperService(sweeper SessionSweeper, interval time.Duration) *SweeperService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweeperService{
		name:     "session_sweeper",
		sweeper:  sweeper,
		interval: interval,
		now:      time.Now,
	}
}

// Name 服务名称
func (s *SweeperService) Name() string {
	if s == nil || s.name == "" {
		return "session_sweeper"
	}
	return s.name
}

// Start 阻塞运行直到 ctx 结束
func (s *SweeperService) Start(ctx context.Context) error {
	if s == nil || s.sweeper == nil {
		return errors.New("session sweeper not initialized")
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if swept := s.sweeper.Sweep(s.now()); swept > 0 {
				logger.Debugw("app_sessions_swept", "count", swept)
			}
		}
	}
}

// Stop 停止服务
func (s *SweeperService) Stop(_ context.Context) error {
	return nil
}
