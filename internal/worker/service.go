package worker

import (
	"context"
	"errors"

	"github.com/joya-checkout/internal/config"
	"github.com/joya-checkout/internal/logger"
	"github.com/joya-checkout/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 锁单到期 worker，消费 checkout:lock_expire 延迟任务
type Service struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	concurrency int
}

// NewService 创建 worker 服务；队列未启用时返回错误
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	switch {
	case cfg == nil || !cfg.Enabled:
		return nil, errors.New("queue disabled")
	case consumer == nil:
		return nil, errors.New("consumer is nil")
	}
	redisOpt, serverCfg := queue.BuildServerConfig(cfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		server:      asynq.NewServer(redisOpt, serverCfg),
		mux:         mux,
		concurrency: serverCfg.Concurrency,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	return "lock_expiry_worker"
}

// Start 阻塞运行直到 Shutdown
func (s *Service) Start(_ context.Context) error {
	if s == nil || s.server == nil {
		return errors.New("worker not initialized")
	}
	logger.Infow("worker_started", "task", queue.TaskLockExpire, "concurrency", s.concurrency)
	return s.server.Run(s.mux)
}

// Stop 等待进行中的任务完成后退出
func (s *Service) Stop(_ context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	s.server.Shutdown()
	logger.Infow("worker_stopped", "task", queue.TaskLockExpire)
	return nil
}
