package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/joya-checkout/internal/logger"
	"github.com/joya-checkout/internal/provider"
	"github.com/joya-checkout/internal/queue"
	"github.com/joya-checkout/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskLockExpire, c.handleLockExpire)
}

func (c *Consumer) handleLockExpire(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_lock_expire_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseLockExpirePayload(task)
	if err != nil {
		logger.Warnw("worker_lock_expire_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.SessionID == "" || payload.LockedOrderID == "" {
		logger.Debugw("worker_lock_expire_skip_invalid_payload", "session_id", payload.SessionID, "locked_order_id", payload.LockedOrderID)
		return nil
	}
	if c.Container == nil || c.CheckoutService == nil {
		logger.Warnw("worker_lock_expire_skip_service_nil", "session_id", payload.SessionID)
		return nil
	}
	expired, err := c.CheckoutService.ExpireLock(payload.SessionID, payload.LockedOrderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			logger.Debugw("worker_lock_expire_skip_session_not_found", "session_id", payload.SessionID, "locked_order_id", payload.LockedOrderID)
			return nil
		default:
			logger.Warnw("worker_lock_expire_failed", "session_id", payload.SessionID, "locked_order_id", payload.LockedOrderID, "error", err)
			return err
		}
	}
	if !expired {
		logger.Debugw("worker_lock_expire_skip_superseded", "session_id", payload.SessionID, "locked_order_id", payload.LockedOrderID)
		return nil
	}
	logger.Infow("worker_lock_expired", "session_id", payload.SessionID, "locked_order_id", payload.LockedOrderID)
	return nil
}
