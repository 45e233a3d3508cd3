package queue

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/joya-checkout/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskLockExpire 锁单支付窗口到期任务
	TaskLockExpire = constants.TaskCheckoutLockExpire
)

var ErrPayloadInvalid = errors.New("queue payload invalid")

// LockExpirePayload 锁单到期任务载荷
type LockExpirePayload struct {
	SessionID     string `json:"session_id"`
	LockedOrderID string `json:"locked_order_id"`
}

// NewLockExpireTask 创建锁单到期任务
func NewLockExpireTask(payload LockExpirePayload) (*asynq.Task, error) {
	if strings.TrimSpace(payload.SessionID) == "" || strings.TrimSpace(payload.LockedOrderID) == "" {
		return nil, ErrPayloadInvalid
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLockExpire, body), nil
}

// ParseLockExpirePayload 解析锁单到期任务载荷
func ParseLockExpirePayload(task *asynq.Task) (LockExpirePayload, error) {
	var payload LockExpirePayload
	if task == nil {
		return payload, ErrPayloadInvalid
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}
