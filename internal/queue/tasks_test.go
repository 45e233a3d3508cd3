package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joya-checkout/internal/config"
)

func TestLockExpireTaskRoundTrip(t *testing.T) {
	task, err := NewLockExpireTask(LockExpirePayload{SessionID: "s1", LockedOrderID: "O1"})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if task.Type() != TaskLockExpire {
		t.Fatalf("unexpected task type: %s", task.Type())
	}
	payload, err := ParseLockExpirePayload(task)
	if err != nil {
		t.Fatalf("parse payload failed: %v", err)
	}
	if payload.SessionID != "s1" || payload.LockedOrderID != "O1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestLockExpireTaskRequiresIDs(t *testing.T) {
	if _, err := NewLockExpireTask(LockExpirePayload{SessionID: "s1"}); !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("expected ErrPayloadInvalid, got %v", err)
	}
}

func TestDisabledClientIsNoop(t *testing.T) {
	client, err := NewClient(&config.QueueConfig{Enabled: false}, 15*time.Minute)
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.Enabled() {
		t.Fatalf("expected disabled client")
	}
	if err := client.ScheduleLockExpiry(context.Background(), "s1", "O1"); err != nil {
		t.Fatalf("disabled client must not fail: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestBuildServerConfigDefaults(t *testing.T) {
	opt, cfg := BuildServerConfig(nil)
	if opt.Addr != "127.0.0.1:6379" || cfg.Concurrency != 10 || cfg.Queues[DefaultQueue] != 1 {
		t.Fatalf("unexpected defaults: %+v %+v", opt, cfg)
	}
}
