package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestDebounceCollapsesCalls(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	d := NewDebouncer(clock)

	var calls int32
	var last int32
	for i := 1; i <= 5; i++ {
		value := int32(i)
		d.Debounce("s1", 500*time.Millisecond, func() {
			atomic.AddInt32(&calls, 1)
			atomic.StoreInt32(&last, value)
		})
		clock.Advance(100 * time.Millisecond)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no fire inside the window")
	}
	clock.Advance(500 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 1 || atomic.LoadInt32(&last) != 5 {
		t.Fatalf("expected single fire with last value, got calls=%d last=%d", calls, last)
	}
	if d.Pending("s1") {
		t.Fatalf("expected no pending timer after fire")
	}
	if clock.PendingTimers() != 0 {
		t.Fatalf("expected clock drained, got %d", clock.PendingTimers())
	}
}

func TestDebounceKeysAreIndependent(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	d := NewDebouncer(clock)

	var a, b int
	d.Debounce("a", time.Second, func() { a++ })
	d.Debounce("b", 2*time.Second, func() { b++ })
	clock.Advance(time.Second)
	if a != 1 || b != 0 {
		t.Fatalf("unexpected fires a=%d b=%d", a, b)
	}
	clock.Advance(time.Second)
	if b != 1 {
		t.Fatalf("expected b fired")
	}
}

func TestCancelAndStop(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	d := NewDebouncer(clock)

	fired := false
	d.Debounce("s1", time.Second, func() { fired = true })
	if !d.Pending("s1") {
		t.Fatalf("expected pending timer")
	}
	if !d.Cancel("s1") {
		t.Fatalf("expected cancel to report pending timer")
	}
	if d.Cancel("s1") {
		t.Fatalf("expected second cancel to report nothing")
	}
	clock.Advance(2 * time.Second)
	if fired {
		t.Fatalf("cancelled timer must not fire")
	}

	d.Debounce("s2", time.Second, func() { fired = true })
	d.Stop()
	clock.Advance(2 * time.Second)
	if fired {
		t.Fatalf("stopped debouncer must not fire")
	}
	if d.Debounce("s3", time.Second, func() {}) {
		t.Fatalf("expected debounce to be refused after stop")
	}
}

func TestRealClockDoesNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDebouncer(nil)
	done := make(chan struct{})
	d.Debounce("s1", 5*time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire")
	}
	d.Debounce("s2", time.Hour, func() {})
	d.Stop()
}
