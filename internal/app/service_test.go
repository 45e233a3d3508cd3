package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingService struct {
	name  string
	err   error
	mu    *sync.Mutex
	order *[]string
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(ctx context.Context) error {
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return nil
}

func (s *recordingService) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.order = append(*s.order, s.name)
	return nil
}

func TestRunnerStopsInReverseOrder(t *testing.T) {
	var mu sync.Mutex
	order := make([]string, 0)
	boom := errors.New("boom")
	runner := NewRunner(
		&recordingService{name: "http", mu: &mu, order: &order},
		&recordingService{name: "sweeper", mu: &mu, order: &order},
		&recordingService{name: "worker", err: boom, mu: &mu, order: &order},
	)
	err := runner.Run(context.Background(), time.Second, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "worker" || order[2] != "http" {
		t.Fatalf("unexpected stop order: %v", order)
	}
}

func TestRunnerCanceledContextIsClean(t *testing.T) {
	var mu sync.Mutex
	order := make([]string, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := NewRunner(&recordingService{name: "http", mu: &mu, order: &order})
	if err := runner.Run(ctx, time.Second, nil); err != nil {
		t.Fatalf("canceled run should return nil, got %v", err)
	}
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSweeper) Sweep(time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 1
}

func (s *countingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestSweeperServiceTicks(t *testing.T) {
	sweeper := &countingSweeper{}
	svc := NewSweeperService(sweeper, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for sweeper.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("sweeper exit error: %v", err)
	}
	if sweeper.count() < 2 {
		t.Fatalf("expected at least 2 sweeps, got %d", sweeper.count())
	}
}

func TestBuildRunnerRequiresConfig(t *testing.T) {
	if _, _, err := BuildRunner(nil, Options{}); err == nil {
		t.Fatalf("expected nil config error")
	}
}
