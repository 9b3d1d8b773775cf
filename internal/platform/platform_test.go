package platform

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testPlatform(t *testing.T) *Threaded {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewThreaded(2, 10*time.Millisecond, logger)
	t.Cleanup(p.Shutdown)
	return p
}

func TestThreaded_Background(t *testing.T) {
	p := testPlatform(t)
	done := make(chan int, 10)
	for i := 0; i < 10; i++ {
		i := i
		p.PostBackground(func() { done <- i })
	}
	seen := make(map[int]bool)
	for i := 0; i < 10; i++ {
		select {
		case v := <-done:
			seen[v] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("background tasks did not run (got %d of 10)", i)
		}
	}
	if len(seen) != 10 {
		t.Errorf("ran %d distinct tasks, want 10", len(seen))
	}
}

func TestThreaded_ForegroundOrderAndPriority(t *testing.T) {
	p := testPlatform(t)

	var order []string
	drained := make(chan struct{})
	p.PostForeground(func() { order = append(order, "a") })
	p.PostForeground(func() { order = append(order, "b") })
	p.PostIdle(func(deadline float64) {
		order = append(order, "idle")
		if deadline <= p.MonotonicNow()-1 {
			t.Errorf("idle deadline %v lags now by more than a second", deadline)
		}
	})
	p.PostForeground(func() { close(drained) })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-drained
		cancel()
	}()
	p.Run(ctx)
	p.Drain()

	// Foreground tasks run FIFO and before the idle task.
	if len(order) < 3 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v, want foreground FIFO first", order)
	}
	found := false
	for _, s := range order {
		if s == "idle" {
			found = true
		}
	}
	if !found {
		t.Errorf("idle task never ran: %v", order)
	}
}

func TestThreaded_MonotonicNow(t *testing.T) {
	p := testPlatform(t)
	a := p.MonotonicNow()
	time.Sleep(2 * time.Millisecond)
	b := p.MonotonicNow()
	if b <= a {
		t.Errorf("MonotonicNow not increasing: %v then %v", a, b)
	}
}

func TestThreaded_IdleEnabled(t *testing.T) {
	p := testPlatform(t)
	if !p.IdleEnabled() {
		t.Errorf("IdleEnabled() = false")
	}
}

func TestThreaded_ShutdownStopsWorkers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewThreaded(2, 10*time.Millisecond, logger)
	var ran atomic.Int32
	done := make(chan struct{})
	p.PostBackground(func() { ran.Add(1); close(done) })
	<-done
	p.Shutdown()
	if ran.Load() != 1 {
		t.Errorf("ran = %d, want 1", ran.Load())
	}
}
