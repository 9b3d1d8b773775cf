package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/me/lazyjs/internal/platform"
)

// mockPlatform drives the dispatcher deterministically: tasks queue up
// until the test runs them, and the monotonic clock advances by a
// configurable step per read.
type mockPlatform struct {
	mu       sync.Mutex
	time     float64
	timeStep float64

	idleTask   platform.IdleTask
	background []func()
	foreground []func()
}

func newMockPlatform() *mockPlatform {
	return &mockPlatform{}
}

func (p *mockPlatform) PostBackground(task func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.background = append(p.background, task)
}

func (p *mockPlatform) PostForeground(task func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.foreground = append(p.foreground, task)
}

func (p *mockPlatform) PostIdle(task platform.IdleTask) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idleTask != nil {
		panic("mockPlatform: idle task already pending")
	}
	p.idleTask = task
}

func (p *mockPlatform) IdleEnabled() bool {
	return true
}

func (p *mockPlatform) MonotonicNow() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.time += p.timeStep
	return p.time
}

// runIdleTask runs the pending idle task with the given absolute
// deadline, advancing the clock by step per MonotonicNow read.
func (p *mockPlatform) runIdleTask(t *testing.T, deadline, step float64) {
	t.Helper()
	p.mu.Lock()
	p.timeStep = step
	task := p.idleTask
	p.idleTask = nil
	p.mu.Unlock()
	if task == nil {
		t.Fatalf("no idle task pending")
	}
	task(deadline)
}

func (p *mockPlatform) idlePending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idleTask != nil
}

func (p *mockPlatform) backgroundPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.background) > 0
}

func (p *mockPlatform) foregroundPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.foreground) > 0
}

func (p *mockPlatform) takeBackground() []func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	tasks := p.background
	p.background = nil
	return tasks
}

// runBackgroundAndWait runs all queued background tasks on a worker
// goroutine and blocks until they complete.
func (p *mockPlatform) runBackgroundAndWait() {
	tasks := p.takeBackground()
	done := make(chan struct{})
	go func() {
		for _, task := range tasks {
			task()
		}
		close(done)
	}()
	<-done
}

// runBackground runs queued background tasks on a worker goroutine
// without waiting; it races with whatever the test does next.
func (p *mockPlatform) runBackground() {
	tasks := p.takeBackground()
	go func() {
		for _, task := range tasks {
			task()
		}
	}()
}

// runForeground runs all currently queued foreground tasks inline.
func (p *mockPlatform) runForeground() {
	p.mu.Lock()
	tasks := p.foreground
	p.foreground = nil
	p.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}

func (p *mockPlatform) clearIdle(t *testing.T) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idleTask == nil {
		t.Fatalf("no idle task to clear")
	}
	p.idleTask = nil
}

func (p *mockPlatform) clearBackground() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.background = nil
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
