// Package platform narrows the host scheduling surface the dispatcher
// relies on: background workers, a single-threaded foreground context,
// idle slices with deadlines, and a monotonic clock.
package platform

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IdleTask runs on the foreground during an idle period. deadline is a
// monotonic timestamp in seconds; the task should yield when
// MonotonicNow passes it.
type IdleTask func(deadline float64)

// Platform is the host scheduling contract. Posting is non-blocking
// and FIFO within a category; no ordering holds between categories.
type Platform interface {
	PostBackground(task func())
	PostForeground(task func())
	PostIdle(task IdleTask)
	IdleEnabled() bool
	MonotonicNow() float64
}

// Threaded is the production platform: a pool of background worker
// goroutines plus a foreground pump owned by Run. The goroutine that
// calls Run is the foreground context.
type Threaded struct {
	start  time.Time
	slice  time.Duration
	logger *slog.Logger

	bg   chan func()
	fg   chan func()
	idle chan IdleTask

	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}
}

// NewThreaded creates a platform with the given number of background
// workers and per-slice idle budget.
func NewThreaded(workers int, idleSlice time.Duration, logger *slog.Logger) *Threaded {
	if workers < 1 {
		workers = 1
	}
	if idleSlice <= 0 {
		idleSlice = 50 * time.Millisecond
	}
	p := &Threaded{
		start:  time.Now(),
		slice:  idleSlice,
		logger: logger.With("component", "platform"),
		bg:     make(chan func(), 64),
		fg:     make(chan func(), 64),
		idle:   make(chan IdleTask, 4),
		stop:   make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Threaded) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case task := <-p.bg:
			task()
		}
	}
}

// PostBackground enqueues task for parallel execution.
func (p *Threaded) PostBackground(task func()) {
	select {
	case p.bg <- task:
	default:
		// Queue full; hand off without blocking the poster.
		go func() { p.bg <- task }()
	}
}

// PostForeground enqueues task for the foreground pump.
func (p *Threaded) PostForeground(task func()) {
	select {
	case p.fg <- task:
	default:
		go func() { p.fg <- task }()
	}
}

// PostIdle enqueues an idle task; it runs when the foreground has no
// pending work, with a deadline one slice ahead.
func (p *Threaded) PostIdle(task IdleTask) {
	select {
	case p.idle <- task:
	default:
		go func() { p.idle <- task }()
	}
}

// IdleEnabled reports whether idle tasks run. Always true for the
// threaded platform.
func (p *Threaded) IdleEnabled() bool {
	return true
}

// MonotonicNow returns seconds since platform construction.
func (p *Threaded) MonotonicNow() float64 {
	return time.Since(p.start).Seconds()
}

// Run pumps foreground and idle tasks until ctx is cancelled. Must be
// called from exactly one goroutine; that goroutine is the foreground
// context.
func (p *Threaded) Run(ctx context.Context) {
	p.logger.Debug("foreground pump started", "idle_slice", p.slice)
	for {
		// Drain pending foreground work before considering idle time.
		select {
		case task := <-p.fg:
			task()
			continue
		default:
		}
		select {
		case <-ctx.Done():
			return
		case task := <-p.fg:
			task()
		case task := <-p.idle:
			task(p.MonotonicNow() + p.slice.Seconds())
		}
	}
}

// Drain runs queued foreground and idle tasks until both queues are
// empty, then returns. Useful for callers that drive the foreground
// themselves instead of a long-lived Run loop.
func (p *Threaded) Drain() {
	for {
		select {
		case task := <-p.fg:
			task()
		case task := <-p.idle:
			task(p.MonotonicNow() + p.slice.Seconds())
		default:
			return
		}
	}
}

// Shutdown stops the background workers and waits for them to exit.
func (p *Threaded) Shutdown() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}
