// Package dispatch implements the deferred compilation dispatcher: a
// scheduler that advances per-function compile jobs through a fixed
// pipeline using idle time on the foreground thread and parallel
// background workers, while servicing synchronous finish and abort
// requests.
package dispatch

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/me/lazyjs/internal/config"
	"github.com/me/lazyjs/internal/jsfront"
	"github.com/me/lazyjs/internal/logging"
	"github.com/me/lazyjs/internal/platform"
	"github.com/me/lazyjs/internal/tracer"
	"github.com/me/lazyjs/pkg/model"
	"github.com/me/lazyjs/pkg/script"
)

type outcome int

const (
	outcomeFinished outcome = iota
	outcomeFailed
	outcomeAborted
)

// Dispatcher schedules deferred compile jobs. All mutable state is
// guarded by mu; cond signals the completion of a background step to
// unblock synchronous waiters.
type Dispatcher struct {
	platform platform.Platform
	front    *jsfront.Frontend
	tracer   *tracer.Tracer
	cfg      config.Config
	logger   *slog.Logger

	mu   sync.Mutex
	cond *sync.Cond

	jobs  map[*script.Function]*job
	order []*job // insertion order, for deterministic idle scans

	backgroundQueue []*job
	inFlight        int // background steps currently executing
	aborting        bool
	memoryPressure  bool
	idlePosted      bool

	statEnqueued uint64
	statFinished uint64
	statAborted  uint64
	statFailed   uint64

	// OnSample, when set before the first enqueue, receives every
	// traced stage observation in addition to the tracer. Called off
	// the dispatcher mutex, possibly from background workers.
	OnSample func(stage model.Stage, seconds float64, size int)

	// blockForTesting freezes the next background step until testSem
	// is signalled. Abort tests use it to hold a worker in flight.
	blockForTesting atomic.Bool
	testSem         chan struct{}
}

// New creates a dispatcher on the given platform. front may be nil, in
// which case a frontend with the stack budget from cfg is used.
func New(p platform.Platform, front *jsfront.Frontend, cfg config.Config, logger *slog.Logger) *Dispatcher {
	if front == nil {
		front = jsfront.New(jsfront.MaxDepthForStack(cfg.StackSizeKB))
	}
	d := &Dispatcher{
		platform: p,
		front:    front,
		tracer:   tracer.New(),
		cfg:      cfg,
		logger:   logger.With("component", "dispatcher"),
		jobs:     make(map[*script.Function]*job),
		testSem:  make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Tracer exposes the stage-duration tracer (telemetry and tests).
func (d *Dispatcher) Tracer() *tracer.Tracer {
	return d.tracer
}

// Enqueue submits a function for deferred compilation. It returns
// false, without state change, when the dispatcher is disabled,
// aborting, under memory pressure, or already holds the function.
// Never blocks.
func (d *Dispatcher) Enqueue(fn *script.Function) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.canEnqueueLocked(fn) {
		return false
	}
	j := newJob(fn)
	d.insertLocked(j)
	d.ensureIdleLocked()
	return true
}

// EnqueueParsed submits a function with externally produced parse and
// analysis output; the job enters the pipeline at ANALYZED. Same
// failure preconditions as Enqueue.
func (d *Dispatcher) EnqueueParsed(fn *script.Function, pr *jsfront.ParseResult, an *jsfront.Analysis) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.canEnqueueLocked(fn) {
		return false
	}
	j := newParsedJob(fn, pr, an)
	d.insertLocked(j)
	d.ensureIdleLocked()
	return true
}

// EnqueueAndStep enqueues fn and advances the new job by one step on
// the calling thread, amortizing the cheap prepare step inline.
func (d *Dispatcher) EnqueueAndStep(fn *script.Function) bool {
	d.mu.Lock()
	if !d.canEnqueueLocked(fn) {
		d.mu.Unlock()
		return false
	}
	j := newJob(fn)
	d.insertLocked(j)
	d.ensureIdleLocked()
	d.stepInlineLocked(j)
	d.mu.Unlock()
	return true
}

// EnqueueAndStepParsed is EnqueueAndStep over externally parsed input.
func (d *Dispatcher) EnqueueAndStepParsed(fn *script.Function, pr *jsfront.ParseResult, an *jsfront.Analysis) bool {
	d.mu.Lock()
	if !d.canEnqueueLocked(fn) {
		d.mu.Unlock()
		return false
	}
	j := newParsedJob(fn, pr, an)
	d.insertLocked(j)
	d.ensureIdleLocked()
	d.stepInlineLocked(j)
	d.mu.Unlock()
	return true
}

// stepInlineLocked runs one step of a freshly inserted job on the
// calling thread, then offers the job to background workers if its
// next step can run there. Called with mu held; releases and
// re-acquires it around the step.
func (d *Dispatcher) stepInlineLocked(j *job) {
	j.reserved = true
	d.mu.Unlock()
	err := j.step(d.front, d.platform.MonotonicNow, d.observeStep)
	d.mu.Lock()
	j.reserved = false
	if err == nil {
		d.considerBackgroundLocked(j)
	}
}

// IsEnqueued reports whether the function currently has a job.
func (d *Dispatcher) IsEnqueued(fn *script.Function) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.jobs[fn] != nil
}

// FinishNow drives the function to completion on the calling thread.
// If the function is not enqueued, the whole pipeline runs inline. If
// a background step is in flight for its job, FinishNow blocks until
// that step completes, then runs the remaining steps itself. The job
// is removed in all cases; the return value reports whether an
// artifact was installed. FinishNow succeeds even while AbortAll is in
// progress: it overrides the abort for this one function.
func (d *Dispatcher) FinishNow(fn *script.Function) bool {
	d.mu.Lock()
	j := d.jobs[fn]
	if j == nil {
		d.mu.Unlock()
		if fn.IsCompiled() {
			return true
		}
		art, err := d.front.CompileFull(fn.Script())
		if err != nil {
			d.logger.Warn("synchronous compile failed", "fn", fn.Name(), "error", err)
			return false
		}
		fn.Install(art)
		return true
	}

	// Take the job over. Pull it back from the background queue if it
	// was offered but not yet picked up, and wait out a running step.
	if j.backgroundQueued {
		j.backgroundQueued = false
		d.dropFromQueueLocked(j)
	}
	for j.reserved {
		d.cond.Wait()
	}
	j.reserved = true
	for !j.status.IsTerminal() {
		d.mu.Unlock()
		err := j.step(d.front, d.platform.MonotonicNow, d.observeStep)
		d.mu.Lock()
		if err != nil {
			break
		}
	}
	j.reserved = false
	ok := j.status == model.JobStatusDone
	if ok {
		d.removeLocked(j, outcomeFinished)
	} else {
		d.removeLocked(j, outcomeFailed)
	}
	d.mu.Unlock()
	return ok
}

// AbortAll cancels every enqueued job. Jobs not currently being
// stepped by a background worker are discarded immediately; they were
// never installed, so no externally visible state remains. With Block
// the call waits until in-flight background steps drain; with
// DontBlock cleanup completes on a posted foreground abort task.
func (d *Dispatcher) AbortAll(behavior model.BlockingBehavior) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.aborting = true
	d.discardInactiveLocked()
	d.backgroundQueue = nil
	if d.inFlight == 0 {
		d.aborting = false
		d.logger.Debug("abort complete", "mode", "inline")
		return
	}
	if behavior == model.Block {
		for d.inFlight > 0 {
			d.cond.Wait()
		}
		d.discardInactiveLocked()
		d.aborting = false
		d.logger.Debug("abort complete", "mode", "blocking")
		return
	}
	d.postAbortTaskLocked()
}

// MemoryPressureNotification reacts to the host's memory pressure
// signal. Critical pressure refuses new work and cancels current jobs;
// anything below critical clears the refusal. Background callers must
// not run the abort themselves, so they post it to the foreground.
func (d *Dispatcher) MemoryPressureNotification(level model.MemoryPressureLevel, fromForeground bool) {
	if level != model.MemoryPressureCritical {
		d.mu.Lock()
		d.memoryPressure = false
		d.mu.Unlock()
		return
	}
	d.mu.Lock()
	if d.memoryPressure {
		d.mu.Unlock()
		return
	}
	d.memoryPressure = true
	d.mu.Unlock()
	d.logger.Debug("critical memory pressure", "from_foreground", fromForeground)
	if fromForeground {
		d.AbortAll(model.DontBlock)
		return
	}
	d.platform.PostForeground(func() { d.AbortAll(model.DontBlock) })
}

// Stats returns a telemetry snapshot.
func (d *Dispatcher) Stats() model.DispatcherStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return model.DispatcherStats{
		Enqueued:      d.statEnqueued,
		Finished:      d.statFinished,
		Aborted:       d.statAborted,
		Failed:        d.statFailed,
		Live:          len(d.jobs),
		InFlight:      d.inFlight,
		StageAverages: d.tracer.Averages(),
	}
}

// --- task bodies ---

// doIdleWork advances jobs on the foreground until the deadline. Steps
// that do not fit the remaining budget are offered to background
// workers when eligible; failed jobs are removed on touch.
func (d *Dispatcher) doIdleWork(deadline float64) {
	d.mu.Lock()
	d.idlePosted = false
	stalled := make(map[*job]bool)
	for !d.aborting {
		remaining := deadline - d.platform.MonotonicNow()
		if remaining <= 0 {
			break
		}
		j := d.pickLocked(stalled)
		if j == nil {
			break
		}
		if j.status == model.JobStatusFailed {
			d.removeLocked(j, outcomeFailed)
			continue
		}
		if stage, size, traced := j.estimate(); traced && !d.tracer.Fits(stage, size, remaining) {
			if j.backgroundEligible() && d.cfg.StackSizeKB > 0 {
				d.considerBackgroundLocked(j)
			} else {
				// Cannot offload and does not fit; try again on a
				// later, larger slice.
				stalled[j] = true
			}
			continue
		}
		j.reserved = true
		d.mu.Unlock()
		err := j.step(d.front, d.platform.MonotonicNow, d.observeStep)
		d.mu.Lock()
		j.reserved = false
		if err != nil {
			continue // picked up as FAILED on the next iteration
		}
		if j.status == model.JobStatusDone {
			d.removeLocked(j, outcomeFinished)
		}
	}
	if !d.aborting && d.advanceableLocked() > 0 {
		d.ensureIdleLocked()
	}
	d.mu.Unlock()
}

// doBackgroundWork runs a single background-eligible step for one
// queued job on a worker thread.
func (d *Dispatcher) doBackgroundWork() {
	d.mu.Lock()
	var j *job
	if len(d.backgroundQueue) > 0 {
		j = d.backgroundQueue[0]
		d.backgroundQueue = d.backgroundQueue[1:]
		j.backgroundQueued = false
		j.reserved = true
		d.inFlight++
	}
	d.mu.Unlock()
	if j == nil {
		// The job was aborted or taken over before the worker got to
		// it; nothing to do.
		return
	}

	if d.blockForTesting.CompareAndSwap(true, false) {
		<-d.testSem
	}

	_ = j.step(d.front, d.platform.MonotonicNow, d.observeStep)

	d.mu.Lock()
	d.inFlight--
	j.reserved = false
	d.cond.Broadcast()
	if d.aborting {
		d.postAbortTaskLocked()
	} else {
		// The step has to be followed by a foreground step (install,
		// or removal on failure).
		d.ensureIdleLocked()
	}
	d.mu.Unlock()
}

// doAbortTask finishes a non-blocking AbortAll once no background step
// remains in flight. Jobs reserved by FinishNow are left alone; the
// synchronous finish overrides the abort for them.
func (d *Dispatcher) doAbortTask() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.aborting {
		return
	}
	if d.inFlight > 0 {
		d.postAbortTaskLocked()
		return
	}
	d.discardInactiveLocked()
	d.aborting = false
	d.logger.Debug("abort complete", "mode", "task")
}

// --- helpers, all called with mu held ---

func (d *Dispatcher) canEnqueueLocked(fn *script.Function) bool {
	if !d.cfg.Enabled || d.aborting || d.memoryPressure {
		return false
	}
	return d.jobs[fn] == nil
}

func (d *Dispatcher) insertLocked(j *job) {
	d.jobs[j.fn] = j
	d.order = append(d.order, j)
	d.statEnqueued++
	d.logger.Debug("enqueued", "job", j.id, "fn", j.fn.Name(), "status", j.status)
}

func (d *Dispatcher) removeLocked(j *job, oc outcome) {
	delete(d.jobs, j.fn)
	for i, o := range d.order {
		if o == j {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	switch oc {
	case outcomeFinished:
		d.statFinished++
		d.logger.Debug("finished", "job", j.id, "fn", j.fn.Name())
	case outcomeFailed:
		d.statFailed++
		d.logger.Warn("job failed", "job", j.id, "fn", j.fn.Name(), "error", j.err)
	case outcomeAborted:
		d.statAborted++
		d.logger.Debug("aborted", "job", j.id, "fn", j.fn.Name(), "status", j.status)
	}
}

// discardInactiveLocked removes every job that no worker is currently
// stepping.
func (d *Dispatcher) discardInactiveLocked() {
	for _, j := range append([]*job(nil), d.order...) {
		if !j.reserved {
			j.backgroundQueued = false
			d.removeLocked(j, outcomeAborted)
		}
	}
}

// pickLocked returns the first job the foreground can advance.
func (d *Dispatcher) pickLocked(stalled map[*job]bool) *job {
	for _, j := range d.order {
		if j.reserved || j.backgroundQueued || stalled[j] {
			continue
		}
		return j
	}
	return nil
}

// advanceableLocked counts jobs the foreground could still advance; it
// decides whether the idle task is re-posted. Jobs held by background
// workers do not count: their completion re-arms the idle task.
func (d *Dispatcher) advanceableLocked() int {
	n := 0
	for _, j := range d.order {
		if j.reserved || j.backgroundQueued {
			continue
		}
		n++
	}
	return n
}

func (d *Dispatcher) considerBackgroundLocked(j *job) {
	if !j.backgroundEligible() || j.backgroundQueued || j.reserved {
		return
	}
	if d.cfg.StackSizeKB <= 0 || d.aborting {
		return
	}
	j.backgroundQueued = true
	d.backgroundQueue = append(d.backgroundQueue, j)
	d.platform.PostBackground(d.doBackgroundWork)
	d.logger.Debug("scheduled on background", "job", j.id, "status", j.status)
}

func (d *Dispatcher) dropFromQueueLocked(j *job) {
	for i, q := range d.backgroundQueue {
		if q == j {
			d.backgroundQueue = append(d.backgroundQueue[:i], d.backgroundQueue[i+1:]...)
			return
		}
	}
}

func (d *Dispatcher) ensureIdleLocked() {
	if d.idlePosted || !d.platform.IdleEnabled() {
		return
	}
	d.idlePosted = true
	d.platform.PostIdle(d.doIdleWork)
}

func (d *Dispatcher) postAbortTaskLocked() {
	d.platform.PostForeground(d.doAbortTask)
}

// observeStep feeds the tracer and, when tracing is on, the log.
func (d *Dispatcher) observeStep(stage model.Stage, seconds float64, size int) {
	d.tracer.Record(stage, seconds, size)
	if d.cfg.Trace {
		d.logger.Info("stage", logging.StageAttrs(stage, seconds, size)...)
	}
	if d.OnSample != nil {
		d.OnSample(stage, seconds, size)
	}
}
