package dispatch

import (
	"github.com/google/uuid"

	"github.com/me/lazyjs/internal/jsfront"
	"github.com/me/lazyjs/pkg/model"
	"github.com/me/lazyjs/pkg/script"
)

// stepObserver receives the timing of one traced step. The prepare and
// freeze steps are bookkeeping and are not observed.
type stepObserver func(stage model.Stage, seconds float64, size int)

// job owns every intermediate artifact for one function on its way
// through the pipeline. It advances one step at a time; the Dispatcher
// decides where each step runs and guarantees that no two workers step
// the same job concurrently (the reserved flag below, guarded by the
// Dispatcher mutex).
type job struct {
	id     string
	fn     *script.Function
	status model.JobStatus
	err    error // terminal failure, set with status FAILED

	// Pipeline state. src is captured from the function on the
	// foreground during prepare; everything below it is self-contained
	// and safe to mutate off the foreground thread.
	src      script.Source
	parse    *jsfront.ParseResult
	analysis *jsfront.Analysis
	input    *jsfront.CompileInput
	artifact *script.Artifact

	// Scheduling state, guarded by the Dispatcher mutex.
	reserved         bool // a worker is currently stepping the job
	backgroundQueued bool // handed to the background queue, not yet picked up
}

func newJobID() string {
	return "job_" + uuid.New().String()[:8]
}

// newJob creates a job at the start of the pipeline.
func newJob(fn *script.Function) *job {
	return &job{id: newJobID(), fn: fn, status: model.JobStatusInitial}
}

// newParsedJob creates a job from externally supplied parse and
// analysis output. It enters the pipeline at ANALYZED.
func newParsedJob(fn *script.Function, pr *jsfront.ParseResult, an *jsfront.Analysis) *job {
	return &job{
		id:       newJobID(),
		fn:       fn,
		status:   model.JobStatusAnalyzed,
		src:      pr.Source,
		parse:    pr,
		analysis: an,
	}
}

// backgroundEligible reports whether the job's next step may run on a
// background worker.
func (j *job) backgroundEligible() bool {
	return j.status == model.JobStatusReadyToParse || j.status == model.JobStatusReadyToCompile
}

// estimate returns the traced stage and size unit of the next step.
// ok is false for untraced bookkeeping steps, which always fit.
func (j *job) estimate() (stage model.Stage, size int, ok bool) {
	switch j.status {
	case model.JobStatusReadyToParse:
		return model.StageParse, j.src.Len(), true
	case model.JobStatusParsed:
		return model.StageAnalyze, j.src.Len(), true
	case model.JobStatusReadyToCompile:
		return model.StageCompile, j.input.NodeCount, true
	case model.JobStatusCompiled:
		return model.StageFinalize, 1, true
	}
	return "", 0, false
}

// step advances the job by exactly one transition. On failure the job
// moves to FAILED and the step error is returned; the job stays in the
// Dispatcher until the next foreground touch removes it.
//
// now is only consulted around traced stages, so bookkeeping steps do
// not consume clock reads.
func (j *job) step(front *jsfront.Frontend, now func() float64, observe stepObserver) error {
	switch j.status {
	case model.JobStatusInitial:
		// Prepare: capture the source span. The only pre-compile step
		// that reads the function handle, so foreground only.
		j.src = j.fn.Script()
		j.status = model.JobStatusReadyToParse
		return nil

	case model.JobStatusReadyToParse:
		start := now()
		pr, err := front.Parse(j.src)
		observe(model.StageParse, now()-start, j.src.Len())
		if err != nil {
			return j.fail(model.StageParse, err)
		}
		j.parse = pr
		j.status = model.JobStatusParsed
		return nil

	case model.JobStatusParsed:
		start := now()
		an, err := front.Analyze(j.parse)
		observe(model.StageAnalyze, now()-start, j.src.Len())
		if err != nil {
			return j.fail(model.StageAnalyze, err)
		}
		j.analysis = an
		j.status = model.JobStatusAnalyzed
		return nil

	case model.JobStatusAnalyzed:
		// Freeze: snapshot the compile input, dropping everything the
		// background step must not touch.
		in, err := front.Freeze(j.parse, j.analysis)
		if err != nil {
			return j.fail(model.StageAnalyze, err)
		}
		j.input = in
		j.status = model.JobStatusReadyToCompile
		return nil

	case model.JobStatusReadyToCompile:
		start := now()
		art, err := front.Compile(j.input)
		observe(model.StageCompile, now()-start, j.input.NodeCount)
		if err != nil {
			return j.fail(model.StageCompile, err)
		}
		j.artifact = art
		j.status = model.JobStatusCompiled
		return nil

	case model.JobStatusCompiled:
		// Finalize: install on the function handle. Foreground only;
		// the sole writer of the installed-code slot.
		start := now()
		j.fn.Install(j.artifact)
		observe(model.StageFinalize, now()-start, 1)
		j.status = model.JobStatusDone
		return nil
	}

	return &model.InvalidTransitionError{JobID: j.id, From: j.status, To: j.status.Next()}
}

func (j *job) fail(stage model.Stage, err error) error {
	j.err = &model.StepError{Stage: stage, Function: j.src.Name, Err: err}
	j.status = model.JobStatusFailed
	return j.err
}
