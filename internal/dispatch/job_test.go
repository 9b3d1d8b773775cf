package dispatch

import (
	"errors"
	"strings"
	"testing"

	"github.com/me/lazyjs/internal/jsfront"
	"github.com/me/lazyjs/pkg/model"
	"github.com/me/lazyjs/pkg/script"
)

const sampleScript = "function g() { var y = 1; function f1(x) { return x * y }; return f1; } g();"

// fakeClock returns a now func advancing by step per call.
func fakeClock(step float64) func() float64 {
	var t float64
	return func() float64 {
		t += step
		return t
	}
}

func TestJob_StepChain(t *testing.T) {
	fn := script.NewScriptFunction("f1", sampleScript)
	j := newJob(fn)
	front := jsfront.New(0)

	var observed []model.Stage
	observe := func(stage model.Stage, seconds float64, size int) {
		observed = append(observed, stage)
		if size < 1 {
			t.Errorf("stage %s observed with size %d", stage, size)
		}
	}

	wantStatuses := []model.JobStatus{
		model.JobStatusInitial,
		model.JobStatusReadyToParse,
		model.JobStatusParsed,
		model.JobStatusAnalyzed,
		model.JobStatusReadyToCompile,
		model.JobStatusCompiled,
		model.JobStatusDone,
	}
	for i, want := range wantStatuses {
		if j.status != want {
			t.Fatalf("step %d: status = %q, want %q", i, j.status, want)
		}
		if j.status == model.JobStatusDone {
			break
		}
		if err := j.step(front, fakeClock(0.001), observe); err != nil {
			t.Fatalf("step from %q: %v", want, err)
		}
	}

	if !fn.IsCompiled() {
		t.Errorf("function not installed after final step")
	}
	wantStages := []model.Stage{model.StageParse, model.StageAnalyze, model.StageCompile, model.StageFinalize}
	if len(observed) != len(wantStages) {
		t.Fatalf("observed %d stages, want %d: %v", len(observed), len(wantStages), observed)
	}
	for i := range wantStages {
		if observed[i] != wantStages[i] {
			t.Errorf("observed[%d] = %q, want %q", i, observed[i], wantStages[i])
		}
	}
}

func TestJob_StepAfterTerminalFails(t *testing.T) {
	fn := script.NewScriptFunction("f1", sampleScript)
	j := newJob(fn)
	j.status = model.JobStatusFailed
	err := j.step(jsfront.New(0), fakeClock(0), func(model.Stage, float64, int) {})
	var inv *model.InvalidTransitionError
	if !errors.As(err, &inv) {
		t.Fatalf("step on FAILED = %v, want InvalidTransitionError", err)
	}
}

func TestJob_ParseFailure(t *testing.T) {
	fn := script.NewScriptFunction("bad", "function (")
	j := newJob(fn)
	front := jsfront.New(0)
	observe := func(model.Stage, float64, int) {}

	if err := j.step(front, fakeClock(0), observe); err != nil {
		t.Fatalf("prepare step: %v", err)
	}
	err := j.step(front, fakeClock(0), observe)
	if err == nil {
		t.Fatalf("parse step accepted invalid source")
	}
	if j.status != model.JobStatusFailed {
		t.Errorf("status = %q, want FAILED", j.status)
	}
	var stepErr *model.StepError
	if !errors.As(err, &stepErr) || stepErr.Stage != model.StageParse {
		t.Errorf("error = %v, want StepError at parse", err)
	}
	if j.err == nil || !strings.Contains(j.err.Error(), "bad") {
		t.Errorf("job error = %v, want to name the function", j.err)
	}
}

func TestJob_ParsedEntry(t *testing.T) {
	fn := script.NewScriptFunction("f1", sampleScript)
	front := jsfront.New(0)
	pr, err := front.Parse(fn.Script())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	an, err := front.Analyze(pr)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	j := newParsedJob(fn, pr, an)
	if j.status != model.JobStatusAnalyzed {
		t.Fatalf("status = %q, want ANALYZED", j.status)
	}
	observe := func(model.Stage, float64, int) {}
	for !j.status.IsTerminal() {
		if err := j.step(front, fakeClock(0), observe); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if j.status != model.JobStatusDone || !fn.IsCompiled() {
		t.Errorf("status = %q, compiled = %v; want DONE and installed", j.status, fn.IsCompiled())
	}
}

func TestJob_BackgroundEligible(t *testing.T) {
	tests := []struct {
		status model.JobStatus
		want   bool
	}{
		{model.JobStatusInitial, false},
		{model.JobStatusReadyToParse, true},
		{model.JobStatusParsed, false},
		{model.JobStatusAnalyzed, false},
		{model.JobStatusReadyToCompile, true},
		{model.JobStatusCompiled, false},
		{model.JobStatusDone, false},
		{model.JobStatusFailed, false},
	}
	for _, tt := range tests {
		j := &job{status: tt.status}
		if got := j.backgroundEligible(); got != tt.want {
			t.Errorf("backgroundEligible(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestJob_Estimate(t *testing.T) {
	fn := script.NewScriptFunction("f1", sampleScript)
	j := newJob(fn)
	j.src = fn.Script()
	j.input = &jsfront.CompileInput{NodeCount: 42}

	tests := []struct {
		status model.JobStatus
		stage  model.Stage
		size   int
		traced bool
	}{
		{model.JobStatusInitial, "", 0, false},
		{model.JobStatusReadyToParse, model.StageParse, len(sampleScript), true},
		{model.JobStatusParsed, model.StageAnalyze, len(sampleScript), true},
		{model.JobStatusAnalyzed, "", 0, false},
		{model.JobStatusReadyToCompile, model.StageCompile, 42, true},
		{model.JobStatusCompiled, model.StageFinalize, 1, true},
	}
	for _, tt := range tests {
		j.status = tt.status
		stage, size, traced := j.estimate()
		if traced != tt.traced || stage != tt.stage || size != tt.size {
			t.Errorf("estimate(%q) = (%q, %d, %v), want (%q, %d, %v)",
				tt.status, stage, size, traced, tt.stage, tt.size, tt.traced)
		}
	}
}
