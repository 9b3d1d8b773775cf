package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestStepError_Error(t *testing.T) {
	err := &StepError{Stage: StageParse, Function: "f1", Err: errors.New("unexpected token")}
	want := `parse "f1": unexpected token`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestStepError_Unwrap(t *testing.T) {
	inner := errors.New("stack depth exceeded")
	err := fmt.Errorf("step: %w", &StepError{Stage: StageAnalyze, Function: "f2", Err: inner})
	if !errors.Is(err, inner) {
		t.Errorf("errors.Is() did not find the wrapped stage error")
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("errors.As() did not find *StepError")
	}
	if stepErr.Stage != StageAnalyze {
		t.Errorf("Stage = %q, want %q", stepErr.Stage, StageAnalyze)
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransitionError{
		JobID: "job_123",
		From:  JobStatusDone,
		To:    JobStatusInitial,
	}
	want := "invalid job status transition: DONE -> INITIAL (job job_123)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
