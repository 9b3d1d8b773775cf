package model

import (
	"errors"
	"fmt"
)

// ErrNotEnqueued reports that a function has no job in the dispatcher.
// No dispatcher operation currently returns it.
var ErrNotEnqueued = errors.New("function not enqueued")

// StepError records the failure of a single pipeline stage. Deferred
// step failures are held on the job and surface on the next demand
// for the function, never through Enqueue.
type StepError struct {
	Stage    Stage
	Function string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Stage, e.Function, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError is returned when a job status transition is invalid.
type InvalidTransitionError struct {
	JobID string
	From  JobStatus
	To    JobStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid job status transition: %s -> %s (job %s)", e.From, e.To, e.JobID)
}
