package model

// JobStatus represents the lifecycle state of a compile job.
type JobStatus string

const (
	JobStatusInitial        JobStatus = "INITIAL"
	JobStatusReadyToParse   JobStatus = "READY_TO_PARSE"
	JobStatusParsed         JobStatus = "PARSED"
	JobStatusAnalyzed       JobStatus = "ANALYZED"
	JobStatusReadyToCompile JobStatus = "READY_TO_COMPILE"
	JobStatusCompiled       JobStatus = "COMPILED"
	JobStatusDone           JobStatus = "DONE"
	JobStatusFailed         JobStatus = "FAILED"
)

// String returns the string representation of the job status.
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the job is in a final state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusDone, JobStatusFailed:
		return true
	}
	return false
}

// Next returns the status after one successful step. Terminal states
// return themselves.
func (s JobStatus) Next() JobStatus {
	switch s {
	case JobStatusInitial:
		return JobStatusReadyToParse
	case JobStatusReadyToParse:
		return JobStatusParsed
	case JobStatusParsed:
		return JobStatusAnalyzed
	case JobStatusAnalyzed:
		return JobStatusReadyToCompile
	case JobStatusReadyToCompile:
		return JobStatusCompiled
	case JobStatusCompiled:
		return JobStatusDone
	}
	return s
}

// ValidJobTransitions defines the allowed status transitions. Every
// non-terminal status may additionally fail.
var ValidJobTransitions = map[JobStatus][]JobStatus{
	JobStatusInitial:        {JobStatusReadyToParse, JobStatusFailed},
	JobStatusReadyToParse:   {JobStatusParsed, JobStatusFailed},
	JobStatusParsed:         {JobStatusAnalyzed, JobStatusFailed},
	JobStatusAnalyzed:       {JobStatusReadyToCompile, JobStatusFailed},
	JobStatusReadyToCompile: {JobStatusCompiled, JobStatusFailed},
	JobStatusCompiled:       {JobStatusDone, JobStatusFailed},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range ValidJobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Stage identifies a traced pipeline stage. The prepare and freeze
// steps are bookkeeping and are not traced.
type Stage string

const (
	StageParse    Stage = "parse"
	StageAnalyze  Stage = "analyze"
	StageCompile  Stage = "compile"
	StageFinalize Stage = "finalize"
)

// Stages lists all traced stages in pipeline order.
var Stages = []Stage{StageParse, StageAnalyze, StageCompile, StageFinalize}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// MemoryPressureLevel is the host's reported memory pressure.
type MemoryPressureLevel string

const (
	MemoryPressureNone     MemoryPressureLevel = "none"
	MemoryPressureModerate MemoryPressureLevel = "moderate"
	MemoryPressureCritical MemoryPressureLevel = "critical"
)

// BlockingBehavior selects whether AbortAll waits for in-flight
// background steps or returns immediately.
type BlockingBehavior int

const (
	Block BlockingBehavior = iota
	DontBlock
)
