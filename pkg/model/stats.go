package model

// DispatcherStats is a point-in-time snapshot of dispatcher telemetry.
type DispatcherStats struct {
	Enqueued uint64 `json:"enqueued"`
	Finished uint64 `json:"finished"`
	Aborted  uint64 `json:"aborted"`
	Failed   uint64 `json:"failed"`

	// Live is the number of jobs currently tracked, InFlight the
	// number of background steps currently executing.
	Live     int `json:"live"`
	InFlight int `json:"in_flight"`

	// StageAverages maps each traced stage to its mean observed
	// duration in seconds.
	StageAverages map[Stage]float64 `json:"stage_averages"`
}
