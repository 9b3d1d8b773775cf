// Package tracer keeps running averages of observed pipeline stage
// durations. The dispatcher queries it to decide whether a stage still
// fits into the remainder of an idle slice.
package tracer

import (
	"sync"

	"github.com/me/lazyjs/pkg/model"
)

// maxSamples bounds the per-stage observation window.
const maxSamples = 10

// defaultCompileEstimate is the compile estimate (seconds) before any
// observation. It is far above a realistic idle slice, so a compile
// step is handed to background workers until real timings say
// otherwise; a test deadline of hundreds of seconds still clears it.
const defaultCompileEstimate = 1.0

type sample struct {
	duration float64 // seconds
	size     int     // stage unit: source bytes for parse, node count for compile
}

// Tracer records stage observations and produces duration estimates.
// Safe for concurrent use; stages are recorded from both foreground
// and background contexts.
type Tracer struct {
	mu      sync.Mutex
	samples map[model.Stage][]sample
}

// New returns an empty tracer.
func New() *Tracer {
	return &Tracer{samples: make(map[model.Stage][]sample)}
}

// Record appends an observation for stage. duration is in seconds,
// size in the stage's unit.
func (t *Tracer) Record(stage model.Stage, duration float64, size int) {
	if size < 1 {
		size = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := append(t.samples[stage], sample{duration: duration, size: size})
	if len(s) > maxSamples {
		s = s[len(s)-maxSamples:]
	}
	t.samples[stage] = s
}

// RecordParse records a parse observation; size is the source length.
func (t *Tracer) RecordParse(duration float64, size int) {
	t.Record(model.StageParse, duration, size)
}

// RecordAnalyze records an analysis observation; size is the source length.
func (t *Tracer) RecordAnalyze(duration float64, size int) {
	t.Record(model.StageAnalyze, duration, size)
}

// RecordCompile records a compile observation; size is the node count.
func (t *Tracer) RecordCompile(duration float64, size int) {
	t.Record(model.StageCompile, duration, size)
}

// RecordFinalize records an install observation.
func (t *Tracer) RecordFinalize(duration float64, size int) {
	t.Record(model.StageFinalize, duration, size)
}

// Estimate returns a conservative predicted duration in seconds for
// running stage over size units: the mean observed per-unit cost
// scaled by size. Without observations, compile estimates high and
// everything else estimates zero.
func (t *Tracer) Estimate(stage model.Stage, size int) float64 {
	if size < 1 {
		size = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.samples[stage]
	if len(s) == 0 {
		if stage == model.StageCompile {
			return defaultCompileEstimate
		}
		return 0
	}
	var perUnit float64
	for _, obs := range s {
		perUnit += obs.duration / float64(obs.size)
	}
	perUnit /= float64(len(s))
	return perUnit * float64(size)
}

// Fits reports whether stage over size units is expected to finish
// within the remaining idle budget (seconds).
func (t *Tracer) Fits(stage model.Stage, size int, remaining float64) bool {
	return t.Estimate(stage, size) <= remaining
}

// Averages returns the mean observed duration per stage, in seconds.
// Stages without observations are omitted.
func (t *Tracer) Averages() map[model.Stage]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[model.Stage]float64, len(t.samples))
	for stage, s := range t.samples {
		if len(s) == 0 {
			continue
		}
		var sum float64
		for _, obs := range s {
			sum += obs.duration
		}
		out[stage] = sum / float64(len(s))
	}
	return out
}
