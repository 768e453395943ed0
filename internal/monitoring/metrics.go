// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - runs/run_failures:    Analysis runs started and failed
//   - samples_*:            Segments sampled at each sampling level
//   - generations:          Generator calls, with attempts and failures
//   - degraded:             Placeholder results across map and reduce
//
// Stats() is dumped at the end of a CLI run when debug logging is on.
package monitoring

import (
	"sync/atomic"

	"github.com/compresr/chat-recap/internal/sampler"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	runs        atomic.Int64
	runFailures atomic.Int64

	samplesLossless atomic.Int64
	samplesLight    atomic.Int64
	samplesFocus    atomic.Int64

	generations        atomic.Int64
	generationAttempts atomic.Int64
	generationFailures atomic.Int64

	degraded atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordRun records a finished run.
func (mc *MetricsCollector) RecordRun(success bool) {
	mc.runs.Add(1)
	if !success {
		mc.runFailures.Add(1)
	}
}

// RecordSample records the level a segment was sampled at.
func (mc *MetricsCollector) RecordSample(level sampler.Level) {
	switch level {
	case sampler.Lossless:
		mc.samplesLossless.Add(1)
	case sampler.LightCompression:
		mc.samplesLight.Add(1)
	case sampler.SmartFocus:
		mc.samplesFocus.Add(1)
	}
}

// RecordGeneration records one generator call and the attempts it took.
func (mc *MetricsCollector) RecordGeneration(attempts int, err error) {
	mc.generations.Add(1)
	mc.generationAttempts.Add(int64(attempts))
	if err != nil {
		mc.generationFailures.Add(1)
	}
}

// RecordDegraded records n placeholder results.
func (mc *MetricsCollector) RecordDegraded(n int) {
	mc.degraded.Add(int64(n))
}

// Stats returns current metrics.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"runs":                mc.runs.Load(),
		"run_failures":        mc.runFailures.Load(),
		"samples_lossless":    mc.samplesLossless.Load(),
		"samples_light":       mc.samplesLight.Load(),
		"samples_smart_focus": mc.samplesFocus.Load(),
		"generations":         mc.generations.Load(),
		"generation_attempts": mc.generationAttempts.Load(),
		"generation_failures": mc.generationFailures.Load(),
		"degraded":            mc.degraded.Load(),
	}
}
