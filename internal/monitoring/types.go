// Package monitoring - types.go defines telemetry event and config types.
//
// DESIGN: Event types carry plain strings for levels and outcomes so that
// monitoring never imports the pipeline packages it observes.
//
// TYPES:
//   - RunEvent:        One line per analysis run
//   - SampleEvent:     One line per sampled segment (sampling calibration)
//   - TelemetryConfig: Where and whether events are written
package monitoring

import "time"

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// RunEvent captures one analysis run.
type RunEvent struct {
	RunID          string    `json:"run_id"`
	Timestamp      time.Time `json:"timestamp"`
	ChatName       string    `json:"chat_name,omitempty"`
	Messages       int       `json:"messages"`
	Mode           string    `json:"mode,omitempty"`
	Segments       int       `json:"segments"`
	Skipped        int       `json:"skipped"`
	Degraded       int       `json:"degraded"`
	BudgetTokens   int       `json:"budget_tokens"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	TotalLatencyMs int64     `json:"total_latency_ms"`
}

// SampleEvent captures the sampling decision and map outcome of a segment.
type SampleEvent struct {
	RunID          string    `json:"run_id"`
	Timestamp      time.Time `json:"timestamp"`
	Segment        string    `json:"segment"`
	Messages       int       `json:"messages"`
	Level          string    `json:"level"`
	Lines          int       `json:"lines"`
	Kept           int       `json:"kept"`
	NoiseDropped   int       `json:"noise_dropped"`
	HotLines       int       `json:"hot_lines"`
	ColdLines      int       `json:"cold_lines"`
	ColdStride     int       `json:"cold_stride"`
	CorpusUnits    int       `json:"corpus_units"`
	EstimatedUnits int       `json:"estimated_units"`
	BudgetUnits    int       `json:"budget_units"`
	TargetChars    int       `json:"target_chars"`
	HotOverflow    bool      `json:"hot_overflow"`
	Outcome        string    `json:"outcome"`
	Error          string    `json:"error,omitempty"`
	LatencyMs      int64     `json:"latency_ms"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled         bool   `yaml:"telemetry_enabled"`
	LogPath         string `yaml:"telemetry_path"`    // RunEvent JSONL
	SamplingLogPath string `yaml:"sampling_log_path"` // SampleEvent JSONL
	LogToStdout     bool   `yaml:"telemetry_log"`     // Also summarize events through zerolog
}
