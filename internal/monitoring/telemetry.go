// Package monitoring - telemetry.go records events to JSONL files.
//
// DESIGN: Tracker writes structured events as JSONL (one JSON object per line):
//   - RunEvent:    Every analysis run
//   - SampleEvent: Every sampled segment, for tuning budgets and thresholds
//
// Events are appended to files immediately after each event for real-time logging.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker handles telemetry event recording to file and the logger.
type Tracker struct {
	config          TelemetryConfig
	runLogPath      string
	samplingLogPath string
	runCount        int
	sampleCount     int
	mu              sync.Mutex
}

// NewTracker creates a new telemetry tracker.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{
		config: cfg,
	}

	if !cfg.Enabled {
		return t, nil
	}

	var err error
	if t.runLogPath, err = prepareLogFile(cfg.LogPath); err != nil {
		return nil, err
	}
	if t.samplingLogPath, err = prepareLogFile(cfg.SamplingLogPath); err != nil {
		return nil, err
	}
	return t, nil
}

// prepareLogFile ensures the directory exists and creates an empty file.
func prepareLogFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if f, err := os.Create(path); err == nil {
			f.Close()
		}
	}
	return path, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// RecordRun records a run event.
func (t *Tracker) RecordRun(event *RunEvent) {
	if t == nil || !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		log.Info().
			Str("run_id", event.RunID).
			Int("segments", event.Segments).
			Int("degraded", event.Degraded).
			Bool("success", event.Success).
			Msg("telemetry")
	}

	if t.runLogPath != "" {
		if err := appendJSONL(t.runLogPath, event); err != nil {
			log.Error().Err(err).Str("path", t.runLogPath).Msg("telemetry: failed to write run event")
		} else {
			t.runCount++
		}
	}
}

// SamplingLogEnabled returns true if sampling events are written.
func (t *Tracker) SamplingLogEnabled() bool {
	return t != nil && t.config.Enabled && t.samplingLogPath != ""
}

// RecordSample records a segment sampling event.
func (t *Tracker) RecordSample(event *SampleEvent) {
	if !t.SamplingLogEnabled() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := appendJSONL(t.samplingLogPath, event); err != nil {
		log.Error().Err(err).Str("path", t.samplingLogPath).Msg("telemetry: failed to write sample event")
	} else {
		t.sampleCount++
	}
}

// Close logs a summary of what was written.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runLogPath != "" && t.runCount > 0 {
		log.Info().
			Str("path", t.runLogPath).
			Int("runs", t.runCount).
			Int("samples", t.sampleCount).
			Msg("telemetry: session complete")
	}

	return nil
}
