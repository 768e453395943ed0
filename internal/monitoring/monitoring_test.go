package monitoring_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/compresr/chat-recap/external"
	"github.com/compresr/chat-recap/internal/monitoring"
	"github.com/compresr/chat-recap/internal/sampler"
)

// =============================================================================
// LOGGER
// =============================================================================

func TestLogger_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := monitoring.NewWithWriter(monitoring.LoggerConfig{Level: "warn", Format: "json"}, &buf)

	l.Info().Msg("hidden")
	l.Warn().Str("segment", "First_quarter").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	require.True(t, gjson.Valid(out))
	assert.Equal(t, "First_quarter", gjson.Get(out, "segment").String())
	assert.Equal(t, "warn", gjson.Get(out, "level").String())
	assert.True(t, gjson.Get(out, "time").Exists())
}

func TestLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	l := monitoring.NewWithWriter(monitoring.LoggerConfig{Format: "console"}, &buf)

	l.Info().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.False(t, gjson.Valid(buf.String()))
}

func TestLoggerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     monitoring.LoggerConfig
		wantErr bool
	}{
		{"defaults", monitoring.DefaultLoggerConfig(), false},
		{"empty", monitoring.LoggerConfig{}, false},
		{"bad_level", monitoring.LoggerConfig{Level: "loud"}, true},
		{"bad_format", monitoring.LoggerConfig{Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, monitoring.RunIDFromContext(ctx))

	ctx = monitoring.WithRunIDContext(ctx, "run-1")
	assert.Equal(t, "run-1", monitoring.RunIDFromContext(ctx))
}

// =============================================================================
// METRICS
// =============================================================================

func TestMetricsCollector(t *testing.T) {
	mc := monitoring.NewMetricsCollector()
	var _ external.CallObserver = mc

	mc.RecordRun(true)
	mc.RecordRun(false)
	mc.RecordSample(sampler.Lossless)
	mc.RecordSample(sampler.SmartFocus)
	mc.RecordSample(sampler.SmartFocus)
	mc.RecordGeneration(1, nil)
	mc.RecordGeneration(2, errors.New("timeout"))
	mc.RecordDegraded(2)

	stats := mc.Stats()
	assert.Equal(t, int64(2), stats["runs"])
	assert.Equal(t, int64(1), stats["run_failures"])
	assert.Equal(t, int64(1), stats["samples_lossless"])
	assert.Zero(t, stats["samples_light"])
	assert.Equal(t, int64(2), stats["samples_smart_focus"])
	assert.Equal(t, int64(2), stats["generations"])
	assert.Equal(t, int64(3), stats["generation_attempts"])
	assert.Equal(t, int64(1), stats["generation_failures"])
	assert.Equal(t, int64(2), stats["degraded"])
}

// =============================================================================
// TELEMETRY
// =============================================================================

func TestTracker_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	cfg := monitoring.TelemetryConfig{
		Enabled:         true,
		LogPath:         filepath.Join(dir, "logs", "runs.jsonl"),
		SamplingLogPath: filepath.Join(dir, "logs", "samples.jsonl"),
	}
	tracker, err := monitoring.NewTracker(cfg)
	require.NoError(t, err)

	tracker.RecordSample(&monitoring.SampleEvent{RunID: "r1", Segment: "First_quarter", Level: "smart_focus", Kept: 20, Lines: 900})
	tracker.RecordSample(&monitoring.SampleEvent{RunID: "r1", Segment: "Second_quarter", Level: "lossless"})
	tracker.RecordRun(&monitoring.RunEvent{RunID: "r1", Segments: 2, Success: true})
	require.NoError(t, tracker.Close())

	samples := readLines(t, cfg.SamplingLogPath)
	require.Len(t, samples, 2)
	assert.Equal(t, "smart_focus", gjson.Get(samples[0], "level").String())
	assert.Equal(t, int64(900), gjson.Get(samples[0], "lines").Int())
	assert.Equal(t, "Second_quarter", gjson.Get(samples[1], "segment").String())

	runs := readLines(t, cfg.LogPath)
	require.Len(t, runs, 1)
	assert.True(t, gjson.Get(runs[0], "success").Bool())
}

func TestTracker_Disabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.jsonl")
	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{LogPath: path})
	require.NoError(t, err)

	tracker.RecordRun(&monitoring.RunEvent{RunID: "r1"})

	assert.False(t, tracker.SamplingLogEnabled())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestTracker_NilIsSafe(t *testing.T) {
	var tracker *monitoring.Tracker

	assert.NotPanics(t, func() {
		tracker.RecordRun(&monitoring.RunEvent{})
		tracker.RecordSample(&monitoring.SampleEvent{})
		_ = tracker.Close()
	})
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}
