// Package recap runs an end-to-end analysis of one chat export.
//
// FLOW (registry progress in brackets):
//  1. Parse the export                                   [5, 20]
//  2. Global statistics                                  [30]
//  3. Segment: quarterly, or periodic fallback           [40]
//  4. Build the per-run sampler and orchestrator         [45]
//  5. Map each segment, then reduce                      [50-80, 85]
//  6. Assemble the report                                [95, 100]
//
// DESIGN: Every run owns its messages, segmentation and sampler. The
// registry entry is the only state shared with status pollers. A run fails
// only when the export cannot be read, holds no messages, or the context is
// cancelled; generator trouble degrades individual sections instead.
package recap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/compresr/chat-recap/external"
	"github.com/compresr/chat-recap/internal/chatlog"
	"github.com/compresr/chat-recap/internal/config"
	"github.com/compresr/chat-recap/internal/mapreduce"
	"github.com/compresr/chat-recap/internal/monitoring"
	"github.com/compresr/chat-recap/internal/registry"
	"github.com/compresr/chat-recap/internal/sampler"
	"github.com/compresr/chat-recap/internal/segment"
	"github.com/compresr/chat-recap/internal/stats"
)

// ErrNoMessages is returned when an export contains no messages.
var ErrNoMessages = errors.New("recap: export contains no messages")

// Registry progress checkpoints.
const (
	ProgressStart     = 5
	ProgressParsed    = 20
	ProgressStats     = 30
	ProgressSegmented = 40
	ProgressPrepared  = 45
	ProgressAssembled = 95
)

// Report is the final output of a run.
type Report struct {
	RunID       string    `json:"run_id"`
	ChatName    string    `json:"chat_name"`
	GeneratedAt time.Time `json:"generated_at"`

	Mode       segment.Mode `json:"mode"`
	Periodic   bool         `json:"periodic"`
	TargetYear int          `json:"target_year,omitempty"`
	Theme      string       `json:"theme"`

	BudgetTokens int                       `json:"budget_tokens"`
	Export       chatlog.Meta              `json:"export"`
	Segmentation segment.Segmentation      `json:"segmentation"`
	Stats        *stats.Stats              `json:"stats"`
	Segments     []mapreduce.SegmentResult `json:"segments"`
	Skipped      []string                  `json:"skipped,omitempty"`
	Aggregate    mapreduce.AggregateResult `json:"aggregate"`
	Degraded     int                       `json:"degraded"`
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}

// Runner executes analysis runs.
type Runner struct {
	cfg      *config.Config
	gen      mapreduce.Generator
	registry *registry.Registry
	metrics  *monitoring.MetricsCollector
	tracker  *monitoring.Tracker
	parser   *chatlog.Parser

	wg sync.WaitGroup
}

// New creates a runner. A nil metrics collector gets a private one.
func New(cfg *config.Config, gen mapreduce.Generator, reg *registry.Registry, metrics *monitoring.MetricsCollector) (*Runner, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if gen == nil {
		return nil, mapreduce.ErrNoGenerator
	}
	if reg == nil {
		return nil, errors.New("recap: registry is required")
	}
	if metrics == nil {
		metrics = monitoring.NewMetricsCollector()
	}
	loc, err := cfg.Input.Location()
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:      cfg,
		gen:      gen,
		registry: reg,
		metrics:  metrics,
		parser:   chatlog.NewParser(loc),
	}, nil
}

// SetTracker installs a telemetry tracker. A nil tracker records nothing.
func (r *Runner) SetTracker(t *monitoring.Tracker) { r.tracker = t }

// Metrics returns the runner's metrics collector.
func (r *Runner) Metrics() *monitoring.MetricsCollector { return r.metrics }

// Analyze runs a full analysis synchronously. The run stays in the
// registry under Report.RunID until it is purged.
func (r *Runner) Analyze(ctx context.Context, data []byte) (*Report, error) {
	run := r.registry.Start()
	return r.execute(ctx, run, data)
}

// AnalyzeFile reads path and runs Analyze on its contents.
func (r *Runner) AnalyzeFile(ctx context.Context, path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return r.Analyze(ctx, data)
}

// Submit starts an analysis in the background and returns its run id for
// polling through the registry.
func (r *Runner) Submit(ctx context.Context, data []byte) string {
	run := r.registry.Start()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _ = r.execute(ctx, run, data)
	}()
	return run.ID()
}

// Wait blocks until every submitted run has finished.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) execute(ctx context.Context, run *registry.Run, data []byte) (*Report, error) {
	start := time.Now()
	ctx = monitoring.WithRunIDContext(ctx, run.ID())
	report, err := r.pipeline(ctx, run, data)
	r.metrics.RecordRun(err == nil)

	event := &monitoring.RunEvent{
		RunID:          run.ID(),
		Timestamp:      start,
		BudgetTokens:   r.cfg.Sampling.BudgetTokens,
		Success:        err == nil,
		TotalLatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		event.Error = err.Error()
		r.tracker.RecordRun(event)
		run.Fail(err)
		return nil, err
	}
	event.ChatName = report.ChatName
	event.Messages = report.Stats.TotalMessages
	event.Mode = string(report.Mode)
	event.Segments = len(report.Segments)
	event.Skipped = len(report.Skipped)
	event.Degraded = report.Degraded
	r.tracker.RecordRun(event)

	run.Complete(report)
	return report, nil
}

func (r *Runner) recordSample(runID string, s mapreduce.SegmentResult) {
	r.metrics.RecordSample(s.Sample.Level)
	if !r.tracker.SamplingLogEnabled() {
		return
	}
	r.tracker.RecordSample(&monitoring.SampleEvent{
		RunID:          runID,
		Timestamp:      time.Now(),
		Segment:        s.Label,
		Messages:       s.Messages,
		Level:          s.Sample.Level.String(),
		Lines:          s.Sample.Lines,
		Kept:           s.Sample.Kept,
		NoiseDropped:   s.Sample.NoiseDropped,
		HotLines:       s.Sample.HotLines,
		ColdLines:      s.Sample.ColdLines,
		ColdStride:     s.Sample.ColdStride,
		CorpusUnits:    s.Sample.CorpusUnits,
		EstimatedUnits: s.Sample.EstimatedUnits,
		BudgetUnits:    s.Sample.BudgetUnits,
		TargetChars:    s.Sample.TargetChars,
		HotOverflow:    s.Sample.HotOverflow,
		Outcome:        string(s.Outcome),
		Error:          s.Error,
		LatencyMs:      s.Duration.Milliseconds(),
	})
}

func (r *Runner) pipeline(ctx context.Context, run *registry.Run, data []byte) (*Report, error) {
	logger := monitoring.FromContext(ctx)

	// 1. Parse
	run.Progress(ProgressStart, "Parsing chat export")
	export, err := r.parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}
	if len(export.Messages) == 0 {
		return nil, ErrNoMessages
	}
	run.Progress(ProgressParsed, fmt.Sprintf("Parsed %d messages from %s", len(export.Messages), export.Meta.ChatName))
	if export.Meta.Defaulted > 0 {
		run.Log(fmt.Sprintf("%d messages had no usable timestamp and were placed at ingestion time", export.Meta.Defaulted))
	}

	// 2. Statistics
	global := stats.Compute(export.Messages, r.cfg.Report.Stats)
	run.Progress(ProgressStats, fmt.Sprintf("Computed statistics for %d members", global.TotalUsers))

	// 3. Segment
	segmentation := segment.Split(export.Messages, r.cfg.Segmenting)
	if segmentation.Periodic() {
		run.Progress(ProgressSegmented, fmt.Sprintf(
			"Messages are concentrated (max quarter share %.0f%%, %d days), using %d equal periods",
			segmentation.MaxRatio*100, segmentation.DaysCovered, len(segmentation.Segments)))
	} else {
		run.Progress(ProgressSegmented, fmt.Sprintf("Split %d into quarters", segmentation.TargetYear))
	}

	// 4. Per-run sampler and orchestrator
	smp := sampler.New(r.cfg.Sampling.Sampler, r.cfg.Sampling.NewEstimator())
	orch, err := mapreduce.New(r.gen, smp, mapreduce.Config{
		MapModel:    r.cfg.LLM.PhaseModel(external.PhaseMap),
		ReduceModel: r.cfg.LLM.PhaseModel(external.PhaseReduce),
		Concurrency: r.cfg.Report.Concurrency,
	})
	if err != nil {
		return nil, err
	}
	orch.SetReporter(run)
	run.Progress(ProgressPrepared, fmt.Sprintf("Sampling each segment to %d tokens", r.cfg.Sampling.BudgetTokens))

	// 5. Map-reduce
	flags := mapreduce.ModeFlags{
		Periodic:          segmentation.Periodic(),
		Theme:             r.cfg.Report.Theme,
		CustomThemePrompt: r.cfg.Report.CustomThemePrompt,
		Year:              segmentation.TargetYear,
	}
	result, err := orch.Run(ctx, segmentation.Segments, r.cfg.Sampling.BudgetTokens, flags, global)
	if err != nil {
		return nil, fmt.Errorf("map-reduce: %w", err)
	}
	for _, s := range result.Segments {
		r.recordSample(run.ID(), s)
		if s.Sample.Level != sampler.Lossless {
			run.Log(fmt.Sprintf("%s sampled at %s: kept %d of %d lines", s.Label, s.Sample.Level, s.Sample.Kept, s.Sample.Lines))
		}
	}
	r.metrics.RecordDegraded(result.Degraded())

	// 6. Assemble
	report := &Report{
		RunID:        run.ID(),
		ChatName:     export.Meta.ChatName,
		GeneratedAt:  time.Now(),
		Mode:         segmentation.Mode,
		Periodic:     segmentation.Periodic(),
		TargetYear:   segmentation.TargetYear,
		Theme:        r.cfg.Report.Theme,
		BudgetTokens: r.cfg.Sampling.BudgetTokens,
		Export:       export.Meta,
		Segmentation: segmentation,
		Stats:        global,
		Segments:     result.Segments,
		Skipped:      result.Skipped,
		Aggregate:    result.Aggregate,
		Degraded:     result.Degraded(),
	}
	run.Progress(ProgressAssembled, "Report assembled")

	logger.Info().
		Str("chat", report.ChatName).
		Str("mode", string(report.Mode)).
		Int("segments", len(report.Segments)).
		Int("degraded", report.Degraded).
		Msg("Analysis finished")
	if report.Degraded > 0 {
		logger.Warn().Int("degraded", report.Degraded).Msg("Report contains placeholder sections")
	}
	return report, nil
}
