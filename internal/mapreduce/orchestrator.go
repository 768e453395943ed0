// Package mapreduce drives one generator call per segment (map) and one
// aggregating call over all segment results (reduce).
//
// DESIGN: Failures never abort a run. Each step yields an explicit Outcome:
//
//	OutcomeOK        reply parsed and validated
//	OutcomeDegraded  generator failed or reply was unusable; placeholder kept
//
// Only a missing generator (ErrNoGenerator, at construction) and context
// cancellation are returned as errors.
//
// FLOW:
//  1. For each non-empty segment, in order: sample -> map prompt -> Generate
//  2. Parse and validate each reply, or substitute MapPlaceholder
//  3. One reduce call over every map report plus global statistics
//  4. Parse and validate, or substitute ReducePlaceholder
//
// With Concurrency > 1 the map phase runs on an ants worker pool; results
// are written by segment index so ordering never depends on scheduling.
package mapreduce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"github.com/compresr/chat-recap/external"
	"github.com/compresr/chat-recap/internal/sampler"
	"github.com/compresr/chat-recap/internal/segment"
)

// ErrNoGenerator is returned by New when no generator is configured.
var ErrNoGenerator = errors.New("mapreduce: no generator configured")

// messages exist but none renders (e.g. only empty file messages)
var errNothingToSample = errors.New("segment has no renderable messages")

// Generator produces text for a prompt pair.
type Generator interface {
	Generate(ctx context.Context, req external.GenerateRequest) (string, error)
}

// GlobalStats is the precomputed statistics block of the reduce prompt.
type GlobalStats interface {
	PromptSummary() string
}

// Reporter receives progress updates (0-100).
type Reporter interface {
	Progress(percent int, message string)
}

// Outcome marks whether a step produced a real or a placeholder result.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeDegraded Outcome = "degraded"
)

// Progress bands of the map and reduce phases.
const (
	MapProgressStart = 50
	MapProgressEnd   = 80
	ReduceProgress   = 85
)

// =============================================================================
// TYPES
// =============================================================================

// Config configures the orchestrator.
type Config struct {
	MapModel    string `yaml:"map_model"`
	ReduceModel string `yaml:"reduce_model"`
	Concurrency int    `yaml:"concurrency"` // map workers; <= 1 is sequential
}

// ModeFlags select prompt variants.
type ModeFlags struct {
	Periodic          bool
	Theme             string
	CustomThemePrompt string
	Year              int
}

// SegmentResult is the map output for one segment.
type SegmentResult struct {
	Label    string          `json:"label"`
	Messages int             `json:"messages"`
	Sample   sampler.Result  `json:"sample"`
	Outcome  Outcome         `json:"outcome"`
	Report   json.RawMessage `json:"report"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration_ns"`
}

// Failed reports whether the segment result is a placeholder.
func (r SegmentResult) Failed() bool { return r.Outcome == OutcomeDegraded }

// AggregateResult is the reduce output.
type AggregateResult struct {
	Outcome Outcome         `json:"outcome"`
	Report  json.RawMessage `json:"report"`
	Error   string          `json:"error,omitempty"`
}

// Failed reports whether the aggregate is a placeholder.
func (r AggregateResult) Failed() bool { return r.Outcome == OutcomeDegraded }

// Result is the output of Run.
type Result struct {
	Segments  []SegmentResult `json:"segments"`
	Aggregate AggregateResult `json:"aggregate"`
	Skipped   []string        `json:"skipped,omitempty"`
}

// Degraded counts placeholder results across both phases.
func (r Result) Degraded() int {
	n := 0
	for _, s := range r.Segments {
		if s.Failed() {
			n++
		}
	}
	if r.Aggregate.Failed() {
		n++
	}
	return n
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs map-reduce over segments.
type Orchestrator struct {
	gen      Generator
	sampler  *sampler.Sampler
	cfg      Config
	reporter Reporter
}

// New creates an orchestrator. A nil sampler uses sampler defaults.
func New(gen Generator, s *sampler.Sampler, cfg Config) (*Orchestrator, error) {
	if gen == nil {
		return nil, ErrNoGenerator
	}
	if s == nil {
		s = sampler.New(sampler.DefaultConfig(), nil)
	}
	return &Orchestrator{gen: gen, sampler: s, cfg: cfg}, nil
}

// SetReporter installs a progress reporter.
func (o *Orchestrator) SetReporter(r Reporter) { o.reporter = r }

// Run maps every non-empty segment and reduces the results.
func (o *Orchestrator) Run(ctx context.Context, segments []segment.Segment, budgetUnits int, flags ModeFlags, global GlobalStats) (Result, error) {
	var res Result
	var work []segment.Segment
	for _, seg := range segments {
		if seg.Empty() {
			log.Info().Str("segment", seg.Label).Msg("Segment has no messages, skipping")
			res.Skipped = append(res.Skipped, seg.Label)
			continue
		}
		work = append(work, seg)
	}

	segResults, err := o.Map(ctx, work, budgetUnits, flags)
	if err != nil {
		return res, err
	}
	res.Segments = segResults

	o.progress(ReduceProgress, "Generating aggregate report")
	res.Aggregate = o.Reduce(ctx, res.Segments, flags, global)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// Map runs the map phase over non-empty segments, preserving order.
func (o *Orchestrator) Map(ctx context.Context, segments []segment.Segment, budgetUnits int, flags ModeFlags) ([]SegmentResult, error) {
	results := make([]SegmentResult, len(segments))
	if len(segments) == 0 {
		return results, nil
	}

	var done atomic.Int32
	step := func(i int) {
		results[i] = o.mapSegment(ctx, segments[i], budgetUnits, flags)
		n := int(done.Add(1))
		o.progress(MapProgressStart+(MapProgressEnd-MapProgressStart)*n/len(segments),
			fmt.Sprintf("Analyzed %s (%d/%d)", segments[i].Label, n, len(segments)))
	}

	if o.cfg.Concurrency <= 1 || len(segments) == 1 {
		for i := range segments {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			step(i)
		}
		return results, nil
	}

	pool, err := ants.NewPool(o.cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("create map worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range segments {
		wg.Add(1)
		idx := i
		if err := pool.Submit(func() {
			defer wg.Done()
			step(idx)
		}); err != nil {
			wg.Done()
			log.Warn().Err(err).Str("segment", segments[idx].Label).Msg("Map worker pool rejected task, running inline")
			step(idx)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) mapSegment(ctx context.Context, seg segment.Segment, budgetUnits int, flags ModeFlags) SegmentResult {
	start := time.Now()
	sample := o.sampler.Sample(seg.Messages, budgetUnits)
	out := SegmentResult{Label: seg.Label, Messages: len(seg.Messages), Sample: sample}

	log.Info().
		Str("segment", seg.Label).
		Int("messages", len(seg.Messages)).
		Str("level", sample.Level.String()).
		Int("kept", sample.Kept).
		Int("lines", sample.Lines).
		Int("units", sample.EstimatedUnits).
		Msg("Segment sampled")

	var reply string
	err := errNothingToSample
	if !sample.Empty() {
		reply, err = o.gen.Generate(ctx, external.GenerateRequest{
			SystemPrompt: SystemPrompt,
			UserPrompt:   MapPrompt(seg.Label, sample.Text, flags.Periodic),
			Model:        o.cfg.MapModel,
			Phase:        external.PhaseMap,
		})
	}
	if err == nil {
		var report json.RawMessage
		if report, err = ParseMap(reply); err == nil {
			out.Outcome, out.Report = OutcomeOK, report
			out.Duration = time.Since(start)
			return out
		}
	}

	log.Warn().Err(err).Str("segment", seg.Label).Msg("Segment analysis degraded to placeholder")
	out.Outcome = OutcomeDegraded
	out.Report = MapPlaceholder(seg.Label, err)
	out.Error = err.Error()
	out.Duration = time.Since(start)
	return out
}

// Reduce issues the aggregate call. It never fails; unusable replies
// become ReducePlaceholder.
func (o *Orchestrator) Reduce(ctx context.Context, results []SegmentResult, flags ModeFlags, global GlobalStats) AggregateResult {
	reply, err := o.gen.Generate(ctx, external.GenerateRequest{
		SystemPrompt: SystemPrompt,
		UserPrompt:   ReducePrompt(results, global, flags),
		Model:        o.cfg.ReduceModel,
		Phase:        external.PhaseReduce,
	})
	if err == nil {
		var report json.RawMessage
		if report, err = ParseReduce(reply); err == nil {
			return AggregateResult{Outcome: OutcomeOK, Report: report}
		}
	}

	log.Warn().Err(err).Msg("Aggregate report degraded to placeholder")
	return AggregateResult{Outcome: OutcomeDegraded, Report: ReducePlaceholder(err), Error: err.Error()}
}

func (o *Orchestrator) progress(pct int, msg string) {
	if o.reporter != nil {
		o.reporter.Progress(pct, msg)
	}
}
