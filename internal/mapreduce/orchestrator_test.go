package mapreduce_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/compresr/chat-recap/external"
	"github.com/compresr/chat-recap/internal/chat"
	"github.com/compresr/chat-recap/internal/mapreduce"
	"github.com/compresr/chat-recap/internal/segment"
)

// fakeGenerator answers map calls with a summary naming the segment and
// fails any map call whose prompt mentions a label in failFor.
type fakeGenerator struct {
	mu       sync.Mutex
	failFor  map[string]bool
	reduce   string
	delay    time.Duration
	requests []external.GenerateRequest
}

func (g *fakeGenerator) Generate(ctx context.Context, req external.GenerateRequest) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	if req.Phase == external.PhaseReduce {
		if g.reduce != "" {
			return g.reduce, nil
		}
		return "```json\n{\"portrait\":\"<h3>Portrait</h3>\"}\n```", nil
	}
	for label := range g.failFor {
		if strings.Contains(req.UserPrompt, "("+label+")") {
			return "", &external.CallError{Kind: external.KindTimeout, Provider: "fake", Err: errors.New("deadline")}
		}
	}
	for _, label := range []string{"First_quarter", "Second_quarter", "Third_quarter", "Fourth_quarter"} {
		if strings.Contains(req.UserPrompt, "("+label+")") {
			return fmt.Sprintf(`{"summary":"summary of %s"}`, label), nil
		}
	}
	return `{"summary":"generic"}`, nil
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type statsStub string

func (s statsStub) PromptSummary() string { return string(s) }

type progressLog struct {
	mu  sync.Mutex
	pct []int
}

func (p *progressLog) Progress(percent int, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pct = append(p.pct, percent)
}

func quarterSegments() []segment.Segment {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	var segs []segment.Segment
	for i, label := range segment.QuarterLabels {
		seg := segment.Segment{Label: label}
		if i != 2 { // Third_quarter stays empty
			start := base.AddDate(0, 3*i, 0)
			for j := 0; j < 5; j++ {
				seg.Messages = append(seg.Messages, chat.Message{
					Timestamp:  start.Add(time.Duration(j) * 5 * time.Minute),
					AuthorID:   fmt.Sprintf("u%d", j%2),
					AuthorName: fmt.Sprintf("User%d", j%2),
					Text:       fmt.Sprintf("%s message %d", label, j),
					Kind:       chat.KindText,
				})
			}
		}
		segs = append(segs, seg)
	}
	return segs
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNew_RequiresGenerator(t *testing.T) {
	_, err := mapreduce.New(nil, nil, mapreduce.Config{})

	assert.ErrorIs(t, err, mapreduce.ErrNoGenerator)
}

// =============================================================================
// RUN
// =============================================================================

func TestRun_AllSegmentsSucceed(t *testing.T) {
	gen := &fakeGenerator{}
	o, err := mapreduce.New(gen, nil, mapreduce.Config{MapModel: "small", ReduceModel: "large"})
	require.NoError(t, err)
	progress := &progressLog{}
	o.SetReporter(progress)

	res, err := o.Run(context.Background(), quarterSegments(), 100_000, mapreduce.ModeFlags{Year: 2024}, statsStub("- total: 15"))

	require.NoError(t, err)
	require.Len(t, res.Segments, 3, "empty segment is skipped")
	assert.Equal(t, []string{"Third_quarter"}, res.Skipped)
	assert.Equal(t, []string{"First_quarter", "Second_quarter", "Fourth_quarter"},
		[]string{res.Segments[0].Label, res.Segments[1].Label, res.Segments[2].Label})
	for _, s := range res.Segments {
		assert.Equal(t, mapreduce.OutcomeOK, s.Outcome)
		assert.Equal(t, "summary of "+s.Label, gjson.GetBytes(s.Report, "summary").String())
		assert.Equal(t, 5, s.Messages)
	}

	assert.Equal(t, mapreduce.OutcomeOK, res.Aggregate.Outcome)
	assert.Equal(t, mapreduce.TheaterFallback, gjson.GetBytes(res.Aggregate.Report, "anime_theater").String())
	assert.Zero(t, res.Degraded())

	require.Equal(t, 4, gen.calls())
	assert.Equal(t, "small", gen.requests[0].Model)
	assert.Equal(t, external.PhaseMap, gen.requests[0].Phase)
	assert.Equal(t, "large", gen.requests[3].Model)
	assert.Equal(t, external.PhaseReduce, gen.requests[3].Phase)
	assert.Contains(t, gen.requests[3].UserPrompt, "- total: 15")
	assert.Contains(t, gen.requests[3].UserPrompt, "summary of Second_quarter")
	assert.Equal(t, []int{60, 70, 80, 85}, progress.pct)
}

func TestRun_FailedSegmentBecomesPlaceholder(t *testing.T) {
	gen := &fakeGenerator{failFor: map[string]bool{"Second_quarter": true}}
	o, err := mapreduce.New(gen, nil, mapreduce.Config{})
	require.NoError(t, err)

	res, err := o.Run(context.Background(), quarterSegments(), 100_000, mapreduce.ModeFlags{}, nil)

	require.NoError(t, err)
	require.Len(t, res.Segments, 3)
	failed := res.Segments[1]
	assert.Equal(t, "Second_quarter", failed.Label)
	assert.True(t, failed.Failed())
	assert.True(t, gjson.GetBytes(failed.Report, "failed").Bool())
	assert.Equal(t, "Second_quarter analysis failed", gjson.GetBytes(failed.Report, "summary").String())
	assert.Contains(t, failed.Error, "deadline")

	assert.False(t, res.Segments[0].Failed())
	assert.False(t, res.Segments[2].Failed())
	assert.False(t, res.Aggregate.Failed(), "reduce still runs over the placeholder")
	assert.Equal(t, 1, res.Degraded())
}

func TestRun_UnparseableReduceBecomesPlaceholder(t *testing.T) {
	gen := &fakeGenerator{reduce: "Sorry, I cannot help with that."}
	o, err := mapreduce.New(gen, nil, mapreduce.Config{})
	require.NoError(t, err)

	res, err := o.Run(context.Background(), quarterSegments(), 100_000, mapreduce.ModeFlags{}, nil)

	require.NoError(t, err)
	assert.True(t, res.Aggregate.Failed())
	assert.Contains(t, gjson.GetBytes(res.Aggregate.Report, "portrait").String(), "generation failed")
	assert.NotEmpty(t, res.Aggregate.Error)
}

func TestRun_ParallelKeepsSegmentOrder(t *testing.T) {
	gen := &fakeGenerator{delay: 10 * time.Millisecond}
	o, err := mapreduce.New(gen, nil, mapreduce.Config{Concurrency: 3})
	require.NoError(t, err)
	progress := &progressLog{}
	o.SetReporter(progress)

	res, err := o.Run(context.Background(), quarterSegments(), 100_000, mapreduce.ModeFlags{}, nil)

	require.NoError(t, err)
	require.Len(t, res.Segments, 3)
	assert.Equal(t, "First_quarter", res.Segments[0].Label)
	assert.Equal(t, "Second_quarter", res.Segments[1].Label)
	assert.Equal(t, "Fourth_quarter", res.Segments[2].Label)
	for _, s := range res.Segments {
		assert.Equal(t, "summary of "+s.Label, gjson.GetBytes(s.Report, "summary").String())
	}
	assert.ElementsMatch(t, []int{60, 70, 80, 85}, progress.pct)
}

func TestRun_NoNonEmptySegments(t *testing.T) {
	gen := &fakeGenerator{}
	o, err := mapreduce.New(gen, nil, mapreduce.Config{})
	require.NoError(t, err)

	res, err := o.Run(context.Background(), []segment.Segment{{Label: "Period_1 (No Data)"}}, 1000, mapreduce.ModeFlags{Periodic: true}, nil)

	require.NoError(t, err)
	assert.Empty(t, res.Segments)
	assert.Equal(t, 1, gen.calls(), "only the reduce call")
}

func TestRun_SegmentWithoutRenderableMessagesSkipsGenerator(t *testing.T) {
	gen := &fakeGenerator{}
	o, err := mapreduce.New(gen, nil, mapreduce.Config{})
	require.NoError(t, err)
	seg := segment.Segment{Label: "First_quarter", Messages: []chat.Message{
		{Timestamp: time.Now(), AuthorID: "u", AuthorName: "U", Kind: chat.KindFile},
	}}

	results, err := o.Map(context.Background(), []segment.Segment{seg}, 1000, mapreduce.ModeFlags{})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Failed())
	assert.Zero(t, gen.calls())
}

func TestRun_CancelledContext(t *testing.T) {
	gen := &fakeGenerator{}
	o, err := mapreduce.New(gen, nil, mapreduce.Config{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = o.Run(ctx, quarterSegments(), 1000, mapreduce.ModeFlags{}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// PROMPTS
// =============================================================================

func TestPrompts(t *testing.T) {
	mp := mapreduce.MapPrompt("Period_1 (01.01-02.01)", "[01-01 10:00] A: 100% sure", true)
	assert.Contains(t, mp, "(Period_1 (01.01-02.01))")
	assert.Contains(t, mp, "period")
	assert.True(t, strings.HasSuffix(mp, "[01-01 10:00] A: 100% sure"), "excerpt is appended verbatim")

	results := []mapreduce.SegmentResult{{Label: "Q", Report: []byte(`{"summary":"s"}`)}}
	rp := mapreduce.ReducePrompt(results, statsStub("- total: 1"), mapreduce.ModeFlags{Theme: mapreduce.ThemeGBC, Year: 2024})
	assert.Contains(t, rp, `"portrait"`)
	assert.Contains(t, rp, "Girls Band Cry")
	assert.Contains(t, rp, "2024")
	assert.Contains(t, rp, `"summary": "s"`)
	assert.NotContains(t, rp, "%!")

	custom := mapreduce.TheaterInstruction(mapreduce.ThemeCustom, "space pirates")
	assert.Contains(t, custom, "space pirates")
	assert.Equal(t, mapreduce.TheaterInstruction(mapreduce.ThemeDefault, ""), mapreduce.TheaterInstruction(mapreduce.ThemeCustom, "  "))

	assert.True(t, mapreduce.ValidTheme("bandream"))
	assert.False(t, mapreduce.ValidTheme("mecha"))
}
