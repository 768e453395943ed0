package segment_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/chat-recap/internal/chat"
	"github.com/compresr/chat-recap/internal/segment"
)

func msgAt(t time.Time, i int) chat.Message {
	return chat.Message{Timestamp: t, AuthorID: "u", AuthorName: "U", Text: fmt.Sprintf("m%d", i), Kind: chat.KindText}
}

// evenly spaced messages in [from, to)
func between(from, to time.Time, n, offset int) []chat.Message {
	step := to.Sub(from) / time.Duration(n)
	out := make([]chat.Message, n)
	for i := range out {
		out[i] = msgAt(from.Add(time.Duration(i)*step), offset+i)
	}
	return out
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func assertPartition(t *testing.T, input []chat.Message, seg segment.Segmentation) {
	t.Helper()
	seen := make(map[string]int)
	for _, s := range seg.Segments {
		for _, m := range s.Messages {
			seen[m.Text]++
		}
	}
	for _, m := range input {
		assert.Equal(t, 1, seen[m.Text], "message %s", m.Text)
	}
}

// =============================================================================
// QUARTERLY
// =============================================================================

func TestSplit_SmallCorpusAlwaysQuarterly(t *testing.T) {
	// 99 messages all in one week would trigger both fallbacks if judged
	msgs := between(date(2024, 2, 1), date(2024, 2, 8), 99, 0)

	seg := segment.Split(msgs, segment.DefaultConfig())

	assert.Equal(t, segment.ModeQuarterly, seg.Mode)
	assert.Equal(t, segment.QuarterLabels[:], seg.Labels())
	assert.Len(t, seg.Segments[0].Messages, 99)
	assert.True(t, seg.Segments[1].Empty())
}

func TestSplit_BalancedYearIsQuarterly(t *testing.T) {
	var msgs []chat.Message
	msgs = append(msgs, between(date(2023, 1, 1), date(2023, 4, 1), 100, 0)...)
	msgs = append(msgs, between(date(2023, 4, 1), date(2023, 7, 1), 100, 100)...)
	msgs = append(msgs, between(date(2023, 7, 1), date(2023, 10, 1), 100, 200)...)
	msgs = append(msgs, between(date(2023, 10, 1), date(2023, 12, 31), 100, 300)...)

	seg := segment.Split(msgs, segment.DefaultConfig())

	require.Equal(t, segment.ModeQuarterly, seg.Mode)
	assert.Equal(t, 2023, seg.TargetYear)
	for _, s := range seg.Segments {
		assert.Len(t, s.Messages, 100, s.Label)
	}
	assert.InDelta(t, 0.25, seg.MaxRatio, 1e-9)
	assertPartition(t, msgs, seg)
}

func TestSplit_QuarterBoundsInSourceLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	msgs := []chat.Message{
		msgAt(time.Date(2024, 3, 31, 23, 59, 59, 0, loc), 0),
		msgAt(time.Date(2024, 4, 1, 0, 0, 0, 0, loc), 1),
		msgAt(time.Date(2024, 12, 31, 23, 59, 0, 0, loc), 2),
	}

	seg := segment.Split(msgs, segment.DefaultConfig())

	q1, _ := seg.Lookup("First_quarter")
	q2, _ := seg.Lookup("Second_quarter")
	q4, _ := seg.Lookup("Fourth_quarter")
	require.Len(t, q1.Messages, 1)
	assert.Equal(t, "m0", q1.Messages[0].Text)
	require.Len(t, q2.Messages, 1)
	assert.Equal(t, "m1", q2.Messages[0].Text)
	require.Len(t, q4.Messages, 1)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, loc), q4.End)
}

func TestSplit_OtherYearsExcludedFromQuarters(t *testing.T) {
	msgs := []chat.Message{
		msgAt(date(2022, 6, 1), 0),
		msgAt(date(2023, 2, 1), 1),
		msgAt(date(2023, 8, 1), 2),
	}

	seg := segment.Split(msgs, segment.DefaultConfig())

	assert.Equal(t, 2023, seg.TargetYear)
	assert.Equal(t, 2, seg.Total())
}

func TestTargetYear(t *testing.T) {
	msgs := []chat.Message{
		msgAt(date(2021, 1, 1), 0),
		msgAt(date(2022, 1, 1), 1),
		msgAt(date(2022, 5, 1), 2),
		msgAt(date(2023, 1, 1), 3),
	}
	assert.Equal(t, 2022, segment.TargetYear(msgs))
}

// =============================================================================
// PERIODIC FALLBACK
// =============================================================================

func TestSplit_ConcentratedQuarterFallsBackToPeriods(t *testing.T) {
	// 81% in Q2, the rest spread over the year so the span is long
	var msgs []chat.Message
	msgs = append(msgs, between(date(2023, 4, 1), date(2023, 7, 1), 81, 0)...)
	msgs = append(msgs, between(date(2023, 7, 1), date(2023, 12, 31), 10, 81)...)
	msgs = append(msgs, between(date(2023, 1, 1), date(2023, 4, 1), 9, 91)...)

	seg := segment.Split(msgs, segment.DefaultConfig())

	require.Equal(t, segment.ModePeriodic, seg.Mode)
	assert.True(t, seg.Periodic())
	assert.Greater(t, seg.DaysCovered, 200)
	require.Len(t, seg.Segments, 4)
	for _, s := range seg.Segments {
		assert.True(t, strings.HasPrefix(s.Label, "Period_"), s.Label)
		assert.NotContains(t, s.Label, "quarter")
	}
	assertPartition(t, msgs, seg)
}

func TestSplit_ConcentratedFirstQuarter500(t *testing.T) {
	var msgs []chat.Message
	msgs = append(msgs, between(date(2024, 1, 1), date(2024, 4, 1), 475, 0)...)
	msgs = append(msgs, between(date(2024, 4, 1), date(2024, 12, 31), 25, 475)...)

	seg := segment.Split(msgs, segment.DefaultConfig())

	require.Equal(t, segment.ModePeriodic, seg.Mode)
	require.Len(t, seg.Segments, 4)
	assert.Equal(t, 500, seg.Total())
	for i, s := range seg.Segments {
		assert.True(t, strings.HasPrefix(s.Label, fmt.Sprintf("Period_%d (", i+1)), s.Label)
		assert.Len(t, s.Messages, 125)
	}
	assert.Equal(t, "Period_1 (01.01-01.25)", seg.Segments[0].Label)
}

func TestSplit_ShortSpanFallsBackToPeriods(t *testing.T) {
	// balanced between two quarters but only ~60 days long
	msgs := between(date(2024, 3, 1), date(2024, 4, 30), 202, 0)

	seg := segment.Split(msgs, segment.DefaultConfig())

	require.Equal(t, segment.ModePeriodic, seg.Mode)
	assert.Less(t, seg.DaysCovered, 200)
	sizes := []int{}
	for _, s := range seg.Segments {
		sizes = append(sizes, len(s.Messages))
	}
	assert.Equal(t, []int{50, 50, 50, 52}, sizes, "last chunk absorbs the remainder")
	assertPartition(t, msgs, seg)
}

func TestPeriods_EmptyChunksAreLabelled(t *testing.T) {
	msgs := between(date(2024, 1, 1), date(2024, 1, 2), 2, 0)

	segs := segment.Periods(chat.SortedCopy(msgs), 4)

	require.Len(t, segs, 4)
	assert.Equal(t, "Period_1 (No Data)", segs[0].Label)
	assert.True(t, segs[0].Empty())
	assert.Len(t, segs[3].Messages, 2)
	assert.Equal(t, "Period_4 (01.01-01.02)", segs[3].Label)
}

func TestSplit_DoesNotMutateInput(t *testing.T) {
	msgs := []chat.Message{msgAt(date(2024, 5, 1), 1), msgAt(date(2024, 1, 1), 0)}

	segment.Split(msgs, segment.DefaultConfig())

	assert.Equal(t, "m1", msgs[0].Text)
}

func TestSplit_Empty(t *testing.T) {
	seg := segment.Split(nil, segment.DefaultConfig())

	assert.Len(t, seg.Segments, 4)
	assert.Empty(t, seg.NonEmpty())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, segment.DefaultConfig().Validate())

	cfg := segment.DefaultConfig()
	cfg.Concentration = 1.5
	assert.Error(t, cfg.Validate())

	cfg = segment.DefaultConfig()
	cfg.Chunks = 0
	assert.Error(t, cfg.Validate())
}
