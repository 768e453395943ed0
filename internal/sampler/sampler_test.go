package sampler_test

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/chat-recap/internal/budget"
	"github.com/compresr/chat-recap/internal/chat"
	"github.com/compresr/chat-recap/internal/pipes"
	"github.com/compresr/chat-recap/internal/pipes/compress"
	"github.com/compresr/chat-recap/internal/pipes/density"
	"github.com/compresr/chat-recap/internal/sampler"
)

var base = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func msg(at time.Time, author, text string) chat.Message {
	return chat.Message{Timestamp: at, AuthorID: author, AuthorName: author, Text: text, Kind: chat.KindText}
}

// alternating authors keep every message on its own line
func spread(n int, step time.Duration, text func(i int) string) []chat.Message {
	out := make([]chat.Message, n)
	for i := range out {
		out[i] = msg(base.Add(time.Duration(i)*step), fmt.Sprintf("u%d", i%2), text(i))
	}
	return out
}

func assertChronological(t *testing.T, text string) {
	t.Helper()
	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i++ {
		// "[MM-DD HH:MM]" prefixes sort lexically within one year
		assert.LessOrEqual(t, lines[i-1][:13], lines[i][:13], "line %d out of order", i)
	}
}

// =============================================================================
// LEVEL TESTS
// =============================================================================

func TestSample_Empty(t *testing.T) {
	s := sampler.New(sampler.DefaultConfig(), nil)

	res := s.Sample(nil, 100)

	assert.True(t, res.Empty())
	assert.Equal(t, sampler.Lossless, res.Level)
	assert.Empty(t, res.Text)
}

func TestSample_SmallInputIsLossless(t *testing.T) {
	msgs := spread(50, 5*time.Minute, func(i int) string { return fmt.Sprintf("message number %d", i) })
	s := sampler.New(sampler.DefaultConfig(), nil)

	res := s.Sample(msgs, 1_000_000)

	assert.Equal(t, sampler.Lossless, res.Level)
	assert.Equal(t, 50, res.Lines)
	assert.Equal(t, 50, res.Kept)
	assert.Zero(t, res.Dropped())
	for _, m := range msgs {
		assert.Contains(t, res.Text, m.Text)
	}
}

func TestSample_LosslessKeepsNoiseLines(t *testing.T) {
	msgs := []chat.Message{
		msg(base, "a", "hello"),
		msg(base.Add(2*time.Minute), "b", "ok"),
	}
	s := sampler.New(sampler.DefaultConfig(), nil)

	res := s.Sample(msgs, 1_000_000)

	assert.Equal(t, sampler.Lossless, res.Level)
	assert.Contains(t, res.Text, ": ok")
	assert.Zero(t, res.NoiseDropped)
}

func TestSample_LightCompressionDropsNoise(t *testing.T) {
	var msgs []chat.Message
	for i := 0; i < 20; i++ {
		at := base.Add(time.Duration(i) * 2 * time.Minute)
		if i%2 == 0 {
			msgs = append(msgs, msg(at, "a", fmt.Sprintf("a real sentence with content %d", i)))
		} else {
			msgs = append(msgs, msg(at, "b", "ok"))
		}
	}
	full := budget.NewRatioEstimator(budget.DefaultCharsPerToken).
		Estimate(pipes.Render(compress.Compress(msgs, pipes.DefaultCompressConfig())))
	s := sampler.New(sampler.DefaultConfig(), nil)

	res := s.Sample(msgs, full)

	require.Equal(t, sampler.LightCompression, res.Level)
	assert.Equal(t, 10, res.NoiseDropped)
	assert.Equal(t, 10, res.Kept)
	assert.NotContains(t, res.Text, ": ok")
	assert.Less(t, res.EstimatedUnits, full)
}

// =============================================================================
// SMART FOCUS TESTS
// =============================================================================

func TestSample_YearOfMessagesOverflowsTinyBudget(t *testing.T) {
	step := 365 * 24 * time.Hour / 10_000
	msgs := spread(10_000, step, func(i int) string { return fmt.Sprintf("day message %d", i) })
	s := sampler.New(sampler.DefaultConfig(), nil)

	res := s.Sample(msgs, 100)

	assert.Equal(t, sampler.SmartFocus, res.Level)
	assert.True(t, res.HotOverflow)
	assert.Equal(t, 150, res.TargetChars)
	assert.Equal(t, pipes.DefaultHotWindows, res.Kept, "only hot lines survive")
	assert.Equal(t, 10_000, res.Lines)
	assertChronological(t, res.Text)

	hot, _, _ := density.NewEstimator(pipes.DefaultDensityConfig()).Split(compress.Compress(msgs, pipes.DefaultCompressConfig()))
	assert.Equal(t, utf8.RuneCountInString(pipes.Render(hot)), utf8.RuneCountInString(res.Text), "output is exactly the hot region")
}

// =============================================================================
// PRE-ESTIMATE TESTS
// =============================================================================

func TestSample_RecordsCorpusPreEstimate(t *testing.T) {
	msgs := spread(250, time.Minute, func(i int) string {
		if i < 100 {
			return "short"
		}
		return strings.Repeat("long message ", 10)
	})
	s := sampler.New(sampler.DefaultConfig(), nil)

	res := s.Sample(msgs, 1_000_000)

	lines := compress.Compress(msgs, pipes.DefaultCompressConfig())
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text + "\n"
	}
	want := budget.EstimateCorpus(texts, budget.NewRatioEstimator(budget.DefaultCharsPerToken))
	require.Equal(t, sampler.Lossless, res.Level)
	assert.Equal(t, want, res.CorpusUnits)
	assert.Less(t, res.CorpusUnits, res.EstimatedUnits, "only the first 100 short lines are averaged")
}

func TestSample_EmptyHasNoPreEstimate(t *testing.T) {
	res := sampler.New(sampler.DefaultConfig(), nil).Sample(nil, 100)

	assert.Zero(t, res.CorpusUnits)
}

func TestSample_SmartFocusKeepsHotAndStridesCold(t *testing.T) {
	cfg := sampler.DefaultConfig()
	cfg.Density.HotWindows = 1

	var msgs []chat.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, msg(base.Add(time.Duration(i)*10*time.Second), fmt.Sprintf("u%d", i%2), fmt.Sprintf("burst %d", i)))
	}
	for i := 0; i < 200; i++ {
		msgs = append(msgs, msg(base.Add(2*time.Hour+time.Duration(i)*time.Hour), fmt.Sprintf("u%d", i%2), fmt.Sprintf("cold message %d", i)))
	}
	s := sampler.New(cfg, nil)

	res := s.Sample(msgs, 200)

	require.Equal(t, sampler.SmartFocus, res.Level)
	assert.False(t, res.HotOverflow)
	assert.Equal(t, 5, res.HotLines)
	assert.Equal(t, 200, res.ColdLines)
	assert.Greater(t, res.ColdStride, 1)
	for i := 0; i < 5; i++ {
		assert.Contains(t, res.Text, fmt.Sprintf("burst %d", i))
	}
	assert.Contains(t, res.Text, "cold message 0", "stride starts at the first cold line")
	assert.LessOrEqual(t, utf8.RuneCountInString(res.Text), res.TargetChars)
	assert.Greater(t, res.Kept, 5)
	assertChronological(t, res.Text)
}

func TestSample_EscalationIsMonotonic(t *testing.T) {
	var msgs []chat.Message
	for i := 0; i < 400; i++ {
		text := fmt.Sprintf("talking about topic %d at length", i)
		if i%3 == 0 {
			text = "ok"
		}
		msgs = append(msgs, msg(base.Add(time.Duration(i)*7*time.Minute), fmt.Sprintf("u%d", i%2), text))
	}
	s := sampler.New(sampler.DefaultConfig(), nil)

	prev := sampler.Lossless
	for b := 100_000; b >= 10; b = b * 7 / 10 {
		res := s.Sample(msgs, b)
		assert.GreaterOrEqual(t, res.Level, prev, "budget %d", b)
		prev = res.Level
	}
	assert.Equal(t, sampler.SmartFocus, prev)
}

func TestSample_Deterministic(t *testing.T) {
	msgs := spread(300, 3*time.Minute, func(i int) string { return fmt.Sprintf("m%d", i) })
	s := sampler.New(sampler.DefaultConfig(), nil)

	assert.Equal(t, s.Sample(msgs, 50), s.Sample(msgs, 50))
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "lossless", sampler.Lossless.String())
	assert.Equal(t, "light_compression", sampler.LightCompression.String())
	assert.Equal(t, "smart_focus", sampler.SmartFocus.String())

	text, err := sampler.SmartFocus.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "smart_focus", string(text))
}

func TestSample_SingleAuthorLineCountMatchesGroups(t *testing.T) {
	var msgs []chat.Message
	for i := 0; i < 50; i++ {
		// 45s gaps merge; every 10th message opens a new group
		gap := 45 * time.Second
		if i%10 == 0 {
			gap = 5 * time.Minute
		}
		at := base
		if i > 0 {
			at = msgs[i-1].Timestamp.Add(gap)
		}
		msgs = append(msgs, msg(at, "solo", fmt.Sprintf("s%d", i)))
	}
	groups := compress.Groups(msgs, pipes.DefaultCompressConfig())
	s := sampler.New(sampler.DefaultConfig(), nil)

	res := s.Sample(msgs, 1_000_000)

	assert.Equal(t, sampler.Lossless, res.Level)
	assert.Len(t, groups, 5)
	assert.Equal(t, len(groups), res.Kept)
	assert.Len(t, strings.Split(res.Text, "\n"), len(groups))
	assert.Zero(t, res.NoiseDropped)
}

func TestSample_SingleGroupAtEveryLevel(t *testing.T) {
	msgs := []chat.Message{
		msg(base, "a", "one"),
		msg(base.Add(10*time.Second), "a", "two"),
	}
	s := sampler.New(sampler.DefaultConfig(), nil)

	for _, b := range []int{1_000_000, 14, 1} {
		res := s.Sample(msgs, b)
		assert.Equal(t, 1, res.Lines, "budget %d", b)
		assert.NotEmpty(t, res.Text, "budget %d", b)
	}
}
