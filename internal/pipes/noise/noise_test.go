package noise_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/chat-recap/internal/pipes"
	"github.com/compresr/chat-recap/internal/pipes/noise"
)

func line(i int, content string) pipes.Line {
	return pipes.Line{
		Time:    time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC),
		Author:  "A",
		Content: content,
		Text:    "[01-01 00:00] A: " + content,
	}
}

func TestFilter_DropsStoplistEntries(t *testing.T) {
	f := noise.New(pipes.DefaultNoiseConfig())

	tests := []struct {
		content string
		noise   bool
	}{
		{"ok", true},
		{"OK", true},
		{" Ok ", true},
		{"1", true},
		{"6", true},
		{"好的", true},
		{"嗯", true},
		{"ok | see you", false},
		{"okay then, 10:30 works", false},
		{"12", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			assert.Equal(t, tt.noise, f.IsNoise(tt.content))
		})
	}
}

func TestFilter_ProcessKeepsSurvivorsUntouchedInOrder(t *testing.T) {
	f := noise.New(pipes.DefaultNoiseConfig())
	lines := []pipes.Line{
		line(0, "first real message"),
		line(1, "ok"),
		line(2, "second: with colon"),
		line(3, "哈"),
		line(4, "third"),
	}

	out := f.Process(lines)

	require.Len(t, out, 3)
	assert.Equal(t, lines[0], out[0])
	assert.Equal(t, lines[2], out[1])
	assert.Equal(t, lines[4], out[2])
}

func TestFilter_EmptyStoplistIsPassthrough(t *testing.T) {
	f := noise.New(pipes.NoiseConfig{Words: []string{"", "  "}})
	lines := []pipes.Line{line(0, "ok")}

	assert.False(t, f.Enabled())
	assert.Equal(t, lines, f.Process(lines))
	assert.Equal(t, "noise", f.Name())
}
