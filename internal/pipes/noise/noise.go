// Package noise drops filler lines ("ok", "1", interjections) from a
// compressed sequence.
//
// Matching is exact on the trimmed content part and case-insensitive, so
// "OK" and "ok" are both filler. Merged lines ("ok | see you") never match.
// Surviving lines are returned untouched and in order.
package noise

import (
	"strings"

	"github.com/compresr/chat-recap/internal/pipes"
)

// Filter is the noise-filter pipe.
type Filter struct {
	words map[string]struct{}
}

// New creates a filter for the given stoplist.
func New(cfg pipes.NoiseConfig) *Filter {
	f := &Filter{words: make(map[string]struct{}, len(cfg.Words))}
	for _, w := range cfg.Words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		f.words[w] = struct{}{}
	}
	return f
}

// Name implements pipes.Pipe.
func (f *Filter) Name() string { return "noise" }

// Enabled implements pipes.Pipe.
func (f *Filter) Enabled() bool { return len(f.words) > 0 }

// IsNoise reports whether content is a stoplist entry.
func (f *Filter) IsNoise(content string) bool {
	_, ok := f.words[strings.ToLower(strings.TrimSpace(content))]
	return ok
}

// Process implements pipes.Pipe.
func (f *Filter) Process(lines []pipes.Line) []pipes.Line {
	if !f.Enabled() {
		return lines
	}
	out := make([]pipes.Line, 0, len(lines))
	for _, l := range lines {
		if f.IsNoise(l.Content) {
			continue
		}
		out = append(out, l)
	}
	return out
}

var _ pipes.Pipe = (*Filter)(nil)
