// Package compress merges consecutive same-author messages into display lines.
//
// Strategy: single stable forward pass over a time-sorted copy. A message
// joins the open group iff it has the same author id and arrived less than
// MergeWindow after the group's previous message. Non-text kinds are turned
// into bracketed tags first, so merge decisions see the final display text.
package compress

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/compresr/chat-recap/internal/chat"
	"github.com/compresr/chat-recap/internal/pipes"
)

// Display tags for non-text kinds.
const (
	TagImage    = "[image]"
	TagVideo    = "[video]"
	TagRecalled = "[message recalled]"

	// Separator joins merged member texts.
	Separator = " | "

	// Ellipsis marks a truncated merge.
	Ellipsis = "..."

	// TimeLayout renders a group's display timestamp.
	TimeLayout = "01-02 15:04"
)

// Group is a run of same-author messages within the merge window.
type Group struct {
	AuthorID string
	Author   string
	Start    time.Time // first member
	End      time.Time // last member
	Parts    []string
}

// Text returns the merged member texts, truncated to maxChars runes.
func (g Group) Text(maxChars int) string {
	merged := strings.Join(g.Parts, Separator)
	if maxChars > 0 && utf8.RuneCountInString(merged) > maxChars {
		runes := []rune(merged)
		merged = string(runes[:maxChars]) + Ellipsis
	}
	return merged
}

// Line renders the group as a display line.
func (g Group) Line(maxChars int) pipes.Line {
	content := g.Text(maxChars)
	return pipes.Line{
		Time:     g.Start,
		AuthorID: g.AuthorID,
		Author:   g.Author,
		Content:  content,
		Text:     "[" + g.Start.Format(TimeLayout) + "] " + g.Author + ": " + content,
		Members:  len(g.Parts),
	}
}

// DisplayText returns the text a message contributes to a group.
// Image, video and recalled messages render as tags; everything else uses
// its trimmed text. An empty result means the message is dropped.
func DisplayText(m chat.Message) string {
	switch m.Kind {
	case chat.KindImage:
		return TagImage
	case chat.KindVideo:
		return TagVideo
	case chat.KindRecalled:
		return TagRecalled
	}
	return strings.TrimSpace(m.Text)
}

// Groups partitions messages into MessageGroups.
func Groups(messages []chat.Message, cfg pipes.CompressConfig) []Group {
	if len(messages) == 0 {
		return nil
	}
	window := cfg.MergeWindow
	if window <= 0 {
		window = pipes.DefaultMergeWindow
	}

	var groups []Group
	var cur *Group

	for _, m := range chat.SortedCopy(messages) {
		text := DisplayText(m)
		if text == "" {
			continue
		}
		if cur != nil && m.AuthorID == cur.AuthorID && m.Timestamp.Sub(cur.End) < window {
			cur.Parts = append(cur.Parts, text)
			cur.End = m.Timestamp
			continue
		}
		if cur != nil {
			groups = append(groups, *cur)
		}
		cur = &Group{
			AuthorID: m.AuthorID,
			Author:   m.AuthorName,
			Start:    m.Timestamp,
			End:      m.Timestamp,
			Parts:    []string{text},
		}
	}
	if cur != nil {
		groups = append(groups, *cur)
	}
	return groups
}

// Compress renders messages as one line per MessageGroup.
func Compress(messages []chat.Message, cfg pipes.CompressConfig) []pipes.Line {
	groups := Groups(messages, cfg)
	if len(groups) == 0 {
		return nil
	}
	maxChars := cfg.MaxMergedChars
	if maxChars <= 0 {
		maxChars = pipes.DefaultMaxMergedChars
	}
	lines := make([]pipes.Line, len(groups))
	for i, g := range groups {
		lines[i] = g.Line(maxChars)
	}
	return lines
}
