// Package pipes defines the formatted-line model shared by the compression
// stages and the Pipe interface they implement.
//
// DESIGN: Three independent stage packages operate on []Line:
//   - compress/: Messages -> merged display lines (one per MessageGroup)
//   - noise/:    Drop low-information filler lines
//   - density/:  Bucket lines into fixed windows, locate hot spots
//
// FLOW:
//  1. compress.Compress turns time-sorted messages into lines
//  2. Lines flow through zero or more Pipes (noise filtering)
//  3. The sampler decides which lines are rendered into the final blob
//
// NOTE: Stage configuration types are defined in config.go in this package.
package pipes

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Line is one rendered MessageGroup.
type Line struct {
	// Time is the first member's timestamp; lines sort by it.
	Time time.Time

	AuthorID string
	Author   string

	// Content is the merged message part (everything after "Author: ").
	Content string

	// Text is the full rendered line: "[MM-DD HH:MM] Author: Content".
	Text string

	// Members is the number of messages merged into this line.
	Members int
}

// Len returns the rendered length in runes.
func (l Line) Len() int {
	return utf8.RuneCountInString(l.Text)
}

// Cost returns the character cost of lines once rendered, counting one
// newline per line. Render(lines) is always strictly shorter than Cost(lines).
func Cost(lines []Line) int {
	total := 0
	for _, l := range lines {
		total += l.Len() + 1
	}
	return total
}

// Render joins lines with newlines.
func Render(lines []Line) string {
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Text)
	}
	return b.String()
}

// Pipe defines a line-level transformation.
// Pipes must not reorder lines or modify surviving lines.
type Pipe interface {
	// Name returns the pipe identifier.
	Name() string

	// Enabled returns whether this pipe is active.
	Enabled() bool

	// Process returns the lines that survive this pipe.
	Process(lines []Line) []Line
}
