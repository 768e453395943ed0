// Package segment partitions a chat history into analysis segments.
//
// DESIGN: Two-tier policy.
//
//	quarterly  target year cut into [Jan 1, Apr 1) ... [Oct 1, Jan 1 next)
//	periodic   all messages, time-sorted, cut into equal-volume chunks
//
// Quarterly is the default. Periodic replaces it when the history is large
// enough to judge (>= MinMessages) and either one quarter dominates
// (> Concentration of all traffic) or the history is short (< MinSpanDays).
package segment

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/chat-recap/internal/chat"
)

// Mode names the segmentation policy that produced a Segmentation.
type Mode string

const (
	ModeQuarterly Mode = "quarterly"
	ModePeriodic  Mode = "periodic"
)

// QuarterLabels are the segment names used in quarterly mode.
var QuarterLabels = [4]string{"First_quarter", "Second_quarter", "Third_quarter", "Fourth_quarter"}

// =============================================================================
// CONFIG
// =============================================================================

// Config holds the fallback thresholds.
type Config struct {
	MinMessages   int     `yaml:"min_messages"`  // below this quarters are always used (default: 100)
	Concentration float64 `yaml:"concentration"` // max quarter share before falling back (default: 0.8)
	MinSpanDays   int     `yaml:"min_span_days"` // shortest history judged by quarters (default: 200)
	Chunks        int     `yaml:"chunks"`        // equal-volume chunk count (default: 4)
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{MinMessages: 100, Concentration: 0.8, MinSpanDays: 200, Chunks: 4}
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	if c.MinMessages < 0 {
		return fmt.Errorf("min_messages must not be negative, got %d", c.MinMessages)
	}
	if c.Concentration <= 0 || c.Concentration > 1 {
		return fmt.Errorf("concentration must be in (0, 1], got %v", c.Concentration)
	}
	if c.MinSpanDays < 0 {
		return fmt.Errorf("min_span_days must not be negative, got %d", c.MinSpanDays)
	}
	if c.Chunks <= 0 {
		return fmt.Errorf("chunks must be positive, got %d", c.Chunks)
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Concentration <= 0 {
		c.Concentration = d.Concentration
	}
	if c.Chunks <= 0 {
		c.Chunks = d.Chunks
	}
	return c
}

// =============================================================================
// TYPES
// =============================================================================

// Segment is a named, time-bounded slice of messages. Messages is
// time-sorted and may be empty.
type Segment struct {
	Label    string         `json:"label"`
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"` // exclusive for quarters, last message for periods
	Messages []chat.Message `json:"-"`
}

// Empty reports whether the segment has no messages.
func (s Segment) Empty() bool { return len(s.Messages) == 0 }

// Segmentation is the ordered result of Split.
type Segmentation struct {
	Mode       Mode      `json:"mode"`
	TargetYear int       `json:"target_year"`
	Segments   []Segment `json:"segments"`

	// MaxRatio and DaysCovered are the statistics the fallback was judged on.
	MaxRatio    float64 `json:"max_ratio"`
	DaysCovered int     `json:"days_covered"`
}

// Periodic reports whether the equal-volume fallback was used.
func (s Segmentation) Periodic() bool { return s.Mode == ModePeriodic }

// Lookup returns the segment with the given label.
func (s Segmentation) Lookup(label string) (Segment, bool) {
	for _, seg := range s.Segments {
		if seg.Label == label {
			return seg, true
		}
	}
	return Segment{}, false
}

// Labels returns segment labels in order.
func (s Segmentation) Labels() []string {
	labels := make([]string, len(s.Segments))
	for i, seg := range s.Segments {
		labels[i] = seg.Label
	}
	return labels
}

// Total returns the number of messages across all segments.
func (s Segmentation) Total() int {
	n := 0
	for _, seg := range s.Segments {
		n += len(seg.Messages)
	}
	return n
}

// NonEmpty returns the segments that carry messages, in order.
func (s Segmentation) NonEmpty() []Segment {
	var out []Segment
	for _, seg := range s.Segments {
		if !seg.Empty() {
			out = append(out, seg)
		}
	}
	return out
}

// =============================================================================
// SPLIT
// =============================================================================

// Split segments messages. The input is not modified.
func Split(messages []chat.Message, cfg Config) Segmentation {
	cfg = cfg.withDefaults()
	sorted := chat.SortedCopy(messages)
	if len(sorted) == 0 {
		return Segmentation{Mode: ModeQuarterly, Segments: Quarters(nil, 0, time.UTC)}
	}

	loc := sorted[0].Timestamp.Location()
	year := TargetYear(sorted)
	quarters := Quarters(sorted, year, loc)
	result := Segmentation{Mode: ModeQuarterly, TargetYear: year, Segments: quarters}

	total := len(sorted)
	if total < cfg.MinMessages {
		return result
	}

	largest := 0
	for _, q := range quarters {
		if len(q.Messages) > largest {
			largest = len(q.Messages)
		}
	}
	result.MaxRatio = float64(largest) / float64(total)
	result.DaysCovered = DaysCovered(sorted)

	if result.MaxRatio > cfg.Concentration || result.DaysCovered < cfg.MinSpanDays {
		log.Info().
			Int("year", year).
			Float64("max_ratio", result.MaxRatio).
			Int("days_covered", result.DaysCovered).
			Msg("Skewed or short history, using equal-volume periods")
		result.Mode = ModePeriodic
		result.Segments = Periods(sorted, cfg.Chunks)
	}
	return result
}

// TargetYear returns the calendar year holding the most messages.
// Ties go to the smallest year. messages must be non-empty.
func TargetYear(messages []chat.Message) int {
	counts := make(map[int]int)
	for _, m := range messages {
		counts[m.Timestamp.Year()]++
	}
	best, bestCount := 0, -1
	for y, n := range counts {
		if n > bestCount || (n == bestCount && y < best) {
			best, bestCount = y, n
		}
	}
	return best
}

// Quarters cuts the target year into four calendar quarters in loc.
// Messages outside the year are excluded. sorted must be time-ordered.
func Quarters(sorted []chat.Message, year int, loc *time.Location) []Segment {
	if loc == nil {
		loc = time.UTC
	}
	segs := make([]Segment, 4)
	for i := range segs {
		segs[i] = Segment{
			Label: QuarterLabels[i],
			Start: time.Date(year, time.Month(3*i+1), 1, 0, 0, 0, 0, loc),
			End:   time.Date(year, time.Month(3*i+4), 1, 0, 0, 0, 0, loc), // month 13 normalizes to Jan 1 next year
		}
	}
	for _, m := range sorted {
		for i := range segs {
			if !m.Timestamp.Before(segs[i].Start) && m.Timestamp.Before(segs[i].End) {
				segs[i].Messages = append(segs[i].Messages, m)
				break
			}
		}
	}
	return segs
}

// Periods cuts sorted messages into n contiguous chunks of len/n messages;
// the last chunk takes the remainder. Chunks are labelled
// "Period_i (MM.DD-MM.DD)" from their own first and last message.
func Periods(sorted []chat.Message, n int) []Segment {
	if n <= 0 {
		n = 4
	}
	size := len(sorted) / n
	segs := make([]Segment, n)
	for i := range segs {
		lo := i * size
		hi := lo + size
		if i == n-1 {
			hi = len(sorted)
		}
		chunk := sorted[lo:hi]
		seg := Segment{Label: fmt.Sprintf("Period_%d (No Data)", i+1)}
		if len(chunk) > 0 {
			seg.Messages = chunk
			seg.Start = chunk[0].Timestamp
			seg.End = chunk[len(chunk)-1].Timestamp
			seg.Label = fmt.Sprintf("Period_%d (%s-%s)", i+1, seg.Start.Format("01.02"), seg.End.Format("01.02"))
		}
		segs[i] = seg
	}
	return segs
}

// DaysCovered returns the whole days between the first and last message of
// a time-sorted slice.
func DaysCovered(sorted []chat.Message) int {
	if len(sorted) < 2 {
		return 0
	}
	return int(sorted[len(sorted)-1].Timestamp.Sub(sorted[0].Timestamp) / (24 * time.Hour))
}
