// Package stats computes whole-corpus statistics: totals, rankings and
// activity histograms. The result feeds the reduce prompt and the report.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/compresr/chat-recap/internal/chat"
)

// Defaults for Compute.
const (
	DefaultTopN              = 5
	DefaultActiveMinMessages = 5
)

// Hour bands, [start, end).
const (
	NightOwlStart   = 0
	NightOwlEnd     = 5
	EarlyBirdStart  = 5
	EarlyBirdEnd    = 8
	hoursPerDay     = 24
	dailyDateLayout = "2006-01-02"
)

// Options tunes Compute.
type Options struct {
	TopN int `yaml:"top_n"`
	// ActiveMinMessages is the message count at which a member stops being
	// counted as silent.
	ActiveMinMessages int `yaml:"active_min_messages"`
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{TopN: DefaultTopN, ActiveMinMessages: DefaultActiveMinMessages}
}

// Rank is one leaderboard row.
type Rank struct {
	AuthorID string `json:"author_id"`
	Name     string `json:"name"`
	Count    int    `json:"count"`
}

// DayCount is the number of messages on one calendar day.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Stats is the statistics block of a run.
type Stats struct {
	TotalMessages int `json:"total_messages"`
	TotalUsers    int `json:"total_users"`
	ActiveUsers   int `json:"active_users"`
	SilentUsers   int `json:"silent_users"`
	TotalImages   int `json:"total_images"`
	TotalRecalled int `json:"total_recalled"`
	DaysCovered   int `json:"days_covered"`

	TopTalkers      []Rank `json:"top_talkers"`
	TopImageSenders []Rank `json:"top_image_senders"`
	NightOwls       []Rank `json:"night_owls"`
	EarlyBirds      []Rank `json:"early_birds"`

	Hourly [hoursPerDay]int `json:"hourly"`
	Daily  []DayCount       `json:"daily"`
}

type tally struct {
	name     string
	messages int
	images   int
	night    int
	morning  int
}

// Compute builds Stats over messages in any order.
func Compute(messages []chat.Message, opts Options) *Stats {
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.ActiveMinMessages <= 0 {
		opts.ActiveMinMessages = DefaultActiveMinMessages
	}

	s := &Stats{TotalMessages: len(messages), Daily: []DayCount{}}
	if len(messages) == 0 {
		s.TopTalkers, s.TopImageSenders, s.NightOwls, s.EarlyBirds = []Rank{}, []Rank{}, []Rank{}, []Rank{}
		return s
	}

	users := make(map[string]*tally)
	days := make(map[string]int)
	for _, m := range chat.SortedCopy(messages) {
		t := users[m.AuthorID]
		if t == nil {
			t = &tally{}
			users[m.AuthorID] = t
		}
		// latest display name wins
		t.name = m.AuthorName
		t.messages++
		t.images += m.ImageCount

		hour := m.Timestamp.Hour()
		s.Hourly[hour]++
		switch {
		case hour >= NightOwlStart && hour < NightOwlEnd:
			t.night++
		case hour >= EarlyBirdStart && hour < EarlyBirdEnd:
			t.morning++
		}
		days[m.Timestamp.Format(dailyDateLayout)]++

		s.TotalImages += m.ImageCount
		if m.Kind == chat.KindRecalled {
			s.TotalRecalled++
		}
	}

	s.TotalUsers = len(users)
	for _, t := range users {
		if t.messages >= opts.ActiveMinMessages {
			s.ActiveUsers++
		}
	}
	s.SilentUsers = s.TotalUsers - s.ActiveUsers

	if first, last, ok := chat.Span(messages); ok {
		s.DaysCovered = int(last.Sub(first) / (24 * time.Hour))
	}

	s.TopTalkers = rank(users, opts.TopN, func(t *tally) int { return t.messages })
	s.TopImageSenders = rank(users, opts.TopN, func(t *tally) int { return t.images })
	s.NightOwls = rank(users, opts.TopN, func(t *tally) int { return t.night })
	s.EarlyBirds = rank(users, opts.TopN, func(t *tally) int { return t.morning })

	for date, n := range days {
		s.Daily = append(s.Daily, DayCount{Date: date, Count: n})
	}
	sort.Slice(s.Daily, func(i, j int) bool { return s.Daily[i].Date < s.Daily[j].Date })
	return s
}

// rank orders users by metric descending, then name and id ascending.
// Users with a zero metric are left out.
func rank(users map[string]*tally, topN int, metric func(*tally) int) []Rank {
	out := make([]Rank, 0, len(users))
	for id, t := range users {
		if n := metric(t); n > 0 {
			out = append(out, Rank{AuthorID: id, Name: t.name, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].AuthorID < out[j].AuthorID
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// PromptSummary renders the statistics lines of the reduce prompt.
func (s *Stats) PromptSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Total messages: %d\n", s.TotalMessages)
	fmt.Fprintf(&b, "- Active members: %d\n", s.ActiveUsers)
	fmt.Fprintf(&b, "- Silent members: %d\n", s.SilentUsers)
	fmt.Fprintf(&b, "- Images shared: %d\n", s.TotalImages)
	fmt.Fprintf(&b, "- Recalled messages: %d\n", s.TotalRecalled)
	fmt.Fprintf(&b, "- Days covered: %d\n", s.DaysCovered)
	fmt.Fprintf(&b, "- Top talkers: %s\n", formatRanks(s.TopTalkers))
	fmt.Fprintf(&b, "- Top image senders: %s\n", formatRanks(s.TopImageSenders))
	fmt.Fprintf(&b, "- Night owls (%02d:00-%02d:00): %s\n", NightOwlStart, NightOwlEnd, formatRanks(s.NightOwls))
	fmt.Fprintf(&b, "- Early birds (%02d:00-%02d:00): %s", EarlyBirdStart, EarlyBirdEnd, formatRanks(s.EarlyBirds))
	return b.String()
}

// PeakHour returns the busiest hour of day, lowest hour on ties.
func (s *Stats) PeakHour() int {
	peak := 0
	for h, n := range s.Hourly {
		if n > s.Hourly[peak] {
			peak = h
		}
	}
	return peak
}

func formatRanks(ranks []Rank) string {
	if len(ranks) == 0 {
		return "none"
	}
	parts := make([]string, len(ranks))
	for i, r := range ranks {
		parts[i] = fmt.Sprintf("%s (%d)", r.Name, r.Count)
	}
	return strings.Join(parts, ", ")
}
