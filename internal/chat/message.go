// Package chat defines the normalized chat event shared by every stage.
//
// DESIGN: Messages are produced once (by internal/chatlog or any other
// parser) and never mutated afterwards. Derived views (groups, segments,
// density windows) are recomputed per run and never stored here.
package chat

import (
	"sort"
	"strings"
	"time"
)

// Kind classifies what a message carries.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindFile     Kind = "file"
	KindMixed    Kind = "mixed"
	KindRecalled Kind = "recalled"
)

// Sentinel values for missing sender fields.
const (
	UnknownAuthorID   = "unknown"
	UnknownAuthorName = "Unknown"
)

// Message is one chat event.
type Message struct {
	Timestamp  time.Time `json:"timestamp"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	Kind       Kind      `json:"kind"`
	ImageCount int       `json:"image_count"`
}

// Normalize returns a copy of m with defaults applied.
// A zero timestamp is replaced by now (the ingestion time); an empty or
// unknown kind becomes KindText.
func (m Message) Normalize(now time.Time) Message {
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	if strings.TrimSpace(m.AuthorID) == "" {
		m.AuthorID = UnknownAuthorID
	}
	if strings.TrimSpace(m.AuthorName) == "" {
		m.AuthorName = UnknownAuthorName
	}
	if !IsValidKind(m.Kind) {
		m.Kind = KindText
	}
	if m.ImageCount < 0 {
		m.ImageCount = 0
	}
	return m
}

// IsValidKind reports whether k is one of the known kinds.
func IsValidKind(k Kind) bool {
	switch k {
	case KindText, KindImage, KindVideo, KindFile, KindMixed, KindRecalled:
		return true
	}
	return false
}

// SortedCopy returns a time-ordered copy of messages.
// The sort is stable so equal timestamps keep their input order.
func SortedCopy(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Span returns the earliest and latest timestamps in messages.
// ok is false for an empty slice.
func Span(messages []Message) (first, last time.Time, ok bool) {
	if len(messages) == 0 {
		return time.Time{}, time.Time{}, false
	}
	first, last = messages[0].Timestamp, messages[0].Timestamp
	for _, m := range messages[1:] {
		if m.Timestamp.Before(first) {
			first = m.Timestamp
		}
		if m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}
	return first, last, true
}
