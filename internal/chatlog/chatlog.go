// Package chatlog parses QQChatExporter JSON exports into chat messages.
//
// DESIGN: The export is read with gjson rather than unmarshalled into
// structs. Real exports disagree on field types (numeric vs string uin,
// epoch vs ISO timestamps) and a single odd message must not fail the file.
//
// FIELD MAPPING:
//
//	sender.uin, then sender.uid       -> AuthorID   (default "unknown")
//	sender.card, then sender.name     -> AuthorName (default "Unknown")
//	content.text                      -> Text
//	content.resources[].type          -> Kind, ImageCount
//	isRecalled                        -> Kind recalled (overrides)
//	timestamp                         -> Timestamp  (default ingestion time)
package chatlog

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/compresr/chat-recap/internal/chat"
)

// ErrInvalidJSON is returned for input that is not a JSON document.
var ErrInvalidJSON = errors.New("chatlog: invalid JSON")

// UnknownChatName is used when the export has no chat name.
const UnknownChatName = "Unknown Group"

// naive layouts are interpreted in Parser.Location
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
}

// Meta is export-level metadata.
type Meta struct {
	ChatName      string `json:"chat_name"`
	DeclaredTotal int    `json:"declared_total"`
	Start         string `json:"start,omitempty"`
	End           string `json:"end,omitempty"`

	// Parsed and Defaulted count messages read and timestamps replaced by
	// the ingestion time.
	Parsed    int `json:"parsed"`
	Defaulted int `json:"defaulted_timestamps"`
}

// Export is a parsed chat export.
type Export struct {
	Meta     Meta
	Messages []chat.Message
}

// Parser converts exports into messages.
type Parser struct {
	// Location interprets timestamps without a zone. Defaults to time.Local.
	Location *time.Location
	// Now supplies the ingestion time. Defaults to time.Now.
	Now func() time.Time
}

// NewParser creates a parser for the given location.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{Location: loc, Now: time.Now}
}

// ParseFile reads and parses an export file.
func (p *Parser) ParseFile(path string) (*Export, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return p.Parse(data)
}

// Parse parses an export document. Messages are returned time-sorted.
func (p *Parser) Parse(data []byte) (*Export, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: top level is not an object", ErrInvalidJSON)
	}

	now := p.now().In(p.location())
	exp := &Export{Meta: Meta{
		ChatName:      doc.Get("chatInfo.name").String(),
		DeclaredTotal: int(doc.Get("statistics.totalMessages").Int()),
		Start:         doc.Get("statistics.timeRange.start").String(),
		End:           doc.Get("statistics.timeRange.end").String(),
	}}
	if strings.TrimSpace(exp.Meta.ChatName) == "" {
		exp.Meta.ChatName = UnknownChatName
	}

	doc.Get("messages").ForEach(func(_, raw gjson.Result) bool {
		if !raw.IsObject() {
			return true
		}
		msg, defaulted := p.message(raw, now)
		if defaulted {
			exp.Meta.Defaulted++
		}
		exp.Messages = append(exp.Messages, msg)
		return true
	})
	exp.Messages = chat.SortedCopy(exp.Messages)
	exp.Meta.Parsed = len(exp.Messages)

	log.Debug().
		Str("chat", exp.Meta.ChatName).
		Int("parsed", exp.Meta.Parsed).
		Int("declared", exp.Meta.DeclaredTotal).
		Int("defaulted_timestamps", exp.Meta.Defaulted).
		Msg("Chat export parsed")
	return exp, nil
}

func (p *Parser) message(raw gjson.Result, now time.Time) (chat.Message, bool) {
	ts, ok := p.ParseTimestamp(raw.Get("timestamp"))

	msg := chat.Message{
		Timestamp:  ts,
		AuthorID:   firstNonEmpty(raw.Get("sender.uin"), raw.Get("sender.uid")),
		AuthorName: firstNonEmpty(raw.Get("sender.card"), raw.Get("sender.name")),
		Text:       raw.Get("content.text").String(),
		Kind:       chat.KindText,
	}

	resources := raw.Get("content.resources").Array()
	if len(resources) > 0 {
		var hasImage, hasVideo, hasFile bool
		for _, r := range resources {
			switch r.Get("type").String() {
			case "image":
				hasImage = true
				msg.ImageCount++
			case "video":
				hasVideo = true
			case "file":
				hasFile = true
			}
		}
		switch {
		case hasImage:
			msg.Kind = chat.KindImage
		case hasVideo:
			msg.Kind = chat.KindVideo
		case hasFile:
			msg.Kind = chat.KindFile
		}
		if msg.Text != "" {
			msg.Kind = chat.KindMixed
		}
	}
	if raw.Get("isRecalled").Bool() {
		msg.Kind = chat.KindRecalled
	}

	return msg.Normalize(now), !ok
}

// ParseTimestamp accepts RFC 3339 strings, naive "YYYY-MM-DD HH:MM:SS"
// style strings (in p.Location) and epoch seconds or milliseconds, as
// numbers or digit strings. Results are always in p.Location so calendar
// arithmetic downstream sees one zone. ok is false when nothing usable was
// found.
func (p *Parser) ParseTimestamp(v gjson.Result) (time.Time, bool) {
	loc := p.location()
	switch v.Type {
	case gjson.Number:
		return fromEpoch(v.Int(), loc)
	case gjson.String:
		s := strings.TrimSpace(v.String())
		if s == "" {
			return time.Time{}, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpoch(n, loc)
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.In(loc), true
		}
		for _, layout := range timeLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// values above this are milliseconds (year 5138 in seconds)
const epochMillisThreshold = 100_000_000_000

func fromEpoch(n int64, loc *time.Location) (time.Time, bool) {
	if n <= 0 {
		return time.Time{}, false
	}
	if n >= epochMillisThreshold {
		return time.UnixMilli(n).In(loc), true
	}
	return time.Unix(n, 0).In(loc), true
}

func firstNonEmpty(values ...gjson.Result) string {
	for _, v := range values {
		if s := strings.TrimSpace(v.String()); s != "" && v.Type != gjson.Null {
			return s
		}
	}
	return ""
}

func (p *Parser) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

func (p *Parser) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
