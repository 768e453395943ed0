// Response parsing and placeholders.
//
// Generator replies are fence-stripped, then validated with gjson against a
// minimal schema. Anything that fails validation becomes a placeholder with
// "failed": true so the report shows the section as degraded.
package mapreduce

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// TheaterFallback fills a reduce reply that omitted anime_theater.
const TheaterFallback = "<h3>Theater</h3><p>(The generator skipped the theater script, probably because of the token limit. Try a larger budget or run again.)</p>"

// ReduceSections are the HTML sections of an aggregate report.
var ReduceSections = []struct{ Key, Title string }{
	{"portrait", "Portrait"},
	{"quarterly_review", "Review"},
	{"roasts", "Roasts"},
	{"awards", "Awards"},
	{"anime_theater", "Theater"},
	{"moments", "Moments"},
	{"essay", "Essay"},
}

// StripFences removes one leading ```json or ``` fence and one trailing ```
// fence, plus surrounding whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseMap validates a map reply: a JSON object with a non-empty string
// "summary".
func ParseMap(reply string) (json.RawMessage, error) {
	body := StripFences(reply)
	if err := requireObject(body); err != nil {
		return nil, err
	}
	summary := gjson.Get(body, "summary")
	if summary.Type != gjson.String || strings.TrimSpace(summary.String()) == "" {
		return nil, errors.New(`reply has no "summary" string`)
	}
	return json.RawMessage(body), nil
}

// ParseReduce validates a reduce reply: a JSON object with a string
// "portrait". A missing or empty anime_theater is filled with
// TheaterFallback.
func ParseReduce(reply string) (json.RawMessage, error) {
	body := StripFences(reply)
	if err := requireObject(body); err != nil {
		return nil, err
	}
	if gjson.Get(body, "portrait").Type != gjson.String {
		return nil, errors.New(`reply has no "portrait" string`)
	}
	if strings.TrimSpace(gjson.Get(body, "anime_theater").String()) == "" {
		patched, err := sjson.Set(body, "anime_theater", TheaterFallback)
		if err != nil {
			return nil, fmt.Errorf("patch anime_theater: %w", err)
		}
		body = patched
	}
	return json.RawMessage(body), nil
}

func requireObject(body string) error {
	if !gjson.Valid(body) {
		return errors.New("reply is not valid JSON")
	}
	if !gjson.Parse(body).IsObject() {
		return errors.New("reply is not a JSON object")
	}
	return nil
}

// MapPlaceholder is the degraded result for a failed segment.
func MapPlaceholder(label string, cause error) json.RawMessage {
	body := `{"characters":{},"relations":[],"vibe":"unknown","failed":true}`
	body, _ = sjson.Set(body, "summary", label+" analysis failed")
	if cause != nil {
		body, _ = sjson.Set(body, "error", cause.Error())
	}
	return json.RawMessage(body)
}

// ReducePlaceholder is the degraded aggregate report.
func ReducePlaceholder(cause error) json.RawMessage {
	body := `{"failed":true}`
	for _, s := range ReduceSections {
		body, _ = sjson.Set(body, s.Key, "<h3>"+s.Title+"</h3><p>generation failed</p>")
	}
	if cause != nil {
		body, _ = sjson.Set(body, "error", cause.Error())
	}
	return json.RawMessage(body)
}
