package external

import (
	"context"
	"sync/atomic"
	"unicode/utf8"

	"github.com/tidwall/sjson"
)

const mockMapReply = `{
  "summary": "A quiet stretch punctuated by one long evening argument about snacks.",
  "vibe": "relaxed, teasing",
  "active_members": [],
  "inactive_members": [],
  "events": ["The snack debate"],
  "memes_born": ["+1 chains"],
  "memes_died": [],
  "mvp": "Whoever kept the thread alive after midnight.",
  "characters": {},
  "relations": []
}`

const mockReduceReply = `{
  "style_config": {"primary_color": "#5b6ee1", "secondary_color": "#f6b93b", "background_color": "#f5f6fa", "card_bg": "#ffffff", "text_color": "#2f3640", "font_family": "sans-serif"},
  "keywords": ["snacks", "late nights", "+1"],
  "portrait": "<h3>Portrait</h3><p>A night-owl group that answers everything with a laugh.</p>",
  "timeline": "<h3>Timeline</h3><ul><li>The snack debate</li></ul>",
  "quarterly_review": "<h3>Review</h3><p>Steady chatter with a few bursts.</p>",
  "roasts": "<h3>Roasts</h3><p>Everyone typed ok at least once too often.</p>",
  "awards": "<h3>Awards</h3><p>Best supporting +1.</p>",
  "anime_theater": "<h3>Theater</h3><p>A: what did we even talk about? B: +1</p>",
  "moments": "<h3>Moments</h3><p>The recalled message everyone saw anyway.</p>",
  "essay": "<h3>Essay</h3><p>Another year of small talk that added up to something.</p>"
}`

// MockGenerator returns canned structured replies without any network
// access. It is selected by llm.mode: mock.
type MockGenerator struct {
	calls atomic.Int64
}

// NewMockGenerator creates a mock generator.
func NewMockGenerator() *MockGenerator { return &MockGenerator{} }

// Generate returns the reduce reply for PhaseReduce requests and the map
// reply otherwise. The map reply records the prompt size for debugging.
func (m *MockGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", &CallError{Kind: KindTimeout, Provider: ModeMock, Err: err}
	}
	if req.Phase == PhaseReduce {
		return mockReduceReply, nil
	}
	reply, err := sjson.Set(mockMapReply, "input_chars", utf8.RuneCountInString(req.UserPrompt))
	if err != nil {
		return mockMapReply, nil
	}
	return reply, nil
}

// Calls returns the number of Generate calls so far.
func (m *MockGenerator) Calls() int64 { return m.calls.Load() }
