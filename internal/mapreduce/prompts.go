// Prompt set for the map and reduce calls.
//
// Map prompts ask for one JSON object per segment; reduce prompts ask for
// one JSON object with HTML fragments per report section. Chat text is
// appended after the formatted header, never passed through a format verb.
package mapreduce

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Theater themes.
const (
	ThemeDefault  = "default"
	ThemeBanDream = "bandream"
	ThemeGBC      = "gbc"
	ThemeCustom   = "custom"
)

// ValidTheme reports whether theme is known.
func ValidTheme(theme string) bool {
	switch theme {
	case ThemeDefault, ThemeBanDream, ThemeGBC, ThemeCustom:
		return true
	}
	return false
}

// SystemPrompt is shared by map and reduce calls.
const SystemPrompt = "You are a JSON generator. Return only valid JSON, without markdown code fences."

const mapPersona = `You are a calm, dry-humored veteran observer of group chats and a long-time ACGN (anime, comics, games, novels) fan.
Analyze the chat excerpt below (%s) and extract the key information.
This is an intermediate step of a map-reduce job; your output feeds the %s.

Style:
1. Calm teasing: write as an onlooker who has seen it all; precise and sharp.
2. Depth: every point is a coherent, detailed paragraph, not a list of fragments.
3. ACGN flavor: weave in fitting anime/game memes without hiding the facts.

Return one JSON object with these fields:
1. "summary": (str) 100-200 words retelling how the main topics of this %s evolved, like a documentary narrator.
2. "vibe": (str) mood keywords for this %s with a short reading of each.
3. "active_members": (list) members who talked the most.
4. "inactive_members": (list) members who mostly lurked.
5. "events": (list) notable events with cause, course and outcome.
6. "memes_born": (list) memes born in this %s, with origin and usage.
7. "memes_died": (list) memes that faded.
8. "mvp": (str) the MVP of this %s and 50-100 words on why.
9. "characters": (dict) member name -> ~50 word profile of their speaking style and role.
10. "relations": (list) bonds between members (rivals, duos, running jokes).

Dig deep; no play-by-play logs.`

const reduceIntro = `You are a witty yet insightful group-chat observer who reads the soul of a chat from its data, fluent in ACGN culture.
Based on the %s analysis summaries below, write a %s group chat report.

Input data:
%s

Global statistics:
%s

Requirements:
1. Adaptive style: read the overall mood first and pick the color scheme and tone from it.
2. ACGN style: the report should read like the setting book of a %s anime season.
3. Depth: surface the emotional temperature and the hidden web of relationships.

Return one JSON object with these fields:
1. "style_config": (dict) "primary_color", "secondary_color", "background_color", "card_bg", "text_color", "font_family".
2. "keywords": (list) ten keywords that capture the chat.
3. "portrait": (str) <h3>Portrait</h3> labels for the group and why; its personality type or anime genre.
4. "timeline": (str) <h3>Timeline</h3> key events as an HTML <ul> list.
5. "quarterly_review": (str) <h3>Review</h3> a detailed pass over each %s: topics, mood, active and silent members, events, memes, MVP.
6. "roasts": (str) <h3>Roasts</h3> good-natured, well-founded roasts of members.
7. "awards": (str) <h3>Awards</h3> invented awards with short citations.
8. "anime_theater": (str) <h3>Theater</h3> a short script starring the members.
%s
9. "moments": (str) <h3>Moments</h3> the most awkward or hilarious moments.
10. "essay": (str) <h3>Essay</h3> a reflective closing essay about %s.

Use concrete member names and events. HTML fragments must not contain markdown fences.`

// MapPrompt builds the user prompt for one segment.
func MapPrompt(label, excerpt string, periodic bool) string {
	unit, target := "quarter", "annual report"
	if periodic {
		unit, target = "period", "overall report"
	}
	header := fmt.Sprintf(mapPersona, label, target, unit, unit, unit, unit)
	return header + "\n\nChat excerpt:\n" + excerpt
}

// ReducePrompt builds the user prompt for the aggregate call.
func ReducePrompt(results []SegmentResult, global GlobalStats, flags ModeFlags) string {
	data := make([]json.RawMessage, 0, len(results))
	for _, r := range results {
		data = append(data, r.Report)
	}
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		encoded = []byte("[]")
	}

	statsBlock := "(none)"
	if global != nil {
		statsBlock = global.PromptSummary()
	}

	count, kind, season, unit, about := "four quarterly", "yearly", "year-long", "quarter", fmt.Sprintf("the year %d", flags.Year)
	if flags.Periodic {
		count, kind, season, unit, about = "per-period", "periodic", "multi-part", "period", "this stretch of time"
	}
	if flags.Year == 0 && !flags.Periodic {
		about = "the year"
	}

	return fmt.Sprintf(reduceIntro, count, kind, encoded, statsBlock, season, unit, TheaterInstruction(flags.Theme, flags.CustomThemePrompt), about)
}

// TheaterInstruction returns the theme lines for the anime_theater field.
func TheaterInstruction(theme, custom string) string {
	switch theme {
	case ThemeBanDream:
		return strings.Join([]string{
			"   - Theme: BanG Dream! It's MyGO!!!!! / Ave Mujica.",
			"   - Include gravity wells, twisted feelings, Haruhikage and boomerang callbacks.",
			"   - The script should be stomach-churning and full of dramatic tension.",
			"   - Cast the MVPs as Tomori, Sakiko or Soyo types (borrow traits, keep real names).",
		}, "\n")
	case ThemeGBC:
		return strings.Join([]string{
			"   - Theme: Girls Band Cry.",
			"   - Include middle fingers, Momoka, Nina's short fuse, streetlights and Yoshinoya.",
			"   - The script should be rock, irritable and full of life.",
			"   - Cast the most active members as Nina or Momoka types.",
		}, "\n")
	case ThemeCustom:
		custom = strings.TrimSpace(custom)
		if custom != "" {
			return fmt.Sprintf("   - Theme: the user's custom theme: %s.\n   - Follow its style and setting strictly.", custom)
		}
	}
	return "   - Theme: pick the ACGN setting that best fits the chat's real mood (cyberpunk, isekai, slice of life...)."
}
