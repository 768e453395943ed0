// Segmenting and report configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/compresr/chat-recap/internal/mapreduce"
	"github.com/compresr/chat-recap/internal/segment"
	"github.com/compresr/chat-recap/internal/stats"
)

// SegmentingConfig is an alias for segment.Config.
type SegmentingConfig = segment.Config

// DefaultSegmentingConfig re-exports segment.DefaultConfig.
var DefaultSegmentingConfig = segment.DefaultConfig

// ReportConfig contains prompt and aggregation settings.
type ReportConfig struct {
	Theme             string `yaml:"theme"`               // default, bandream, gbc, custom
	CustomThemePrompt string `yaml:"custom_theme_prompt"` // used when theme is custom
	Concurrency       int    `yaml:"concurrency"`         // map workers; <= 1 is sequential

	Stats stats.Options `yaml:",inline"`
}

// DefaultReportConfig returns the defaults.
func DefaultReportConfig() ReportConfig {
	return ReportConfig{
		Theme:       mapreduce.ThemeDefault,
		Concurrency: 1,
		Stats:       stats.DefaultOptions(),
	}
}

// Validate checks the report settings.
func (c ReportConfig) Validate() error {
	if !mapreduce.ValidTheme(c.Theme) {
		return fmt.Errorf("unknown theme %q", c.Theme)
	}
	if c.Theme == mapreduce.ThemeCustom && strings.TrimSpace(c.CustomThemePrompt) == "" {
		return fmt.Errorf("theme %q requires custom_theme_prompt", mapreduce.ThemeCustom)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.Stats.TopN < 0 || c.Stats.ActiveMinMessages < 0 {
		return fmt.Errorf("top_n and active_min_messages must not be negative")
	}
	return nil
}
