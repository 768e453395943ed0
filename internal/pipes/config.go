// Pipes configuration - compression stage settings.
//
// DESIGN: One config block per stage:
//   - Compress: merge window and merged-line truncation
//   - Noise:    filler stoplist
//   - Density:  window width and number of hot windows
//
// NOTE: This file defines stage-specific configuration types.
// The main Config struct in config/ re-exports and uses these types.
package pipes

import (
	"fmt"
	"time"
)

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	DefaultMergeWindow    = 60 * time.Second
	DefaultMaxMergedChars = 200
	DefaultDensityWindow  = 10 * time.Minute
	DefaultHotWindows     = 20
)

// DefaultNoiseWords are short acknowledgements, single digits and generic
// interjections that carry no information on their own.
var DefaultNoiseWords = []string{
	"1", "6", "嗯", "哦", "哈", "啊", "是", "好的", "ok",
	"哈哈", "嗯嗯", "收到", "+1",
}

// =============================================================================
// STAGE CONFIGS
// =============================================================================

// CompressConfig configures the compression engine.
type CompressConfig struct {
	MergeWindow    time.Duration `yaml:"merge_window"`     // Max gap between merged messages (default: 60s)
	MaxMergedChars int           `yaml:"max_merged_chars"` // Merged text truncation in runes (default: 200)
}

// NoiseConfig configures the noise filter.
type NoiseConfig struct {
	Words []string `yaml:"noise_words"` // Case-insensitive stoplist
}

// DensityConfig configures the density estimator.
type DensityConfig struct {
	Window     time.Duration `yaml:"density_window"` // Bucket width (default: 10m)
	HotWindows int           `yaml:"hot_windows"`    // Top-K buckets kept in full (default: 20)
}

// DefaultCompressConfig returns the compression defaults.
func DefaultCompressConfig() CompressConfig {
	return CompressConfig{MergeWindow: DefaultMergeWindow, MaxMergedChars: DefaultMaxMergedChars}
}

// DefaultNoiseConfig returns the default stoplist.
func DefaultNoiseConfig() NoiseConfig {
	words := make([]string, len(DefaultNoiseWords))
	copy(words, DefaultNoiseWords)
	return NoiseConfig{Words: words}
}

// DefaultDensityConfig returns the density defaults.
func DefaultDensityConfig() DensityConfig {
	return DensityConfig{Window: DefaultDensityWindow, HotWindows: DefaultHotWindows}
}

// Validate checks the compression settings.
func (c CompressConfig) Validate() error {
	if c.MergeWindow <= 0 {
		return fmt.Errorf("merge_window must be positive, got %s", c.MergeWindow)
	}
	if c.MaxMergedChars <= 0 {
		return fmt.Errorf("max_merged_chars must be positive, got %d", c.MaxMergedChars)
	}
	return nil
}

// Validate checks the density settings.
func (c DensityConfig) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("density_window must be positive, got %s", c.Window)
	}
	if c.Window > 24*time.Hour || (24*time.Hour)%c.Window != 0 {
		return fmt.Errorf("density_window must evenly divide a day, got %s", c.Window)
	}
	if c.HotWindows <= 0 {
		return fmt.Errorf("hot_windows must be positive, got %d", c.HotWindows)
	}
	return nil
}
