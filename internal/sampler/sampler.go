// Package sampler implements the adaptive multi-level sampling router.
//
// DESIGN: Fit a message sequence into a unit budget while keeping as much
// information as possible. The ladder escalates monotonically:
//
//	Lossless          all merged lines            units <  0.8 x budget
//	LightCompression  noise-filtered lines        units <  1.0 x budget
//	SmartFocus        hot windows + strided cold  chars <= budget x chars/unit
//
// Every Result reports what was kept, so lossy levels are never silent.
package sampler

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/compresr/chat-recap/internal/budget"
	"github.com/compresr/chat-recap/internal/chat"
	"github.com/compresr/chat-recap/internal/pipes"
	"github.com/compresr/chat-recap/internal/pipes/compress"
	"github.com/compresr/chat-recap/internal/pipes/density"
	"github.com/compresr/chat-recap/internal/pipes/noise"
)

// =============================================================================
// LEVELS
// =============================================================================

// Level is a sampling level, ordered by information loss.
type Level int

const (
	Lossless Level = iota
	LightCompression
	SmartFocus
)

// String returns the level's wire name.
func (l Level) String() string {
	switch l {
	case Lossless:
		return "lossless"
	case LightCompression:
		return "light_compression"
	case SmartFocus:
		return "smart_focus"
	default:
		return "unknown"
	}
}

// MarshalText lets levels appear by name in JSON reports.
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// =============================================================================
// CONFIG
// =============================================================================

// Config configures the router.
type Config struct {
	CharsPerToken    float64 `yaml:"chars_per_token"`   // default: 1.5
	LosslessHeadroom float64 `yaml:"lossless_headroom"` // default: 0.8
	LightTolerance   float64 `yaml:"light_tolerance"`   // default: 1.0

	Compress pipes.CompressConfig `yaml:",inline"`
	Noise    pipes.NoiseConfig    `yaml:",inline"`
	Density  pipes.DensityConfig  `yaml:",inline"`
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		CharsPerToken:    budget.DefaultCharsPerToken,
		LosslessHeadroom: 0.8,
		LightTolerance:   1.0,
		Compress:         pipes.DefaultCompressConfig(),
		Noise:            pipes.DefaultNoiseConfig(),
		Density:          pipes.DefaultDensityConfig(),
	}
}

// Validate checks the thresholds and the embedded stage settings.
func (c Config) Validate() error {
	if c.CharsPerToken <= 0 {
		return fmt.Errorf("chars_per_token must be positive, got %g", c.CharsPerToken)
	}
	if c.LosslessHeadroom <= 0 || c.LightTolerance < c.LosslessHeadroom {
		return fmt.Errorf("need 0 < lossless_headroom <= light_tolerance, got %g and %g", c.LosslessHeadroom, c.LightTolerance)
	}
	if err := c.Compress.Validate(); err != nil {
		return err
	}
	return c.Density.Validate()
}

// =============================================================================
// RESULT
// =============================================================================

// Result is a bounded text blob plus an account of how it was produced.
type Result struct {
	Text  string `json:"-"`
	Level Level  `json:"level"`

	// Lines is the number of merged lines before any filtering.
	Lines int `json:"lines"`
	// Kept is the number of lines rendered into Text.
	Kept int `json:"kept"`
	// NoiseDropped counts lines removed by the noise filter.
	NoiseDropped int `json:"noise_dropped"`
	// HotLines / ColdLines describe the SmartFocus partition.
	HotLines  int `json:"hot_lines,omitempty"`
	ColdLines int `json:"cold_lines,omitempty"`
	// ColdStride is the stride used for cold lines (1 = all kept).
	ColdStride int `json:"cold_stride,omitempty"`

	// CorpusUnits is the average-length pre-estimate over the merged lines.
	CorpusUnits    int `json:"corpus_units"`
	EstimatedUnits int `json:"estimated_units"`
	BudgetUnits    int `json:"budget_units"`
	TargetChars    int `json:"target_chars,omitempty"`

	// HotOverflow is set when hot windows alone exceed TargetChars.
	HotOverflow bool `json:"hot_overflow,omitempty"`
}

// Empty reports whether there was nothing to sample.
func (r Result) Empty() bool { return r.Lines == 0 }

// Dropped returns how many merged lines did not make it into Text.
func (r Result) Dropped() int { return r.Lines - r.Kept }

// =============================================================================
// SAMPLER
// =============================================================================

// Sampler routes message sequences through the sampling ladder.
// A Sampler holds no per-run state and is safe for concurrent use.
type Sampler struct {
	cfg     Config
	est     budget.Estimator
	ratio   budget.RatioEstimator
	noise   pipes.Pipe
	density *density.Estimator
}

// New creates a sampler. A nil estimator uses the chars-per-token ratio.
func New(cfg Config, est budget.Estimator) *Sampler {
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = budget.DefaultCharsPerToken
	}
	if cfg.LosslessHeadroom <= 0 {
		cfg.LosslessHeadroom = 0.8
	}
	if cfg.LightTolerance <= 0 {
		cfg.LightTolerance = 1.0
	}
	ratio := budget.NewRatioEstimator(cfg.CharsPerToken)
	if est == nil {
		est = ratio
	}
	return &Sampler{
		cfg:     cfg,
		est:     est,
		ratio:   ratio,
		noise:   noise.New(cfg.Noise),
		density: density.NewEstimator(cfg.Density),
	}
}

// Sample compresses messages and returns a blob that fits budgetUnits.
func (s *Sampler) Sample(messages []chat.Message, budgetUnits int) Result {
	lines := compress.Compress(messages, s.cfg.Compress)
	res := Result{Level: Lossless, Lines: len(lines), BudgetUnits: budgetUnits}
	if len(lines) == 0 {
		return res
	}

	res.CorpusUnits = s.corpusEstimate(lines)
	log.Debug().Int("corpus_units", res.CorpusUnits).Int("budget", budgetUnits).Int("lines", len(lines)).Msg("Segment pre-estimate")

	// Level 1: lossless
	full := pipes.Render(lines)
	units := s.est.Estimate(full)
	if float64(units) < float64(budgetUnits)*s.cfg.LosslessHeadroom {
		log.Debug().Int("units", units).Int("budget", budgetUnits).Int("lines", len(lines)).Msg("Sampling level lossless")
		res.Text, res.Kept, res.EstimatedUnits = full, len(lines), units
		return res
	}

	// Level 2: light compression
	filtered := s.noise.Process(lines)
	res.NoiseDropped = len(lines) - len(filtered)
	light := pipes.Render(filtered)
	units = s.est.Estimate(light)
	if float64(units) < float64(budgetUnits)*s.cfg.LightTolerance {
		log.Debug().Int("units", units).Int("budget", budgetUnits).Int("dropped", res.NoiseDropped).Msg("Sampling level light_compression")
		res.Level = LightCompression
		res.Text, res.Kept, res.EstimatedUnits = light, len(filtered), units
		return res
	}

	// Level 3: smart focus
	res.Level = SmartFocus
	selected := s.smartFocus(filtered, budgetUnits, &res)
	res.Text = pipes.Render(selected)
	res.Kept = len(selected)
	res.EstimatedUnits = s.est.Estimate(res.Text)
	log.Debug().
		Int("units", res.EstimatedUnits).
		Int("budget", budgetUnits).
		Int("hot", res.HotLines).
		Int("cold", res.ColdLines).
		Int("stride", res.ColdStride).
		Int("kept", res.Kept).
		Int("lines", res.Lines).
		Msg("Sampling level smart_focus")
	return res
}

// corpusEstimate prices the merged lines from the average length of the
// first budget.AverageSampleSize of them, one newline per line included.
func (s *Sampler) corpusEstimate(lines []pipes.Line) int {
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text + "\n"
	}
	return budget.EstimateCorpus(texts, s.ratio)
}

// smartFocus keeps every hot line and fills the remaining character budget
// with uniformly strided cold lines. Output is chronological.
func (s *Sampler) smartFocus(lines []pipes.Line, budgetUnits int, res *Result) []pipes.Line {
	hot, cold, _ := s.density.Split(lines)
	res.HotLines, res.ColdLines = len(hot), len(cold)
	res.TargetChars = s.ratio.CharsFor(budgetUnits)

	hotChars := pipes.Cost(hot)
	remaining := res.TargetChars - hotChars

	var selected []pipes.Line
	switch {
	case remaining <= 0:
		res.HotOverflow = hotChars > res.TargetChars
		if res.HotOverflow {
			log.Info().Int("hot_chars", hotChars).Int("target_chars", res.TargetChars).Msg("Hot windows exceed budget, keeping hot lines only")
		}
		selected = hot
	case len(cold) == 0:
		selected = hot
	case pipes.Cost(cold) <= remaining:
		res.ColdStride = 1
		selected = append(append(selected, hot...), cold...)
	default:
		sampled, stride := strideSample(cold, remaining)
		res.ColdStride = stride
		selected = append(append(selected, hot...), sampled...)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Time.Before(selected[j].Time)
	})
	return selected
}

// strideSample takes every Nth cold line, starting with
// N = ceil(cost(cold) / remaining) and widening N until the sample fits.
func strideSample(cold []pipes.Line, remaining int) ([]pipes.Line, int) {
	stride := int(math.Ceil(float64(pipes.Cost(cold)) / float64(remaining)))
	if stride < 1 {
		stride = 1
	}
	for ; stride <= len(cold); stride++ {
		sampled := every(cold, stride)
		if pipes.Cost(sampled) <= remaining {
			return sampled, stride
		}
	}
	// Only cold[0] would be left; drop it too if it does not fit.
	return nil, len(cold) + 1
}

func every(lines []pipes.Line, stride int) []pipes.Line {
	out := make([]pipes.Line, 0, len(lines)/stride+1)
	for i := 0; i < len(lines); i += stride {
		out = append(out, lines[i])
	}
	return out
}
