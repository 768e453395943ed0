// Sampling configuration.
//
// DESIGN: Sampler thresholds are defined in internal/sampler and the pipe
// stages it drives. They are inlined here so the YAML stays flat:
//
//	sampling:
//	  budget_tokens: 12000
//	  estimator: ratio
//	  merge_window: 1m
//	  hot_windows: 20
package config

import (
	"fmt"

	"github.com/compresr/chat-recap/internal/budget"
	"github.com/compresr/chat-recap/internal/sampler"
)

// Estimator names.
const (
	EstimatorRatio    = "ratio"
	EstimatorTiktoken = "tiktoken"
)

// DefaultBudgetTokens is the per-segment budget.
const DefaultBudgetTokens = 12000

// SamplingConfig contains the budget and sampler thresholds.
type SamplingConfig struct {
	BudgetTokens int    `yaml:"budget_tokens"` // per-segment budget in estimator units
	Estimator    string `yaml:"estimator"`     // ratio or tiktoken
	Encoding     string `yaml:"encoding"`      // tiktoken encoding name

	Sampler sampler.Config `yaml:",inline"`
}

// DefaultSamplingConfig returns the calibrated defaults.
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		BudgetTokens: DefaultBudgetTokens,
		Estimator:    EstimatorRatio,
		Encoding:     budget.DefaultEncoding,
		Sampler:      sampler.DefaultConfig(),
	}
}

// Validate checks the sampling settings.
func (c SamplingConfig) Validate() error {
	if c.BudgetTokens <= 0 {
		return fmt.Errorf("budget_tokens must be positive, got %d", c.BudgetTokens)
	}
	switch c.Estimator {
	case "", EstimatorRatio, EstimatorTiktoken:
	default:
		return fmt.Errorf("estimator must be %q or %q, got %q", EstimatorRatio, EstimatorTiktoken, c.Estimator)
	}
	return c.Sampler.Validate()
}

// NewEstimator builds the configured estimator. The tiktoken estimator
// falls back to the ratio estimator when its encoding cannot be loaded.
func (c SamplingConfig) NewEstimator() budget.Estimator {
	ratio := budget.NewRatioEstimator(c.Sampler.CharsPerToken)
	if c.Estimator == EstimatorTiktoken {
		return budget.NewTiktokenEstimator(c.Encoding, ratio)
	}
	return ratio
}
