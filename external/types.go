// Package external talks to the text-generation services a recap run
// depends on.
//
// DESIGN: The core never looks inside the service. It sends a system prompt,
// a user prompt and an optional model name, and gets text or a classified
// *CallError back.
//
//   - llm.go:               one attempt against one provider (CallLLM)
//   - client.go:            Client, retries/backoff/timeout around CallLLM
//   - mock.go:              MockGenerator, canned structured replies
//   - bedrock_transport.go: SigV4 signing for the bedrock provider
package external

import (
	"errors"
	"fmt"
	"time"
)

// Generation modes.
const (
	ModeCustom = "custom" // real provider
	ModeMock   = "mock"   // canned replies, no network
)

// Call phases of a recap run.
const (
	PhaseMap    = "map"
	PhaseReduce = "reduce"
)

// GenerateRequest is one generation call.
type GenerateRequest struct {
	SystemPrompt string
	UserPrompt   string
	// Model overrides Config.Model when set.
	Model string
	// Phase is PhaseMap or PhaseReduce; empty means a one-off call.
	Phase string
}

// Config holds configuration for the generation client.
type Config struct {
	// Mode: "custom" or "mock"
	Mode string `yaml:"mode"`

	// Provider: "openai", "anthropic", "gemini", "bedrock"; empty detects
	// from Endpoint.
	Provider string `yaml:"provider"`

	// Endpoint is the full request URL (OpenAI: base or chat/completions URL)
	Endpoint string `yaml:"endpoint"`

	APIKey string `yaml:"api_key"`

	// Model is the default model; MapModel/ReduceModel override per phase.
	Model       string `yaml:"model"`
	MapModel    string `yaml:"map_model"`
	ReduceModel string `yaml:"reduce_model"`

	MaxTokens int `yaml:"max_tokens"`

	// Timeout for one attempt
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the total number of attempts per call
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the fixed pause between attempts
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// Region for bedrock
	Region string `yaml:"region"`
}

// DefaultConfig returns defaults for the generation client.
func DefaultConfig() Config {
	return Config{
		Mode:         ModeMock,
		Provider:     ProviderOpenAI,
		Endpoint:     "https://api.openai.com/v1",
		Model:        "gpt-4o-mini",
		MaxTokens:    DefaultMaxTokens,
		Timeout:      DefaultTimeout,
		MaxRetries:   2,
		RetryBackoff: time.Second,
		Region:       "us-east-1",
	}
}

// PhaseModel returns the model for a phase (PhaseMap or PhaseReduce).
func (c Config) PhaseModel(phase string) string {
	switch {
	case phase == PhaseMap && c.MapModel != "":
		return c.MapModel
	case phase == PhaseReduce && c.ReduceModel != "":
		return c.ReduceModel
	}
	return c.Model
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeMock:
		return nil
	case ModeCustom:
	default:
		return fmt.Errorf("llm.mode must be %q or %q, got %q", ModeCustom, ModeMock, c.Mode)
	}
	switch c.Provider {
	case "", ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderBedrock:
	default:
		return fmt.Errorf("unknown llm.provider %q", c.Provider)
	}
	if c.Endpoint == "" {
		return errors.New("llm.endpoint is required in custom mode")
	}
	if c.APIKey == "" && c.Provider != ProviderBedrock {
		return errors.New("llm.api_key is required in custom mode")
	}
	if c.Model == "" && c.Provider != ProviderBedrock {
		return errors.New("llm.model is required in custom mode")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("llm.max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.Timeout < 0 || c.RetryBackoff < 0 {
		return errors.New("llm.timeout and llm.retry_backoff must not be negative")
	}
	return nil
}
