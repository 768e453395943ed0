// Package config loads and validates the chat-recap configuration.
//
// DESIGN: Configuration comes from a YAML file layered over DefaultConfig().
// Keys left out of the file keep their defaults; everything is validated
// once at load time so later stages can trust their settings.
//
// FILES:
//   - config.go:     Root Config struct, Load(), Validate()
//   - sampling.go:   Budget, estimator and sampler thresholds
//   - report.go:     Segmenting, prompt theme, map concurrency, statistics
//   - monitoring.go: Logging settings
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/compresr/chat-recap/external"
	"github.com/compresr/chat-recap/internal/registry"
)

// Config is the root configuration.
type Config struct {
	LLM        external.Config  `yaml:"llm"`        // Generator client
	Input      InputConfig      `yaml:"input"`      // Export parsing
	Sampling   SamplingConfig   `yaml:"sampling"`   // Budget and sampling ladder
	Segmenting SegmentingConfig `yaml:"segmenting"` // Quarterly vs periodic split
	Report     ReportConfig     `yaml:"report"`     // Prompts, concurrency, statistics
	Registry   registry.Config  `yaml:"registry"`   // Run status retention
	Monitoring MonitoringConfig `yaml:"monitoring"` // Logging
}

// InputConfig contains export parsing settings.
type InputConfig struct {
	// Timezone interprets zone-less timestamps and places quarter
	// boundaries. "Local" or an IANA name such as "Asia/Shanghai".
	Timezone string `yaml:"timezone"`
}

// Location resolves the configured timezone.
func (c InputConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("input.timezone: %w", err)
	}
	return loc, nil
}

// DefaultConfig returns a configuration that runs offline against the mock
// generator.
func DefaultConfig() *Config {
	return &Config{
		LLM:        external.DefaultConfig(),
		Input:      InputConfig{Timezone: "Local"},
		Sampling:   DefaultSamplingConfig(),
		Segmenting: DefaultSegmentingConfig(),
		Report:     DefaultReportConfig(),
		Registry:   registry.DefaultConfig(),
		Monitoring: DefaultMonitoringConfig(),
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands environment variables with support for default values.
// Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) > 2 {
			return parts[2]
		}
		return ""
	})
}

// ExpandEnvWithDefaults is the exported form of the ${VAR:-default} expander.
func ExpandEnvWithDefaults(s string) string {
	return expandEnvWithDefaults(s)
}

// Load reads configuration from a YAML file. An empty path returns the
// defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides lets deployments inject secrets and switch the
// generator without editing the file.
func (c *Config) applyEnvOverrides() {
	// CHAT_RECAP_API_KEY overrides llm.api_key
	if key := os.Getenv("CHAT_RECAP_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}

	// CHAT_RECAP_MODE overrides llm.mode (custom or mock)
	if mode := os.Getenv("CHAT_RECAP_MODE"); mode != "" {
		c.LLM.Mode = mode
	}

	// CHAT_RECAP_LOG_LEVEL overrides monitoring.log_level
	if level := os.Getenv("CHAT_RECAP_LOG_LEVEL"); level != "" {
		c.Monitoring.Level = level
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if _, err := c.Input.Location(); err != nil {
		return err
	}
	if err := c.Sampling.Validate(); err != nil {
		return fmt.Errorf("sampling: %w", err)
	}
	if err := c.Segmenting.Validate(); err != nil {
		return fmt.Errorf("segmenting: %w", err)
	}
	if err := c.Report.Validate(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if c.Registry.Retention < 0 || c.Registry.CleanupInterval < 0 {
		return errors.New("registry.retention and registry.cleanup_interval must not be negative")
	}
	if err := c.Monitoring.Validate(); err != nil {
		return fmt.Errorf("monitoring: %w", err)
	}
	return nil
}
