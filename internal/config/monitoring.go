// Monitoring configuration - logging and telemetry settings.
//
// DESIGN: Separates logging (zerolog) from telemetry (JSONL files).
// Logging is for operators, telemetry records run and sampling decisions
// for later tuning. Both are defined in internal/monitoring and inlined
// here so the YAML section stays flat.
package config

import (
	"errors"

	"github.com/compresr/chat-recap/internal/monitoring"
)

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	monitoring.LoggerConfig `yaml:",inline"`
	Telemetry               monitoring.TelemetryConfig `yaml:",inline"`
}

// DefaultMonitoringConfig logs to stderr with telemetry off.
func DefaultMonitoringConfig() MonitoringConfig {
	return MonitoringConfig{LoggerConfig: monitoring.DefaultLoggerConfig()}
}

// Validate checks logging settings and telemetry paths.
func (c MonitoringConfig) Validate() error {
	if err := c.LoggerConfig.Validate(); err != nil {
		return err
	}
	if c.Telemetry.Enabled && c.Telemetry.LogPath == "" && c.Telemetry.SamplingLogPath == "" {
		return errors.New("telemetry_enabled needs telemetry_path or sampling_log_path")
	}
	return nil
}
