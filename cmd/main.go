// Package main is the entry point for chat-recap.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/compresr/chat-recap/external"
	"github.com/compresr/chat-recap/internal/config"
	"github.com/compresr/chat-recap/internal/mapreduce"
	"github.com/compresr/chat-recap/internal/monitoring"
	"github.com/compresr/chat-recap/internal/recap"
	"github.com/compresr/chat-recap/internal/registry"
)

// Version is set at build time via ldflags
var Version = "v0.1.0"

const appName = "chat-recap"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Output goes to stdout and stderr so
// tests can capture it.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         appName + " - budget-aware chat history reports",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(
		newAnalyzeCmd(),
		newCheckCmd(),
		newInitCmd(),
		newVersionCmd(),
	)
	return root
}

// =============================================================================
// ANALYZE
// =============================================================================

type analyzeOptions struct {
	configPath string
	input      string
	output     string
	theme      string
	budget     int
	debug      bool
}

func newAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a QQChatExporter JSON export and write a JSON report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "chat export to analyze")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "report path, - for stdout")
	cmd.Flags().StringVar(&opts.theme, "theme", "", "override report.theme")
	cmd.Flags().IntVar(&opts.budget, "budget", 0, "override sampling.budget_tokens")
	cmd.Flags().BoolVarP(&opts.debug, "debug", "d", false, "enable debug logging")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runAnalyze(cmd *cobra.Command, opts analyzeOptions) error {
	loadEnvFiles()

	cfg, source, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.theme != "" {
		cfg.Report.Theme = opts.theme
	}
	if opts.budget > 0 {
		cfg.Sampling.BudgetTokens = opts.budget
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	setupLogging(cfg.Monitoring.LoggerConfig, opts.debug)

	log.Info().
		Str("version", Version).
		Str("config", source).
		Str("mode", cfg.LLM.Mode).
		Int("budget_tokens", cfg.Sampling.BudgetTokens).
		Msg("chat-recap starting")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetricsCollector()
	gen, err := newGenerator(ctx, cfg.LLM, metrics)
	if err != nil {
		return err
	}

	reg := registry.New(cfg.Registry)
	defer reg.Close()

	tracker, err := monitoring.NewTracker(cfg.Monitoring.Telemetry)
	if err != nil {
		return fmt.Errorf("open telemetry: %w", err)
	}
	defer tracker.Close()

	runner, err := recap.New(cfg, gen, reg, metrics)
	if err != nil {
		return err
	}
	runner.SetTracker(tracker)
	report, err := runner.AnalyzeFile(ctx, opts.input)
	if err != nil {
		return err
	}

	if err := writeReport(cmd.OutOrStdout(), opts.output, report); err != nil {
		return err
	}

	log.Debug().Interface("metrics", metrics.Stats()).Msg("Run metrics")
	log.Info().
		Str("run_id", report.RunID).
		Str("output", opts.output).
		Int("degraded", report.Degraded).
		Msg("Report written")
	return nil
}

// newGenerator returns the mock generator or a provider client.
func newGenerator(ctx context.Context, cfg external.Config, obs external.CallObserver) (mapreduce.Generator, error) {
	if cfg.Mode == external.ModeMock {
		log.Info().Msg("Using mock generator, no provider will be called")
		return external.NewMockGenerator(), nil
	}
	client, err := external.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create generation client: %w", err)
	}
	client.SetObserver(obs)
	return client, nil
}

func writeReport(stdout io.Writer, path string, report *recap.Report) error {
	if path == "" || path == "-" {
		return report.WriteJSON(stdout)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.WriteJSON(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

// =============================================================================
// CHECK
// =============================================================================

func newCheckCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Send a one-line request to the configured provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadEnvFiles()
			cfg, source, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.Monitoring.LoggerConfig, false)

			out := cmd.OutOrStdout()
			if cfg.LLM.Mode == external.ModeMock {
				fmt.Fprintf(out, "%s: mock mode, no provider to check\n", source)
				return nil
			}
			client, err := external.NewClient(cmd.Context(), cfg.LLM)
			if err != nil {
				return err
			}
			if err := client.Check(cmd.Context()); err != nil {
				var callErr *external.CallError
				if errors.As(err, &callErr) {
					return fmt.Errorf("%s check failed (%s): %w", callErr.Provider, callErr.Kind, err)
				}
				return err
			}
			fmt.Fprintf(out, "%s: %s provider reachable (model %s)\n", source, client.Config().Provider, cfg.LLM.Model)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

// =============================================================================
// VERSION
// =============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Runtime: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// =============================================================================
// CONFIG AND LOGGING
// =============================================================================

// configDir returns ~/.config/chat-recap
func configDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", appName)
}

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	if dir := configDir(); dir != "" {
		globalEnv := filepath.Join(dir, ".env")
		if _, err := os.Stat(globalEnv); err == nil {
			_ = godotenv.Load(globalEnv)
		}
	}

	// Also load local .env; godotenv never overrides variables already set
	_ = godotenv.Load()
}

// resolveConfig resolves the config to use.
// Checks: user flag -> filesystem locations -> embedded default.
// Returns raw bytes and source description.
func resolveConfig(userConfig string) ([]byte, string, error) {
	if userConfig != "" {
		data, err := os.ReadFile(userConfig)
		if err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return data, userConfig, nil
	}

	var searchPaths []string
	if dir := configDir(); dir != "" {
		searchPaths = append(searchPaths, filepath.Join(dir, "config.yaml"))
	}
	searchPaths = append(searchPaths, appName+".yaml", filepath.Join("configs", "config.yaml"))

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	data, err := getEmbeddedConfig(defaultConfigName)
	if err != nil {
		return nil, "", fmt.Errorf("no config file found. Specify --config path")
	}
	return data, "(embedded) " + defaultConfigName + ".yaml", nil
}

func loadConfig(userConfig string) (*config.Config, string, error) {
	data, source, err := resolveConfig(userConfig)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFromBytes(data)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", source, err)
	}
	return cfg, source, nil
}

// setupLogging configures the global zerolog logger.
func setupLogging(cfg monitoring.LoggerConfig, debug bool) {
	if debug {
		cfg.Level = "debug"
	}
	monitoring.Global(cfg)
}
