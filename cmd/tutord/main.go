// Package main implements the tutord CLI: ingestion, questions and status
// against the local Japanese grammar tutor core.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/config"
	"github.com/fyrsmithlabs/tutord/internal/logging"
	"github.com/fyrsmithlabs/tutord/internal/telemetry"
	"github.com/fyrsmithlabs/tutord/internal/tutor"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// configPath overrides ~/.config/tutord/config.yaml
	configPath string
	// logLevel overrides logging.level from the config file
	logLevel string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tutord",
	Short: "Japanese grammar tutor with retrieval-augmented answers",
	Long: `tutord ingests Japanese grammar lessons into a vector index and answers
learner questions grounded in the indexed material.

Configuration is read from ~/.config/tutord/config.yaml and TUTORD_*
environment variables. Missing providers fall back down the configured
chains, ending at deterministic mock providers.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/tutord/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(versionCmd)
}

// runtime bundles the service with the observability it was built on.
type runtime struct {
	svc    *tutor.Service
	logger *logging.Logger
	tel    *telemetry.Telemetry
}

// loadService loads configuration and builds the tutor service.
func loadService(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logCfg, err := logging.ConfigFromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version), logger.Underlying().Named("telemetry"))
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if tel.Degraded() {
		logger.Warn(ctx, "continuing without telemetry export")
	}

	svc, err := tutor.Build(ctx, cfg, logger.Underlying(), tel.Meter("tutord"))
	if err != nil {
		_ = logger.Sync()
		_ = tel.Shutdown(context.Background())
		return nil, err
	}
	return &runtime{svc: svc, logger: logger, tel: tel}, nil
}

// Close releases the service, then flushes logs and telemetry.
func (r *runtime) Close() {
	if err := r.svc.Close(); err != nil {
		r.logger.Underlying().Warn("service close failed", zap.Error(err))
	}
	_ = r.logger.Sync()
	_ = r.tel.Shutdown(context.Background())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout())
	},
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "tutord by Fyrsmith Labs\n")
	fmt.Fprintf(w, "Version:    %s\n", version)
	fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
}
