// Package main implements the metamorph CLI: a self-modification loop that
// evolves a managed Go source file under metric, security, and test gates.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"metamorph/internal/config"
	"metamorph/internal/engine"
	"metamorph/internal/ledger"
	"metamorph/internal/logging"
	"metamorph/internal/suggest"
	"metamorph/internal/types"
)

var (
	// Global flags
	verbose    bool
	configPath string
	apiKey     string

	cfg    config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "metamorph",
	Short: "metamorph - an experimental self-modification loop",
	Long: `metamorph repeatedly evaluates the structure of a managed Go source
file, proposes prioritized change hypotheses, synthesizes candidate
modifications, and applies them only after they clear security, syntax,
and test gates. Every attempt is recorded; an adaptive deliberation
layer learns which kinds of actions fail in which situations.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = *loaded
		if apiKey != "" {
			cfg.Suggest.APIKey = apiKey
		}

		if err := logging.Initialize(cfg.Logging.Dir, cfg.Logging.Level, cfg.Logging.Enabled); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		if err := logging.InitAudit(); err != nil {
			return fmt.Errorf("failed to initialize audit log: %w", err)
		}

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// openLedger opens the configured ledger store.
func openLedger() (*ledger.Ledger, error) {
	return ledger.NewLedger(cfg.DatabasePath(), cfg.Paths.WorkDir)
}

// buildEngine assembles the pipeline, attaching the generation-service
// client when an API key is available.
func buildEngine(ctx context.Context, led *ledger.Ledger) (*engine.Engine, error) {
	var llm types.LLMClient
	if cfg.Suggest.APIKey != "" {
		client, err := suggest.NewClient(ctx, cfg.Suggest)
		if err != nil {
			return nil, err
		}
		llm = client
		logger.Info("generation service attached", zap.String("model", cfg.Suggest.Model))
	} else {
		logger.Warn("no API key configured, running without suggestion material")
	}
	return engine.New(cfg, led, llm)
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "metamorph.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "generation service API key (overrides config and environment)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(reportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
