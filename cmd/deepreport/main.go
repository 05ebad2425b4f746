// Command deepreport plans and writes long-form research reports from a
// requirement, gathering evidence per section from a local knowledge base
// and the web.
package main

import (
	"fmt"
	"os"
	"time"

	"deepreport/internal/config"
	"deepreport/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	configPath string
	verbose    bool
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "deepreport",
	Short: "deepreport - section-by-section research report writer",
	Long: `deepreport turns a requirement into a structured report.

It plans an outline, then for each section searches the knowledge base and
the web, judges whether the evidence is sufficient, fills gaps once, and
writes the section with citations. Charts are rendered in the background.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := logging.Initialize(cfg.LogsDir(), cfg.Logging.Settings()); err != nil {
			logger.Warn("File logging disabled", zap.Error(err))
		}
		logger.Debug("Configuration loaded", zap.String("path", configPath), zap.String("llm", cfg.LLM.Provider))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "deepreport.yaml", "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Minute, "Overall operation timeout")

	rootCmd.AddCommand(outlineCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(kbCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
