package cmd

import (
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

func init() {
	if Version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" {
			Version = info.Main.Version
		}
	}
	rootCmd.Version = Version
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file")
}

var rootCmd = &cobra.Command{
	Use:          "rocklens",
	SilenceUsage: true,
	Short:        "Diagnose slow queries on columnar analytical databases",
	Long: `rocklens pulls slow-query telemetry from StarRocks or ClickHouse,
groups statements by normalized fingerprint, detects SQL anti-patterns and
execution-plan hotspots, and produces ranked optimization suggestions.`,
	Example: `  # Analyze the last 24 hours of slow queries
  rocklens analyze

  # Analyze a narrower window with plan collection
  rocklens analyze --hours 2 --plans

  # Diagnose a single statement offline
  rocklens inspect query.sql --plan plan.txt

  # Run continuously, writing a report every hour
  rocklens watch --interval 1h`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	if verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		return log
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
