package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harperdean/rocklens/internal/collector"
	"github.com/harperdean/rocklens/internal/config"
	"github.com/harperdean/rocklens/internal/diag"
	"github.com/harperdean/rocklens/internal/engine"
	"github.com/harperdean/rocklens/internal/report"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Collect and diagnose slow queries",
	Long: `Collect slow queries from the configured database, group them by
fingerprint, run pattern and plan analysis, and write a ranked report.

Connection settings come from the config file and can be overridden with
ROCKLENS_* environment variables. Use --output - to print to stdout instead
of writing a report file.`,
	Example: `  # Analyze the last 24 hours
  rocklens analyze

  # Narrow window, EXPLAIN each query, print to stdout
  rocklens analyze --hours 2 --plans --output - --format text

  # Only queries slower than 5s touching the orders table
  rocklens analyze --threshold 5 --pattern orders`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		verbose, _ := cmd.Flags().GetBool("verbose")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyCollectFlags(cmd, cfg)
		if format, _ := cmd.Flags().GetString("format"); format != "" {
			cfg.Report.Format = format
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		log := newLogger(verbose)
		defer log.Sync()

		rep, err := runAnalysis(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "-" {
			return report.Render(os.Stdout, cfg.Report.Format, rep)
		}
		if output != "" {
			cfg.Report.Dir = output
		}
		path, err := report.Write(cfg.Report.Dir, cfg.Report.Format, rep)
		if err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().Int("hours", 0, "Look back this many hours")
	analyzeCmd.Flags().Float64("threshold", 0, "Minimum execution time in seconds")
	analyzeCmd.Flags().StringP("database", "d", "", "Only queries against this database")
	analyzeCmd.Flags().StringP("user", "u", "", "Only queries from this user")
	analyzeCmd.Flags().String("pattern", "", "Only statements containing this fragment")
	analyzeCmd.Flags().Int("limit", 0, "Maximum number of queries to collect")
	analyzeCmd.Flags().Bool("plans", false, "Run EXPLAIN for each collected query")
	analyzeCmd.Flags().StringP("format", "f", "", "Report format: text, json, markdown, html")
	analyzeCmd.Flags().StringP("output", "o", "", "Report directory, or - for stdout")
}

func applyCollectFlags(cmd *cobra.Command, cfg *config.Config) {
	if hours, _ := cmd.Flags().GetInt("hours"); hours > 0 {
		cfg.Collect.TimeRangeHours = hours
	}
	if threshold, _ := cmd.Flags().GetFloat64("threshold"); threshold > 0 {
		cfg.Collect.MinExecTime = threshold
	}
	if database, _ := cmd.Flags().GetString("database"); database != "" {
		cfg.Collect.Database = database
	}
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		cfg.Collect.User = user
	}
	if pattern, _ := cmd.Flags().GetString("pattern"); pattern != "" {
		cfg.Collect.Pattern = pattern
	}
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
		cfg.Collect.Limit = limit
	}
	if plans, _ := cmd.Flags().GetBool("plans"); plans {
		cfg.Collect.WithPlans = true
	}
}

// openSource picks the backend named by the config.
func openSource(cfg *config.Config, log *zap.Logger) (collector.Source, error) {
	switch cfg.Source.Driver {
	case "starrocks", "doris":
		return collector.OpenStarRocks(cfg.ConnConfig(), log)
	case "clickhouse":
		return collector.OpenClickHouse(cfg.ConnConfig(), log)
	default:
		return nil, fmt.Errorf("unknown source driver %q", cfg.Source.Driver)
	}
}

// runAnalysis is one full collect-and-diagnose pass. The watch command
// reuses it on a schedule.
func runAnalysis(ctx context.Context, cfg *config.Config, log *zap.Logger) (*diag.AnalysisReport, error) {
	source, err := openSource(cfg, log)
	if err != nil {
		return nil, err
	}
	defer source.Close()

	if err := source.Ping(ctx); err != nil {
		return nil, err
	}

	records, err := collector.New(source, log).Collect(ctx, collector.Options{
		Window:      time.Duration(cfg.Collect.TimeRangeHours) * time.Hour,
		MinExecTime: cfg.Collect.MinExecTime,
		Database:    cfg.Collect.Database,
		User:        cfg.Collect.User,
		Pattern:     cfg.Collect.Pattern,
		Limit:       cfg.Collect.Limit,
		WithPlans:   cfg.Collect.WithPlans,
	})
	if err != nil {
		return nil, err
	}
	log.Info("collected slow queries",
		zap.String("source", source.Name()),
		zap.Int("count", len(records)))

	eng, err := engine.New(cfg.Thresholds(), cfg.SchemaMeta(), engine.Options{
		Workers:         cfg.Analysis.Workers,
		GroupTimeBudget: cfg.Analysis.GroupTimeBudget.Std(),
	}, log)
	if err != nil {
		return nil, err
	}
	return eng.Run(ctx, records)
}
