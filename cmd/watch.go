package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harperdean/rocklens/internal/config"
	"github.com/harperdean/rocklens/internal/report"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Analyze slow queries on a schedule",
	Long: `Run the analysis pipeline periodically, writing a report each cycle.

Each cycle collects over the configured time window, so the interval should
not exceed the window or queries fall through the gap. Stops on SIGINT or
SIGTERM.`,
	Example: `  # Analyze every hour
  rocklens watch --interval 1h

  # Short window, tight cadence
  rocklens watch --interval 10m --hours 1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		verbose, _ := cmd.Flags().GetBool("verbose")
		interval, _ := cmd.Flags().GetDuration("interval")

		if interval < time.Minute {
			return fmt.Errorf("interval %s too short: minimum is 1m", interval)
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyCollectFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		log := newLogger(verbose)
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		cycle := func() {
			rep, err := runAnalysis(ctx, cfg, log)
			if err != nil {
				log.Error("analysis cycle failed", zap.Error(err))
				return
			}
			path, err := report.Write(cfg.Report.Dir, cfg.Report.Format, rep)
			if err != nil {
				log.Error("report write failed", zap.Error(err))
				return
			}
			log.Info("analysis cycle complete",
				zap.Int("groups", rep.Summary.TotalGroups),
				zap.Int("queries", rep.Summary.TotalQueries),
				zap.String("report", path))
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(cycle),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			return err
		}

		scheduler.Start()
		fmt.Printf("Watching every %s. Press Ctrl+C to stop.\n", interval)

		<-ctx.Done()
		return scheduler.Shutdown()
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationP("interval", "i", time.Hour, "Time between analysis cycles")
	watchCmd.Flags().Int("hours", 0, "Look back this many hours each cycle")
	watchCmd.Flags().Float64("threshold", 0, "Minimum execution time in seconds")
	watchCmd.Flags().StringP("database", "d", "", "Only queries against this database")
	watchCmd.Flags().StringP("user", "u", "", "Only queries from this user")
	watchCmd.Flags().String("pattern", "", "Only statements containing this fragment")
	watchCmd.Flags().Int("limit", 0, "Maximum number of queries to collect")
	watchCmd.Flags().Bool("plans", false, "Run EXPLAIN for each collected query")
}
