package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harperdean/rocklens/internal/config"
	"github.com/harperdean/rocklens/internal/diag"
	"github.com/harperdean/rocklens/internal/engine"
	"github.com/harperdean/rocklens/internal/report"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Diagnose a single SQL statement offline",
	Long: `Diagnose a single SQL statement without connecting to a database.

Input is a SQL file, or "-" to read from stdin. Pass --plan with an EXPLAIN
dump to include plan-tree analysis alongside the pattern checks.`,
	Example: `  # Inspect a query from a file
  rocklens inspect query.sql

  # Include an execution plan
  rocklens inspect query.sql --plan plan.txt

  # Read from stdin
  cat query.sql | rocklens inspect -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		verbose, _ := cmd.Flags().GetBool("verbose")
		planFile, _ := cmd.Flags().GetString("plan")
		format, _ := cmd.Flags().GetString("format")

		if format != "text" && format != "json" {
			return fmt.Errorf("invalid output format %q: must be \"text\" or \"json\"", format)
		}

		sqlText, err := readInput(args[0])
		if err != nil {
			return err
		}
		if strings.TrimSpace(sqlText) == "" {
			return fmt.Errorf("empty SQL input")
		}

		var planText string
		if planFile != "" {
			planText, err = readInput(planFile)
			if err != nil {
				return err
			}
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		log := newLogger(verbose)
		defer log.Sync()

		eng, err := engine.New(cfg.Thresholds(), cfg.SchemaMeta(), engine.Options{}, log)
		if err != nil {
			return err
		}
		group := eng.AnalyzeStatement(sqlText, planText)

		rep := &diag.AnalysisReport{
			RunID:       uuid.NewString(),
			GeneratedAt: time.Now(),
			Groups:      []diag.QueryGroup{group},
			Suggestions: group.Suggestions,
			Summary: diag.Summary{
				TotalQueries: 1,
				TotalGroups:  1,
				SeverityDistribution: map[string]int{
					group.Severity.String(): 1,
				},
			},
		}
		return report.Render(os.Stdout, format, rep)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringP("plan", "p", "", "File with an EXPLAIN dump for the statement")
	inspectCmd.Flags().StringP("format", "f", "text", "Output format: text, json")
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
