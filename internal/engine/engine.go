package engine

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harperdean/rocklens/internal/diag"
	"github.com/harperdean/rocklens/internal/fingerprint"
	"github.com/harperdean/rocklens/internal/pattern"
	"github.com/harperdean/rocklens/internal/plan"
	"github.com/harperdean/rocklens/internal/suggest"
)

// ErrInvalidThresholds is returned before any analysis begins when the
// configured cutoff ladder is not strictly ascending.
var ErrInvalidThresholds = errors.New("invalid threshold configuration")

// Options tunes the run, not the diagnosis.
type Options struct {
	// Workers bounds concurrent per-group analysis. Zero means GOMAXPROCS.
	Workers int
	// GroupTimeBudget caps plan-analysis work per group. Once exceeded the
	// group keeps its pattern findings and skips remaining plans. Zero
	// disables the budget.
	GroupTimeBudget time.Duration
}

// Engine drives the diagnostic pipeline: fingerprint grouping, per-group
// pattern and plan analysis, severity classification, suggestion synthesis,
// and report assembly. It holds no mutable state across runs.
type Engine struct {
	thresholds diag.Thresholds
	planCfg    plan.Config
	schema     *diag.Schema
	opts       Options
	log        *zap.Logger
}

func New(thresholds diag.Thresholds, schema *diag.Schema, opts Options, log *zap.Logger) (*Engine, error) {
	if err := validateThresholds(thresholds); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		thresholds: thresholds,
		planCfg: plan.Config{
			MaxScanRows:      thresholds.MaxScanRows,
			JoinCostMultiple: plan.DefaultJoinCostMultiple,
			HotspotFraction:  plan.DefaultHotspotFraction,
		},
		schema: schema,
		opts:   opts,
		log:    log,
	}, nil
}

func validateThresholds(t diag.Thresholds) error {
	if t.SlowSeconds <= 0 || t.VerySlowSeconds <= 0 || t.CriticalSeconds <= 0 {
		return errors.Wrap(ErrInvalidThresholds, "thresholds must be positive")
	}
	if !(t.SlowSeconds < t.VerySlowSeconds && t.VerySlowSeconds < t.CriticalSeconds) {
		return errors.Wrap(ErrInvalidThresholds, "thresholds must ascend: slow < very_slow < critical")
	}
	return nil
}

// Run analyzes one batch of records and assembles the report. The report
// ordering is a pure function of the input records and configuration; the
// concurrency degree never changes it. Parsing failures are contained at the
// record/group boundary, so Run only fails on context cancellation.
func (e *Engine) Run(ctx context.Context, records []diag.SlowQueryRecord) (*diag.AnalysisReport, error) {
	start := time.Now()
	groups := e.groupByFingerprint(records)
	e.log.Info("grouped slow queries",
		zap.Int("records", len(records)),
		zap.Int("groups", len(groups)))

	workers := e.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range groups {
		group := &groups[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e.analyzeGroup(group)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortGroups(groups)

	report := &diag.AnalysisReport{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now(),
		Groups:      groups,
		Suggestions: suggest.MergeRanked(groups),
		Summary:     summarize(records, groups, e.thresholds),
	}
	e.log.Info("analysis complete",
		zap.String("run_id", report.RunID),
		zap.Int("groups", len(groups)),
		zap.Int("suggestions", len(report.Suggestions)),
		zap.Duration("elapsed", time.Since(start)))
	return report, nil
}

func (e *Engine) groupByFingerprint(records []diag.SlowQueryRecord) []diag.QueryGroup {
	byHash := make(map[string]*diag.QueryGroup)
	var order []string

	for _, rec := range records {
		stmt := fingerprint.Fingerprint(rec.SQLText)
		group, ok := byHash[stmt.Hash]
		if !ok {
			group = &diag.QueryGroup{
				Fingerprint:   stmt.Hash,
				CanonicalText: stmt.Canonical,
				Tables:        stmt.Tables,
			}
			byHash[stmt.Hash] = group
			order = append(order, stmt.Hash)
		}
		group.Records = append(group.Records, rec)
	}

	groups := make([]diag.QueryGroup, 0, len(order))
	for _, hash := range order {
		groups = append(groups, *byHash[hash])
	}
	return groups
}

// analyzeGroup runs the per-group pipeline. Groups share no mutable state,
// so this runs concurrently across groups with no locking.
func (e *Engine) analyzeGroup(group *diag.QueryGroup) {
	deadline := time.Time{}
	if e.opts.GroupTimeBudget > 0 {
		deadline = time.Now().Add(e.opts.GroupTimeBudget)
	}

	// Pattern detection runs once per group: all members share the
	// canonical text.
	stmt := fingerprint.Fingerprint(group.Records[0].SQLText)
	issues := pattern.Detect(stmt, e.schema)

	// Plans differ per member even within a group (literal values steer
	// partition and segment selection), so each carried dump is analyzed.
	seen := make(map[string]bool)
	for _, rec := range group.Records {
		if rec.PlanText == "" {
			group.PartialAnalysis = true
			continue
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			e.log.Debug("group exceeded plan-analysis budget",
				zap.String("fingerprint", group.Fingerprint))
			group.PartialAnalysis = true
			break
		}
		root, planIssues := plan.Analyze(rec.PlanText, e.planCfg)
		if root == nil {
			group.PartialAnalysis = true
			continue
		}
		for _, issue := range planIssues {
			key := string(issue.Kind) + "\x00" + issue.Evidence["table"] + "\x00" + issue.Evidence["operator"]
			if seen[key] {
				continue
			}
			seen[key] = true
			issues = append(issues, issue)
		}
	}

	if issue := e.checkMemoryPressure(group); issue != nil {
		issues = append(issues, *issue)
	}

	group.Issues = issues
	group.Severity = diag.MaxSeverity(group.Records, e.thresholds)
	group.Stats = computeStats(group.Records)
	group.Suggestions = suggest.Synthesize(group, issues, suggest.Options{
		SuggestIndexes: e.thresholds.SuggestIndexes,
	})
}

func (e *Engine) checkMemoryPressure(group *diag.QueryGroup) *diag.Issue {
	if e.thresholds.MaxMemoryBytes <= 0 {
		return nil
	}
	peak := int64(0)
	for _, rec := range group.Records {
		if rec.MemoryBytes > peak {
			peak = rec.MemoryBytes
		}
	}
	if peak <= e.thresholds.MaxMemoryBytes {
		return nil
	}
	return &diag.Issue{
		Kind:     diag.MemoryIntensive,
		Severity: diag.Slow,
		Evidence: map[string]string{"peak_memory": diag.FormatBytes(peak)},
		Source:   diag.SourcePattern,
	}
}

func computeStats(records []diag.SlowQueryRecord) diag.GroupStats {
	stats := diag.GroupStats{Count: len(records)}
	times := make([]float64, 0, len(records))
	for _, rec := range records {
		stats.TotalTime += rec.ExecTime
		stats.TotalScanRows += rec.ScanRows
		if rec.ExecTime > stats.MaxTime {
			stats.MaxTime = rec.ExecTime
		}
		times = append(times, rec.ExecTime)
	}
	if len(records) > 0 {
		stats.AvgTime = stats.TotalTime / float64(len(records))
		sort.Float64s(times)
		idx := int(float64(len(times))*0.95+0.5) - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(times) {
			idx = len(times) - 1
		}
		stats.P95Time = times[idx]
	}
	return stats
}

// sortGroups ranks groups for the report: worst severity first, then the
// group burning the most total time, then the busiest, then fingerprint for
// a stable total order.
func sortGroups(groups []diag.QueryGroup) {
	sort.Slice(groups, func(i, j int) bool {
		a, b := &groups[i], &groups[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Stats.TotalTime != b.Stats.TotalTime {
			return a.Stats.TotalTime > b.Stats.TotalTime
		}
		if a.Stats.Count != b.Stats.Count {
			return a.Stats.Count > b.Stats.Count
		}
		return a.Fingerprint < b.Fingerprint
	})
}

func summarize(records []diag.SlowQueryRecord, groups []diag.QueryGroup, t diag.Thresholds) diag.Summary {
	summary := diag.Summary{
		TotalQueries:         len(records),
		TotalGroups:          len(groups),
		SeverityDistribution: make(map[string]int),
	}
	total := 0.0
	for _, rec := range records {
		total += rec.ExecTime
		if rec.ExecTime > summary.MaxExecTime {
			summary.MaxExecTime = rec.ExecTime
		}
		summary.TotalScanRows += rec.ScanRows
		summary.TotalScanBytes += rec.ScanBytes
		summary.SeverityDistribution[diag.Classify(rec, t).String()]++

		if summary.WindowStart.IsZero() || rec.StartTime.Before(summary.WindowStart) {
			summary.WindowStart = rec.StartTime
		}
		if rec.EndTime.After(summary.WindowEnd) {
			summary.WindowEnd = rec.EndTime
		}
	}
	if len(records) > 0 {
		summary.AvgExecTime = total / float64(len(records))
	}
	return summary
}
