package engine

import (
	"time"

	"github.com/harperdean/rocklens/internal/diag"
	"github.com/harperdean/rocklens/internal/fingerprint"
	"github.com/harperdean/rocklens/internal/pattern"
	"github.com/harperdean/rocklens/internal/plan"
	"github.com/harperdean/rocklens/internal/suggest"
)

// AnalyzeStatement diagnoses a single SQL text without any collected
// telemetry, optionally with an execution-plan dump. It backs the offline
// inspect flow: a synthetic single-record group run through the same
// pattern, plan, and suggestion stages as a live batch.
func (e *Engine) AnalyzeStatement(sql, planText string) diag.QueryGroup {
	stmt := fingerprint.Fingerprint(sql)

	now := time.Now()
	group := diag.QueryGroup{
		Fingerprint:   stmt.Hash,
		CanonicalText: stmt.Canonical,
		Tables:        stmt.Tables,
		Records: []diag.SlowQueryRecord{{
			QueryID:   "manual",
			SQLText:   sql,
			User:      "manual",
			StartTime: now,
			EndTime:   now,
			PlanText:  planText,
		}},
	}

	issues := pattern.Detect(stmt, e.schema)
	if planText != "" {
		root, planIssues := plan.Analyze(planText, e.planCfg)
		if root != nil {
			issues = append(issues, planIssues...)
		} else {
			group.PartialAnalysis = true
		}
	}

	group.Issues = issues
	group.Severity = diag.MaxSeverity(group.Records, e.thresholds)
	group.Stats = computeStats(group.Records)
	group.Suggestions = suggest.Synthesize(&group, issues, suggest.Options{
		SuggestIndexes: e.thresholds.SuggestIndexes,
	})
	return group
}
