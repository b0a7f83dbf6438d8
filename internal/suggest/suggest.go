package suggest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harperdean/rocklens/internal/diag"
	"github.com/harperdean/rocklens/internal/pattern"
)

// Severity and impact weights feeding the ranking score. The score for a
// suggestion is severityWeight(group) * group count * impactWeight(kind).
var severityWeights = map[diag.Severity]float64{
	diag.Normal:   1,
	diag.Slow:     2,
	diag.VerySlow: 4,
	diag.Critical: 8,
}

var impactWeights = map[diag.SuggestionKind]int{
	diag.CreateIndex:            5,
	diag.AddPartitionFilter:     5,
	diag.AvoidLeadingWildcard:   4,
	diag.AddWhereFilter:         4,
	diag.ReduceIntermediateRows: 3,
	diag.RewriteSubqueryAsJoin:  3,
	diag.OptimizeJoinOrder:      3,
	diag.MoveFunctionOffColumn:  3,
	diag.IncreaseExecMemory:     2,
	diag.RewriteOrAsUnion:       2,
	diag.ProjectNeededColumns:   1,
}

// Options gates optional suggestion families.
type Options struct {
	SuggestIndexes bool
}

// Synthesize converts a group's detected issues into ranked, deduplicated
// suggestions. Output ordering is deterministic: descending score, ties
// broken lexicographically by kind then target.
func Synthesize(group *diag.QueryGroup, issues []diag.Issue, opts Options) []diag.Suggestion {
	byKey := make(map[string]*diag.Suggestion)
	var order []string

	for _, issue := range issues {
		for _, cand := range templatesFor(issue, group, opts) {
			key := string(cand.Kind) + "\x00" + cand.TargetObject
			existing, ok := byKey[key]
			if !ok {
				s := cand
				s.SupportingIssues = []diag.IssueKind{issue.Kind}
				byKey[key] = &s
				order = append(order, key)
				continue
			}
			if !containsKind(existing.SupportingIssues, issue.Kind) {
				existing.SupportingIssues = append(existing.SupportingIssues, issue.Kind)
			}
		}
	}

	weight := severityWeights[group.Severity]
	out := make([]diag.Suggestion, 0, len(order))
	for _, key := range order {
		s := byKey[key]
		s.EstimatedImpact = impactWeights[s.Kind]
		s.Score = weight * float64(group.Stats.Count) * float64(s.EstimatedImpact)
		sort.Slice(s.SupportingIssues, func(i, j int) bool {
			return s.SupportingIssues[i] < s.SupportingIssues[j]
		})
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].TargetObject < out[j].TargetObject
	})
	return out
}

func templatesFor(issue diag.Issue, group *diag.QueryGroup, opts Options) []diag.Suggestion {
	switch issue.Kind {
	case diag.FullTableScan:
		return fullScanSuggestions(issue, group, opts)

	case diag.WildcardSelect:
		return []diag.Suggestion{{
			Kind:                 diag.ProjectNeededColumns,
			Description:          "SELECT * returns every column; project only the columns the caller reads",
			TargetObject:         issue.Evidence["table"],
			EstimatedImprovement: "30-70% less data scanned and transferred",
		}}

	case diag.MissingFilter:
		return []diag.Suggestion{{
			Kind:                 diag.AddWhereFilter,
			Description:          "statement reads the whole table; add a WHERE predicate to bound the scan",
			TargetObject:         issue.Evidence["table"],
			EstimatedImprovement: "scan volume drops in proportion to predicate selectivity",
		}}

	case diag.MissingPartitionFilter:
		table := issue.Evidence["table"]
		col := issue.Evidence["partition_column"]
		return []diag.Suggestion{{
			Kind:                 diag.AddPartitionFilter,
			Description:          fmt.Sprintf("no predicate on partition column %q; every partition of %s is scanned", col, table),
			TargetObject:         target(table, col),
			EstimatedImprovement: "partition pruning typically eliminates most partitions",
			SuggestedSQL:         fmt.Sprintf("... WHERE %s >= :lower AND %s < :upper", col, col),
		}}

	case diag.UnanchoredLike:
		return []diag.Suggestion{{
			Kind:                 diag.AvoidLeadingWildcard,
			Description:          "LIKE '%...' cannot use prefix indexing; anchor the pattern or use an inverted index",
			EstimatedImprovement: "index hit rate goes from zero to near full",
		}}

	case diag.OrDisjunction:
		return []diag.Suggestion{{
			Kind:                 diag.RewriteOrAsUnion,
			Description:          "top-level OR across different columns defeats index selection; consider UNION ALL branches",
			TargetObject:         issue.Evidence["columns"],
			SuggestedSQL:         "SELECT ... WHERE cond1 UNION ALL SELECT ... WHERE cond2",
			EstimatedImprovement: "each branch can use its own index",
		}}

	case diag.CorrelatedSubquery:
		return []diag.Suggestion{{
			Kind:                 diag.RewriteSubqueryAsJoin,
			Description:          "correlated subquery re-executes per outer row; rewrite as a JOIN or CTE",
			EstimatedImprovement: "20-60% for large outer inputs",
		}}

	case diag.DerivedTableSubquery:
		return []diag.Suggestion{{
			Kind:        diag.RewriteSubqueryAsJoin,
			Description: "derived table in FROM materializes an intermediate result; a CTE or JOIN lets the planner flatten it",
		}}

	case diag.FunctionInWhere:
		col := issue.Evidence["column"]
		return []diag.Suggestion{{
			Kind:                 diag.MoveFunctionOffColumn,
			Description:          fmt.Sprintf("%s(%s) in WHERE prevents index use; move the function to the constant side", issue.Evidence["function"], col),
			TargetObject:         col,
			SuggestedSQL:         "-- WHERE YEAR(created_at) = 2023  ->  WHERE created_at >= '2023-01-01' AND created_at < '2024-01-01'",
			EstimatedImprovement: "restores index eligibility for the predicate",
		}}

	case diag.ExpensiveJoin:
		return []diag.Suggestion{{
			Kind:                 diag.OptimizeJoinOrder,
			Description:          fmt.Sprintf("%s costs %s against children worth %s; check join order and join-column indexes", issue.Evidence["operator"], issue.Evidence["cost"], issue.Evidence["child_cost"]),
			EstimatedImprovement: "joining the smaller input first usually shrinks the build side",
		}}

	case diag.MemorySpill, diag.MemoryIntensive:
		return []diag.Suggestion{{
			Kind:                 diag.IncreaseExecMemory,
			Description:          "operator spilled or ran hot on memory; raise the per-query memory limit",
			EstimatedImprovement: "keeps aggregation/sort state resident",
		}, {
			Kind:                 diag.ReduceIntermediateRows,
			Description:          "alternatively reduce the rows flowing into the blocking operator (pre-filter, pre-aggregate)",
			EstimatedImprovement: "smaller intermediate state avoids the spill entirely",
		}}

	case diag.CostHotspot:
		return []diag.Suggestion{{
			Kind:                 diag.ReduceIntermediateRows,
			Description:          fmt.Sprintf("%s alone accounts for %s of %s total plan cost; reduce its input first", issue.Evidence["operator"], issue.Evidence["cost"], issue.Evidence["total_cost"]),
			TargetObject:         issue.Evidence["operator"],
			EstimatedImprovement: "the dominant node bounds the whole query",
		}}
	}
	return nil
}

func fullScanSuggestions(issue diag.Issue, group *diag.QueryGroup, opts Options) []diag.Suggestion {
	if !opts.SuggestIndexes {
		return []diag.Suggestion{{
			Kind:                 diag.ReduceIntermediateRows,
			Description:          "full scan over " + scanLabel(issue) + "; tighten predicates to cut scanned rows",
			TargetObject:         issue.Evidence["table"],
			EstimatedImprovement: "50-99% fewer rows scanned",
		}}
	}

	cols := pattern.WhereColumns(group.CanonicalText)
	table := issue.Evidence["table"]
	if table == "" && len(group.Tables) > 0 {
		table = group.Tables[0]
	}

	var suggestions []diag.Suggestion
	for _, col := range cols {
		suggestions = append(suggestions, diag.Suggestion{
			Kind:                 diag.CreateIndex,
			Description:          fmt.Sprintf("full scan filtered on %q; an index there lets the engine skip unmatched rows", col),
			TargetObject:         target(table, col),
			SuggestedSQL:         fmt.Sprintf("CREATE INDEX idx_%s ON %s (%s);", col, tableOrPlaceholder(table), col),
			EstimatedImprovement: "50-90% faster point and range lookups",
		})
	}
	if len(suggestions) == 0 {
		suggestions = append(suggestions, diag.Suggestion{
			Kind:                 diag.CreateIndex,
			Description:          "full scan over " + scanLabel(issue) + "; index the most selective predicate column",
			TargetObject:         table,
			EstimatedImprovement: "50-90% faster lookups once a predicate exists",
		})
	}
	return suggestions
}

func scanLabel(issue diag.Issue) string {
	if t := issue.Evidence["table"]; t != "" {
		return t
	}
	return "the scanned table"
}

func target(table, col string) string {
	switch {
	case table == "":
		return col
	case col == "":
		return table
	default:
		return table + "(" + col + ")"
	}
}

func tableOrPlaceholder(table string) string {
	if table == "" {
		return "<table>"
	}
	return table
}

func containsKind(kinds []diag.IssueKind, kind diag.IssueKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// MergeRanked folds per-group suggestion lists into one globally ranked list,
// deduplicating by (kind, target) and keeping the highest score. Ordering is
// stable for identical inputs.
func MergeRanked(groups []diag.QueryGroup) []diag.Suggestion {
	byKey := make(map[string]*diag.Suggestion)
	var order []string

	for _, g := range groups {
		for _, s := range g.Suggestions {
			key := string(s.Kind) + "\x00" + s.TargetObject
			existing, ok := byKey[key]
			if !ok {
				cp := s
				byKey[key] = &cp
				order = append(order, key)
				continue
			}
			if s.Score > existing.Score {
				score := existing.Score + s.Score
				*existing = s
				existing.Score = score
			} else {
				existing.Score += s.Score
			}
			for _, kind := range s.SupportingIssues {
				if !containsKind(existing.SupportingIssues, kind) {
					existing.SupportingIssues = append(existing.SupportingIssues, kind)
				}
			}
			sort.Slice(existing.SupportingIssues, func(i, j int) bool {
				return existing.SupportingIssues[i] < existing.SupportingIssues[j]
			})
		}
	}

	out := make([]diag.Suggestion, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return strings.Compare(out[i].TargetObject, out[j].TargetObject) < 0
	})
	return out
}
