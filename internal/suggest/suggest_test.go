package suggest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harperdean/rocklens/internal/diag"
)

func groupWith(sev diag.Severity, count int) *diag.QueryGroup {
	return &diag.QueryGroup{
		Fingerprint:   "f0",
		CanonicalText: "SELECT * FROM orders WHERE status = ?",
		Tables:        []string{"orders"},
		Severity:      sev,
		Stats:         diag.GroupStats{Count: count},
	}
}

func kinds(suggestions []diag.Suggestion) []diag.SuggestionKind {
	out := make([]diag.SuggestionKind, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, s.Kind)
	}
	return out
}

func TestSynthesize_FullScanYieldsIndexOnWhereColumn(t *testing.T) {
	group := groupWith(diag.Critical, 10)
	issues := []diag.Issue{{
		Kind:     diag.FullTableScan,
		Severity: diag.VerySlow,
		Evidence: map[string]string{"table": "orders"},
		Source:   diag.SourcePlan,
	}}

	suggestions := Synthesize(group, issues, Options{SuggestIndexes: true})
	require.Len(t, suggestions, 1)

	s := suggestions[0]
	require.Equal(t, diag.CreateIndex, s.Kind)
	require.Equal(t, "orders(status)", s.TargetObject)
	require.Contains(t, s.SuggestedSQL, "CREATE INDEX idx_status ON orders (status);")
	require.Equal(t, []diag.IssueKind{diag.FullTableScan}, s.SupportingIssues)
}

func TestSynthesize_IndexSuggestionsGated(t *testing.T) {
	group := groupWith(diag.Critical, 10)
	issues := []diag.Issue{{
		Kind:     diag.FullTableScan,
		Evidence: map[string]string{"table": "orders"},
	}}

	suggestions := Synthesize(group, issues, Options{SuggestIndexes: false})
	require.NotEmpty(t, suggestions)
	for _, s := range suggestions {
		require.NotEqual(t, diag.CreateIndex, s.Kind)
	}
}

func TestSynthesize_WildcardSelect(t *testing.T) {
	group := groupWith(diag.Slow, 3)
	issues := []diag.Issue{{
		Kind:     diag.WildcardSelect,
		Evidence: map[string]string{"table": "orders"},
	}}

	suggestions := Synthesize(group, issues, Options{})
	require.Len(t, suggestions, 1)
	require.Equal(t, diag.ProjectNeededColumns, suggestions[0].Kind)
	require.Equal(t, "orders", suggestions[0].TargetObject)
}

func TestSynthesize_ScoreFormula(t *testing.T) {
	group := groupWith(diag.Critical, 10)
	issues := []diag.Issue{{
		Kind:     diag.WildcardSelect,
		Evidence: map[string]string{"table": "orders"},
	}}

	suggestions := Synthesize(group, issues, Options{})
	require.Len(t, suggestions, 1)

	// severity weight 8 for CRITICAL, count 10, impact 1 for projection.
	require.Equal(t, 1, suggestions[0].EstimatedImpact)
	require.Equal(t, 80.0, suggestions[0].Score)
}

func TestSynthesize_DedupAccumulatesSupport(t *testing.T) {
	group := groupWith(diag.VerySlow, 4)
	issues := []diag.Issue{
		{Kind: diag.MemorySpill, Evidence: map[string]string{"operator": "AGGREGATE"}},
		{Kind: diag.MemoryIntensive, Evidence: map[string]string{"peak_memory": "1.0GB"}},
	}

	suggestions := Synthesize(group, issues, Options{})

	var memory *diag.Suggestion
	for i := range suggestions {
		if suggestions[i].Kind == diag.IncreaseExecMemory {
			require.Nil(t, memory, "IncreaseExecMemory emitted twice")
			memory = &suggestions[i]
		}
	}
	require.NotNil(t, memory)
	require.Equal(t,
		[]diag.IssueKind{diag.MemoryIntensive, diag.MemorySpill},
		memory.SupportingIssues)
}

func TestSynthesize_DeterministicOrdering(t *testing.T) {
	group := groupWith(diag.VerySlow, 5)
	issues := []diag.Issue{
		{Kind: diag.WildcardSelect, Evidence: map[string]string{"table": "orders"}},
		{Kind: diag.UnanchoredLike},
		{Kind: diag.FullTableScan, Evidence: map[string]string{"table": "orders"}},
	}

	first := Synthesize(group, issues, Options{SuggestIndexes: true})
	for i := 0; i < 10; i++ {
		again := Synthesize(group, issues, Options{SuggestIndexes: true})
		require.Equal(t, first, again)
	}

	// Higher impact ranks first: index (5) > wildcard-LIKE fix (4) > projection (1).
	require.Equal(t, []diag.SuggestionKind{
		diag.CreateIndex,
		diag.AvoidLeadingWildcard,
		diag.ProjectNeededColumns,
	}, kinds(first))
}

func TestSynthesize_NoIssuesNoSuggestions(t *testing.T) {
	group := groupWith(diag.Slow, 1)
	require.Empty(t, Synthesize(group, nil, Options{SuggestIndexes: true}))
}

func TestMergeRanked_DeduplicatesAcrossGroups(t *testing.T) {
	a := diag.QueryGroup{Suggestions: []diag.Suggestion{{
		Kind:         diag.CreateIndex,
		TargetObject: "orders(status)",
		Score:        100,
	}}}
	b := diag.QueryGroup{Suggestions: []diag.Suggestion{{
		Kind:         diag.CreateIndex,
		TargetObject: "orders(status)",
		Score:        40,
	}, {
		Kind:         diag.AddPartitionFilter,
		TargetObject: "events(dt)",
		Score:        60,
	}}}

	merged := MergeRanked([]diag.QueryGroup{a, b})
	require.Len(t, merged, 2)

	require.Equal(t, diag.CreateIndex, merged[0].Kind)
	require.Equal(t, 140.0, merged[0].Score)
	require.Equal(t, diag.AddPartitionFilter, merged[1].Kind)
}

func TestMergeRanked_EmptyGroups(t *testing.T) {
	require.Empty(t, MergeRanked(nil))
	require.Empty(t, MergeRanked([]diag.QueryGroup{{}}))
}
