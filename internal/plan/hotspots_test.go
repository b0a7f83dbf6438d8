package plan

import (
	"testing"

	"github.com/harperdean/rocklens/internal/diag"
)

func findIssue(issues []diag.Issue, kind diag.IssueKind) *diag.Issue {
	for i := range issues {
		if issues[i].Kind == kind {
			return &issues[i]
		}
	}
	return nil
}

func requirePlanIssue(t *testing.T, issues []diag.Issue, kind diag.IssueKind) diag.Issue {
	t.Helper()
	issue := findIssue(issues, kind)
	if issue == nil {
		t.Fatalf("expected issue %s, got %v", kind, issues)
	}
	if issue.Source != diag.SourcePlan {
		t.Errorf("source = %v, want PLAN", issue.Source)
	}
	return *issue
}

func TestAnalyze_FullTableScan(t *testing.T) {
	text := `0:OlapScanNode
   TABLE: orders
   cardinality: 50000000
`
	root, issues := Analyze(text, Config{MaxScanRows: 10_000_000})
	if root == nil {
		t.Fatal("expected parsed tree")
	}

	issue := requirePlanIssue(t, issues, diag.FullTableScan)
	if issue.Severity != diag.VerySlow {
		t.Errorf("severity = %v, want VERY_SLOW", issue.Severity)
	}
	if issue.Evidence["table"] != "orders" {
		t.Errorf("table = %q, want orders", issue.Evidence["table"])
	}
}

func TestAnalyze_FullTableScanCriticalAtTenfold(t *testing.T) {
	text := `0:OlapScanNode
   TABLE: events
   cardinality: 200000000
`
	_, issues := Analyze(text, Config{MaxScanRows: 10_000_000})

	issue := requirePlanIssue(t, issues, diag.FullTableScan)
	if issue.Severity != diag.Critical {
		t.Errorf("severity = %v, want CRITICAL", issue.Severity)
	}
}

func TestAnalyze_ScanUnderCapClean(t *testing.T) {
	text := `0:OlapScanNode
   TABLE: orders
   cardinality: 5000
`
	_, issues := Analyze(text, Config{MaxScanRows: 10_000_000})
	if findIssue(issues, diag.FullTableScan) != nil {
		t.Fatalf("unexpected full scan issue: %v", issues)
	}
}

func TestAnalyze_ExpensiveJoin(t *testing.T) {
	text := `Hash Join (cost=90000.00 rows=500)
  -> Seq Scan on orders (cost=455.00 rows=10000)
  -> Seq Scan on customers (cost=45.00 rows=200)
`
	_, issues := Analyze(text, Config{MaxScanRows: 10_000_000})

	issue := requirePlanIssue(t, issues, diag.ExpensiveJoin)
	if issue.Severity != diag.VerySlow {
		t.Errorf("severity = %v, want VERY_SLOW", issue.Severity)
	}
	if issue.Evidence["operator"] != "Hash Join" {
		t.Errorf("operator = %q, want Hash Join", issue.Evidence["operator"])
	}
}

func TestAnalyze_CheapJoinClean(t *testing.T) {
	text := `Hash Join (cost=700.00 rows=500)
  -> Seq Scan on orders (cost=455.00 rows=10000)
  -> Seq Scan on customers (cost=45.00 rows=200)
`
	_, issues := Analyze(text, Config{MaxScanRows: 10_000_000})
	if findIssue(issues, diag.ExpensiveJoin) != nil {
		t.Fatalf("unexpected expensive join issue: %v", issues)
	}
}

func TestAnalyze_MemorySpill(t *testing.T) {
	text := `4:AGGREGATE
   spill: true
`
	_, issues := Analyze(text, Config{})

	issue := requirePlanIssue(t, issues, diag.MemorySpill)
	if issue.Severity != diag.Critical {
		t.Errorf("severity = %v, want CRITICAL", issue.Severity)
	}
}

func TestAnalyze_ExternalSortSpill(t *testing.T) {
	text := `Sort (cost=250.00 rows=100)
  sort_method: external merge
`
	_, issues := Analyze(text, Config{})
	requirePlanIssue(t, issues, diag.MemorySpill)
}

func TestAnalyze_CostHotspotExcludesRoot(t *testing.T) {
	// The sort dominates everything below the root; the root itself must
	// never be reported even though it carries the plan-wide cost.
	text := `RESULT SINK (cost=1000.00)
  Sort (cost=900.00 rows=100)
    Seq Scan on orders (cost=50.00 rows=100)
`
	_, issues := Analyze(text, Config{MaxScanRows: 10_000_000})

	issue := requirePlanIssue(t, issues, diag.CostHotspot)
	if issue.Evidence["operator"] != "Sort" {
		t.Errorf("hotspot operator = %q, want Sort", issue.Evidence["operator"])
	}
}

func TestAnalyze_NoHotspotWhenCostSpread(t *testing.T) {
	text := `RESULT SINK (cost=1000.00)
  Hash Join (cost=400.00 rows=100)
    Seq Scan on orders (cost=300.00 rows=100)
    Seq Scan on customers (cost=300.00 rows=100)
`
	_, issues := Analyze(text, Config{MaxScanRows: 10_000_000})
	if findIssue(issues, diag.CostHotspot) != nil {
		t.Fatalf("unexpected hotspot issue: %v", issues)
	}
}

func TestAnalyze_MalformedPlanFailsClosed(t *testing.T) {
	root, issues := Analyze("not a plan, just prose without operators", Config{})
	if root != nil {
		t.Errorf("expected nil tree, got %+v", root)
	}
	if len(issues) != 0 {
		t.Errorf("expected no issues, got %v", issues)
	}
}

func TestAnalyze_AtMostOneHotspot(t *testing.T) {
	text := `RESULT SINK (cost=1000.00)
  Sort (cost=900.00 rows=100)
    AGGREGATE (cost=850.00 rows=100)
      Seq Scan on orders (cost=50.00 rows=100)
`
	_, issues := Analyze(text, Config{MaxScanRows: 10_000_000})

	count := 0
	for _, issue := range issues {
		if issue.Kind == diag.CostHotspot {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("hotspot count = %d, want 1", count)
	}
}
