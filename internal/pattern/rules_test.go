package pattern

import (
	"testing"

	"github.com/harperdean/rocklens/internal/diag"
	"github.com/harperdean/rocklens/internal/fingerprint"
)

// --- Helpers ---

func stmtOf(sql string) fingerprint.Statement {
	return fingerprint.Fingerprint(sql)
}

func requireIssue(t *testing.T, issues []diag.Issue, kind diag.IssueKind) diag.Issue {
	t.Helper()
	for _, issue := range issues {
		if issue.Kind == kind {
			return issue
		}
	}
	t.Fatalf("expected issue %s, got %v", kind, issues)
	return diag.Issue{}
}

func requireNoIssue(t *testing.T, issues []diag.Issue, kind diag.IssueKind) {
	t.Helper()
	for _, issue := range issues {
		if issue.Kind == kind {
			t.Fatalf("unexpected issue %s: %v", kind, issue)
		}
	}
}

func TestWildcardSelect_Flagged(t *testing.T) {
	issues := checkWildcardSelect(stmtOf("SELECT * FROM orders WHERE status = 'pending'"), nil)
	issue := requireIssue(t, issues, diag.WildcardSelect)

	if issue.Severity != diag.Slow {
		t.Errorf("severity = %v, want SLOW", issue.Severity)
	}
	if issue.Evidence["table"] != "orders" {
		t.Errorf("table = %q, want orders", issue.Evidence["table"])
	}
}

func TestWildcardSelect_QualifiedStar(t *testing.T) {
	issues := checkWildcardSelect(stmtOf("SELECT o.* FROM orders o JOIN customers c ON o.cid = c.id"), nil)
	requireIssue(t, issues, diag.WildcardSelect)
}

func TestWildcardSelect_ExplicitColumns(t *testing.T) {
	issues := checkWildcardSelect(stmtOf("SELECT id, status FROM orders"), nil)
	requireNoIssue(t, issues, diag.WildcardSelect)
}

func TestWildcardSelect_CountStarNotFlagged(t *testing.T) {
	issues := checkWildcardSelect(stmtOf("SELECT COUNT(*) FROM orders"), nil)
	requireNoIssue(t, issues, diag.WildcardSelect)
}

func TestMissingFilter_SingleTableNoWhere(t *testing.T) {
	issues := checkMissingFilter(stmtOf("SELECT id, status FROM orders"), nil)
	issue := requireIssue(t, issues, diag.MissingFilter)

	if issue.Severity != diag.VerySlow {
		t.Errorf("severity = %v, want VERY_SLOW", issue.Severity)
	}
}

func TestMissingFilter_WhereClausePresent(t *testing.T) {
	issues := checkMissingFilter(stmtOf("SELECT id FROM orders WHERE status = 'x'"), nil)
	requireNoIssue(t, issues, diag.MissingFilter)
}

func TestMissingFilter_AggregateExempt(t *testing.T) {
	issues := checkMissingFilter(stmtOf("SELECT COUNT(*) FROM orders"), nil)
	requireNoIssue(t, issues, diag.MissingFilter)
}

func TestMissingFilter_JoinWithoutSchemaSkipped(t *testing.T) {
	issues := checkMissingFilter(stmtOf("SELECT o.id FROM orders o JOIN customers c ON o.cid = c.id"), nil)
	requireNoIssue(t, issues, diag.MissingFilter)
}

func TestMissingFilter_SchemaGatesToLargeTables(t *testing.T) {
	schema := &diag.Schema{LargeTables: map[string]bool{"orders": true}}

	issues := checkMissingFilter(stmtOf("SELECT id FROM orders"), schema)
	issue := requireIssue(t, issues, diag.MissingFilter)
	if issue.Evidence["table"] != "orders" {
		t.Errorf("table = %q, want orders", issue.Evidence["table"])
	}

	issues = checkMissingFilter(stmtOf("SELECT id FROM tiny_lookup"), schema)
	requireNoIssue(t, issues, diag.MissingFilter)
}

func TestUnanchoredLike_LeadingWildcard(t *testing.T) {
	issues := checkUnanchoredLike(stmtOf("SELECT name FROM users WHERE name LIKE '%smith'"), nil)
	issue := requireIssue(t, issues, diag.UnanchoredLike)

	if issue.Severity != diag.VerySlow {
		t.Errorf("severity = %v, want VERY_SLOW", issue.Severity)
	}
}

func TestUnanchoredLike_AnchoredPattern(t *testing.T) {
	issues := checkUnanchoredLike(stmtOf("SELECT name FROM users WHERE name LIKE 'smith%'"), nil)
	requireNoIssue(t, issues, diag.UnanchoredLike)
}

func TestOrDisjunction_DifferentColumns(t *testing.T) {
	issues := checkOrDisjunction(stmtOf("SELECT id FROM users WHERE age > 30 OR name = 'bob'"), nil)
	issue := requireIssue(t, issues, diag.OrDisjunction)

	if issue.Evidence["columns"] != "age, name" {
		t.Errorf("columns = %q, want %q", issue.Evidence["columns"], "age, name")
	}
}

func TestOrDisjunction_SameColumnNotFlagged(t *testing.T) {
	issues := checkOrDisjunction(stmtOf("SELECT id FROM users WHERE status = 'a' OR status = 'b'"), nil)
	requireNoIssue(t, issues, diag.OrDisjunction)
}

func TestOrDisjunction_NoWhere(t *testing.T) {
	issues := checkOrDisjunction(stmtOf("SELECT id FROM users"), nil)
	requireNoIssue(t, issues, diag.OrDisjunction)
}

func TestCorrelatedSubquery_OuterAliasInSubquery(t *testing.T) {
	sql := "SELECT o.id FROM orders o WHERE EXISTS (SELECT 1 FROM payments p WHERE p.order_id = o.id)"
	issues := checkCorrelatedSubquery(stmtOf(sql), nil)
	issue := requireIssue(t, issues, diag.CorrelatedSubquery)

	if issue.Evidence["outer_reference"] != "o" {
		t.Errorf("outer_reference = %q, want o", issue.Evidence["outer_reference"])
	}
}

func TestCorrelatedSubquery_IndependentSubquery(t *testing.T) {
	sql := "SELECT o.id FROM orders o WHERE o.cid IN (SELECT id FROM vip_customers)"
	issues := checkCorrelatedSubquery(stmtOf(sql), nil)
	requireNoIssue(t, issues, diag.CorrelatedSubquery)
}

func TestDerivedTableSubquery_Flagged(t *testing.T) {
	sql := "SELECT t.total FROM (SELECT SUM(amount) AS total FROM orders) t"
	issues := checkDerivedTableSubquery(stmtOf(sql), nil)
	requireIssue(t, issues, diag.DerivedTableSubquery)
}

func TestFunctionInWhere_Flagged(t *testing.T) {
	issues := checkFunctionInWhere(stmtOf("SELECT id FROM logs WHERE DATE(created_at) = '2026-01-01'"), nil)
	issue := requireIssue(t, issues, diag.FunctionInWhere)

	if issue.Evidence["function"] != "DATE" {
		t.Errorf("function = %q, want DATE", issue.Evidence["function"])
	}
	if issue.Evidence["column"] != "created_at" {
		t.Errorf("column = %q, want created_at", issue.Evidence["column"])
	}
}

func TestFunctionInWhere_OperatorKeywordsExempt(t *testing.T) {
	issues := checkFunctionInWhere(stmtOf("SELECT id FROM users WHERE id IN (1, 2, 3)"), nil)
	requireNoIssue(t, issues, diag.FunctionInWhere)
}

func TestMissingPartitionFilter_NoPredicateOnPartitionColumn(t *testing.T) {
	schema := &diag.Schema{PartitionedTables: map[string]string{"events": "dt"}}

	issues := checkMissingPartitionFilter(stmtOf("SELECT user_id FROM events WHERE user_id = 42"), schema)
	issue := requireIssue(t, issues, diag.MissingPartitionFilter)

	if issue.Evidence["table"] != "events" {
		t.Errorf("table = %q, want events", issue.Evidence["table"])
	}
	if issue.Evidence["partition_column"] != "dt" {
		t.Errorf("partition_column = %q, want dt", issue.Evidence["partition_column"])
	}
}

func TestMissingPartitionFilter_PredicatePresent(t *testing.T) {
	schema := &diag.Schema{PartitionedTables: map[string]string{"events": "dt"}}

	issues := checkMissingPartitionFilter(stmtOf("SELECT user_id FROM events WHERE dt = '2026-08-01'"), schema)
	requireNoIssue(t, issues, diag.MissingPartitionFilter)
}

func TestMissingPartitionFilter_NilSchema(t *testing.T) {
	issues := checkMissingPartitionFilter(stmtOf("SELECT user_id FROM events"), nil)
	requireNoIssue(t, issues, diag.MissingPartitionFilter)
}

func TestDetect_CombinesRules(t *testing.T) {
	issues := Detect(stmtOf("SELECT * FROM orders"), nil)

	requireIssue(t, issues, diag.WildcardSelect)
	requireIssue(t, issues, diag.MissingFilter)
}

func TestDetect_CleanStatement(t *testing.T) {
	issues := Detect(stmtOf("SELECT id, status FROM orders WHERE status = 'x' AND created_at > '2026-01-01'"), nil)
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
}

func TestWhereColumns(t *testing.T) {
	cols := WhereColumns("SELECT * FROM orders WHERE status = ? AND created_at > ?")

	if len(cols) != 2 || cols[0] != "status" || cols[1] != "created_at" {
		t.Fatalf("cols = %v, want [status created_at]", cols)
	}
}

func TestWhereColumns_SubqueryWhereIgnored(t *testing.T) {
	cols := WhereColumns("SELECT id FROM orders WHERE cid IN ( SELECT id FROM vip WHERE tier = ? )")

	if len(cols) != 1 || cols[0] != "cid" {
		t.Fatalf("cols = %v, want [cid]", cols)
	}
}
