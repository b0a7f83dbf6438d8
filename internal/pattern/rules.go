package pattern

import (
	"regexp"
	"strings"

	"github.com/harperdean/rocklens/internal/diag"
	"github.com/harperdean/rocklens/internal/fingerprint"
)

// A Rule inspects one normalized statement and reports zero or more issues.
// Rules are independent: all of them run on every statement, none may panic,
// and a statement the lexer could not normalize simply matches nothing.
type Rule func(stmt fingerprint.Statement, schema *diag.Schema) []diag.Issue

var defaultRules = []Rule{
	checkWildcardSelect,
	checkMissingFilter,
	checkUnanchoredLike,
	checkOrDisjunction,
	checkCorrelatedSubquery,
	checkDerivedTableSubquery,
	checkFunctionInWhere,
	checkMissingPartitionFilter,
}

// Detect evaluates every rule against the statement. Schema metadata is
// optional; a nil schema disables the rules that need it.
func Detect(stmt fingerprint.Statement, schema *diag.Schema) []diag.Issue {
	var issues []diag.Issue
	for _, rule := range defaultRules {
		issues = append(issues, rule(stmt, schema)...)
	}
	return issues
}

var (
	wildcardSelectRe = regexp.MustCompile(`\bSELECT\s+(?:DISTINCT\s+)?(?:\w+\s*\.\s*)?\*`)
	aggregateRe      = regexp.MustCompile(`\b(?:COUNT|SUM|AVG|MAX|MIN)\s*\(`)
	leadingLikeRe    = regexp.MustCompile(`(?i)\bLIKE\s+['"]%`)
	derivedTableRe   = regexp.MustCompile(`\bFROM\s*\(\s*SELECT\b`)
	subqueryRe       = regexp.MustCompile(`\(\s*SELECT\b[^()]*(?:\([^()]*\)[^()]*)*\)`)
	fromAliasRe      = regexp.MustCompile(`\b(?:FROM|JOIN)\s+([\w.]+)(?:\s+(?:AS\s+)?(\w+))?`)
	predicateColRe   = regexp.MustCompile(`([A-Za-z_][\w.]*)\s*(?:=|!=|<>|>=|<=|>|<|\bLIKE\b|\bIN\b|\bBETWEEN\b)`)
	funcCallRe       = regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\(\s*([A-Za-z_][\w.]*)`)
)

func checkWildcardSelect(stmt fingerprint.Statement, _ *diag.Schema) []diag.Issue {
	if !wildcardSelectRe.MatchString(stmt.Canonical) {
		return nil
	}
	ev := map[string]string{"match": "SELECT *"}
	if len(stmt.Tables) > 0 {
		ev["table"] = stmt.Tables[0]
	}
	return []diag.Issue{{
		Kind:     diag.WildcardSelect,
		Severity: diag.Slow,
		Evidence: ev,
		Source:   diag.SourcePattern,
	}}
}

func checkMissingFilter(stmt fingerprint.Statement, schema *diag.Schema) []diag.Issue {
	if stmt.Command != "" && stmt.Command != "SELECT" {
		return nil
	}
	if !strings.HasPrefix(stmt.Canonical, "SELECT") {
		return nil
	}
	if whereClause(stmt.Canonical) != "" {
		return nil
	}
	// Bare aggregates over a whole table are usually intentional.
	if aggregateRe.MatchString(stmt.Canonical) {
		return nil
	}

	table := ""
	if schema != nil && schema.LargeTables != nil {
		for _, t := range stmt.Tables {
			if schema.IsLarge(t) {
				table = t
				break
			}
		}
		if table == "" {
			return nil
		}
	} else if strings.Contains(stmt.Canonical, " JOIN ") {
		// Without size metadata, only flag single-table statements.
		return nil
	} else if len(stmt.Tables) > 0 {
		table = stmt.Tables[0]
	}

	ev := map[string]string{}
	if table != "" {
		ev["table"] = table
	}
	return []diag.Issue{{
		Kind:     diag.MissingFilter,
		Severity: diag.VerySlow,
		Evidence: ev,
		Source:   diag.SourcePattern,
	}}
}

func checkUnanchoredLike(stmt fingerprint.Statement, _ *diag.Schema) []diag.Issue {
	// Literals are gone from the canonical text, so this rule reads the raw SQL.
	if !leadingLikeRe.MatchString(stmt.Raw) {
		return nil
	}
	return []diag.Issue{{
		Kind:     diag.UnanchoredLike,
		Severity: diag.VerySlow,
		Evidence: map[string]string{"match": "LIKE '%...'"},
		Source:   diag.SourcePattern,
	}}
}

func checkOrDisjunction(stmt fingerprint.Statement, _ *diag.Schema) []diag.Issue {
	where := whereClause(stmt.Canonical)
	if where == "" {
		return nil
	}
	parts := splitTopLevel(where, " OR ")
	if len(parts) < 2 {
		return nil
	}

	cols := make(map[string]bool)
	for _, part := range parts {
		for _, col := range predicateColumns(part) {
			cols[col] = true
		}
	}
	if len(cols) < 2 {
		return nil
	}

	return []diag.Issue{{
		Kind:     diag.OrDisjunction,
		Severity: diag.Slow,
		Evidence: map[string]string{"columns": strings.Join(sortedKeys(cols), ", ")},
		Source:   diag.SourcePattern,
	}}
}

func checkCorrelatedSubquery(stmt fingerprint.Statement, _ *diag.Schema) []diag.Issue {
	subs := subqueryRe.FindAllString(stmt.Canonical, -1)
	if len(subs) == 0 {
		return nil
	}

	outer := stmt.Canonical
	for _, sub := range subs {
		outer = strings.Replace(outer, sub, "", 1)
	}

	outerAliases := tableAliases(outer)
	if len(outerAliases) == 0 {
		return nil
	}

	for _, sub := range subs {
		inner := tableAliases(sub)
		for alias := range outerAliases {
			if inner[alias] {
				continue
			}
			if strings.Contains(sub, alias+".") {
				return []diag.Issue{{
					Kind:     diag.CorrelatedSubquery,
					Severity: diag.VerySlow,
					Evidence: map[string]string{"outer_reference": alias},
					Source:   diag.SourcePattern,
				}}
			}
		}
	}
	return nil
}

func checkDerivedTableSubquery(stmt fingerprint.Statement, _ *diag.Schema) []diag.Issue {
	if !derivedTableRe.MatchString(stmt.Canonical) {
		return nil
	}
	return []diag.Issue{{
		Kind:     diag.DerivedTableSubquery,
		Severity: diag.Slow,
		Evidence: map[string]string{"match": "FROM (SELECT ...)"},
		Source:   diag.SourcePattern,
	}}
}

func checkFunctionInWhere(stmt fingerprint.Statement, _ *diag.Schema) []diag.Issue {
	where := whereClause(stmt.Canonical)
	if where == "" {
		return nil
	}
	for _, m := range funcCallRe.FindAllStringSubmatch(where, -1) {
		name := strings.ToUpper(m[1])
		if sqlOperatorKeywords[name] {
			continue
		}
		return []diag.Issue{{
			Kind:     diag.FunctionInWhere,
			Severity: diag.Slow,
			Evidence: map[string]string{"function": name, "column": stripQualifier(m[2])},
			Source:   diag.SourcePattern,
		}}
	}
	return nil
}

func checkMissingPartitionFilter(stmt fingerprint.Statement, schema *diag.Schema) []diag.Issue {
	if schema == nil || len(schema.PartitionedTables) == 0 {
		return nil
	}
	where := whereClause(stmt.Canonical)

	var issues []diag.Issue
	for _, table := range stmt.Tables {
		col, ok := schema.PartitionColumn(table)
		if !ok {
			continue
		}
		if containsColumn(where, col) {
			continue
		}
		issues = append(issues, diag.Issue{
			Kind:     diag.MissingPartitionFilter,
			Severity: diag.VerySlow,
			Evidence: map[string]string{"table": table, "partition_column": col},
			Source:   diag.SourcePattern,
		})
	}
	return issues
}

var sqlOperatorKeywords = map[string]bool{
	"IN": true, "EXISTS": true, "NOT": true, "AND": true, "OR": true,
	"ANY": true, "ALL": true, "SOME": true, "VALUES": true, "SELECT": true,
}
