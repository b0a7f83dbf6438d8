package pattern

import (
	"sort"
	"strings"
)

var clauseTerminators = []string{" GROUP BY ", " ORDER BY ", " HAVING ", " LIMIT ", " UNION ", " WINDOW "}

// WhereColumns lists the columns referenced by comparison predicates in the
// statement's top-level WHERE clause, in first-seen order. The suggestion
// engine uses these as index candidates.
func WhereColumns(canonical string) []string {
	return predicateColumns(whereClause(canonical))
}

// whereClause returns the text of the top-level WHERE clause, or "" when the
// statement has none. Only paren depth zero counts: a WHERE inside a subquery
// does not make the outer statement filtered.
func whereClause(canonical string) string {
	idx := indexTopLevel(canonical, " WHERE ")
	if idx < 0 {
		return ""
	}
	clause := canonical[idx+len(" WHERE "):]

	end := len(clause)
	for _, term := range clauseTerminators {
		if i := indexTopLevel(clause, term); i >= 0 && i < end {
			end = i
		}
	}
	return strings.TrimSpace(clause[:end])
}

func indexTopLevel(s, sub string) int {
	depth := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		}
		if depth == 0 && strings.HasPrefix(s[i:], sub) {
			return i
		}
	}
	return -1
}

func splitTopLevel(s, sep string) []string {
	var parts []string
	for {
		idx := indexTopLevel(s, sep)
		if idx < 0 {
			parts = append(parts, s)
			return parts
		}
		parts = append(parts, s[:idx])
		s = s[idx+len(sep):]
	}
}

// predicateColumns extracts the column names appearing on the left side of
// comparison predicates, with any table qualifier stripped. Parenthesized
// text is masked first so subquery predicates do not surface as columns of
// the outer clause.
func predicateColumns(clause string) []string {
	clause = maskParenthesized(clause)
	seen := make(map[string]bool)
	var cols []string
	for _, m := range predicateColRe.FindAllStringSubmatch(clause, -1) {
		col := stripQualifier(m[1])
		if col == "" || sqlOperatorKeywords[strings.ToUpper(col)] {
			continue
		}
		if !seen[col] {
			seen[col] = true
			cols = append(cols, col)
		}
	}
	return cols
}

func maskParenthesized(s string) string {
	b := []byte(s)
	depth := 0
	for i := 0; i < len(b); i++ {
		switch b[i] {
		case '(':
			depth++
			b[i] = ' '
		case ')':
			if depth > 0 {
				depth--
			}
			b[i] = ' '
		default:
			if depth > 0 {
				b[i] = ' '
			}
		}
	}
	return string(b)
}

func stripQualifier(col string) string {
	if idx := strings.LastIndex(col, "."); idx >= 0 {
		return col[idx+1:]
	}
	return col
}

func containsColumn(clause, col string) bool {
	if clause == "" || col == "" {
		return false
	}
	lower := strings.ToLower(clause)
	col = strings.ToLower(col)
	idx := 0
	for {
		i := strings.Index(lower[idx:], col)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordByte(lower[i-1])
		after := i+len(col) == len(lower) || !isWordByte(lower[i+len(col)])
		if before && after {
			return true
		}
		idx = i + len(col)
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z')
}

// tableAliases maps every alias (or bare table name) visible in FROM/JOIN
// clauses of the given fragment.
func tableAliases(fragment string) map[string]bool {
	aliases := make(map[string]bool)
	for _, m := range fromAliasRe.FindAllStringSubmatch(fragment, -1) {
		table := stripQualifier(m[1])
		if table != "" {
			aliases[table] = true
		}
		if alias := m[2]; alias != "" && !sqlClauseKeywords[strings.ToUpper(alias)] {
			aliases[alias] = true
		}
	}
	return aliases
}

var sqlClauseKeywords = map[string]bool{
	"WHERE": true, "ON": true, "INNER": true, "LEFT": true, "RIGHT": true,
	"FULL": true, "CROSS": true, "JOIN": true, "GROUP": true, "ORDER": true,
	"LIMIT": true, "HAVING": true, "UNION": true, "SET": true, "USING": true,
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
