package plan

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformedPlan reports a dump the parser could not turn into a single
// rooted tree. Callers treat it as a soft condition: plan analysis is
// best-effort and never aborts the surrounding run.
var ErrMalformedPlan = errors.New("malformed plan text")

// Parse reconstructs an operator tree from a textual plan dump.
//
// The dump is line oriented. Operator lines are recognized by marker tokens
// ("-> ", the "N:OPERATOR" numbering StarRocks emits) or by an operator name
// optionally followed by parenthesized estimates, and nesting comes from
// indentation depth. Lines of the form "key: value" or "key=value" attach as
// raw attributes to the operator above them. Estimated rows and cost are
// pulled from well-known attribute keys when present.
func Parse(text string) (*Node, error) {
	var (
		root  *Node
		stack []frame
	)

	for _, rawLine := range strings.Split(text, "\n") {
		line, depth := stripTreeDecoration(rawLine)
		if line == "" {
			continue
		}

		op, props, isNode := matchOperatorLine(line)
		if !isNode {
			if len(stack) > 0 {
				key, val, ok := matchAttrLine(line)
				if ok {
					absorbAttr(stack[len(stack)-1].node, key, val)
				}
			}
			continue
		}

		node := &Node{
			Operator: op,
			Kind:     classifyOperator(op),
			Attrs:    make(map[string]string),
		}
		for key, val := range props {
			absorbAttr(node, key, val)
		}
		if table, base, ok := splitScanTarget(op); ok {
			node.Operator = base
			node.Kind = classifyOperator(base)
			absorbAttr(node, "table", table)
		}

		for len(stack) > 0 && stack[len(stack)-1].depth >= depth {
			stack = stack[:len(stack)-1]
		}

		if len(stack) == 0 {
			if root != nil {
				return nil, errors.Wrap(ErrMalformedPlan, "multiple root operators")
			}
			root = node
		} else {
			parent := stack[len(stack)-1].node
			parent.Children = append(parent.Children, node)
		}
		stack = append(stack, frame{depth: depth, node: node})
	}

	if root == nil {
		return nil, errors.Wrap(ErrMalformedPlan, "no operators found")
	}
	return root, nil
}

type frame struct {
	depth int
	node  *Node
}

// stripTreeDecoration removes the box-drawing gutter some engines emit and
// returns the remaining content with its effective indentation depth.
func stripTreeDecoration(line string) (string, int) {
	depth := 0
	i := 0
	for i < len(line) {
		switch line[i] {
		case ' ', '|':
			depth++
			i++
		case '\t':
			depth += 4
			i++
		case '+', '\\':
			// "+--" / "\--" connectors
			depth++
			i++
			for i < len(line) && line[i] == '-' {
				depth++
				i++
			}
		case '-':
			// A run of dashes is a connector ("|----"); a lone dash
			// followed by '>' is the arrow marker, handled below.
			if strings.HasPrefix(line[i:], "->") {
				return strings.TrimSpace(line[i+2:]), depth
			}
			depth++
			i++
		default:
			return strings.TrimRight(line[i:], " \t\r"), depth
		}
	}
	return "", depth
}

// matchOperatorLine decides whether a cleaned line introduces an operator and
// returns the operator name plus any parenthesized key=value estimates.
func matchOperatorLine(line string) (string, map[string]string, bool) {
	// StarRocks-style "2:HASH JOIN".
	if idx := strings.Index(line, ":"); idx > 0 && isAllDigits(line[:idx]) {
		return strings.TrimSpace(line[idx+1:]), nil, true
	}

	name := line
	props := map[string]string{}
	if open := strings.Index(line, "("); open > 0 && strings.HasSuffix(line, ")") {
		name = strings.TrimSpace(line[:open])
		props = parseProps(line[open+1 : len(line)-1])
	}

	if name == "" || !isUpperByte(name[0]) {
		return "", nil, false
	}
	// "TABLE: orders" and friends are attributes, not operators.
	if strings.ContainsAny(name, ":=") {
		return "", nil, false
	}
	return name, props, true
}

func matchAttrLine(line string) (string, string, bool) {
	for _, sep := range []string{":", "="} {
		idx := strings.Index(line, sep)
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" || strings.ContainsAny(key, "()") {
			continue
		}
		return normalizeKey(key), val, true
	}
	return "", "", false
}

// parseProps splits "cost=0.00..455.00 rows=10000 width=8" style estimate
// blocks into key/value pairs.
func parseProps(s string) map[string]string {
	props := make(map[string]string)
	for _, tok := range strings.Fields(strings.ReplaceAll(s, ",", " ")) {
		idx := strings.Index(tok, "=")
		if idx <= 0 {
			continue
		}
		props[normalizeKey(tok[:idx])] = tok[idx+1:]
	}
	return props
}

func absorbAttr(n *Node, key, val string) {
	key = normalizeKey(key)
	n.Attrs[key] = val

	switch key {
	case "rows", "plan_rows", "cardinality", "est_rows", "estimated_rows":
		if rows, ok := parseRowCount(val); ok && n.EstimatedRows == 0 {
			n.EstimatedRows = rows
		}
	case "cost", "total_cost", "estimated_cost":
		if cost, ok := parseCost(val); ok && n.EstimatedCost == 0 {
			n.EstimatedCost = cost
		}
	}
}

func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
}

func parseRowCount(val string) (int64, bool) {
	val = strings.TrimSpace(val)
	if n, err := strconv.ParseInt(val, 10, 64); err == nil {
		return n, true
	}
	// Planners sometimes emit scientific notation, e.g. 1.0E7.
	if f, err := strconv.ParseFloat(val, 64); err == nil && f >= 0 {
		return int64(f), true
	}
	return 0, false
}

func parseCost(val string) (float64, bool) {
	val = strings.TrimSpace(val)
	// "0.00..455.00" ranges resolve to the upper bound.
	if idx := strings.LastIndex(val, ".."); idx >= 0 {
		val = val[idx+2:]
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}

// splitScanTarget peels the relation off "Seq Scan on orders" style operator
// names.
func splitScanTarget(op string) (table, base string, ok bool) {
	idx := strings.Index(op, " on ")
	if idx < 0 {
		return "", "", false
	}
	base = strings.TrimSpace(op[:idx])
	table = strings.TrimSpace(op[idx+len(" on "):])
	if base == "" || table == "" || strings.Contains(table, " ") {
		return "", "", false
	}
	return table, base, true
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isUpperByte(b byte) bool {
	return b >= 'A' && b <= 'Z'
}
