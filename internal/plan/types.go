package plan

import (
	"strings"
)

type OperatorKind int

const (
	KindOther OperatorKind = iota
	KindScan
	KindIndexScan
	KindJoin
	KindAggregate
	KindSort
	KindExchange
)

func (k OperatorKind) String() string {
	switch k {
	case KindScan:
		return "scan"
	case KindIndexScan:
		return "index_scan"
	case KindJoin:
		return "join"
	case KindAggregate:
		return "aggregate"
	case KindSort:
		return "sort"
	case KindExchange:
		return "exchange"
	default:
		return "other"
	}
}

// Node is one operator in a parsed execution plan. A Node tree is owned by
// the Analyze call that produced it and is never shared across groups.
type Node struct {
	Operator      string            `json:"operator"`
	Kind          OperatorKind      `json:"kind"`
	EstimatedRows int64             `json:"estimated_rows"`
	EstimatedCost float64           `json:"estimated_cost"`
	Children      []*Node           `json:"children,omitempty"`
	Attrs         map[string]string `json:"attrs,omitempty"`
}

func classifyOperator(op string) OperatorKind {
	lower := strings.ToLower(op)
	switch {
	case strings.Contains(lower, "scan"):
		if strings.Contains(lower, "index") {
			return KindIndexScan
		}
		return KindScan
	case strings.Contains(lower, "join"), strings.Contains(lower, "nested loop"):
		return KindJoin
	case strings.Contains(lower, "agg"):
		return KindAggregate
	case strings.Contains(lower, "sort"), strings.Contains(lower, "top-n"),
		strings.Contains(lower, "topn"), strings.Contains(lower, "order by"):
		return KindSort
	case strings.Contains(lower, "exchange"), strings.Contains(lower, "gather"):
		return KindExchange
	default:
		return KindOther
	}
}

// Table returns the relation the node reads, when the dump recorded one.
func (n *Node) Table() string {
	for _, key := range []string{"table", "relation", "relation_name", "on"} {
		if v, ok := n.Attrs[key]; ok && v != "" {
			return strings.ToLower(strings.Trim(v, "`\""))
		}
	}
	return ""
}

// Spilled reports whether the dump flagged this operator as writing
// intermediate state to disk.
func (n *Node) Spilled() bool {
	for key, val := range n.Attrs {
		lk, lv := strings.ToLower(key), strings.ToLower(val)
		if strings.Contains(lk, "spill") {
			switch lv {
			case "false", "0", "no", "none":
				continue
			}
			return true
		}
		if lk == "sort_method" && (strings.Contains(lv, "external") || strings.Contains(lv, "disk")) {
			return true
		}
	}
	return false
}

// Walk visits the tree post-order, children in dump order.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
	fn(n)
}

// TotalCost is the plan-wide cost estimate: the root's cost when present,
// otherwise the maximum cost anywhere in the tree.
func (n *Node) TotalCost() float64 {
	if n == nil {
		return 0
	}
	if n.EstimatedCost > 0 {
		return n.EstimatedCost
	}
	max := 0.0
	n.Walk(func(node *Node) {
		if node.EstimatedCost > max {
			max = node.EstimatedCost
		}
	})
	return max
}
