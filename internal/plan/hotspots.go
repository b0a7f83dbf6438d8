package plan

import (
	"fmt"

	"github.com/harperdean/rocklens/internal/diag"
)

// Defaults for the knobs the plan dumps themselves don't define.
const (
	DefaultJoinCostMultiple = 2.0
	DefaultHotspotFraction  = 0.5

	criticalScanFactor = 10
)

// Config tunes hotspot detection.
type Config struct {
	MaxScanRows      int64
	JoinCostMultiple float64
	HotspotFraction  float64
}

func DefaultConfig() Config {
	return Config{
		MaxScanRows:      10_000_000,
		JoinCostMultiple: DefaultJoinCostMultiple,
		HotspotFraction:  DefaultHotspotFraction,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxScanRows <= 0 {
		c.MaxScanRows = DefaultConfig().MaxScanRows
	}
	if c.JoinCostMultiple <= 0 {
		c.JoinCostMultiple = DefaultJoinCostMultiple
	}
	if c.HotspotFraction <= 0 {
		c.HotspotFraction = DefaultHotspotFraction
	}
	return c
}

// Analyze parses a plan dump and flags cost hotspots in the resulting tree.
// It fails closed: unparseable input yields a nil tree and no issues, never
// an error that could abort the caller's run.
func Analyze(planText string, cfg Config) (*Node, []diag.Issue) {
	root, err := Parse(planText)
	if err != nil {
		return nil, nil
	}
	return root, detectHotspots(root, cfg.withDefaults())
}

func detectHotspots(root *Node, cfg Config) []diag.Issue {
	var issues []diag.Issue

	totalCost := root.TotalCost()
	var hotspot *Node

	root.Walk(func(n *Node) {
		if issue := checkFullScan(n, cfg); issue != nil {
			issues = append(issues, *issue)
		}
		if issue := checkExpensiveJoin(n, cfg); issue != nil {
			issues = append(issues, *issue)
		}
		if issue := checkSpill(n); issue != nil {
			issues = append(issues, *issue)
		}
		// The root aggregates the whole plan's cost and would always win,
		// so it is not a hotspot candidate.
		if n != root {
			hotspot = pickHotspot(hotspot, n)
		}
	})

	// At most one cost hotspot per plan: the single highest-cost node,
	// and only when it dominates the plan's total cost.
	if hotspot != nil && totalCost > 0 &&
		hotspot.EstimatedCost >= cfg.HotspotFraction*totalCost {
		issues = append(issues, diag.Issue{
			Kind:     diag.CostHotspot,
			Severity: diag.Slow,
			Evidence: map[string]string{
				"operator":   hotspot.Operator,
				"cost":       fmt.Sprintf("%.2f", hotspot.EstimatedCost),
				"total_cost": fmt.Sprintf("%.2f", totalCost),
			},
			Source: diag.SourcePlan,
		})
	}

	return issues
}

func checkFullScan(n *Node, cfg Config) *diag.Issue {
	if n.Kind != KindScan {
		return nil
	}
	if n.EstimatedRows <= cfg.MaxScanRows {
		return nil
	}

	severity := diag.VerySlow
	if n.EstimatedRows > criticalScanFactor*cfg.MaxScanRows {
		severity = diag.Critical
	}

	ev := map[string]string{
		"operator": n.Operator,
		"rows":     fmt.Sprintf("%d", n.EstimatedRows),
	}
	if table := n.Table(); table != "" {
		ev["table"] = table
	}
	return &diag.Issue{
		Kind:     diag.FullTableScan,
		Severity: severity,
		Evidence: ev,
		Source:   diag.SourcePlan,
	}
}

func checkExpensiveJoin(n *Node, cfg Config) *diag.Issue {
	if n.Kind != KindJoin || len(n.Children) == 0 || n.EstimatedCost <= 0 {
		return nil
	}

	childCost := 0.0
	for _, child := range n.Children {
		childCost += child.EstimatedCost
	}
	if childCost <= 0 || n.EstimatedCost <= cfg.JoinCostMultiple*childCost {
		return nil
	}

	return &diag.Issue{
		Kind:     diag.ExpensiveJoin,
		Severity: diag.VerySlow,
		Evidence: map[string]string{
			"operator":   n.Operator,
			"cost":       fmt.Sprintf("%.2f", n.EstimatedCost),
			"child_cost": fmt.Sprintf("%.2f", childCost),
		},
		Source: diag.SourcePlan,
	}
}

func checkSpill(n *Node) *diag.Issue {
	if n.Kind != KindAggregate && n.Kind != KindSort {
		return nil
	}
	if !n.Spilled() {
		return nil
	}
	return &diag.Issue{
		Kind:     diag.MemorySpill,
		Severity: diag.Critical,
		Evidence: map[string]string{"operator": n.Operator},
		Source:   diag.SourcePlan,
	}
}

// pickHotspot keeps the better hotspot candidate. Highest cost wins, ties go
// to the larger row estimate, remaining ties to the node seen first.
func pickHotspot(best, cand *Node) *Node {
	if cand.EstimatedCost <= 0 {
		return best
	}
	if best == nil {
		return cand
	}
	if cand.EstimatedCost > best.EstimatedCost {
		return cand
	}
	if cand.EstimatedCost == best.EstimatedCost && cand.EstimatedRows > best.EstimatedRows {
		return cand
	}
	return best
}
