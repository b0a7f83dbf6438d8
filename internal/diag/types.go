package diag

import "time"

type Severity int

const (
	Normal   Severity = 0
	Slow     Severity = 1
	VerySlow Severity = 2
	Critical Severity = 3
)

func (s Severity) String() string {
	switch s {
	case Normal:
		return "NORMAL"
	case Slow:
		return "SLOW"
	case VerySlow:
		return "VERY_SLOW"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// SlowQueryRecord is one entry pulled from the target database's query log.
// Records are immutable once collected.
type SlowQueryRecord struct {
	QueryID     string    `json:"query_id"`
	SQLText     string    `json:"sql_text"`
	User        string    `json:"user"`
	Database    string    `json:"database"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	ExecTime    float64   `json:"exec_time_seconds"`
	ScanRows    int64     `json:"scan_rows"`
	ScanBytes   int64     `json:"scan_bytes"`
	MemoryBytes int64     `json:"memory_bytes"`
	PlanText    string    `json:"plan_text,omitempty"`
}

type IssueSource string

const (
	SourcePattern IssueSource = "PATTERN"
	SourcePlan    IssueSource = "PLAN"
)

type IssueKind string

const (
	WildcardSelect         IssueKind = "wildcard_select"
	MissingFilter          IssueKind = "missing_filter"
	UnanchoredLike         IssueKind = "unanchored_like"
	OrDisjunction          IssueKind = "or_disjunction"
	CorrelatedSubquery     IssueKind = "correlated_subquery"
	DerivedTableSubquery   IssueKind = "derived_table_subquery"
	FunctionInWhere        IssueKind = "function_in_where"
	MissingPartitionFilter IssueKind = "missing_partition_filter"
	MemoryIntensive        IssueKind = "memory_intensive"

	FullTableScan IssueKind = "full_table_scan"
	ExpensiveJoin IssueKind = "expensive_join"
	MemorySpill   IssueKind = "memory_spill"
	CostHotspot   IssueKind = "cost_hotspot"
)

type Issue struct {
	Kind     IssueKind         `json:"kind"`
	Severity Severity          `json:"severity"`
	Evidence map[string]string `json:"evidence,omitempty"`
	Source   IssueSource       `json:"source"`
}

type SuggestionKind string

const (
	CreateIndex            SuggestionKind = "create_index"
	ProjectNeededColumns   SuggestionKind = "project_needed_columns"
	AddWhereFilter         SuggestionKind = "add_where_filter"
	AddPartitionFilter     SuggestionKind = "add_partition_filter"
	RewriteOrAsUnion       SuggestionKind = "rewrite_or_as_union"
	RewriteSubqueryAsJoin  SuggestionKind = "rewrite_subquery_as_join"
	AvoidLeadingWildcard   SuggestionKind = "avoid_leading_wildcard"
	MoveFunctionOffColumn  SuggestionKind = "move_function_off_column"
	IncreaseExecMemory     SuggestionKind = "increase_exec_memory"
	ReduceIntermediateRows SuggestionKind = "reduce_intermediate_rows"
	OptimizeJoinOrder      SuggestionKind = "optimize_join_order"
)

type Suggestion struct {
	Kind                 SuggestionKind `json:"kind"`
	Description          string         `json:"description"`
	TargetObject         string         `json:"target_object,omitempty"`
	EstimatedImpact      int            `json:"estimated_impact"`
	EstimatedImprovement string         `json:"estimated_improvement,omitempty"`
	SuggestedSQL         string         `json:"suggested_sql,omitempty"`
	SupportingIssues     []IssueKind    `json:"supporting_issues,omitempty"`
	Score                float64        `json:"score"`
}

// QueryGroup collects all records sharing one fingerprint within a single run.
type QueryGroup struct {
	Fingerprint   string            `json:"fingerprint"`
	CanonicalText string            `json:"canonical_text"`
	Tables        []string          `json:"tables,omitempty"`
	Records       []SlowQueryRecord `json:"records"`
	Stats         GroupStats        `json:"stats"`
	Severity      Severity          `json:"severity"`
	Issues        []Issue           `json:"issues,omitempty"`
	Suggestions   []Suggestion      `json:"suggestions,omitempty"`

	// PartialAnalysis means at least one member's plan could not be analyzed
	// (absent, unparseable, or skipped because the group ran out of budget).
	PartialAnalysis bool `json:"partial_analysis,omitempty"`
}

type GroupStats struct {
	Count         int     `json:"count"`
	AvgTime       float64 `json:"avg_time"`
	MaxTime       float64 `json:"max_time"`
	P95Time       float64 `json:"p95_time"`
	TotalTime     float64 `json:"total_time"`
	TotalScanRows int64   `json:"total_scan_rows"`
}

type AnalysisReport struct {
	RunID       string       `json:"run_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Groups      []QueryGroup `json:"groups"`
	Suggestions []Suggestion `json:"suggestions"`
	Summary     Summary      `json:"summary"`
}

type Summary struct {
	TotalQueries         int              `json:"total_queries"`
	TotalGroups          int              `json:"total_groups"`
	AvgExecTime          float64          `json:"avg_exec_time"`
	MaxExecTime          float64          `json:"max_exec_time"`
	TotalScanRows        int64            `json:"total_scan_rows"`
	TotalScanBytes       int64            `json:"total_scan_bytes"`
	SeverityDistribution map[string]int   `json:"severity_distribution"`
	WindowStart          time.Time        `json:"window_start,omitempty"`
	WindowEnd            time.Time        `json:"window_end,omitempty"`
}

// Thresholds is the configuration bundle consumed by the diagnostic core.
type Thresholds struct {
	SlowSeconds     float64
	VerySlowSeconds float64
	CriticalSeconds float64
	MaxScanRows     int64
	MaxScanBytes    int64
	MaxMemoryBytes  int64
	SuggestIndexes  bool
}

// DefaultThresholds mirrors the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SlowSeconds:     1.0,
		VerySlowSeconds: 5.0,
		CriticalSeconds: 10.0,
		MaxScanRows:     10_000_000,
		MaxScanBytes:    1 << 30,
		MaxMemoryBytes:  512 << 20,
		SuggestIndexes:  true,
	}
}

// Schema is optional metadata about the target database. Absence of an entry
// simply disables the rules that need it.
type Schema struct {
	// PartitionedTables maps table name to its partition column.
	PartitionedTables map[string]string
	// LargeTables lists fact tables where an unfiltered scan is always suspect.
	LargeTables map[string]bool
}

func (s *Schema) PartitionColumn(table string) (string, bool) {
	if s == nil || s.PartitionedTables == nil {
		return "", false
	}
	col, ok := s.PartitionedTables[table]
	return col, ok
}

func (s *Schema) IsLarge(table string) bool {
	if s == nil || s.LargeTables == nil {
		return false
	}
	return s.LargeTables[table]
}
