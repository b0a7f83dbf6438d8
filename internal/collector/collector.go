package collector

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harperdean/rocklens/internal/diag"
)

// Options filters what the collector pulls from the target's query log.
type Options struct {
	// Window is how far back to look.
	Window time.Duration
	// MinExecTime drops queries faster than this many seconds.
	MinExecTime float64
	// Database and User filter by origin when non-empty.
	Database string
	User     string
	// Pattern keeps only statements containing this fragment
	// (case-insensitive), applied client-side after the log query.
	Pattern string
	// Limit caps the number of records fetched. Zero means DefaultLimit.
	Limit int
	// WithPlans runs EXPLAIN for each collected statement and attaches the
	// dump to the record. Best-effort: a failed EXPLAIN leaves the record
	// without a plan rather than dropping it.
	WithPlans bool
}

const DefaultLimit = 1000

// Source is a database backend that can serve slow-query telemetry.
type Source interface {
	Name() string
	Ping(ctx context.Context) error
	SlowQueries(ctx context.Context, opts Options) ([]diag.SlowQueryRecord, error)
	Explain(ctx context.Context, database, sql string) (string, error)
	Close() error
}

// Collector pulls and filters slow-query records from a Source.
type Collector struct {
	source Source
	log    *zap.Logger
}

func New(source Source, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{source: source, log: log}
}

func (c *Collector) Collect(ctx context.Context, opts Options) ([]diag.SlowQueryRecord, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	records, err := c.source.SlowQueries(ctx, opts)
	if err != nil {
		return nil, err
	}
	c.log.Info("collected slow queries",
		zap.String("source", c.source.Name()),
		zap.Int("records", len(records)),
		zap.Duration("window", opts.Window))

	if opts.Pattern != "" {
		records = FilterByPattern(records, opts.Pattern)
		c.log.Info("applied pattern filter",
			zap.String("pattern", opts.Pattern),
			zap.Int("remaining", len(records)))
	}

	if opts.WithPlans {
		c.attachPlans(ctx, records)
	}
	return records, nil
}

func (c *Collector) attachPlans(ctx context.Context, records []diag.SlowQueryRecord) {
	attached := 0
	for i := range records {
		if ctx.Err() != nil {
			return
		}
		planText, err := c.source.Explain(ctx, records[i].Database, records[i].SQLText)
		if err != nil {
			c.log.Debug("explain failed",
				zap.String("query_id", records[i].QueryID),
				zap.Error(err))
			continue
		}
		records[i].PlanText = planText
		attached++
	}
	c.log.Info("attached execution plans", zap.Int("plans", attached), zap.Int("records", len(records)))
}

// FilterByPattern keeps records whose SQL contains the fragment,
// case-insensitively.
func FilterByPattern(records []diag.SlowQueryRecord, fragment string) []diag.SlowQueryRecord {
	fragment = strings.ToUpper(fragment)
	var out []diag.SlowQueryRecord
	for _, rec := range records {
		if strings.Contains(strings.ToUpper(rec.SQLText), fragment) {
			out = append(out, rec)
		}
	}
	return out
}
