package collector

import (
	"context"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/harperdean/rocklens/internal/diag"
)

// ClickHouse reads system.query_log over the native protocol.
type ClickHouse struct {
	conn driver.Conn
	log  *zap.Logger
}

func OpenClickHouse(cfg ConnConfig, log *zap.Logger) (*ClickHouse, error) {
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr()},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening clickhouse connection")
	}
	return &ClickHouse{conn: conn, log: log}, nil
}

func (c *ClickHouse) Name() string { return "clickhouse" }

func (c *ClickHouse) Ping(ctx context.Context) error {
	return errors.Wrap(c.conn.Ping(ctx), "pinging clickhouse")
}

func (c *ClickHouse) Close() error { return c.conn.Close() }

func (c *ClickHouse) SlowQueries(ctx context.Context, opts Options) ([]diag.SlowQueryRecord, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT query_id, query, user, current_database,
		event_time, query_duration_ms, read_rows, read_bytes, memory_usage
	FROM system.query_log
	WHERE type = 'QueryFinish'
	  AND event_time >= ?
	  AND query_duration_ms >= ?
	  AND notEmpty(query)`)

	args := []any{time.Now().Add(-opts.Window), uint64(opts.MinExecTime * 1000)}
	if opts.Database != "" {
		sb.WriteString(" AND current_database = ?")
		args = append(args, opts.Database)
	}
	if opts.User != "" {
		sb.WriteString(" AND user = ?")
		args = append(args, opts.User)
	}
	sb.WriteString(" ORDER BY query_duration_ms DESC LIMIT ?")
	args = append(args, opts.Limit)

	rows, err := c.conn.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying system.query_log")
	}
	defer rows.Close()

	var records []diag.SlowQueryRecord
	for rows.Next() {
		var (
			rec        diag.SlowQueryRecord
			eventTime  time.Time
			durationMS uint64
			readRows   uint64
			readBytes  uint64
			memory     uint64
		)
		if err := rows.Scan(
			&rec.QueryID, &rec.SQLText, &rec.User, &rec.Database,
			&eventTime, &durationMS, &readRows, &readBytes, &memory,
		); err != nil {
			c.log.Warn("skipping unreadable query_log row", zap.Error(err))
			continue
		}
		dur := time.Duration(durationMS) * time.Millisecond
		rec.ExecTime = dur.Seconds()
		rec.ScanRows = int64(readRows)
		rec.ScanBytes = int64(readBytes)
		rec.MemoryBytes = int64(memory)
		// event_time marks completion for QueryFinish entries.
		rec.EndTime = eventTime
		rec.StartTime = eventTime.Add(-dur)
		records = append(records, rec)
	}
	return records, errors.Wrap(rows.Err(), "reading system.query_log")
}

func (c *ClickHouse) Explain(ctx context.Context, _ string, sqlText string) (string, error) {
	rows, err := c.conn.Query(ctx, "EXPLAIN "+sqlText)
	if err != nil {
		return "", errors.Wrap(err, "running EXPLAIN")
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return "", errors.Wrap(err, "reading EXPLAIN output")
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return "", errors.Wrap(err, "reading EXPLAIN output")
	}
	return strings.Join(lines, "\n"), nil
}
