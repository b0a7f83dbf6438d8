package collector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/harperdean/rocklens/internal/diag"
)

// ConnConfig holds connection details for a source backend.
type ConnConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func (c ConnConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StarRocks reads the audit query log over the MySQL wire protocol, which
// StarRocks and Doris both speak on their FE query port.
type StarRocks struct {
	db  *sql.DB
	log *zap.Logger
}

func OpenStarRocks(cfg ConnConfig, log *zap.Logger) (*StarRocks, error) {
	if log == nil {
		log = zap.NewNop()
	}

	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = cfg.Addr()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Timeout = 10 * time.Second

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, errors.Wrap(err, "opening starrocks connection")
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &StarRocks{db: db, log: log}, nil
}

func (s *StarRocks) Name() string { return "starrocks" }

func (s *StarRocks) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "pinging starrocks")
}

func (s *StarRocks) Close() error { return s.db.Close() }

func (s *StarRocks) SlowQueries(ctx context.Context, opts Options) ([]diag.SlowQueryRecord, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT query_id, query_text, ` + "`database`, `user`" + `,
		query_time_seconds, scan_rows, scan_bytes, memory_used_bytes,
		start_time, end_time
	FROM information_schema.query_log
	WHERE start_time >= ?
	  AND query_time_seconds >= ?
	  AND query_text IS NOT NULL
	  AND LENGTH(query_text) > 10`)

	args := []any{time.Now().Add(-opts.Window), opts.MinExecTime}
	if opts.Database != "" {
		sb.WriteString(" AND `database` = ?")
		args = append(args, opts.Database)
	}
	if opts.User != "" {
		sb.WriteString(" AND `user` = ?")
		args = append(args, opts.User)
	}
	sb.WriteString(" ORDER BY query_time_seconds DESC LIMIT ?")
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying slow query log")
	}
	defer rows.Close()

	var records []diag.SlowQueryRecord
	for rows.Next() {
		var rec diag.SlowQueryRecord
		var start, end sql.NullTime
		if err := rows.Scan(
			&rec.QueryID, &rec.SQLText, &rec.Database, &rec.User,
			&rec.ExecTime, &rec.ScanRows, &rec.ScanBytes, &rec.MemoryBytes,
			&start, &end,
		); err != nil {
			s.log.Warn("skipping unreadable query log row", zap.Error(err))
			continue
		}
		rec.StartTime = start.Time
		rec.EndTime = end.Time
		records = append(records, rec)
	}
	return records, errors.Wrap(rows.Err(), "reading slow query log")
}

// Explain returns the textual plan dump for one statement. StarRocks emits
// the plan as one row per line.
func (s *StarRocks) Explain(ctx context.Context, database, sqlText string) (string, error) {
	if database != "" {
		if _, err := s.db.ExecContext(ctx, "USE "+quoteIdent(database)); err != nil {
			return "", errors.Wrapf(err, "switching to database %s", database)
		}
	}

	rows, err := s.db.QueryContext(ctx, "EXPLAIN "+sqlText)
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

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
