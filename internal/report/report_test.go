package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harperdean/rocklens/internal/diag"
)

func sampleReport() *diag.AnalysisReport {
	return &diag.AnalysisReport{
		RunID:       "test-run",
		GeneratedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Groups: []diag.QueryGroup{{
			Fingerprint:   "abcdef0123456789",
			CanonicalText: "SELECT * FROM orders WHERE status = ?",
			Tables:        []string{"orders"},
			Severity:      diag.Critical,
			Stats: diag.GroupStats{
				Count:         8,
				AvgTime:       12.5,
				MaxTime:       20,
				P95Time:       19,
				TotalTime:     100,
				TotalScanRows: 400_000_000,
			},
			Issues: []diag.Issue{{
				Kind:     diag.FullTableScan,
				Severity: diag.Critical,
				Evidence: map[string]string{"table": "orders", "rows": "400000000"},
				Source:   diag.SourcePlan,
			}},
			Suggestions: []diag.Suggestion{{
				Kind:                 diag.CreateIndex,
				Description:          "full scan filtered on \"status\"",
				TargetObject:         "orders(status)",
				EstimatedImpact:      5,
				EstimatedImprovement: "50-90% faster lookups",
				SuggestedSQL:         "CREATE INDEX idx_status ON orders (status);",
				Score:                320,
			}},
		}},
		Suggestions: []diag.Suggestion{{
			Kind:         diag.CreateIndex,
			TargetObject: "orders(status)",
			Description:  "full scan filtered on \"status\"",
			Score:        320,
		}},
		Summary: diag.Summary{
			TotalQueries:         10,
			TotalGroups:          1,
			AvgExecTime:          11.2,
			MaxExecTime:          20,
			TotalScanRows:        400_000_000,
			TotalScanBytes:       3 << 30,
			SeverityDistribution: map[string]int{"CRITICAL": 8, "SLOW": 2},
		},
	}
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, sampleReport()))

	out := buf.String()
	require.Contains(t, out, "CRITICAL")
	require.Contains(t, out, "SELECT * FROM orders WHERE status = ?")
	require.Contains(t, out, "orders(status)")
}

func TestRenderText_EmptyReport(t *testing.T) {
	var buf bytes.Buffer
	rep := &diag.AnalysisReport{GeneratedAt: time.Now()}
	require.NoError(t, RenderText(&buf, rep))
	require.Contains(t, buf.String(), "No slow queries found")
}

func TestRenderJSON_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderJSON(&buf, sampleReport()))

	var decoded diag.AnalysisReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "test-run", decoded.RunID)
	require.Len(t, decoded.Groups, 1)
	require.Equal(t, diag.Critical, decoded.Groups[0].Severity)
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderMarkdown(&buf, sampleReport()))

	out := buf.String()
	require.Contains(t, out, "# Slow Query Analysis Report")
	require.Contains(t, out, "```sql")
	require.Contains(t, out, "full_table_scan")
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, sampleReport()))

	out := buf.String()
	require.Contains(t, out, "<!DOCTYPE html>")
	require.Contains(t, out, "sev-critical")
	require.Contains(t, out, "orders(status)")
}

func TestRenderHTML_EscapesSQL(t *testing.T) {
	rep := sampleReport()
	rep.Groups[0].CanonicalText = "SELECT * FROM t WHERE a < ? AND b > ?"

	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, rep))
	require.Contains(t, buf.String(), "a &lt; ?")
}

func TestRender_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, Render(&buf, "pdf", sampleReport()))
}

func TestWrite_CreatesTimestampedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")

	path, err := Write(dir, "markdown", sampleReport())
	require.NoError(t, err)
	require.Equal(t, "slow_query_report_20260830_120000.md", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "# Slow Query Analysis Report"))
}

func TestWrite_AllFormats(t *testing.T) {
	dir := t.TempDir()
	for format, ext := range map[string]string{
		"text": ".txt",
		"json": ".json",
		"html": ".html",
		"md":   ".md",
	} {
		path, err := Write(dir, format, sampleReport())
		require.NoError(t, err, format)
		require.Equal(t, ext, filepath.Ext(path), format)
	}
}
