package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/harperdean/rocklens/internal/diag"
)

const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorBold    = "\033[1m"
	colorDim     = "\033[2m"
)

type textWriter struct {
	w   io.Writer
	err error
}

func (tw *textWriter) printf(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.w, format, args...)
}

// RenderText writes a compact ANSI report for the terminal.
func RenderText(w io.Writer, rep *diag.AnalysisReport) error {
	tw := &textWriter{w: w}

	s := rep.Summary
	tw.printf("%s%sSlow Query Analysis%s\n\n", colorBold, colorCyan, colorReset)
	tw.printf("  Queries:    %d (%d distinct fingerprints)\n", s.TotalQueries, s.TotalGroups)
	tw.printf("  Avg / Max:  %.2fs / %.2fs\n", s.AvgExecTime, s.MaxExecTime)
	tw.printf("  Scanned:    %s rows, %s\n", diag.FormatRows(s.TotalScanRows), diag.FormatBytes(s.TotalScanBytes))
	if !s.WindowStart.IsZero() {
		tw.printf("  Window:     %s .. %s\n", s.WindowStart.Format("2006-01-02 15:04"), s.WindowEnd.Format("2006-01-02 15:04"))
	}
	tw.printf("\n")

	if len(rep.Groups) == 0 {
		tw.printf("%s%sNo slow queries found.%s\n", colorBold, colorGreen, colorReset)
		return tw.err
	}

	tw.printf("%s%sQuery Groups (%d)%s\n\n", colorBold, colorCyan, len(rep.Groups), colorReset)
	for i := range rep.Groups {
		renderGroupText(tw, &rep.Groups[i], i+1)
	}

	if len(rep.Suggestions) > 0 {
		tw.printf("%s%sTop Suggestions%s\n\n", colorBold, colorCyan, colorReset)
		for _, sug := range rep.Suggestions {
			tw.printf("  %s%-24s%s %s\n", colorBold, sug.Kind, colorReset, sug.Description)
			if sug.TargetObject != "" {
				tw.printf("  %s  target: %s%s\n", colorDim, sug.TargetObject, colorReset)
			}
		}
	}
	return tw.err
}

func renderGroupText(tw *textWriter, g *diag.QueryGroup, rank int) {
	label, color := severityFormat(g.Severity)
	tw.printf("  %d. %s%-9s%s %s\n", rank, color, label, colorReset, truncate(g.CanonicalText, 100))
	tw.printf("     %scount=%d avg=%.2fs max=%.2fs p95=%.2fs scan=%s%s",
		colorDim, g.Stats.Count, g.Stats.AvgTime, g.Stats.MaxTime, g.Stats.P95Time,
		diag.FormatRows(g.Stats.TotalScanRows), colorReset)
	if g.PartialAnalysis {
		tw.printf(" %s[partial]%s", colorYellow, colorReset)
	}
	tw.printf("\n")

	for _, issue := range g.Issues {
		tw.printf("     %s- %s (%s)%s\n", colorDim, issue.Kind, strings.ToLower(string(issue.Source)), colorReset)
	}
	for _, sug := range g.Suggestions {
		tw.printf("     %s→ %s%s\n", colorDim, sug.Description, colorReset)
	}
	tw.printf("\n")
}

func severityFormat(s diag.Severity) (string, string) {
	switch s {
	case diag.Critical:
		return "CRITICAL", colorRed
	case diag.VerySlow:
		return "VERY_SLOW", colorMagenta
	case diag.Slow:
		return "SLOW", colorYellow
	default:
		return "NORMAL", colorGreen
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
