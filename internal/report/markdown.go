package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/harperdean/rocklens/internal/diag"
)

// RenderMarkdown writes the report as a Markdown document.
func RenderMarkdown(w io.Writer, rep *diag.AnalysisReport) error {
	var b strings.Builder

	b.WriteString("# Slow Query Analysis Report\n\n")
	fmt.Fprintf(&b, "Generated: %s  \nRun: `%s`\n\n", rep.GeneratedAt.Format("2006-01-02 15:04:05"), rep.RunID)

	s := rep.Summary
	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Slow queries | %d |\n", s.TotalQueries)
	fmt.Fprintf(&b, "| Distinct fingerprints | %d |\n", s.TotalGroups)
	fmt.Fprintf(&b, "| Avg execution time | %.2fs |\n", s.AvgExecTime)
	fmt.Fprintf(&b, "| Max execution time | %.2fs |\n", s.MaxExecTime)
	fmt.Fprintf(&b, "| Total rows scanned | %s |\n", diag.FormatRows(s.TotalScanRows))
	fmt.Fprintf(&b, "| Total bytes scanned | %s |\n", diag.FormatBytes(s.TotalScanBytes))
	b.WriteString("\n")

	if len(s.SeverityDistribution) > 0 {
		b.WriteString("### Severity distribution\n\n")
		for _, sev := range []diag.Severity{diag.Critical, diag.VerySlow, diag.Slow, diag.Normal} {
			if n := s.SeverityDistribution[sev.String()]; n > 0 {
				fmt.Fprintf(&b, "- **%s**: %d\n", sev, n)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Query Groups\n\n")
	for i := range rep.Groups {
		writeGroupMarkdown(&b, &rep.Groups[i], i+1)
	}

	if len(rep.Suggestions) > 0 {
		b.WriteString("## Global Suggestions\n\n")
		for i, sug := range rep.Suggestions {
			fmt.Fprintf(&b, "%d. **%s**", i+1, sug.Kind)
			if sug.TargetObject != "" {
				fmt.Fprintf(&b, " (`%s`)", sug.TargetObject)
			}
			fmt.Fprintf(&b, ": %s", sug.Description)
			if sug.EstimatedImprovement != "" {
				fmt.Fprintf(&b, " _(%s)_", sug.EstimatedImprovement)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeGroupMarkdown(b *strings.Builder, g *diag.QueryGroup, rank int) {
	fmt.Fprintf(b, "### %d. %s `%s`\n\n", rank, g.Severity, g.Fingerprint)
	fmt.Fprintf(b, "```sql\n%s\n```\n\n", g.CanonicalText)
	fmt.Fprintf(b, "count %d · avg %.2fs · max %.2fs · p95 %.2fs · %s rows scanned",
		g.Stats.Count, g.Stats.AvgTime, g.Stats.MaxTime, g.Stats.P95Time, diag.FormatRows(g.Stats.TotalScanRows))
	if g.PartialAnalysis {
		b.WriteString(" · *partial plan analysis*")
	}
	b.WriteString("\n\n")

	if len(g.Issues) > 0 {
		b.WriteString("Issues:\n\n")
		for _, issue := range g.Issues {
			fmt.Fprintf(b, "- `%s` (%s, %s)", issue.Kind, issue.Severity, strings.ToLower(string(issue.Source)))
			if len(issue.Evidence) > 0 {
				fmt.Fprintf(b, ": %s", evidenceLine(issue.Evidence))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(g.Suggestions) > 0 {
		b.WriteString("Suggestions:\n\n")
		for _, sug := range g.Suggestions {
			fmt.Fprintf(b, "- **%s**: %s", sug.Kind, sug.Description)
			if sug.SuggestedSQL != "" {
				fmt.Fprintf(b, "\n  ```sql\n  %s\n  ```", sug.SuggestedSQL)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
}

func evidenceLine(evidence map[string]string) string {
	keys := make([]string, 0, len(evidence))
	for k := range evidence {
		keys = append(keys, k)
	}
	// deterministic ordering for stable reports
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+evidence[k])
	}
	return strings.Join(parts, ", ")
}
