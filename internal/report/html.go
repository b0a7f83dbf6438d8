package report

import (
	"html/template"
	"io"
	"strings"

	"github.com/harperdean/rocklens/internal/diag"
)

var htmlTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"rows":  diag.FormatRows,
	"bytes": diag.FormatBytes,
	"lower": strings.ToLower,
	"inc":   func(i int) int { return i + 1 },
}).Parse(htmlTemplate))

// RenderHTML writes the report as a self-contained HTML page.
func RenderHTML(w io.Writer, rep *diag.AnalysisReport) error {
	return htmlTmpl.Execute(w, rep)
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Slow Query Analysis Report</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 2rem auto; max-width: 70rem; color: #1f2430; }
  h1 { border-bottom: 2px solid #3b68c5; padding-bottom: .4rem; }
  .meta { color: #6b7280; font-size: .85rem; margin-bottom: 1.5rem; }
  .cards { display: flex; gap: 1rem; flex-wrap: wrap; margin-bottom: 2rem; }
  .card { background: #f3f5f9; border-radius: .5rem; padding: .8rem 1.2rem; min-width: 9rem; }
  .card .num { font-size: 1.4rem; font-weight: 600; }
  .card .label { color: #6b7280; font-size: .8rem; }
  .group { border: 1px solid #e2e6ee; border-radius: .5rem; margin-bottom: 1.2rem; padding: 1rem 1.2rem; }
  .sev { display: inline-block; border-radius: .25rem; padding: .1rem .5rem; font-size: .75rem; font-weight: 600; color: #fff; }
  .sev-critical { background: #d13438; }
  .sev-very_slow { background: #b4009e; }
  .sev-slow { background: #ca8a04; }
  .sev-normal { background: #107c10; }
  pre { background: #272c35; color: #e8eaf0; padding: .8rem; border-radius: .4rem; overflow-x: auto; font-size: .85rem; }
  .stats { color: #6b7280; font-size: .85rem; margin: .4rem 0 .8rem; }
  ul { margin: .3rem 0; }
  li { margin: .25rem 0; font-size: .9rem; }
  .kind { font-family: ui-monospace, monospace; background: #eef1f6; border-radius: .25rem; padding: 0 .3rem; }
  .impact { color: #6b7280; font-style: italic; }
</style>
</head>
<body>
<h1>Slow Query Analysis Report</h1>
<p class="meta">Generated {{.GeneratedAt.Format "2006-01-02 15:04:05"}} · run {{.RunID}}</p>

<div class="cards">
  <div class="card"><div class="num">{{.Summary.TotalQueries}}</div><div class="label">slow queries</div></div>
  <div class="card"><div class="num">{{.Summary.TotalGroups}}</div><div class="label">fingerprints</div></div>
  <div class="card"><div class="num">{{printf "%.2fs" .Summary.AvgExecTime}}</div><div class="label">avg time</div></div>
  <div class="card"><div class="num">{{printf "%.2fs" .Summary.MaxExecTime}}</div><div class="label">max time</div></div>
  <div class="card"><div class="num">{{rows .Summary.TotalScanRows}}</div><div class="label">rows scanned</div></div>
  <div class="card"><div class="num">{{bytes .Summary.TotalScanBytes}}</div><div class="label">bytes scanned</div></div>
</div>

<h2>Query Groups</h2>
{{range $i, $g := .Groups}}
<div class="group">
  <span class="sev sev-{{lower (printf "%s" $g.Severity)}}">{{$g.Severity}}</span>
  <span class="stats">#{{inc $i}} · fingerprint {{$g.Fingerprint}}{{if $g.PartialAnalysis}} · partial plan analysis{{end}}</span>
  <pre>{{$g.CanonicalText}}</pre>
  <div class="stats">count {{$g.Stats.Count}} · avg {{printf "%.2fs" $g.Stats.AvgTime}} · max {{printf "%.2fs" $g.Stats.MaxTime}} · p95 {{printf "%.2fs" $g.Stats.P95Time}} · {{rows $g.Stats.TotalScanRows}} rows</div>
  {{if $g.Issues}}<ul>
    {{range $g.Issues}}<li><span class="kind">{{.Kind}}</span> ({{.Severity}}, {{lower (printf "%s" .Source)}})</li>{{end}}
  </ul>{{end}}
  {{if $g.Suggestions}}<ul>
    {{range $g.Suggestions}}<li><span class="kind">{{.Kind}}</span> {{.Description}}{{if .EstimatedImprovement}} <span class="impact">({{.EstimatedImprovement}})</span>{{end}}</li>{{end}}
  </ul>{{end}}
</div>
{{end}}

{{if .Suggestions}}
<h2>Global Suggestions</h2>
<ul>
  {{range .Suggestions}}<li><span class="kind">{{.Kind}}</span>{{if .TargetObject}} <b>{{.TargetObject}}</b>:{{end}} {{.Description}}</li>{{end}}
</ul>
{{end}}
</body>
</html>
`
