package perf

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"time"

	"github.com/pithecene-io/kiln/iox"
	"github.com/pithecene-io/kiln/sizing"
	"github.com/pithecene-io/kiln/types"
)

// Report is the JSON report payload and the HTML template's data.
type Report struct {
	Timestamp  time.Time              `json:"timestamp"`
	Passed     bool                   `json:"passed"`
	Summary    []TargetResult         `json:"summary"`
	Findings   []types.Finding        `json:"findings"`
	Comparison Comparison             `json:"comparison"`
	Snapshot   *types.MetricsSnapshot `json:"snapshot"`
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"bytes": func(n int64) string { return sizing.FormatBytes(n) },
	"pct":   func(f float64) string { return fmt.Sprintf("%.1f%%", f*100) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>kiln performance report {{.Timestamp.Format "2006-01-02 15:04:05"}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #111827; }
.tiles { display: flex; flex-wrap: wrap; gap: 1rem; }
.tile { border-radius: 8px; padding: 1rem 1.5rem; min-width: 12rem; color: #fff; }
.pass { background: #10B981; }
.fail { background: #EF4444; }
.warn { background: #F59E0B; }
.tile .label { font-size: .85rem; opacity: .9; }
.tile .value { font-size: 1.4rem; font-weight: 600; }
table { border-collapse: collapse; margin-top: 1rem; }
td, th { border-bottom: 1px solid #E5E7EB; padding: .3rem .8rem; text-align: left; }
</style>
</head>
<body>
<h1>Performance report: {{if .Passed}}PASSED{{else}}FAILED{{end}}</h1>
<p>{{.Timestamp.Format "2006-01-02 15:04:05 MST"}}</p>
<div class="tiles">
{{range .Summary}}<div class="tile {{if .Passed}}pass{{else if eq .Severity "warning"}}warn{{else}}fail{{end}}">
<div class="label">{{.Check}}</div>
<div class="value">{{printf "%.2f" .Value}}</div>
<div class="label">limit {{printf "%.2f" .Limit}}</div>
</div>
{{end}}</div>
{{if .Findings}}<h2>Findings</h2>
<ul>
{{range .Findings}}<li class="{{.Severity}}">{{.Severity}}: {{.Message}}</li>
{{end}}</ul>
{{end}}{{if .Comparison.Regressions}}<h2>Regressions</h2>
<ul>
{{range .Comparison.Regressions}}<li>{{.Message}}</li>
{{end}}</ul>
{{end}}{{if .Comparison.Improvements}}<h2>Improvements</h2>
<ul>
{{range .Comparison.Improvements}}<li>{{.Message}}</li>
{{end}}</ul>
{{end}}{{with .Snapshot}}<h2>Bundles</h2>
<table>
<tr><th>group</th><th>files</th><th>raw</th><th>gzip</th><th>brotli</th><th>ratio</th></tr>
{{range $name, $g := .BundleAnalysis}}<tr><td>{{$name}}</td><td>{{len $g.Files}}</td><td>{{bytes $g.TotalOriginal}}</td><td>{{bytes $g.TotalGzipped}}</td><td>{{bytes $g.TotalBrotli}}</td><td>{{pct $g.CompressionRatio}}</td></tr>
{{end}}</table>
<h2>Steps</h2>
<table>
<tr><th>step</th><th>duration (ms)</th><th>status</th></tr>
{{range $name, $t := .BuildTimes}}<tr><td>{{$name}}</td><td>{{printf "%.0f" $t.Duration}}</td><td>{{if $t.Success}}ok{{else}}failed{{end}}</td></tr>
{{end}}</table>
{{end}}</body>
</html>
`))

// RenderHTML renders the self-contained HTML report.
func RenderHTML(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteReports writes performance-<ts>.json and .html under dir and
// returns both paths.
func WriteReports(dir string, r *Report) ([]string, error) {
	base := filepath.Join(dir, "performance-"+r.Timestamp.Format("20060102-150405"))

	if err := iox.WriteJSONAtomic(base+".json", r); err != nil {
		return nil, fmt.Errorf("write JSON report: %w", err)
	}
	html, err := RenderHTML(r)
	if err != nil {
		return nil, err
	}
	if err := iox.WriteFileAtomic(base+".html", html, 0o644); err != nil {
		return nil, fmt.Errorf("write HTML report: %w", err)
	}
	return []string{base + ".json", base + ".html"}, nil
}
