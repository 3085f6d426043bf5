package perf

import (
	"fmt"
	"time"

	"github.com/pithecene-io/kiln/sizing"
	"github.com/pithecene-io/kiln/types"
)

// Targets are the fixed performance gates, independent of history.
type Targets struct {
	MaxBuildTime time.Duration
	MaxJSGzip    int64
	MaxCSSGzip   int64
	MaxTotalGzip int64
	// MaxAssetSize and MinCompressionRatio produce warnings only.
	MaxAssetSize        int64
	MinCompressionRatio float64
}

// DefaultTargets returns the built-in gates.
func DefaultTargets() Targets {
	return Targets{
		MaxBuildTime:        30 * time.Second,
		MaxJSGzip:           150 << 10,
		MaxCSSGzip:          50 << 10,
		MaxTotalGzip:        200 << 10,
		MaxAssetSize:        500 << 10,
		MinCompressionRatio: 0.30,
	}
}

// Check names, used in findings and the per-target summary.
const (
	CheckBuildTime   = "build_time"
	CheckJSGzip      = "js_gzip"
	CheckCSSGzip     = "css_gzip"
	CheckTotalGzip   = "total_gzip"
	CheckAssetSize   = "asset_size"
	CheckCompression = "compression_ratio"
)

// TargetResult is the pass/fail line of one target metric.
type TargetResult struct {
	Check  string  `json:"check"`
	Value  float64 `json:"value"`
	Limit  float64 `json:"limit"`
	Passed bool    `json:"passed"`
	// Severity is what a failure of this target counts as.
	Severity types.Severity `json:"severity"`
}

// Evaluate runs every target against s and returns the findings and a
// per-target summary. It also fills s.PerformanceChecks.
func Evaluate(s *types.MetricsSnapshot, t Targets) ([]types.Finding, []TargetResult) {
	var (
		findings []types.Finding
		summary  []TargetResult
	)

	add := func(check string, value, limit float64, passed bool, f types.Finding) {
		summary = append(summary, TargetResult{
			Check:    check,
			Value:    value,
			Limit:    limit,
			Passed:   passed,
			Severity: f.Severity,
		})
		if !passed {
			f.Check = check
			f.Value = value
			f.Limit = limit
			findings = append(findings, f)
		}
	}

	total := time.Duration(s.TotalBuildTime() * float64(time.Millisecond))
	add(CheckBuildTime, total.Seconds(), t.MaxBuildTime.Seconds(), total <= t.MaxBuildTime, types.Finding{
		Severity: types.SeverityError,
		Message:  fmt.Sprintf("build time %.2fs exceeds %.2fs", total.Seconds(), t.MaxBuildTime.Seconds()),
	})

	js := s.BundleAnalysis[types.GroupJS]
	css := s.BundleAnalysis[types.GroupCSS]
	gzipGate := func(check, label string, size, limit int64) {
		add(check, float64(size), float64(limit), size <= limit, types.Finding{
			Severity: types.SeverityError,
			Message: fmt.Sprintf("%s gzip size %s exceeds %s",
				label, sizing.FormatBytes(size), sizing.FormatBytes(limit)),
		})
	}
	gzipGate(CheckJSGzip, "JS", js.TotalGzipped, t.MaxJSGzip)
	gzipGate(CheckCSSGzip, "CSS", css.TotalGzipped, t.MaxCSSGzip)
	gzipGate(CheckTotalGzip, "total", s.TotalGzip(), t.MaxTotalGzip)

	largest := int64(0)
	for _, f := range s.BundleAnalysis[types.GroupAssets].Files {
		if f.Size > largest {
			largest = f.Size
		}
		if f.Size > t.MaxAssetSize {
			findings = append(findings, types.Finding{
				Severity: types.SeverityWarning,
				Check:    CheckAssetSize,
				Subject:  f.Path,
				Message: fmt.Sprintf("asset %s is %s, over %s",
					f.Path, sizing.FormatBytes(f.Size), sizing.FormatBytes(t.MaxAssetSize)),
				Value: float64(f.Size),
				Limit: float64(t.MaxAssetSize),
			})
		}
	}
	summary = append(summary, TargetResult{
		Check:    CheckAssetSize,
		Value:    float64(largest),
		Limit:    float64(t.MaxAssetSize),
		Passed:   largest <= t.MaxAssetSize,
		Severity: types.SeverityWarning,
	})

	for _, g := range []struct {
		key, label string
		group      types.BundleGroup
	}{{types.GroupJS, "JS", js}, {types.GroupCSS, "CSS", css}} {
		if g.group.TotalOriginal == 0 {
			continue
		}
		ratio := g.group.CompressionRatio()
		add(CheckCompression+"."+g.key, ratio, t.MinCompressionRatio, ratio >= t.MinCompressionRatio, types.Finding{
			Severity: types.SeverityWarning,
			Message: fmt.Sprintf("%s compression ratio %.1f%% is below %.1f%%",
				g.label, ratio*100, t.MinCompressionRatio*100),
		})
	}

	s.PerformanceChecks = checksOf(findings)
	return findings, summary
}

// checksOf groups findings into the persisted check summary.
func checksOf(findings []types.Finding) types.PerformanceChecks {
	pc := types.PerformanceChecks{
		BundleSize: types.CheckGroup{Issues: []string{}},
		BuildTime:  types.CheckGroup{Issues: []string{}},
	}
	for _, f := range findings {
		group := &pc.BundleSize
		if f.Check == CheckBuildTime {
			group = &pc.BuildTime
		}
		if f.Severity == types.SeverityError {
			group.Issues = append(group.Issues, f.Message)
		} else {
			group.Warnings = append(group.Warnings, f.Message)
		}
	}
	return pc
}
