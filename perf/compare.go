package perf

import (
	"fmt"

	"github.com/pithecene-io/kiln/sizing"
	"github.com/pithecene-io/kiln/types"
)

// Tolerances are the relative changes beyond which a metric counts as a
// regression. Improvements use the inverse thresholds.
type Tolerances struct {
	BuildTime  float64
	BundleSize float64
}

// DefaultTolerances returns 10% for build time and 5% for bundle size.
func DefaultTolerances() Tolerances {
	return Tolerances{BuildTime: 0.10, BundleSize: 0.05}
}

// epsilon absorbs float noise so an exact-tolerance change is not flagged.
const epsilon = 1e-9

// Change is one metric that moved beyond tolerance.
type Change struct {
	Metric   string  `json:"metric"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
	// Percent is the signed relative change, in percent.
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// Comparison is derived from two snapshots and never persisted.
type Comparison struct {
	Regressions  []Change `json:"regressions"`
	Improvements []Change `json:"improvements"`
}

// Empty reports whether nothing moved beyond tolerance.
func (c Comparison) Empty() bool {
	return len(c.Regressions) == 0 && len(c.Improvements) == 0
}

// Compare checks cur against prev. A nil prev yields an empty comparison.
func Compare(prev, cur *types.MetricsSnapshot, tol Tolerances) Comparison {
	c := Comparison{Regressions: []Change{}, Improvements: []Change{}}
	if prev == nil || cur == nil {
		return c
	}

	seconds := func(ms float64) string { return fmt.Sprintf("%.2fs", ms/1000) }
	c.add("build_time", "build time", prev.TotalBuildTime(), cur.TotalBuildTime(), tol.BuildTime, seconds)

	kb := func(n float64) string { return sizing.FormatBytes(int64(n)) }
	c.add("bundle_size", "bundle size", float64(prev.TotalGzip()), float64(cur.TotalGzip()), tol.BundleSize, kb)

	return c
}

func (c *Comparison) add(metric, label string, prev, cur, tol float64, format func(float64) string) {
	if prev <= 0 {
		return
	}
	ratio := cur / prev
	pct := (ratio - 1) * 100
	change := Change{Metric: metric, Previous: prev, Current: cur, Percent: pct}

	switch {
	case ratio > 1+tol+epsilon:
		change.Message = fmt.Sprintf("%s regressed: %s -> %s (%+.1f%%)", label, format(prev), format(cur), pct)
		c.Regressions = append(c.Regressions, change)
	case ratio < 1-tol-epsilon:
		change.Message = fmt.Sprintf("%s improved: %s -> %s (%+.1f%%)", label, format(prev), format(cur), pct)
		c.Improvements = append(c.Improvements, change)
	}
}
