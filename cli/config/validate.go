package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/pithecene-io/kiln/adapter"
)

// KnownFormats are the raster output formats the optimizer can encode.
var KnownFormats = []string{"webp", "avif", "jpeg", "png"}

// KnownCategories are the bundle categories; "feature" is the default.
var KnownCategories = []string{"main", "vendor", "critical", "page", "feature"}

// Validate checks the resolved configuration. All problems are reported
// together so a user can fix kiln.yaml in one pass.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Mode != "dev" && c.Mode != "prod" {
		add("mode: must be dev or prod, got %q", c.Mode)
	}
	if c.Build.OutDir == "" {
		add("build.out_dir: required")
	}

	if c.Assets.Concurrency < 1 {
		add("assets.concurrency: must be >= 1, got %d", c.Assets.Concurrency)
	}
	if c.Assets.MaxInputSize <= 0 {
		add("assets.max_input_size: must be > 0")
	}
	for _, bp := range c.Assets.Breakpoints {
		if bp <= 0 {
			add("assets.breakpoints: must be positive, got %d", bp)
		}
	}
	for _, f := range c.Assets.Formats {
		if !slices.Contains(KnownFormats, f) {
			add("assets.formats: unknown format %q (known: %v)", f, KnownFormats)
		}
	}
	for f, q := range c.Assets.Quality {
		if q < 1 || q > 100 {
			add("assets.quality.%s: must be in 1..100, got %d", f, q)
		}
	}

	if len(c.Critical.Viewports) == 0 {
		add("critical.viewports: at least one viewport required")
	}
	for i, vp := range c.Critical.Viewports {
		if vp.Width <= 0 || vp.Height <= 0 {
			add("critical.viewports[%d]: width and height must be positive", i)
		}
	}
	if c.Critical.URL != "" {
		if u, err := url.Parse(c.Critical.URL); err != nil || u.Scheme == "" || u.Host == "" {
			add("critical.url: must be an absolute URL, got %q", c.Critical.URL)
		}
	}

	t := c.Perf.Targets
	if t.BuildTimeTolerance < 0 || t.BundleSizeTolerance < 0 {
		add("perf.targets: tolerances must be >= 0")
	}
	if t.MinCompressionRatio < 0 || t.MinCompressionRatio >= 1 {
		add("perf.targets.min_compression_ratio: must be in [0,1)")
	}
	if c.Perf.AssetSampleLimit < 0 {
		add("perf.asset_sample_limit: must be >= 0")
	}
	if c.Perf.SnapshotPath == "" {
		add("perf.snapshot_path: required")
	}

	for name, lim := range c.Budget.Limits {
		if !slices.Contains(KnownCategories, name) {
			add("budget.limits: unknown category %q", name)
		}
		if lim.Raw <= 0 || lim.Gzip <= 0 {
			add("budget.limits.%s: raw and gzip must be > 0", name)
		}
	}
	if _, ok := c.Budget.Limits["feature"]; !ok {
		add("budget.limits.feature: required (default category)")
	}
	for i, r := range c.Budget.Rules {
		if !slices.Contains(KnownCategories, r.Category) {
			add("budget.rules[%d]: unknown category %q", i, r.Category)
		}
		if len(r.Patterns) == 0 {
			add("budget.rules[%d]: at least one pattern required", i)
		}
	}
	if c.Budget.WarnRatio <= 0 || c.Budget.WarnRatio > 1 {
		add("budget.warn_ratio: must be in (0,1]")
	}

	if c.History.Enabled {
		switch c.History.Backend {
		case "fs", "s3":
		default:
			add("history.backend: must be fs or s3, got %q", c.History.Backend)
		}
		if c.History.Path == "" {
			add("history.path: required when history is enabled")
		}
	}

	switch c.Adapter.Type {
	case "":
	case "webhook", "redis":
		if c.Adapter.URL == "" {
			add("adapter.url: required for %s adapter", c.Adapter.Type)
		}
	default:
		add("adapter.type: must be webhook or redis, got %q", c.Adapter.Type)
	}
	if _, err := adapter.ParseNotify(c.Adapter.Notify); err != nil {
		add("adapter.notify: %v", err)
	}

	return errors.Join(errs...)
}
