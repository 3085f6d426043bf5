package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pithecene-io/kiln/types"
)

// Config represents a kiln.yaml configuration file.
//
// A Config is built once at startup (Defaults, then Load over it, then CLI
// overrides, then Validate) and passed by value into each component. No
// component reads configuration from package-level state.
type Config struct {
	// Mode is "dev" or "prod".
	Mode      string          `yaml:"mode"`
	Build     BuildConfig     `yaml:"build"`
	Assets    AssetsConfig    `yaml:"assets"`
	Critical  CriticalConfig  `yaml:"critical"`
	Inspector InspectorConfig `yaml:"inspector"`
	Perf      PerfConfig      `yaml:"perf"`
	Budget    BudgetConfig    `yaml:"budget"`
	History   HistoryConfig   `yaml:"history"`
	Adapter   AdapterConfig   `yaml:"adapter"`
}

// BuildConfig configures the orchestrator and the JS/CSS collaborators.
type BuildConfig struct {
	// OutDir is the build output root; cleaned by the clean step.
	OutDir string `yaml:"out_dir"`
	// PagesDir holds the *.html pages copied by the html step.
	PagesDir string `yaml:"pages_dir"`
	// Serial disables parallel sub-steps.
	Serial bool      `yaml:"serial"`
	CSS    StepConfig `yaml:"css"`
	JS     StepConfig `yaml:"js"`
	// Precompress writes .gz and .br siblings for emitted JS/CSS in prod.
	Precompress bool `yaml:"precompress"`
}

// StepConfig configures one build collaborator. When Command is set the
// step shells out; otherwise the built-in esbuild collaborator runs.
type StepConfig struct {
	Command     []string `yaml:"command,omitempty"`
	EntryPoints []string `yaml:"entry_points"`
	// OutDir is relative to Build.OutDir.
	OutDir string `yaml:"out_dir"`
	// Target is an esbuild target such as "es2020".
	Target string `yaml:"target,omitempty"`
}

// AssetsConfig configures the asset optimizer.
type AssetsConfig struct {
	// SourceDir is the root scanned for images, fonts and svg files.
	SourceDir string `yaml:"source_dir"`
	// OutDir is relative to Build.OutDir.
	OutDir string `yaml:"out_dir"`
	// Breakpoints are responsive target widths in pixels.
	Breakpoints []int `yaml:"breakpoints"`
	// Formats are the output formats for raster images.
	Formats []string `yaml:"formats"`
	// Quality maps format to encoder quality (1-100).
	Quality map[string]int `yaml:"quality"`
	// MaxInputSize skips inputs strictly larger than this.
	MaxInputSize Size `yaml:"max_input_size"`
	// Concurrency is the batch size.
	Concurrency int `yaml:"concurrency"`
	// Required makes zero processed assets fatal when assets exist.
	Required bool `yaml:"required"`
	// Tools maps format to an external encoder binary (webp, avif).
	Tools map[string]string `yaml:"tools,omitempty"`
}

// CriticalConfig configures critical CSS extraction.
type CriticalConfig struct {
	// URL is the preview URL of the built page.
	URL       string           `yaml:"url"`
	Viewports []types.Viewport `yaml:"viewports"`
	// MaxBytes is the advisory ceiling for the minified bundle.
	MaxBytes Size `yaml:"max_bytes"`
	// OutDir is relative to Build.OutDir.
	OutDir string `yaml:"out_dir"`
	// Stylesheet is the href of the full stylesheet loaded asynchronously.
	Stylesheet string `yaml:"stylesheet"`
	// Properties is the computed-style allow-list for the DOM snapshot.
	Properties []string `yaml:"properties"`
	// ReadySignal is a window property awaited after load (e.g. "__appReady").
	ReadySignal string   `yaml:"ready_signal,omitempty"`
	Timeout     Duration `yaml:"timeout"`
}

// InspectorConfig configures the headless browser executor.
type InspectorConfig struct {
	// Executor is the path to the executor script; empty uses the embedded one.
	Executor string `yaml:"executor,omitempty"`
	// Node is the node binary.
	Node string `yaml:"node"`
	// BrowserWSEndpoint connects to an existing browser instead of launching one.
	BrowserWSEndpoint string `yaml:"browser_ws_endpoint,omitempty"`
}

// PerfConfig configures the performance monitor.
type PerfConfig struct {
	// SnapshotPath is the single persisted metrics file.
	SnapshotPath string `yaml:"snapshot_path"`
	ReportsDir   string `yaml:"reports_dir"`
	// Dirs are the emitted output directories, relative to Build.OutDir.
	Dirs    PerfDirs    `yaml:"dirs"`
	Targets PerfTargets `yaml:"targets"`
	// AssetSampleLimit caps the analysed static assets.
	AssetSampleLimit int `yaml:"asset_sample_limit"`
}

// PerfDirs names the js, css and assets output directories.
type PerfDirs struct {
	JS     string `yaml:"js"`
	CSS    string `yaml:"css"`
	Assets string `yaml:"assets"`
}

// PerfTargets are the fixed gates and regression tolerances.
type PerfTargets struct {
	MaxBuildTime        Duration `yaml:"max_build_time"`
	MaxJSGzip           Size     `yaml:"max_js_gzip"`
	MaxCSSGzip          Size     `yaml:"max_css_gzip"`
	MaxTotalGzip        Size     `yaml:"max_total_gzip"`
	MaxAssetSize        Size     `yaml:"max_asset_size"`
	MinCompressionRatio float64  `yaml:"min_compression_ratio"`
	// BuildTimeTolerance flags a regression above prior*(1+tolerance).
	BuildTimeTolerance float64 `yaml:"build_time_tolerance"`
	// BundleSizeTolerance flags a regression above prior*(1+tolerance).
	BundleSizeTolerance float64 `yaml:"bundle_size_tolerance"`
}

// BudgetConfig configures the per-category bundle budgets.
type BudgetConfig struct {
	// Limits maps category name to its budget.
	Limits map[string]BudgetLimit `yaml:"limits"`
	// Rules are evaluated in order; first match wins.
	Rules      []RuleConfig `yaml:"rules"`
	ReportsDir string       `yaml:"reports_dir"`
	// WarnRatio is the usage ratio that raises a warning.
	WarnRatio float64 `yaml:"warn_ratio"`
}

// BudgetLimit is the raw and gzip budget for a category.
type BudgetLimit struct {
	Raw  Size `yaml:"raw"`
	Gzip Size `yaml:"gzip"`
}

// RuleConfig is one classification rule: any pattern substring matches.
type RuleConfig struct {
	Category string   `yaml:"category"`
	Patterns []string `yaml:"patterns"`
}

// HistoryConfig configures the optional append-only snapshot archive.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dataset string `yaml:"dataset"`
	// Backend is "fs" or "s3".
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	S3PathStyle bool   `yaml:"s3_path_style,omitempty"`
}

// AdapterConfig holds build-completion notification settings.
type AdapterConfig struct {
	Type string `yaml:"type"`
	URL  string `yaml:"url"`
	// Notify is always, failure or change (failures and regressions).
	Notify string `yaml:"notify,omitempty"`
	// Secret signs webhook bodies (X-Kiln-Signature).
	Secret  string            `yaml:"secret,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	// Channel, LatestKey and LatestTTL apply to the redis adapter.
	Channel   string   `yaml:"channel,omitempty"`
	LatestKey string   `yaml:"latest_key,omitempty"`
	LatestTTL Duration `yaml:"latest_ttl,omitempty"`
	Timeout   Duration `yaml:"timeout,omitempty"`
	Retries   *int     `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Size is a byte count parsed from "512", "14KB", "2MB" or "1.5MB".
// Units are binary (1KB = 1024 bytes).
type Size int64

// Bytes returns the size as int64.
func (s Size) Bytes() int64 { return int64(s) }

// String renders the size with the largest whole unit.
func (s Size) String() string {
	switch {
	case s >= 1<<20 && s%(1<<20) == 0:
		return fmt.Sprintf("%dMB", s>>20)
	case s >= 1<<10 && s%(1<<10) == 0:
		return fmt.Sprintf("%dKB", s>>10)
	default:
		return strconv.FormatInt(int64(s), 10)
	}
}

// UnmarshalYAML parses a size string or bare integer.
func (s *Size) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseSize(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML renders the size in its string form.
func (s Size) MarshalYAML() (any, error) {
	return s.String(), nil
}

// ParseSize parses "512", "14KB", "2MB" (case-insensitive, optional "B").
func ParseSize(raw string) (Size, error) {
	str := strings.ToUpper(strings.TrimSpace(raw))
	if str == "" {
		return 0, nil
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(str, "MB"):
		mult, str = 1<<20, strings.TrimSuffix(str, "MB")
	case strings.HasSuffix(str, "KB"):
		mult, str = 1<<10, strings.TrimSuffix(str, "KB")
	case strings.HasSuffix(str, "B"):
		str = strings.TrimSuffix(str, "B")
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	return Size(n * float64(mult)), nil
}

// KB converts a kibibyte count to a Size.
func KB(n int64) Size { return Size(n << 10) }

// MB converts a mebibyte count to a Size.
func MB(n int64) Size { return Size(n << 20) }

// SortedLimitNames returns the budget category names in sorted order.
func (b BudgetConfig) SortedLimitNames() []string {
	names := make([]string, 0, len(b.Limits))
	for name := range b.Limits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
