package config

import (
	"time"

	"github.com/pithecene-io/kiln/types"
)

// Defaults returns the built-in configuration. Load decodes kiln.yaml over
// this value, so any key omitted from the file keeps its default.
func Defaults() Config {
	return Config{
		Mode: "prod",
		Build: BuildConfig{
			OutDir:   "dist",
			PagesDir: "src/pages",
			CSS: StepConfig{
				EntryPoints: []string{"src/styles/main.css"},
				OutDir:      "css",
			},
			JS: StepConfig{
				EntryPoints: []string{"src/scripts/main.js"},
				OutDir:      "js",
				Target:      "es2020",
			},
			Precompress: true,
		},
		Assets: AssetsConfig{
			SourceDir:    "src/assets",
			OutDir:       "assets",
			Breakpoints:  []int{320, 480, 768, 1024, 1280, 1920},
			Formats:      []string{"webp", "avif", "jpeg"},
			Quality:      map[string]int{"webp": 80, "avif": 65, "jpeg": 82, "png": 90},
			MaxInputSize: MB(2),
			Concurrency:  4,
			Required:     true,
			Tools:        map[string]string{"webp": "cwebp", "avif": "avifenc"},
		},
		Critical: CriticalConfig{
			URL: "http://localhost:4173/",
			Viewports: []types.Viewport{
				{Width: 320, Height: 568},
				{Width: 768, Height: 1024},
				{Width: 1920, Height: 1080},
			},
			MaxBytes:   KB(14),
			OutDir:     "css",
			Stylesheet: "/css/main.css",
			Properties: DefaultCriticalProperties(),
			Timeout:    Duration{30 * time.Second},
		},
		Inspector: InspectorConfig{
			Node: "node",
		},
		Perf: PerfConfig{
			SnapshotPath: "performance-metrics.json",
			ReportsDir:   "reports",
			Dirs: PerfDirs{
				JS:     "js",
				CSS:    "css",
				Assets: "assets",
			},
			Targets: PerfTargets{
				MaxBuildTime:        Duration{30 * time.Second},
				MaxJSGzip:           KB(150),
				MaxCSSGzip:          KB(50),
				MaxTotalGzip:        KB(200),
				MaxAssetSize:        KB(500),
				MinCompressionRatio: 0.30,
				BuildTimeTolerance:  0.10,
				BundleSizeTolerance: 0.05,
			},
			AssetSampleLimit: 20,
		},
		Budget: BudgetConfig{
			Limits: map[string]BudgetLimit{
				"main":     {Raw: KB(200), Gzip: KB(60)},
				"vendor":   {Raw: KB(300), Gzip: KB(100)},
				"critical": {Raw: KB(50), Gzip: KB(15)},
				"page":     {Raw: KB(100), Gzip: KB(30)},
				"feature":  {Raw: KB(80), Gzip: KB(25)},
			},
			Rules: []RuleConfig{
				{Category: "vendor", Patterns: []string{"vendor", "node_modules", "chunk-vendors"}},
				{Category: "main", Patterns: []string{"main", "app", "index"}},
				{Category: "critical", Patterns: []string{"critical", "runtime", "polyfill"}},
				{Category: "page", Patterns: []string{"page", "pages/", "route"}},
			},
			ReportsDir: "reports",
			WarnRatio:  0.9,
		},
		History: HistoryConfig{
			Dataset: "kiln",
			Backend: "fs",
			Path:    ".kiln/history",
		},
	}
}

// DefaultCriticalProperties is the computed-style allow-list snapshotted
// for elements visible in the initial viewport.
func DefaultCriticalProperties() []string {
	return []string{
		"display", "position", "top", "right", "bottom", "left", "z-index",
		"width", "height", "min-height", "max-width",
		"margin", "padding", "box-sizing", "border", "border-radius",
		"background", "background-color", "background-image",
		"color", "font-family", "font-size", "font-weight", "line-height",
		"letter-spacing", "text-align", "text-transform",
		"transform", "opacity", "overflow",
		"flex", "flex-direction", "flex-wrap", "justify-content", "align-items", "gap",
		"grid-template-columns", "grid-template-rows", "grid-area",
	}
}
