package perf

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/kiln/types"
)

func snapshotWith(buildMs float64, jsGzip int64) *types.MetricsSnapshot {
	return &types.MetricsSnapshot{
		BuildTimes: map[string]types.StepTiming{"js": {Duration: buildMs, Success: true}},
		BundleAnalysis: map[string]types.BundleGroup{
			types.GroupJS: {TotalOriginal: jsGzip * 4, TotalGzipped: jsGzip},
		},
	}
}

func TestCompare_BuildTimeThreshold(t *testing.T) {
	tol := DefaultTolerances()
	prev := snapshotWith(10000, 1000)

	tests := []struct {
		name        string
		current     float64
		regressed   bool
		improvement bool
	}{
		{"exactly +10%", 11000, false, false},
		{"just over +10%", 11010, true, false},
		{"unchanged", 10000, false, false},
		{"exactly -10%", 9000, false, false},
		{"under -10%", 8990, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Compare(prev, snapshotWith(tt.current, 1000), tol)
			if got := len(c.Regressions) == 1; got != tt.regressed {
				t.Errorf("regressed = %v, want %v (%+v)", got, tt.regressed, c)
			}
			if got := len(c.Improvements) == 1; got != tt.improvement {
				t.Errorf("improved = %v, want %v (%+v)", got, tt.improvement, c)
			}
		})
	}
}

func TestCompare_BundleSizeThreshold(t *testing.T) {
	tol := DefaultTolerances()
	prev := snapshotWith(1000, 100000)

	if c := Compare(prev, snapshotWith(1000, 105000), tol); len(c.Regressions) != 0 {
		t.Errorf("+5%% flagged: %+v", c.Regressions)
	}
	c := Compare(prev, snapshotWith(1000, 105100), tol)
	if len(c.Regressions) != 1 || c.Regressions[0].Metric != "bundle_size" {
		t.Fatalf("Regressions = %+v, want one bundle_size", c.Regressions)
	}
	if c := Compare(prev, snapshotWith(1000, 94000), tol); len(c.Improvements) != 1 {
		t.Errorf("Improvements = %+v, want one", c.Improvements)
	}
}

func TestCompare_NoPrevious(t *testing.T) {
	c := Compare(nil, snapshotWith(1000, 10), DefaultTolerances())
	if !c.Empty() {
		t.Errorf("Compare(nil, ...) = %+v, want empty", c)
	}
}

func TestCompare_IgnoresFailedSteps(t *testing.T) {
	prev := snapshotWith(10000, 1000)
	cur := snapshotWith(10000, 1000)
	cur.BuildTimes["css"] = types.StepTiming{Duration: 50000, Success: false}

	if c := Compare(prev, cur, DefaultTolerances()); len(c.Regressions) != 0 {
		t.Errorf("failed step counted toward total: %+v", c.Regressions)
	}
}

func TestEvaluate(t *testing.T) {
	assets := types.BundleGroup{Files: []types.FileSize{
		{Path: "hero.webp", Size: 600 << 10},
		{Path: "logo.svg", Size: 2 << 10},
	}}
	s := &types.MetricsSnapshot{
		BuildTimes: map[string]types.StepTiming{
			"css": {Duration: 20000, Success: true},
			"js":  {Duration: 15000, Success: true},
		},
		BundleAnalysis: map[string]types.BundleGroup{
			types.GroupJS:     {TotalOriginal: 200 << 10, TotalGzipped: 160 << 10},
			types.GroupCSS:    {TotalOriginal: 100 << 10, TotalGzipped: 20 << 10},
			types.GroupAssets: assets,
		},
	}

	findings, summary := Evaluate(s, DefaultTargets())

	got := map[string]types.Severity{}
	for _, f := range findings {
		got[f.Check] = f.Severity
	}
	want := map[string]types.Severity{
		CheckBuildTime:         types.SeverityError,
		CheckJSGzip:            types.SeverityError,
		CheckAssetSize:         types.SeverityWarning,
		"compression_ratio.js": types.SeverityWarning,
	}
	for check, sev := range want {
		if got[check] != sev {
			t.Errorf("finding %s = %q, want %q", check, got[check], sev)
		}
	}
	for _, check := range []string{CheckCSSGzip, CheckTotalGzip, "compression_ratio.css"} {
		if _, ok := got[check]; ok {
			t.Errorf("%s flagged within target", check)
		}
	}

	if len(s.PerformanceChecks.BuildTime.Issues) != 1 {
		t.Errorf("BuildTime.Issues = %v, want 1", s.PerformanceChecks.BuildTime.Issues)
	}
	if len(s.PerformanceChecks.BundleSize.Warnings) != 2 {
		t.Errorf("BundleSize.Warnings = %v, want 2", s.PerformanceChecks.BundleSize.Warnings)
	}
	if len(summary) == 0 {
		t.Error("summary is empty")
	}
}

func TestAnalyzeBundles(t *testing.T) {
	root := t.TempDir()
	write := func(rel string, data []byte) {
		t.Helper()
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("js/main.js", []byte(strings.Repeat("const a = 1;\n", 500)))
	write("js/main.js.map", []byte("{}"))
	write("js/main.js.gz", []byte("gz"))
	write("css/main.css", []byte(strings.Repeat(".a{color:red}\n", 300)))
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 25; i++ {
		buf := make([]byte, 256)
		rng.Read(buf)
		write(filepath.Join("assets", "img", "file"+string(rune('a'+i))+".bin"), buf)
	}
	write("assets/manifest.json", []byte("{}"))

	groups, err := AnalyzeBundles(Dirs{
		JS:     filepath.Join(root, "js"),
		CSS:    filepath.Join(root, "css"),
		Assets: filepath.Join(root, "assets"),
	}, 20)
	if err != nil {
		t.Fatalf("AnalyzeBundles() error = %v", err)
	}

	js := groups[types.GroupJS]
	if len(js.Files) != 1 || js.Files[0].Path != "main.js" {
		t.Fatalf("js files = %+v, want main.js only", js.Files)
	}
	if js.TotalGzipped <= 0 || js.TotalGzipped >= js.TotalOriginal {
		t.Errorf("js gzip = %d of %d", js.TotalGzipped, js.TotalOriginal)
	}
	if js.TotalBrotli <= 0 {
		t.Errorf("js brotli = %d, want > 0", js.TotalBrotli)
	}
	if got := len(groups[types.GroupCSS].Files); got != 1 {
		t.Errorf("css files = %d, want 1", got)
	}
	assets := groups[types.GroupAssets]
	if len(assets.Files) != 20 {
		t.Errorf("asset sample = %d, want 20", len(assets.Files))
	}
	if assets.Files[0].Path != "img/filea.bin" {
		t.Errorf("first asset = %q, want img/filea.bin", assets.Files[0].Path)
	}
}

// The critical CSS copies live next to the stylesheets and must not count
// toward the CSS gzip total.
func TestAnalyzeBundles_Exclude(t *testing.T) {
	cssDir := filepath.Join(t.TempDir(), "css")
	if err := os.MkdirAll(cssDir, 0o755); err != nil {
		t.Fatal(err)
	}
	main := []byte(strings.Repeat(".a{color:red}\n", 300))
	for name, data := range map[string][]byte{
		"main.css":         main,
		"critical.css":     []byte(strings.Repeat(".hero{margin:0}\n", 800)),
		"critical.min.css": []byte(strings.Repeat(".hero{margin:0}", 800)),
	} {
		if err := os.WriteFile(filepath.Join(cssDir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	groups, err := AnalyzeBundles(Dirs{
		CSS:     cssDir,
		Exclude: []string{
			filepath.Join(cssDir, "critical.css"),
			filepath.Join(cssDir, "critical.min.css"),
		},
	}, 0)
	if err != nil {
		t.Fatalf("AnalyzeBundles() error = %v", err)
	}
	css := groups[types.GroupCSS]
	if len(css.Files) != 1 || css.Files[0].Path != "main.css" {
		t.Fatalf("css files = %+v, want main.css only", css.Files)
	}
	if css.TotalOriginal != int64(len(main)) {
		t.Errorf("TotalOriginal = %d, want %d", css.TotalOriginal, len(main))
	}
}

func TestAnalyzeBundles_MissingDirs(t *testing.T) {
	root := t.TempDir()
	groups, err := AnalyzeBundles(Dirs{
		JS:  filepath.Join(root, "nope"),
		CSS: filepath.Join(root, "also-nope"),
	}, 0)
	if err != nil {
		t.Fatalf("AnalyzeBundles() error = %v", err)
	}
	if len(groups[types.GroupJS].Files) != 0 {
		t.Error("missing dir produced files")
	}
}

func TestSnapshotStore(t *testing.T) {
	store := SnapshotStore{Path: filepath.Join(t.TempDir(), "performance-metrics.json")}

	got, err := store.Load()
	if err != nil || got != nil {
		t.Fatalf("Load() on missing = %v, %v; want nil, nil", got, err)
	}

	snap := snapshotWith(1234, 99)
	snap.Timestamp = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := store.Save(snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err = store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.TotalBuildTime() != 1234 || got.TotalGzip() != 99 {
		t.Errorf("loaded = %+v", got)
	}
	if !got.Timestamp.Equal(snap.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, snap.Timestamp)
	}

	data, _ := os.ReadFile(store.Path)
	for _, key := range []string{`"buildTimes"`, `"bundleAnalysis"`, `"performanceChecks"`, `"totalGzipped"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("snapshot JSON missing %s", key)
		}
	}
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	if _, err := timer.Measure("ok", func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	if _, err := timer.Measure("bad", func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Measure() error = %v, want boom", err)
	}
	timer.RecordResult(types.BuildStepResult{Name: "skipped", Skipped: true})
	timer.Record("slow", 2*time.Second, true)

	timings := timer.Timings()
	if len(timings) != 3 {
		t.Errorf("len(Timings()) = %d, want 3", len(timings))
	}
	if timings["bad"].Success {
		t.Error("bad step recorded as success")
	}
	if timer.Total() < 2*time.Second {
		t.Errorf("Total() = %v, want >= 2s", timer.Total())
	}
}

type memArchive struct{ snaps []*types.MetricsSnapshot }

func (a *memArchive) Append(_ context.Context, s *types.MetricsSnapshot) error {
	a.snaps = append(a.snaps, s)
	return nil
}

func newTestMonitor(t *testing.T, archive Archive) (*Monitor, string) {
	t.Helper()
	root := t.TempDir()
	jsDir := filepath.Join(root, "dist", "js")
	if err := os.MkdirAll(jsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(jsDir, "main.js"), []byte(strings.Repeat("let x = 1;\n", 100)), 0o644); err != nil {
		t.Fatal(err)
	}

	var opts []Option
	if archive != nil {
		opts = append(opts, WithArchive(archive))
	}
	m := NewMonitor(Config{
		Dirs:         Dirs{JS: jsDir},
		Targets:      DefaultTargets(),
		Tolerances:   DefaultTolerances(),
		SnapshotPath: filepath.Join(root, "performance-metrics.json"),
		ReportsDir:   filepath.Join(root, "reports"),
	}, opts...)
	return m, root
}

// Run 1 has no prior snapshot; run 2 at 12s against 10s reports one
// build-time regression naming both values.
func TestMonitor_RegressionScenario(t *testing.T) {
	archive := &memArchive{}
	m, root := newTestMonitor(t, archive)
	ctx := t.Context()

	first, err := m.Run(ctx, map[string]types.StepTiming{"js": {Duration: 10000, Success: true}}, RunOptions{RunID: "r1"})
	if err != nil {
		t.Fatalf("Run() #1 error = %v", err)
	}
	if !first.Comparison.Empty() {
		t.Errorf("run #1 comparison = %+v, want empty", first.Comparison)
	}
	if first.Err() != nil {
		t.Errorf("run #1 Err() = %v", first.Err())
	}

	second, err := m.Run(ctx, map[string]types.StepTiming{"js": {Duration: 12000, Success: true}}, RunOptions{RunID: "r2"})
	if err != nil {
		t.Fatalf("Run() #2 error = %v", err)
	}
	if len(second.Comparison.Regressions) != 1 {
		t.Fatalf("Regressions = %+v, want 1", second.Comparison.Regressions)
	}
	msg := second.Comparison.Regressions[0].Message
	if !strings.Contains(msg, "10.00s") || !strings.Contains(msg, "12.00s") {
		t.Errorf("Message = %q, want both values", msg)
	}
	if !errors.Is(second.Err(), ErrGateFailed) {
		t.Errorf("Err() = %v, want ErrGateFailed", second.Err())
	}
	if len(second.ReportPaths) != 2 {
		t.Errorf("ReportPaths = %v, want json and html", second.ReportPaths)
	}
	if len(archive.snaps) != 2 {
		t.Errorf("archived %d snapshots, want 2", len(archive.snaps))
	}

	html, err := os.ReadFile(filepath.Join(root, "reports", filepath.Base(second.ReportPaths[1])))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(html), "build time regressed") {
		t.Error("HTML report missing regression")
	}
}

func TestMonitor_ReportModeLeavesSnapshot(t *testing.T) {
	m, root := newTestMonitor(t, nil)
	ctx := t.Context()
	path := filepath.Join(root, "performance-metrics.json")

	if _, err := m.Run(ctx, map[string]types.StepTiming{"js": {Duration: 10000, Success: true}}, RunOptions{}); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(path)

	res, err := m.Run(ctx, map[string]types.StepTiming{"js": {Duration: 20000, Success: true}}, RunOptions{Mode: ModeReport})
	if err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("report mode modified the snapshot file")
	}
	if len(res.Comparison.Regressions) != 1 {
		t.Errorf("report mode regressions = %d, want 1", len(res.Comparison.Regressions))
	}
	if len(res.ReportPaths) == 0 {
		t.Error("report mode wrote no reports")
	}
}

func TestMonitor_BaselineDoesNotGate(t *testing.T) {
	m, _ := newTestMonitor(t, nil)
	ctx := t.Context()

	if _, err := m.Run(ctx, map[string]types.StepTiming{"js": {Duration: 1000, Success: true}}, RunOptions{}); err != nil {
		t.Fatal(err)
	}
	res, err := m.Run(ctx, map[string]types.StepTiming{"js": {Duration: 5000, Success: true}}, RunOptions{Mode: ModeBaseline})
	if err != nil {
		t.Fatal(err)
	}
	if res.Err() != nil {
		t.Errorf("baseline Err() = %v, want nil", res.Err())
	}

	stored, err := m.store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if stored.TotalBuildTime() != 5000 {
		t.Errorf("stored total = %v, want 5000", stored.TotalBuildTime())
	}
}
