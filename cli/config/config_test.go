package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	t.Setenv("KILN_HOOK_SECRET", "")
	yaml := `mode: dev

build:
  out_dir: public
  serial: true
  js:
    entry_points: [web/app.ts]
    out_dir: scripts

assets:
  source_dir: media
  breakpoints: [320, 640]
  formats: [webp, jpeg]
  max_input_size: 1MB
  concurrency: 8

critical:
  url: http://localhost:8080/
  viewports:
    - {width: 375, height: 667}
  max_bytes: 10KB
  timeout: 45s

perf:
  snapshot_path: .kiln/metrics.json
  targets:
    max_build_time: 1m
    max_js_gzip: 120KB

budget:
  warn_ratio: 0.85

history:
  enabled: true
  backend: s3
  path: my-bucket/kiln
  region: us-east-1
  s3_path_style: true

adapter:
  type: webhook
  url: https://hooks.example.com/kiln
  notify: change
  secret: ${KILN_HOOK_SECRET:-dev-secret}
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "mode", cfg.Mode, "dev")
	assertEqual(t, "build.out_dir", cfg.Build.OutDir, "public")
	if !cfg.Build.Serial {
		t.Error("expected build.serial=true")
	}
	assertEqual(t, "build.js.out_dir", cfg.Build.JS.OutDir, "scripts")
	if len(cfg.Build.JS.EntryPoints) != 1 || cfg.Build.JS.EntryPoints[0] != "web/app.ts" {
		t.Errorf("build.js.entry_points = %v, want [web/app.ts]", cfg.Build.JS.EntryPoints)
	}
	// Omitted keys keep defaults.
	assertEqual(t, "build.css.out_dir", cfg.Build.CSS.OutDir, "css")

	assertEqual(t, "assets.source_dir", cfg.Assets.SourceDir, "media")
	if got := cfg.Assets.Breakpoints; len(got) != 2 || got[1] != 640 {
		t.Errorf("assets.breakpoints = %v, want [320 640]", got)
	}
	if cfg.Assets.MaxInputSize != MB(1) {
		t.Errorf("assets.max_input_size = %d, want %d", cfg.Assets.MaxInputSize, MB(1))
	}
	if cfg.Assets.Concurrency != 8 {
		t.Errorf("assets.concurrency = %d, want 8", cfg.Assets.Concurrency)
	}

	if len(cfg.Critical.Viewports) != 1 || cfg.Critical.Viewports[0].Width != 375 {
		t.Errorf("critical.viewports = %v, want one 375x667", cfg.Critical.Viewports)
	}
	if cfg.Critical.MaxBytes != KB(10) {
		t.Errorf("critical.max_bytes = %d, want %d", cfg.Critical.MaxBytes, KB(10))
	}
	if cfg.Critical.Timeout.Duration != 45*time.Second {
		t.Errorf("critical.timeout = %v, want 45s", cfg.Critical.Timeout.Duration)
	}

	assertEqual(t, "perf.snapshot_path", cfg.Perf.SnapshotPath, ".kiln/metrics.json")
	if cfg.Perf.Targets.MaxBuildTime.Duration != time.Minute {
		t.Errorf("perf.targets.max_build_time = %v, want 1m", cfg.Perf.Targets.MaxBuildTime.Duration)
	}
	if cfg.Perf.Targets.MaxJSGzip != KB(120) {
		t.Errorf("perf.targets.max_js_gzip = %d, want %d", cfg.Perf.Targets.MaxJSGzip, KB(120))
	}
	if cfg.Perf.Targets.MaxCSSGzip != KB(50) {
		t.Errorf("perf.targets.max_css_gzip = %d, want default %d", cfg.Perf.Targets.MaxCSSGzip, KB(50))
	}

	if cfg.Budget.WarnRatio != 0.85 {
		t.Errorf("budget.warn_ratio = %v, want 0.85", cfg.Budget.WarnRatio)
	}
	if len(cfg.Budget.Limits) != 5 {
		t.Errorf("budget.limits has %d categories, want 5 defaults", len(cfg.Budget.Limits))
	}

	if !cfg.History.Enabled || cfg.History.Backend != "s3" || !cfg.History.S3PathStyle {
		t.Errorf("history = %+v, want enabled s3 path-style", cfg.History)
	}

	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("adapter.timeout = %v, want 10s", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Error("expected adapter.retries=3")
	}
	if cfg.Adapter.Headers["Authorization"] != "Bearer token123" {
		t.Error("expected Authorization header")
	}
	assertEqual(t, "adapter.notify", cfg.Adapter.Notify, "change")
	assertEqual(t, "adapter.secret", cfg.Adapter.Secret, "dev-secret")

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_EmptyConfigYieldsDefaults(t *testing.T) {
	for _, content := range []string{"", "   \n  \n", "# only a comment\n"} {
		cfg, err := Load(writeTemp(t, content))
		if err != nil {
			t.Fatalf("Load(%q) failed: %v", content, err)
		}
		def := Defaults()
		assertEqual(t, "mode", cfg.Mode, def.Mode)
		if cfg.Assets.Concurrency != 4 {
			t.Errorf("assets.concurrency = %d, want 4", cfg.Assets.Concurrency)
		}
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/kiln.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTemp(t, "{{invalid yaml")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		key  string
	}{
		{"top level", "mode: dev\nbogus_key: 1\n", "bogus_key"},
		{"nested", "history:\n  backend: fs\n  unknown_field: bad\n", "unknown_field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error for unknown key")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error should mention %q, got: %v", tt.key, err)
			}
		})
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("KILN_PREVIEW_URL", "http://preview.internal:4000/")

	cfg, err := Load(writeTemp(t, "critical:\n  url: ${KILN_PREVIEW_URL}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "critical.url", cfg.Critical.URL, "http://preview.internal:4000/")
}

func TestResolve_MissingDefaultUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiln.yaml")

	cfg, err := Resolve(path, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Budget.Limits["vendor"].Raw != KB(300) {
		t.Errorf("vendor raw budget = %d, want %d", cfg.Budget.Limits["vendor"].Raw, KB(300))
	}

	if _, err := Resolve(path, true); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("KILN_ENVFILE_TEST=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KILN_ENVFILE_TEST", "")
	if err := os.Unsetenv("KILN_ENVFILE_TEST"); err != nil {
		t.Fatal(err)
	}

	if err := LoadEnvFile(envPath, true); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("KILN_ENVFILE_TEST"); got != "from-dotenv" {
		t.Errorf("KILN_ENVFILE_TEST = %q, want from-dotenv", got)
	}

	missing := filepath.Join(dir, "missing.env")
	if err := LoadEnvFile(missing, false); err != nil {
		t.Errorf("missing default env file should be ignored, got %v", err)
	}
	if err := LoadEnvFile(missing, true); err == nil {
		t.Error("expected error for missing explicit env file")
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	_, err := Load(writeTemp(t, "adapter:\n  timeout: not-a-duration\n"))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error should mention invalid duration, got: %v", err)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    Size
		wantErr bool
	}{
		{"512", 512, false},
		{"512B", 512, false},
		{"14KB", 14 * 1024, false},
		{"14kb", 14 * 1024, false},
		{"2MB", 2 * 1024 * 1024, false},
		{"1.5MB", 1572864, false},
		{"", 0, false},
		{"lots", 0, true},
		{"-1KB", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSize(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSize_String(t *testing.T) {
	tests := []struct {
		in   Size
		want string
	}{
		{KB(14), "14KB"},
		{MB(2), "2MB"},
		{1500, "1500"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("Size(%d).String() = %q, want %q", int64(tt.in), got, tt.want)
		}
	}
}

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults().Validate() = %v", err)
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "staging"
	cfg.Assets.Concurrency = 0
	cfg.Assets.Formats = []string{"jxl"}
	cfg.Critical.Viewports = nil
	cfg.Adapter.Type = "kafka"
	cfg.Adapter.Notify = "sometimes"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"mode", "assets.concurrency", "jxl", "critical.viewports", "adapter.type", "adapter.notify"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_AdapterRequiresURL(t *testing.T) {
	cfg := Defaults()
	cfg.Adapter.Type = "redis"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "adapter.url") {
		t.Errorf("Validate() = %v, want adapter.url error", err)
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "kiln.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
