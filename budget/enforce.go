// Package budget enforces per-category size budgets on emitted script
// bundles. It runs as a post-emit hook inside the JS build (see Plugin) or
// standalone over an output directory.
package budget

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pithecene-io/kiln/log"
	"github.com/pithecene-io/kiln/sizing"
	"github.com/pithecene-io/kiln/types"
)

// ErrBudgetExceeded is returned when at least one bundle is at or over a
// budget.
var ErrBudgetExceeded = errors.New("bundle budget exceeded")

// DefaultWarnRatio is the usage at which a warning is recorded.
const DefaultWarnRatio = 0.9

// Limit is the raw and gzip budget of a category, in bytes.
// A zero limit is not enforced.
type Limit struct {
	Raw  int64
	Gzip int64
}

// Config is the immutable enforcer configuration.
type Config struct {
	Limits     map[types.BundleCategory]Limit
	Classifier *Classifier
	// WarnRatio is the usage at or above which a warning is recorded.
	WarnRatio float64
}

// Bundle is one emitted script to check.
type Bundle struct {
	Name     string
	Contents []byte
}

// Enforcer checks bundles against the budget table.
type Enforcer struct {
	cfg    Config
	logger *log.Logger
	now    func() time.Time
}

// NewEnforcer creates an Enforcer. logger may be nil.
func NewEnforcer(cfg Config, logger *log.Logger) *Enforcer {
	if cfg.Classifier == nil {
		cfg.Classifier = DefaultClassifier()
	}
	if cfg.WarnRatio <= 0 {
		cfg.WarnRatio = DefaultWarnRatio
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Enforcer{cfg: cfg, logger: logger.Named("budget"), now: time.Now}
}

// Check classifies one bundle and evaluates its raw and gzip sizes
// independently, so a bundle yields at most four findings: warning or
// error for each of the two budgets.
func (e *Enforcer) Check(name string, size, gzipSize int64) (types.BundleRecord, []types.Finding) {
	category := e.cfg.Classifier.Classify(name)
	limit := e.cfg.Limits[category]

	rec := types.BundleRecord{
		Name:       name,
		Category:   category,
		Size:       size,
		GzipSize:   gzipSize,
		Budget:     limit.Raw,
		GzipBudget: limit.Gzip,
	}

	var findings []types.Finding
	if limit.Raw > 0 {
		rec.Usage = float64(size) / float64(limit.Raw)
		rec.OverBudget = size >= limit.Raw
		if f, ok := e.grade(name, category, "raw", size, limit.Raw, rec.Usage); ok {
			findings = append(findings, f)
		}
	}
	if limit.Gzip > 0 {
		rec.GzipUsage = float64(gzipSize) / float64(limit.Gzip)
		rec.OverGzipBudget = gzipSize >= limit.Gzip
		if f, ok := e.grade(name, category, "gzip", gzipSize, limit.Gzip, rec.GzipUsage); ok {
			findings = append(findings, f)
		}
	}
	return rec, findings
}

func (e *Enforcer) grade(name string, category types.BundleCategory, kind string, size, limit int64, usage float64) (types.Finding, bool) {
	var severity types.Severity
	switch {
	case size >= limit:
		severity = types.SeverityError
	case usage >= e.cfg.WarnRatio:
		severity = types.SeverityWarning
	default:
		return types.Finding{}, false
	}
	return types.Finding{
		Severity: severity,
		Check:    "budget." + kind,
		Subject:  name,
		Message: fmt.Sprintf("%s (%s) %s size %s is %.1f%% of %s budget",
			name, category, kind, sizing.FormatBytes(size), usage*100, sizing.FormatBytes(limit)),
		Value: float64(size),
		Limit: float64(limit),
	}, true
}

// Enforce checks every bundle and builds the report. Bundles are reported
// sorted by name.
func (e *Enforcer) Enforce(bundles []Bundle) (*Report, error) {
	report := &Report{Timestamp: e.now().UTC()}

	sorted := append([]Bundle(nil), bundles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, b := range sorted {
		gz, err := sizing.GzipSize(b.Contents)
		if err != nil {
			return nil, fmt.Errorf("measure %s: %w", b.Name, err)
		}
		rec, findings := e.Check(b.Name, int64(len(b.Contents)), gz)
		report.Bundles = append(report.Bundles, rec)
		for _, f := range findings {
			if f.Severity == types.SeverityError {
				report.Errors = append(report.Errors, f)
			} else {
				report.Warnings = append(report.Warnings, f)
			}
		}
	}
	report.Status = statusOf(report)

	e.logger.Info("budget check complete", map[string]any{
		"bundles":  len(report.Bundles),
		"errors":   len(report.Errors),
		"warnings": len(report.Warnings),
		"status":   string(report.Status),
	})
	return report, nil
}

// EnforceDir enforces over every .js file under dir. Source maps and
// precompressed siblings are ignored.
func (e *Enforcer) EnforceDir(dir string) (*Report, error) {
	var bundles []Bundle
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsScript(path) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		bundles = append(bundles, Bundle{Name: filepath.ToSlash(rel), Contents: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return e.Enforce(bundles)
}

// IsScript reports whether path is an emitted script bundle.
func IsScript(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".js" || ext == ".mjs"
}
