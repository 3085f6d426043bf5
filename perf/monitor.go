// Package perf measures build timing and emitted bundle sizes, gates them
// against fixed targets and compares them with the previous run.
//
// The previous run is the snapshot file: it is read once at the start of a
// monitor run and overwritten once at the end, except in report-only mode.
package perf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/kiln/log"
	"github.com/pithecene-io/kiln/types"
)

// ErrGateFailed is returned when an error-severity target failed or a
// regression was detected.
var ErrGateFailed = errors.New("performance gate failed")

// Mode selects how a monitor run treats the snapshot file.
type Mode int

const (
	// ModeNormal compares against the stored snapshot and replaces it.
	ModeNormal Mode = iota
	// ModeBaseline replaces the stored snapshot without regression gating.
	ModeBaseline
	// ModeReport compares and reports but leaves the stored snapshot untouched.
	ModeReport
)

func (m Mode) String() string {
	switch m {
	case ModeBaseline:
		return "baseline"
	case ModeReport:
		return "report"
	default:
		return "normal"
	}
}

// Archive receives every persisted snapshot. The history package provides
// a Lode-backed implementation.
type Archive interface {
	Append(ctx context.Context, snap *types.MetricsSnapshot) error
}

// Config is the immutable monitor configuration.
type Config struct {
	Dirs        Dirs
	SampleLimit int
	Targets     Targets
	Tolerances  Tolerances
	// SnapshotPath is the persisted snapshot file.
	SnapshotPath string
	ReportsDir   string
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithArchive appends each persisted snapshot to a.
func WithArchive(a Archive) Option {
	return func(m *Monitor) { m.archive = a }
}

// Monitor runs the performance checks.
type Monitor struct {
	cfg     Config
	store   SnapshotStore
	logger  *log.Logger
	archive Archive
	now     func() time.Time
}

// NewMonitor creates a Monitor.
func NewMonitor(cfg Config, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:    cfg,
		store:  SnapshotStore{Path: cfg.SnapshotPath},
		logger: log.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("perf")
	return m
}

// RunOptions are per-invocation settings.
type RunOptions struct {
	RunID string
	Mode  Mode
	// ForceReport writes reports even when nothing was flagged.
	ForceReport bool
}

// Result is the outcome of one monitor run.
type Result struct {
	Snapshot    *types.MetricsSnapshot
	Previous    *types.MetricsSnapshot
	Findings    []types.Finding
	Summary     []TargetResult
	Comparison  Comparison
	ReportPaths []string
	Mode        Mode
}

// Errors returns the error-severity findings.
func (r *Result) Errors() []types.Finding {
	var out []types.Finding
	for _, f := range r.Findings {
		if f.Severity == types.SeverityError {
			out = append(out, f)
		}
	}
	return out
}

// Err returns ErrGateFailed when an error finding exists, or a regression
// outside baseline mode. Warnings and improvements never fail a run.
func (r *Result) Err() error {
	errs := len(r.Errors())
	regressions := len(r.Comparison.Regressions)
	if r.Mode == ModeBaseline {
		regressions = 0
	}
	if errs == 0 && regressions == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d error(s), %d regression(s)", ErrGateFailed, errs, regressions)
}

// Run analyses the emitted output with the given step timings, evaluates
// the targets, compares with the stored snapshot, persists the new one
// (unless in report mode) and writes reports when anything was flagged.
func (m *Monitor) Run(ctx context.Context, timings map[string]types.StepTiming, opts RunOptions) (*Result, error) {
	prev, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	groups, err := AnalyzeBundles(m.cfg.Dirs, m.cfg.SampleLimit)
	if err != nil {
		return nil, err
	}

	snap := &types.MetricsSnapshot{
		FormatVersion:  types.SnapshotFormatVersion,
		RunID:          opts.RunID,
		Timestamp:      m.now().UTC(),
		BuildTimes:     timings,
		BundleAnalysis: groups,
	}
	if snap.BuildTimes == nil {
		snap.BuildTimes = map[string]types.StepTiming{}
	}

	findings, summary := Evaluate(snap, m.cfg.Targets)
	result := &Result{
		Snapshot: snap,
		Previous: prev,
		Findings: findings,
		Summary:  summary,
		Mode:     opts.Mode,
	}

	if opts.Mode != ModeBaseline {
		result.Comparison = Compare(prev, snap, m.cfg.Tolerances)
	} else {
		result.Comparison = Compare(nil, nil, m.cfg.Tolerances)
	}
	for _, c := range result.Comparison.Regressions {
		m.logger.Warn(c.Message, map[string]any{"metric": c.Metric})
	}
	for _, c := range result.Comparison.Improvements {
		m.logger.Info(c.Message, map[string]any{"metric": c.Metric})
	}

	if opts.Mode != ModeReport {
		if err := m.store.Save(snap); err != nil {
			return result, err
		}
		m.logger.Debug("snapshot saved", map[string]any{"path": m.cfg.SnapshotPath})
		if m.archive != nil {
			if err := m.archive.Append(ctx, snap); err != nil {
				m.logger.Warn("snapshot history append failed", map[string]any{"error": err.Error()})
			}
		}
	}

	if opts.ForceReport || opts.Mode == ModeReport || len(findings) > 0 || !result.Comparison.Empty() {
		paths, err := WriteReports(m.cfg.ReportsDir, &Report{
			Timestamp:  snap.Timestamp,
			Passed:     result.Err() == nil,
			Summary:    summary,
			Findings:   findings,
			Comparison: result.Comparison,
			Snapshot:   snap,
		})
		if err != nil {
			return result, err
		}
		result.ReportPaths = paths
	}

	m.logger.Info("performance check complete", map[string]any{
		"mode":         opts.Mode.String(),
		"findings":     len(findings),
		"regressions":  len(result.Comparison.Regressions),
		"improvements": len(result.Comparison.Improvements),
		"total_ms":     snap.TotalBuildTime(),
		"total_gzip":   snap.TotalGzip(),
	})
	return result, nil
}
