package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/kiln/cli/render"
	"github.com/pithecene-io/kiln/cli/tui"
	"github.com/pithecene-io/kiln/history"
	"github.com/pithecene-io/kiln/perf"
	"github.com/pithecene-io/kiln/types"
)

// ReportCommand returns the report command group. Both subcommands are
// read-only.
func ReportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Show recorded performance snapshots",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Render the stored performance snapshot",
				Flags:  ReadOnlyFlags(),
				Action: reportShowAction,
			},
			{
				Name:   "history",
				Usage:  "List archived snapshots (requires history.enabled)",
				Flags:  ReadOnlyFlags(),
				Action: reportHistoryAction,
			},
		},
	}
}

// snapshotTable renders a snapshot with the same layout as the TUI.
type snapshotTable struct {
	snap *types.MetricsSnapshot
}

// WriteTable implements render.TableWriter.
func (s snapshotTable) WriteTable(w io.Writer, _ bool) error {
	_, err := fmt.Fprintln(w, tui.RenderReport(s.snap))
	return err
}

func reportShowAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	cfg, err := loadConfig(c, nil)
	if err != nil {
		return err
	}

	snap, err := perf.SnapshotStore{Path: cfg.Perf.SnapshotPath}.Load()
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	if snap == nil {
		return cli.Exit(fmt.Sprintf("no snapshot at %s (run kiln build or kiln monitor first)", cfg.Perf.SnapshotPath), exitFailure)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewReport, snap)
	}
	var data any = snap
	if r.Format() == render.FormatTable {
		data = snapshotTable{snap: snap}
	}
	return r.Render(data)
}

// HistoryRow is one archived snapshot in the history listing.
type HistoryRow struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	// BuildMs is the summed step duration.
	BuildMs   float64 `json:"build_ms"`
	JSGzip    int64   `json:"js_gzip"`
	CSSGzip   int64   `json:"css_gzip"`
	TotalGzip int64   `json:"total_gzip"`
	Issues    int     `json:"issues"`
	Warnings  int     `json:"warnings"`
}

func historyRows(snaps []*types.MetricsSnapshot) []HistoryRow {
	rows := make([]HistoryRow, 0, len(snaps))
	for _, s := range snaps {
		checks := s.PerformanceChecks
		rows = append(rows, HistoryRow{
			RunID:     s.RunID,
			Timestamp: s.Timestamp,
			BuildMs:   s.TotalBuildTime(),
			JSGzip:    s.BundleAnalysis[types.GroupJS].TotalGzipped,
			CSSGzip:   s.BundleAnalysis[types.GroupCSS].TotalGzipped,
			TotalGzip: s.TotalGzip(),
			Issues:    len(checks.BuildTime.Issues) + len(checks.BundleSize.Issues),
			Warnings:  len(checks.BuildTime.Warnings) + len(checks.BundleSize.Warnings),
		})
	}
	return rows
}

func reportHistoryAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for report history", exitUsage)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	e, err := newEnv(c, "report", nil)
	if err != nil {
		return err
	}
	defer e.sync()
	if !e.cfg.History.Enabled {
		return cli.Exit("history is disabled (set history.enabled in kiln.yaml)", exitUsage)
	}

	archive, err := e.openHistory(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	snaps, err := archive.List(c.Context)
	if err != nil && !errors.Is(err, history.ErrNoHistory) {
		return cli.Exit(err.Error(), exitFailure)
	}
	return r.Render(historyRows(snaps))
}
