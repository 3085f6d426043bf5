package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/kiln/cli/render"
	"github.com/pithecene-io/kiln/perf"
	"github.com/pithecene-io/kiln/types"
)

// MonitorCommand returns the standalone performance monitor command.
// It measures the current output directory; build timings are carried over
// from the stored snapshot since no build ran.
func MonitorCommand() *cli.Command {
	return &cli.Command{
		Name:  "monitor",
		Usage: "Measure the built output against targets and the stored baseline",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "baseline", Usage: "Record the current output as the new baseline without regression gating"},
			&cli.BoolFlag{Name: "report", Usage: "Compare and write reports without updating the stored snapshot"},
			VerboseFlag,
			NoColorFlag,
		},
		Action: monitorAction,
	}
}

func monitorAction(c *cli.Context) error {
	if c.Bool("baseline") && c.Bool("report") {
		return cli.Exit("--baseline and --report are mutually exclusive", exitUsage)
	}
	mode := perf.ModeNormal
	switch {
	case c.Bool("baseline"):
		mode = perf.ModeBaseline
	case c.Bool("report"):
		mode = perf.ModeReport
	}

	e, err := newEnv(c, "monitor", nil)
	if err != nil {
		return err
	}
	defer e.sync()

	ctx, stop := signalContext(c.Context)
	defer stop()

	prev, err := perf.SnapshotStore{Path: e.cfg.Perf.SnapshotPath}.Load()
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	var timings map[string]types.StepTiming
	if prev != nil {
		timings = prev.BuildTimes
	}

	mon, _ := e.monitor(ctx)
	res, err := mon.Run(ctx, timings, perf.RunOptions{
		RunID:       e.runID,
		Mode:        mode,
		ForceReport: mode == perf.ModeReport,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	color := !c.Bool("no-color") && render.IsTTY(os.Stdout)
	writeTargets(os.Stdout, res, color)
	if err := res.Err(); err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	return nil
}
