package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/kiln/cli/config"
	"github.com/pithecene-io/kiln/cli/render"
	"github.com/pithecene-io/kiln/cli/tui"
	"github.com/pithecene-io/kiln/sizing"
)

// CriticalCommand returns the standalone critical CSS extraction command.
func CriticalCommand() *cli.Command {
	return &cli.Command{
		Name:  "critical",
		Usage: "Extract critical CSS from a running preview of the built site",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "Preview URL (overrides critical.url)"},
			VerboseFlag,
			NoColorFlag,
		},
		Action: criticalAction,
	}
}

func criticalAction(c *cli.Context) error {
	e, err := newEnv(c, "critical", func(cfg *config.Config) {
		if c.IsSet("url") {
			cfg.Critical.URL = c.String("url")
		}
	})
	if err != nil {
		return err
	}
	defer e.sync()
	if e.cfg.Critical.URL == "" {
		return cli.Exit("critical: no URL (set critical.url or pass --url)", exitUsage)
	}

	ctx, stop := signalContext(c.Context)
	defer stop()

	color := !c.Bool("no-color") && render.IsTTY(os.Stdout)
	extractor, in := e.extractor()
	defer func() { _ = in.Close() }()

	bundle, err := extractor.Run(ctx, e.cfg.Critical.URL, e.outPath(e.cfg.Critical.OutDir))
	if bundle != nil {
		for _, f := range bundle.Fragments {
			if f.OK() {
				fmt.Fprintln(os.Stdout, tui.StatusLine("ok", f.Viewport,
					fmt.Sprintf("%s (coverage %s, dom %s)", sizing.FormatBytes(int64(f.Size)),
						sizing.FormatBytes(int64(f.CoverageBytes)), sizing.FormatBytes(int64(f.DOMBytes))), color))
			} else {
				fmt.Fprintln(os.Stdout, tui.StatusLine("failed", f.Viewport, f.Error, color))
			}
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stdout, tui.StatusLine("failed", "critical", err.Error(), color))
		return cli.Exit("", exitFailure)
	}

	state := "ok"
	if bundle.OverBudget {
		state = "warning"
	}
	fmt.Fprintln(os.Stdout, tui.StatusLine(state, "critical", criticalSummary(bundle), color))
	return nil
}
