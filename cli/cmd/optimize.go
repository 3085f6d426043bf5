package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/kiln/assets"
	"github.com/pithecene-io/kiln/cli/render"
	"github.com/pithecene-io/kiln/cli/tui"
	"github.com/pithecene-io/kiln/types"
)

// OptimizeCommand returns the standalone asset optimization command.
func OptimizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "optimize",
		Usage: "Optimize images, fonts and svg files and regenerate the manifest",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "type",
				Usage: "Asset type: images, fonts, svg or all",
				Value: string(assets.ScopeAll),
			},
			VerboseFlag,
			NoColorFlag,
		},
		Action: optimizeAction,
	}
}

func optimizeAction(c *cli.Context) error {
	scope, err := assets.ParseScope(c.String("type"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	e, err := newEnv(c, "optimize", nil)
	if err != nil {
		return err
	}
	defer e.sync()

	ctx, stop := signalContext(c.Context)
	defer stop()

	color := !c.Bool("no-color") && render.IsTTY(os.Stdout)
	res, err := e.optimizer().Run(ctx, scope)
	if res != nil {
		for _, ar := range res.Assets {
			if ar.Outcome == types.OutcomeProcessed {
				continue
			}
			state, detail := "skipped", "larger than max input size"
			if ar.Outcome == types.OutcomeError {
				state, detail = "error", ""
				if len(ar.Errors) > 0 {
					detail = ar.Errors[0]
				}
			}
			fmt.Fprintln(os.Stdout, tui.StatusLine(state, ar.Asset.Original, detail, color))
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stdout, tui.StatusLine("failed", "optimize", err.Error(), color))
		return cli.Exit("", exitFailure)
	}

	state := "ok"
	if res.Err() != nil {
		state = "failed"
	}
	fmt.Fprintln(os.Stdout, tui.StatusLine(state, "optimize:"+string(scope), assetSummary(res), color))
	if err := res.Err(); err != nil && e.cfg.Assets.Required {
		return cli.Exit("", exitFailure)
	}
	return nil
}
