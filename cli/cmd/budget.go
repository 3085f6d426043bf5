package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/kiln/budget"
	"github.com/pithecene-io/kiln/cli/render"
	"github.com/pithecene-io/kiln/cli/tui"
)

// BudgetCommand returns the standalone budget enforcement command.
func BudgetCommand() *cli.Command {
	return &cli.Command{
		Name:      "budget",
		Usage:     "Check emitted scripts in a directory against the bundle budgets",
		ArgsUsage: "<dir>",
		Flags:     append(ReadOnlyFlags(), VerboseFlag),
		Action:    budgetAction,
	}
}

// budgetTable is the table rendering of a budget report: the per-bundle
// rows and a colored overall status line.
type budgetTable struct {
	report *budget.Report
}

// WriteTable implements render.TableWriter.
func (b budgetTable) WriteTable(w io.Writer, color bool) error {
	if err := budget.WriteTable(w, b.report); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, tui.StatusLine(string(b.report.Status), "budget",
		fmt.Sprintf("%d bundle(s), %d error(s), %d warning(s)",
			len(b.report.Bundles), len(b.report.Errors), len(b.report.Warnings)), color))
	return err
}

func budgetAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: kiln budget <dir>", exitUsage)
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for budget", exitUsage)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	e, err := newEnv(c, "budget", nil)
	if err != nil {
		return err
	}
	defer e.sync()

	dir := c.Args().First()
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return cli.Exit(fmt.Sprintf("budget: %s is not a directory", dir), exitUsage)
	}

	report, err := e.enforcer().EnforceDir(dir)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	if len(report.Errors) > 0 || len(report.Warnings) > 0 {
		path, err := budget.WriteReport(e.cfg.Budget.ReportsDir, report)
		if err != nil {
			e.logger.Warn("budget report not written", map[string]any{"error": err.Error()})
		} else {
			e.logger.Info("budget report written", map[string]any{"path": path})
		}
	}

	var data any = report
	if r.Format() == render.FormatTable {
		data = budgetTable{report: report}
	}
	if err := r.Render(data); err != nil {
		return err
	}
	if err := report.Err(); err != nil {
		return cli.Exit("", exitFailure)
	}
	return nil
}
