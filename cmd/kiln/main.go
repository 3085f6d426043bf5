// Package main provides the kiln CLI entrypoint.
//
// Usage:
//
//	kiln [--config kiln.yaml] [--env-file .env] [--verbose] <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: critical step failure, error finding or regression
//   - 2: configuration or usage error
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/kiln/cli/cmd"
	"github.com/pithecene-io/kiln/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "kiln",
		Usage:          "Asset build and performance governance pipeline",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:          cmd.GlobalFlags(),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.BuildCommand(),
			cmd.OptimizeCommand(),
			cmd.CriticalCommand(),
			cmd.MonitorCommand(),
			cmd.BudgetCommand(),
			cmd.ReportCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// exitErrHandler prints the error and exits with its code. Codes from
// cli.Exit are preserved, wrapped or not; anything else exits 1.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(report(os.Stderr, err))
}

// report writes the user-facing message for err and returns the exit code.
func report(w io.Writer, err error) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		// cli.Exit("", N) renders as "exit status N"; the command already
		// printed its own output, so stay quiet.
		if msg := exitCoder.Error(); msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(w, msg)
		}
		return code
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
