// Package cmd provides the commands of the kiln binary.
package cmd

import "github.com/urfave/cli/v2"

// Exit codes.
const (
	exitSuccess = 0
	// exitFailure covers critical step failures, error findings and
	// regressions.
	exitFailure = 1
	// exitUsage covers configuration and flag errors.
	exitUsage = 2
)

// Global flags, accepted before any command.
var (
	// ConfigFlag names the kiln.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the kiln.yaml config file",
		Value:   "kiln.yaml",
		EnvVars: []string{"KILN_CONFIG"},
	}

	// EnvFileFlag names the dotenv file loaded before the config is expanded.
	EnvFileFlag = &cli.StringFlag{
		Name:  "env-file",
		Usage: "Path to a .env file loaded before the config",
		Value: ".env",
	}

	// VerboseFlag lowers the log level to debug.
	VerboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Enable debug logging",
	}
)

// GlobalFlags returns the flags shared by every command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{ConfigFlag, EnvFileFlag, VerboseFlag}
}

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables the interactive report viewer.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (report show only)",
	}
)

// ReadOnlyFlags returns the shared flags for read-only commands.
// --tui is accepted everywhere so unsupported commands can reject it with
// a clear message instead of "flag provided but not defined".
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, NoColorFlag, TUIFlag}
}
