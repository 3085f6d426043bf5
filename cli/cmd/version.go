package cmd

import (
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/kiln/cli/render"
	"github.com/pithecene-io/kiln/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	// Go is the toolchain the binary was built with.
	Go string `json:"go"`
	// SnapshotFormat is the performance snapshot format version written.
	SnapshotFormat int `json:"snapshot_format"`
}

// VersionCommand returns the version command. It reads no config.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version", exitUsage)
		}
		r, err := render.NewRenderer(c)
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		return r.Render(VersionResponse{
			Version:        types.Version,
			Commit:         commit,
			Go:             runtime.Version(),
			SnapshotFormat: types.SnapshotFormatVersion,
		})
	}
}
