package budget

import (
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
)

// PluginName is the esbuild plugin name.
const PluginName = "kiln-budget"

// Plugin returns an esbuild plugin that enforces budgets once output is
// emitted. Scripts are taken from the in-memory output files; when the
// build wrote to disk without returning them, the outdir is scanned.
// onReport receives every report; a FAILED report fails the build.
func Plugin(e *Enforcer, onReport func(*Report)) api.Plugin {
	return api.Plugin{
		Name: PluginName,
		Setup: func(build api.PluginBuild) {
			outdir := build.InitialOptions.Outdir
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				if len(result.Errors) > 0 {
					return api.OnEndResult{}, nil
				}

				var (
					report *Report
					err    error
				)
				if bundles := outputBundles(outdir, result.OutputFiles); len(bundles) > 0 {
					report, err = e.Enforce(bundles)
				} else if outdir != "" {
					report, err = e.EnforceDir(outdir)
				} else {
					return api.OnEndResult{}, nil
				}
				if err != nil {
					return api.OnEndResult{}, err
				}

				if onReport != nil {
					onReport(report)
				}
				if report.Status == StatusFailed {
					msgs := make([]api.Message, 0, len(report.Errors))
					for _, f := range report.Errors {
						msgs = append(msgs, api.Message{PluginName: PluginName, Text: f.Message})
					}
					return api.OnEndResult{Errors: msgs}, nil
				}
				return api.OnEndResult{}, nil
			})
		},
	}
}

func outputBundles(outdir string, files []api.OutputFile) []Bundle {
	var bundles []Bundle
	for _, f := range files {
		if !IsScript(f.Path) {
			continue
		}
		name := filepath.Base(f.Path)
		if outdir != "" {
			if rel, err := filepath.Rel(outdir, f.Path); err == nil {
				name = filepath.ToSlash(rel)
			}
		}
		bundles = append(bundles, Bundle{Name: name, Contents: f.Contents})
	}
	return bundles
}
