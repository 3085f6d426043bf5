package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/kiln/assets"
	"github.com/pithecene-io/kiln/budget"
	"github.com/pithecene-io/kiln/bundler"
	"github.com/pithecene-io/kiln/cli/config"
	"github.com/pithecene-io/kiln/cli/render"
	"github.com/pithecene-io/kiln/cli/tui"
	"github.com/pithecene-io/kiln/critical"
	"github.com/pithecene-io/kiln/perf"
	"github.com/pithecene-io/kiln/pipeline"
	"github.com/pithecene-io/kiln/sizing"
	"github.com/pithecene-io/kiln/types"
	"github.com/pithecene-io/kiln/watch"
)

// Step names that have no owning package constant.
const (
	stepAssets   = "assets"
	stepCritical = "critical"
)

// BuildCommand returns the build command, the full pipeline run.
func BuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Run the full build: clean, assets, css, js, critical, html, perf",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dev", Usage: "Development build: source maps, no minification"},
			&cli.BoolFlag{Name: "prod", Usage: "Production build (default)"},
			&cli.BoolFlag{Name: "analyze", Usage: "Write esbuild metafiles and log the size breakdown"},
			&cli.BoolFlag{Name: "skip-assets", Usage: "Skip asset optimization"},
			&cli.BoolFlag{Name: "serial", Usage: "Run step parts one after another"},
			&cli.BoolFlag{Name: "watch", Usage: "Rebuild on source changes until interrupted"},
			&cli.StringFlag{Name: "url", Usage: "Preview URL for critical CSS extraction"},
			VerboseFlag,
			NoColorFlag,
		},
		Action: buildAction,
	}
}

// buildOptions are the per-invocation switches that are not config.
type buildOptions struct {
	analyze    bool
	skipAssets bool
	// rebuild marks a watch-triggered pass: it gets a fresh run ID and
	// skips the monitor so the stored baseline only moves on full builds.
	rebuild bool
}

func buildAction(c *cli.Context) error {
	if c.Bool("dev") && c.Bool("prod") {
		return cli.Exit("--dev and --prod are mutually exclusive", exitUsage)
	}
	e, err := newEnv(c, "build", func(cfg *config.Config) {
		switch {
		case c.Bool("dev"):
			cfg.Mode = "dev"
		case c.Bool("prod"):
			cfg.Mode = "prod"
		}
		if c.Bool("serial") {
			cfg.Build.Serial = true
		}
		if c.IsSet("url") {
			cfg.Critical.URL = c.String("url")
		}
	})
	if err != nil {
		return err
	}
	defer e.sync()

	ctx, stop := signalContext(c.Context)
	defer stop()

	opts := buildOptions{analyze: c.Bool("analyze"), skipAssets: c.Bool("skip-assets")}
	color := !c.Bool("no-color") && render.IsTTY(os.Stdout)

	res := e.runBuild(ctx, opts, os.Stdout, color)
	if !c.Bool("watch") {
		return buildExit(res)
	}

	if err := e.watchLoop(ctx, opts, os.Stdout, color); err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	return nil
}

// buildExit maps a pipeline result onto the process exit code.
func buildExit(res *pipeline.Result) error {
	if res.Err == nil {
		return nil
	}
	return cli.Exit("", exitFailure)
}

// runBuild runs one pipeline pass, printing a status line per step, the
// per-target monitor lines and the summary table to w.
func (e *env) runBuild(ctx context.Context, opts buildOptions, w io.Writer, color bool) *pipeline.Result {
	extractor, in := e.extractor()
	defer func() {
		if err := in.Close(); err != nil {
			e.logger.Warn("inspector close failed", map[string]any{"error": err.Error()})
		}
	}()

	popts := []pipeline.Option{
		pipeline.WithLogger(e.logger),
		pipeline.WithCollector(e.collector),
		pipeline.WithStatus(func(sr types.BuildStepResult) {
			fmt.Fprintln(w, statusLine(sr, color))
		}),
	}

	runID := ""
	if !opts.rebuild {
		runID = e.runID
		mon, _ := e.monitor(ctx)
		popts = append(popts, pipeline.WithMonitor(func(ctx context.Context, runID string, timings map[string]types.StepTiming) (*perf.Result, error) {
			return mon.Run(ctx, timings, perf.RunOptions{RunID: runID, Mode: perf.ModeNormal})
		}))
	}

	a, err := e.adapter()
	if err != nil {
		e.logger.Warn("completion adapter disabled", map[string]any{"error": err.Error()})
	} else if a != nil {
		defer func() { _ = a.Close() }()
		popts = append(popts, pipeline.WithAdapter(a))
	}

	p := pipeline.New(pipeline.Config{
		RunID:  runID,
		Mode:   e.cfg.Mode,
		Serial: e.cfg.Build.Serial,
	}, e.buildSteps(opts, extractor), popts...)

	res, _ := p.Run(ctx)
	if res.Perf != nil {
		writeTargets(w, res.Perf, color)
	}
	fmt.Fprintln(w)
	if err := pipeline.WriteSummary(w, res); err != nil {
		e.logger.Warn("summary write failed", map[string]any{"error": err.Error()})
	}
	return res
}

// buildSteps assembles the pipeline in its fixed order.
func (e *env) buildSteps(opts buildOptions, extractor *critical.Extractor) []pipeline.Step {
	cfg := e.cfg
	dev := cfg.Mode == "dev"

	steps := []pipeline.Step{
		{
			Name:     pipeline.StepClean,
			Critical: true,
			Parts:    []pipeline.BuildCollaborator{pipeline.Clean(cfg.Build.OutDir)},
		},
		e.assetsStep(opts.skipAssets),
		{
			Name:      bundler.StepCSS,
			Critical:  true,
			Monitored: true,
			Parts:     []pipeline.BuildCollaborator{e.cssCollaborator(dev, opts.analyze)},
		},
		{
			Name:      bundler.StepJS,
			Critical:  true,
			Monitored: true,
			Parts:     []pipeline.BuildCollaborator{e.jsCollaborator(dev, opts.analyze)},
		},
		{
			Name: stepCritical,
			Skip: cfg.Critical.URL == "",
			Parts: []pipeline.BuildCollaborator{pipeline.FuncCollaborator{
				Name: stepCritical,
				Fn: func(ctx context.Context) (string, error) {
					bundle, err := extractor.Run(ctx, cfg.Critical.URL, e.outPath(cfg.Critical.OutDir))
					if err != nil {
						return "", err
					}
					return criticalSummary(bundle), nil
				},
			}},
		},
		{
			Name:  pipeline.StepHTML,
			Parts: []pipeline.BuildCollaborator{e.htmlGenerator().Collaborator()},
		},
	}

	if !dev && cfg.Build.Precompress {
		steps = append(steps, pipeline.Step{
			Name: bundler.StepPrecompress,
			Parts: []pipeline.BuildCollaborator{&bundler.Precompressor{
				Dir:     cfg.Build.OutDir,
				Workers: bundler.DefaultPrecompressWorkers,
				Logger:  e.logger,
			}},
		})
	}
	return steps
}

// assetsStep runs the images, fonts and svg scopes as parts and writes a
// single manifest once all of them returned.
func (e *env) assetsStep(skip bool) pipeline.Step {
	optimizer := e.optimizer()
	scopes := []assets.Scope{assets.ScopeImages, assets.ScopeFonts, assets.ScopeSVG}
	results := make([]*assets.Result, len(scopes))

	parts := make([]pipeline.BuildCollaborator, len(scopes))
	for i, scope := range scopes {
		parts[i] = pipeline.FuncCollaborator{
			Name: stepAssets + ":" + string(scope),
			Fn: func(ctx context.Context) (string, error) {
				res, err := optimizer.Optimize(ctx, scope)
				results[i] = res
				if err != nil {
					return "", err
				}
				return assetSummary(res), nil
			},
		}
	}

	required := e.cfg.Assets.Required
	return pipeline.Step{
		Name:      stepAssets,
		Critical:  required && !skip,
		Monitored: true,
		Skip:      skip,
		Parts:     parts,
		Finish: func(context.Context) (string, error) {
			merged := assets.Merge(results...)
			if err := merged.Err(); err != nil && required {
				return assetSummary(merged), err
			}
			if err := assets.WriteManifest(optimizer.Config().OutDir, merged.Manifest()); err != nil {
				return "", err
			}
			return assetSummary(merged), nil
		},
	}
}

func (e *env) cssCollaborator(dev, analyze bool) pipeline.BuildCollaborator {
	sc := e.cfg.Build.CSS
	if len(sc.Command) > 0 {
		return pipeline.CommandCollaborator{Name: bundler.StepCSS, Args: sc.Command}
	}
	return bundler.NewCSS(bundler.Config{
		EntryPoints: sc.EntryPoints,
		OutDir:      e.outPath(sc.OutDir),
		Target:      sc.Target,
		Dev:         dev,
		Analyze:     analyze,
	}, bundler.WithLogger(e.logger))
}

// jsCollaborator attaches the budget plugin to the esbuild JS build, so an
// over-budget bundle fails the js step.
func (e *env) jsCollaborator(dev, analyze bool) pipeline.BuildCollaborator {
	sc := e.cfg.Build.JS
	if len(sc.Command) > 0 {
		return pipeline.CommandCollaborator{Name: bundler.StepJS, Args: sc.Command}
	}
	reportsDir := e.cfg.Budget.ReportsDir
	plugin := budget.Plugin(e.enforcer(), func(r *budget.Report) {
		if len(r.Errors) == 0 && len(r.Warnings) == 0 {
			return
		}
		path, err := budget.WriteReport(reportsDir, r)
		if err != nil {
			e.logger.Warn("budget report not written", map[string]any{"error": err.Error()})
			return
		}
		e.logger.Info("budget report written", map[string]any{"path": path, "status": string(r.Status)})
	})
	return bundler.NewJS(bundler.Config{
		EntryPoints: sc.EntryPoints,
		OutDir:      e.outPath(sc.OutDir),
		Target:      sc.Target,
		Dev:         dev,
		Analyze:     analyze,
	}, bundler.WithLogger(e.logger), bundler.WithPlugins(plugin))
}

func (e *env) htmlGenerator() *pipeline.HTMLGenerator {
	cfg := e.cfg
	return &pipeline.HTMLGenerator{
		PagesDir:    cfg.Build.PagesDir,
		OutDir:      cfg.Build.OutDir,
		AssetPrefix: cfg.Assets.OutDir,
		AssetsDir:   e.outPath(cfg.Assets.OutDir),
		InlineFile:  filepath.Join(e.outPath(cfg.Critical.OutDir), critical.InlineFile),
	}
}

// watchLoop rebuilds on source changes until ctx is cancelled.
func (e *env) watchLoop(ctx context.Context, opts buildOptions, w io.Writer, color bool) error {
	opts.rebuild = true
	cfg := e.cfg
	roots := []string{cfg.Assets.SourceDir, cfg.Build.PagesDir}
	for _, ep := range append(append([]string(nil), cfg.Build.CSS.EntryPoints...), cfg.Build.JS.EntryPoints...) {
		roots = append(roots, filepath.Dir(ep))
	}

	watcher := watch.New(watch.Config{
		Roots:  dedupe(roots),
		Ignore: []string{cfg.Build.OutDir, cfg.Perf.ReportsDir, cfg.Budget.ReportsDir},
	}, func(ctx context.Context, changed []string) error {
		fmt.Fprintf(w, "\n%d file(s) changed, rebuilding\n", len(changed))
		res := e.runBuild(ctx, opts, w, color)
		if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
			e.logger.Warn("rebuild failed", map[string]any{"step": res.FailedStep})
		}
		return nil
	}, e.logger)

	fmt.Fprintln(w, "watching for changes (ctrl+c to stop)")
	return watcher.Run(ctx)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		s = filepath.Clean(s)
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// statusLine renders the colored completion line of one step.
func statusLine(sr types.BuildStepResult, color bool) string {
	detail := sr.Output
	if !sr.Success {
		detail = sr.Error
	}
	detail, _, _ = strings.Cut(strings.TrimSpace(detail), "\n")
	name := sr.Name
	if sr.Critical {
		name += "*"
	}
	return tui.StatusLine(pipeline.StepState(sr), fmt.Sprintf("%-12s", name), detail, color)
}

// writeTargets prints one pass/fail line per monitored target followed by
// the regressions and improvements.
func writeTargets(w io.Writer, r *perf.Result, color bool) {
	fmt.Fprintln(w)
	for _, t := range r.Summary {
		state := "pass"
		if !t.Passed {
			state = "fail"
			if t.Severity == types.SeverityWarning {
				state = "warn"
			}
		}
		fmt.Fprintln(w, tui.StatusLine(state, fmt.Sprintf("%-18s", t.Check), targetDetail(t), color))
	}
	for _, c := range r.Comparison.Regressions {
		fmt.Fprintln(w, tui.StatusLine("regressed", c.Metric, c.Message, color))
	}
	for _, c := range r.Comparison.Improvements {
		fmt.Fprintln(w, tui.StatusLine("improved", c.Metric, c.Message, color))
	}
	for _, p := range r.ReportPaths {
		fmt.Fprintf(w, "report: %s\n", p)
	}
}

// targetDetail formats a target's value and limit. Compression checks are
// emitted per group as "compression_ratio.<group>".
func targetDetail(t perf.TargetResult) string {
	switch {
	case t.Check == perf.CheckBuildTime:
		return fmt.Sprintf("%.2fs (limit %.2fs)", t.Value, t.Limit)
	case strings.HasPrefix(t.Check, perf.CheckCompression):
		return fmt.Sprintf("%.2f (min %.2f)", t.Value, t.Limit)
	default:
		return fmt.Sprintf("%s (limit %s)", sizing.FormatBytes(int64(t.Value)), sizing.FormatBytes(int64(t.Limit)))
	}
}

func assetSummary(r *assets.Result) string {
	return fmt.Sprintf("%d processed, %d skipped, %d errored, %s saved",
		r.Processed, r.Skipped, r.Errored, sizing.FormatBytes(r.BytesSaved()))
}

func criticalSummary(b *types.CriticalCSSBundle) string {
	ok := 0
	for _, f := range b.Fragments {
		if f.OK() {
			ok++
		}
	}
	s := fmt.Sprintf("%d rules, %s minified, %d/%d viewports",
		b.Rules, sizing.FormatBytes(int64(b.MinSize)), ok, len(b.Fragments))
	if b.OverBudget {
		s += " (over budget)"
	}
	return s
}
