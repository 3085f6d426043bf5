// Package bundler provides the esbuild-backed JS and CSS build
// collaborators.
//
// Each collaborator runs one esbuild build and reports a
// types.BuildStepResult. Build errors and plugin errors (including budget
// failures raised by the budget plugin) make the step fail.
package bundler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/pithecene-io/kiln/log"
	"github.com/pithecene-io/kiln/sizing"
	"github.com/pithecene-io/kiln/types"
)

// Step names used by the orchestrator.
const (
	StepJS  = "js"
	StepCSS = "css"
)

// ErrNoEntryPoints is returned when a collaborator has nothing to build.
var ErrNoEntryPoints = errors.New("no entry points configured")

// Config configures one esbuild collaborator.
type Config struct {
	EntryPoints []string
	// OutDir is the absolute or working-directory relative output dir.
	OutDir string
	// Target is an esbuild target name such as "es2020"; empty means es2020.
	Target string
	// Dev enables linked source maps and disables minification.
	Dev bool
	// Analyze writes meta.json next to the output and logs the
	// per-input size breakdown.
	Analyze bool
	// ESM emits ES modules instead of an IIFE (JS only).
	ESM bool
}

// Option configures a collaborator.
type Option func(*Collaborator)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Collaborator) { c.logger = l }
}

// WithPlugins attaches esbuild plugins (for example budget.Plugin).
func WithPlugins(plugins ...api.Plugin) Option {
	return func(c *Collaborator) { c.plugins = append(c.plugins, plugins...) }
}

// Collaborator is an esbuild build step.
type Collaborator struct {
	name    string
	cfg     Config
	plugins []api.Plugin
	logger  *log.Logger
}

// NewJS returns the JS bundling collaborator.
func NewJS(cfg Config, opts ...Option) *Collaborator {
	return newCollaborator(StepJS, cfg, opts)
}

// NewCSS returns the CSS bundling collaborator.
func NewCSS(cfg Config, opts ...Option) *Collaborator {
	return newCollaborator(StepCSS, cfg, opts)
}

func newCollaborator(name string, cfg Config, opts []Option) *Collaborator {
	c := &Collaborator{name: name, cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.NewNop()
	}
	return c
}

// Name returns the step name.
func (c *Collaborator) Name() string { return c.name }

// Options returns the esbuild options the collaborator builds with.
func (c *Collaborator) Options() (api.BuildOptions, error) {
	target, err := ParseTarget(c.cfg.Target)
	if err != nil {
		return api.BuildOptions{}, err
	}

	opts := api.BuildOptions{
		EntryPoints: c.cfg.EntryPoints,
		Bundle:      true,
		Outdir:      c.cfg.OutDir,
		Write:       true,
		Target:      target,
		LogLevel:    api.LogLevelSilent,
		Plugins:     c.plugins,
		Metafile:    c.cfg.Analyze,
	}
	if c.name == StepJS {
		opts.Format = api.FormatIIFE
		if c.cfg.ESM {
			opts.Format = api.FormatESModule
		}
		opts.TreeShaking = api.TreeShakingTrue
		opts.KeepNames = c.cfg.Dev
	}
	if c.cfg.Dev {
		opts.Sourcemap = api.SourceMapLinked
	} else {
		opts.Sourcemap = api.SourceMapNone
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
	}
	return opts, nil
}

// Run executes the build.
func (c *Collaborator) Run(ctx context.Context) types.BuildStepResult {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return types.StepFailed(c.name, time.Since(start), err)
	}
	if len(c.cfg.EntryPoints) == 0 {
		return types.StepFailed(c.name, time.Since(start), ErrNoEntryPoints)
	}
	opts, err := c.Options()
	if err != nil {
		return types.StepFailed(c.name, time.Since(start), err)
	}

	result := api.Build(opts)
	for _, w := range result.Warnings {
		c.logger.Warn("esbuild warning", messageFields(c.name, w))
	}
	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			c.logger.Error("esbuild error", messageFields(c.name, e))
		}
		return types.StepFailed(c.name, time.Since(start), buildError(result.Errors))
	}

	if c.cfg.Analyze && result.Metafile != "" {
		if err := c.writeAnalysis(result.Metafile); err != nil {
			c.logger.Warn("bundle analysis failed", map[string]any{
				"step":  c.name,
				"error": err.Error(),
			})
		}
	}

	out := summarize(result.OutputFiles)
	c.logger.Info("bundle built", map[string]any{
		"step":    c.name,
		"outputs": len(result.OutputFiles),
		"summary": out,
	})
	return types.StepSucceeded(c.name, time.Since(start), out)
}

// ParseTarget maps a target name to an esbuild target.
func ParseTarget(name string) (api.Target, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "es2020":
		return api.ES2020, nil
	case "es2015", "es6":
		return api.ES2015, nil
	case "es2016":
		return api.ES2016, nil
	case "es2017":
		return api.ES2017, nil
	case "es2018":
		return api.ES2018, nil
	case "es2019":
		return api.ES2019, nil
	case "es2021":
		return api.ES2021, nil
	case "es2022":
		return api.ES2022, nil
	case "esnext":
		return api.ESNext, nil
	default:
		return api.DefaultTarget, fmt.Errorf("unknown esbuild target %q", name)
	}
}

func buildError(msgs []api.Message) error {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		text := m.Text
		if m.PluginName != "" {
			text = m.PluginName + ": " + text
		}
		if m.Location != nil {
			text = fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, text)
		}
		parts = append(parts, text)
	}
	return fmt.Errorf("esbuild failed with %d error(s): %s", len(msgs), strings.Join(parts, "; "))
}

func messageFields(step string, m api.Message) map[string]any {
	fields := map[string]any{
		"step": step,
		"text": m.Text,
	}
	if m.PluginName != "" {
		fields["plugin"] = m.PluginName
	}
	if m.Location != nil {
		fields["file"] = m.Location.File
		fields["line"] = m.Location.Line
		fields["column"] = m.Location.Column
	}
	return fields
}

// summarize renders one "name size" entry per emitted non-map file.
func summarize(files []api.OutputFile) string {
	var b strings.Builder
	for _, f := range files {
		if strings.HasSuffix(f.Path, ".map") || strings.HasSuffix(f.Path, ".json") {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", filepath.Base(f.Path), sizing.FormatBytes(int64(len(f.Contents))))
	}
	return b.String()
}
