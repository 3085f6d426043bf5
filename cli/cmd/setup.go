package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/kiln/adapter"
	"github.com/pithecene-io/kiln/adapter/redis"
	"github.com/pithecene-io/kiln/adapter/webhook"
	"github.com/pithecene-io/kiln/assets"
	"github.com/pithecene-io/kiln/budget"
	"github.com/pithecene-io/kiln/cli/config"
	"github.com/pithecene-io/kiln/critical"
	"github.com/pithecene-io/kiln/history"
	"github.com/pithecene-io/kiln/inspector"
	"github.com/pithecene-io/kiln/log"
	"github.com/pithecene-io/kiln/metrics"
	"github.com/pithecene-io/kiln/perf"
	"github.com/pithecene-io/kiln/types"
)

// env is the per-invocation wiring shared by the executing commands:
// the resolved config, the run identity and the ambient logger and
// collector.
type env struct {
	cfg       config.Config
	runID     string
	logger    *log.Logger
	collector *metrics.Collector
}

// loadConfig resolves the config for c: dotenv first, then kiln.yaml over
// the defaults, then override, then validation. Every failure is a usage
// error.
func loadConfig(c *cli.Context, override func(*config.Config)) (config.Config, error) {
	if err := config.LoadEnvFile(c.String("env-file"), isSet(c, "env-file")); err != nil {
		return config.Config{}, cli.Exit(err.Error(), exitUsage)
	}
	cfg, err := config.Resolve(c.String("config"), isSet(c, "config"))
	if err != nil {
		return config.Config{}, cli.Exit(err.Error(), exitUsage)
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, cli.Exit(fmt.Sprintf("invalid configuration:\n%v", err), exitUsage)
	}
	return *cfg, nil
}

// newEnv loads the config and builds the logger and collector for command.
func newEnv(c *cli.Context, command string, override func(*config.Config)) (*env, error) {
	cfg, err := loadConfig(c, override)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	storage := ""
	if cfg.History.Enabled {
		storage = cfg.History.Backend
	}
	return &env{
		cfg:   cfg,
		runID: runID,
		logger: log.NewLogger(log.RunContext{
			RunID:   runID,
			Mode:    cfg.Mode,
			Command: command,
		}, verbose(c)),
		collector: metrics.NewCollector(cfg.Mode, storage, runID),
	}, nil
}

// isSet reports whether name was given on the command line at any level.
func isSet(c *cli.Context, name string) bool {
	for _, cc := range c.Lineage() {
		if cc.IsSet(name) {
			return true
		}
	}
	return false
}

// verbose reads --verbose from whichever level set it, so both
// "kiln --verbose build" and "kiln build --verbose" work.
func verbose(c *cli.Context) bool {
	for _, cc := range c.Lineage() {
		if cc.IsSet("verbose") {
			return cc.Bool("verbose")
		}
	}
	return false
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (e *env) outPath(rel string) string {
	return filepath.Join(e.cfg.Build.OutDir, rel)
}

func (e *env) optimizer() *assets.Optimizer {
	a := e.cfg.Assets
	return assets.New(assets.Config{
		SourceDir:    a.SourceDir,
		OutDir:       e.outPath(a.OutDir),
		PublicPrefix: a.OutDir,
		Breakpoints:  a.Breakpoints,
		Formats:      a.Formats,
		Quality:      a.Quality,
		MaxInputSize: a.MaxInputSize.Bytes(),
		Concurrency:  a.Concurrency,
	},
		assets.WithEncoders(assets.DefaultEncoders(a.Tools)),
		assets.WithLogger(e.logger),
		assets.WithCollector(e.collector),
	)
}

// extractor returns the critical CSS extractor and the inspector it
// drives. The caller must close the inspector.
func (e *env) extractor() (*critical.Extractor, *inspector.Inspector) {
	cc := e.cfg.Critical
	in := inspector.New(inspector.Config{
		Node:              e.cfg.Inspector.Node,
		ScriptPath:        e.cfg.Inspector.Executor,
		BrowserWSEndpoint: e.cfg.Inspector.BrowserWSEndpoint,
		Properties:        cc.Properties,
		ReadySignal:       cc.ReadySignal,
		Timeout:           cc.Timeout.Duration,
	}, e.logger, e.collector)
	ex := critical.NewExtractor(critical.Config{
		Viewports:  cc.Viewports,
		MaxBytes:   int(cc.MaxBytes.Bytes()),
		Stylesheet: cc.Stylesheet,
	}, in, e.logger, e.collector)
	return ex, in
}

func (e *env) enforcer() *budget.Enforcer {
	return newEnforcer(e.cfg.Budget, e.logger)
}

func newEnforcer(b config.BudgetConfig, logger *log.Logger) *budget.Enforcer {
	limits := make(map[types.BundleCategory]budget.Limit, len(b.Limits))
	for _, name := range b.SortedLimitNames() {
		l := b.Limits[name]
		limits[types.BundleCategory(name)] = budget.Limit{Raw: l.Raw.Bytes(), Gzip: l.Gzip.Bytes()}
	}
	var classifier *budget.Classifier
	if len(b.Rules) > 0 {
		rules := make([]budget.Rule, 0, len(b.Rules))
		for _, r := range b.Rules {
			rules = append(rules, budget.SubstringRule(types.BundleCategory(r.Category), r.Patterns...))
		}
		classifier = budget.NewClassifier(rules...)
	}
	return budget.NewEnforcer(budget.Config{
		Limits:     limits,
		Classifier: classifier,
		WarnRatio:  b.WarnRatio,
	}, logger)
}

// monitor builds the performance monitor. When history is enabled the
// returned archive is attached; a history backend that fails to open is
// logged and the monitor runs without it.
func (e *env) monitor(ctx context.Context) (*perf.Monitor, *history.Archive) {
	p := e.cfg.Perf
	t := p.Targets
	opts := []perf.Option{perf.WithLogger(e.logger)}

	var archive *history.Archive
	if e.cfg.History.Enabled {
		a, err := e.openHistory(ctx)
		if err != nil {
			e.logger.Warn("snapshot history unavailable", map[string]any{"error": err.Error()})
		} else {
			archive = a
			opts = append(opts, perf.WithArchive(a))
		}
	}

	criticalDir := e.outPath(e.cfg.Critical.OutDir)
	return perf.NewMonitor(perf.Config{
		Dirs: perf.Dirs{
			JS:      e.outPath(p.Dirs.JS),
			CSS:     e.outPath(p.Dirs.CSS),
			Assets:  e.outPath(p.Dirs.Assets),
			Exclude: []string{
				filepath.Join(criticalDir, critical.CSSFile),
				filepath.Join(criticalDir, critical.MinCSSFile),
			},
		},
		SampleLimit: p.AssetSampleLimit,
		Targets: perf.Targets{
			MaxBuildTime:        t.MaxBuildTime.Duration,
			MaxJSGzip:           t.MaxJSGzip.Bytes(),
			MaxCSSGzip:          t.MaxCSSGzip.Bytes(),
			MaxTotalGzip:        t.MaxTotalGzip.Bytes(),
			MaxAssetSize:        t.MaxAssetSize.Bytes(),
			MinCompressionRatio: t.MinCompressionRatio,
		},
		Tolerances: perf.Tolerances{
			BuildTime:  t.BuildTimeTolerance,
			BundleSize: t.BundleSizeTolerance,
		},
		SnapshotPath: p.SnapshotPath,
		ReportsDir:   p.ReportsDir,
	}, opts...), archive
}

func (e *env) openHistory(ctx context.Context) (*history.Archive, error) {
	h := e.cfg.History
	return history.Open(ctx, history.Config{
		Dataset:     h.Dataset,
		Backend:     h.Backend,
		Path:        h.Path,
		Region:      h.Region,
		Endpoint:    h.Endpoint,
		S3PathStyle: h.S3PathStyle,
	}, e.collector)
}

// adapter returns the configured completion adapter wrapped in its notify
// policy, or nil when none is configured.
func (e *env) adapter() (adapter.Adapter, error) {
	a := e.cfg.Adapter
	notify, err := adapter.ParseNotify(a.Notify)
	if err != nil {
		return nil, err
	}

	var out adapter.Adapter
	switch a.Type {
	case "":
		return nil, nil
	case "webhook":
		cfg := webhook.Config{
			URL:     a.URL,
			Headers: a.Headers,
			Secret:  a.Secret,
			Timeout: a.Timeout.Duration,
			Retries: webhook.DefaultRetries,
		}
		if a.Retries != nil {
			cfg.Retries = *a.Retries
		}
		wh, err := webhook.New(cfg)
		if err != nil {
			return nil, err
		}
		out = wh
	case "redis":
		cfg := redis.Config{
			URL:       a.URL,
			Channel:   a.Channel,
			LatestKey: a.LatestKey,
			LatestTTL: a.LatestTTL.Duration,
			Timeout:   a.Timeout.Duration,
			Retries:   redis.DefaultRetries,
		}
		if a.Retries != nil {
			cfg.Retries = *a.Retries
		}
		rd, err := redis.New(cfg)
		if err != nil {
			return nil, err
		}
		out = rd
	default:
		return nil, fmt.Errorf("unknown adapter type %q", a.Type)
	}
	return adapter.Filter(out, notify), nil
}

// sync flushes the logger and emits the run counters at debug level.
func (e *env) sync() {
	e.logger.Debug("run metrics", map[string]any{"metrics": e.collector.Snapshot()})
	_ = e.logger.Sync()
}
