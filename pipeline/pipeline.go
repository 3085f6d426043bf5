// Package pipeline sequences the build.
//
// Steps run in the order given: clean, assets, css, js, critical, html and
// finally the performance monitor. The order is never changed; parallel
// mode only runs a step's own parts concurrently. A failed critical step
// aborts the run, a failed non-critical step is logged and the run
// continues. The monitor runs only when every earlier step ran, so a
// partial snapshot is never persisted, and it sees the timings of the
// monitored steps only.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/kiln/adapter"
	"github.com/pithecene-io/kiln/log"
	"github.com/pithecene-io/kiln/metrics"
	"github.com/pithecene-io/kiln/perf"
	"github.com/pithecene-io/kiln/types"
)

// StepPerf is the name of the monitor step.
const StepPerf = "perf"

// ErrCriticalStep is returned when a critical step failed.
var ErrCriticalStep = errors.New("critical step failed")

// MonitorFunc runs the performance monitor over the recorded step timings.
// A nil error with a gated result still fails the step via Result.Err.
type MonitorFunc func(ctx context.Context, runID string, timings map[string]types.StepTiming) (*perf.Result, error)

// Config is the immutable orchestrator configuration.
type Config struct {
	// RunID identifies the run; empty generates one.
	RunID string
	// Mode is "dev" or "prod"; it is reported, not interpreted.
	Mode string
	// Serial runs step parts one after another.
	Serial bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithCollector sets the metrics collector.
func WithCollector(c *metrics.Collector) Option {
	return func(p *Pipeline) { p.collector = c }
}

// WithMonitor sets the final performance monitor step.
func WithMonitor(fn MonitorFunc) Option {
	return func(p *Pipeline) { p.monitor = fn }
}

// WithAdapter publishes build_completed through a.
func WithAdapter(a adapter.Adapter) Option {
	return func(p *Pipeline) { p.adapter = a }
}

// WithStatus receives every step result as soon as the step completes.
func WithStatus(fn func(types.BuildStepResult)) Option {
	return func(p *Pipeline) { p.status = fn }
}

// Pipeline runs a fixed sequence of steps.
type Pipeline struct {
	cfg       Config
	steps     []Step
	logger    *log.Logger
	collector *metrics.Collector
	monitor   MonitorFunc
	adapter   adapter.Adapter
	status    func(types.BuildStepResult)
	now       func() time.Time
}

// New creates a pipeline over steps.
func New(cfg Config, steps []Step, opts ...Option) *Pipeline {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	p := &Pipeline{
		cfg:   cfg,
		steps: steps,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.NewNop()
	}
	return p
}

// RunID returns the run identifier.
func (p *Pipeline) RunID() string { return p.cfg.RunID }

// Result is the outcome of one pipeline run.
type Result struct {
	RunID    string
	Mode     string
	Steps    []types.BuildStepResult
	Duration time.Duration
	// FailedStep is the critical step that aborted the run.
	FailedStep string
	// NotRun names the steps that were never reached after an abort.
	NotRun []string
	// Perf is the monitor result; nil when the monitor did not run.
	Perf *perf.Result
	// Err is the first fatal error.
	Err error
}

// Success reports whether the run finished without a fatal error.
func (r *Result) Success() bool { return r.Err == nil }

// Failed counts failed steps, critical or not.
func (r *Result) Failed() int {
	n := 0
	for _, s := range r.Steps {
		if !s.Success {
			n++
		}
	}
	return n
}

// Run executes every step in order. The returned error is Result.Err.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := p.now()
	timer := perf.NewTimer()
	res := &Result{RunID: p.cfg.RunID, Mode: p.cfg.Mode}

	p.logger.Info("starting build", map[string]any{
		"steps":  len(p.steps),
		"serial": p.cfg.Serial,
	})

	for i, step := range p.steps {
		sr := p.runStep(ctx, step)
		if step.Monitored {
			timer.RecordResult(sr)
		}
		res.Steps = append(res.Steps, sr)

		if sr.Success {
			continue
		}
		if step.Critical {
			res.FailedStep = step.Name
			res.Err = fmt.Errorf("%w: %s: %s", ErrCriticalStep, step.Name, sr.Error)
			for _, rest := range p.steps[i+1:] {
				res.NotRun = append(res.NotRun, rest.Name)
			}
			if p.monitor != nil {
				res.NotRun = append(res.NotRun, StepPerf)
			}
			break
		}
		p.logger.Warn("non-critical step failed", map[string]any{
			"step":  step.Name,
			"error": sr.Error,
		})
	}

	if res.Err == nil && p.monitor != nil {
		sr, perfResult, err := p.runMonitor(ctx, timer.Timings())
		res.Steps = append(res.Steps, sr)
		res.Perf = perfResult
		if err != nil {
			res.FailedStep = StepPerf
			res.Err = err
		}
	}

	res.Duration = p.now().Sub(start)
	p.publish(ctx, res)

	fields := map[string]any{
		"duration_ms": res.Duration.Milliseconds(),
		"steps":       len(res.Steps),
		"failed":      res.Failed(),
	}
	if res.Err != nil {
		fields["error"] = res.Err.Error()
		p.logger.Error("build failed", fields)
	} else {
		p.logger.Info("build completed", fields)
	}
	return res, res.Err
}

func (p *Pipeline) runStep(ctx context.Context, step Step) types.BuildStepResult {
	if step.Skip {
		sr := skipped(step)
		p.collector.RecordStep(true, true)
		p.report(sr)
		return sr
	}

	p.collector.IncStepStarted()
	p.logger.Debug("step started", map[string]any{
		"step":  step.Name,
		"parts": len(step.Parts),
	})
	sr := step.run(ctx, !p.cfg.Serial)
	p.collector.RecordStep(sr.Success, false)
	p.report(sr)
	return sr
}

func (p *Pipeline) runMonitor(ctx context.Context, timings map[string]types.StepTiming) (types.BuildStepResult, *perf.Result, error) {
	p.collector.IncStepStarted()
	start := time.Now()
	result, err := p.monitor(ctx, p.cfg.RunID, timings)
	if err == nil && result != nil {
		err = result.Err()
	}

	sr := types.BuildStepResult{
		Name:     StepPerf,
		Duration: time.Since(start),
		Success:  err == nil,
		Critical: true,
	}
	if result != nil {
		sr.Output = monitorOutput(result)
	}
	if err != nil {
		sr.Error = err.Error()
	}
	p.collector.RecordStep(sr.Success, false)
	p.report(sr)
	return sr, result, err
}

func monitorOutput(r *perf.Result) string {
	passed := 0
	for _, t := range r.Summary {
		if t.Passed {
			passed++
		}
	}
	return fmt.Sprintf("%d/%d targets passed, %d regression(s), %d improvement(s)",
		passed, len(r.Summary), len(r.Comparison.Regressions), len(r.Comparison.Improvements))
}

func (p *Pipeline) report(sr types.BuildStepResult) {
	fields := map[string]any{
		"step":        sr.Name,
		"success":     sr.Success,
		"duration_ms": sr.Duration.Milliseconds(),
	}
	if sr.Skipped {
		fields["skipped"] = true
	}
	if sr.Error != "" {
		fields["error"] = sr.Error
	}
	p.logger.Debug("step completed", fields)
	if p.status != nil {
		p.status(sr)
	}
}

// publish sends build_completed. Publish failures are logged and never
// change the run outcome.
func (p *Pipeline) publish(ctx context.Context, res *Result) {
	if p.adapter == nil {
		return
	}
	event := p.event(res)
	if err := p.adapter.Publish(ctx, event); err != nil {
		p.collector.RecordPublish(false)
		p.logger.Warn("build_completed publish failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	p.collector.RecordPublish(true)
}

func (p *Pipeline) event(res *Result) *adapter.BuildCompletedEvent {
	event := &adapter.BuildCompletedEvent{
		EventType:   adapter.EventTypeBuildCompleted,
		Version:     types.Version,
		RunID:       res.RunID,
		Mode:        res.Mode,
		Outcome:     adapter.OutcomeSuccess,
		FailedStep:  res.FailedStep,
		Timestamp:   p.now().UTC().Format(time.RFC3339),
		DurationMs:  res.Duration.Milliseconds(),
		Steps:       len(res.Steps),
		StepsFailed: res.Failed(),
	}
	if res.Err != nil {
		event.Outcome = adapter.OutcomeFailed
	}
	if p.collector != nil {
		event.AssetsProcessed = p.collector.Snapshot().AssetsProcessed
	}
	if res.Perf != nil && res.Perf.Snapshot != nil {
		event.TotalGzip = res.Perf.Snapshot.TotalGzip()
		for _, c := range res.Perf.Comparison.Regressions {
			event.Regressions = append(event.Regressions, c.Message)
		}
	}
	return event
}
