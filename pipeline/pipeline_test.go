package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/kiln/adapter"
	"github.com/pithecene-io/kiln/metrics"
	"github.com/pithecene-io/kiln/perf"
	"github.com/pithecene-io/kiln/types"
)

// recorder records the order collaborators ran in.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

type stubCollaborator struct {
	name     string
	duration time.Duration
	fail     bool
	rec      *recorder
}

func (s stubCollaborator) Run(context.Context) types.BuildStepResult {
	if s.rec != nil {
		s.rec.add(s.name)
	}
	if s.fail {
		return types.StepFailed(s.name, s.duration, errors.New(s.name+" broke"))
	}
	return types.StepSucceeded(s.name, s.duration, s.name+" done")
}

func step(name string, critical bool, rec *recorder, fail bool) Step {
	return Step{
		Name:     name,
		Critical: critical,
		Parts:    []BuildCollaborator{stubCollaborator{name: name, fail: fail, rec: rec}},
	}
}

type fakeAdapter struct {
	events []*adapter.BuildCompletedEvent
	err    error
}

func (f *fakeAdapter) Publish(_ context.Context, e *adapter.BuildCompletedEvent) error {
	f.events = append(f.events, e)
	return f.err
}

func (f *fakeAdapter) Close() error { return nil }

func TestRun_OrderAndSuccess(t *testing.T) {
	rec := &recorder{}
	steps := []Step{
		step("clean", true, rec, false),
		step("assets", false, rec, false),
		step("css", true, rec, false),
		step("js", true, rec, false),
		step("critical", false, rec, false),
		step("html", false, rec, false),
	}
	var statuses []string
	p := New(Config{Mode: "prod"}, steps, WithStatus(func(r types.BuildStepResult) {
		statuses = append(statuses, r.Name)
	}))

	res, err := p.Run(t.Context())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := "clean,assets,css,js,critical,html"
	if got := strings.Join(rec.names(), ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
	if got := strings.Join(statuses, ","); got != want {
		t.Errorf("status order = %s, want %s", got, want)
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
	if !res.Success() || res.Failed() != 0 {
		t.Errorf("Success() = %v, Failed() = %d", res.Success(), res.Failed())
	}
}

func TestRun_CriticalFailureAborts(t *testing.T) {
	rec := &recorder{}
	monitorCalled := false
	p := New(Config{}, []Step{
		step("clean", true, rec, false),
		step("css", true, rec, true),
		step("js", true, rec, false),
	}, WithMonitor(func(context.Context, string, map[string]types.StepTiming) (*perf.Result, error) {
		monitorCalled = true
		return &perf.Result{}, nil
	}))

	res, err := p.Run(t.Context())
	if !errors.Is(err, ErrCriticalStep) {
		t.Fatalf("Run() error = %v, want ErrCriticalStep", err)
	}
	if res.FailedStep != "css" {
		t.Errorf("FailedStep = %q, want css", res.FailedStep)
	}
	if got := strings.Join(rec.names(), ","); got != "clean,css" {
		t.Errorf("order = %s, want clean,css", got)
	}
	if got := strings.Join(res.NotRun, ","); got != "js,perf" {
		t.Errorf("NotRun = %s, want js,perf", got)
	}
	if monitorCalled {
		t.Error("monitor ran after a critical failure")
	}

	var buf bytes.Buffer
	if err := WriteSummary(&buf, res); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"clean", "ok", "css", "failed", "css broke", "js", "not run", "build failed at css"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRun_NonCriticalFailureContinues(t *testing.T) {
	rec := &recorder{}
	collector := metrics.NewCollector("prod", "fs", "run-1")
	p := New(Config{}, []Step{
		step("critical", false, rec, true),
		step("html", false, rec, false),
		{Name: "assets", Skip: true},
	}, WithCollector(collector))

	res, err := p.Run(t.Context())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", res.Failed())
	}
	if !res.Steps[2].Skipped {
		t.Error("assets not recorded as skipped")
	}
	snap := collector.Snapshot()
	if snap.StepsStarted != 2 || snap.StepsSucceeded != 1 || snap.StepsFailed != 1 || snap.StepsSkipped != 1 {
		t.Errorf("collector = %+v", snap)
	}
}

func TestStep_ParallelAndSerialDurations(t *testing.T) {
	parts := []BuildCollaborator{
		stubCollaborator{name: "images", duration: 300 * time.Millisecond},
		stubCollaborator{name: "fonts", duration: 100 * time.Millisecond},
		stubCollaborator{name: "svg", duration: 200 * time.Millisecond},
	}
	s := Step{Name: "assets", Parts: parts}

	par := s.run(t.Context(), true)
	if par.Duration != 300*time.Millisecond {
		t.Errorf("parallel Duration = %v, want 300ms", par.Duration)
	}
	ser := s.run(t.Context(), false)
	if ser.Duration != 600*time.Millisecond {
		t.Errorf("serial Duration = %v, want 600ms", ser.Duration)
	}
	if len(par.SubSteps) != 3 || par.SubSteps[0].Name != "images" {
		t.Errorf("SubSteps = %+v, want images,fonts,svg", par.SubSteps)
	}
	if !strings.Contains(par.Output, "fonts: fonts done") {
		t.Errorf("Output = %q", par.Output)
	}
}

func TestStep_Finish(t *testing.T) {
	finished := 0
	finish := func(context.Context) (string, error) {
		finished++
		return "manifest written", nil
	}

	ok := Step{
		Name:   "assets",
		Parts:  []BuildCollaborator{stubCollaborator{name: "images"}, stubCollaborator{name: "svg"}},
		Finish: finish,
	}
	res := ok.run(t.Context(), true)
	if !res.Success || finished != 1 {
		t.Fatalf("Success = %v, finished = %d", res.Success, finished)
	}
	if !strings.HasSuffix(res.Output, "manifest written") {
		t.Errorf("Output = %q", res.Output)
	}

	broken := Step{
		Name:   "assets",
		Parts:  []BuildCollaborator{stubCollaborator{name: "images", fail: true}, stubCollaborator{name: "svg"}},
		Finish: finish,
	}
	res = broken.run(t.Context(), true)
	if res.Success {
		t.Error("Success = true with a failed part")
	}
	if finished != 1 {
		t.Errorf("Finish ran after a failed part")
	}
	if !strings.Contains(res.Error, "images: images broke") {
		t.Errorf("Error = %q", res.Error)
	}

	failingFinish := Step{
		Name:   "assets",
		Parts:  []BuildCollaborator{stubCollaborator{name: "images"}},
		Finish: func(context.Context) (string, error) { return "", errors.New("disk full") },
	}
	if res := failingFinish.run(t.Context(), false); res.Success || res.Error != "disk full" {
		t.Errorf("finish failure = %+v", res)
	}
}

func TestRun_MonitorGateAndPublish(t *testing.T) {
	var gotTimings map[string]types.StepTiming
	monitor := func(_ context.Context, runID string, timings map[string]types.StepTiming) (*perf.Result, error) {
		gotTimings = timings
		return &perf.Result{
			Snapshot: &types.MetricsSnapshot{RunID: runID},
			Comparison: perf.Comparison{
				Regressions: []perf.Change{{Metric: "build_time", Message: "build time regressed: 10.00s -> 12.00s (+20.0%)"}},
			},
		}, nil
	}
	pub := &fakeAdapter{}
	collector := metrics.NewCollector("prod", "fs", "run-7")

	p := New(Config{RunID: "run-7", Mode: "prod"}, []Step{
		{Name: "css", Critical: true, Monitored: true, Parts: []BuildCollaborator{stubCollaborator{name: "css", duration: time.Second}}},
		{Name: "critical", Parts: []BuildCollaborator{stubCollaborator{name: "critical", fail: true}}},
	}, WithMonitor(monitor), WithAdapter(pub), WithCollector(collector))

	res, err := p.Run(t.Context())
	if !errors.Is(err, perf.ErrGateFailed) {
		t.Fatalf("Run() error = %v, want ErrGateFailed", err)
	}
	if res.FailedStep != StepPerf {
		t.Errorf("FailedStep = %q, want perf", res.FailedStep)
	}
	if got := gotTimings["css"]; got.Duration != 1000 || !got.Success {
		t.Errorf("css timing = %+v, want 1000ms success", got)
	}
	if _, ok := gotTimings["critical"]; ok {
		t.Error("unmonitored critical step was timed")
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	e := pub.events[0]
	if e.EventType != adapter.EventTypeBuildCompleted || e.Outcome != adapter.OutcomeFailed || e.RunID != "run-7" {
		t.Errorf("event = %+v", e)
	}
	if e.FailedStep != StepPerf || e.StepsFailed != 2 || len(e.Regressions) != 1 {
		t.Errorf("event = %+v", e)
	}
	if snap := collector.Snapshot(); snap.PublishSuccess != 1 {
		t.Errorf("PublishSuccess = %d, want 1", snap.PublishSuccess)
	}
}

// Only monitored steps count toward the build time the monitor gates on;
// a slow critical CSS extraction or html step must not move it.
func TestRun_MonitoredStepsOnly(t *testing.T) {
	var snap types.MetricsSnapshot
	monitor := func(_ context.Context, _ string, timings map[string]types.StepTiming) (*perf.Result, error) {
		snap.BuildTimes = timings
		return &perf.Result{Snapshot: &snap}, nil
	}
	timed := func(name string, d time.Duration, monitored bool) Step {
		return Step{
			Name:      name,
			Monitored: monitored,
			Parts:     []BuildCollaborator{stubCollaborator{name: name, duration: d}},
		}
	}

	p := New(Config{}, []Step{
		timed("clean", 20*time.Millisecond, false),
		timed("assets", 3*time.Millisecond, true),
		timed("css", time.Millisecond, true),
		timed("js", 2*time.Millisecond, true),
		timed("critical", 50*time.Second, false),
		timed("html", 30*time.Millisecond, false),
	}, WithMonitor(monitor))

	if _, err := p.Run(t.Context()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := len(snap.BuildTimes); got != 3 {
		t.Errorf("timed %d steps, want 3: %v", got, snap.BuildTimes)
	}
	for _, name := range []string{"clean", "critical", "html"} {
		if _, ok := snap.BuildTimes[name]; ok {
			t.Errorf("step %q was timed", name)
		}
	}
	if got := snap.TotalBuildTime(); got != 6 {
		t.Errorf("TotalBuildTime() = %v, want 6", got)
	}
}

func TestRun_PublishFailureDoesNotFailBuild(t *testing.T) {
	pub := &fakeAdapter{err: errors.New("unreachable")}
	collector := metrics.NewCollector("prod", "fs", "run-1")
	p := New(Config{}, []Step{step("clean", true, nil, false)}, WithAdapter(pub), WithCollector(collector))

	if _, err := p.Run(t.Context()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pub.events[0].Outcome != adapter.OutcomeSuccess {
		t.Errorf("Outcome = %q, want success", pub.events[0].Outcome)
	}
	if snap := collector.Snapshot(); snap.PublishFailure != 1 {
		t.Errorf("PublishFailure = %d, want 1", snap.PublishFailure)
	}
}

func TestFuncCollaborator(t *testing.T) {
	ok := FuncCollaborator{Name: "f", Fn: func(context.Context) (string, error) { return "fine", nil }}
	if res := ok.Run(t.Context()); !res.Success || res.Output != "fine" {
		t.Errorf("Run() = %+v", res)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if res := ok.Run(ctx); res.Success {
		t.Error("Run() succeeded on a cancelled context")
	}
}

func TestCommandCollaborator(t *testing.T) {
	ok := CommandCollaborator{Name: "css", Args: []string{"/bin/sh", "-c", "echo built; echo note >&2"}}
	res := ok.Run(t.Context())
	if !res.Success {
		t.Fatalf("Run() error = %s", res.Error)
	}
	if !strings.Contains(res.Output, "built") || !strings.Contains(res.Output, "note") {
		t.Errorf("Output = %q, want stdout and stderr", res.Output)
	}

	bad := CommandCollaborator{Name: "js", Args: []string{"/bin/sh", "-c", "echo oops; exit 2"}}
	res = bad.Run(t.Context())
	if res.Success {
		t.Fatal("Run() succeeded on exit 2")
	}
	if res.Output != "oops" {
		t.Errorf("Output = %q, want oops", res.Output)
	}

	if res := (CommandCollaborator{Name: "x"}).Run(t.Context()); res.Success {
		t.Error("empty command succeeded")
	}
}
