package perf

import (
	"sync"
	"time"

	"github.com/pithecene-io/kiln/types"
)

// Timer records the duration and outcome of monitored build steps.
// Safe for concurrent use by parallel sub-steps.
type Timer struct {
	mu    sync.Mutex
	steps map[string]types.StepTiming
}

// NewTimer creates an empty Timer.
func NewTimer() *Timer {
	return &Timer{steps: make(map[string]types.StepTiming)}
}

// Measure runs fn, records its duration under name and returns fn's error.
func (t *Timer) Measure(name string, fn func() error) (time.Duration, error) {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	t.Record(name, d, err == nil)
	return d, err
}

// Record stores one step outcome, replacing any earlier one of that name.
func (t *Timer) Record(name string, d time.Duration, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps[name] = types.StepTiming{
		Duration: float64(d) / float64(time.Millisecond),
		Success:  success,
	}
}

// RecordResult stores a finished step. Skipped steps are not recorded.
func (t *Timer) RecordResult(r types.BuildStepResult) {
	if r.Skipped {
		return
	}
	t.Record(r.Name, r.Duration, r.Success)
}

// Timings returns a copy of the recorded steps.
func (t *Timer) Timings() map[string]types.StepTiming {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]types.StepTiming, len(t.steps))
	for k, v := range t.steps {
		out[k] = v
	}
	return out
}

// Total sums the durations of successful steps.
func (t *Timer) Total() time.Duration {
	snap := types.MetricsSnapshot{BuildTimes: t.Timings()}
	return time.Duration(snap.TotalBuildTime() * float64(time.Millisecond))
}
