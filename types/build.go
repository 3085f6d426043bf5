package types

import "time"

// BuildStepResult is produced once per orchestrated step. Immutable.
type BuildStepResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"-"`
	Success  bool          `json:"success"`
	// Output is captured stdout/stderr of the collaborator, if any.
	Output string `json:"output,omitempty"`
	// Error is the failure message; empty on success.
	Error string `json:"error,omitempty"`
	// Critical steps abort the pipeline on failure.
	Critical bool `json:"critical"`
	// Skipped steps were not run (e.g. --skip-assets).
	Skipped bool `json:"skipped,omitempty"`
	// SubSteps holds the results of concurrently run sub-steps.
	SubSteps []BuildStepResult `json:"sub_steps,omitempty"`
}

// DurationMs returns the duration in fractional milliseconds.
func (r BuildStepResult) DurationMs() float64 {
	return float64(r.Duration) / float64(time.Millisecond)
}

// StepFailed builds a failed result from an error.
func StepFailed(name string, d time.Duration, err error) BuildStepResult {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return BuildStepResult{Name: name, Duration: d, Success: false, Error: msg}
}

// StepSucceeded builds a successful result.
func StepSucceeded(name string, d time.Duration, output string) BuildStepResult {
	return BuildStepResult{Name: name, Duration: d, Success: true, Output: output}
}
