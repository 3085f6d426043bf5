package pipeline

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pithecene-io/kiln/types"
)

// Step states shown in the summary.
const (
	StateOK      = "ok"
	StateFailed  = "failed"
	StateSkipped = "skipped"
	StateNotRun  = "not run"
)

// StepState returns the summary state of a step result.
func StepState(r types.BuildStepResult) string {
	switch {
	case r.Skipped:
		return StateSkipped
	case r.Success:
		return StateOK
	default:
		return StateFailed
	}
}

// WriteSummary prints one row per step, including steps never reached
// after an abort, followed by the overall outcome.
func WriteSummary(w io.Writer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tDURATION\tCRITICAL\tDETAIL")
	for _, s := range r.Steps {
		detail := s.Output
		if !s.Success {
			detail = s.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
			s.Name, StepState(s), formatDuration(s.Duration), s.Critical, firstLine(detail))
	}
	for _, name := range r.NotRun {
		fmt.Fprintf(tw, "%s\t%s\t-\t-\t\n", name, StateNotRun)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	outcome := "succeeded"
	if r.Err != nil {
		outcome = "failed at " + r.FailedStep
	}
	_, err := fmt.Fprintf(w, "build %s in %s (%d step(s), %d failed)\n",
		outcome, formatDuration(r.Duration), len(r.Steps), r.Failed())
	return err
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func firstLine(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	const limit = 100
	if len(s) > limit {
		return s[:limit-3] + "..."
	}
	return s
}
