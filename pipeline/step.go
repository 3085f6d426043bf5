package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/kiln/types"
)

// Step is one orchestrated stage. A step with several parts runs them
// concurrently in parallel mode and in order in serial mode; either way
// Finish runs only after every part returned.
type Step struct {
	Name string
	// Critical steps abort the run on failure.
	Critical bool
	// Monitored steps report their timing to the performance monitor.
	Monitored bool
	// Skip records the step as skipped without running it.
	Skip  bool
	Parts []BuildCollaborator
	// Finish runs once after all parts succeeded, for work that depends
	// on every part (e.g. regenerating a merged manifest).
	Finish func(ctx context.Context) (string, error)
}

// run executes the step's parts and aggregates their results. In parallel
// mode the step duration is the longest part; in serial mode it is the sum.
func (s Step) run(ctx context.Context, parallel bool) types.BuildStepResult {
	if len(s.Parts) == 1 && s.Finish == nil {
		res := s.Parts[0].Run(ctx)
		res.Name = s.Name
		res.Critical = s.Critical
		return res
	}

	subs := make([]types.BuildStepResult, len(s.Parts))
	if parallel && len(s.Parts) > 1 {
		var wg sync.WaitGroup
		for i, part := range s.Parts {
			wg.Add(1)
			go func(i int, part BuildCollaborator) {
				defer wg.Done()
				subs[i] = part.Run(ctx)
			}(i, part)
		}
		wg.Wait()
	} else {
		for i, part := range s.Parts {
			subs[i] = part.Run(ctx)
		}
	}

	res := types.BuildStepResult{
		Name:     s.Name,
		Success:  true,
		Critical: s.Critical,
		SubSteps: subs,
	}
	var (
		outputs []string
		errs    []string
	)
	for _, sub := range subs {
		if parallel {
			res.Duration = max(res.Duration, sub.Duration)
		} else {
			res.Duration += sub.Duration
		}
		if sub.Output != "" {
			outputs = append(outputs, sub.Name+": "+sub.Output)
		}
		if !sub.Success {
			res.Success = false
			errs = append(errs, sub.Name+": "+sub.Error)
		}
	}

	if res.Success && s.Finish != nil {
		start := time.Now()
		out, err := s.Finish(ctx)
		res.Duration += time.Since(start)
		if out != "" {
			outputs = append(outputs, out)
		}
		if err != nil {
			res.Success = false
			errs = append(errs, err.Error())
		}
	}

	res.Output = strings.Join(outputs, "; ")
	res.Error = strings.Join(errs, "; ")
	return res
}

func skipped(s Step) types.BuildStepResult {
	return types.BuildStepResult{
		Name:     s.Name,
		Success:  true,
		Critical: s.Critical,
		Skipped:  true,
	}
}
