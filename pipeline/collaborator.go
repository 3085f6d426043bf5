package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pithecene-io/kiln/types"
)

// BuildCollaborator is one unit of build work. The orchestrator depends
// only on this contract, not on how the work is performed.
type BuildCollaborator interface {
	Run(ctx context.Context) types.BuildStepResult
}

// FuncCollaborator runs an in-process function. The returned string is
// recorded as the step output.
type FuncCollaborator struct {
	Name string
	Fn   func(ctx context.Context) (string, error)
}

// Run implements BuildCollaborator.
func (f FuncCollaborator) Run(ctx context.Context) types.BuildStepResult {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return types.StepFailed(f.Name, time.Since(start), err)
	}
	out, err := f.Fn(ctx)
	if err != nil {
		res := types.StepFailed(f.Name, time.Since(start), err)
		res.Output = out
		return res
	}
	return types.StepSucceeded(f.Name, time.Since(start), out)
}

// CommandCollaborator runs an external command with combined stdout and
// stderr captured as the step output.
type CommandCollaborator struct {
	Name string
	// Args is the argv; Args[0] is resolved through PATH.
	Args []string
	// Dir is the working directory; empty uses the current one.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
}

// maxCommandOutput caps the captured output kept on the result.
const maxCommandOutput = 64 << 10

// Run implements BuildCollaborator.
func (c CommandCollaborator) Run(ctx context.Context) types.BuildStepResult {
	start := time.Now()
	if len(c.Args) == 0 {
		return types.StepFailed(c.Name, 0, errors.New("empty command"))
	}

	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := tail(out.String(), maxCommandOutput)
	if err != nil {
		res := types.StepFailed(c.Name, time.Since(start), fmt.Errorf("%s: %w", strings.Join(c.Args, " "), err))
		res.Output = output
		return res
	}
	return types.StepSucceeded(c.Name, time.Since(start), output)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
