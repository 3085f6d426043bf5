package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
)

// Config configures one inspector process.
type Config struct {
	// Node is the node binary.
	Node string
	// ScriptPath is the inspector script.
	ScriptPath string
	// Args are extra arguments after the script path.
	Args []string
	// Input is JSON-encoded onto stdin, which is then closed.
	Input any
}

// Result is the outcome of a finished process.
type Result struct {
	ExitCode    int
	StderrBytes []byte
}

// Process manages one inspector process: JSON input on stdin, IPC frames
// on stdout, diagnostics on stderr.
type Process struct {
	config Config
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// NewProcess creates a process manager.
func NewProcess(config Config) *Process {
	return &Process{config: config}
}

// Start starts the process and writes its input.
func (p *Process) Start(ctx context.Context) error {
	args := append([]string{p.config.ScriptPath}, p.config.Args...)
	p.cmd = exec.CommandContext(ctx, p.config.Node, args...)

	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	p.stdout, err = p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	p.stderr, err = p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start inspector: %w", err)
	}

	if err := json.NewEncoder(stdin).Encode(p.config.Input); err != nil {
		_ = p.Kill()
		return fmt.Errorf("failed to write input: %w", err)
	}
	if err := stdin.Close(); err != nil {
		_ = p.Kill()
		return fmt.Errorf("failed to close stdin: %w", err)
	}
	return nil
}

// Stdout returns the IPC frame stream.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// Wait drains stderr, waits for exit and returns the result.
// Stdout must be fully consumed first.
func (p *Process) Wait() (*Result, error) {
	if p.cmd == nil {
		return nil, errors.New("inspector not started")
	}

	stderrBytes, _ := io.ReadAll(p.stderr)
	err := p.cmd.Wait()

	result := &Result{StderrBytes: stderrBytes}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("inspector wait failed: %w", err)
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			result.ExitCode = status.ExitStatus()
		} else {
			result.ExitCode = -1
		}
	}
	return result, nil
}

// Kill terminates the process.
func (p *Process) Kill() error {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}
