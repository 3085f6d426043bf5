package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// LaunchTimeout bounds how long LaunchBrowser waits for the WS endpoint.
const LaunchTimeout = 30 * time.Second

// ManagedBrowser is a browser shared by every viewport capture of a run.
type ManagedBrowser struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	WSEndpoint string
}

// LaunchBrowser starts a shared browser via the script's --launch-browser
// mode. The WS endpoint is the first stdout line. The browser stays alive
// until Close; closing stdin tells the script to shut it down.
func LaunchBrowser(ctx context.Context, node, scriptPath string) (*ManagedBrowser, error) {
	cmd := exec.CommandContext(ctx, node, scriptPath, "--launch-browser")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	wsURLCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		if scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if strings.HasPrefix(line, "ws://") || strings.HasPrefix(line, "wss://") {
				wsURLCh <- line
				return
			}
			errCh <- fmt.Errorf("unexpected browser output: %q", line)
			return
		}
		if err := scanner.Err(); err != nil {
			errCh <- fmt.Errorf("reading browser stdout: %w", err)
			return
		}
		errCh <- errors.New("browser exited without printing WS endpoint")
	}()

	abort := func(err error) (*ManagedBrowser, error) {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}

	select {
	case wsURL := <-wsURLCh:
		return &ManagedBrowser{cmd: cmd, stdin: stdin, WSEndpoint: wsURL}, nil
	case err := <-errCh:
		return abort(err)
	case <-time.After(LaunchTimeout):
		return abort(errors.New("timed out waiting for browser WS endpoint"))
	case <-ctx.Done():
		return abort(ctx.Err())
	}
}

// Close shuts the browser down, force-killing it after five seconds.
func (mb *ManagedBrowser) Close() error {
	if mb == nil || mb.cmd == nil || mb.cmd.Process == nil {
		return nil
	}
	_ = mb.stdin.Close()

	done := make(chan error, 1)
	go func() {
		done <- mb.cmd.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = mb.cmd.Process.Kill()
		<-done
	}
	return nil
}
