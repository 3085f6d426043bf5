// Package inspector implements critical.PageInspector on top of the Node
// executor: one short-lived process per viewport, all connected to a
// browser shared for the lifetime of the Inspector.
package inspector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/kiln/critical"
	"github.com/pithecene-io/kiln/executor"
	"github.com/pithecene-io/kiln/ipc"
	"github.com/pithecene-io/kiln/log"
	"github.com/pithecene-io/kiln/metrics"
	"github.com/pithecene-io/kiln/types"
)

// stderrTailBytes bounds how much executor stderr is quoted in errors.
const stderrTailBytes = 2048

// processGrace is added to the page timeout for process startup and teardown.
const processGrace = 10 * time.Second

var _ critical.PageInspector = (*Inspector)(nil)

// Config configures an Inspector.
type Config struct {
	// Node is the node binary.
	Node string
	// ScriptPath is the inspector script; empty uses the embedded one.
	ScriptPath string
	// BrowserWSEndpoint connects to an existing browser. When empty, a
	// managed browser is launched on first use.
	BrowserWSEndpoint string
	// Properties is the computed-style allow-list for the DOM snapshot.
	Properties []string
	// ReadySignal is awaited on window after load; empty skips the wait.
	ReadySignal string
	// Timeout bounds page load and the ready wait.
	Timeout time.Duration
}

// Inspector captures per-viewport CSS through the executor.
type Inspector struct {
	cfg       Config
	logger    *log.Logger
	collector *metrics.Collector

	mu       sync.Mutex
	script   string
	browser  *executor.ManagedBrowser
	endpoint string
	started  bool
}

// New creates an Inspector. logger and collector may be nil.
func New(cfg Config, logger *log.Logger, collector *metrics.Collector) *Inspector {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Inspector{cfg: cfg, logger: logger.Named("inspector"), collector: collector}
}

// prepare resolves the script and starts the shared browser once.
// A failed browser launch is not fatal: each process then launches its own.
func (in *Inspector) prepare(ctx context.Context) (script, endpoint string, err error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.started {
		return in.script, in.endpoint, nil
	}

	in.script, err = executor.ResolveScript(in.cfg.ScriptPath)
	if err != nil {
		return "", "", fmt.Errorf("resolve inspector script: %w", err)
	}
	in.started = true

	if in.cfg.BrowserWSEndpoint != "" {
		in.endpoint = in.cfg.BrowserWSEndpoint
		return in.script, in.endpoint, nil
	}

	browser, err := executor.LaunchBrowser(ctx, in.cfg.Node, in.script)
	if err != nil {
		in.collector.IncExecutorLaunchFailure()
		in.logger.Warn("shared browser launch failed, falling back to per-viewport browsers", map[string]any{
			"error": err.Error(),
		})
		return in.script, "", nil
	}
	in.browser = browser
	in.endpoint = browser.WSEndpoint
	in.logger.Debug("shared browser launched", map[string]any{"ws_endpoint": browser.WSEndpoint})
	return in.script, in.endpoint, nil
}

// LoadAndCapture runs one executor process for vp and builds the fragment.
func (in *Inspector) LoadAndCapture(ctx context.Context, url string, vp types.Viewport) (types.CriticalCSSFragment, error) {
	script, endpoint, err := in.prepare(ctx)
	if err != nil {
		return types.CriticalCSSFragment{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, in.cfg.Timeout+processGrace)
	defer cancel()

	proc := executor.NewProcess(executor.Config{
		Node:       in.cfg.Node,
		ScriptPath: script,
		Input: types.InspectorInput{
			URL:               url,
			Viewport:          vp,
			Properties:        in.cfg.Properties,
			ReadySignal:       in.cfg.ReadySignal,
			TimeoutMs:         in.cfg.Timeout.Milliseconds(),
			BrowserWSEndpoint: endpoint,
		},
	})
	if err := proc.Start(ctx); err != nil {
		in.collector.IncExecutorLaunchFailure()
		return types.CriticalCSSFragment{}, err
	}
	in.collector.IncExecutorLaunchSuccess()

	logger := in.logger.With(map[string]any{"viewport": vp.Label()})
	capt, readErr := readCapture(proc.Stdout(), logger, in.collector)
	if readErr != nil {
		_ = proc.Kill()
	}

	result, err := proc.Wait()
	if err != nil {
		return types.CriticalCSSFragment{}, err
	}
	if readErr != nil {
		return types.CriticalCSSFragment{}, fmt.Errorf("read inspector frames: %w", readErr)
	}
	if capt.failure != nil {
		return types.CriticalCSSFragment{}, fmt.Errorf("inspector failed during %s: %s", capt.failure.Phase, capt.failure.Message)
	}
	if result.ExitCode != 0 {
		return types.CriticalCSSFragment{}, fmt.Errorf("inspector exited with code %d: %s",
			result.ExitCode, stderrTail(result.StderrBytes))
	}
	if capt.fragment == nil {
		return types.CriticalCSSFragment{}, errors.New("inspector exited without a fragment frame")
	}

	frag := BuildFragment(url, capt.coverage, capt.fragment.DOMCSS)
	frag.Viewport = vp.Label()
	return frag, nil
}

// Close shuts down the shared browser, if one was launched.
func (in *Inspector) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.browser == nil {
		return nil
	}
	err := in.browser.Close()
	in.browser = nil
	return err
}

// capture is the decoded frame stream of one process.
type capture struct {
	coverage []types.CoverageFrame
	fragment *types.FragmentFrame
	failure  *types.ErrorFrame
}

// readCapture consumes frames until EOF. Undecodable payloads are counted
// and skipped; fatal framing errors abort the stream.
func readCapture(r io.Reader, logger *log.Logger, collector *metrics.Collector) (capture, error) {
	var c capture
	dec := ipc.NewFrameDecoder(r)
	for {
		payload, err := dec.ReadFrame()
		if errors.Is(err, io.EOF) {
			return c, nil
		}
		if err != nil {
			return c, err
		}

		frame, err := ipc.DecodeFrame(payload)
		if err != nil {
			collector.IncIPCDecodeErrors()
			logger.Warn("skipping undecodable frame", map[string]any{"error": err.Error()})
			continue
		}

		switch f := frame.(type) {
		case *types.LogFrame:
			forwardLog(logger, f)
		case *types.CoverageFrame:
			c.coverage = append(c.coverage, *f)
		case *types.FragmentFrame:
			c.fragment = f
		case *types.ErrorFrame:
			c.failure = f
		}
	}
}

func forwardLog(logger *log.Logger, f *types.LogFrame) {
	switch f.Level {
	case "debug":
		logger.Debug(f.Message, f.Fields)
	case "warn":
		logger.Warn(f.Message, f.Fields)
	case "error":
		logger.Error(f.Message, f.Fields)
	default:
		logger.Info(f.Message, f.Fields)
	}
}

func stderrTail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > stderrTailBytes {
		s = "..." + s[len(s)-stderrTailBytes:]
	}
	if s == "" {
		return "(no stderr)"
	}
	return s
}
