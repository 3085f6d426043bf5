// Package critical extracts above-the-fold CSS by sampling a built page
// across viewports, merging the per-viewport fragments and producing a
// minified bundle plus an inline delivery template.
package critical

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pithecene-io/kiln/iox"
	"github.com/pithecene-io/kiln/log"
	"github.com/pithecene-io/kiln/metrics"
	"github.com/pithecene-io/kiln/types"
)

// ErrNoCriticalCSS is returned when every viewport failed or the merged
// bundle is empty. It indicates an unreachable page, not an empty one.
var ErrNoCriticalCSS = errors.New("no critical CSS extracted")

// Output file names written by Write.
const (
	CSSFile    = "critical.css"
	MinCSSFile = "critical.min.css"
	InlineFile = "critical-inline.html"
)

// PageInspector loads a page at one viewport and returns the CSS that
// applied to it. Implementations must be safe for concurrent calls with
// different viewports.
type PageInspector interface {
	LoadAndCapture(ctx context.Context, url string, vp types.Viewport) (types.CriticalCSSFragment, error)
}

// Config is the immutable extractor configuration.
type Config struct {
	Viewports []types.Viewport
	// MaxBytes is the advisory ceiling for the minified bundle.
	MaxBytes int
	// Stylesheet is the href of the full stylesheet loaded asynchronously.
	Stylesheet string
}

// Extractor runs critical CSS extraction.
type Extractor struct {
	cfg       Config
	inspector PageInspector
	logger    *log.Logger
	collector *metrics.Collector
}

// NewExtractor creates an Extractor. logger and collector may be nil.
func NewExtractor(cfg Config, inspector PageInspector, logger *log.Logger, collector *metrics.Collector) *Extractor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Extractor{cfg: cfg, inspector: inspector, logger: logger, collector: collector}
}

// Extract samples url at every viewport concurrently and merges the results.
// A failing viewport is recorded on its fragment and excluded from the merge.
// When nothing was extracted the bundle is still returned, with
// ErrNoCriticalCSS.
func (e *Extractor) Extract(ctx context.Context, url string) (*types.CriticalCSSBundle, error) {
	fragments := make([]types.CriticalCSSFragment, len(e.cfg.Viewports))

	var wg sync.WaitGroup
	for i, vp := range e.cfg.Viewports {
		wg.Add(1)
		go func(i int, vp types.Viewport) {
			defer wg.Done()
			fragments[i] = e.capture(ctx, url, vp)
		}(i, vp)
	}
	wg.Wait()

	merged, rules := Merge(fragments)
	minified := Minify(merged)

	bundle := &types.CriticalCSSBundle{
		CSS:       merged,
		Minified:  minified,
		Rules:     rules,
		Size:      len(merged),
		MinSize:   len(minified),
		Fragments: fragments,
	}

	if minified == "" {
		failed := 0
		for _, f := range fragments {
			if !f.OK() {
				failed++
			}
		}
		return bundle, fmt.Errorf("%w: %d of %d viewports failed for %s",
			ErrNoCriticalCSS, failed, len(fragments), url)
	}

	if e.cfg.MaxBytes > 0 && bundle.MinSize > e.cfg.MaxBytes {
		bundle.OverBudget = true
		e.logger.Warn("critical CSS exceeds size ceiling", map[string]any{
			"size":  bundle.MinSize,
			"limit": e.cfg.MaxBytes,
		})
	}

	e.logger.Info("critical CSS extracted", map[string]any{
		"url":      url,
		"rules":    rules,
		"size":     bundle.Size,
		"min_size": bundle.MinSize,
	})
	return bundle, nil
}

func (e *Extractor) capture(ctx context.Context, url string, vp types.Viewport) types.CriticalCSSFragment {
	start := time.Now()
	frag, err := e.inspector.LoadAndCapture(ctx, url, vp)
	frag.Viewport = vp.Label()
	if err != nil {
		frag = types.CriticalCSSFragment{Viewport: vp.Label(), Error: err.Error()}
		e.logger.Warn("viewport extraction failed", map[string]any{
			"viewport": vp.Label(),
			"error":    err.Error(),
		})
	}
	frag.Size = len(frag.CSS)
	e.collector.RecordViewport(frag.OK())
	e.logger.Debug("viewport captured", map[string]any{
		"viewport":    vp.Label(),
		"size":        frag.Size,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return frag
}

// Write stores the readable bundle, the minified bundle and the inline
// delivery fragment in dir.
func (e *Extractor) Write(dir string, bundle *types.CriticalCSSBundle) error {
	if err := iox.WriteFileAtomic(filepath.Join(dir, CSSFile), []byte(bundle.CSS), 0o644); err != nil {
		return err
	}
	if err := iox.WriteFileAtomic(filepath.Join(dir, MinCSSFile), []byte(bundle.Minified), 0o644); err != nil {
		return err
	}
	inline, err := InlineHTML(bundle.Minified, e.cfg.Stylesheet)
	if err != nil {
		return fmt.Errorf("render inline template: %w", err)
	}
	return iox.WriteFileAtomic(filepath.Join(dir, InlineFile), []byte(inline), 0o644)
}

// Run extracts and writes. Output is written only when extraction succeeded.
func (e *Extractor) Run(ctx context.Context, url, dir string) (*types.CriticalCSSBundle, error) {
	bundle, err := e.Extract(ctx, url)
	if err != nil {
		return bundle, err
	}
	if err := e.Write(dir, bundle); err != nil {
		return bundle, err
	}
	return bundle, nil
}
