// Package assets optimizes source images, fonts and svg files into
// content-hashed, responsive output files and regenerates the asset manifest.
//
// Inputs are processed in batches of Config.Concurrency: batches run strictly
// one after another, assets within a batch run concurrently. A failing asset
// is logged and counted; it never aborts the batch or the run.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	// Register decoders for image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/pithecene-io/kiln/iox"
	"github.com/pithecene-io/kiln/log"
	"github.com/pithecene-io/kiln/metrics"
	"github.com/pithecene-io/kiln/types"
)

// Config is the immutable optimizer configuration.
type Config struct {
	// SourceDir is scanned for inputs.
	SourceDir string
	// OutDir receives variants and the manifest files.
	OutDir string
	// PublicPrefix is prepended to manifest paths (e.g. "assets").
	PublicPrefix string
	// Breakpoints are responsive target widths.
	Breakpoints []int
	// Formats are the raster output formats, in preference order.
	Formats []string
	// Quality maps format to encoder quality.
	Quality map[string]int
	// MaxInputSize skips inputs strictly larger than this many bytes.
	MaxInputSize int64
	// Concurrency is the batch size.
	Concurrency int
}

// Optimizer runs asset optimization.
type Optimizer struct {
	cfg       Config
	encoders  map[string]Encoder
	logger    *log.Logger
	collector *metrics.Collector
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithEncoders overrides encoders per format.
func WithEncoders(encoders map[string]Encoder) Option {
	return func(o *Optimizer) {
		for f, e := range encoders {
			o.encoders[f] = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Optimizer) { o.logger = l }
}

// WithCollector sets the metrics collector.
func WithCollector(c *metrics.Collector) Option {
	return func(o *Optimizer) { o.collector = c }
}

// New creates an Optimizer with the built-in encoders.
func New(cfg Config, opts ...Option) *Optimizer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	o := &Optimizer{
		cfg:      cfg,
		encoders: DefaultEncoders(nil),
		logger:   log.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the optimizer configuration.
func (o *Optimizer) Config() Config { return o.cfg }

// Optimize scans the source tree and writes every variant within scope.
// It does not write the manifest; see Run.
//
// The returned error covers scan failures and cancellation between batches.
// Per-asset failures are reported on the Result.
func (o *Optimizer) Optimize(ctx context.Context, scope Scope) (*Result, error) {
	start := time.Now()

	found, err := Scan(o.cfg.SourceDir, scope)
	if err != nil {
		return nil, err
	}

	res := &Result{Scope: scope, Found: len(found)}
	outcomes := make([]AssetResult, len(found))

	batches, err := runBatches(ctx, len(found), o.cfg.Concurrency, func(i int) {
		outcomes[i] = o.processSafe(ctx, found[i])
	})
	res.Batches = batches

	processedUpTo := 0
	for _, n := range batches {
		processedUpTo += n
	}
	for _, ar := range outcomes[:processedUpTo] {
		res.add(ar)
	}

	o.collector.AbsorbAssetTotals(int64(res.Found), int64(res.Processed), int64(res.Skipped),
		int64(res.Errored), res.BytesIn, res.BytesOut, int64(len(res.Batches)))

	o.logger.Info("asset optimization finished", map[string]any{
		"scope":       string(scope),
		"found":       res.Found,
		"processed":   res.Processed,
		"skipped":     res.Skipped,
		"errored":     res.Errored,
		"batches":     len(res.Batches),
		"bytes_saved": res.BytesSaved(),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if err != nil {
		return res, fmt.Errorf("asset optimization interrupted: %w", err)
	}
	return res, nil
}

// Run optimizes the given scope and regenerates the manifest from scratch.
func (o *Optimizer) Run(ctx context.Context, scope Scope) (*Result, error) {
	res, err := o.Optimize(ctx, scope)
	if err != nil {
		return res, err
	}
	if err := WriteManifest(o.cfg.OutDir, res.Manifest()); err != nil {
		return res, err
	}
	return res, nil
}

// runBatches calls fn for indexes [0,n) in batches of size. Calls within a
// batch run concurrently; the next batch starts only after every call of
// the previous one returned. Cancellation is checked between batches only.
func runBatches(ctx context.Context, n, size int, fn func(i int)) ([]int, error) {
	var sizes []int
	for start := 0; start < n; start += size {
		if err := ctx.Err(); err != nil {
			return sizes, err
		}
		end := min(start+size, n)

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				fn(i)
			}(i)
		}
		wg.Wait()

		sizes = append(sizes, end-start)
	}
	return sizes, nil
}

// processSafe converts a panic inside a decoder or encoder into a per-asset
// error.
func (o *Optimizer) processSafe(ctx context.Context, a types.Asset) (ar AssetResult) {
	defer func() {
		if r := recover(); r != nil {
			ar = AssetResult{Asset: a, Outcome: types.OutcomeError, Errors: []string{fmt.Sprintf("panic: %v", r)}}
		}
		if ar.Outcome == types.OutcomeError {
			o.logger.Warn("asset failed", map[string]any{
				"asset":  a.Original,
				"errors": ar.Errors,
			})
		}
	}()
	return o.process(ctx, a)
}

func (o *Optimizer) process(ctx context.Context, a types.Asset) AssetResult {
	if a.Size > o.cfg.MaxInputSize {
		o.logger.Debug("asset skipped", map[string]any{
			"asset": a.Original,
			"size":  a.Size,
			"limit": o.cfg.MaxInputSize,
		})
		return AssetResult{Asset: a, Outcome: types.OutcomeSkippedTooLarge}
	}

	data, err := os.ReadFile(a.Path)
	if err != nil {
		return failed(a, err)
	}

	var ar AssetResult
	switch a.Kind {
	case types.AssetKindImage:
		ar = o.processImage(ctx, a, data)
	case types.AssetKindFont:
		ar = o.processStatic(a, data)
	case types.AssetKindSVG:
		ar = o.processStatic(a, MinifySVG(data))
	default:
		return failed(a, fmt.Errorf("unsupported asset kind %q", a.Kind))
	}

	if len(ar.Variants) == 0 {
		ar.Outcome = types.OutcomeError
		if len(ar.Errors) == 0 {
			ar.Errors = []string{"no variants produced"}
		}
		return ar
	}
	ar.Outcome = types.OutcomeProcessed
	return ar
}

func failed(a types.Asset, err error) AssetResult {
	return AssetResult{Asset: a, Outcome: types.OutcomeError, Errors: []string{err.Error()}}
}

// processStatic writes a single rehashed copy (fonts, minified svg).
func (o *Optimizer) processStatic(a types.Asset, data []byte) AssetResult {
	ar := AssetResult{Asset: a}
	v, err := o.write(a, data, 0, a.Format, true)
	if err != nil {
		ar.Errors = append(ar.Errors, err.Error())
		return ar
	}
	ar.Variants = append(ar.Variants, v)
	ar.OutBytes = v.Size
	return ar
}

func (o *Optimizer) processImage(ctx context.Context, a types.Asset, data []byte) AssetResult {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return failed(a, fmt.Errorf("decode: %w", err))
	}
	b := img.Bounds()
	a.Width, a.Height = b.Dx(), b.Dy()
	ar := AssetResult{Asset: a}

	widths := TargetWidths(a.Width, o.cfg.Breakpoints)
	scaled := make(map[int]image.Image, len(widths))
	for _, w := range widths {
		scaled[w] = Resize(img, w)
	}

	for _, format := range o.cfg.Formats {
		enc, ok := o.encoders[format]
		if !ok {
			ar.Errors = append(ar.Errors, fmt.Sprintf("%s: no encoder registered", format))
			continue
		}
		quality := o.cfg.Quality[format]

		for _, w := range widths {
			encoded, err := enc.Encode(ctx, scaled[w], quality)
			if err != nil {
				ar.Errors = append(ar.Errors, fmt.Sprintf("%s@%dw: %v", format, w, err))
				// A missing tool fails every width the same way.
				break
			}
			v, err := o.write(a, encoded, w, format, false)
			if err != nil {
				ar.Errors = append(ar.Errors, err.Error())
				continue
			}
			ar.Variants = append(ar.Variants, v)
		}

		encoded, err := enc.Encode(ctx, img, quality)
		if err != nil {
			ar.Errors = append(ar.Errors, fmt.Sprintf("%s@full: %v", format, err))
			continue
		}
		v, err := o.write(a, encoded, a.Width, format, true)
		if err != nil {
			ar.Errors = append(ar.Errors, err.Error())
			continue
		}
		ar.Variants = append(ar.Variants, v)
		if ar.OutBytes == 0 || v.Size < ar.OutBytes {
			ar.OutBytes = v.Size
		}
	}
	return ar
}

// write hashes data and writes it under OutDir. The returned variant does
// not retain data.
func (o *Optimizer) write(a types.Asset, data []byte, width int, format string, fullSize bool) (types.ResponsiveVariant, error) {
	hash := ContentHash(data)
	name := types.VariantFilename(a.Base(), width, hash, format, fullSize)
	rel := path.Join(a.Dir(), name)

	dest := filepath.Join(o.cfg.OutDir, filepath.FromSlash(rel))
	if err := iox.WriteFileAtomic(dest, data, 0o644); err != nil {
		return types.ResponsiveVariant{}, err
	}

	return types.ResponsiveVariant{
		Name:     a.Name,
		Width:    width,
		Format:   format,
		Hash:     hash,
		Path:     path.Join(o.cfg.PublicPrefix, rel),
		Size:     int64(len(data)),
		FullSize: fullSize,
	}, nil
}
