package bundler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/kiln/iox"
	"github.com/pithecene-io/kiln/log"
	"github.com/pithecene-io/kiln/sizing"
	"github.com/pithecene-io/kiln/types"
)

// StepPrecompress is the orchestrator step name for precompression.
const StepPrecompress = "precompress"

// DefaultPrecompressWorkers bounds concurrent compressions.
const DefaultPrecompressWorkers = 4

// compressible are the extensions served with precompressed siblings.
var compressible = map[string]bool{
	".js":   true,
	".mjs":  true,
	".css":  true,
	".html": true,
	".json": true,
	".svg":  true,
}

// PrecompressStats summarises a precompression pass.
type PrecompressStats struct {
	Files  int
	Raw    int64
	Gzip   int64
	Brotli int64
}

// Precompressor writes .gz and .br siblings next to every compressible
// file under Dir.
type Precompressor struct {
	Dir     string
	Workers int
	Logger  *log.Logger
}

// Compress walks the directory and compresses every eligible file with a
// bounded number of workers. Per-file failures are joined into the
// returned error; successful siblings are kept.
func (p *Precompressor) Compress(ctx context.Context) (PrecompressStats, error) {
	var stats PrecompressStats
	files, err := compressibleFiles(p.Dir)
	if err != nil {
		return stats, err
	}

	workers := p.Workers
	if workers <= 0 {
		workers = DefaultPrecompressWorkers
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs []error
		sem  = make(chan struct{}, workers)
	)
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			raw, gz, br, err := compressFile(path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				return
			}
			stats.Files++
			stats.Raw += raw
			stats.Gzip += gz
			stats.Brotli += br
		}(path)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return stats, errors.Join(errs...)
}

// Run implements the orchestrator collaborator contract.
func (p *Precompressor) Run(ctx context.Context) types.BuildStepResult {
	start := time.Now()
	stats, err := p.Compress(ctx)
	if err != nil {
		return types.StepFailed(StepPrecompress, time.Since(start), err)
	}
	out := fmt.Sprintf("%d files, %s -> gzip %s, brotli %s",
		stats.Files,
		sizing.FormatBytes(stats.Raw),
		sizing.FormatBytes(stats.Gzip),
		sizing.FormatBytes(stats.Brotli))
	if p.Logger != nil {
		p.Logger.Info("precompressed output", map[string]any{
			"dir":    p.Dir,
			"files":  stats.Files,
			"raw":    stats.Raw,
			"gzip":   stats.Gzip,
			"brotli": stats.Brotli,
		})
	}
	return types.StepSucceeded(StepPrecompress, time.Since(start), out)
}

func compressibleFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if compressible[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

func compressFile(path string) (raw, gz, br int64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, 0, err
	}
	gzData, err := sizing.Gzip(data)
	if err != nil {
		return 0, 0, 0, err
	}
	brData, err := sizing.Brotli(data)
	if err != nil {
		return 0, 0, 0, err
	}
	if err := iox.WriteFileAtomic(path+".gz", gzData, 0o644); err != nil {
		return 0, 0, 0, err
	}
	if err := iox.WriteFileAtomic(path+".br", brData, 0o644); err != nil {
		return 0, 0, 0, err
	}
	return int64(len(data)), int64(len(gzData)), int64(len(brData)), nil
}
