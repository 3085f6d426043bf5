package perf

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pithecene-io/kiln/sizing"
	"github.com/pithecene-io/kiln/types"
)

// Dirs are the emitted output directories to analyse.
type Dirs struct {
	JS     string
	CSS    string
	Assets string
	// Exclude lists files under those directories that are never counted,
	// such as the critical CSS copies written next to the stylesheets.
	Exclude []string
}

// DefaultSampleLimit caps the number of static assets analysed.
const DefaultSampleLimit = 20

// skipExt lists derived files that are never analysed.
var skipExt = map[string]bool{".map": true, ".gz": true, ".br": true}

// AnalyzeBundles measures raw, gzip and brotli sizes of every emitted JS and
// CSS file and of the first sampleLimit static assets in path order.
// A missing directory yields an empty group.
func AnalyzeBundles(dirs Dirs, sampleLimit int) (map[string]types.BundleGroup, error) {
	if sampleLimit <= 0 {
		sampleLimit = DefaultSampleLimit
	}

	excluded := make(map[string]bool, len(dirs.Exclude))
	for _, p := range dirs.Exclude {
		excluded[filepath.Clean(p)] = true
	}
	keep := func(match func(string) bool) func(string) bool {
		return func(p string) bool { return !excluded[filepath.Clean(p)] && match(p) }
	}

	js, err := analyzeDir(dirs.JS, keep(func(p string) bool { return hasExt(p, ".js", ".mjs") }), 0)
	if err != nil {
		return nil, err
	}
	css, err := analyzeDir(dirs.CSS, keep(func(p string) bool { return hasExt(p, ".css") }), 0)
	if err != nil {
		return nil, err
	}
	assets, err := analyzeDir(dirs.Assets, keep(func(p string) bool { return !strings.HasSuffix(p, ".json") }), sampleLimit)
	if err != nil {
		return nil, err
	}

	return map[string]types.BundleGroup{
		types.GroupJS:     js,
		types.GroupCSS:    css,
		types.GroupAssets: assets,
	}, nil
}

func hasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// analyzeDir measures matching files under dir. limit 0 means unlimited.
func analyzeDir(dir string, include func(string) bool, limit int) (types.BundleGroup, error) {
	var group types.BundleGroup
	if dir == "" {
		return group, nil
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || skipExt[strings.ToLower(filepath.Ext(path))] || !include(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return group, fmt.Errorf("analyze %s: %w", dir, err)
	}

	sort.Strings(paths)
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}

	for _, path := range paths {
		f, err := measure(path)
		if err != nil {
			return group, err
		}
		if rel, err := filepath.Rel(dir, path); err == nil {
			f.Path = filepath.ToSlash(rel)
		}
		group.Add(f)
	}
	return group, nil
}

func measure(path string) (types.FileSize, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.FileSize{}, fmt.Errorf("read %s: %w", path, err)
	}
	gz, err := sizing.GzipSize(data)
	if err != nil {
		return types.FileSize{}, fmt.Errorf("gzip %s: %w", path, err)
	}
	br, err := sizing.BrotliSize(data)
	if err != nil {
		return types.FileSize{}, fmt.Errorf("brotli %s: %w", path, err)
	}
	return types.FileSize{Path: path, Size: int64(len(data)), GzipSize: gz, BrotliSize: br}, nil
}
