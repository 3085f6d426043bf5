// Package watch rebuilds on source changes.
//
// A Watcher registers every directory under its roots with fsnotify,
// coalesces bursts of events into one rebuild after a quiet period and
// never runs two rebuilds at once. It stops when its context is cancelled,
// which the CLI ties to SIGINT.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pithecene-io/kiln/log"
)

// DefaultDebounce is the quiet period before a rebuild starts.
const DefaultDebounce = 200 * time.Millisecond

// RebuildFunc runs one rebuild. changed lists the paths seen since the
// previous rebuild, sorted and de-duplicated.
type RebuildFunc func(ctx context.Context, changed []string) error

// Config configures a Watcher.
type Config struct {
	// Roots are watched recursively; missing roots are ignored.
	Roots []string
	// Ignore lists directories never watched (typically the output dir).
	Ignore   []string
	Debounce time.Duration
}

// Watcher drives rebuilds from filesystem events.
type Watcher struct {
	cfg     Config
	rebuild RebuildFunc
	logger  *log.Logger
	ignore  []string
}

// New creates a Watcher.
func New(cfg Config, rebuild RebuildFunc, logger *log.Logger) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = log.NewNop()
	}
	w := &Watcher{cfg: cfg, rebuild: rebuild, logger: logger}
	for _, dir := range cfg.Ignore {
		if abs, err := filepath.Abs(dir); err == nil {
			w.ignore = append(w.ignore, abs)
		}
	}
	return w
}

// Run watches until ctx is cancelled. Rebuild errors are logged and
// watching continues. Returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	watched := 0
	for _, root := range w.cfg.Roots {
		n, err := w.addTree(fsw, root)
		if err != nil {
			return err
		}
		watched += n
	}
	if watched == 0 {
		return errors.New("nothing to watch")
	}
	w.logger.Info("watching for changes", map[string]any{
		"roots":       w.cfg.Roots,
		"directories": watched,
	})

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending = map[string]struct{}{}
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("watcher stopped", nil)
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if _, err := w.addTree(fsw, ev.Name); err != nil {
						w.logger.Warn("watch new directory failed", map[string]any{
							"path":  ev.Name,
							"error": err.Error(),
						})
					}
				}
			}
			pending[ev.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.cfg.Debounce)
			} else {
				timer.Reset(w.cfg.Debounce)
			}
			fire = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", map[string]any{"error": err.Error()})

		case <-fire:
			fire = nil
			changed := drain(pending)
			w.logger.Info("change detected, rebuilding", map[string]any{
				"changed": len(changed),
			})
			if err := w.rebuild(ctx, changed); err != nil {
				w.logger.Warn("rebuild failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// addTree registers root and every directory below it.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) || (path != root && strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		n++
		return nil
	})
	return n, err
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return !w.ignored(ev.Name)
}

func (w *Watcher) ignored(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, dir := range w.ignore {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func drain(pending map[string]struct{}) []string {
	out := make([]string, 0, len(pending))
	for p := range pending {
		out = append(out, p)
		delete(pending, p)
	}
	slices.Sort(out)
	return out
}
