package bundler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/pithecene-io/kiln/iox"
)

// MetafileName is written into the step output dir when analysis is enabled.
const MetafileName = "meta.json"

// writeAnalysis persists the esbuild metafile and logs the per-input
// breakdown esbuild derives from it.
func (c *Collaborator) writeAnalysis(metafile string) error {
	if err := os.MkdirAll(c.cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", c.cfg.OutDir, err)
	}
	path := filepath.Join(c.cfg.OutDir, MetafileName)
	if err := iox.WriteFileAtomic(path, []byte(metafile), 0o644); err != nil {
		return err
	}
	c.logger.Info("bundle analysis", map[string]any{
		"step":     c.name,
		"metafile": path,
		"analysis": api.AnalyzeMetafile(metafile, api.AnalyzeMetafileOptions{}),
	})
	return nil
}
