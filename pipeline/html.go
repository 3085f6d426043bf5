package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pithecene-io/kiln/assets"
	"github.com/pithecene-io/kiln/iox"
)

// StepHTML is the name of the page generation step.
const StepHTML = "html"

// CriticalMarker is replaced by the critical CSS inline fragment.
const CriticalMarker = "<!-- kiln:critical -->"

// HTMLGenerator copies pages into the output directory, rewriting asset
// references to their hashed paths and inlining the critical CSS.
type HTMLGenerator struct {
	// PagesDir holds the source *.html files.
	PagesDir string
	// OutDir receives the rewritten pages, preserving relative paths.
	OutDir string
	// AssetPrefix is the public prefix asset references start with
	// (e.g. "assets"); asset map keys are relative to it.
	AssetPrefix string
	// AssetMap maps original relative paths to hashed public paths. When
	// nil it is loaded from AssetsDir at run time, after the assets step.
	AssetMap  map[string]string
	AssetsDir string
	// InlineFile is the critical CSS fragment; a missing file leaves the
	// marker in place.
	InlineFile string
}

// Run implements BuildCollaborator.
func (g *HTMLGenerator) Run(ctx context.Context) (string, error) {
	pages, err := g.pages()
	if err != nil {
		return "", err
	}
	if len(pages) == 0 {
		return "no pages", nil
	}

	assetMap := g.AssetMap
	if assetMap == nil && g.AssetsDir != "" {
		if assetMap, err = assets.LoadAssetMap(g.AssetsDir); err != nil {
			return "", err
		}
	}

	inline := ""
	if g.InlineFile != "" {
		data, err := os.ReadFile(g.InlineFile)
		switch {
		case err == nil:
			inline = string(data)
		case !os.IsNotExist(err):
			return "", fmt.Errorf("read critical inline: %w", err)
		}
	}

	replacer := g.replacer(assetMap)
	rewritten := 0
	for _, rel := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		data, err := os.ReadFile(filepath.Join(g.PagesDir, rel))
		if err != nil {
			return "", fmt.Errorf("read page %s: %w", rel, err)
		}
		page := replacer.Replace(string(data))
		if inline != "" && strings.Contains(page, CriticalMarker) {
			page = strings.Replace(page, CriticalMarker, inline, 1)
		}
		if page != string(data) {
			rewritten++
		}
		if err := iox.WriteFileAtomic(filepath.Join(g.OutDir, rel), []byte(page), 0o644); err != nil {
			return "", fmt.Errorf("write page %s: %w", rel, err)
		}
	}
	return fmt.Sprintf("%d pages, %d rewritten", len(pages), rewritten), nil
}

func (g *HTMLGenerator) pages() ([]string, error) {
	var pages []string
	err := filepath.WalkDir(g.PagesDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == g.PagesDir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".html") {
			return nil
		}
		rel, err := filepath.Rel(g.PagesDir, p)
		if err != nil {
			return err
		}
		pages = append(pages, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk pages: %w", err)
	}
	sort.Strings(pages)
	return pages, nil
}

// replacer rewrites "{prefix}/{original}" to the hashed path. Longer keys
// are listed first so a path is never shadowed by one of its prefixes.
func (g *HTMLGenerator) replacer(assetMap map[string]string) *strings.Replacer {
	keys := make([]string, 0, len(assetMap))
	for k := range assetMap {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, path.Join(g.AssetPrefix, k), assetMap[k])
	}
	return strings.NewReplacer(pairs...)
}

// Collaborator wraps the generator as the html step.
func (g *HTMLGenerator) Collaborator() FuncCollaborator {
	return FuncCollaborator{Name: StepHTML, Fn: g.Run}
}
