package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/kiln/types"
)

// Scope selects which asset kinds an optimizer run processes.
type Scope string

const (
	ScopeImages Scope = "images"
	ScopeFonts  Scope = "fonts"
	ScopeSVG    Scope = "svg"
	ScopeAll    Scope = "all"
)

// ParseScope validates a --type flag value.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeImages, ScopeFonts, ScopeSVG, ScopeAll:
		return Scope(s), nil
	case "":
		return ScopeAll, nil
	default:
		return "", fmt.Errorf("invalid asset type %q (want images, fonts, svg or all)", s)
	}
}

// Includes reports whether the scope covers kind.
func (s Scope) Includes(kind types.AssetKind) bool {
	switch s {
	case ScopeAll:
		return true
	case ScopeImages:
		return kind == types.AssetKindImage
	case ScopeFonts:
		return kind == types.AssetKindFont
	case ScopeSVG:
		return kind == types.AssetKindSVG
	default:
		return false
	}
}

type extInfo struct {
	kind   types.AssetKind
	format string
}

var extensions = map[string]extInfo{
	".jpg":   {types.AssetKindImage, "jpeg"},
	".jpeg":  {types.AssetKindImage, "jpeg"},
	".png":   {types.AssetKindImage, "png"},
	".gif":   {types.AssetKindImage, "gif"},
	".webp":  {types.AssetKindImage, "webp"},
	".woff":  {types.AssetKindFont, "woff"},
	".woff2": {types.AssetKindFont, "woff2"},
	".ttf":   {types.AssetKindFont, "ttf"},
	".otf":   {types.AssetKindFont, "otf"},
	".eot":   {types.AssetKindFont, "eot"},
	".svg":   {types.AssetKindSVG, "svg"},
}

// Scan walks root and returns the assets within scope in lexical path order.
// Hidden files and directories are skipped. A missing root yields no assets.
func Scan(root string, scope Scope) ([]types.Asset, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve source dir: %w", err)
	}

	var out []types.Asset
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == absRoot && errors.Is(walkErr, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return walkErr
		}
		if p != absRoot && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(p))
		info, ok := extensions[ext]
		if !ok || !scope.Includes(info.kind) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		out = append(out, types.Asset{
			Path:     p,
			Name:     strings.TrimSuffix(rel, filepath.Ext(rel)),
			Original: rel,
			Size:     fi.Size(),
			Format:   info.format,
			Kind:     info.kind,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return out, nil
}
