// Package types defines the shared data model of the kiln pipeline.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// AssetKind classifies a source asset by how it is optimized.
type AssetKind string

const (
	// AssetKindImage is a raster image (jpeg, png, gif, webp).
	AssetKindImage AssetKind = "image"
	// AssetKindFont is a web font, copied and rehashed.
	AssetKindFont AssetKind = "font"
	// AssetKindSVG is a vector graphic, minified and rehashed.
	AssetKindSVG AssetKind = "svg"
)

// Asset is a read-only source file discovered under the source root.
// Identity is the absolute source path.
type Asset struct {
	// Path is the absolute source path.
	Path string `json:"path"`
	// Name is the logical name: the slash-separated path relative to the
	// source root, without extension (e.g. "images/hero").
	Name string `json:"name"`
	// Original is the slash-separated relative path with extension.
	Original string `json:"original"`
	// Size is the source size in bytes.
	Size int64 `json:"size"`
	// Width and Height are detected for raster images only.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	// Format is the detected format ("jpeg", "png", "woff2", "svg", ...).
	Format string `json:"format"`
	// Kind selects the optimization path.
	Kind AssetKind `json:"kind"`
}

// Dir returns the slash-separated directory of the logical name ("" for root).
func (a Asset) Dir() string {
	dir := path.Dir(a.Name)
	if dir == "." {
		return ""
	}
	return dir
}

// Base returns the file stem of the logical name.
func (a Asset) Base() string {
	return path.Base(a.Name)
}

// ResponsiveVariant is one encoded output derived from an Asset for a
// (width, format) pair. Immutable once written.
type ResponsiveVariant struct {
	// Name is the logical name of the source asset.
	Name string `json:"name"`
	// Width is the target width in pixels (native width for full-size).
	Width int `json:"width"`
	// Format is the output format and file extension.
	Format string `json:"format"`
	// Hash is the 8 hex-char content hash of the encoded bytes.
	Hash string `json:"hash"`
	// Path is the slash-separated output path relative to the output root.
	Path string `json:"path"`
	// Size is the encoded size in bytes.
	Size int64 `json:"size"`
	// FullSize marks the native-width variant.
	FullSize bool `json:"full_size"`
}

// HashLength is the number of hex characters embedded in output filenames.
const HashLength = 8

// VariantFilename builds the output filename for a variant.
//
//	{base}_{width}w.{hash}.{format}   responsive
//	{base}.{hash}.{format}            full-size
func VariantFilename(base string, width int, hash, format string, fullSize bool) string {
	if fullSize {
		return fmt.Sprintf("%s.%s.%s", base, hash, format)
	}
	return fmt.Sprintf("%s_%dw.%s.%s", base, width, hash, format)
}

// ParseVariantFilename is the inverse of VariantFilename.
// Width is 0 for full-size filenames.
func ParseVariantFilename(filename string) (base string, width int, hash, format string, err error) {
	parts := strings.Split(filename, ".")
	if len(parts) < 3 {
		return "", 0, "", "", fmt.Errorf("variant filename %q: want base.hash.format", filename)
	}
	format = parts[len(parts)-1]
	hash = parts[len(parts)-2]
	if len(hash) != HashLength {
		return "", 0, "", "", fmt.Errorf("variant filename %q: hash %q has length %d", filename, hash, len(hash))
	}
	stem := strings.Join(parts[:len(parts)-2], ".")

	if i := strings.LastIndex(stem, "_"); i > 0 && strings.HasSuffix(stem, "w") {
		if w, convErr := strconv.Atoi(stem[i+1 : len(stem)-1]); convErr == nil && w > 0 {
			return stem[:i], w, hash, format, nil
		}
	}
	return stem, 0, hash, format, nil
}

// AssetOutcome is the per-asset result of an optimizer run.
type AssetOutcome string

const (
	// OutcomeProcessed means at least one variant was written.
	OutcomeProcessed AssetOutcome = "processed"
	// OutcomeSkippedTooLarge means the input exceeded the max input size.
	OutcomeSkippedTooLarge AssetOutcome = "skipped/too_large"
	// OutcomeError means the asset failed; the run continued.
	OutcomeError AssetOutcome = "error"
)

// ManifestEntry lists every variant of one logical asset.
// Responsive is keyed by width, then format.
type ManifestEntry struct {
	Formats    map[string]string         `json:"formats"`
	Responsive map[int]map[string]string `json:"responsive"`
}

// AssetManifest is regenerated wholesale on every optimizer run.
type AssetManifest struct {
	// Assets maps logical name to its variants (manifest.json).
	Assets map[string]*ManifestEntry `json:"assets"`
	// Files maps original relative path to the hashed relative path
	// used for cache-busting lookups (asset-map.json).
	Files map[string]string `json:"files"`
}

// NewAssetManifest returns an empty manifest.
func NewAssetManifest() *AssetManifest {
	return &AssetManifest{
		Assets: make(map[string]*ManifestEntry),
		Files:  make(map[string]string),
	}
}

// AddVariant indexes a written variant under its logical name.
func (m *AssetManifest) AddVariant(v ResponsiveVariant) {
	entry, ok := m.Assets[v.Name]
	if !ok {
		entry = &ManifestEntry{
			Formats:    make(map[string]string),
			Responsive: make(map[int]map[string]string),
		}
		m.Assets[v.Name] = entry
	}
	if v.FullSize {
		entry.Formats[v.Format] = v.Path
		return
	}
	byFormat, ok := entry.Responsive[v.Width]
	if !ok {
		byFormat = make(map[string]string)
		entry.Responsive[v.Width] = byFormat
	}
	byFormat[v.Format] = v.Path
}

// Paths returns every output path referenced by the manifest.
func (m *AssetManifest) Paths() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, e := range m.Assets {
		for _, p := range e.Formats {
			add(p)
		}
		for _, byFormat := range e.Responsive {
			for _, p := range byFormat {
				add(p)
			}
		}
	}
	for _, p := range m.Files {
		add(p)
	}
	return out
}
