package assets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pithecene-io/kiln/iox"
	"github.com/pithecene-io/kiln/types"
)

const (
	// ManifestFile maps logical names to variants by format and width.
	ManifestFile = "manifest.json"
	// AssetMapFile maps original relative paths to hashed paths.
	AssetMapFile = "asset-map.json"
)

// WriteManifest replaces manifest.json and asset-map.json in dir.
func WriteManifest(dir string, m *types.AssetManifest) error {
	if err := iox.WriteJSONAtomic(filepath.Join(dir, ManifestFile), m.Assets); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := iox.WriteJSONAtomic(filepath.Join(dir, AssetMapFile), m.Files); err != nil {
		return fmt.Errorf("write asset map: %w", err)
	}
	return nil
}

// LoadAssetMap reads asset-map.json from dir. A missing file yields an
// empty map.
func LoadAssetMap(dir string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, AssetMapFile))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read asset map: %w", err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse asset map: %w", err)
	}
	return m, nil
}
