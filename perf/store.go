package perf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/pithecene-io/kiln/iox"
	"github.com/pithecene-io/kiln/types"
)

// SnapshotStore persists the single current snapshot as a JSON file.
// It assumes one writer per output directory; Save replaces the file
// atomically so readers never see a partial snapshot.
type SnapshotStore struct {
	Path string
}

// Load returns the stored snapshot, or nil when none exists.
func (s SnapshotStore) Load() (*types.MetricsSnapshot, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap types.MetricsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.Path, err)
	}
	return &snap, nil
}

// Save overwrites the stored snapshot.
func (s SnapshotStore) Save(snap *types.MetricsSnapshot) error {
	if err := iox.WriteJSONAtomic(s.Path, snap); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
