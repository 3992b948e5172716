package hlogstore

import (
	"encoding/json"
	"os"
)

// RecoveryConfig carries the store-construction-time parameters recovery needs: ring capacity,
// page geometry, and which LogReplayer mode to use. It is loaded once at startup and never
// mutated during a recovery run: ring capacity is fixed for the lifetime of the run.
type RecoveryConfig struct {
	// PageGeometry describes page size, ring capacity, segment size, and head-offset lag.
	Geometry PageGeometry `json:"geometry"`
	// FoldOverSnapshot selects LogReplayer's mode: true replays in place on the main log
	// device, false replays from a separate snapshot file.
	FoldOverSnapshot bool `json:"foldOverSnapshot"`
	// HashModValue sizes the live hash index's primary bucket count.
	HashModValue int `json:"hashModValue"`
	// Root is the on-disk directory layout root.
	Root string `json:"root"`
}

// DefaultRecoveryConfig returns a RecoveryConfig with reasonable defaults: 4 ring frames, 21-bit
// (2MB) pages, fold-over replay, and a 250k-bucket hash index sized for a single-segment
// registry.
func DefaultRecoveryConfig(root string) RecoveryConfig {
	return RecoveryConfig{
		Geometry: PageGeometry{
			PageSizeBits:         21,
			CapacityNumPages:     4,
			HeadOffsetLagInPages: 1,
			SegmentSizeBits:      30,
		},
		FoldOverSnapshot: true,
		HashModValue:     250000,
		Root:             root,
	}
}

// LoadRecoveryConfig reads a RecoveryConfig from a small JSON settings file at startup.
func LoadRecoveryConfig(filename string) (RecoveryConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return RecoveryConfig{}, err
	}
	var c RecoveryConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return RecoveryConfig{}, err
	}
	return c, nil
}
