package fs

import "github.com/sharedcode/hlogstore"

// IndexCheckpointInfo is the metadata loaded from <indexDir>/<guid>/info.dat. It carries the
// log cut-point at which the fuzzy index snapshot began, plus enough information to locate the
// bucket-page files alongside it.
type IndexCheckpointInfo struct {
	Token hlogstore.UUID `json:"token"`
	// FinalLogicalAddress is the log cut-point at which the index snapshot began.
	FinalLogicalAddress hlogstore.LogicalAddress `json:"finalLogicalAddress"`
	// StartLogicalAddress is the fuzzy-region lower bound: LogReplayer replays
	// [StartLogicalAddress, logInfo.FinalLogicalAddress) to bring the index up to date.
	StartLogicalAddress hlogstore.LogicalAddress `json:"startLogicalAddress"`
	// NumBuckets is the number of primary hash buckets serialized in the ht.<n>.dat files.
	NumBuckets int `json:"numBuckets"`
	// NumHashTablePages is how many ht.<n>.dat page files make up the bucket payload.
	NumHashTablePages int `json:"numHashTablePages"`
}

// HybridLogCheckpointInfo is the metadata loaded from <logDir>/<guid>/info.dat.
type HybridLogCheckpointInfo struct {
	Token hlogstore.UUID `json:"token"`
	// Version is the store's logical epoch as of this checkpoint; recovery activates v+1.
	Version uint16 `json:"version"`
	// FlushedLogicalAddress: all data below this address is durable on the main log device.
	FlushedLogicalAddress hlogstore.LogicalAddress `json:"flushedLogicalAddress"`
	// FinalLogicalAddress is the log's tail at checkpoint time.
	FinalLogicalAddress hlogstore.LogicalAddress `json:"finalLogicalAddress"`
	// StartLogicalAddress is the fuzzy-region lower bound recorded with the log checkpoint.
	// Replay takes its lower bound from the index checkpoint's StartLogicalAddress instead, and
	// IsCompatible compares FinalLogicalAddress values, not this field.
	StartLogicalAddress hlogstore.LogicalAddress `json:"startLogicalAddress"`
	// ObjectLogSegmentOffsets maps object-log segment number to its starting byte offset,
	// letting the log locate variable-length payloads in an accompanying object-log file.
	ObjectLogSegmentOffsets []int64 `json:"objectLogSegmentOffsets,omitempty"`
	// ContinueTokens maps a session to its resume point, rehydrated into RecoveryDriver's
	// SessionTable once recovery completes.
	ContinueTokens map[string]hlogstore.LogicalAddress `json:"continueTokens,omitempty"`
	// SnapshotMode is true when this checkpoint's records live in a separate snapshot file
	// rather than on the main log device.
	SnapshotMode bool `json:"snapshotMode"`
}

// IsCompatible reports whether an index checkpoint at L_i is compatible with a log checkpoint
// at L_h: compatible iff L_i <= L_h, since replay must be able to cover the gap between them.
func IsCompatible(index IndexCheckpointInfo, log HybridLogCheckpointInfo) bool {
	return index.FinalLogicalAddress <= log.FinalLogicalAddress
}
