// Package fs provides filesystem-backed implementations of the recovery core's on-disk
// collaborators: directory layout, checkpoint enumeration, and paged direct I/O, each living as
// a distinct small file over a shared directory convention.
package fs

import (
	"os"
	"path/filepath"
	"strconv"
)

// Checkpoint folder kinds: the hash index and the hybrid log each keep an independent
// checkpoint tree.
const (
	indexCheckpointsDir = "index-checkpoints"
	logCheckpointsDir   = "cpr-checkpoints"

	// CompletedMarkerFilename is the empty marker file that makes a checkpoint folder usable:
	// it only appears after fsync, so a folder without it is owned by a dead writer.
	CompletedMarkerFilename = "completed.dat"
	// IndexInfoFilename holds the serialized IndexCheckpointInfo.
	IndexInfoFilename = "info.dat"
	// LogInfoFilename holds the serialized HybridLogCheckpointInfo.
	LogInfoFilename = "info.dat"
	// SnapshotFilename holds snapshot-mode replay data.
	SnapshotFilename = "snapshot.dat"
	// SnapshotObjectFilename holds snapshot-mode object-log payloads.
	SnapshotObjectFilename = "snapshot.obj.dat"
	// htFilePrefix prefixes hash-table page files, ht.<n>.dat.
	htFilePrefix = "ht."
	htFileSuffix = ".dat"
)

// DirectoryLayout resolves on-disk paths for index and log checkpoints by token; it is the
// sole component that knows the checkpoint tree's folder and filenames.
type DirectoryLayout struct {
	root string
}

// NewDirectoryLayout returns a DirectoryLayout rooted at root.
func NewDirectoryLayout(root string) *DirectoryLayout {
	return &DirectoryLayout{root: root}
}

// IndexCheckpointsRoot returns <root>/index-checkpoints.
func (d *DirectoryLayout) IndexCheckpointsRoot() string {
	return filepath.Join(d.root, indexCheckpointsDir)
}

// LogCheckpointsRoot returns <root>/cpr-checkpoints.
func (d *DirectoryLayout) LogCheckpointsRoot() string {
	return filepath.Join(d.root, logCheckpointsDir)
}

// IndexCheckpointFolder returns <root>/index-checkpoints/<token>.
func (d *DirectoryLayout) IndexCheckpointFolder(token string) string {
	return filepath.Join(d.IndexCheckpointsRoot(), token)
}

// LogCheckpointFolder returns <root>/cpr-checkpoints/<token>.
func (d *DirectoryLayout) LogCheckpointFolder(token string) string {
	return filepath.Join(d.LogCheckpointsRoot(), token)
}

// EnsureLayout creates the two checkpoint root folders if they don't already exist.
func (d *DirectoryLayout) EnsureLayout() error {
	if err := os.MkdirAll(d.IndexCheckpointsRoot(), 0755); err != nil {
		return err
	}
	return os.MkdirAll(d.LogCheckpointsRoot(), 0755)
}

// HashTablePageFilename returns the ht.<n>.dat filename for hash-table page n.
func HashTablePageFilename(n int) string {
	return htFilePrefix + strconv.Itoa(n) + htFileSuffix
}
