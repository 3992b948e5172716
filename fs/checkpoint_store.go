package fs

import (
	"context"
	"encoding/json"
	log "log/slog"
	"os"
	"path/filepath"
	"time"

	retry "github.com/sethvargo/go-retry"

	"github.com/sharedcode/hlogstore"
)

// CheckpointKind selects which side(s) of a checkpoint pair IsSafe checks.
type CheckpointKind int

const (
	IndexOnly CheckpointKind = iota
	HybridLogOnly
	Full
)

// SnapshotDeviceFactory constructs the IDevice backing a log checkpoint's snapshot file.
// Production code always uses NewFileDevice; tests substitute an in-memory fake so they don't
// need O_DIRECT-capable storage under the checkpoint root.
type SnapshotDeviceFactory func(filename string) hlogstore.IDevice

// CheckpointStore enumerates checkpoint folders, prunes incomplete ones, and loads recovery
// metadata. It is the sole component that touches the checkpoint directory tree; IndexRestorer
// and LogReplayer only ever see the infos and devices it hands them.
type CheckpointStore struct {
	layout            *DirectoryLayout
	snapshotDeviceFac SnapshotDeviceFactory
}

// NewCheckpointStore returns a CheckpointStore rooted at the given DirectoryLayout.
func NewCheckpointStore(layout *DirectoryLayout) *CheckpointStore {
	return &CheckpointStore{
		layout:            layout,
		snapshotDeviceFac: func(filename string) hlogstore.IDevice { return NewFileDevice(filename) },
	}
}

// SetSnapshotDeviceFactory overrides how LoadSnapshotDevice constructs its device, letting tests
// substitute a fake in place of a real O_DIRECT file.
func (s *CheckpointStore) SetSnapshotDeviceFactory(factory SnapshotDeviceFactory) {
	s.snapshotDeviceFac = factory
}

// LoadSnapshotDevice returns the initialized IDevice backing token's snapshot file
// (snapshot.dat under its log checkpoint folder), sized for segmentSize bytes per segment.
// RecoveryDriver uses this rather than opening a device directly, keeping checkpoint file
// lifecycle owned by CheckpointStore end to end.
func (s *CheckpointStore) LoadSnapshotDevice(token hlogstore.UUID, segmentSize int64) (hlogstore.IDevice, error) {
	path := filepath.Join(s.layout.LogCheckpointFolder(token.String()), SnapshotFilename)
	device := s.snapshotDeviceFac(path)
	if err := device.Initialize(segmentSize); err != nil {
		return nil, err
	}
	return device, nil
}

// PruneIncomplete scans each checkpoint folder (index and log) and deletes any subfolder
// lacking CompletedMarkerFilename. This is safe against concurrent creators because a folder
// only appears with a finalized marker after fsync; a partially-written folder is owned
// exclusively by a writer that has since died.
func (s *CheckpointStore) PruneIncomplete(ctx context.Context) error {
	for _, root := range []string{s.layout.IndexCheckpointsRoot(), s.layout.LogCheckpointsRoot()} {
		if err := pruneIncompleteIn(ctx, root); err != nil {
			return err
		}
	}
	return nil
}

func pruneIncompleteIn(ctx context.Context, root string) error {
	entries, err := readDirRetry(ctx, root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		folder := filepath.Join(root, e.Name())
		marker := filepath.Join(folder, CompletedMarkerFilename)
		if _, err := os.Stat(marker); err != nil {
			if os.IsNotExist(err) {
				log.Warn("pruning incomplete checkpoint folder", "folder", folder)
				if rmErr := os.RemoveAll(folder); rmErr != nil {
					// Under a read-only filesystem the caller should skip rather than fail; a
					// folder we can't remove is still never selected by LatestToken, since
					// LatestToken itself re-checks the marker.
					log.Warn("could not remove incomplete checkpoint folder, skipping", "folder", folder, "error", rmErr)
				}
				continue
			}
			return err
		}
	}
	return nil
}

// LatestToken returns the folder (named by its 128-bit token) with the newest modification
// time among those that carry a completed marker, failing with NoCheckpoint if none qualify.
func (s *CheckpointStore) LatestToken(ctx context.Context, kind CheckpointKind) (hlogstore.UUID, error) {
	root := s.rootFor(kind)
	entries, err := readDirRetry(ctx, root)
	if err != nil {
		if os.IsNotExist(err) {
			return hlogstore.NilUUID, hlogstore.NewError(hlogstore.NoCheckpoint, root, err)
		}
		return hlogstore.NilUUID, err
	}

	var best hlogstore.UUID
	var bestTime time.Time
	found := false
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		token, err := hlogstore.ParseUUID(e.Name())
		if err != nil {
			continue
		}
		folder := filepath.Join(root, e.Name())
		if _, statErr := os.Stat(filepath.Join(folder, CompletedMarkerFilename)); statErr != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !found || info.ModTime().After(bestTime) {
			best = token
			bestTime = info.ModTime()
			found = true
		}
	}
	if !found {
		return hlogstore.NilUUID, hlogstore.NewError(hlogstore.NoCheckpoint, root, nil)
	}
	return best, nil
}

func (s *CheckpointStore) rootFor(kind CheckpointKind) string {
	switch kind {
	case IndexOnly:
		return s.layout.IndexCheckpointsRoot()
	default:
		return s.layout.LogCheckpointsRoot()
	}
}

// IsSafe reports whether the given token's checkpoint folder carries a completed marker.
// kind distinguishes which tree(s) must be checked; Full requires both an index and a log
// folder with that token to each carry a marker.
func (s *CheckpointStore) IsSafe(token hlogstore.UUID, kind CheckpointKind) bool {
	switch kind {
	case IndexOnly:
		return hasMarker(s.layout.IndexCheckpointFolder(token.String()))
	case HybridLogOnly:
		return hasMarker(s.layout.LogCheckpointFolder(token.String()))
	default:
		return hasMarker(s.layout.IndexCheckpointFolder(token.String())) && hasMarker(s.layout.LogCheckpointFolder(token.String()))
	}
}

func hasMarker(folder string) bool {
	_, err := os.Stat(filepath.Join(folder, CompletedMarkerFilename))
	return err == nil
}

// LoadIndexInfo loads and parses the IndexCheckpointInfo for token, failing with MissingMarker
// if the folder lacks its completed marker and CorruptMetadata if info.dat doesn't parse.
func (s *CheckpointStore) LoadIndexInfo(token hlogstore.UUID) (IndexCheckpointInfo, error) {
	folder := s.layout.IndexCheckpointFolder(token.String())
	if !hasMarker(folder) {
		return IndexCheckpointInfo{}, hlogstore.NewError(hlogstore.MissingMarker, folder, nil)
	}
	var info IndexCheckpointInfo
	if err := readJSON(filepath.Join(folder, IndexInfoFilename), &info); err != nil {
		return IndexCheckpointInfo{}, hlogstore.NewError(hlogstore.CorruptMetadata, folder, err)
	}
	info.Token = token
	return info, nil
}

// LoadLogInfo loads and parses the HybridLogCheckpointInfo for token, failing with
// MissingMarker if the folder lacks its completed marker and CorruptMetadata if info.dat
// doesn't parse.
func (s *CheckpointStore) LoadLogInfo(token hlogstore.UUID) (HybridLogCheckpointInfo, error) {
	folder := s.layout.LogCheckpointFolder(token.String())
	if !hasMarker(folder) {
		return HybridLogCheckpointInfo{}, hlogstore.NewError(hlogstore.MissingMarker, folder, nil)
	}
	var info HybridLogCheckpointInfo
	if err := readJSON(filepath.Join(folder, LogInfoFilename), &info); err != nil {
		return HybridLogCheckpointInfo{}, hlogstore.NewError(hlogstore.CorruptMetadata, folder, err)
	}
	info.Token = token
	return info, nil
}

func readJSON(filename string, v any) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// readDirRetry retries a transient directory-read failure (e.g. an NFS hiccup) a handful of
// times with backoff.
func readDirRetry(ctx context.Context, root string) ([]os.DirEntry, error) {
	var entries []os.DirEntry
	b := retry.WithMaxRetries(3, retry.NewConstant(50*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		es, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		entries = es
		return nil
	})
	return entries, err
}
