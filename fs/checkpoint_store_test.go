package fs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sharedcode/hlogstore"
)

func writeCompletedIndexCheckpoint(t *testing.T, layout *DirectoryLayout, token hlogstore.UUID, final hlogstore.LogicalAddress) {
	t.Helper()
	folder := layout.IndexCheckpointFolder(token.String())
	if err := os.MkdirAll(folder, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	info := IndexCheckpointInfo{Token: token, FinalLogicalAddress: final, NumBuckets: 16}
	data, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("marshal info: %v", err)
	}
	if err := os.WriteFile(filepath.Join(folder, IndexInfoFilename), data, 0644); err != nil {
		t.Fatalf("write info: %v", err)
	}
	if err := os.WriteFile(filepath.Join(folder, CompletedMarkerFilename), nil, 0644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
}

func TestCheckpointStore_PruneIncomplete(t *testing.T) {
	root := t.TempDir()
	layout := NewDirectoryLayout(root)
	if err := layout.EnsureLayout(); err != nil {
		t.Fatalf("ensure layout: %v", err)
	}
	store := NewCheckpointStore(layout)
	ctx := context.Background()

	good := hlogstore.NewUUID()
	writeCompletedIndexCheckpoint(t, layout, good, 100)

	bad := hlogstore.NewUUID()
	badFolder := layout.IndexCheckpointFolder(bad.String())
	if err := os.MkdirAll(badFolder, 0755); err != nil {
		t.Fatalf("mkdir bad: %v", err)
	}

	if err := store.PruneIncomplete(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	if _, err := os.Stat(badFolder); !os.IsNotExist(err) {
		t.Fatalf("expected incomplete folder to be pruned, stat err = %v", err)
	}
	if _, err := os.Stat(layout.IndexCheckpointFolder(good.String())); err != nil {
		t.Fatalf("expected complete folder to survive: %v", err)
	}
}

func TestCheckpointStore_LatestToken(t *testing.T) {
	root := t.TempDir()
	layout := NewDirectoryLayout(root)
	layout.EnsureLayout()
	store := NewCheckpointStore(layout)
	ctx := context.Background()

	older := hlogstore.NewUUID()
	writeCompletedIndexCheckpoint(t, layout, older, 100)
	time.Sleep(5 * time.Millisecond)
	newer := hlogstore.NewUUID()
	writeCompletedIndexCheckpoint(t, layout, newer, 200)

	got, err := store.LatestToken(ctx, IndexOnly)
	if err != nil {
		t.Fatalf("latest token: %v", err)
	}
	if got != newer {
		t.Fatalf("want newest token %v, got %v", newer, got)
	}
}

func TestCheckpointStore_LatestToken_NoCheckpoint(t *testing.T) {
	root := t.TempDir()
	layout := NewDirectoryLayout(root)
	layout.EnsureLayout()
	store := NewCheckpointStore(layout)

	_, err := store.LatestToken(context.Background(), IndexOnly)
	if err == nil {
		t.Fatalf("expected NoCheckpoint error")
	}
	var hErr *hlogstore.Error
	if !errors.As(err, &hErr) || hErr.Code != hlogstore.NoCheckpoint {
		t.Fatalf("expected NoCheckpoint error code, got %v", err)
	}
}

func TestCheckpointStore_LoadIndexInfo_MissingMarker(t *testing.T) {
	root := t.TempDir()
	layout := NewDirectoryLayout(root)
	layout.EnsureLayout()
	store := NewCheckpointStore(layout)

	token := hlogstore.NewUUID()
	folder := layout.IndexCheckpointFolder(token.String())
	os.MkdirAll(folder, 0755)

	_, err := store.LoadIndexInfo(token)
	var hErr *hlogstore.Error
	if !errors.As(err, &hErr) || hErr.Code != hlogstore.MissingMarker {
		t.Fatalf("expected MissingMarker error, got %v", err)
	}
}

func TestCheckpointStore_LoadIndexInfo_CorruptMetadata(t *testing.T) {
	root := t.TempDir()
	layout := NewDirectoryLayout(root)
	layout.EnsureLayout()
	store := NewCheckpointStore(layout)

	token := hlogstore.NewUUID()
	folder := layout.IndexCheckpointFolder(token.String())
	os.MkdirAll(folder, 0755)
	os.WriteFile(filepath.Join(folder, IndexInfoFilename), []byte("not json"), 0644)
	os.WriteFile(filepath.Join(folder, CompletedMarkerFilename), nil, 0644)

	_, err := store.LoadIndexInfo(token)
	var hErr *hlogstore.Error
	if !errors.As(err, &hErr) || hErr.Code != hlogstore.CorruptMetadata {
		t.Fatalf("expected CorruptMetadata error, got %v", err)
	}
}

func TestIsCompatible(t *testing.T) {
	idx := IndexCheckpointInfo{FinalLogicalAddress: 100}
	compatible := HybridLogCheckpointInfo{FinalLogicalAddress: 100}
	incompatible := HybridLogCheckpointInfo{FinalLogicalAddress: 99}

	if !IsCompatible(idx, compatible) {
		t.Fatalf("expected L_i <= L_h to be compatible")
	}
	if IsCompatible(idx, incompatible) {
		t.Fatalf("expected L_i > L_h to be incompatible")
	}
}
