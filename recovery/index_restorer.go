package recovery

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sharedcode/hlogstore"
	"github.com/sharedcode/hlogstore/fs"
)

// IndexRestorer materializes the fuzzy hash index from its checkpoint files into the live hash
// table. The index it installs is fuzzy: buckets may point past the index snapshot's own
// finalLogicalAddress but never past the compatible log checkpoint's finalLogicalAddress, a
// compatibility fact enforced upstream by fs.IsCompatible rather than by IndexRestorer itself,
// which simply installs whatever bytes the checkpoint wrote.
type IndexRestorer struct {
	layout *fs.DirectoryLayout
}

// NewIndexRestorer returns an IndexRestorer resolving checkpoint files through layout.
func NewIndexRestorer(layout *fs.DirectoryLayout) *IndexRestorer {
	return &IndexRestorer{layout: layout}
}

// Restore reads the ht.<n>.dat bucket-page files named by info and installs each as a primary
// bucket of index.
func (r *IndexRestorer) Restore(info fs.IndexCheckpointInfo, index hlogstore.HashIndex) error {
	if info.NumBuckets != index.NumBuckets() {
		return fmt.Errorf("recovery: index checkpoint has %d buckets, live index has %d", info.NumBuckets, index.NumBuckets())
	}
	folder := r.layout.IndexCheckpointFolder(info.Token.String())
	for n := 0; n < info.NumHashTablePages; n++ {
		data, err := os.ReadFile(filepath.Join(folder, fs.HashTablePageFilename(n)))
		if err != nil {
			return hlogstore.NewError(hlogstore.CorruptMetadata, folder, err)
		}
		bucket := hlogstore.UnmarshalHashBucket(data)
		index.SetBucket(n, bucket)
	}
	return nil
}

// CopySegmentOffsets installs offsets into hlog's per-segment object-log offset table, letting
// the log locate variable-length payloads in an accompanying object-log file.
func CopySegmentOffsets(offsets []int64, hlog hlogstore.HybridLog) {
	if len(offsets) == 0 {
		return
	}
	hlog.SetSegmentOffsets(offsets)
}
