package hlogstore

import "context"

// IDevice is the async block device interface recovery drives I/O through. A completion
// callback fires once the requested bytes have been transferred; callbacks run on whatever
// goroutine the implementation chooses to run them on (an I/O pool, in production).
type IDevice interface {
	// ReadAsync reads len(buf) bytes starting at offset, invoking cb(ctx, err) on completion.
	ReadAsync(ctx context.Context, offset int64, buf []byte, cb func(ctx context.Context, err error))
	// WriteAsync writes buf starting at offset, invoking cb(ctx, err) on completion.
	WriteAsync(ctx context.Context, offset int64, buf []byte, cb func(ctx context.Context, err error))
	// Close releases the device's underlying file handle.
	Close() error
	// Initialize prepares the device for a given segment size (bytes per segment file).
	Initialize(segmentSize int64) error
}

// HashIndex is the subset of hashindex.Index's behavior RecoveryDriver and LogReplayer depend
// on, expressed as an interface so the replayer never reaches into a concrete hash table
// implementation.
type HashIndex interface {
	FindOrCreateTag(hash uint64, tag uint16, beginAddress LogicalAddress) (*HashBucket, int, HashBucketEntry, error)
	Install(b *HashBucket, slot int, entry HashBucketEntry)
	NumBuckets() int
	Bucket(bucketNum int) *HashBucket
	SetBucket(bucketNum int, b *HashBucket)
}

// HybridLog is the page-geometry and record-access surface the log itself exposes to recovery:
// page arithmetic, record decoding, and the handful of lifecycle calls (RecoveryReset,
// DisposeFromMemory, FlushAndEvict, PopulatePage) recovery needs to hand a warm page window
// back to steady-state operation.
type HybridLog interface {
	Geometry() PageGeometry
	// BeginAddress is the lowest logical address still valid on the log; passed to
	// FindOrCreateTag as the placeholder address for a freshly reserved bucket slot.
	BeginAddress() LogicalAddress
	// PhysicalAddress returns the in-ring-frame byte offset a logical address resolves to,
	// given the frame currently backing that page.
	PhysicalAddress(frame []byte, addr LogicalAddress) int
	// RecoveryReset installs the final head/tail addresses once recovery completes.
	RecoveryReset(headAddress, tailAddress LogicalAddress)
	// DisposeFromMemory releases a page frame's backing memory without flushing it.
	DisposeFromMemory(page int64)
	// FlushAndEvict is the read-cache tier's flush-and-evict boundary: the only read-cache
	// behavior recovery depends on.
	FlushAndEvict(page int64)
	// PopulatePage copies src into the log's live page ring at the slot for page.
	PopulatePage(page int64, src []byte)
	// SetSegmentOffsets installs the per-segment object-log offset table restored from a
	// checkpoint's recorded segment offsets.
	SetSegmentOffsets(offsets []int64)
}
