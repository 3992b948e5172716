package fs

import (
	"sync"

	"github.com/sharedcode/hlogstore"
)

// MemoryHybridLog is a minimal hlogstore.HybridLog backed by an in-process page ring. The real
// hybrid log's steady-state concurrency protocol, on-disk segment files, and read-cache tiering
// live outside the recovery core; this is the reference implementation recovery exercises in
// tests and the smallest concrete collaborator a caller can wire in without building a full
// store first.
type MemoryHybridLog struct {
	mu             sync.Mutex
	geometry       hlogstore.PageGeometry
	beginAddress   hlogstore.LogicalAddress
	headAddress    hlogstore.LogicalAddress
	tailAddress    hlogstore.LogicalAddress
	pages          map[int64][]byte
	segmentOffsets []int64
}

// NewMemoryHybridLog returns a MemoryHybridLog with the given geometry and begin address.
func NewMemoryHybridLog(geometry hlogstore.PageGeometry, beginAddress hlogstore.LogicalAddress) *MemoryHybridLog {
	return &MemoryHybridLog{
		geometry:     geometry,
		beginAddress: beginAddress,
		pages:        make(map[int64][]byte),
	}
}

func (l *MemoryHybridLog) Geometry() hlogstore.PageGeometry { return l.geometry }

func (l *MemoryHybridLog) BeginAddress() hlogstore.LogicalAddress { return l.beginAddress }

// PhysicalAddress returns the offset of addr within frame, which is always just the address's
// in-page offset since each frame holds exactly one page.
func (l *MemoryHybridLog) PhysicalAddress(frame []byte, addr hlogstore.LogicalAddress) int {
	return int(l.geometry.OffsetInPage(addr))
}

// RecoveryReset installs the final head/tail addresses once recovery completes.
func (l *MemoryHybridLog) RecoveryReset(headAddress, tailAddress hlogstore.LogicalAddress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.headAddress = headAddress
	l.tailAddress = tailAddress
}

// HeadAddress returns the currently resident window's low watermark.
func (l *MemoryHybridLog) HeadAddress() hlogstore.LogicalAddress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.headAddress
}

// TailAddress returns the log's logical tail.
func (l *MemoryHybridLog) TailAddress() hlogstore.LogicalAddress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tailAddress
}

// DisposeFromMemory releases a page's backing memory without flushing it.
func (l *MemoryHybridLog) DisposeFromMemory(page int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pages, page)
}

// FlushAndEvict is the read-cache tier's flush-and-evict boundary: here it is equivalent to
// DisposeFromMemory since MemoryHybridLog has no separate read-cache tier.
func (l *MemoryHybridLog) FlushAndEvict(page int64) {
	l.DisposeFromMemory(page)
}

// PopulatePage copies src into the log's live page ring at page.
func (l *MemoryHybridLog) PopulatePage(page int64, src []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	buf := make([]byte, len(src))
	copy(buf, src)
	l.pages[page] = buf
}

// Page returns the resident bytes for page, or nil if it isn't currently warm.
func (l *MemoryHybridLog) Page(page int64) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pages[page]
}

// SetSegmentOffsets installs the per-segment object-log offset table restored from a checkpoint.
func (l *MemoryHybridLog) SetSegmentOffsets(offsets []int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.segmentOffsets = offsets
}

// SegmentOffsets returns the currently installed per-segment object-log offset table.
func (l *MemoryHybridLog) SegmentOffsets() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.segmentOffsets
}

var _ hlogstore.HybridLog = (*MemoryHybridLog)(nil)
