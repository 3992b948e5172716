package fs

import (
	"context"
	"sync"
	"testing"

	"github.com/sharedcode/hlogstore"
)

// memDevice is a minimal in-memory hlogstore.IDevice stand-in so PageIO tests don't depend on
// O_DIRECT alignment or a real filesystem.
type memDevice struct {
	mu          sync.Mutex
	data        []byte
	readCalls   int
	readOffsets []int64
}

func newMemDevice(size int64) *memDevice {
	return &memDevice{data: make([]byte, size)}
}

func (d *memDevice) Initialize(segmentSize int64) error { return nil }

func (d *memDevice) ReadAsync(ctx context.Context, offset int64, buf []byte, cb func(ctx context.Context, err error)) {
	d.mu.Lock()
	copy(buf, d.data[offset:offset+int64(len(buf))])
	d.readCalls++
	d.readOffsets = append(d.readOffsets, offset)
	d.mu.Unlock()
	cb(ctx, nil)
}

func (d *memDevice) WriteAsync(ctx context.Context, offset int64, buf []byte, cb func(ctx context.Context, err error)) {
	d.mu.Lock()
	copy(d.data[offset:offset+int64(len(buf))], buf)
	d.mu.Unlock()
	cb(ctx, nil)
}

func (d *memDevice) Close() error { return nil }

var _ hlogstore.IDevice = (*memDevice)(nil)

func testGeometry() hlogstore.PageGeometry {
	return hlogstore.PageGeometry{PageSizeBits: 9, CapacityNumPages: 4, SegmentSizeBits: 20}
}

func TestPageIO_PrimeRingReadsFirstCPages(t *testing.T) {
	geometry := testGeometry()
	device := newMemDevice(geometry.PageSize() * 20)
	status := NewRecoveryStatus(0, 10, geometry.CapacityNumPages)
	pio := NewPageIO(device, geometry, status)
	ctx := context.Background()

	var mu sync.Mutex
	completed := map[int64]bool{}
	pio.PrimeRing(ctx, func(ctx context.Context, page int64, err error) {
		if err != nil {
			t.Fatalf("unexpected read error: %v", err)
		}
		mu.Lock()
		completed[page] = true
		mu.Unlock()
	})

	for page := int64(0); page < 4; page++ {
		if !completed[page] {
			t.Fatalf("expected page %d to have been read during priming", page)
		}
		if pio.status.ReadStatus(page) != StatusDone {
			t.Fatalf("expected page %d read status Done", page)
		}
	}
}

func TestPageIO_FlushTriggersReadAhead(t *testing.T) {
	geometry := testGeometry()
	device := newMemDevice(geometry.PageSize() * 20)
	endPage := int64(10)
	status := NewRecoveryStatus(0, endPage, geometry.CapacityNumPages)
	pio := NewPageIO(device, geometry, status)
	ctx := context.Background()

	pio.PrimeRing(ctx, func(ctx context.Context, page int64, err error) {})
	device.mu.Lock()
	readsBeforeFlush := device.readCalls
	device.mu.Unlock()

	flushed := make(chan int64, 1)
	pio.FlushPages(ctx, 0, func(ctx context.Context, page int64, err error) {
		if err != nil {
			t.Fatalf("unexpected flush error: %v", err)
		}
		flushed <- page
	})

	<-flushed

	device.mu.Lock()
	readsAfterFlush := device.readCalls
	device.mu.Unlock()
	if readsAfterFlush != readsBeforeFlush+1 {
		t.Fatalf("expected exactly one read-ahead issue after flush, reads went from %d to %d", readsBeforeFlush, readsAfterFlush)
	}
	if pio.status.FlushStatus(0) != StatusDone {
		t.Fatalf("expected flushed page 0 status Done")
	}
}

// TestPageIO_BoundedMemoryReplay_FixedFrameCount drives a 1000-page window through a
// capacity-4 ring end to end (prime, then flush every page in order) and checks the ring issues
// exactly 1000 reads and 1000 flushes: the read-ahead-after-flush discipline must recycle frames
// rather than grow the ring as the window widens.
func TestPageIO_BoundedMemoryReplay_FixedFrameCount(t *testing.T) {
	geometry := testGeometry()
	geometry.CapacityNumPages = 4
	const endPage = 1000
	device := newMemDevice(geometry.PageSize() * endPage)
	status := NewRecoveryStatus(0, endPage, geometry.CapacityNumPages)
	pio := NewPageIO(device, geometry, status)
	ctx := context.Background()

	pio.PrimeRing(ctx, func(ctx context.Context, page int64, err error) {})

	var flushCount int
	for page := int64(0); page < endPage; page++ {
		flushed := make(chan struct{})
		pio.FlushPages(ctx, page, func(ctx context.Context, p int64, err error) {
			if err != nil {
				t.Fatalf("flush page %d: %v", p, err)
			}
			close(flushed)
		})
		<-flushed
		flushCount++
	}

	device.mu.Lock()
	reads := device.readCalls
	device.mu.Unlock()

	if reads != endPage {
		t.Fatalf("want exactly %d reads across the whole replay, got %d", endPage, reads)
	}
	if flushCount != endPage {
		t.Fatalf("want exactly %d flushes, got %d", endPage, flushCount)
	}
	if len(pio.frames) != geometry.CapacityNumPages {
		t.Fatalf("ring must stay at %d frames regardless of window width, got %d", geometry.CapacityNumPages, len(pio.frames))
	}
}

// TestPageIO_SnapshotModeReadsAtFlushedPageRelativeOffset sets RecoveryDevicePageOffset the way
// RecoveryDriver does, to -flushedPage*pageSize, and checks a read for logical page p lands at
// (p-flushedPage)*pageSize within the snapshot device rather than at the main log's own offset
// for p.
func TestPageIO_SnapshotModeReadsAtFlushedPageRelativeOffset(t *testing.T) {
	geometry := testGeometry()
	const flushedPage = int64(50)
	const startPage = flushedPage
	const endPage = flushedPage + 4

	snapshotDevice := newMemDevice(geometry.PageSize() * 4)
	status := NewRecoveryStatus(startPage, endPage, geometry.CapacityNumPages)
	status.SnapshotDevice = snapshotDevice
	status.RecoveryDevicePageOffset = -flushedPage * geometry.PageSize()

	mainDevice := newMemDevice(geometry.PageSize() * (endPage + 10))
	pio := NewPageIO(mainDevice, geometry, status)
	ctx := context.Background()

	pio.PrimeRing(ctx, func(ctx context.Context, page int64, err error) {
		if err != nil {
			t.Fatalf("unexpected read error: %v", err)
		}
	})

	mainDevice.mu.Lock()
	mainReads := mainDevice.readCalls
	mainDevice.mu.Unlock()
	if mainReads != 0 {
		t.Fatalf("snapshot-mode reads must never touch the main log device, got %d reads", mainReads)
	}

	snapshotDevice.mu.Lock()
	defer snapshotDevice.mu.Unlock()
	if len(snapshotDevice.readOffsets) != 4 {
		t.Fatalf("want 4 reads issued against the snapshot device, got %d", len(snapshotDevice.readOffsets))
	}
	for i, offset := range snapshotDevice.readOffsets {
		page := startPage + int64(i)
		want := (page - flushedPage) * geometry.PageSize()
		if offset != want {
			t.Fatalf("page %d: want snapshot offset %d, got %d", page, want, offset)
		}
	}
}

func TestPageIO_FlushNoReadAheadPastEndPage(t *testing.T) {
	geometry := testGeometry()
	device := newMemDevice(geometry.PageSize() * 20)
	// endPage == capacity: page 0 + capacity is not < endPage, so no read-ahead should fire.
	status := NewRecoveryStatus(0, int64(geometry.CapacityNumPages), geometry.CapacityNumPages)
	pio := NewPageIO(device, geometry, status)
	ctx := context.Background()

	pio.PrimeRing(ctx, func(ctx context.Context, page int64, err error) {})

	device.mu.Lock()
	readsBeforeFlush := device.readCalls
	device.mu.Unlock()

	flushed := make(chan int64, 1)
	pio.FlushPages(ctx, 0, func(ctx context.Context, page int64, err error) {
		flushed <- page
	})
	<-flushed

	device.mu.Lock()
	readsAfterFlush := device.readCalls
	device.mu.Unlock()
	if readsAfterFlush != readsBeforeFlush {
		t.Fatalf("expected no read-ahead beyond endPage, read count changed from %d to %d", readsBeforeFlush, readsAfterFlush)
	}
}
