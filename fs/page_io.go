package fs

import (
	"context"
	"fmt"
	log "log/slog"
	"sync/atomic"

	"github.com/sharedcode/hlogstore"
)

// ioError wraps a device-layer failure so it can sit in an atomic.Value alongside its nil zero
// value (atomic.Value panics if Store is ever called with two different concrete types).
type ioError struct{ err error }

// PageStatus is a per-frame status word value for RecoveryStatus's readStatus/flushStatus
// arrays. Completions publish StatusDone with a release fence; the orchestrator polls with an
// acquire fence, so the ring needs no lock.
type PageStatus int32

const (
	StatusPending PageStatus = iota
	StatusDone
)

// RecoveryStatus is the per-run scratch state shared by PageIO and its caller: the page-loop
// bounds, the ring capacity, and the two parallel status arrays. In snapshot mode it also
// carries the device and offset translation used to read replay data from a separate file.
type RecoveryStatus struct {
	StartPage int64
	EndPage   int64
	Capacity  int

	readStatus  []int32
	flushStatus []int32

	// SnapshotDevice, when non-nil, is read from in place of the main log device.
	SnapshotDevice hlogstore.IDevice
	// RecoveryDevicePageOffset is added to a page's main-log byte offset to get its byte offset
	// within SnapshotDevice: negative the byte offset of the snapshot's first page, since the
	// snapshot file spans only [flushedLogicalAddress, finalLogicalAddress) rather than starting
	// at page 0. Page p therefore lands at (p - flushedPage) * pageSize within the snapshot file.
	RecoveryDevicePageOffset int64

	// ioErrorValue lets a failed read or flush abort the poll loop instead of leaving a frame
	// Pending forever; without it a device error is indistinguishable from "still in flight".
	ioErrorValue atomic.Value
}

// SetIOError records the first I/O failure observed on this run; subsequent calls are no-ops
// once an error is already recorded.
func (s *RecoveryStatus) SetIOError(err error) {
	if err == nil {
		return
	}
	s.ioErrorValue.CompareAndSwap(nil, ioError{err})
}

// IOError returns the first I/O failure recorded on this run, or nil if none has occurred.
func (s *RecoveryStatus) IOError() error {
	v := s.ioErrorValue.Load()
	if v == nil {
		return nil
	}
	return v.(ioError).err
}

// NewRecoveryStatus allocates status arrays for the given ring capacity, all initialized to
// StatusPending.
func NewRecoveryStatus(startPage, endPage int64, capacity int) *RecoveryStatus {
	return &RecoveryStatus{
		StartPage:   startPage,
		EndPage:     endPage,
		Capacity:    capacity,
		readStatus:  make([]int32, capacity),
		flushStatus: make([]int32, capacity),
	}
}

func (s *RecoveryStatus) idx(page int64) int {
	m := page % int64(s.Capacity)
	if m < 0 {
		m += int64(s.Capacity)
	}
	return int(m)
}

// SetReadStatus stores status for page with a release fence (atomic store).
func (s *RecoveryStatus) SetReadStatus(page int64, status PageStatus) {
	atomic.StoreInt32(&s.readStatus[s.idx(page)], int32(status))
}

// ReadStatus loads status for page with an acquire fence (atomic load).
func (s *RecoveryStatus) ReadStatus(page int64) PageStatus {
	return PageStatus(atomic.LoadInt32(&s.readStatus[s.idx(page)]))
}

// SetFlushStatus stores status for page with a release fence.
func (s *RecoveryStatus) SetFlushStatus(page int64, status PageStatus) {
	atomic.StoreInt32(&s.flushStatus[s.idx(page)], int32(status))
}

// FlushStatus loads status for page with an acquire fence.
func (s *RecoveryStatus) FlushStatus(page int64) PageStatus {
	return PageStatus(atomic.LoadInt32(&s.flushStatus[s.idx(page)]))
}

// PageIO owns a fixed ring of page frames and drives async read/flush against a backing
// device. It never allocates beyond the ring: flushing a page recycles its frame by
// immediately issuing the read-ahead for page+capacity.
type PageIO struct {
	device   hlogstore.IDevice
	geometry hlogstore.PageGeometry
	capacity int
	frames   [][]byte
	status   *RecoveryStatus
}

// NewPageIO returns a PageIO with capacity frames, each sized to one log page, backed by
// device. status is the shared RecoveryStatus the orchestrator polls.
func NewPageIO(device hlogstore.IDevice, geometry hlogstore.PageGeometry, status *RecoveryStatus) *PageIO {
	capacity := status.Capacity
	frames := make([][]byte, capacity)
	for i := range frames {
		frames[i] = AlignedBlock(int(geometry.PageSize()))
	}
	return &PageIO{
		device:   device,
		geometry: geometry,
		capacity: capacity,
		frames:   frames,
		status:   status,
	}
}

// Frame returns the ring frame currently assigned to page (valid once its read completes).
func (p *PageIO) Frame(page int64) []byte {
	return p.frames[p.status.idx(page)]
}

func (p *PageIO) pageOffset(page int64) int64 {
	return page * p.geometry.PageSize()
}

// ReadPages issues count async reads starting at startPage, one per ring frame at page mod C.
// Each frame's bytes are populated in place; completion(ctx, page, err) fires per page once its
// read lands. In snapshot mode (status.SnapshotDevice != nil) reads are routed to the snapshot
// device with RecoveryDevicePageOffset applied instead of the main log device.
func (p *PageIO) ReadPages(ctx context.Context, startPage int64, count int, completion func(ctx context.Context, page int64, err error)) {
	device := p.device
	offsetAdjust := int64(0)
	if p.status.SnapshotDevice != nil {
		device = p.status.SnapshotDevice
		offsetAdjust = p.status.RecoveryDevicePageOffset
	}
	for i := 0; i < count; i++ {
		page := startPage + int64(i)
		if page >= p.status.EndPage {
			break
		}
		frame := p.Frame(page)
		offset := p.pageOffset(page) + offsetAdjust
		device.ReadAsync(ctx, offset, frame, func(ctx context.Context, err error) {
			if err != nil {
				log.Error("page read failed", "page", page, "error", err)
				// Recording the error lets a poll loop fail fast instead of hanging forever on a
				// frame that will never reach StatusDone.
				p.status.SetIOError(hlogstore.NewError(hlogstore.IoFailed, page, fmt.Errorf("fs: read page %d: %w", page, err)))
				completion(ctx, page, err)
				return
			}
			p.status.SetReadStatus(page, StatusDone)
			completion(ctx, page, nil)
		})
	}
}

// FlushPages asynchronously writes the ring frame for page back to the primary log device. On
// completion, if page+capacity < endPage, FlushPages automatically issues a read for
// page+capacity, recycling the frame — the read-ahead-after-flush discipline that bounds
// memory to a fixed number of frames regardless of how long the replay window is.
func (p *PageIO) FlushPages(ctx context.Context, page int64, completion func(ctx context.Context, page int64, err error)) {
	frame := p.Frame(page)
	offset := p.pageOffset(page)
	p.device.WriteAsync(ctx, offset, frame, func(ctx context.Context, err error) {
		if err != nil {
			log.Error("page flush failed", "page", page, "error", err)
			p.status.SetIOError(hlogstore.NewError(hlogstore.IoFailed, page, fmt.Errorf("fs: flush page %d: %w", page, err)))
			completion(ctx, page, err)
			return
		}
		p.status.SetFlushStatus(page, StatusDone)
		nextPage := page + int64(p.capacity)
		if nextPage < p.status.EndPage {
			p.status.SetReadStatus(nextPage, StatusPending)
			p.ReadPages(ctx, nextPage, 1, func(ctx context.Context, readPage int64, readErr error) {})
		}
		completion(ctx, page, nil)
	})
}

// PrimeRing issues the initial batch of reads that fills the ring at recovery start: the first
// min(capacity, endPage-startPage) pages.
func (p *PageIO) PrimeRing(ctx context.Context, completion func(ctx context.Context, page int64, err error)) {
	remaining := p.status.EndPage - p.status.StartPage
	count := int64(p.capacity)
	if remaining < count {
		count = remaining
	}
	p.ReadPages(ctx, p.status.StartPage, int(count), completion)
}

// Close closes the backing device (and snapshot device, if any).
func (p *PageIO) Close() error {
	if p.status.SnapshotDevice != nil {
		if err := p.status.SnapshotDevice.Close(); err != nil {
			return fmt.Errorf("fs: closing snapshot device: %w", err)
		}
	}
	return p.device.Close()
}
