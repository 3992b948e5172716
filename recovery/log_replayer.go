package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/sharedcode/hlogstore"
	"github.com/sharedcode/hlogstore/fs"
)

// pollInterval is the coarse sleep recovery uses while waiting on a page's status word. A
// condition variable would work equally well; a coarse sleep is simpler to reason about and
// cheap enough at recovery's scale.
const pollInterval = 200 * time.Microsecond

// hash64 hashes a record's key for hash-bucket lookup during replay.
func hash64(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// LogReplayer walks the log tail page-by-page between startLogicalAddress and
// finalLogicalAddress, updating hash buckets per record. It is the single largest recovery
// component because it both drives PageIO's page loop and performs the per-record
// rewind/install decision that gives the fuzzy index its consistency guarantee.
type LogReplayer struct {
	pageIO *fs.PageIO
	status *fs.RecoveryStatus
	index  hlogstore.HashIndex
	hlog   hlogstore.HybridLog
}

// NewLogReplayer returns a LogReplayer driving pageIO/status against index and hlog.
func NewLogReplayer(pageIO *fs.PageIO, status *fs.RecoveryStatus, index hlogstore.HashIndex, hlog hlogstore.HybridLog) *LogReplayer {
	return &LogReplayer{pageIO: pageIO, status: status, index: index, hlog: hlog}
}

// Replay executes the page loop over [startPage, endPage) as computed by the caller into
// status.StartPage/EndPage, replaying every record in [fromAddress, untilAddress) against the
// hash index using v as the inclusion cutoff: a record with Version <= v survives. In fold-over
// mode the page frames being walked are the main log's own pages; in snapshot mode they were
// routed through status.SnapshotDevice by PageIO and get flushed back to the main log device so
// it becomes contiguous through untilAddress.
func (r *LogReplayer) Replay(ctx context.Context, fromAddress, untilAddress hlogstore.LogicalAddress, v uint16) error {
	geometry := r.hlog.Geometry()

	if err := r.primeAndWait(ctx); err != nil {
		return err
	}

	startPage := r.status.StartPage
	endPage := r.status.EndPage

	for page := startPage; page < endPage; page++ {
		if err := r.waitForRead(ctx, page); err != nil {
			return err
		}

		pageStart := geometry.StartLogicalAddress(page)
		pageEnd := geometry.EndLogicalAddress(page)

		if fromAddress < pageEnd {
			pageFrom := int64(0)
			if fromAddress > pageStart {
				pageFrom = geometry.OffsetInPage(fromAddress)
			}
			pageUntil := geometry.PageSize()
			if untilAddress < pageEnd {
				pageUntil = geometry.OffsetInPage(untilAddress)
			}
			frame := r.pageIO.Frame(page)
			startRecoveryAddress := fromAddress
			if err := r.recoverFromPage(frame, pageFrom, pageUntil, page, pageStart, v, startRecoveryAddress); err != nil {
				return err
			}
		}

		r.status.SetReadStatus(page, fs.StatusPending)
		r.status.SetFlushStatus(page, fs.StatusPending)
		r.pageIO.FlushPages(ctx, page, func(ctx context.Context, flushedPage int64, err error) {})
	}

	if err := r.waitForAllFlushes(ctx, startPage, endPage); err != nil {
		return err
	}

	if r.status.SnapshotDevice != nil {
		if err := r.status.SnapshotDevice.Close(); err != nil {
			return fmt.Errorf("recovery: closing snapshot device: %w", err)
		}
	}
	return nil
}

func (r *LogReplayer) primeAndWait(ctx context.Context) error {
	r.pageIO.PrimeRing(ctx, func(ctx context.Context, page int64, err error) {})
	remaining := r.status.EndPage - r.status.StartPage
	count := int64(r.status.Capacity)
	if remaining < count {
		count = remaining
	}
	for i := int64(0); i < count; i++ {
		if err := r.waitForRead(ctx, r.status.StartPage+i); err != nil {
			return err
		}
	}
	return nil
}

func (r *LogReplayer) waitForRead(ctx context.Context, page int64) error {
	for {
		if r.status.ReadStatus(page) == fs.StatusDone {
			return nil
		}
		if err := r.status.IOError(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (r *LogReplayer) waitForAllFlushes(ctx context.Context, startPage, endPage int64) error {
	for page := startPage; page < endPage; page++ {
		for r.status.FlushStatus(page) != fs.StatusDone {
			if err := r.status.IOError(); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
		}
	}
	return nil
}

// recoverFromPage is the inner record walk: starting at pointer = pageFrom, it scans forward
// through pageUntil, installing or rewinding each record's hash bucket slot.
func (r *LogReplayer) recoverFromPage(frame []byte, pageFrom, pageUntil int64, page int64, pageStart hlogstore.LogicalAddress, v uint16, startRecoveryAddress hlogstore.LogicalAddress) error {
	return r.recoverFromPageWithBeginAddress(frame, pageFrom, pageUntil, page, pageStart, v, startRecoveryAddress, r.hlog.BeginAddress())
}

// recoverFromPageWithBeginAddress is recoverFromPage with beginAddress taken as an explicit
// parameter rather than read from r.hlog, so the record walk can be exercised without a live
// HybridLog collaborator.
func (r *LogReplayer) recoverFromPageWithBeginAddress(frame []byte, pageFrom, pageUntil int64, page int64, pageStart hlogstore.LogicalAddress, v uint16, startRecoveryAddress, beginAddress hlogstore.LogicalAddress) error {
	pointer := pageFrom
	for pointer < pageUntil {
		recordStart := int(pointer)
		info := hlogstore.DecodeRecordInfo(frame[recordStart:])

		if info.IsNull() {
			pointer += hlogstore.RecordInfoSize // a null header is a padding gap, not a full record.
			continue
		}

		size := hlogstore.GetRecordSize(frame, recordStart)
		if info.Invalid {
			pointer += int64(size)
			continue
		}

		key := hlogstore.GetKey(frame, recordStart)
		hash := hash64(key)
		tag := uint16(hash >> hlogstore.KHashTagShift)

		bucket, slot, _, err := r.index.FindOrCreateTag(hash, tag, beginAddress)
		if err != nil {
			return fmt.Errorf("recovery: FindOrCreateTag: %w", err)
		}

		recordAddress := pageStart + hlogstore.LogicalAddress(pointer)

		if info.Version <= v {
			r.index.Install(bucket, slot, hlogstore.HashBucketEntry{Address: recordAddress, Tag: tag})
		} else {
			hlogstore.SetInvalid(frame, recordStart, true)
			// A zero PreviousAddress means no prior version exists at all, not a valid address
			// below the replay window; such a key is left uninstalled rather than pointed at 0.
			if info.PreviousAddress != 0 && info.PreviousAddress < startRecoveryAddress {
				r.index.Install(bucket, slot, hlogstore.HashBucketEntry{Address: info.PreviousAddress, Tag: tag})
			}
			// Else: leave the slot unchanged. A later page in replay order carries the
			// in-range ancestor of this key and will install it then.
		}

		pointer += int64(size)
	}
	return nil
}
