package recovery

import (
	"context"

	"github.com/sharedcode/hlogstore"
	"github.com/sharedcode/hlogstore/fs"
)

// RecoveryDriver orchestrates the full recovery sequence: find the latest compatible
// checkpoint pair, restore the fuzzy index, replay the log tail, warm the page window, and
// rehydrate session resume points. It receives all of its collaborators by explicit dependency
// injection rather than closing over a process-wide handle, so a caller can construct one per
// store instance and discard it once Recover returns.
type RecoveryDriver struct {
	layout *fs.DirectoryLayout
	store  *fs.CheckpointStore
	config hlogstore.RecoveryConfig
	index  hlogstore.HashIndex
	hlog   hlogstore.HybridLog
	device hlogstore.IDevice

	Sessions *SessionTable
}

// NewRecoveryDriver returns a RecoveryDriver wired to the given collaborators.
func NewRecoveryDriver(layout *fs.DirectoryLayout, store *fs.CheckpointStore, config hlogstore.RecoveryConfig, index hlogstore.HashIndex, hlog hlogstore.HybridLog, device hlogstore.IDevice) *RecoveryDriver {
	return &RecoveryDriver{
		layout:   layout,
		store:    store,
		config:   config,
		index:    index,
		hlog:     hlog,
		device:   device,
		Sessions: NewSessionTable(),
	}
}

// Recover runs the full recovery sequence and returns the resulting SystemState.
func (d *RecoveryDriver) Recover(ctx context.Context) (hlogstore.SystemState, error) {
	// Step 1: prune incomplete checkpoints; pick latest index and latest log tokens.
	if err := d.store.PruneIncomplete(ctx); err != nil {
		return hlogstore.SystemState{}, err
	}
	indexToken, err := d.store.LatestToken(ctx, fs.IndexOnly)
	if err != nil {
		return hlogstore.SystemState{}, err
	}
	logToken, err := d.store.LatestToken(ctx, fs.HybridLogOnly)
	if err != nil {
		return hlogstore.SystemState{}, err
	}

	// Step 2: assert both sides are individually safe.
	if !d.store.IsSafe(indexToken, fs.IndexOnly) {
		return hlogstore.SystemState{}, hlogstore.NewError(hlogstore.MissingMarker, indexToken.String(), nil)
	}
	if !d.store.IsSafe(logToken, fs.HybridLogOnly) {
		return hlogstore.SystemState{}, hlogstore.NewError(hlogstore.MissingMarker, logToken.String(), nil)
	}

	// Step 3: load both infos; assert compatibility.
	indexInfo, err := d.store.LoadIndexInfo(indexToken)
	if err != nil {
		return hlogstore.SystemState{}, err
	}
	logInfo, err := d.store.LoadLogInfo(logToken)
	if err != nil {
		return hlogstore.SystemState{}, err
	}
	if !fs.IsCompatible(indexInfo, logInfo) {
		return hlogstore.SystemState{}, hlogstore.NewError(hlogstore.Incompatible, map[string]any{
			"indexFinalLogicalAddress": indexInfo.FinalLogicalAddress,
			"logFinalLogicalAddress":   logInfo.FinalLogicalAddress,
		}, nil)
	}

	// Step 4: the new epoch is v+1; phase REST.
	state := hlogstore.SystemState{Phase: hlogstore.PhaseRest, Version: logInfo.Version + 1}

	// Step 5: restore the fuzzy hash index.
	restorer := NewIndexRestorer(d.layout)
	if err := restorer.Restore(indexInfo, d.index); err != nil {
		return hlogstore.SystemState{}, err
	}

	// Step 6: copy object-log segment offsets, if present.
	CopySegmentOffsets(logInfo.ObjectLogSegmentOffsets, d.hlog)

	// Step 7: replay the log tail in fold-over or snapshot mode per configuration.
	if err := d.replay(ctx, indexInfo, logInfo, logInfo.Version); err != nil {
		return hlogstore.SystemState{}, err
	}

	// Step 8: warm the page window up to finalLogicalAddress.
	if err := RestorePageWindow(ctx, d.device, d.hlog, logInfo.FinalLogicalAddress, d.config.Geometry.CapacityNumPages); err != nil {
		return hlogstore.SystemState{}, err
	}

	// Step 9: rehydrate per-session resume points.
	d.Sessions.Rehydrate(logInfo.ContinueTokens)

	return state, nil
}

func (d *RecoveryDriver) replay(ctx context.Context, indexInfo fs.IndexCheckpointInfo, logInfo fs.HybridLogCheckpointInfo, v uint16) error {
	geometry := d.hlog.Geometry()
	fromAddress := indexInfo.StartLogicalAddress
	untilAddress := logInfo.FinalLogicalAddress

	startAddr := fromAddress
	if logInfo.FlushedLogicalAddress < startAddr {
		startAddr = logInfo.FlushedLogicalAddress
	}
	startPage := geometry.Page(startAddr)
	endPage := geometry.PageCeil(untilAddress)

	status := fs.NewRecoveryStatus(startPage, endPage, d.config.Geometry.CapacityNumPages)

	if !d.config.FoldOverSnapshot {
		snapshotDevice, err := d.store.LoadSnapshotDevice(logInfo.Token, geometry.SegmentSize()*geometry.PageSize())
		if err != nil {
			return err
		}
		status.SnapshotDevice = snapshotDevice
		status.RecoveryDevicePageOffset = -geometry.Page(logInfo.FlushedLogicalAddress) * geometry.PageSize()
	}

	pageIO := fs.NewPageIO(d.device, geometry, status)
	replayer := NewLogReplayer(pageIO, status, d.index, d.hlog)
	return replayer.Replay(ctx, fromAddress, untilAddress, v)
}
