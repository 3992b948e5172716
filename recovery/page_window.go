package recovery

import (
	"context"
	"fmt"

	"github.com/sharedcode/hlogstore"
	"github.com/sharedcode/hlogstore/fs"
)

// RestorePageWindow rehydrates the warm in-memory page window so steady-state operation can
// begin without faulting on every read: it reads [headPage, tailPage] into the ring, waits for
// all of them to complete, then notifies hlog of the new head/tail addresses.
func RestorePageWindow(ctx context.Context, device hlogstore.IDevice, hlog hlogstore.HybridLog, finalLogicalAddress hlogstore.LogicalAddress, capacity int) error {
	geometry := hlog.Geometry()
	tailPage := geometry.Page(finalLogicalAddress)

	headPage := tailPage - int64(geometry.HeadOffsetLagInPages)
	if finalLogicalAddress > geometry.StartLogicalAddress(tailPage) {
		headPage++
	}
	if headPage < 0 {
		headPage = 0
	}

	numPages := int(tailPage-headPage) + 1
	if numPages > capacity {
		// The final window must fit within the ring; a window wider than capacity indicates
		// headOffsetLagInPages is misconfigured relative to it.
		return fmt.Errorf("recovery: page window of %d pages exceeds ring capacity %d", numPages, capacity)
	}
	status := fs.NewRecoveryStatus(headPage, headPage+int64(numPages), capacity)
	pageIO := fs.NewPageIO(device, geometry, status)

	done := make(chan error, numPages)
	pageIO.ReadPages(ctx, headPage, numPages, func(ctx context.Context, page int64, err error) {
		if err != nil {
			done <- err
			return
		}
		hlog.PopulatePage(page, pageIO.Frame(page))
		done <- nil
	})

	for i := 0; i < numPages; i++ {
		select {
		case err := <-done:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	hlog.RecoveryReset(geometry.StartLogicalAddress(headPage), finalLogicalAddress)
	return nil
}
