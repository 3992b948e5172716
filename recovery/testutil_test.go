package recovery

import (
	"context"
	"sync"

	"github.com/sharedcode/hlogstore"
)

// fakeDevice is a minimal in-memory hlogstore.IDevice used to drive RecoveryDriver and
// LogReplayer tests without touching the filesystem or O_DIRECT alignment.
type fakeDevice struct {
	mu   sync.Mutex
	data []byte
}

func newFakeDevice(size int64) *fakeDevice {
	return &fakeDevice{data: make([]byte, size)}
}

func (d *fakeDevice) Initialize(segmentSize int64) error { return nil }

func (d *fakeDevice) ReadAsync(ctx context.Context, offset int64, buf []byte, cb func(ctx context.Context, err error)) {
	d.mu.Lock()
	copy(buf, d.data[offset:offset+int64(len(buf))])
	d.mu.Unlock()
	cb(ctx, nil)
}

func (d *fakeDevice) WriteAsync(ctx context.Context, offset int64, buf []byte, cb func(ctx context.Context, err error)) {
	d.mu.Lock()
	copy(d.data[offset:offset+int64(len(buf))], buf)
	d.mu.Unlock()
	cb(ctx, nil)
}

func (d *fakeDevice) Close() error { return nil }

var _ hlogstore.IDevice = (*fakeDevice)(nil)
