package fs

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/ncw/directio"

	"github.com/sharedcode/hlogstore"
)

// FileDevice is an hlogstore.IDevice backed by a single sector-aligned file, opened with
// O_DIRECT via ncw/directio. Each call spawns a goroutine to run the blocking read/write and
// invoke its completion, since a recovery run has no dedicated I/O thread pool of its own;
// PageIO is the component that actually parallelizes reads across the ring.
type FileDevice struct {
	mu       sync.Mutex
	file     *os.File
	filename string
}

// NewFileDevice returns a FileDevice that will open filename lazily on first Initialize.
func NewFileDevice(filename string) *FileDevice {
	return &FileDevice{filename: filename}
}

// Initialize opens (creating if needed) the backing file. segmentSize is presently unused by a
// single-file device; multi-segment devices honoring per-segment object-log offsets are a
// known extension point.
func (d *FileDevice) Initialize(segmentSize int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file != nil {
		return fmt.Errorf("fs: device %s already initialized", d.filename)
	}
	f, err := directio.OpenFile(d.filename, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	d.file = f
	return nil
}

// ReadAsync reads len(buf) bytes at offset and invokes cb once complete. buf must be a
// directio.AlignedBlock for O_DIRECT to succeed; PageIO is responsible for allocating aligned
// frames.
func (d *FileDevice) ReadAsync(ctx context.Context, offset int64, buf []byte, cb func(ctx context.Context, err error)) {
	d.mu.Lock()
	f := d.file
	d.mu.Unlock()
	if f == nil {
		cb(ctx, fmt.Errorf("fs: device %s not initialized", d.filename))
		return
	}
	go func() {
		_, err := f.ReadAt(buf, offset)
		cb(ctx, err)
	}()
}

// WriteAsync writes buf at offset and invokes cb once complete.
func (d *FileDevice) WriteAsync(ctx context.Context, offset int64, buf []byte, cb func(ctx context.Context, err error)) {
	d.mu.Lock()
	f := d.file
	d.mu.Unlock()
	if f == nil {
		cb(ctx, fmt.Errorf("fs: device %s not initialized", d.filename))
		return
	}
	go func() {
		_, err := f.WriteAt(buf, offset)
		cb(ctx, err)
	}()
}

// Close releases the underlying file handle.
func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

var _ hlogstore.IDevice = (*FileDevice)(nil)

// AlignedBlock allocates a sector-aligned buffer of the given size, suitable for O_DIRECT
// transfers through FileDevice.
func AlignedBlock(size int) []byte {
	return directio.AlignedBlock(size)
}
