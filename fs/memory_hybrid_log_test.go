package fs

import (
	"testing"

	"github.com/sharedcode/hlogstore"
)

func TestMemoryHybridLog_ReadAfterDisposeReturnsNil(t *testing.T) {
	geometry := hlogstore.PageGeometry{PageSizeBits: 9, CapacityNumPages: 4, SegmentSizeBits: 20}
	l := NewMemoryHybridLog(geometry, 0)

	l.PopulatePage(2, []byte("page-two-bytes"))
	if l.Page(2) == nil {
		t.Fatalf("expected page 2 to be resident after PopulatePage")
	}

	l.DisposeFromMemory(2)
	if got := l.Page(2); got != nil {
		t.Fatalf("expected nil after dispose, got %v", got)
	}
}

func TestMemoryHybridLog_FlushAndEvictDisposesLikeDispose(t *testing.T) {
	geometry := hlogstore.PageGeometry{PageSizeBits: 9, CapacityNumPages: 4, SegmentSizeBits: 20}
	l := NewMemoryHybridLog(geometry, 0)

	l.PopulatePage(5, []byte("warm"))
	l.FlushAndEvict(5)
	if got := l.Page(5); got != nil {
		t.Fatalf("expected FlushAndEvict to clear the page, got %v", got)
	}
}

func TestMemoryHybridLog_SegmentOffsetsRoundTrip(t *testing.T) {
	geometry := hlogstore.PageGeometry{PageSizeBits: 9, CapacityNumPages: 4, SegmentSizeBits: 20}
	l := NewMemoryHybridLog(geometry, 0)

	offsets := []int64{0, 1024, 2048}
	l.SetSegmentOffsets(offsets)

	got := l.SegmentOffsets()
	if len(got) != len(offsets) {
		t.Fatalf("want %d offsets, got %d", len(offsets), len(got))
	}
	for i, want := range offsets {
		if got[i] != want {
			t.Fatalf("offset %d: want %d, got %d", i, want, got[i])
		}
	}
}
