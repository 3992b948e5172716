package hlogstore

// LogicalAddress is a monotonically increasing 64-bit offset into the logical log. The low
// bits encode an offset within a page; the high bits encode a page number. The split point is
// determined by a PageGeometry's PageSizeBits, since page size is a store-construction-time
// configuration value, not a global constant.
type LogicalAddress uint64

// PageGeometry converts between logical addresses, page numbers, and in-page offsets. It is the
// Go expression of the hybrid log's page geometry interface (GetPage, GetOffsetInPage,
// GetPageSize, GetStartLogicalAddress, ...).
type PageGeometry struct {
	// PageSizeBits is the number of low bits of a LogicalAddress that encode the in-page offset.
	PageSizeBits uint
	// CapacityNumPages is the ring's frame count.
	CapacityNumPages int
	// HeadOffsetLagInPages controls how many pages behind the tail the warm window's head sits.
	HeadOffsetLagInPages int
	// SegmentSizeBits is the number of low bits of a page number that identify a segment-local
	// page; segments group pages into files on disk.
	SegmentSizeBits uint
}

// PageSize returns the number of bytes addressable within one page.
func (g PageGeometry) PageSize() int64 {
	return int64(1) << g.PageSizeBits
}

// Page returns the page number an address falls in.
func (g PageGeometry) Page(addr LogicalAddress) int64 {
	return int64(addr >> g.PageSizeBits)
}

// OffsetInPage returns the in-page byte offset of an address.
func (g PageGeometry) OffsetInPage(addr LogicalAddress) int64 {
	mask := (int64(1) << g.PageSizeBits) - 1
	return int64(addr) & mask
}

// PageIndex maps a page number onto a ring-buffer frame slot: pageNumber mod ringCapacity.
func (g PageGeometry) PageIndex(page int64) int {
	c := int64(g.CapacityNumPages)
	idx := page % c
	if idx < 0 {
		idx += c
	}
	return int(idx)
}

// StartLogicalAddress returns the first logical address of a page.
func (g PageGeometry) StartLogicalAddress(page int64) LogicalAddress {
	return LogicalAddress(page << g.PageSizeBits)
}

// EndLogicalAddress returns the first logical address of the page following page.
func (g PageGeometry) EndLogicalAddress(page int64) LogicalAddress {
	return g.StartLogicalAddress(page + 1)
}

// SegmentSize returns the number of pages per segment file.
func (g PageGeometry) SegmentSize() int64 {
	return int64(1) << g.SegmentSizeBits
}

// SegmentForPage returns the segment index a page belongs to and the page's offset within it.
func (g PageGeometry) SegmentForPage(page int64) (segment int64, offsetInSegment int64) {
	ss := g.SegmentSize()
	return page / ss, page % ss
}

// PageCeil rounds a logical address up to the start of the next page if it isn't already
// page-aligned; used to compute an end page from an exclusive until-address.
func (g PageGeometry) PageCeil(addr LogicalAddress) int64 {
	page := g.Page(addr)
	if g.OffsetInPage(addr) == 0 {
		return page
	}
	return page + 1
}
