package vmm

import (
	"fmt"

	"github.com/wxuefei/arc/mm"
	"github.com/wxuefei/arc/mm/pmm"
)

// RangeMapper backs and unbacks a multi-frame virtual span with freshly
// granted frames.
//
// Contract: a failed AllocRange leaves zero partial ownership behind — every
// frame granted and every page mapped during the attempt is released before
// the error returns. FreeRange tolerates pages with no mapping, so a span can
// be freed through the same path whether or not its backing ever completed.
type RangeMapper interface {
	AllocRange(start mm.Addr, size uintptr, access mm.Access) error
	FreeRange(start mm.Addr, size uintptr)
}

// Ranger is the RangeMapper built from a frame source and a page mapper.
type Ranger struct {
	Frames pmm.FrameSource
	Pages  Mapper
}

// AllocRange maps size bytes starting at start, one fresh frame per page.
// On any failure all pages mapped so far are unwound and their frames
// returned before the error is reported.
func (r *Ranger) AllocRange(start mm.Addr, size uintptr, access mm.Access) error {
	if !mm.IsAligned(start) {
		return ErrUnaligned
	}
	size = mm.SizeAlign(size)

	for off := uintptr(0); off < size; off += mm.FrameSize {
		addr := start + mm.Addr(off)

		frame, err := r.Frames.Alloc()
		if err != nil {
			r.unwind(start, addr)
			return fmt.Errorf("vmm: backing %#x+%#x: %w", start, size, err)
		}
		if err := r.Pages.Map(addr, frame, access); err != nil {
			r.Frames.Free(frame)
			r.unwind(start, addr)
			return fmt.Errorf("vmm: backing %#x+%#x: %w", start, size, err)
		}
	}
	return nil
}

// FreeRange unbacks size bytes starting at start, skipping unmapped pages.
func (r *Ranger) FreeRange(start mm.Addr, size uintptr) {
	size = mm.SizeAlign(size)
	for off := uintptr(0); off < size; off += mm.FrameSize {
		if f := r.Pages.Unmap(start + mm.Addr(off)); f.Valid() {
			r.Frames.Free(f)
		}
	}
}

// unwind releases the pages of [start, end) mapped by a failed AllocRange.
func (r *Ranger) unwind(start, end mm.Addr) {
	for addr := start; addr < end; addr += mm.FrameSize {
		if f := r.Pages.Unmap(addr); f.Valid() {
			r.Frames.Free(f)
		}
	}
}
