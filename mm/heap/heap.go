package heap

import (
	"fmt"
	"os"
	"sync"

	"github.com/wxuefei/arc/mm"
	"github.com/wxuefei/arc/mm/pmm"
	"github.com/wxuefei/arc/mm/vmm"
)

// Runtime debug flag for heap event logging - controlled by ARC_LOG_HEAP env var.
var logHeap = os.Getenv("ARC_LOG_HEAP") != ""

// Stats holds heap operation counters.
type Stats struct {
	Reserves     int // Reserve calls that returned a segment
	Allocs       int // Alloc calls that returned a segment
	Frees        int // Free calls
	Splits       int // segments carved during lookup
	SplitsDenied int // splits skipped for lack of a descriptor frame or mapping
	MergesNext   int // coalesces with the following segment
	MergesPrev   int // coalesces with the preceding segment
	Rollbacks    int // allocations undone after a failed backing
}

// Heap carves a fixed virtual window into variable-sized segments. One
// instance manages one window for the lifetime of the kernel; there is no
// teardown. All public operations serialize on one internal lock.
//
// Descriptors live in a table indexed by handle. Each segment additionally
// dedicates the frame of address space directly below its usable range to
// its descriptor: that frame is taken from the frame source and mapped when
// the segment is carved, and unmapped and returned when a merge removes the
// segment. The window is therefore covered entirely by usable ranges and
// descriptor frames, with no gaps.
type Heap struct {
	mu     sync.Mutex
	frames pmm.FrameSource
	pages  vmm.Mapper
	ranger vmm.RangeMapper

	low  mm.Addr // first byte of the window, inclusive
	high mm.Addr // last byte of the window, inclusive

	segs    []segment         // descriptor table
	retired []int32           // recycled descriptor handles
	byStart map[mm.Addr]int32 // usable-range start -> handle
	head    int32             // lowest-addressed segment

	stats Stats
}

// New initializes a heap over the window [low, high]. It takes one frame for
// the root descriptor and maps it read/write at low; the root segment covers
// the rest of the window. Runs before any concurrent access and takes no
// lock. Errors here mean the kernel cannot boot.
func New(low, high mm.Addr, frames pmm.FrameSource, pages vmm.Mapper, ranger vmm.RangeMapper) (*Heap, error) {
	if !mm.IsAligned(low) || !mm.IsAligned(high+1) {
		return nil, fmt.Errorf("heap: window %#x-%#x not frame aligned", uintptr(low), uintptr(high))
	}
	if high <= low || uintptr(high-low)+1 < 2*mm.FrameSize {
		return nil, ErrWindowTooSmall
	}

	frame, err := frames.Alloc()
	if err != nil {
		return nil, fmt.Errorf("heap: no frame for root descriptor: %w", err)
	}
	if err := pages.Map(low, frame, mm.Read|mm.Write); err != nil {
		frames.Free(frame)
		return nil, fmt.Errorf("heap: mapping root descriptor: %w", err)
	}

	h := &Heap{
		frames:  frames,
		pages:   pages,
		ranger:  ranger,
		low:     low,
		high:    high,
		byStart: make(map[mm.Addr]int32),
	}

	root := h.newSeg()
	h.segs[root] = segment{
		state: Free,
		start: low + mm.FrameSize,
		end:   high,
		tag:   tagFor(low + mm.FrameSize),
		prev:  none,
		next:  none,
	}
	h.byStart[low+mm.FrameSize] = root
	h.head = root
	return h, nil
}

// Reserve claims a segment of at least size usable bytes without backing it.
// The caller maps its own physical or device frames into the returned range.
// Fails with ErrNoSpace when no free segment fits; the heap never blocks or
// retries.
func (h *Heap) Reserve(size uintptr) (mm.Addr, error) {
	if size == 0 {
		return 0, ErrBadSize
	}
	size = mm.SizeAlign(size)

	h.mu.Lock()
	defer h.mu.Unlock()

	idx, ok := h.findFit(size)
	if !ok {
		return 0, ErrNoSpace
	}
	h.segs[idx].state = Reserved
	h.stats.Reserves++
	return h.segs[idx].start, nil
}

// Alloc claims a segment of at least size usable bytes and backs its whole
// usable range with fresh frames under the given rights. If backing fails
// the segment is freed again (coalescing as usual) and the error reports the
// cause; no frame stays owned.
func (h *Heap) Alloc(size uintptr, access mm.Access) (mm.Addr, error) {
	if size == 0 {
		return 0, ErrBadSize
	}
	size = mm.SizeAlign(size)

	h.mu.Lock()
	defer h.mu.Unlock()

	idx, ok := h.findFit(size)
	if !ok {
		return 0, ErrNoSpace
	}

	seg := &h.segs[idx]
	seg.state = Allocated
	seg.access = access

	if err := h.ranger.AllocRange(seg.start, seg.size(), access); err != nil {
		// AllocRange guarantees zero partial ownership on failure, so the
		// generic free path releases exactly what is still owned: nothing
		// for the usable range, plus any descriptor frames merged away.
		h.stats.Rollbacks++
		if logHeap {
			fmt.Fprintf(os.Stderr, "[HEAP] rollback: backing %#x failed: %v\n", uintptr(seg.start), err)
		}
		h.release(idx)
		return 0, fmt.Errorf("heap: backing segment: %w", err)
	}

	h.stats.Allocs++
	return h.segs[idx].start, nil
}

// Free returns the segment at ptr to the free state, releases any physical
// backing the heap owns for it, and merges it with free neighbors. ptr must
// be a value previously returned by Reserve or Alloc; anything else fails
// the integrity check and panics with *CorruptionError. Freeing the same
// pointer twice is undefined.
func (h *Heap) Free(ptr mm.Addr) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx, ok := h.byStart[ptr]
	if !ok {
		panic(&CorruptionError{Ptr: ptr, Reason: "no segment starts here"})
	}
	if seg := &h.segs[idx]; seg.tag != tagFor(seg.start) {
		panic(&CorruptionError{Ptr: ptr, Reason: "integrity tag mismatch"})
	}

	h.stats.Frees++
	h.release(idx)
}

// Stats returns a snapshot of the operation counters.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// findFit runs the first-fit scan and returns the handle of a free segment
// of at least size usable bytes, splitting off the unused tail when it spans
// two frames or more. Lowest address wins ties by construction: the list is
// address ordered and the scan takes the first qualifying segment.
func (h *Heap) findFit(size uintptr) (int32, bool) {
	for idx := h.head; idx != none; idx = h.segs[idx].next {
		if h.segs[idx].state != Free || h.segs[idx].size() < size {
			continue
		}
		if h.segs[idx].size()-size >= 2*mm.FrameSize {
			h.split(idx, size)
		}
		return idx, true
	}
	return none, false
}

// split carves the tail of segment idx beyond size into a new free segment.
// The tail needs its own descriptor frame; if no frame is available or the
// mapping fails the split is skipped and the caller gets the whole segment.
// A split-only problem never fails the request.
func (h *Heap) split(idx int32, size uintptr) {
	frame, err := h.frames.Alloc()
	if err != nil {
		h.stats.SplitsDenied++
		return
	}

	// The new descriptor frame starts where the shortened usable range ends.
	descAddr := h.segs[idx].start + mm.Addr(size)
	if err := h.pages.Map(descAddr, frame, mm.Read|mm.Write); err != nil {
		h.frames.Free(frame)
		h.stats.SplitsDenied++
		if logHeap {
			fmt.Fprintf(os.Stderr, "[HEAP] split denied at %#x: %v\n", uintptr(descAddr), err)
		}
		return
	}

	tail := h.newSeg() // may grow the table; take pointers only after this
	seg := &h.segs[idx]
	h.segs[tail] = segment{
		state: Free,
		start: descAddr + mm.FrameSize,
		end:   seg.end,
		tag:   tagFor(descAddr + mm.FrameSize),
		prev:  idx,
		next:  seg.next,
	}
	if seg.next != none {
		h.segs[seg.next].prev = tail
	}
	seg.next = tail
	seg.end = descAddr - 1
	h.byStart[descAddr+mm.FrameSize] = tail
	h.stats.Splits++

	if logHeap {
		fmt.Fprintf(os.Stderr, "[HEAP] split: %#x-%#x | tail %#x-%#x\n",
			uintptr(seg.start), uintptr(seg.end),
			uintptr(h.segs[tail].start), uintptr(h.segs[tail].end))
	}
}

// release implements the free path for a known-good handle: drop physical
// backing if the heap owns any, mark the segment free, then coalesce with
// the next and previous neighbors. Each merge step releases the descriptor
// frame of the segment being removed at that step, never one computed
// earlier.
func (h *Heap) release(idx int32) {
	seg := &h.segs[idx]
	if seg.state == Allocated {
		h.ranger.FreeRange(seg.start, seg.size())
	}
	seg.state = Free
	seg.access = 0

	// Coalesce with the next segment: absorb its range and give back its
	// descriptor frame. The absorbed span is remapped on demand by a future
	// split.
	if n := seg.next; n != none && h.segs[n].state == Free {
		next := h.segs[n]
		seg.next = next.next
		if next.next != none {
			h.segs[next.next].prev = idx
		}
		seg.end = next.end
		h.dropDescriptor(next.start)
		delete(h.byStart, next.start)
		h.retireSeg(n)
		h.stats.MergesNext++
	}

	// Coalesce with the previous segment: this segment is the one removed,
	// so it is this segment's descriptor frame that goes back.
	if p := seg.prev; p != none && h.segs[p].state == Free {
		h.segs[p].next = seg.next
		if seg.next != none {
			h.segs[seg.next].prev = p
		}
		h.segs[p].end = seg.end
		h.dropDescriptor(seg.start)
		delete(h.byStart, seg.start)
		h.retireSeg(idx)
		h.stats.MergesPrev++
	}
}

// dropDescriptor unmaps the descriptor frame one frame below start and
// returns it to the frame source.
func (h *Heap) dropDescriptor(start mm.Addr) {
	frame := h.pages.Unmap(start - mm.FrameSize)
	if !frame.Valid() {
		panic(fmt.Sprintf("heap: descriptor frame below %#x was not mapped", uintptr(start)))
	}
	h.frames.Free(frame)
}
