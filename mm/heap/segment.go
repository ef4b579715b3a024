package heap

import "github.com/wxuefei/arc/mm"

// State classifies a segment.
type State uint8

const (
	// Free segments are available to reserve or allocate.
	Free State = iota
	// Reserved segments belong to a caller but carry no physical backing of
	// their own; the caller maps known physical or device addresses into
	// them itself.
	Reserved
	// Allocated segments are fully backed by frames this heap owns.
	Allocated
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Reserved:
		return "reserved"
	case Allocated:
		return "allocated"
	}
	return "invalid"
}

// segMagic is folded into every integrity tag.
const segMagic = 0x9E3779B97F4A7C15

// tagFor derives the integrity tag a descriptor starting at start must carry.
func tagFor(start mm.Addr) uint64 {
	return uint64(start) ^ segMagic
}

// none is the null descriptor handle.
const none int32 = -1

// segment is one descriptor in the table. start and end bound the usable
// range inclusively; the frame of address space directly below start is the
// segment's dedicated descriptor frame. prev and next are table handles
// ordering segments by address; they are navigation only, the table owns
// every descriptor.
type segment struct {
	state  State
	access mm.Access
	start  mm.Addr
	end    mm.Addr
	tag    uint64
	prev   int32
	next   int32
}

// size returns the usable byte count, always a frame multiple.
func (s *segment) size() uintptr {
	return uintptr(s.end-s.start) + 1
}

// newSeg hands out a descriptor handle, recycling retired ones first.
func (h *Heap) newSeg() int32 {
	if n := len(h.retired); n > 0 {
		idx := h.retired[n-1]
		h.retired = h.retired[:n-1]
		return idx
	}
	h.segs = append(h.segs, segment{})
	return int32(len(h.segs) - 1)
}

// retireSeg scrubs a descriptor removed by a merge and recycles its handle.
func (h *Heap) retireSeg(idx int32) {
	h.segs[idx] = segment{prev: none, next: none}
	h.retired = append(h.retired, idx)
}
