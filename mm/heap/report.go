package heap

import (
	"fmt"
	"io"

	"github.com/wxuefei/arc/mm"
)

// Report walks the segment list under the lock and writes one line per
// segment: its inclusive usable range, state, and access rights when
// allocated. It never changes heap state.
func (h *Heap) Report(w io.Writer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := fmt.Fprintf(w, "heap window %#016x -> %#016x\n",
		uintptr(h.low), uintptr(h.high)); err != nil {
		return err
	}
	for idx := h.head; idx != none; idx = h.segs[idx].next {
		seg := &h.segs[idx]

		var err error
		if seg.state == Allocated {
			_, err = fmt.Fprintf(w, " => %#016x -> %#016x (%s %s)\n",
				uintptr(seg.start), uintptr(seg.end), seg.state, seg.access)
		} else {
			_, err = fmt.Fprintf(w, " => %#016x -> %#016x (%s)\n",
				uintptr(seg.start), uintptr(seg.end), seg.state)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Window returns the inclusive bounds the heap was initialized with.
func (h *Heap) Window() (low, high mm.Addr) {
	return h.low, h.high
}
