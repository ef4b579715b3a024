package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxuefei/arc/mm"
	"github.com/wxuefei/arc/mm/pmm"
	"github.com/wxuefei/arc/mm/vmm"
)

// testLow is an arbitrary frame-aligned window base, away from zero so
// arithmetic mistakes show up as wild addresses rather than small offsets.
const testLow mm.Addr = 0x4000_0000

type testEnv struct {
	pool  *pmm.Pool
	space *vmm.Space
	heap  *Heap
}

// newTestHeap builds a heap over a window of exactly frames frames, with a
// frame pool comfortably larger than the window can consume.
func newTestHeap(t *testing.T, frames int) *testEnv {
	t.Helper()
	pool := pmm.NewPool(frames + 8)
	return newTestHeapWithSource(t, frames, pool, pool)
}

// newTestHeapWithSource builds a heap whose frame grants go through src
// (typically a pmm.Quota for fault injection) while pool stays visible for
// leak accounting.
func newTestHeapWithSource(t *testing.T, frames int, pool *pmm.Pool, src pmm.FrameSource) *testEnv {
	t.Helper()
	space := vmm.NewSpace()
	ranger := &vmm.Ranger{Frames: src, Pages: space}
	high := testLow + mm.Addr(frames)*mm.FrameSize - 1

	h, err := New(testLow, high, src, space, ranger)
	require.NoError(t, err, "heap init should succeed")
	return &testEnv{pool: pool, space: space, heap: h}
}

// frameBytes converts a frame count to bytes.
func frameBytes(n int) uintptr {
	return uintptr(n) * mm.FrameSize
}

// segCount walks the list and returns the number of segments.
func segCount(h *Heap) int {
	n := 0
	for idx := h.head; idx != none; idx = h.segs[idx].next {
		n++
	}
	return n
}

// assertInvariants checks every structural property the heap promises at
// rest: address order, window coverage, descriptor accounting, tag validity,
// link symmetry, no adjacent free segments, and backing exactness.
func assertInvariants(t *testing.T, env *testEnv) {
	t.Helper()
	h := env.heap

	require.NotEqual(t, none, h.head, "list must never be empty")
	assert.Equal(t, none, h.segs[h.head].prev, "head has no predecessor")

	prev := none
	prevState := Allocated // sentinel: anything but Free
	expectStart := h.low + mm.FrameSize

	for idx := h.head; idx != none; idx = h.segs[idx].next {
		seg := &h.segs[idx]

		// Coverage: each usable range begins one frame (the descriptor
		// frame) above where the previous segment ended.
		assert.Equal(t, expectStart, seg.start, "gap or overlap before %#x", uintptr(seg.start))
		assert.True(t, mm.IsAligned(seg.start), "start unaligned")
		assert.True(t, mm.IsAligned(seg.end+1), "end unaligned")
		assert.LessOrEqual(t, seg.start, seg.end, "inverted range")
		assert.Equal(t, tagFor(seg.start), seg.tag, "integrity tag")

		// Link symmetry and registration.
		assert.Equal(t, prev, seg.prev, "back link")
		got, ok := h.byStart[seg.start]
		assert.True(t, ok, "segment missing from start index")
		assert.Equal(t, idx, got, "start index points at wrong handle")

		// Descriptor frame below the usable range must be mapped r/w.
		_, acc, mapped := env.space.Translate(seg.start - mm.FrameSize)
		assert.True(t, mapped, "descriptor frame unmapped below %#x", uintptr(seg.start))
		assert.Equal(t, mm.Read|mm.Write, acc, "descriptor frame rights")

		// No two adjacent free segments at rest.
		if seg.state == Free {
			assert.NotEqual(t, Free, prevState, "adjacent free segments at %#x", uintptr(seg.start))
		}

		// Backing exactness: allocated ranges fully mapped with the stored
		// rights, free ranges carry no mapping. Reserved ranges are the
		// caller's business; these tests never map them, so they must be
		// empty too.
		for addr := seg.start; addr <= seg.end && addr >= seg.start; addr += mm.FrameSize {
			_, acc, mapped := env.space.Translate(addr)
			if seg.state == Allocated {
				assert.True(t, mapped, "allocated page %#x unmapped", uintptr(addr))
				assert.Equal(t, seg.access, acc, "allocated page rights")
			} else {
				assert.False(t, mapped, "%s page %#x mapped", seg.state, uintptr(addr))
			}
		}

		prev = idx
		prevState = seg.state
		expectStart = seg.end + 1 + mm.FrameSize
	}

	// The last segment must reach the top of the window.
	assert.Equal(t, h.high+1+mm.FrameSize, expectStart, "window not covered to high")
}

// assertSingleRootSegment checks the heap is back to its boot shape: one
// free segment over the whole window minus the root descriptor frame, and
// exactly one frame (that descriptor) still granted.
func assertSingleRootSegment(t *testing.T, env *testEnv) {
	t.Helper()
	h := env.heap

	require.Equal(t, 1, segCount(h), "expected a single segment")
	root := &h.segs[h.head]
	assert.Equal(t, Free, root.state)
	assert.Equal(t, h.low+mm.FrameSize, root.start)
	assert.Equal(t, h.high, root.end)
	assert.Equal(t, 1, env.pool.InUse(), "only the root descriptor frame may remain granted")
	assert.Equal(t, 1, env.space.Mapped(), "only the root descriptor page may remain mapped")
	assertInvariants(t, env)
}
