// Package heap is the kernel's dynamic virtual-memory segment allocator. It
// manages one fixed window of address space, carving it into variable-sized
// segments on demand and merging freed neighbors back together.
//
// # Overview
//
// The window is covered by an address-ordered list of segments. Every
// segment dedicates one frame of address space, directly below its usable
// range, to its descriptor; the descriptor's contents live in a table inside
// the Heap, indexed by handle. Pointers returned to callers are always the
// first usable byte, one frame above the descriptor frame.
//
// Lookup is first-fit in address order. A segment is split only when the
// remainder after the request spans at least two frames: one for the new
// descriptor, at least one usable. Smaller remainders are handed out as
// internal fragmentation. Every free immediately coalesces with both
// neighbors, so no two adjacent segments are ever free at rest.
//
// # Operations
//
//   - New(low, high, ...): builds the root segment over the window; boot only
//   - Reserve(size): claim address space without physical backing
//   - Alloc(size, access): claim and back the whole range with fresh frames
//   - Free(ptr): release backing, return the segment, merge free neighbors
//   - Report(w): one diagnostic line per segment
//
// Reserve is for callers that map known physical or device addresses into
// the range themselves, such as memory-mapped device windows. Alloc owns its
// backing: the usable range of an allocated segment is always fully mapped,
// and Free returns every frame.
//
// # Failure model
//
// Resource exhaustion (no fitting segment, no frame) is an ordinary error;
// the caller decides what to do, the heap never retries or blocks. A failed
// backing rolls the segment back to free and reports an error without
// leaking a frame. Integrity failures on Free panic with *CorruptionError:
// they mean caller misuse or memory corruption and are not recoverable.
//
// # Concurrency
//
// One lock serializes all public operations across all cores. The lock is
// not reentrant: Free must not be called from an interrupt handler that
// preempted a core already inside the heap. There are no suspension points;
// every call into the frame source or mapper completes or fails inline.
package heap
