// Package mm holds the shared types and arithmetic used by the memory
// management subsystems: physical frames, virtual addresses, access rights
// and frame alignment helpers.
package mm

// Frame size constants. A frame is the minimum allocation granularity for
// both physical memory and the virtual windows carved from it.
const (
	FrameShift = 12
	FrameSize  = 1 << FrameShift
	frameMask  = FrameSize - 1
)

// Frame is an opaque handle to one physical frame, granted and reclaimed by
// a pmm.FrameSource. The zero value is NoFrame.
type Frame uintptr

// NoFrame is the invalid frame handle.
const NoFrame Frame = 0

// Valid reports whether f refers to an actual frame.
func (f Frame) Valid() bool { return f != NoFrame }

// Addr is a virtual address.
type Addr uintptr

// AlignUp returns a rounded up to the next frame boundary.
//
// Example:
//
//	AlignUp(1)    = 4096
//	AlignUp(4096) = 4096
//	AlignUp(4097) = 8192
func AlignUp(a Addr) Addr {
	return (a + frameMask) &^ frameMask
}

// AlignDown returns a rounded down to the previous frame boundary.
func AlignDown(a Addr) Addr {
	return a &^ frameMask
}

// IsAligned reports whether a sits on a frame boundary.
func IsAligned(a Addr) bool {
	return a&frameMask == 0
}

// SizeAlign returns n rounded up to the next multiple of the frame size.
func SizeAlign(n uintptr) uintptr {
	return (n + frameMask) &^ frameMask
}
