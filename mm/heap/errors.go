package heap

import (
	"errors"
	"fmt"

	"github.com/wxuefei/arc/mm"
)

var (
	// ErrNoSpace indicates no free segment large enough was found.
	ErrNoSpace = errors.New("heap: no free segment large enough")

	// ErrBadSize indicates a zero-byte request.
	ErrBadSize = errors.New("heap: size must be positive")

	// ErrWindowTooSmall indicates the window cannot hold the root descriptor
	// frame plus at least one usable frame.
	ErrWindowTooSmall = errors.New("heap: window too small")
)

// CorruptionError reports a pointer that failed integrity checks on free:
// either an address this heap never handed out, or a descriptor whose tag no
// longer matches its start address. It is delivered via panic, never as a
// return value — the condition signals caller misuse or memory corruption
// and is not recoverable.
type CorruptionError struct {
	Ptr    mm.Addr
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("heap: corrupt segment at %#x: %s", uintptr(e.Ptr), e.Reason)
}
