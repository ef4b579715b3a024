// Package vmm maps virtual pages to physical frames. It defines the
// single-page Mapper and the multi-frame RangeMapper the heap builds on, plus
// Space, a simulated page table used by tests and tools.
package vmm

import (
	"errors"
	"sync"

	"github.com/wxuefei/arc/mm"
)

var (
	// ErrUnaligned indicates an address off a frame boundary.
	ErrUnaligned = errors.New("vmm: address not frame aligned")

	// ErrMapped indicates the page already has a mapping.
	ErrMapped = errors.New("vmm: page already mapped")
)

// Mapper maps and unmaps single pages. Unmap returns the frame that backed
// the page, or mm.NoFrame if the page was not mapped.
type Mapper interface {
	Map(addr mm.Addr, frame mm.Frame, access mm.Access) error
	Unmap(addr mm.Addr) mm.Frame
}

type pte struct {
	frame  mm.Frame
	access mm.Access
}

// Space is a simulated address space: one flat page table keyed by page
// address. It enforces alignment and rejects double maps, which is stricter
// than real hardware but catches allocator bugs early.
type Space struct {
	mu    sync.Mutex
	pages map[mm.Addr]pte

	// FailMap, when non-nil, is consulted before every Map and may veto it.
	// Test hook; nil in production.
	FailMap func(addr mm.Addr) error
}

// NewSpace returns an empty address space.
func NewSpace() *Space {
	return &Space{pages: make(map[mm.Addr]pte)}
}

// Map installs frame at addr with the given rights.
func (s *Space) Map(addr mm.Addr, frame mm.Frame, access mm.Access) error {
	if !mm.IsAligned(addr) {
		return ErrUnaligned
	}
	if s.FailMap != nil {
		if err := s.FailMap(addr); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[addr]; ok {
		return ErrMapped
	}
	s.pages[addr] = pte{frame: frame, access: access}
	return nil
}

// Unmap removes the mapping at addr and returns its frame.
func (s *Space) Unmap(addr mm.Addr) mm.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[addr]
	if !ok {
		return mm.NoFrame
	}
	delete(s.pages, addr)
	return p.frame
}

// Translate reports the mapping at addr, if any.
func (s *Space) Translate(addr mm.Addr) (mm.Frame, mm.Access, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[addr]
	return p.frame, p.access, ok
}

// Mapped returns the number of pages currently mapped.
func (s *Space) Mapped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}
