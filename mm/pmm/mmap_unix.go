//go:build linux || freebsd || darwin

package pmm

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/wxuefei/arc/mm"
)

// MmapPool is a frame source carved out of one anonymous mmap region. Frame
// handles are the real addresses of the backing pages, so callers holding a
// frame can read and write its memory.
type MmapPool struct {
	mu    sync.Mutex
	mem   []byte
	next  int
	freed []mm.Frame
	inUse map[mm.Frame]bool
}

// NewMmapPool maps an anonymous region of n frames.
func NewMmapPool(n int) (*MmapPool, error) {
	mem, err := unix.Mmap(-1, 0, n*mm.FrameSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &MmapPool{
		mem:   mem,
		inUse: make(map[mm.Frame]bool, n),
	}, nil
}

// Alloc grants one frame of real memory.
func (p *MmapPool) Alloc() (mm.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var f mm.Frame
	if n := len(p.freed); n > 0 {
		f = p.freed[n-1]
		p.freed = p.freed[:n-1]
	} else {
		off := p.next << mm.FrameShift
		if off >= len(p.mem) {
			return mm.NoFrame, ErrNoFrames
		}
		f = mm.Frame(uintptr(unsafe.Pointer(&p.mem[off])))
		p.next++
	}
	p.inUse[f] = true
	return f, nil
}

// Free recycles a frame.
func (p *MmapPool) Free(f mm.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inUse[f] {
		panic("pmm: free of frame not granted by this pool")
	}
	delete(p.inUse, f)
	p.freed = append(p.freed, f)
}

// InUse returns the number of frames currently granted.
func (p *MmapPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

// Bytes returns the frame's backing page.
func (p *MmapPool) Bytes(f mm.Frame) []byte {
	base := mm.Frame(uintptr(unsafe.Pointer(&p.mem[0])))
	off := int(f - base)
	return p.mem[off : off+mm.FrameSize]
}

// Close unmaps the region. All frames become invalid.
func (p *MmapPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mem == nil {
		return nil
	}
	err := unix.Munmap(p.mem)
	p.mem = nil
	return err
}
