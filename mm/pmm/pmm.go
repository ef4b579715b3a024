// Package pmm manages physical frames. The heap only sees the FrameSource
// interface; the implementations here back it with either synthetic handles
// (Pool, for tests and tools) or real anonymous memory (MmapPool).
package pmm

import (
	"errors"
	"sync"

	"github.com/wxuefei/arc/mm"
)

// ErrNoFrames indicates the source has no free frame left.
var ErrNoFrames = errors.New("pmm: out of physical frames")

// FrameSource grants and reclaims single physical frames. Alloc never
// blocks; it either returns a frame or fails with ErrNoFrames.
type FrameSource interface {
	Alloc() (mm.Frame, error)
	Free(f mm.Frame)
}

// poolBase keeps synthetic frame handles nonzero and recognizable in dumps.
const poolBase mm.Frame = 0x10_0000

// Pool is a fixed-capacity frame source handing out synthetic handles.
// Freed frames are recycled LIFO. Double frees and foreign frames are
// programming errors and panic.
type Pool struct {
	mu    sync.Mutex
	limit int
	next  int
	freed []mm.Frame
	inUse map[mm.Frame]bool
}

// NewPool returns a source holding n frames.
func NewPool(n int) *Pool {
	return &Pool{
		limit: n,
		inUse: make(map[mm.Frame]bool, n),
	}
}

// Alloc grants one frame, preferring recycled ones.
func (p *Pool) Alloc() (mm.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var f mm.Frame
	if n := len(p.freed); n > 0 {
		f = p.freed[n-1]
		p.freed = p.freed[:n-1]
	} else {
		if p.next == p.limit {
			return mm.NoFrame, ErrNoFrames
		}
		f = poolBase + mm.Frame(p.next)<<mm.FrameShift
		p.next++
	}
	p.inUse[f] = true
	return f, nil
}

// Free returns a frame to the pool.
func (p *Pool) Free(f mm.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inUse[f] {
		panic("pmm: free of frame not granted by this pool")
	}
	delete(p.inUse, f)
	p.freed = append(p.freed, f)
}

// InUse returns the number of frames currently granted. Tests use this to
// prove operations leak no frames.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

// Quota wraps a source and fails every Alloc past a grant budget. Frees pass
// through and do not refund the budget, which makes it a deterministic way to
// fail the Nth grant in a longer sequence.
type Quota struct {
	Source FrameSource
	mu     sync.Mutex
	grants int
	budget int
}

// NewQuota wraps src so that only the first budget Allocs can succeed.
func NewQuota(src FrameSource, budget int) *Quota {
	return &Quota{Source: src, budget: budget}
}

// Alloc grants from the underlying source while the budget lasts.
func (q *Quota) Alloc() (mm.Frame, error) {
	q.mu.Lock()
	if q.grants == q.budget {
		q.mu.Unlock()
		return mm.NoFrame, ErrNoFrames
	}
	q.grants++
	q.mu.Unlock()
	return q.Source.Alloc()
}

// Free returns the frame to the underlying source.
func (q *Quota) Free(f mm.Frame) {
	q.Source.Free(f)
}
