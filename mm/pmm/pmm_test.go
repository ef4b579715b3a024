package pmm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxuefei/arc/mm"
)

func TestPoolGrantsDistinctFrames(t *testing.T) {
	p := NewPool(3)

	seen := map[mm.Frame]bool{}
	for i := 0; i < 3; i++ {
		f, err := p.Alloc()
		require.NoError(t, err)
		require.True(t, f.Valid())
		assert.False(t, seen[f], "frame granted twice")
		seen[f] = true
	}
	assert.Equal(t, 3, p.InUse())

	_, err := p.Alloc()
	require.ErrorIs(t, err, ErrNoFrames)
}

func TestPoolRecyclesFreedFrames(t *testing.T) {
	p := NewPool(1)

	f, err := p.Alloc()
	require.NoError(t, err)
	p.Free(f)
	assert.Equal(t, 0, p.InUse())

	g, err := p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, f, g, "sole frame must be recycled")
}

func TestPoolPanicsOnForeignFree(t *testing.T) {
	p := NewPool(1)
	assert.Panics(t, func() { p.Free(0xBAD000) })
}

func TestPoolPanicsOnDoubleFree(t *testing.T) {
	p := NewPool(1)
	f, err := p.Alloc()
	require.NoError(t, err)
	p.Free(f)
	assert.Panics(t, func() { p.Free(f) })
}

func TestQuotaCutsOffGrants(t *testing.T) {
	p := NewPool(8)
	q := NewQuota(p, 2)

	a, err := q.Alloc()
	require.NoError(t, err)
	_, err = q.Alloc()
	require.NoError(t, err)
	_, err = q.Alloc()
	require.ErrorIs(t, err, ErrNoFrames)

	// Frees pass through without refunding the budget.
	q.Free(a)
	_, err = q.Alloc()
	require.ErrorIs(t, err, ErrNoFrames)
	assert.Equal(t, 1, p.InUse())
}
