package btree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitsetSetGetPersistence(t *testing.T) {
	b, root0 := NewBitset(40)
	for i := 0; i < 40; i++ {
		require.False(t, b.Get(root0, i))
	}

	b.NewVersion()
	root1, wasSet := b.Set(root0, 5)
	require.False(t, wasSet)
	require.True(t, b.Get(root1, 5))
	require.False(t, b.Get(root0, 5), "old root must be unaffected by the write")

	root2, wasSet2 := b.Set(root1, 5)
	require.True(t, wasSet2)
	require.Equal(t, root1, root2)
}

func TestBitsetAcrossVersions(t *testing.T) {
	b, root0 := NewBitset(20)
	root1, _ := b.Set(root0, 1)
	b.NewVersion()
	root2, _ := b.Set(root1, 2)
	require.True(t, b.Get(root2, 1))
	require.True(t, b.Get(root2, 2))
	require.False(t, b.Get(root1, 2), "root1 must not see writes from the next version")
}

func TestDecArraySaturationAndFloor(t *testing.T) {
	init := []int{0, 1, 2, 3, 9}
	d, root := NewDecArray(init)
	require.Equal(t, 0, d.Get(root, 0))
	require.Equal(t, 3, d.Get(root, 4), "values above 3 saturate down to 3 on init")

	root2, v := d.Decrement(root, 0)
	require.Equal(t, 0, v, "decrementing an already-zero slot is a no-op")
	require.Equal(t, root, root2)

	d.NewVersion()
	root3, v3 := d.Decrement(root, 3)
	require.Equal(t, 2, v3)
	require.Equal(t, 3, d.Get(root, 3), "the original root is untouched")
	require.Equal(t, 2, d.Get(root3, 3))
}

func TestDecArrayMultipleIndependentRoots(t *testing.T) {
	d, root := NewDecArray([]int{3, 3, 3})
	d.NewVersion()
	rootA, _ := d.Decrement(root, 0)
	rootB, _ := d.Decrement(root, 1)
	require.Equal(t, 2, d.Get(rootA, 0))
	require.Equal(t, 3, d.Get(rootA, 1))
	require.Equal(t, 3, d.Get(rootB, 0))
	require.Equal(t, 2, d.Get(rootB, 1))
}

func TestLargeSizeMultiLevelTree(t *testing.T) {
	const n = 5000
	init := make([]int, n)
	for i := range init {
		init[i] = 3
	}
	d, root := NewDecArray(init)
	r := root
	for i := 0; i < n; i += 7 {
		var v int
		r, v = d.Decrement(r, i)
		require.Equal(t, 2, v)
	}
	for i := 0; i < n; i += 7 {
		require.Equal(t, 2, d.Get(r, i))
	}
	require.Equal(t, 3, d.Get(r, 1), "untouched slot stays at its initial value")
}
