package btree

// DecArray is a persistent, copy-on-write array of 2-bit saturating
// counters, ported from PersistentDecArray in persistent_btree.h. Values
// saturate at 3; Decrement on a slot already at 0 is a no-op that still
// returns a valid (unchanged) root, matching "decrement returns
// (root, 0) if already 0".
//
// The tiger DP (internal/tiger) uses this to track each pure e-class's
// count of not-yet-extractable children: a class becomes extractable
// exactly when its counter reaches 0.
type DecArray struct {
	a     *arena
	depth int
	size  int
}

// NewDecArray builds a persistent counter array preloaded with init,
// saturating any value above 3 down to 3 on the way in (mirrors
// enode_cnt_pool.init(...) storing "count-1" for values that will only
// ever be decremented down to zero in statewalkdp.cpp — counters here
// are stored at their true value, 0..3, since this port exposes Decrement
// directly rather than pre-biasing by one).
func NewDecArray(init []int) (*DecArray, Root) {
	d := &DecArray{a: newArena(branchPow), size: len(init)}
	d.depth = depthFor(d.a.branch, len(init))
	root := d.build(d.depth, init)
	return d, Root(root)
}

func (d *DecArray) build(depth int, init []int) int32 {
	if depth == 0 {
		idx := d.a.allocLeaf()
		n := &d.a.nodes[idx]
		for i := range n.words {
			v := 0
			if i < len(init) {
				v = init[i]
			}
			if v > 3 {
				v = 3
			}
			n.words[i] = uint64(v)
		}
		return idx
	}
	idx := d.a.allocLeaf()
	n := &d.a.nodes[idx]
	stride := pow(d.a.branch, depth-1)
	for i := range n.words {
		lo := i * stride
		hi := lo + stride
		var sub []int
		if lo < len(init) {
			end := hi
			if end > len(init) {
				end = len(init)
			}
			sub = init[lo:end]
		}
		n.words[i] = uint64(d.build(depth-1, sub))
	}
	return idx
}

// Get returns the counter value (0..3) at i under root.
func (d *DecArray) Get(root Root, i int) int {
	return int(d.get(int32(root), d.depth, i))
}

func (d *DecArray) get(nodeIdx int32, depth, i int) uint64 {
	n := &d.a.nodes[nodeIdx]
	if depth == 0 {
		return n.words[i]
	}
	stride := pow(d.a.branch, depth-1)
	child := i / stride
	rem := i % stride
	return d.get(int32(n.words[child]), depth-1, rem)
}

// Decrement returns (newRoot, newValue) after decrementing slot i by
// one, saturating at 0: a slot already 0 is returned unchanged with its
// original root, exactly as §4.1 specifies.
func (d *DecArray) Decrement(root Root, i int) (Root, int) {
	cur := d.Get(root, i)
	if cur == 0 {
		return root, 0
	}
	newRoot := d.dec(int32(root), d.depth, i)
	return Root(newRoot), cur - 1
}

func (d *DecArray) dec(nodeIdx int32, depth, i int) int32 {
	idx := d.a.acquire(nodeIdx)
	n := &d.a.nodes[idx]
	if depth == 0 {
		if n.words[i] > 0 {
			n.words[i]--
		}
		return idx
	}
	stride := pow(d.a.branch, depth-1)
	child := i / stride
	rem := i % stride
	newChild := d.dec(int32(n.words[child]), depth-1, rem)
	n.words[child] = uint64(newChild)
	return idx
}

// NewVersion bumps the generation counter (see Bitset.NewVersion).
func (d *DecArray) NewVersion() { d.a.NewVersion() }
