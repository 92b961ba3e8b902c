// Package btree implements the copy-on-write persistent arrays the
// state-walk DP (internal/tiger) uses for its exponentially many search
// states: a 1-bit persistent bitset and a 2-bit saturating persistent
// counter array, both backed by a single growable arena keyed by a
// version/root handle.
//
// This is a direct port of PersistentBTree<BP,S>, PersistentBitSet, and
// PersistentDecArray from persistent_btree.h: a B-tree of branching
// factor B = 2^bp, where acquiring a "new" node after the current
// version is an in-place mutation, and acquiring one from an older
// version copies the old node's bytes first (memcpy in the original;
// a slice copy here). Handles are integer offsets into the arena, so
// there are no dangling references and the whole arena can be dropped
// at once when the DP call that owns it returns (§9 "Persistent arena
// lifetime").
package btree

import "errors"

// ErrIndexOutOfRange indicates an index passed to Get/Set/Decrement
// exceeds the array's declared Size.
var ErrIndexOutOfRange = errors.New("btree: index out of range")

// growthFactor is the arena's geometric growth multiplier (§4.1 "Growth
// policy: geometric (×4)").
const growthFactor = 4

// Root is an opaque handle to one persisted version of an array: an
// offset of the version's root node within the owning Arena.
type Root int32

// node is one arena slot: a version tag plus B child-handles-or-leaf-bits
// packed as plain machine words, matching the "first word is version tag,
// remaining are child handles or leaf bits" layout of §4.1.
type node struct {
	version int64
	words   []uint64
}

// arena is the shared growable backing store for one persistent
// structure's nodes, branching factor B, and running version counter.
type arena struct {
	branch  int // B, the branching factor
	bp      int // log2(B)
	nodes   []node
	version int64
}

func newArena(branchPow int) *arena {
	b := 1 << branchPow
	a := &arena{branch: b, bp: branchPow}
	a.grow(4)
	return a
}

func (a *arena) grow(minCap int) {
	if minCap <= cap(a.nodes) {
		return
	}
	newCap := cap(a.nodes)
	if newCap == 0 {
		newCap = 4
	}
	for newCap < minCap {
		newCap *= growthFactor
	}
	grown := make([]node, len(a.nodes), newCap)
	copy(grown, a.nodes)
	a.nodes = grown
}

// allocLeaf returns a fresh all-zero leaf slot, growing the arena if needed.
func (a *arena) allocLeaf() int32 {
	idx := int32(len(a.nodes))
	a.grow(int(idx) + 1)
	a.nodes = a.nodes[:idx+1]
	a.nodes[idx] = node{version: a.version, words: make([]uint64, a.branch)}
	return idx
}

// acquire returns a node index suitable for writing at the current
// version: if ori already belongs to the current version it is reused
// in place (mutated), otherwise a fresh copy of ori's bytes is made and
// the copy is returned — the "bytes from the old version are memcpy'd
// on write" rule from §4.1.
func (a *arena) acquire(ori int32) int32 {
	if ori >= 0 && a.nodes[ori].version == a.version {
		return ori
	}
	idx := int32(len(a.nodes))
	a.grow(int(idx) + 1)
	a.nodes = a.nodes[:idx+1]
	words := make([]uint64, a.branch)
	if ori >= 0 {
		copy(words, a.nodes[ori].words)
	}
	a.nodes[idx] = node{version: a.version, words: words}
	return idx
}

// NewVersion bumps the version counter, so the next write acquires fresh
// nodes rather than mutating nodes from the previous version in place.
func (a *arena) NewVersion() { a.version++ }
