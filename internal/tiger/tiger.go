// Package tiger implements §4.5's state-walk dynamic program: given a
// regionalised e-graph, it searches over every way of threading a single
// effectful path from the region root back to its argument, picking at
// each step the node whose children are already grounded, and returns the
// lowest-cost such path (the "state walk").
//
// Ported from statewalkDP in
// _examples/original_source/dag_in_context/src/tiger/statewalkdp.cpp: a
// DP over (effectful class, extractable-set) states, where the
// extractable set is a persistent bitset/counter pair from
// internal/btree, states are deduplicated by a 64-bit XOR hash of the
// extractable set (hash unification), optionally narrowed further by a
// liveness mask, and optionally deduplicated more aggressively for
// "satellite" effectful classes whose every parent edge comes from one
// specific effectful parent. The search itself follows the dedicated
// engine-struct shape of tsp/bb.go rather than a recursive closure.
package tiger

import (
	"container/heap"
	"errors"
	"math/rand"

	"github.com/extractlab/tiger/internal/btree"
	"github.com/extractlab/tiger/internal/cost"
	"github.com/extractlab/tiger/internal/egraph"
)

// ErrNoArgument indicates the region has no zero-child effectful node to
// use as the state walk's terminus.
var ErrNoArgument = errors.New("tiger: region has no argument node")

// ErrNoStatewalk indicates the search never reached the region root — a
// sign the region graph is not well-formed.
var ErrNoStatewalk = errors.New("tiger: search did not reach region root")

// Step is one entry of a Statewalk: an effectful (class, node) pick.
type Step struct {
	Class egraph.ClassID
	Node  egraph.NodeID
}

// Statewalk is the ordered sequence of steps from a region root to its
// argument (§3 "State walk"): Statewalk[0] is the root, the last entry is
// the argument.
type Statewalk []Step

// Options selects the optional search narrowings of §4.5.
type Options struct {
	UseLiveness  bool
	UseSatellite bool
}

const satelliteBar = 6

type hashType = uint64

type dpValue struct {
	cost cost.Cost
	root btree.Root
	prev int
	ec   egraph.ClassID
	pick egraph.NodeID
}

type bitsetExtraInfo struct {
	trueHash   hashType
	maskedHash hashType
	array      btree.Root
}

// heapItem is one entry of the search's lowest-cost-first frontier.
type heapItem struct {
	cost cost.Cost
	dpID int
}

type minHeap []heapItem

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].cost < h[j].cost }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// engine holds the mutable state of a single StatewalkDP search.
type engine struct {
	g        *egraph.EGraph
	root     egraph.ClassID
	stwCost  [][]cost.Cost
	opts     Options

	parentEdgeToPure      [][]Step
	parentEdgeToEffectful [][]Step

	initExtractable []bool
	compressedID    []int
	invCompressedID []egraph.ClassID
	rnk             []int // per pure class, flattened offset into the dec-array

	enodeCntPool *btree.DecArray
	initCntRoot  btree.Root
	extractPool  *btree.Bitset
	initBitsRoot btree.Root
	baseVectors  []hashType

	liveness      [][]uint64 // per effectful class, a bitset over all classes
	livenessDelta []map[egraph.ClassID][]int

	satellitePA    []egraph.ClassID
	satelliteChCnt []int

	dpmap []map[hashType]int
	dp    []dpValue

	bitsetExtra         map[btree.Root]bitsetExtraInfo
	unifier             map[hashType]btree.Root
	pureSaturationCache map[uint64]btree.Root

	widthAcc *widthAccumulator
}

// StatewalkDP runs the state-walk search over a regionalised graph g
// rooted at root, using per-(class,node) statewalkCost (from
// cost.Oracle.StatewalkCost) as the incremental cost of visiting each
// effectful node.
func StatewalkDP(g *egraph.EGraph, root egraph.ClassID, statewalkCost [][]cost.Cost, opts Options) (Statewalk, error) {
	return run(g, root, statewalkCost, opts, nil)
}

// Stats reports DP frontier-size statistics sampled during one search:
// the heap size immediately after each newly-discovered or improved state
// is pushed (internal/timing's "statewalk width" §4.9 sample point).
type Stats struct {
	MaxWidth int
	AvgWidth float64
}

type widthAccumulator struct {
	max   int
	sum   int64
	count int64
}

func (a *widthAccumulator) record(w int) {
	if w > a.max {
		a.max = w
	}
	a.sum += int64(w)
	a.count++
}

func (a *widthAccumulator) stats() Stats {
	if a.count == 0 {
		return Stats{}
	}
	return Stats{MaxWidth: a.max, AvgWidth: float64(a.sum) / float64(a.count)}
}

// StatewalkDPWithStats runs the same search as StatewalkDP but also
// reports DP frontier-size statistics, for the timing harness (§4.9).
func StatewalkDPWithStats(g *egraph.EGraph, root egraph.ClassID, statewalkCost [][]cost.Cost, opts Options) (Statewalk, Stats, error) {
	acc := &widthAccumulator{}
	sw, err := run(g, root, statewalkCost, opts, acc)
	if err != nil {
		return nil, Stats{}, err
	}
	return sw, acc.stats(), nil
}

func run(g *egraph.EGraph, root egraph.ClassID, statewalkCost [][]cost.Cost, opts Options, acc *widthAccumulator) (Statewalk, error) {
	argc, argn, err := findArgument(g)
	if err != nil {
		return nil, err
	}

	e := &engine{g: g, root: root, stwCost: statewalkCost, opts: opts, widthAcc: acc}
	e.buildParentEdges()
	e.computeInitExtractable(argc)
	e.compressAndBuildPools()
	if opts.UseLiveness {
		e.computeLiveness()
	}
	if opts.UseSatellite {
		e.computeSatellite()
	}
	return e.search(argc, argn, statewalkCost[argc][argn])
}

func findArgument(g *egraph.EGraph) (egraph.ClassID, egraph.NodeID, error) {
	for c, cls := range g.Classes {
		if !cls.Effectful {
			continue
		}
		for n, node := range cls.Nodes {
			if node.IsLeaf() {
				return egraph.ClassID(c), egraph.NodeID(n), nil
			}
		}
	}
	return egraph.UnextractableClass, 0, ErrNoArgument
}

// buildParentEdges indexes, per child class, the (class,node) parents
// that reference it — split by whether the parent is effectful (the
// state-walk transition graph) or pure (the saturation propagation
// graph), matching parent_edge_to_effectful / parent_edge_to_pure.
func (e *engine) buildParentEdges() {
	n := e.g.NumClasses()
	e.parentEdgeToPure = make([][]Step, n)
	e.parentEdgeToEffectful = make([][]Step, n)
	for c, cls := range e.g.Classes {
		for ni, node := range cls.Nodes {
			for _, ch := range node.Children {
				if !ch.Valid() {
					continue
				}
				if cls.Effectful {
					if chCls, _ := e.g.Class(ch); chCls != nil && chCls.Effectful {
						e.parentEdgeToEffectful[ch] = append(e.parentEdgeToEffectful[ch], Step{egraph.ClassID(c), egraph.NodeID(ni)})
					}
				} else {
					e.parentEdgeToPure[ch] = append(e.parentEdgeToPure[ch], Step{egraph.ClassID(c), egraph.NodeID(ni)})
				}
			}
		}
	}
}

// computeInitExtractable floods outward from the argument class and
// every zero-child pure class, marking every pure class reachable purely
// through already-grounded children as "init extractable" — extractable
// before the search even begins, independent of any state-walk choice.
func (e *engine) computeInitExtractable(argc egraph.ClassID) {
	n := e.g.NumClasses()
	e.initExtractable = make([]bool, n)
	remaining := make([][]int, n)

	for c, cls := range e.g.Classes {
		if cls.Effectful {
			continue
		}
		remaining[c] = make([]int, len(cls.Nodes))
		for ni, node := range cls.Nodes {
			remaining[c][ni] = len(node.Children)
		}
	}

	var queue []egraph.ClassID
	e.initExtractable[argc] = true
	queue = append(queue, argc)

	for c, cls := range e.g.Classes {
		if cls.Effectful {
			continue
		}
		for _, node := range cls.Nodes {
			if node.IsLeaf() {
				if !e.initExtractable[c] {
					e.initExtractable[c] = true
					queue = append(queue, egraph.ClassID(c))
				}
				break
			}
		}
	}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, pe := range e.parentEdgeToPure[u] {
			remaining[pe.Class][pe.Node]--
			if remaining[pe.Class][pe.Node] == 0 && !e.initExtractable[pe.Class] {
				e.initExtractable[pe.Class] = true
				queue = append(queue, pe.Class)
			}
		}
	}
}

// compressAndBuildPools assigns a dense 0-based id to every class that is
// not init-extractable (pure or effectful), flattens each remaining pure
// class's per-node child count into the persistent counter array's
// initial values, and allocates the two persistent pools plus the random
// base vectors used for hash unification.
func (e *engine) compressAndBuildPools() {
	n := e.g.NumClasses()
	e.compressedID = make([]int, n)
	e.rnk = make([]int, n)
	for c := range e.compressedID {
		e.compressedID[c] = -1
	}
	var initCnt []int
	for c, cls := range e.g.Classes {
		if e.initExtractable[c] {
			continue
		}
		e.compressedID[c] = len(e.invCompressedID)
		e.invCompressedID = append(e.invCompressedID, egraph.ClassID(c))
		if !cls.Effectful && len(cls.Nodes) > 0 {
			e.rnk[c] = len(initCnt)
			for _, node := range cls.Nodes {
				initCnt = append(initCnt, len(node.Children))
			}
		}
	}

	e.enodeCntPool, e.initCntRoot = btree.NewDecArray(initCnt)
	e.extractPool, e.initBitsRoot = btree.NewBitset(len(e.invCompressedID))

	e.baseVectors = make([]hashType, len(e.invCompressedID))
	rng := rand.New(rand.NewSource(1))
	for i := range e.baseVectors {
		e.baseVectors[i] = rng.Uint64()
	}
}

func bitTest(bits []uint64, i egraph.ClassID) bool {
	return (bits[int(i)>>6]>>(uint(i)&63))&1 != 0
}

func bitSet(bits []uint64, i egraph.ClassID) {
	bits[int(i)>>6] |= 1 << (uint(i) & 63)
}

// computeLiveness builds, for every effectful class i, the set
// of classes still reachable "backward" from i along effectful parent
// edges and their pure fringes — used to mask the hash so that dead
// classes (ones no transition can ever reference again) don't keep
// otherwise-identical states apart. Ported from the `liveness` /
// `liveness_delta` block of statewalkDP.
func (e *engine) computeLiveness() {
	n := e.g.NumClasses()
	e.liveness = make([][]uint64, n)
	e.livenessDelta = make([]map[egraph.ClassID][]int, n)
	words := (n + 63) >> 6

	for c, cls := range e.g.Classes {
		if !cls.Effectful {
			continue
		}
		i := egraph.ClassID(c)
		bits := make([]uint64, words)
		e.liveness[i] = bits
		queue := []egraph.ClassID{i}
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			uCls, _ := e.g.Class(u)
			if uCls.Effectful && u != e.root {
				for _, pe := range e.parentEdgeToEffectful[u] {
					v := pe.Class
					if !bitTest(bits, v) {
						bitSet(bits, v)
						queue = append(queue, v)
					}
				}
			}
			if bitTest(bits, u) {
				for _, node := range uCls.Nodes {
					for _, ch := range node.Children {
						if !ch.Valid() {
							continue
						}
						chCls, _ := e.g.Class(ch)
						if !e.initExtractable[ch] && !chCls.Effectful && !bitTest(bits, ch) {
							bitSet(bits, ch)
							queue = append(queue, ch)
						}
					}
				}
			}
		}
	}

	for c, cls := range e.g.Classes {
		if !cls.Effectful || egraph.ClassID(c) == e.root {
			continue
		}
		i := egraph.ClassID(c)
		e.livenessDelta[i] = make(map[egraph.ClassID][]int)
		for _, pe := range e.parentEdgeToEffectful[i] {
			v := pe.Class
			if _, ok := e.livenessDelta[i][v]; ok {
				continue
			}
			var delta []int
			for w := egraph.ClassID(0); int(w) < n; w++ {
				wCls, _ := e.g.Class(w)
				if wCls.Effectful || e.initExtractable[w] {
					continue
				}
				if bitTest(e.liveness[i], w) != bitTest(e.liveness[v], w) {
					delta = append(delta, e.compressedID[w])
				}
			}
			e.livenessDelta[i][v] = delta
		}
	}
}

// computeSatellite identifies effectful classes whose every node has the
// same single effectful child, and whose every parent edge also comes
// from that same child — "satellite" classes that can only ever be
// reached one way, letting the search skip duplicate expansions beyond
// satelliteBar without losing the optimum. Ported from the "AC -
// satellite eclasses" block.
func (e *engine) computeSatellite() {
	n := e.g.NumClasses()
	e.satellitePA = make([]egraph.ClassID, n)
	e.satelliteChCnt = make([]int, n)
	for i := range e.satellitePA {
		e.satellitePA[i] = egraph.UnextractableClass
	}

	for c, cls := range e.g.Classes {
		if !cls.Effectful {
			continue
		}
		i := egraph.ClassID(c)
		candidate := egraph.UnextractableClass
		broken := false
		for _, node := range cls.Nodes {
			cp := egraph.UnextractableClass
			for _, ch := range node.Children {
				if ch.Valid() {
					if chCls, _ := e.g.Class(ch); chCls != nil && chCls.Effectful {
						cp = ch
						break
					}
				}
			}
			if cp == egraph.UnextractableClass {
				broken = true
				break
			}
			if candidate == egraph.UnextractableClass {
				candidate = cp
			} else if candidate != cp {
				broken = true
				break
			}
		}
		if broken {
			candidate = egraph.UnextractableClass
		}
		if candidate != egraph.UnextractableClass {
			parents := e.parentEdgeToEffectful[i]
			if len(parents) == 0 {
				candidate = egraph.UnextractableClass
			} else {
				for _, pe := range parents {
					if pe.Class != candidate {
						candidate = egraph.UnextractableClass
						break
					}
				}
			}
		}
		e.satellitePA[i] = candidate
	}

	for _, pa := range e.satellitePA {
		if pa != egraph.UnextractableClass {
			e.satelliteChCnt[pa]++
		}
	}
}

// search runs the Dijkstra-like lowest-ready-cost-first DP and
// reconstructs the winning state walk.
func (e *engine) search(argc egraph.ClassID, argn egraph.NodeID, initCost cost.Cost) (Statewalk, error) {
	n := e.g.NumClasses()
	e.dpmap = make([]map[hashType]int, n)
	for i := range e.dpmap {
		e.dpmap[i] = make(map[hashType]int)
	}
	e.bitsetExtra = make(map[btree.Root]bitsetExtraInfo)
	e.unifier = make(map[hashType]btree.Root)
	e.pureSaturationCache = make(map[uint64]btree.Root)

	e.dpmap[argc][0] = 0
	e.dp = append(e.dp, dpValue{cost: initCost, root: e.initBitsRoot, prev: -1, ec: argc, pick: argn})
	e.bitsetExtra[e.initBitsRoot] = bitsetExtraInfo{trueHash: 0, maskedHash: 0, array: e.initCntRoot}
	e.unifier[0] = e.initBitsRoot

	h := &minHeap{}
	heap.Init(h)
	heap.Push(h, heapItem{cost: initCost, dpID: 0})

	bestStatewalk := -1
	if e.root == argc {
		bestStatewalk = 0
	}

	for h.Len() > 0 {
		top := heap.Pop(h).(heapItem)
		c, uid := top.cost, top.dpID
		if e.dp[uid].cost != c || e.dp[uid].ec == e.root {
			continue
		}
		u := e.dp[uid].ec
		enableSatellite := e.opts.UseSatellite && e.satelliteChCnt != nil && e.satelliteChCnt[u] > satelliteBar
		satelliteUpdated := false

		for _, pe := range e.parentEdgeToEffectful[u] {
			v, vn := pe.Class, pe.Node
			isSatelliteUpdate := e.opts.UseSatellite && e.satellitePA != nil && e.satellitePA[v] == u
			if enableSatellite && isSatelliteUpdate && satelliteUpdated {
				continue
			}

			node, _ := e.g.Node(v, vn)
			canExtend := true
			for _, ch := range node.Children {
				if !ch.Valid() {
					continue
				}
				if !e.initExtractable[ch] && !e.extractPool.Get(e.dp[uid].root, e.compressedID[ch]) {
					canExtend = false
					break
				}
			}
			if !canExtend {
				continue
			}

			info := e.bitsetExtra[e.dp[uid].root]
			nc := c + e.stwCost[v][vn]
			if bestStatewalk != -1 && e.dp[bestStatewalk].cost <= nc {
				continue
			}

			var nhash hashType
			var nroot btree.Root
			if e.initExtractable[v] || e.extractPool.Get(e.dp[uid].root, e.compressedID[v]) {
				nhash = info.maskedHash
				nroot = e.dp[uid].root
			} else {
				nroot, nhash = e.saturate(uid, u, v, info)
			}

			if enableSatellite && isSatelliteUpdate {
				if nhash == info.maskedHash {
					continue
				}
				satelliteUpdated = true
			}

			if existing, ok := e.dpmap[v][nhash]; !ok {
				vid := len(e.dp)
				e.dpmap[v][nhash] = vid
				e.dp = append(e.dp, dpValue{cost: nc, root: nroot, prev: uid, ec: v, pick: vn})
				heap.Push(h, heapItem{cost: nc, dpID: vid})
				if e.widthAcc != nil {
					e.widthAcc.record(h.Len())
				}
				if v == e.root {
					bestStatewalk = vid
				}
			} else if e.dp[existing].cost > nc {
				e.dp[existing] = dpValue{cost: nc, root: nroot, prev: uid, ec: v, pick: vn}
				heap.Push(h, heapItem{cost: nc, dpID: existing})
				if e.widthAcc != nil {
					e.widthAcc.record(h.Len())
				}
				if v == e.root {
					bestStatewalk = existing
				}
			}
		}
	}

	if bestStatewalk == -1 {
		return nil, ErrNoStatewalk
	}

	var sw Statewalk
	for cur := bestStatewalk; cur != -1; cur = e.dp[cur].prev {
		sw = append(sw, Step{Class: e.dp[cur].ec, Node: e.dp[cur].pick})
	}
	return sw, nil
}

// saturate transitions the extractable-set from uid's root into v's
// newly-reached state: v itself becomes true-extractable, and every pure
// class whose remaining child count hits zero as a result is flooded in
// too, exactly as the "saturate pure" loop of statewalkDP does. Results
// are memoised per (root, v) pair (pure_saturation_cache) since the same
// transition is explored from many DP states.
func (e *engine) saturate(uid int, u, v egraph.ClassID, info bitsetExtraInfo) (btree.Root, hashType) {
	key := (uint64(e.dp[uid].root) << 32) | uint64(uint32(v))
	if cached, ok := e.pureSaturationCache[key]; ok {
		return cached, e.bitsetExtra[cached].maskedHash
	}

	e.enodeCntPool.NewVersion()
	e.extractPool.NewVersion()

	nroot := e.dp[uid].root
	ninfo := info
	if e.opts.UseLiveness {
		for _, ci := range e.livenessDelta[u][v] {
			if e.extractPool.Get(nroot, ci) {
				ninfo.maskedHash ^= e.baseVectors[ci]
			}
		}
	}

	var liveBits []uint64
	if e.opts.UseLiveness {
		liveBits = e.liveness[v]
	}

	var queue []egraph.ClassID
	queue = append(queue, v)
	vid := e.compressedID[v]
	nroot, _ = e.extractPool.Set(nroot, vid)
	ninfo.trueHash ^= e.baseVectors[vid]

	for len(queue) > 0 {
		u2 := queue[0]
		queue = queue[1:]
		for _, pe := range e.parentEdgeToPure[u2] {
			pc, pn := pe.Class, pe.Node
			if e.initExtractable[pc] || e.extractPool.Get(nroot, e.compressedID[pc]) {
				continue
			}
			eid := e.rnk[pc] + int(pn)
			newArray, rem := e.enodeCntPool.Decrement(ninfo.array, eid)
			ninfo.array = newArray
			if rem == 0 {
				newRoot, already := e.extractPool.Set(nroot, e.compressedID[pc])
				if !already {
					nroot = newRoot
					ninfo.trueHash ^= e.baseVectors[e.compressedID[pc]]
					if !e.opts.UseLiveness || bitTest(liveBits, pc) {
						ninfo.maskedHash ^= e.baseVectors[e.compressedID[pc]]
					}
					queue = append(queue, pc)
				}
			}
		}
	}

	if unified, ok := e.unifier[ninfo.trueHash]; ok {
		nroot = unified
	} else {
		e.unifier[ninfo.trueHash] = nroot
		e.bitsetExtra[nroot] = ninfo
	}
	e.pureSaturationCache[key] = nroot
	return nroot, ninfo.maskedHash
}
