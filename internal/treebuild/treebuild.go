// Package treebuild implements §4.6's tree builder: it takes the state
// walk found by internal/tiger and turns it back into an ordinary
// e-graph whose effectful classes form a single linear chain (one node
// each, linked by rewired child slots), then runs a bag-based greedy
// extractor over that chain graph to produce a final Extraction.
//
// Ported from rebuild_egraph_statewalk and extract_regionalized_egraph_tiger
// in _examples/original_source/dag_in_context/src/tiger/tiger.cpp, and
// from statewalk_greedy_extraction in greedy.cpp — whose own comment
// calls it "unstable... but that is ok for getting an estimate"; this
// port keeps that estimate-based spirit (pick each class's locally
// cheapest node via a Dijkstra-like bag merge) while building the
// Extraction with a plain post-order walk from root rather than
// replicating the original's local batch/topo-sort scheduling trick,
// which only affects scheduling order, not which nodes are picked.
package treebuild

import (
	"container/heap"
	"fmt"

	"github.com/extractlab/tiger/internal/cost"
	"github.com/extractlab/tiger/internal/egraph"
	"github.com/extractlab/tiger/internal/prune"
	"github.com/extractlab/tiger/internal/tiger"
)

// RebuildFromWalk builds a new graph from g in which every effectful
// class along sw has exactly one node — the one the walk picked — with
// its single effectful child slot rewired to point at the next entry of
// the walk (the class one step closer to the argument). Pure classes are
// copied through unchanged; an effectful class the walk never reaches is
// left with no nodes. A class the walk visits more than once gets a fresh
// class for each later visit. The returned mapping maps gp's classes and
// nodes back to g's. Ported from rebuild_egraph_statewalk.
func RebuildFromWalk(g *egraph.EGraph, sw tiger.Statewalk) (*egraph.EGraph, *egraph.Mapping, error) {
	gp := egraph.NewEGraph(g.NumClasses())
	mapping := &egraph.Mapping{
		ClassMap: make([]egraph.ClassID, g.NumClasses()),
		NodeMap:  make([][]egraph.NodeID, g.NumClasses()),
	}

	for c, cls := range g.Classes {
		mapping.ClassMap[c] = egraph.ClassID(c)
		nc := gp.AddClass(cls.Effectful)
		if nc != egraph.ClassID(c) {
			return nil, nil, fmt.Errorf("treebuild: class identity drift at %d", c)
		}
		if !cls.Effectful {
			mapping.NodeMap[c] = make([]egraph.NodeID, len(cls.Nodes))
			for n, node := range cls.Nodes {
				nn, err := gp.AddNode(egraph.ClassID(c), node)
				if err != nil {
					return nil, nil, fmt.Errorf("treebuild: %w", err)
				}
				mapping.NodeMap[c][n] = nn
			}
		} else {
			mapping.NodeMap[c] = make([]egraph.NodeID, len(cls.Nodes))
			for n := range cls.Nodes {
				mapping.NodeMap[c][n] = egraph.NodeID(egraph.UnextractableClass)
			}
		}
	}

	last := egraph.UnextractableClass
	for i := len(sw) - 1; i >= 0; i-- {
		uc, un := sw[i].Class, sw[i].Node
		origNode, err := g.Node(uc, un)
		if err != nil {
			return nil, nil, fmt.Errorf("treebuild: %w", err)
		}

		// origNode.Children aliases g's backing array; the node we add to
		// gp gets its own copy so the effectful-child rewire below never
		// mutates the original graph.
		newNode := egraph.ENode{Head: origNode.Head, Children: append([]egraph.ClassID(nil), origNode.Children...)}

		var vc egraph.ClassID
		gpCls, _ := gp.Class(uc)
		if len(gpCls.Nodes) == 0 {
			vc = uc
			if _, err := gp.AddNode(vc, newNode); err != nil {
				return nil, nil, fmt.Errorf("treebuild: %w", err)
			}
			// uc was emptied above, so the walk's node is gp's node 0.
			mapping.NodeMap[uc] = []egraph.NodeID{un}
		} else {
			vc = gp.AddClass(true)
			if _, err := gp.AddNode(vc, newNode); err != nil {
				return nil, nil, fmt.Errorf("treebuild: %w", err)
			}
			mapping.ClassMap = append(mapping.ClassMap, uc)
			mapping.NodeMap = append(mapping.NodeMap, []egraph.NodeID{un})
		}

		vcCls, _ := gp.Class(vc)
		node := &vcCls.Nodes[0]
		for j, ch := range node.Children {
			if !ch.Valid() {
				continue
			}
			if chCls, _ := g.Class(ch); chCls != nil && chCls.Effectful {
				node.Children[j] = last
			}
		}
		last = vc
	}

	return gp, mapping, nil
}

// bag is the per-class cost attribution used by the greedy picker: a
// class never counts for more than its cheapest attributed cost, even
// when several live descendants share it.
type bag map[egraph.ClassID]cost.Cost

func mergeBags(bags ...bag) bag {
	out := make(bag)
	for _, b := range bags {
		for c, v := range b {
			if cur, ok := out[c]; !ok || v < cur {
				out[c] = v
			}
		}
	}
	return out
}

func bagSum(b bag) cost.Cost {
	var s cost.Cost
	for _, v := range b {
		s += v
	}
	return s
}

// leafCost is a class's own node-cost contribution to its bag: zero for
// an effectful class, since it is already committed to the state walk
// and must not be charged again into every pure ancestor that merges
// its bag — only the classes it depends on still cost anything.
// Ported from statewalk_greedy_extraction's candidate formula (greedy.cpp),
// which adds get_enode_cost(n) only "if (!g.eclasses[pc].isEffectful)".
func leafCost(node *egraph.ENode, effectful bool) (cost.Cost, error) {
	if effectful {
		return 0, nil
	}
	return cost.EnodeCost(node)
}

// greedyItem is one candidate (class,node,cost) entry of the lowest-
// cost-first frontier used by GreedyExtract.
type greedyItem struct {
	class egraph.ClassID
	node  egraph.NodeID
	sum   cost.Cost
	bag   bag
}

type greedyHeap []greedyItem

func (h greedyHeap) Len() int            { return len(h) }
func (h greedyHeap) Less(i, j int) bool  { return h[i].sum < h[j].sum }
func (h greedyHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *greedyHeap) Push(x interface{}) { *h = append(*h, x.(greedyItem)) }
func (h *greedyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// GreedyExtract picks, for every class reachable from root, its locally
// cheapest node via a bag-based Dijkstra-like propagation (ported from
// statewalk_greedy_extraction's SCost model, minus its local
// batch-scheduling optimisation), then assembles the Extraction with a
// post-order walk from root. An effectful class's own node cost never
// enters its bag (leafCost), matching statewalk_greedy_extraction's
// "only add get_enode_cost when the class isn't effectful" rule — once
// an effectful class's bag settles at cost zero for its own contribution,
// every pure parent waiting on it is recomputed the moment remaining[]
// hits zero, which is immediate by construction here (there is no lazy
// heap requeue to replicate: a (class,node) candidate is computed exactly
// once, after every one of its children has already finalized).
func GreedyExtract(g *egraph.EGraph, root egraph.ClassID) (*egraph.Extraction, error) {
	n := g.NumClasses()
	pick := make([]egraph.NodeID, n)
	winningBag := make([]bag, n)
	finalized := make([]bool, n)
	for i := range pick {
		pick[i] = egraph.NodeID(egraph.UnextractableClass)
	}

	remaining := make([][]int, n)
	for c, cls := range g.Classes {
		remaining[c] = make([]int, len(cls.Nodes))
		for ni, node := range cls.Nodes {
			cnt := 0
			for _, ch := range node.Children {
				if ch.Valid() {
					cnt++
				}
			}
			remaining[c][ni] = cnt
		}
	}
	rev := prune.ComputeReverseIndex(g)

	h := &greedyHeap{}
	heap.Init(h)
	for c, cls := range g.Classes {
		for ni, node := range cls.Nodes {
			if len(node.Children) == 0 {
				base, err := leafCost(&node, cls.Effectful)
				if err != nil {
					return nil, fmt.Errorf("treebuild: %w", err)
				}
				heap.Push(h, greedyItem{egraph.ClassID(c), egraph.NodeID(ni), base, bag{egraph.ClassID(c): base}})
			}
		}
	}

	for h.Len() > 0 {
		item := heap.Pop(h).(greedyItem)
		if finalized[item.class] {
			continue
		}
		finalized[item.class] = true
		pick[item.class] = item.node
		winningBag[item.class] = item.bag

		for _, pe := range rev[item.class] {
			remaining[pe.Class][pe.Node]--
			if remaining[pe.Class][pe.Node] != 0 {
				continue
			}
			node := &g.Classes[pe.Class].Nodes[pe.Node]
			base, err := leafCost(node, g.Classes[pe.Class].Effectful)
			if err != nil {
				return nil, fmt.Errorf("treebuild: %w", err)
			}
			var childBags []bag
			for _, ch := range node.Children {
				if ch.Valid() {
					childBags = append(childBags, winningBag[ch])
				}
			}
			merged := mergeBags(childBags...)
			if cur, ok := merged[pe.Class]; !ok || cur > base {
				merged[pe.Class] = base
			}
			heap.Push(h, greedyItem{pe.Class, pe.Node, bagSum(merged), merged})
		}
	}

	if pick[root] == egraph.NodeID(egraph.UnextractableClass) {
		return nil, fmt.Errorf("treebuild: root class %d has no extractable node", root)
	}
	return buildExtraction(g, root, pick)
}

// buildExtraction runs a post-order walk from root over the per-class
// picks, emitting one ExtractionNode per distinct reachable class in
// dependency order.
func buildExtraction(g *egraph.EGraph, root egraph.ClassID, pick []egraph.NodeID) (*egraph.Extraction, error) {
	e := &egraph.Extraction{}
	position := make(map[egraph.ClassID]int)

	var visit func(c egraph.ClassID) (int, error)
	visiting := make(map[egraph.ClassID]bool)
	visit = func(c egraph.ClassID) (int, error) {
		if pos, ok := position[c]; ok {
			return pos, nil
		}
		if visiting[c] {
			return 0, fmt.Errorf("treebuild: %w: class %d", egraph.ErrCycle, c)
		}
		visiting[c] = true
		defer delete(visiting, c)

		n := pick[c]
		if n == egraph.NodeID(egraph.UnextractableClass) {
			return 0, fmt.Errorf("treebuild: class %d has no pick", c)
		}
		node, err := g.Node(c, n)
		if err != nil {
			return 0, fmt.Errorf("treebuild: %w", err)
		}
		children := make([]int, len(node.Children))
		for i, ch := range node.Children {
			if !ch.Valid() {
				children[i] = -1
				continue
			}
			pos, err := visit(ch)
			if err != nil {
				return 0, err
			}
			children[i] = pos
		}
		e.Nodes = append(e.Nodes, egraph.ExtractionNode{Class: c, Node: n, Children: children})
		pos := len(e.Nodes) - 1
		position[c] = pos
		return pos, nil
	}

	if _, err := visit(root); err != nil {
		return nil, err
	}
	return e, nil
}

// ExtractRegion runs the full §4.6 pipeline for one already-regionalised
// graph g rooted at root: find the cheapest state walk, rebuild the
// graph around it, prune what the rebuild stranded, and greedily extract
// the result — ported from extract_regionalized_egraph_tiger.
func ExtractRegion(g *egraph.EGraph, root egraph.ClassID, statewalkCost [][]cost.Cost, opts tiger.Options) (*egraph.Extraction, error) {
	sw, err := tiger.StatewalkDP(g, root, statewalkCost, opts)
	if err != nil {
		return nil, fmt.Errorf("treebuild: %w", err)
	}

	gp, gp2g, err := RebuildFromWalk(g, sw)
	if err != nil {
		return nil, err
	}

	res, err := prune.Prune(gp, root)
	if err != nil {
		return nil, fmt.Errorf("treebuild: %w", err)
	}
	nroot := res.Mapping.MapClass(root)

	localExtraction, err := GreedyExtract(res.Graph, nroot)
	if err != nil {
		return nil, err
	}

	if err := prune.ProjectExtraction(res, localExtraction); err != nil {
		return nil, fmt.Errorf("treebuild: %w", err)
	}
	if err := egraph.ProjectExtraction(gp2g, localExtraction); err != nil {
		return nil, fmt.Errorf("treebuild: %w", err)
	}
	if err := localExtraction.EffectSafe(g); err != nil {
		return nil, fmt.Errorf("treebuild: %w", err)
	}
	return localExtraction, nil
}
