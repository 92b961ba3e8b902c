// Package region implements §4.4's regionaliser: given a region root, it
// collects the subgraph reachable through at most one effectful child per
// node (the primary effectful walk) plus the pure fringe, and rebuilds it
// as a standalone EGraph whose classes keep their relative discovery
// order. Secondary effectful children (subregion roots) are dropped from
// the rebuilt node's child list entirely; a caller holding the outer
// graph and the returned ToOuter mapping can always recover them by
// mapping a region (class,node) back to the outer graph and reading the
// outer node's full child list, exactly as extract_region_tiger does in
// regionalize.cpp. Each dropped secondary effectful child is also tallied
// into Region.NSubregion, keyed by the rebuilt node that dropped it.
//
// Ported from construct_regionalized_egraph and find_all_region_roots in
// _examples/original_source/dag_in_context/src/tiger/regionalize.cpp,
// following bfs/bfs.go's walker-struct shape (queue, visited set, an
// enqueue/loop split) in place of the original's global timestamp trick.
package region

import (
	"fmt"

	"github.com/extractlab/tiger/internal/egraph"
	"github.com/extractlab/tiger/internal/prune"
)

// Region is a regionalised subgraph plus the mapping back to the outer
// graph it was carved out of.
type Region struct {
	Graph *egraph.EGraph
	Root  egraph.ClassID

	// ToOuter maps every class and node of Graph back to the outer graph
	// Construct was called with, composing the BFS discovery order with
	// whatever pruning collapsed afterwards (gr2grp composed with gr2g,
	// per construct_regionalized_egraph's final loop).
	ToOuter *egraph.Mapping

	// NSubregion[c][n] counts the secondary effectful children dropped
	// from Graph's node (c,n) during rebuild — one per subregion root the
	// node used to point at directly. Used as a cost penalty by anything
	// that favors fewer subregion boundaries.
	NSubregion [][]int
}

// walker holds the BFS discovery state shared by both collection passes.
type walker struct {
	g       *egraph.EGraph
	visited map[egraph.ClassID]bool
	order   []egraph.ClassID // outer-graph class ids, in discovery order
	local   map[egraph.ClassID]int
}

func newWalker(g *egraph.EGraph) *walker {
	return &walker{
		g:       g,
		visited: make(map[egraph.ClassID]bool),
		local:   make(map[egraph.ClassID]int),
	}
}

func (w *walker) enqueue(c egraph.ClassID) {
	if w.visited[c] {
		return
	}
	w.visited[c] = true
	w.local[c] = len(w.order)
	w.order = append(w.order, c)
}

// Construct builds the regionalised subgraph rooted at root: a BFS over
// primary effectful children first, then a second BFS over the pure
// fringe of everything discovered so far, matching the two-phase
// structure of construct_regionalized_egraph.
func Construct(g *egraph.EGraph, root egraph.ClassID) (*Region, error) {
	w := newWalker(g)
	w.enqueue(root)

	// Phase 1: effectful walk. Only the first effectful child of each
	// node continues the region; later effectful children are subregion
	// roots and are left for a separate call to Construct.
	for i := 0; i < len(w.order); i++ {
		cls, err := g.Class(w.order[i])
		if err != nil {
			return nil, fmt.Errorf("region: %w", err)
		}
		for _, n := range cls.Nodes {
			seenEffectful := false
			for _, ch := range n.Children {
				if !ch.Valid() {
					continue
				}
				chCls, err := g.Class(ch)
				if err != nil {
					return nil, fmt.Errorf("region: %w", err)
				}
				if chCls.Effectful {
					if !seenEffectful {
						w.enqueue(ch)
					}
					seenEffectful = true
				}
			}
		}
	}

	// Phase 2: pure fringe of everything discovered so far.
	effectfulCount := len(w.order)
	for i := 0; i < len(w.order); i++ {
		cls, err := g.Class(w.order[i])
		if err != nil {
			return nil, fmt.Errorf("region: %w", err)
		}
		for _, n := range cls.Nodes {
			for _, ch := range n.Children {
				if !ch.Valid() {
					continue
				}
				chCls, err := g.Class(ch)
				if err != nil {
					return nil, fmt.Errorf("region: %w", err)
				}
				if !chCls.Effectful {
					w.enqueue(ch)
				}
			}
		}
	}
	_ = effectfulCount

	gr := egraph.NewEGraph(len(w.order))
	for _, oc := range w.order {
		cls, _ := g.Class(oc)
		gr.AddClass(cls.Effectful)
	}

	// nsubregionPre[c][n] counts the secondary effectful children dropped
	// from gr's node (c,n), indexed before pruning; re-keyed into grp's
	// space below once the final node ids are known.
	nsubregionPre := make([][]int, len(w.order))

	for i, oc := range w.order {
		cls, _ := g.Class(oc)
		for _, n := range cls.Nodes {
			children := make([]egraph.ClassID, 0, len(n.Children))
			seenEffectful := false
			dropped := 0
			for _, ch := range n.Children {
				if ch.Valid() {
					chCls, err := g.Class(ch)
					if err != nil {
						return nil, fmt.Errorf("region: %w", err)
					}
					if chCls.Effectful {
						if seenEffectful {
							// Secondary effectful child: a subregion root.
							// Dropped from this node's child list; the
							// caller recovers it via ToOuter + the outer
							// graph, as extract_region_tiger does.
							dropped++
							continue
						}
						seenEffectful = true
					}
				}
				if !ch.Valid() || !w.visited[ch] {
					children = append(children, egraph.UnextractableClass)
					continue
				}
				children = append(children, egraph.ClassID(w.local[ch]))
			}
			if _, err := gr.AddNode(egraph.ClassID(i), egraph.ENode{Head: n.Head, Children: children}); err != nil {
				return nil, fmt.Errorf("region: %w", err)
			}
			nsubregionPre[i] = append(nsubregionPre[i], dropped)
		}
	}

	res, err := prune.Prune(gr, egraph.ClassID(w.local[root]))
	if err != nil {
		return nil, fmt.Errorf("region: %w", err)
	}
	grp := res.Graph
	gr2grp := res.Mapping
	nroot := gr2grp.MapClass(egraph.ClassID(w.local[root]))

	nsubregion := make([][]int, grp.NumClasses())
	for c := 0; c < grp.NumClasses(); c++ {
		cls, _ := grp.Class(egraph.ClassID(c))
		nsubregion[c] = make([]int, len(cls.Nodes))
	}
	for preC, row := range nsubregionPre {
		for preN, count := range row {
			if count == 0 {
				continue
			}
			newC := gr2grp.MapClass(egraph.ClassID(preC))
			if newC == egraph.UnextractableClass {
				continue
			}
			newN := gr2grp.MapNode(egraph.ClassID(preC), egraph.NodeID(preN))
			if newN == egraph.NodeID(egraph.UnextractableClass) {
				continue
			}
			nsubregion[newC][newN] = count
		}
	}

	grp2gr := prune.InverseMapping(res)
	// Compose grp2gr (region-pruned -> region-unpruned) with the BFS
	// discovery order (region-unpruned -> outer) to get grp2g directly,
	// the same "composes to grp2g" step construct_regionalized_egraph
	// performs after inverting.
	toOuter := &egraph.Mapping{
		ClassMap: make([]egraph.ClassID, grp.NumClasses()),
		NodeMap:  make([][]egraph.NodeID, grp.NumClasses()),
	}
	for c := 0; c < grp.NumClasses(); c++ {
		mid := grp2gr.MapClass(egraph.ClassID(c))
		if mid == egraph.UnextractableClass {
			toOuter.ClassMap[c] = egraph.UnextractableClass
		} else {
			toOuter.ClassMap[c] = w.order[mid]
		}
		cls, _ := grp.Class(egraph.ClassID(c))
		toOuter.NodeMap[c] = make([]egraph.NodeID, len(cls.Nodes))
		for n := range cls.Nodes {
			toOuter.NodeMap[c][n] = grp2gr.MapNode(egraph.ClassID(c), egraph.NodeID(n))
		}
	}

	return &Region{Graph: grp, Root: nroot, ToOuter: toOuter, NSubregion: nsubregion}, nil
}

// DumpRegion renders a Region for stderr diagnostics on a fatal
// state-walk failure (§7 kind 1): the region's own graph dump via
// egraph.Dump, plus the root's outer-graph identity so the failure can
// be located in the original document. Mirrors the DEBUG_ASSERT dump
// macros of debug.h, which print the offending e-graph before aborting.
func DumpRegion(r *Region) string {
	outerRoot := r.ToOuter.MapClass(r.Root)
	out := fmt.Sprintf("region: local root=%d outer root=%d\n", r.Root, outerRoot)
	out += egraph.Dump(r.Graph)
	return out
}

// FindRegionRoots returns the region roots of g: the function roots in
// funRoots, plus every secondary effectful child (position 2+ among an
// effectful node's effectful children) found anywhere in the graph,
// whether or not it is reachable from funRoots, deduplicated and in
// first-discovery order. Ported from
// find_all_region_roots.
func FindRegionRoots(g *egraph.EGraph, funRoots []egraph.ClassID) []egraph.ClassID {
	seen := make(map[egraph.ClassID]bool)
	var ret []egraph.ClassID
	for _, v := range funRoots {
		if !seen[v] {
			seen[v] = true
			ret = append(ret, v)
		}
	}
	for _, cls := range g.Classes {
		if !cls.Effectful {
			continue
		}
		for _, n := range cls.Nodes {
			seenEffectful := false
			for _, ch := range n.Children {
				if !ch.Valid() {
					continue
				}
				chCls, err := g.Class(ch)
				if err != nil {
					continue
				}
				if !chCls.Effectful {
					continue
				}
				if !seenEffectful {
					seenEffectful = true
					continue
				}
				if !seen[ch] {
					seen[ch] = true
					ret = append(ret, ch)
				}
			}
		}
	}
	return ret
}
