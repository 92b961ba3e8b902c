// Package prune implements §4.2's e-graph pruning and mapping: removing
// every node whose transitive descendants can never be fully grounded in
// leaves, and, when a root is given, every class not reachable from it
// through extractable nodes.
//
// Ported from prune_unextractable_enodes in egraphin.cpp: a two-phase
// worklist identical in shape to bfs/bfs.go's walker (queue, visited set,
// enqueue/loop split) but driven by a reverse index and per-node
// unsatisfied-child counters instead of graph edges.
package prune

import (
	"errors"
	"fmt"

	"github.com/extractlab/tiger/internal/egraph"
)

// ErrUnreachableRoot indicates the requested root class does not survive
// phase 1 (it can never be grounded in leaves at all).
var ErrUnreachableRoot = errors.New("prune: root class is not extractable")

// ReverseIndex maps a class to every (class, node) pair that has it as a
// child — compute_reverse_index in egraphin.cpp.
type ReverseIndex map[egraph.ClassID][]parentEdge

type parentEdge struct {
	Class egraph.ClassID
	Node  egraph.NodeID
}

// ComputeReverseIndex builds the parent index for g, skipping the
// sentinel child the way compute_reverse_index does.
func ComputeReverseIndex(g *egraph.EGraph) ReverseIndex {
	idx := make(ReverseIndex)
	for c, cls := range g.Classes {
		for n, node := range cls.Nodes {
			for _, ch := range node.Children {
				if !ch.Valid() {
					continue
				}
				idx[ch] = append(idx[ch], parentEdge{Class: egraph.ClassID(c), Node: egraph.NodeID(n)})
			}
		}
	}
	return idx
}

// Result bundles the pruned graph with the mapping from the original
// graph's identifiers into it.
type Result struct {
	Graph   *egraph.EGraph
	Mapping *egraph.Mapping
}

// Prune runs both phases of §4.2's worklist algorithm. root is optional;
// pass egraph.UnextractableClass to skip phase 2 (prune only for global
// extractability, keeping every extractable class reachable from
// anywhere).
func Prune(g *egraph.EGraph, root egraph.ClassID) (*Result, error) {
	extractable, extractableNode := phase1(g)
	if root.Valid() && !extractable[root] {
		return nil, ErrUnreachableRoot
	}

	keepNode := extractableNode
	if root.Valid() {
		keepNode = phase2(g, root, extractable, extractableNode)
	}

	return rebuild(g, keepNode)
}

// phase1 seeds with zero-child nodes and propagates to parents,
// decrementing unsatisfied-child counters, marking a class extractable
// the moment any of its nodes becomes extractable.
func phase1(g *egraph.EGraph) (classExtractable map[egraph.ClassID]bool, nodeExtractable map[egraph.ClassID]map[egraph.NodeID]bool) {
	classExtractable = make(map[egraph.ClassID]bool)
	nodeExtractable = make(map[egraph.ClassID]map[egraph.NodeID]bool)
	for c, cls := range g.Classes {
		nodeExtractable[egraph.ClassID(c)] = make(map[egraph.NodeID]bool, len(cls.Nodes))
	}

	remaining := make(map[egraph.ClassID]map[egraph.NodeID]int)
	type queueItem struct {
		class egraph.ClassID
		node  egraph.NodeID
	}
	var queue []queueItem

	for c, cls := range g.Classes {
		remaining[egraph.ClassID(c)] = make(map[egraph.NodeID]int, len(cls.Nodes))
		for n, node := range cls.Nodes {
			cnt := 0
			for _, ch := range node.Children {
				if ch.Valid() {
					cnt++
				}
			}
			remaining[egraph.ClassID(c)][egraph.NodeID(n)] = cnt
			if cnt == 0 {
				queue = append(queue, queueItem{egraph.ClassID(c), egraph.NodeID(n)})
			}
		}
	}

	rev := ComputeReverseIndex(g)
	markedNode := make(map[egraph.ClassID]map[egraph.NodeID]bool)
	for c := range remaining {
		markedNode[c] = make(map[egraph.NodeID]bool)
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if markedNode[item.class][item.node] {
			continue
		}
		markedNode[item.class][item.node] = true
		nodeExtractable[item.class][item.node] = true
		wasNew := !classExtractable[item.class]
		classExtractable[item.class] = true
		if !wasNew {
			continue
		}
		for _, pe := range rev[item.class] {
			remaining[pe.Class][pe.Node]--
			if remaining[pe.Class][pe.Node] == 0 {
				queue = append(queue, queueItem{pe.Class, pe.Node})
			}
		}
	}
	return classExtractable, nodeExtractable
}

// phase2 runs a BFS from root keeping only nodes whose children are all
// already marked extractable by phase 1.
func phase2(g *egraph.EGraph, root egraph.ClassID, classExtractable map[egraph.ClassID]bool, extractableNode map[egraph.ClassID]map[egraph.NodeID]bool) map[egraph.ClassID]map[egraph.NodeID]bool {
	keep := make(map[egraph.ClassID]map[egraph.NodeID]bool)
	for c := range extractableNode {
		keep[c] = make(map[egraph.NodeID]bool)
	}
	visited := map[egraph.ClassID]bool{root: true}
	queue := []egraph.ClassID{root}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		cls, _ := g.Class(c)
		for n, node := range cls.Nodes {
			if !extractableNode[c][egraph.NodeID(n)] {
				continue
			}
			allExtractable := true
			for _, ch := range node.Children {
				if ch.Valid() && !classExtractable[ch] {
					allExtractable = false
					break
				}
			}
			if !allExtractable {
				continue
			}
			keep[c][egraph.NodeID(n)] = true
			for _, ch := range node.Children {
				if ch.Valid() && !visited[ch] {
					visited[ch] = true
					queue = append(queue, ch)
				}
			}
		}
	}
	return keep
}

// rebuild constructs the pruned graph from the keep set, composing the
// forward Mapping as it goes — classes with no kept node are dropped
// entirely, matching "rebuild a pruned EGraph+EGraphMapping" in
// prune_unextractable_enodes.
func rebuild(g *egraph.EGraph, keep map[egraph.ClassID]map[egraph.NodeID]bool) (*Result, error) {
	mapping := egraph.NewMapping(g)
	newGraph := egraph.NewEGraph(g.NumClasses())

	// First pass: allocate a new class for every source class with at
	// least one kept node, preserving relative order.
	for c, cls := range g.Classes {
		cid := egraph.ClassID(c)
		if len(keep[cid]) == 0 {
			continue
		}
		nc := newGraph.AddClass(cls.Effectful)
		mapping.ClassMap[c] = nc
	}

	// Second pass: copy kept nodes, remapping children; a child whose
	// class was dropped becomes the sentinel.
	for c, cls := range g.Classes {
		cid := egraph.ClassID(c)
		nc := mapping.ClassMap[c]
		if nc == egraph.UnextractableClass {
			continue
		}
		for n, node := range cls.Nodes {
			nid := egraph.NodeID(n)
			if !keep[cid][nid] {
				continue
			}
			children := make([]egraph.ClassID, len(node.Children))
			for k, ch := range node.Children {
				if ch.Valid() {
					children[k] = mapping.MapClass(ch)
				} else {
					children[k] = egraph.UnextractableClass
				}
			}
			newNode := egraph.ENode{Head: node.Head, Children: children}
			newID, err := newGraph.AddNode(nc, newNode)
			if err != nil {
				return nil, fmt.Errorf("prune: rebuild: %w", err)
			}
			mapping.NodeMap[c][n] = newID
		}
	}

	if err := mapping.ChildConsistent(g, newGraph); err != nil {
		return nil, fmt.Errorf("prune: %w", err)
	}
	return &Result{Graph: newGraph, Mapping: mapping}, nil
}

// InverseMapping builds the reverse table for a pruned Result, the
// inverse_mapping operation of §4.2.
func InverseMapping(res *Result) *egraph.Mapping {
	return res.Mapping.Inverse(res.Graph.NumClasses())
}

// ProjectExtraction rewrites an extraction in the pruned graph's space
// back through res.Mapping's inverse into the original graph's space.
func ProjectExtraction(res *Result, e *egraph.Extraction) error {
	inv := InverseMapping(res)
	return egraph.ProjectExtraction(inv, e)
}
