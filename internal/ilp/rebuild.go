package ilp

import (
	"fmt"

	"github.com/extractlab/tiger/internal/egraph"
)

// rebuildExtraction reconstructs an Extraction from the solver's binary
// assignment: which nodes are picked, and for each picked node's child
// slot, which child node the choice variables selected. Following §4.7
// "Extraction rebuild", when more than one choice variable is set for the
// same slot the lowest child-node index wins (robustness against solver
// rounding); a depth-first build with cycle detection then assembles the
// topologically-ordered record list.
func rebuildExtraction(g *egraph.EGraph, m *model, values map[string]float64) (*egraph.Extraction, error) {
	pickSelected := make([][]bool, len(m.pickVar))
	for c, row := range m.pickVar {
		pickSelected[c] = make([]bool, len(row))
		for ni, name := range row {
			pickSelected[c][ni] = values[name] > 0.5
		}
	}

	var rootNodes []egraph.NodeID
	for ni, sel := range pickSelected[m.root] {
		if sel {
			rootNodes = append(rootNodes, egraph.NodeID(ni))
		}
	}
	if len(rootNodes) == 0 {
		return nil, fmt.Errorf("ilp: no root enode selected")
	}

	childSelection := make([][][]egraph.NodeID, len(m.choiceIndex))
	for c, rows := range m.choiceIndex {
		childSelection[c] = make([][]egraph.NodeID, len(rows))
		for ni, slots := range rows {
			childSelection[c][ni] = make([]egraph.NodeID, len(slots))
			for k := range slots {
				childSelection[c][ni][k] = egraph.NodeID(egraph.UnextractableClass)
			}
		}
	}
	for c, rows := range m.choiceIndex {
		for ni, slots := range rows {
			for k, list := range slots {
				for _, idx := range list {
					if values[m.choices[idx].Name] <= 0.5 {
						continue
					}
					cur := childSelection[c][ni][k]
					cand := m.choices[idx].ChildNode
					if cur == egraph.NodeID(egraph.UnextractableClass) || cand < cur {
						childSelection[c][ni][k] = cand
					}
				}
			}
		}
	}

	e := &egraph.Extraction{}
	position := make(map[int64]int)
	visiting := make(map[int64]bool)
	key := func(c egraph.ClassID, n egraph.NodeID) int64 {
		return int64(c)<<32 | int64(uint32(n))
	}

	var build func(c egraph.ClassID, n egraph.NodeID) (int, error)
	build = func(c egraph.ClassID, n egraph.NodeID) (int, error) {
		k := key(c, n)
		if pos, ok := position[k]; ok {
			return pos, nil
		}
		if visiting[k] {
			return 0, fmt.Errorf("ilp: %w: (%d,%d)", egraph.ErrCycle, c, n)
		}
		if !pickSelected[c][n] {
			return 0, fmt.Errorf("ilp: node (%d,%d) required but not selected by solver", c, n)
		}
		visiting[k] = true
		node, err := g.Node(c, n)
		if err != nil {
			return 0, fmt.Errorf("ilp: %w", err)
		}
		children := make([]int, len(node.Children))
		for ci, childClass := range node.Children {
			childNode := childSelection[c][n][ci]
			if childNode == egraph.NodeID(egraph.UnextractableClass) {
				return 0, fmt.Errorf("ilp: missing child selection for (%d,%d) slot %d", c, n, ci)
			}
			pos, err := build(childClass, childNode)
			if err != nil {
				return 0, err
			}
			children[ci] = pos
		}
		delete(visiting, k)
		e.Nodes = append(e.Nodes, egraph.ExtractionNode{Class: c, Node: n, Children: children})
		pos := len(e.Nodes) - 1
		position[k] = pos
		return pos, nil
	}

	for _, rn := range rootNodes {
		if _, err := build(m.root, rn); err != nil {
			return nil, err
		}
	}
	if len(e.Nodes) == 0 {
		return nil, fmt.Errorf("ilp: extraction is empty")
	}
	return e, nil
}

// diagnoseInfeasible renders a short trace of the primary effectful chain
// starting at root, following each node's first effectful child until it
// either terminates (an argument) or revisits a class — the same
// information the source's infeasibility path prints before aborting
// (SPEC_FULL.md "SUPPLEMENTED FEATURES" §2), used here as a diagnostic
// string rather than a direct process abort.
func diagnoseInfeasible(g *egraph.EGraph, root egraph.ClassID) string {
	var out string
	visited := make(map[egraph.ClassID]bool)
	c := root
	for {
		cls, err := g.Class(c)
		if err != nil || len(cls.Nodes) == 0 {
			break
		}
		node := cls.Nodes[0]
		out += fmt.Sprintf("visiting node 0 in eclass %d (%s)\n", c, node.Head)
		if visited[c] {
			out += fmt.Sprintf("state walk reuses eclass %d\n", c)
			break
		}
		visited[c] = true
		next, ok, err := g.EffectfulChild(&node)
		if err != nil || !ok {
			break
		}
		c = next
	}
	return out
}
