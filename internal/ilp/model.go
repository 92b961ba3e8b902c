package ilp

import (
	"bufio"
	"fmt"
	"io"

	"github.com/extractlab/tiger/internal/cost"
	"github.com/extractlab/tiger/internal/egraph"
)

// choiceVar is one `s[c,n,k,m]` binary variable: does the k-th child slot
// of (parentClass,parentNode) resolve to (childClass,childNode)?
type choiceVar struct {
	Name        string
	ParentClass egraph.ClassID
	ParentNode  egraph.NodeID
	ChildIdx    int
	ChildClass  egraph.ClassID
	ChildNode   egraph.NodeID
}

// model is the binary LP encoding of one region, built by encode and
// rendered to CBC/Gurobi LP format by writeLP.
type model struct {
	g    *egraph.EGraph
	root egraph.ClassID

	pickVar  [][]string    // [c][n] -> "p_c_n"
	pickCost [][]cost.Cost // [c][n]

	// choiceIndex[c][n][k] lists indices into choices for child slot k.
	choiceIndex [][][][]int
	// childParents[c][n] lists indices into choices whose child is (c,n).
	childParents [][][]int
	orderVar     [][]string // [c][n] -> "o_c_n"

	choices  []choiceVar
	maxOrder int
}

// encode builds the binary LP model for the region rooted at root,
// following extractRegionILP's variable/constraint bookkeeping in
// ilp.cpp, but computing pick_cost per §4.7's formula (statewalk_cost for
// effectful nodes, enode_cost for pure ones) rather than the source's
// `1 + 1000*nsubregion` proxy — see DESIGN.md for why.
func encode(g *egraph.EGraph, root egraph.ClassID, statewalkCost [][]cost.Cost) (*model, error) {
	n := g.NumClasses()
	m := &model{g: g, root: root}
	m.pickVar = make([][]string, n)
	m.pickCost = make([][]cost.Cost, n)
	m.choiceIndex = make([][][][]int, n)
	m.childParents = make([][][]int, n)
	m.orderVar = make([][]string, n)

	total := 0
	for c, cls := range g.Classes {
		total += len(cls.Nodes)
		if len(cls.Nodes) == 0 {
			return nil, fmt.Errorf("ilp: class %d has no enodes", c)
		}
		m.pickVar[c] = make([]string, len(cls.Nodes))
		m.pickCost[c] = make([]cost.Cost, len(cls.Nodes))
		m.choiceIndex[c] = make([][][]int, len(cls.Nodes))
		m.childParents[c] = make([][]int, len(cls.Nodes))
		m.orderVar[c] = make([]string, len(cls.Nodes))
	}
	m.maxOrder = total
	if m.maxOrder < 1 {
		m.maxOrder = 1
	}

	for c, cls := range g.Classes {
		for ni, node := range cls.Nodes {
			m.pickVar[c][ni] = fmt.Sprintf("p_%d_%d", c, ni)
			m.orderVar[c][ni] = fmt.Sprintf("o_%d_%d", c, ni)

			var pc cost.Cost
			if cls.Effectful {
				if c < len(statewalkCost) && ni < len(statewalkCost[c]) {
					pc = statewalkCost[c][ni]
				}
			} else {
				v, err := cost.EnodeCost(&node)
				if err != nil {
					return nil, fmt.Errorf("ilp: node (%d,%d): %w", c, ni, err)
				}
				pc = v
			}
			m.pickCost[c][ni] = pc

			m.choiceIndex[c][ni] = make([][]int, len(node.Children))
			for k, ch := range node.Children {
				if !ch.Valid() {
					return nil, fmt.Errorf("ilp: node (%d,%d) child %d is unresolved", c, ni, k)
				}
				childCls, err := g.Class(ch)
				if err != nil {
					return nil, fmt.Errorf("ilp: %w", err)
				}
				if len(childCls.Nodes) == 0 {
					return nil, fmt.Errorf("ilp: child class %d has no enodes to select", ch)
				}
				idxList := make([]int, 0, len(childCls.Nodes))
				for cm := range childCls.Nodes {
					cv := choiceVar{
						Name:        fmt.Sprintf("s_%d_%d_%d_%d", c, ni, k, cm),
						ParentClass: egraph.ClassID(c),
						ParentNode:  egraph.NodeID(ni),
						ChildIdx:    k,
						ChildClass:  ch,
						ChildNode:   egraph.NodeID(cm),
					}
					idx := len(m.choices)
					m.choices = append(m.choices, cv)
					idxList = append(idxList, idx)
					m.childParents[ch][cm] = append(m.childParents[ch][cm], idx)
				}
				m.choiceIndex[c][ni][k] = idxList
			}
		}
	}
	return m, nil
}

func (m *model) numVars() int {
	total := len(m.choices)
	for _, row := range m.pickVar {
		total += len(row)
	}
	return total
}

// writeLP renders the model in the "Minimize/Subject To/Bounds/Binary/End"
// LP format CBC and Gurobi both read, section for section as
// extractRegionILP does. When noMinimize is set the objective's
// coefficients are all written as zero (the "feasibility only" mode).
func (m *model) writeLP(w io.Writer, noMinimize bool) error {
	bw := bufio.NewWriter(w)

	fmt.Fprint(bw, "Minimize\n obj:")
	first := true
	for c, row := range m.pickVar {
		for ni, name := range row {
			coef := m.pickCost[c][ni]
			if noMinimize {
				coef = 0
			}
			if !first {
				fmt.Fprint(bw, " +")
			}
			first = false
			fmt.Fprintf(bw, " %d %s", coef, name)
		}
	}
	if first {
		fmt.Fprint(bw, " 0")
	}
	fmt.Fprint(bw, "\nSubject To\n")

	fmt.Fprintf(bw, " pick_sum_%d:", m.root)
	first = true
	for _, name := range m.pickVar[m.root] {
		if first {
			fmt.Fprintf(bw, " %s", name)
		} else {
			fmt.Fprintf(bw, " + %s", name)
		}
		first = false
	}
	fmt.Fprint(bw, " >= 1\n")

	for c, rows := range m.choiceIndex {
		for ni, slots := range rows {
			for k, list := range slots {
				if len(list) == 0 {
					continue
				}
				fmt.Fprintf(bw, " child_select_%d_%d_%d:", c, ni, k)
				first = true
				for _, idx := range list {
					if first {
						fmt.Fprintf(bw, " %s", m.choices[idx].Name)
					} else {
						fmt.Fprintf(bw, " + %s", m.choices[idx].Name)
					}
					first = false
				}
				fmt.Fprint(bw, " >= 1\n")
			}
		}
	}

	for idx, cv := range m.choices {
		fmt.Fprintf(bw, " child_link_%d: %s - %s <= 0\n", idx, cv.Name, m.pickVar[cv.ChildClass][cv.ChildNode])
	}

	// Effectful linearity (§4.7 constraint 4) — enabled here, unlike the
	// commented-out block in the source this was ported from.
	for c, cls := range m.g.Classes {
		if !cls.Effectful {
			continue
		}
		for ni := range cls.Nodes {
			var effParents []int
			for _, idx := range m.childParents[c][ni] {
				parent, err := m.g.Class(m.choices[idx].ParentClass)
				if err == nil && parent.Effectful {
					effParents = append(effParents, idx)
				}
			}
			if len(effParents) == 0 {
				continue
			}
			fmt.Fprintf(bw, " child_unique_%d_%d:", c, ni)
			first = true
			for _, idx := range effParents {
				if first {
					fmt.Fprintf(bw, " %s", m.choices[idx].Name)
				} else {
					fmt.Fprintf(bw, " + %s", m.choices[idx].Name)
				}
				first = false
			}
			fmt.Fprint(bw, " <= 1\n")
		}
	}

	for idx, cv := range m.choices {
		// A self-edge (parent == child) already forces cv.Name to 0 through
		// the generic formula below: o-o+E*s<=E-1 reduces to s<=(E-1)/E,
		// satisfiable only by s=0. No separate constraint is needed, and
		// one bounding a Binary variable below 0 would make the whole
		// region infeasible instead of merely forbidding the self-pick.
		fmt.Fprintf(bw, " order_edge_%d: %s - %s + %d %s <= %d\n",
			idx, m.orderVar[cv.ChildClass][cv.ChildNode], m.orderVar[cv.ParentClass][cv.ParentNode],
			m.maxOrder, cv.Name, m.maxOrder-1)
	}

	fmt.Fprint(bw, "Bounds\n")
	for _, row := range m.orderVar {
		for _, name := range row {
			fmt.Fprintf(bw, " 0 <= %s <= %d\n", name, m.maxOrder)
		}
	}

	fmt.Fprint(bw, "Binary\n")
	for _, row := range m.pickVar {
		for _, name := range row {
			fmt.Fprintf(bw, " %s\n", name)
		}
	}
	for _, cv := range m.choices {
		fmt.Fprintf(bw, " %s\n", cv.Name)
	}
	fmt.Fprint(bw, "End\n")

	return bw.Flush()
}
