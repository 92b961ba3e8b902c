package cost

import (
	"container/heap"
	"fmt"

	"github.com/extractlab/tiger/internal/egraph"
)

// Bag is a cost aggregation that counts each class at most once across a
// subtree: a map from class identifier to the minimum incremental cost
// at which that class was brought into the bag (GLOSSARY "Bag cost").
// Merging two bags at a shared parent takes the per-class minimum,
// defeating the double-counting that a naive sum-of-subtree-costs would
// suffer when a class is reachable through more than one child.
type Bag map[egraph.ClassID]Cost

func mergeBags(bags ...Bag) Bag {
	out := make(Bag)
	for _, b := range bags {
		for c, v := range b {
			if cur, ok := out[c]; !ok || v < cur {
				out[c] = v
			}
		}
	}
	return out
}

func bagSum(b Bag) Cost {
	var sum Cost
	for _, v := range b {
		sum += v
	}
	return sum
}

// Oracle holds the result of running the greedy cost propagation over an
// e-graph: a scalar eclass_cost per class and, for every effectful node,
// its statewalk_cost (§4.3 "second pass").
type Oracle struct {
	g             *egraph.EGraph
	EClassCost    []Cost // indexed by ClassID
	bag           []Bag  // indexed by ClassID; the winning node's bag for that class
	StatewalkCost [][]Cost // StatewalkCost[c][n], only meaningful for effectful classes
}

// heap item for the Dijkstra-like "lowest ready cost first" propagation.
type readyItem struct {
	class egraph.ClassID
	node  egraph.NodeID
	cost  Cost
	bag   Bag
}

type readyHeap []readyItem

func (h readyHeap) Len() int            { return len(h) }
func (h readyHeap) Less(i, j int) bool  { return h[i].cost < h[j].cost }
func (h readyHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *readyHeap) Push(x interface{}) { *h = append(*h, x.(readyItem)) }
func (h *readyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Compute runs the greedy cost oracle over g, producing eclass_cost for
// every class and statewalk_cost for every effectful node (§4.3).
func Compute(g *egraph.EGraph) (*Oracle, error) {
	o := &Oracle{
		g:          g,
		EClassCost: make([]Cost, g.NumClasses()),
		bag:        make([]Bag, g.NumClasses()),
	}
	for c := range o.EClassCost {
		o.EClassCost[c] = Inf
	}

	remaining := make([][]int, g.NumClasses())
	for c, cls := range g.Classes {
		remaining[c] = make([]int, len(cls.Nodes))
		for n, node := range cls.Nodes {
			cnt := 0
			for _, ch := range node.Children {
				if ch.Valid() {
					cnt++
				}
			}
			remaining[c][n] = cnt
		}
	}

	h := &readyHeap{}
	heap.Init(h)

	// seed every zero-child node as immediately ready
	for c, cls := range g.Classes {
		for n, node := range cls.Nodes {
			if len(node.Children) == 0 {
				base, err := o.nodeBaseCost(&node)
				if err != nil {
					return nil, err
				}
				heap.Push(h, readyItem{class: egraph.ClassID(c), node: egraph.NodeID(n), cost: base, bag: Bag{egraph.ClassID(c): base}})
			}
		}
	}

	finalized := make([]bool, g.NumClasses())
	rev := make(map[egraph.ClassID][]struct {
		class egraph.ClassID
		node  egraph.NodeID
	})
	for c, cls := range g.Classes {
		for n, node := range cls.Nodes {
			for _, ch := range node.Children {
				if ch.Valid() {
					rev[ch] = append(rev[ch], struct {
						class egraph.ClassID
						node  egraph.NodeID
					}{egraph.ClassID(c), egraph.NodeID(n)})
				}
			}
		}
	}

	for h.Len() > 0 {
		item := heap.Pop(h).(readyItem)
		if finalized[item.class] {
			continue
		}
		finalized[item.class] = true
		o.EClassCost[item.class] = item.cost
		o.bag[item.class] = item.bag

		for _, parent := range rev[item.class] {
			remaining[parent.class][parent.node]--
			if remaining[parent.class][parent.node] == 0 {
				node := &g.Classes[parent.class].Nodes[parent.node]
				cost, bag, err := o.evaluateNode(node)
				if err != nil {
					return nil, err
				}
				heap.Push(h, readyItem{class: parent.class, node: parent.node, cost: cost, bag: bag})
			}
		}
	}

	if err := o.computeStatewalkCost(); err != nil {
		return nil, err
	}
	return o, nil
}

// nodeBaseCost returns a zero-child node's fixed operator cost.
func (o *Oracle) nodeBaseCost(n *egraph.ENode) (Cost, error) {
	return EnodeCost(n)
}

// evaluateNode computes a node's candidate (cost, bag) from its already-
// finalized children, applying the If/DoWhile special cases of §4.3.
func (o *Oracle) evaluateNode(n *egraph.ENode) (Cost, Bag, error) {
	switch n.Op() {
	case "If":
		return o.evaluateIf(n)
	case "DoWhile":
		return o.evaluateDoWhile(n)
	default:
		return o.evaluateGeneric(n)
	}
}

func (o *Oracle) evaluateGeneric(n *egraph.ENode) (Cost, Bag, error) {
	base, err := EnodeCost(n)
	if err != nil {
		return 0, nil, err
	}
	var childBags []Bag
	for _, ch := range n.Children {
		if ch.Valid() {
			childBags = append(childBags, o.bag[ch])
		}
	}
	merged := mergeBags(childBags...)
	childrenSum := bagSum(merged)
	total := childrenSum + base
	if cur, ok := merged[n.Class]; !ok || base < cur {
		merged[n.Class] = base
	}
	return total, merged, nil
}

// evaluateIf implements `cost(If) + bag(cond) + bag(state) + max(then,else) + min(then,else)/4`.
func (o *Oracle) evaluateIf(n *egraph.ENode) (Cost, Bag, error) {
	if len(n.Children) != 4 {
		return 0, nil, fmt.Errorf("cost: If node %v must have 4 children (cond,state,then,else), has %d", n.Children, len(n.Children))
	}
	cost, err := EnodeCost(n)
	if err != nil {
		return 0, nil, err
	}
	condSum, stateSum, thenSum, elseSum := o.EClassCost[n.Children[0]], o.EClassCost[n.Children[1]], o.EClassCost[n.Children[2]], o.EClassCost[n.Children[3]]
	maxTE, minTE := thenSum, elseSum
	if elseSum > thenSum {
		maxTE, minTE = elseSum, thenSum
	}
	total := cost + condSum + stateSum + maxTE + minTE/4

	merged := mergeBags(o.bag[n.Children[0]], o.bag[n.Children[1]], o.bag[n.Children[2]], o.bag[n.Children[3]])
	adjustBagToTotal(merged, n.Class, total)
	return total, merged, nil
}

// evaluateDoWhile implements `bag(init) + 500 * bag(body)`.
func (o *Oracle) evaluateDoWhile(n *egraph.ENode) (Cost, Bag, error) {
	if len(n.Children) != 2 {
		return 0, nil, fmt.Errorf("cost: DoWhile node %v must have 2 children (init,body), has %d", n.Children, len(n.Children))
	}
	initSum, bodySum := o.EClassCost[n.Children[0]], o.EClassCost[n.Children[1]]
	total := initSum + 500*bodySum

	merged := mergeBags(o.bag[n.Children[0]], o.bag[n.Children[1]])
	adjustBagToTotal(merged, n.Class, total)
	return total, merged, nil
}

// adjustBagToTotal inserts (or corrects) the entry for ownClass so that
// bagSum(bag) == total exactly, preserving the invariant that a class's
// cached eclass_cost always equals the sum of its own bag — even when,
// as with If/DoWhile, total is computed from a non-additive formula
// rather than a literal per-class-min merge.
func adjustBagToTotal(bag Bag, ownClass egraph.ClassID, total Cost) {
	sumWithout := bagSum(bag) - bag[ownClass]
	if total > sumWithout {
		bag[ownClass] = total - sumWithout
	} else {
		bag[ownClass] = 0
	}
}

// computeStatewalkCost derives, for every node of every effectful class,
// the cost of the node itself using only its *pure* children's bag sums
// (effectful children contribute to their own region's walk cost, not to
// this node's), with the same If/DoWhile specialisation (§4.3 "second
// pass").
func (o *Oracle) computeStatewalkCost() error {
	o.StatewalkCost = make([][]Cost, o.g.NumClasses())
	for c, cls := range o.g.Classes {
		if !cls.Effectful {
			continue
		}
		o.StatewalkCost[c] = make([]Cost, len(cls.Nodes))
		for n := range cls.Nodes {
			node := &o.g.Classes[c].Nodes[n]
			sc, err := o.statewalkNodeCost(node)
			if err != nil {
				return err
			}
			o.StatewalkCost[c][n] = sc
		}
	}
	return nil
}

func (o *Oracle) statewalkNodeCost(n *egraph.ENode) (Cost, error) {
	base, err := EnodeCost(n)
	if err != nil {
		return 0, err
	}
	switch n.Op() {
	case "If":
		if len(n.Children) != 4 {
			return 0, fmt.Errorf("cost: If node must have 4 children")
		}
		cond, state := o.pureCostOf(n.Children[0]), o.pureCostOf(n.Children[1])
		then, els := o.pureCostOf(n.Children[2]), o.pureCostOf(n.Children[3])
		maxTE, minTE := then, els
		if els > then {
			maxTE, minTE = els, then
		}
		return base + cond + state + maxTE + minTE/4, nil
	case "DoWhile":
		if len(n.Children) != 2 {
			return 0, fmt.Errorf("cost: DoWhile node must have 2 children")
		}
		init := o.pureCostOf(n.Children[0])
		body := o.pureCostOf(n.Children[1])
		return init + 500*body, nil
	default:
		var sum Cost
		for _, ch := range n.Children {
			sum += o.pureCostOf(ch)
		}
		return base + sum, nil
	}
}

// pureCostOf returns a child's eclass cost if that child is a pure
// class, and 0 if it is effectful (its cost belongs to its own region's
// walk, not to this node).
func (o *Oracle) pureCostOf(c egraph.ClassID) Cost {
	if !c.Valid() {
		return 0
	}
	cls, err := o.g.Class(c)
	if err != nil || cls.Effectful {
		return 0
	}
	return o.EClassCost[c]
}
