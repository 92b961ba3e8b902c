package egraph

import "fmt"

// Mapping maps every class and every node of a source graph to either a
// target class/node or the sentinel UnextractableClass/-1, mirroring
// EGraphMapping in egraphin.h. ClassMap is indexed by source ClassID;
// NodeMap is indexed by source ClassID then source NodeID.
type Mapping struct {
	ClassMap []ClassID
	NodeMap  [][]NodeID
}

// NewMapping returns a Mapping presized to len(g.Classes) entries, all
// initialised to the sentinel — the same "presize to UNEXTRACTABLE_ECLASS"
// pattern as EGraphMapping's constructor in egraphin.cpp.
func NewMapping(g *EGraph) *Mapping {
	m := &Mapping{
		ClassMap: make([]ClassID, g.NumClasses()),
		NodeMap:  make([][]NodeID, g.NumClasses()),
	}
	for c := range m.ClassMap {
		m.ClassMap[c] = UnextractableClass
	}
	for c, cls := range g.Classes {
		m.NodeMap[c] = make([]NodeID, len(cls.Nodes))
		for n := range m.NodeMap[c] {
			m.NodeMap[c][n] = NodeID(UnextractableClass)
		}
	}
	return m
}

// MapClass returns the target class for source class c, or the sentinel.
func (m *Mapping) MapClass(c ClassID) ClassID {
	if c < 0 || int(c) >= len(m.ClassMap) {
		return UnextractableClass
	}
	return m.ClassMap[c]
}

// MapNode returns the target node id for source (c, n), or the sentinel.
func (m *Mapping) MapNode(c ClassID, n NodeID) NodeID {
	if c < 0 || int(c) >= len(m.NodeMap) || n < 0 || int(n) >= len(m.NodeMap[c]) {
		return NodeID(UnextractableClass)
	}
	return m.NodeMap[c][n]
}

// Partial reports whether any entry is unmapped (the sentinel is present).
func (m *Mapping) Partial() bool {
	for _, c := range m.ClassMap {
		if c == UnextractableClass {
			return true
		}
	}
	for _, ns := range m.NodeMap {
		for _, n := range ns {
			if n == NodeID(UnextractableClass) {
				return true
			}
		}
	}
	return false
}

// Injective reports whether no two source classes map to the same
// non-sentinel target class (and likewise for nodes within each class).
func (m *Mapping) Injective() bool {
	seen := make(map[ClassID]bool)
	for _, c := range m.ClassMap {
		if c == UnextractableClass {
			continue
		}
		if seen[c] {
			return false
		}
		seen[c] = true
	}
	for _, ns := range m.NodeMap {
		seenNode := make(map[NodeID]bool)
		for _, n := range ns {
			if n == NodeID(UnextractableClass) {
				continue
			}
			if seenNode[n] {
				return false
			}
			seenNode[n] = true
		}
	}
	return true
}

// ChildConsistent validates that for every mapped (c, n) with target
// (c', n'), the mapped children of n match the children of the target
// node position-by-position, after mapping. src is the source graph,
// dst the target graph this mapping points into.
func (m *Mapping) ChildConsistent(src, dst *EGraph) error {
	for c, cls := range src.Classes {
		tc := m.MapClass(ClassID(c))
		if tc == UnextractableClass {
			continue
		}
		for n, node := range cls.Nodes {
			tn := m.MapNode(ClassID(c), NodeID(n))
			if tn == NodeID(UnextractableClass) {
				continue
			}
			dstNode, err := dst.Node(tc, tn)
			if err != nil {
				return fmt.Errorf("mapping child-consistency: %w", err)
			}
			if len(dstNode.Children) != len(node.Children) {
				return fmt.Errorf("mapping child-consistency: (%d,%d)->(%d,%d): child count %d != %d",
					c, n, tc, tn, len(node.Children), len(dstNode.Children))
			}
			for k, ch := range node.Children {
				if !ch.Valid() {
					continue
				}
				wantClass := m.MapClass(ch)
				if wantClass != UnextractableClass && dstNode.Children[k] != wantClass {
					return fmt.Errorf("mapping child-consistency: (%d,%d) slot %d: mapped child class %d != target child class %d",
						c, n, k, wantClass, dstNode.Children[k])
				}
			}
		}
	}
	return nil
}

// Inverse builds the reverse table: a Mapping from dst back to src, sized
// over dstSize classes, following inverse_egraph_mapping in egraphin.cpp.
// Node slices are sized lazily since dst's per-class node counts aren't
// known to the inverse: each target class's slice is grown to fit the
// largest target node id its source class maps to, then filled, in the
// same pass over the forward entries.
func (m *Mapping) Inverse(dstSize int) *Mapping {
	inv := &Mapping{
		ClassMap: make([]ClassID, dstSize),
		NodeMap:  make([][]NodeID, dstSize),
	}
	for c := range inv.ClassMap {
		inv.ClassMap[c] = UnextractableClass
	}
	for srcC, dstC := range m.ClassMap {
		if dstC == UnextractableClass {
			continue
		}
		inv.ClassMap[dstC] = ClassID(srcC)
		maxN := 0
		for _, n := range m.NodeMap[srcC] {
			if int(n)+1 > maxN {
				maxN = int(n) + 1
			}
		}
		if len(inv.NodeMap[dstC]) < maxN {
			grown := make([]NodeID, maxN)
			for i := range grown {
				grown[i] = NodeID(UnextractableClass)
			}
			copy(grown, inv.NodeMap[dstC])
			inv.NodeMap[dstC] = grown
		}
		for srcN, dstN := range m.NodeMap[srcC] {
			if dstN == NodeID(UnextractableClass) {
				continue
			}
			inv.NodeMap[dstC][dstN] = NodeID(srcN)
		}
	}
	return inv
}

// ProjectExtraction rewrites every record of e through m in place: first
// the node id, then the class id, mirroring project_extraction in
// egraphin.cpp (".n then .c", in that order, since NodeMap is keyed by the
// original class).
func ProjectExtraction(m *Mapping, e *Extraction) error {
	for i := range e.Nodes {
		rec := &e.Nodes[i]
		n := m.MapNode(rec.Class, rec.Node)
		c := m.MapClass(rec.Class)
		if c == UnextractableClass || n == NodeID(UnextractableClass) {
			return fmt.Errorf("egraph: project_extraction: record %d (%d,%d) has no image under mapping", i, rec.Class, rec.Node)
		}
		rec.Node = n
		rec.Class = c
	}
	return nil
}
