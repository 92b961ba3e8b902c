package egraph

import "fmt"

// ExtractionNode is one record of a topologically-ordered Extraction: a
// picked (class, node) pair plus the positions of its children within the
// same Extraction (§3 "Extraction").
type ExtractionNode struct {
	Class    ClassID
	Node     NodeID
	Children []int // positions into the owning Extraction, each < this record's index
}

// Extraction is a topologically-ordered sequence of ExtractionNode records.
// The last record is the root.
type Extraction struct {
	Nodes []ExtractionNode
}

// Root returns the last record, or an error if the extraction is empty.
func (e *Extraction) Root() (*ExtractionNode, error) {
	if e == nil || len(e.Nodes) == 0 {
		return nil, fmt.Errorf("egraph: empty extraction has no root")
	}
	return &e.Nodes[len(e.Nodes)-1], nil
}

// Validate checks the invariants of §8: every child position strictly
// precedes its parent, children counts match the underlying node's child
// list length, and for each slot the referenced record's Class equals the
// source graph's node's child class at that position.
func (e *Extraction) Validate(g *EGraph) error {
	if e == nil {
		return fmt.Errorf("egraph: nil extraction")
	}
	for i, rec := range e.Nodes {
		n, err := g.Node(rec.Class, rec.Node)
		if err != nil {
			return fmt.Errorf("extraction[%d]: %w", i, err)
		}
		if len(rec.Children) != len(n.Children) {
			return fmt.Errorf("extraction[%d]: %w: have %d children, want %d",
				i, ErrLinearityViolation, len(rec.Children), len(n.Children))
		}
		for k, childPos := range rec.Children {
			if childPos >= i {
				return fmt.Errorf("extraction[%d] child %d: %w: position %d does not precede %d",
					i, k, ErrCycle, childPos, i)
			}
			if childPos < 0 || childPos >= len(e.Nodes) {
				return fmt.Errorf("extraction[%d] child %d: %w", i, k, ErrNodeOutOfRange)
			}
			want := n.Children[k]
			got := e.Nodes[childPos].Class
			if want.Valid() && got != want {
				return fmt.Errorf("extraction[%d] child %d: class mismatch: got %d want %d", i, k, got, want)
			}
		}
	}
	return nil
}

// EffectSafe additionally checks that effectful nodes appear at most once
// by (class, node) identity across the whole extraction — the linearity
// property restated for a finished Extraction (§8 "effect-safety holds").
func (e *Extraction) EffectSafe(g *EGraph) error {
	type classNode struct {
		c ClassID
		n NodeID
	}
	seen := make(map[classNode]bool)
	for i, rec := range e.Nodes {
		cls, err := g.Class(rec.Class)
		if err != nil {
			return fmt.Errorf("extraction[%d]: %w", i, err)
		}
		if cls.Effectful {
			key := classNode{rec.Class, rec.Node}
			if seen[key] {
				return fmt.Errorf("extraction[%d]: %w: effectful node (%d,%d) picked twice", i, ErrLinearityViolation, rec.Class, rec.Node)
			}
			seen[key] = true
		}
	}
	return nil
}

// Dump renders a graph or extraction as a human-readable text block for
// stderr diagnostics on a structural-validation failure (§7 kind 1), the
// same role core/methods_test.go's t.Logf graph dumps play in tests —
// except here it runs in production on the fatal path.
func Dump(g *EGraph) string {
	out := fmt.Sprintf("egraph: %d classes\n", g.NumClasses())
	for c, cls := range g.Classes {
		out += fmt.Sprintf("  class %d effectful=%v nodes=%d\n", c, cls.Effectful, len(cls.Nodes))
		for n, node := range cls.Nodes {
			out += fmt.Sprintf("    node %d: %s children=%v\n", n, node.Head, node.Children)
		}
	}
	return out
}

// DumpExtraction renders an Extraction for diagnostics.
func DumpExtraction(e *Extraction) string {
	out := fmt.Sprintf("extraction: %d records\n", len(e.Nodes))
	for i, rec := range e.Nodes {
		out += fmt.Sprintf("  [%d] class=%d node=%d children=%v\n", i, rec.Class, rec.Node, rec.Children)
	}
	return out
}
