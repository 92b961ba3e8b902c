// Package egraph defines the central e-graph data structures — ENode,
// EClass, EGraph, Extraction, and the class/node mapping used to project
// IDs between an original graph and a derived one (pruned, regionalised,
// or rebuilt from a state walk).
//
// A class identifier is a non-negative index into an EGraph's Classes
// slice; the sentinel UnextractableClass (-1) marks "no such class" in
// any mapping or child slot. A node identifier is a non-negative index,
// unique only within its owning class.
package egraph

import (
	"errors"
	"strings"
)

// Sentinel errors surfaced by structural validation across this package
// and its siblings. Callers wrap these with fmt.Errorf("%w: ...") to add
// the offending index, as core/types.go does for graph errors.
var (
	// ErrNilGraph indicates a nil *EGraph was passed where one was required.
	ErrNilGraph = errors.New("egraph: graph is nil")

	// ErrClassOutOfRange indicates a class identifier outside [0, len(Classes)).
	ErrClassOutOfRange = errors.New("egraph: class index out of range")

	// ErrNodeOutOfRange indicates a node identifier outside a class's Nodes slice.
	ErrNodeOutOfRange = errors.New("egraph: node index out of range")

	// ErrNotEffectful indicates an operation required an effectful class but found a pure one.
	ErrNotEffectful = errors.New("egraph: class is not effectful")

	// ErrLinearityViolation indicates a node has more than one effectful child,
	// violating the single-effectful-child-per-node invariant.
	ErrLinearityViolation = errors.New("egraph: node has more than one effectful child")

	// ErrNoArgument indicates a region has no zero-child effectful node (no argument).
	ErrNoArgument = errors.New("egraph: region has no argument node")

	// ErrMultipleArguments indicates a region has more than one zero-child effectful node.
	ErrMultipleArguments = errors.New("egraph: region has more than one argument node")

	// ErrCycle indicates a cycle was found where an acyclic structure was required.
	ErrCycle = errors.New("egraph: cycle detected")

	// ErrUnknownOperator indicates an operator absent from the cost table (§7 kind 2).
	ErrUnknownOperator = errors.New("egraph: unknown operator")
)

// ClassID identifies an e-class by position in an EGraph's Classes slice.
// UnextractableClass is the sentinel meaning "no class" / "pruned away".
type ClassID int32

// UnextractableClass is the sentinel class identifier, written -1 in the
// original implementation's EGraphMapping and DEBUG_ASSERT checks.
const UnextractableClass ClassID = -1

// Valid reports whether c is a non-sentinel class identifier.
func (c ClassID) Valid() bool { return c != UnextractableClass }

// NodeID identifies an e-node by position within its owning class's Nodes slice.
type NodeID int32

// HeadDelimiter separates the display name from the operator tag inside
// an ENode's Head string, following the upstream exporter's "###" convention
// (see json2egraphin.cpp's RawENode.op handling).
const HeadDelimiter = "###"

// ENode is a labelled operator with an ordered list of child class identifiers.
type ENode struct {
	// Head encodes "name###op"; Op() and Name() split it on HeadDelimiter.
	Head string

	// Class is the owning e-class of this node. Every node satisfies
	// graph.Classes[Class].Nodes[n] == this node for its index n.
	Class ClassID

	// Children is the ordered list of child class identifiers. A primitive
	// literal has an empty Children slice.
	Children []ClassID
}

// Op returns the operator tag portion of Head (after the last HeadDelimiter),
// or the whole Head if no delimiter is present.
func (n ENode) Op() string {
	if i := strings.LastIndex(n.Head, HeadDelimiter); i >= 0 {
		return n.Head[i+len(HeadDelimiter):]
	}
	return n.Head
}

// Name returns the display-name portion of Head (before the last HeadDelimiter).
func (n ENode) Name() string {
	if i := strings.LastIndex(n.Head, HeadDelimiter); i >= 0 {
		return n.Head[:i]
	}
	return n.Head
}

// IsLeaf reports whether this node has no children (a primitive literal
// or the zero-child effectful "argument" node).
func (n ENode) IsLeaf() bool { return len(n.Children) == 0 }

// EClass is an equivalence class of e-nodes that all denote the same value.
type EClass struct {
	// Nodes is the ordered sequence of e-nodes belonging to this class.
	Nodes []ENode

	// Effectful marks this class as threading program state. Effectful
	// classes participate in regions and state walks; pure classes never do.
	Effectful bool
}

// EGraph is an ordered sequence of e-classes indexed by ClassID.
type EGraph struct {
	Classes []EClass
}

// NewEGraph returns an empty graph with capacity for n classes preallocated,
// mirroring core.NewGraph's style of a small eager constructor.
func NewEGraph(n int) *EGraph {
	return &EGraph{Classes: make([]EClass, 0, n)}
}

// NumClasses returns the number of e-classes in the graph.
func (g *EGraph) NumClasses() int { return len(g.Classes) }

// Class returns the class at c, or an error if c is out of range.
func (g *EGraph) Class(c ClassID) (*EClass, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if c < 0 || int(c) >= len(g.Classes) {
		return nil, ErrClassOutOfRange
	}
	return &g.Classes[c], nil
}

// Node returns the node (c, n), or an error if either index is out of range.
func (g *EGraph) Node(c ClassID, n NodeID) (*ENode, error) {
	cls, err := g.Class(c)
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) >= len(cls.Nodes) {
		return nil, ErrNodeOutOfRange
	}
	return &cls.Nodes[n], nil
}

// AddClass appends a new class and returns its ClassID.
func (g *EGraph) AddClass(effectful bool) ClassID {
	g.Classes = append(g.Classes, EClass{Effectful: effectful})
	return ClassID(len(g.Classes) - 1)
}

// AddNode appends n to class c's Nodes slice and returns its NodeID.
func (g *EGraph) AddNode(c ClassID, n ENode) (NodeID, error) {
	cls, err := g.Class(c)
	if err != nil {
		return 0, err
	}
	n.Class = c
	cls.Nodes = append(cls.Nodes, n)
	return NodeID(len(cls.Nodes) - 1), nil
}

// EffectfulChild returns the single effectful child class of a node, plus
// whether one exists, erroring if more than one child is effectful
// (ErrLinearityViolation — the invariant from §3).
func (g *EGraph) EffectfulChild(n *ENode) (ClassID, bool, error) {
	found := UnextractableClass
	seen := false
	for _, ch := range n.Children {
		if !ch.Valid() {
			continue
		}
		cls, err := g.Class(ch)
		if err != nil {
			return UnextractableClass, false, err
		}
		if cls.Effectful {
			if seen {
				return UnextractableClass, false, ErrLinearityViolation
			}
			found, seen = ch, true
		}
	}
	return found, seen, nil
}

// IsArgument reports whether n is the zero-child effectful "argument" node.
func IsArgument(cls *EClass, n *ENode) bool {
	return cls.Effectful && n.IsLeaf()
}

// FindArgument scans class c for its unique zero-child node, returning
// ErrNoArgument or ErrMultipleArguments if the region invariant is broken.
func (g *EGraph) FindArgument(c ClassID) (NodeID, error) {
	cls, err := g.Class(c)
	if err != nil {
		return 0, err
	}
	if !cls.Effectful {
		return 0, ErrNotEffectful
	}
	found := NodeID(-1)
	for i, n := range cls.Nodes {
		if n.IsLeaf() {
			if found >= 0 {
				return 0, ErrMultipleArguments
			}
			found = NodeID(i)
		}
	}
	if found < 0 {
		return 0, ErrNoArgument
	}
	return found, nil
}
