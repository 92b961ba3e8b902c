package prune

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/extractlab/tiger/internal/egraph"
)

// buildGraphWithDeadClass builds: class 0 (root) -> class 1 (leaf);
// class 2 is a leaf with no parent at all (dead weight to be dropped by
// phase 2 but kept by phase 1, since it IS extractable, just unreachable
// from the chosen root).
func buildGraphWithDeadClass() *egraph.EGraph {
	g := egraph.NewEGraph(3)
	c0 := g.AddClass(false)
	c1 := g.AddClass(false)
	c2 := g.AddClass(false)
	g.AddNode(c1, egraph.ENode{Head: "leaf###Const"})
	g.AddNode(c0, egraph.ENode{Head: "n###Op", Children: []egraph.ClassID{c1}})
	g.AddNode(c2, egraph.ENode{Head: "dead###Const"})
	return g
}

func TestPruneWithoutRootKeepsAllExtractable(t *testing.T) {
	g := buildGraphWithDeadClass()
	res, err := Prune(g, egraph.UnextractableClass)
	require.NoError(t, err)
	require.Equal(t, 3, res.Graph.NumClasses())
}

func TestPruneWithRootDropsUnreachable(t *testing.T) {
	g := buildGraphWithDeadClass()
	res, err := Prune(g, 0)
	require.NoError(t, err)
	require.Equal(t, 2, res.Graph.NumClasses(), "class 2 is unreachable from root 0")
}

func TestPruneDropsUngroundableCycle(t *testing.T) {
	g := egraph.NewEGraph(2)
	a := g.AddClass(false)
	b := g.AddClass(false)
	// a depends on b, b depends on a: neither ever grounds in a leaf.
	g.AddNode(a, egraph.ENode{Head: "n###Op", Children: []egraph.ClassID{b}})
	g.AddNode(b, egraph.ENode{Head: "n###Op", Children: []egraph.ClassID{a}})

	res, err := Prune(g, egraph.UnextractableClass)
	require.NoError(t, err)
	require.Equal(t, 0, res.Graph.NumClasses())
}

func TestPruneUnreachableRootErrors(t *testing.T) {
	g := egraph.NewEGraph(2)
	a := g.AddClass(false)
	b := g.AddClass(false)
	g.AddNode(a, egraph.ENode{Head: "n###Op", Children: []egraph.ClassID{b}})
	g.AddNode(b, egraph.ENode{Head: "n###Op", Children: []egraph.ClassID{a}})

	_, err := Prune(g, a)
	require.ErrorIs(t, err, ErrUnreachableRoot)
}

func TestMappingIsChildConsistentAfterPrune(t *testing.T) {
	g := buildGraphWithDeadClass()
	res, err := Prune(g, 0)
	require.NoError(t, err)
	require.NoError(t, res.Mapping.ChildConsistent(g, res.Graph))
}

func TestProjectExtractionRoundTrip(t *testing.T) {
	g := buildGraphWithDeadClass()
	res, err := Prune(g, 0)
	require.NoError(t, err)

	e := &egraph.Extraction{Nodes: []egraph.ExtractionNode{
		{Class: res.Mapping.MapClass(1), Node: 0},
		{Class: res.Mapping.MapClass(0), Node: 0, Children: []int{0}},
	}}
	require.NoError(t, e.Validate(res.Graph))

	require.NoError(t, ProjectExtraction(res, e))
	require.Equal(t, egraph.ClassID(0), e.Nodes[1].Class)
	require.Equal(t, egraph.ClassID(1), e.Nodes[0].Class)
}
