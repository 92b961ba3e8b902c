package region

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/extractlab/tiger/internal/egraph"
)

// buildTwoRegionGraph builds a function root f0 (effectful) whose body
// threads to an argument a0, with one pure constant c0 along the way, and
// a second effectful class f1 (with its own argument a1) reached as f0's
// node's *second* effectful child — making
// f1 a subregion root that Construct(g, f0) must NOT absorb.
func buildTwoRegionGraph() (g *egraph.EGraph, f0, a0, f1, a1 egraph.ClassID) {
	g = egraph.NewEGraph(6)
	f0 = g.AddClass(true)
	a0 = g.AddClass(true)
	f1 = g.AddClass(true)
	a1 = g.AddClass(true)
	c0 := g.AddClass(false)

	g.AddNode(a0, egraph.ENode{Head: "arg0###Arg"})
	g.AddNode(a1, egraph.ENode{Head: "arg1###Arg"})
	g.AddNode(c0, egraph.ENode{Head: "k###Const"})
	g.AddNode(f1, egraph.ENode{Head: "body1###Write", Children: []egraph.ClassID{c0, a1}})
	// f0's single node: first effectful child a0 continues this region,
	// second effectful child f1 is a subregion root.
	g.AddNode(f0, egraph.ENode{Head: "body0###Write", Children: []egraph.ClassID{c0, a0, f1}})
	return g, f0, a0, f1, a1
}

func TestConstructDropsSubregionButKeepsPureFringe(t *testing.T) {
	g, f0, _, f1, _ := buildTwoRegionGraph()
	reg, err := Construct(g, f0)
	require.NoError(t, err)

	// The subregion root f1 must not have been absorbed into this region.
	for c := 0; c < reg.Graph.NumClasses(); c++ {
		require.NotEqual(t, f1, reg.ToOuter.MapClass(egraph.ClassID(c)))
	}

	rootCls, err := reg.Graph.Class(reg.Root)
	require.NoError(t, err)
	require.True(t, rootCls.Effectful)
	require.Len(t, rootCls.Nodes, 1)
	// f1 was dropped from the child list entirely: only (c0, a0) remain.
	require.Len(t, rootCls.Nodes[0].Children, 2)
}

func TestFindRegionRootsIncludesSubregionRoot(t *testing.T) {
	g, f0, _, f1, _ := buildTwoRegionGraph()
	roots := FindRegionRoots(g, []egraph.ClassID{f0})
	require.Contains(t, roots, f0)
	require.Contains(t, roots, f1)
	require.Len(t, roots, 2)
}

func TestOuterLookupRecoversSubregionChild(t *testing.T) {
	g, f0, _, f1, _ := buildTwoRegionGraph()
	reg, err := Construct(g, f0)
	require.NoError(t, err)

	rootCls, err := reg.Graph.Class(reg.Root)
	require.NoError(t, err)

	outerClass := reg.ToOuter.MapClass(reg.Root)
	outerNode := reg.ToOuter.MapNode(reg.Root, 0)
	require.Equal(t, f0, outerClass)
	n, err := g.Node(outerClass, outerNode)
	require.NoError(t, err)
	require.Len(t, n.Children, 3, "the outer node still carries the subregion slot")
	require.Equal(t, f1, n.Children[2])
	_ = rootCls
}

func TestConstructCountsDroppedSubregion(t *testing.T) {
	g, f0, _, _, _ := buildTwoRegionGraph()
	reg, err := Construct(g, f0)
	require.NoError(t, err)

	rootCls, err := reg.Graph.Class(reg.Root)
	require.NoError(t, err)
	require.Len(t, rootCls.Nodes, 1)
	require.Equal(t, 1, reg.NSubregion[reg.Root][0], "f0's node dropped exactly one secondary effectful child (f1)")

	// Every other retained node dropped zero.
	for c := 0; c < reg.Graph.NumClasses(); c++ {
		if egraph.ClassID(c) == reg.Root {
			continue
		}
		for n := range reg.NSubregion[c] {
			require.Equal(t, 0, reg.NSubregion[c][n])
		}
	}
}

func TestDumpRegionNamesOuterRoot(t *testing.T) {
	g, f0, _, _, _ := buildTwoRegionGraph()
	reg, err := Construct(g, f0)
	require.NoError(t, err)

	out := DumpRegion(reg)
	require.Contains(t, out, fmt.Sprintf("outer root=%d", f0))
	require.Contains(t, out, "egraph:")
}
