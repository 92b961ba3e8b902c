package treebuild

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/extractlab/tiger/internal/cost"
	"github.com/extractlab/tiger/internal/egraph"
	"github.com/extractlab/tiger/internal/tiger"
)

// buildChainRegion builds a two-step effectful chain root -> mid -> arg,
// each write threading a pure constant, so RebuildFromWalk has an actual
// rewire to perform and GreedyExtract has more than one effectful class
// to pick a node for.
func buildChainRegion() (g *egraph.EGraph, root, mid, arg egraph.ClassID) {
	g = egraph.NewEGraph(5)
	root = g.AddClass(true)
	mid = g.AddClass(true)
	arg = g.AddClass(true)
	c0 := g.AddClass(false)
	c1 := g.AddClass(false)

	g.AddNode(arg, egraph.ENode{Head: "arg###Arg"})
	g.AddNode(c0, egraph.ENode{Head: "k0###Const"})
	g.AddNode(c1, egraph.ENode{Head: "k1###Const"})
	g.AddNode(mid, egraph.ENode{Head: "w1###Write", Children: []egraph.ClassID{c1, arg}})
	g.AddNode(root, egraph.ENode{Head: "w0###Write", Children: []egraph.ClassID{c0, mid}})
	return g, root, mid, arg
}

func TestRebuildFromWalkChainsEffectfulClasses(t *testing.T) {
	g, root, mid, arg := buildChainRegion()
	oracle, err := cost.Compute(g)
	require.NoError(t, err)

	sw, err := tiger.StatewalkDP(g, root, oracle.StatewalkCost, tiger.Options{})
	require.NoError(t, err)
	require.Equal(t, []egraph.ClassID{root, mid, arg}, []egraph.ClassID{sw[0].Class, sw[1].Class, sw[2].Class})

	gp, gp2g, err := RebuildFromWalk(g, sw)
	require.NoError(t, err)

	rootCls, err := gp.Class(root)
	require.NoError(t, err)
	require.Len(t, rootCls.Nodes, 1, "walk picked exactly one node for the root class")

	midCls, err := gp.Class(mid)
	require.NoError(t, err)
	require.Len(t, midCls.Nodes, 1)

	// root's effectful child slot must now point at mid, and mid's at arg.
	require.Equal(t, mid, rootCls.Nodes[0].Children[1])
	require.Equal(t, arg, midCls.Nodes[0].Children[1])

	require.Equal(t, root, gp2g.MapClass(root))
}

func TestGreedyExtractProducesValidExtraction(t *testing.T) {
	g, root, _, _ := buildChainRegion()
	e, err := GreedyExtract(g, root)
	require.NoError(t, err)
	require.NoError(t, e.Validate(g))
	rootRec, err := e.Root()
	require.NoError(t, err)
	require.Equal(t, root, rootRec.Class)
}

// buildEffectfulFringeGraph builds a pure class x with two candidate
// nodes: "via" routes through an already-committed effectful class e
// whose own op (Call, cost 500000 per optable.go) must not be charged
// into x's bag, and "direct" is a plain constant. If e's cost leaked
// into "via"'s candidate, it would lose to "direct" despite being the
// cheaper route once e is correctly treated as free.
func buildEffectfulFringeGraph() (g *egraph.EGraph, x, e egraph.ClassID) {
	g = egraph.NewEGraph(2)
	x = g.AddClass(false)
	e = g.AddClass(true)
	g.AddNode(e, egraph.ENode{Head: "call###Call"})
	g.AddNode(x, egraph.ENode{Head: "via###Get", Children: []egraph.ClassID{e}})
	g.AddNode(x, egraph.ENode{Head: "direct###Const"})
	return g, x, e
}

func TestGreedyExtractDoesNotChargeEffectfulOwnCost(t *testing.T) {
	g, x, _ := buildEffectfulFringeGraph()
	e, err := GreedyExtract(g, x)
	require.NoError(t, err)

	rootRec, err := e.Root()
	require.NoError(t, err)
	require.Equal(t, egraph.NodeID(0), rootRec.Node, "via (routing through the free effectful class) must beat direct's flat cost of 10")
}

func TestExtractRegionEndToEnd(t *testing.T) {
	g, root, _, _ := buildChainRegion()
	oracle, err := cost.Compute(g)
	require.NoError(t, err)

	e, err := ExtractRegion(g, root, oracle.StatewalkCost, tiger.Options{})
	require.NoError(t, err)
	require.NoError(t, e.Validate(g))
	require.NoError(t, e.EffectSafe(g))
}
