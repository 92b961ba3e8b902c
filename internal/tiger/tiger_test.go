package tiger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/extractlab/tiger/internal/cost"
	"github.com/extractlab/tiger/internal/egraph"
)

// buildSingleRegion builds a minimal regionalised graph: an effectful
// root whose only node threads through a pure constant to the region's
// argument.
func buildSingleRegion() (g *egraph.EGraph, root, arg egraph.ClassID) {
	g = egraph.NewEGraph(3)
	root = g.AddClass(true)
	arg = g.AddClass(true)
	c0 := g.AddClass(false)
	g.AddNode(arg, egraph.ENode{Head: "arg###Arg"})
	g.AddNode(c0, egraph.ENode{Head: "k###Const"})
	g.AddNode(root, egraph.ENode{Head: "w###Write", Children: []egraph.ClassID{c0, arg}})
	return g, root, arg
}

func TestStatewalkDPFindsSingleStepWalk(t *testing.T) {
	g, root, arg := buildSingleRegion()
	oracle, err := cost.Compute(g)
	require.NoError(t, err)

	sw, err := StatewalkDP(g, root, oracle.StatewalkCost, Options{})
	require.NoError(t, err)
	require.Len(t, sw, 2)
	require.Equal(t, root, sw[0].Class)
	require.Equal(t, arg, sw[len(sw)-1].Class)
}

func TestStatewalkDPWithLivenessAndSatelliteMatchesPlain(t *testing.T) {
	g, root, _ := buildSingleRegion()
	oracle, err := cost.Compute(g)
	require.NoError(t, err)

	plain, err := StatewalkDP(g, root, oracle.StatewalkCost, Options{})
	require.NoError(t, err)

	tuned, err := StatewalkDP(g, root, oracle.StatewalkCost, Options{UseLiveness: true, UseSatellite: true})
	require.NoError(t, err)

	require.Equal(t, len(plain), len(tuned))
	require.Equal(t, plain[0].Class, tuned[0].Class)
	require.Equal(t, plain[len(plain)-1].Class, tuned[len(tuned)-1].Class)
}

func TestStatewalkDPNoArgumentErrors(t *testing.T) {
	g := egraph.NewEGraph(2)
	root := g.AddClass(true)
	c0 := g.AddClass(false)
	g.AddNode(c0, egraph.ENode{Head: "k###Const"})
	g.AddNode(root, egraph.ENode{Head: "w###Write", Children: []egraph.ClassID{c0}})

	_, err := StatewalkDP(g, root, [][]cost.Cost{{0}, {0}}, Options{})
	require.ErrorIs(t, err, ErrNoArgument)
}
