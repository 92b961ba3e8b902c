package egraph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildLinearWalkGraph() *EGraph {
	g := NewEGraph(3)
	a := g.AddClass(true)
	b := g.AddClass(true)
	c := g.AddClass(true)
	g.AddNode(c, ENode{Head: "arg###Arg"})
	g.AddNode(b, ENode{Head: "n###Op", Children: []ClassID{c}})
	g.AddNode(a, ENode{Head: "n###Op", Children: []ClassID{b}})
	return g
}

func TestENodeOpAndName(t *testing.T) {
	n := ENode{Head: "foo###Add"}
	require.Equal(t, "Add", n.Op())
	require.Equal(t, "foo", n.Name())

	bare := ENode{Head: "Const"}
	require.Equal(t, "Const", bare.Op())
	require.Equal(t, "Const", bare.Name())
}

func TestFindArgument(t *testing.T) {
	g := buildLinearWalkGraph()
	n, err := g.FindArgument(2)
	require.NoError(t, err)
	require.Equal(t, NodeID(0), n)

	_, err = g.FindArgument(0)
	require.ErrorIs(t, err, ErrNoArgument)
}

func TestFindArgumentMultiple(t *testing.T) {
	g := NewEGraph(1)
	c := g.AddClass(true)
	g.AddNode(c, ENode{Head: "a###Arg"})
	g.AddNode(c, ENode{Head: "b###Arg"})
	_, err := g.FindArgument(c)
	require.ErrorIs(t, err, ErrMultipleArguments)
}

func TestEffectfulChildLinearityViolation(t *testing.T) {
	g := NewEGraph(3)
	e1 := g.AddClass(true)
	e2 := g.AddClass(true)
	n := ENode{Head: "bad###If", Children: []ClassID{e1, e2}}
	_, _, err := g.EffectfulChild(&n)
	require.ErrorIs(t, err, ErrLinearityViolation)
}

func TestExtractionValidate(t *testing.T) {
	g := buildLinearWalkGraph()
	e := &Extraction{Nodes: []ExtractionNode{
		{Class: 2, Node: 0, Children: nil},
		{Class: 1, Node: 0, Children: []int{0}},
		{Class: 0, Node: 0, Children: []int{1}},
	}}
	require.NoError(t, e.Validate(g))
	require.NoError(t, e.EffectSafe(g))
}

func TestExtractionValidateRejectsForwardReference(t *testing.T) {
	g := buildLinearWalkGraph()
	e := &Extraction{Nodes: []ExtractionNode{
		{Class: 1, Node: 0, Children: []int{1}}, // points forward at record 1: not < i
		{Class: 2, Node: 0, Children: nil},
	}}
	require.Error(t, e.Validate(g))
}

func TestMappingInverseRoundTrip(t *testing.T) {
	g := buildLinearWalkGraph()
	m := NewMapping(g)
	// identity mapping over all 3 classes, 1 node each
	for c := 0; c < g.NumClasses(); c++ {
		m.ClassMap[c] = ClassID(c)
		m.NodeMap[c][0] = 0
	}
	require.False(t, m.Partial())
	require.True(t, m.Injective())
	require.NoError(t, m.ChildConsistent(g, g))

	inv := m.Inverse(g.NumClasses())
	inv2 := inv.Inverse(g.NumClasses())
	require.Equal(t, m.ClassMap, inv2.ClassMap)
}

func TestProjectExtraction(t *testing.T) {
	g := buildLinearWalkGraph()
	m := NewMapping(g)
	for c := 0; c < g.NumClasses(); c++ {
		m.ClassMap[c] = ClassID(c)
		m.NodeMap[c][0] = 0
	}
	e := &Extraction{Nodes: []ExtractionNode{{Class: 2, Node: 0}}}
	require.NoError(t, ProjectExtraction(m, e))
	require.Equal(t, ClassID(2), e.Nodes[0].Class)
}
