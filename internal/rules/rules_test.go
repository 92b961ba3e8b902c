package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/extractlab/tiger/internal/egraph"
)

func buildWriteExtraction(t *testing.T) (*egraph.EGraph, *egraph.Extraction) {
	t.Helper()
	g := egraph.NewEGraph(0)
	arg := g.AddClass(true)
	c0 := g.AddClass(false)
	root := g.AddClass(true)

	_, err := g.AddNode(arg, egraph.ENode{Head: "arg###Arg"})
	require.NoError(t, err)
	_, err = g.AddNode(c0, egraph.ENode{Head: "k###Const", Children: []egraph.ClassID{arg}})
	require.NoError(t, err)
	_, err = g.AddNode(root, egraph.ENode{Head: "w###Write", Children: []egraph.ClassID{c0, arg}})
	require.NoError(t, err)

	e := &egraph.Extraction{Nodes: []egraph.ExtractionNode{
		{Class: arg, Node: 0, Children: nil},
		{Class: c0, Node: 0, Children: []int{0}},
		{Class: root, Node: 0, Children: []int{1, 0}},
	}}
	require.NoError(t, e.Validate(g))
	return g, e
}

func TestWriteExtractionProducesRuleBlock(t *testing.T) {
	g, e := buildWriteExtraction(t)
	p := NewPrinter()
	var sb strings.Builder
	require.NoError(t, p.WriteExtraction(&sb, g, e))

	out := sb.String()
	require.Contains(t, out, "; Function #1")
	require.Contains(t, out, "(rule () (")
	require.Contains(t, out, "Arg DumT (DumC)")
	require.Contains(t, out, "Const __tmp0 DumT (DumC)")
	require.Contains(t, out, "Write __tmp1 __tmp0")
	require.Contains(t, out, ") :ruleset reconstruction)")
}

func TestWriteExtractionCountsAreGlobal(t *testing.T) {
	g, e := buildWriteExtraction(t)
	p := NewPrinter()
	var sb strings.Builder
	require.NoError(t, p.WriteExtraction(&sb, g, e))
	require.NoError(t, p.WriteExtraction(&sb, g, e))

	out := sb.String()
	require.Contains(t, out, "; Function #1")
	require.Contains(t, out, "; Function #2")
	// second extraction's temps continue from where the first left off
	require.Contains(t, out, "__tmp2")
	require.Contains(t, out, "__tmp3")
}

func TestLiteralTextUnescapesStringLiterals(t *testing.T) {
	require.Equal(t, `"f"`, literalText(`\"f\"`))
	require.Equal(t, "42", literalText("42"))
}

func TestPrintWritesPrologueAndEpilogueOnce(t *testing.T) {
	g, e := buildWriteExtraction(t)
	var sb strings.Builder
	require.NoError(t, Print(&sb, g, []*egraph.Extraction{e}))

	out := sb.String()
	require.Contains(t, out, "(datatype Expr)")
	require.Contains(t, out, "(ruleset reconstruction)")
	require.Contains(t, out, "; Function #1")
	require.True(t, strings.HasSuffix(out, "(run reconstruction 1)\n"))
}
