package ilp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/extractlab/tiger/internal/cost"
	"github.com/extractlab/tiger/internal/egraph"
)

// buildTinyRegion builds root -> arg, with one pure constant along the
// way, small enough to hand-check the LP encoding against.
func buildTinyRegion() (g *egraph.EGraph, root, arg, c0 egraph.ClassID) {
	g = egraph.NewEGraph(3)
	root = g.AddClass(true)
	arg = g.AddClass(true)
	c0 = g.AddClass(false)
	g.AddNode(arg, egraph.ENode{Head: "arg###Arg"})
	g.AddNode(c0, egraph.ENode{Head: "k###Const"})
	g.AddNode(root, egraph.ENode{Head: "w###Write", Children: []egraph.ClassID{c0, arg}})
	return g, root, arg, c0
}

func TestEncodeBuildsExpectedVariables(t *testing.T) {
	g, root, _, _ := buildTinyRegion()
	oracle, err := cost.Compute(g)
	require.NoError(t, err)

	m, err := encode(g, root, oracle.StatewalkCost)
	require.NoError(t, err)

	require.Equal(t, "p_0_0", m.pickVar[root][0])
	require.Len(t, m.choices, 2, "root's node has two children, each with one candidate node")
	require.Equal(t, m.numVars(), 3+2, "3 pick vars (root,arg,c0) plus 2 choice vars")
}

func TestWriteLPProducesAllSections(t *testing.T) {
	g, root, _, _ := buildTinyRegion()
	oracle, err := cost.Compute(g)
	require.NoError(t, err)
	m, err := encode(g, root, oracle.StatewalkCost)
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, m.writeLP(&buf, false))
	out := buf.String()

	require.Contains(t, out, "Minimize")
	require.Contains(t, out, "Subject To")
	require.Contains(t, out, "pick_sum_0")
	require.Contains(t, out, "child_select_0_0_0")
	require.Contains(t, out, "child_link_0")
	require.Contains(t, out, "Bounds")
	require.Contains(t, out, "Binary")
	require.Contains(t, out, "End")
}

func TestWriteLPNoMinimizeZeroesObjective(t *testing.T) {
	g, root, _, _ := buildTinyRegion()
	oracle, err := cost.Compute(g)
	require.NoError(t, err)
	m, err := encode(g, root, oracle.StatewalkCost)
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, m.writeLP(&buf, true))
	lines := strings.Split(buf.String(), "\n")
	require.True(t, strings.HasPrefix(lines[1], " obj:"))
	require.NotContains(t, lines[1], "500") // Write's nonzero base cost must not appear
}

func TestParseSolutionAcceptsBothLayouts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sol.txt")
	require.NoError(t, os.WriteFile(path, []byte("Optimal - objective value 12\np_0_0 1\n1 s_0_0_0_0 1\n"), 0o644))

	values, infeasible, err := parseSolution(path)
	require.NoError(t, err)
	require.False(t, infeasible)
	require.Equal(t, 1.0, values["p_0_0"])
	require.Equal(t, 1.0, values["s_0_0_0_0"])
}

func TestParseSolutionDetectsInfeasible(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sol.txt")
	require.NoError(t, os.WriteFile(path, []byte("Model was proven to be infeasible.\n"), 0o644))

	_, infeasible, err := parseSolution(path)
	require.NoError(t, err)
	require.True(t, infeasible)
}

func TestParseSolutionEmptyFileIsInfeasible(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sol.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, infeasible, err := parseSolution(path)
	require.NoError(t, err)
	require.True(t, infeasible)
}

func TestRebuildExtractionFromSyntheticSolution(t *testing.T) {
	g, root, arg, c0 := buildTinyRegion()
	oracle, err := cost.Compute(g)
	require.NoError(t, err)
	m, err := encode(g, root, oracle.StatewalkCost)
	require.NoError(t, err)

	values := map[string]float64{
		m.pickVar[root][0]: 1,
		m.pickVar[arg][0]:  1,
		m.pickVar[c0][0]:   1,
	}
	for _, cv := range m.choices {
		values[cv.Name] = 1
	}

	e, err := rebuildExtraction(g, m, values)
	require.NoError(t, err)
	require.NoError(t, e.Validate(g))
	require.NoError(t, e.EffectSafe(g))

	rootRec, err := e.Root()
	require.NoError(t, err)
	require.Equal(t, root, rootRec.Class)
}

// buildSelfReferencingRegion builds root -> arg plus a pure class A with
// two candidate nodes: "leaf" (no children) and "loop", whose single
// child slot is class A itself — one of loop's candidates for that slot
// is therefore loop's own node, a genuine self-edge.
func buildSelfReferencingRegion() (g *egraph.EGraph, root, arg, a egraph.ClassID) {
	g = egraph.NewEGraph(4)
	root = g.AddClass(true)
	arg = g.AddClass(true)
	a = g.AddClass(false)
	g.AddNode(arg, egraph.ENode{Head: "arg###Arg"})
	g.AddNode(a, egraph.ENode{Head: "leaf###Const"})
	g.AddNode(a, egraph.ENode{Head: "loop###Add", Children: []egraph.ClassID{a}})
	g.AddNode(root, egraph.ENode{Head: "w###Write", Children: []egraph.ClassID{a, arg}})
	return g, root, arg, a
}

func TestWriteLPForbidsSelfEdgeWithoutInfeasibility(t *testing.T) {
	g, root, _, a := buildSelfReferencingRegion()
	oracle, err := cost.Compute(g)
	require.NoError(t, err)
	m, err := encode(g, root, oracle.StatewalkCost)
	require.NoError(t, err)

	var selfIdx = -1
	for idx, cv := range m.choices {
		if cv.ParentClass == a && cv.ChildClass == a && cv.ParentNode == cv.ChildNode && cv.ParentNode == 1 {
			selfIdx = idx
		}
	}
	require.GreaterOrEqual(t, selfIdx, 0, "loop's self-referencing candidate must produce a choice variable")

	var buf strings.Builder
	require.NoError(t, m.writeLP(&buf, false))
	out := buf.String()

	require.NotContains(t, out, fmt.Sprintf("order_edge_%d: %s <= -1", selfIdx, m.choices[selfIdx].Name),
		"a self-edge must not bound a Binary variable below its domain")
	require.Contains(t, out, fmt.Sprintf("order_edge_%d: %s - %s", selfIdx,
		m.orderVar[m.choices[selfIdx].ChildClass][m.choices[selfIdx].ChildNode],
		m.orderVar[m.choices[selfIdx].ParentClass][m.choices[selfIdx].ParentNode]),
		"the self-edge still gets the generic acyclicity constraint, which alone forces it to 0")
}

func TestDiagnoseInfeasibleTracesChain(t *testing.T) {
	g, root, arg, _ := buildTinyRegion()
	out := diagnoseInfeasible(g, root)
	require.Contains(t, out, "eclass 0")
	_ = arg
}
