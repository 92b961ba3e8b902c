package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/extractlab/tiger/internal/egraph"
)

// sampleDoc is a minimal upstream export: one function whose body is its
// own Arg (the effectful state argument), typed via HasType against a
// Base(StateT) type. It exercises effectful-type propagation, Function's
// input/output-type preservation, and the Arg leaf becoming a region
// argument all at once.
const sampleDoc = `{
  "nodes": {
    "n_state": {"op": "StateT", "children": [], "eclass": "BaseType0", "cost": 1, "subsumed": false},
    "n_base":  {"op": "Base", "children": ["n_state"], "eclass": "Type0", "cost": 1, "subsumed": false},
    "n_arg":   {"op": "Arg", "children": [], "eclass": "Expr0", "cost": 1, "subsumed": false},
    "n_hastype": {"op": "HasType", "children": ["n_arg", "n_base"], "eclass": "HasType0", "cost": 1, "subsumed": false},
    "primitive_name": {"op": "\"f\"", "children": [], "eclass": "Prim0", "cost": 1, "subsumed": false},
    "n_fn": {"op": "Function", "children": ["primitive_name", "n_base", "n_base", "n_arg"], "eclass": "ExprFunc0", "cost": 1, "subsumed": false}
  }
}`

func TestParseBuildsEffectfulFunctionRoot(t *testing.T) {
	g, roots, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)
	require.Len(t, roots, 1)

	root := roots[0]
	cls, err := g.Class(root)
	require.NoError(t, err)
	require.True(t, cls.Effectful, "Function's own class must be effectful")

	var found bool
	for _, n := range cls.Nodes {
		if n.Op() == "Function" {
			found = true
			require.Len(t, n.Children, 4)
		}
	}
	require.True(t, found)
}

func TestParseArgBecomesRegionArgument(t *testing.T) {
	g, _, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)

	var argClass egraph.ClassID = egraph.UnextractableClass
	for c, cls := range g.Classes {
		for _, n := range cls.Nodes {
			if n.Op() == "Arg" {
				argClass = egraph.ClassID(c)
			}
		}
	}
	require.True(t, argClass.Valid(), "Arg node must survive pruning")

	cls, err := g.Class(argClass)
	require.NoError(t, err)
	require.True(t, cls.Effectful, "Arg's class must be effectful (HasType propagation)")

	n, err := g.FindArgument(argClass)
	require.NoError(t, err)
	require.Equal(t, egraph.NodeID(0), n)
}

func TestParseRejectsDocumentWithoutFunction(t *testing.T) {
	const noFn = `{"nodes": {
		"n_state": {"op": "StateT", "children": [], "eclass": "BaseType0", "cost": 1, "subsumed": false}
	}}`
	_, _, err := Parse(strings.NewReader(noFn))
	require.Error(t, err)
}

func TestParseRejectsMissingStateT(t *testing.T) {
	const noState = `{"nodes": {
		"n_fn": {"op": "Function", "children": [], "eclass": "ExprFunc0", "cost": 1, "subsumed": false}
	}}`
	_, _, err := Parse(strings.NewReader(noState))
	require.Error(t, err)
}
