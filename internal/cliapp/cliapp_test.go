package cliapp

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/extractlab/tiger/internal/appconfig"
	"github.com/extractlab/tiger/internal/applog"
)

const sampleDoc = `{
  "nodes": {
    "n_state": {"op": "StateT", "children": [], "eclass": "BaseType0", "cost": 1, "subsumed": false},
    "n_base":  {"op": "Base", "children": ["n_state"], "eclass": "Type0", "cost": 1, "subsumed": false},
    "n_arg":   {"op": "Arg", "children": [], "eclass": "Expr0", "cost": 1, "subsumed": false},
    "n_hastype": {"op": "HasType", "children": ["n_arg", "n_base"], "eclass": "HasType0", "cost": 1, "subsumed": false},
    "primitive_name": {"op": "\\\"f\\\"", "children": [], "eclass": "Prim0", "cost": 1, "subsumed": false},
    "n_fn": {"op": "Function", "children": ["primitive_name", "n_base", "n_base", "n_arg"], "eclass": "ExprFunc0", "cost": 1, "subsumed": false}
  }
}`

func TestRunDefaultPipelineEmitsRules(t *testing.T) {
	cfg, err := appconfig.Load(appconfig.Source{})
	require.NoError(t, err)

	var out, errOut bytes.Buffer
	err = Run(strings.NewReader(sampleDoc), &out, &errOut, cfg, applog.NullLogger{})
	require.NoError(t, err)
	require.Contains(t, out.String(), "(ruleset reconstruction)")
	require.Contains(t, out.String(), "; Function #1")
}

func TestRunRejectsMalformedDocument(t *testing.T) {
	cfg, err := appconfig.Load(appconfig.Source{})
	require.NoError(t, err)

	var out, errOut bytes.Buffer
	err = Run(strings.NewReader("not json"), &out, &errOut, cfg, applog.NullLogger{})
	require.Error(t, err)
}

func TestNewRootCommandRegistersFlags(t *testing.T) {
	cmd := NewRootCommand(strings.NewReader(sampleDoc), &bytes.Buffer{}, &bytes.Buffer{})
	for _, name := range []string{"ilp-mode", "ilp-no-minimize", "ilp-solver", "time-ilp", "report-region-timings", "verbose"} {
		require.NotNil(t, cmd.Flags().Lookup(name), "missing flag %q", name)
	}
}
