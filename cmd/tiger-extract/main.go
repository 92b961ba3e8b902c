// Command tiger-extract reads a pruned e-graph as JSON on stdin and
// writes a sequence of reconstruction rules on stdout, per §6's external
// interface contract.
//
// Grounded on main/Execute in
// _examples/junjiewwang-perf-analysis/cmd/cli/main.go and
// cmd/cli/cmd/root.go, and on the stdin-read / per-function-root
// extraction loop of
// _examples/original_source/dag_in_context/src/tiger/main.cpp — that
// file's own flag handling only ever implements --ilp-mode; the full
// flag set below follows §6 directly, via internal/cliapp.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/extractlab/tiger/internal/cliapp"
)

func main() {
	os.Exit(run())
}

// run is the full program body, separated from main so it never calls
// os.Exit directly — matching the Execute()-wraps-os.Exit(1) shape of
// root.go while keeping this function itself testable.
func run() int {
	cmd := cliapp.NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	err := cmd.Execute()
	if err == nil {
		return 0
	}

	if errors.Is(err, cliapp.ErrTimeout) {
		fmt.Fprintln(os.Stdout, "TIMEOUT")
		return 1
	}

	fmt.Fprintln(os.Stderr, err)
	return 1
}
