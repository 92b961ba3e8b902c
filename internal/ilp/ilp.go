// Package ilp implements §4.7's ILP extractor: an alternative to the
// tiger state-walk DP (internal/tiger + internal/treebuild) that encodes
// one region as a binary linear program, hands it to an external MIP
// solver, and reconstructs an Extraction from the solution.
//
// Ported from extractRegionILP in
// _examples/original_source/dag_in_context/src/tiger/ilp.cpp, following
// builder/api.go's single-orchestrator-plus-functional-options shape:
// Extract is the one public entry point, and every knob (solver choice,
// timeout, objective mode, scratch directory) is an Option resolved once
// before the pipeline runs.
package ilp

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/extractlab/tiger/internal/cost"
	"github.com/extractlab/tiger/internal/egraph"
)

var (
	// ErrInfeasible indicates the solver proved the region has no valid
	// extraction honouring linearity and acyclicity. §7's open-question
	// decision: the caller decides whether this is fatal — the timing
	// harness (internal/timing) treats it as a recoverable per-region
	// outcome, everywhere else it is fatal (§7 kind 4).
	ErrInfeasible = errors.New("ilp: solver reported infeasibility")

	// ErrTimedOut indicates the solver did not finish within its timeout
	// and was killed. Recoverable in timing mode, fatal otherwise.
	ErrTimedOut = errors.New("ilp: solver exceeded its configured timeout")

	// ErrSolverFailed indicates the external solver process itself could
	// not be run to completion (missing binary, non-solver crash, or an
	// explicit error marker in its log).
	ErrSolverFailed = errors.New("ilp: solver invocation failed")
)

type config struct {
	solver     SolverKind
	timeout    time.Duration
	noMinimize bool
	workDir    string
}

func defaultConfig() config {
	return config{
		solver:  SolverCBC,
		timeout: 10 * time.Second,
		workDir: os.TempDir(),
	}
}

// Option configures one call to Extract.
type Option func(*config)

// WithSolver selects the external MIP solver (default SolverCBC).
func WithSolver(s SolverKind) Option { return func(c *config) { c.solver = s } }

// WithTimeout bounds the solver invocation (default 10s, matching CBC's
// §4.7 default; pass 5*time.Minute for Gurobi's).
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithNoMinimize runs the solver in feasibility-only mode: the objective's
// coefficients are all zero, so the solver stops at the first feasible
// assignment instead of optimising pick-cost.
func WithNoMinimize() Option { return func(c *config) { c.noMinimize = true } }

// WithWorkDir overrides where the LP/solution/log temp files are created
// (default os.TempDir()).
func WithWorkDir(dir string) Option {
	return func(c *config) {
		if dir != "" {
			c.workDir = dir
		}
	}
}

// Outcome is the per-region result of one Extract call: exactly one of
// Extraction, Infeasible, or TimedOut describes what happened.
type Outcome struct {
	Extraction *egraph.Extraction
	Infeasible bool
	TimedOut   bool
	Diagnostic string // set only when Infeasible, from diagnoseInfeasible
	NumVars    int    // total binary variables in the LP encoding (timing report field)
}

// Extract is the single public orchestrator for the ILP extractor: encode
// the region rooted at root as a binary LP, invoke the configured solver
// against it, parse the solution, and rebuild an Extraction, validating
// effect-safety before returning.
func Extract(g *egraph.EGraph, root egraph.ClassID, statewalkCost [][]cost.Cost, opts ...Option) (*Outcome, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	m, err := encode(g, root, statewalkCost)
	if err != nil {
		return nil, fmt.Errorf("ilp: %w", err)
	}
	numVars := m.numVars()

	lpFile, err := os.CreateTemp(cfg.workDir, "extract_region*.lp")
	if err != nil {
		return nil, fmt.Errorf("ilp: create LP temp file: %w", err)
	}
	lpPath := lpFile.Name()
	defer os.Remove(lpPath)
	if err := m.writeLP(lpFile, cfg.noMinimize); err != nil {
		lpFile.Close()
		return nil, fmt.Errorf("ilp: write LP file: %w", err)
	}
	if err := lpFile.Close(); err != nil {
		return nil, fmt.Errorf("ilp: close LP file: %w", err)
	}

	solPath, err := tempPath(cfg.workDir, "extract_region*.sol")
	if err != nil {
		return nil, fmt.Errorf("ilp: %w", err)
	}
	defer os.Remove(solPath)

	logPath, err := tempPath(cfg.workDir, "extract_region*.log")
	if err != nil {
		return nil, fmt.Errorf("ilp: %w", err)
	}
	defer os.Remove(logPath)

	timedOut, err := runSolver(cfg, lpPath, solPath, logPath)
	if err != nil {
		return nil, fmt.Errorf("ilp: %w", err)
	}
	if timedOut {
		return &Outcome{TimedOut: true, NumVars: numVars}, ErrTimedOut
	}
	if err := checkSolverLog(logPath); err != nil {
		return nil, err
	}

	values, infeasible, err := parseSolution(solPath)
	if err != nil {
		return nil, fmt.Errorf("ilp: %w", err)
	}
	if infeasible {
		return &Outcome{Infeasible: true, NumVars: numVars, Diagnostic: diagnoseInfeasible(g, root)}, ErrInfeasible
	}

	ex, err := rebuildExtraction(g, m, values)
	if err != nil {
		return nil, fmt.Errorf("ilp: %w", err)
	}
	if err := ex.Validate(g); err != nil {
		return nil, fmt.Errorf("ilp: %w", err)
	}
	if err := ex.EffectSafe(g); err != nil {
		return nil, fmt.Errorf("ilp: %w", err)
	}
	return &Outcome{Extraction: ex, NumVars: numVars}, nil
}

// tempPath reserves a uniquely-named file (mirroring the source's
// mkstemps calls for the .sol/.log scratch files) and closes it
// immediately; the solver process reopens it by name.
func tempPath(dir, pattern string) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return path, nil
}
