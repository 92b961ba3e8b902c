// Package cliapp wires the §6 command-line contract: one cobra root
// command covering the whole tool (there are no subcommands — tiger-extract
// is a single filter reading e-graph JSON on stdin and writing
// reconstruction rules on stdout), binding every flag into
// internal/appconfig and driving internal/ingest, internal/orchestrator,
// internal/timing, and internal/rules in sequence.
//
// Grounded on rootCmd/Execute/PersistentPreRunE in
// _examples/junjiewwang-perf-analysis/cmd/cli/cmd/root.go: a package-level
// cobra.Command with flags registered in init(), a PersistentPreRunE that
// builds the logger from --verbose, and an Execute() wrapper that turns
// any error into os.Exit(1) — the pprof/analyze/serve subcommand
// machinery has no analogue here since this tool does exactly one thing.
package cliapp

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/extractlab/tiger/internal/appconfig"
	"github.com/extractlab/tiger/internal/applog"
	"github.com/extractlab/tiger/internal/egraph"
	"github.com/extractlab/tiger/internal/ilp"
	"github.com/extractlab/tiger/internal/ingest"
	"github.com/extractlab/tiger/internal/orchestrator"
	"github.com/extractlab/tiger/internal/rules"
	"github.com/extractlab/tiger/internal/tiger"
	"github.com/extractlab/tiger/internal/timing"
)

// ErrTimeout is returned by Run when the ILP solver times out in
// non-timing mode — the caller must print the literal "TIMEOUT" to
// stdout (§6 "Exit codes") before exiting 1; Run itself never writes to
// stdout on this path so callers retain full control over ordering.
var ErrTimeout = errors.New("cliapp: ilp solver timed out")

var flags struct {
	ilpMode             bool
	ilpNoMinimize       bool
	ilpSolver           string
	ilpTimeoutSeconds   int
	timeILP             bool
	reportRegionTimings string
	verbose             bool
}

// NewRootCommand builds the single command tree for tiger-extract. in is
// the e-graph JSON source (stdin in production); out is where
// reconstruction rules or a timing report are written (stdout); errOut
// receives log output (stderr). A solver timeout is returned as
// ErrTimeout, and the caller prints the TIMEOUT literal.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "tiger-extract",
		Short:         "Extract reconstruction rules from a pruned e-graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(appconfig.Source{
				ILPMode:                 flags.ilpMode,
				ILPNoMinimize:           flags.ilpNoMinimize,
				ILPSolver:               flags.ilpSolver,
				ILPTimeoutSeconds:       flags.ilpTimeoutSeconds,
				TimeILP:                 flags.timeILP,
				ReportRegionTimingsPath: flags.reportRegionTimings,
				Verbose:                 flags.verbose,
			})
			if err != nil {
				return err
			}

			var logger applog.Logger = applog.NullLogger{}
			if cfg.Verbose {
				logger = applog.New(applog.LevelDebug, errOut)
			}

			return Run(in, out, errOut, cfg, logger)
		},
	}

	root.Flags().BoolVar(&flags.ilpMode, "ilp-mode", false, "Use the ILP extractor instead of tiger")
	root.Flags().BoolVar(&flags.ilpNoMinimize, "ilp-no-minimize", false, "With --ilp-mode: set the objective to zero")
	root.Flags().StringVar(&flags.ilpSolver, "ilp-solver", "", "External MIP solver: gurobi or cbc")
	root.Flags().IntVar(&flags.ilpTimeoutSeconds, "ilp-timeout-seconds", 0, "Per-region ILP solver timeout in seconds")
	root.Flags().BoolVar(&flags.timeILP, "time-ilp", false, "Run both extractors and record timings; requires --report-region-timings")
	root.Flags().StringVar(&flags.reportRegionTimings, "report-region-timings", "", "Write per-region timing JSON to this path")
	root.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug-level logging")

	return root
}

// Run executes the full §6 pipeline once: parse the e-graph from in,
// extract every function root's reconstruction per cfg, and write the
// result to out. It returns ErrTimeout (unwrapped via errors.Is) when a
// non-timing-mode ILP run times out, so the caller can emit the literal
// "TIMEOUT" required on stdout before exiting 1.
func Run(in io.Reader, out, errOut io.Writer, cfg *appconfig.Config, logger applog.Logger) error {
	g, funRoots, err := ingest.Parse(in)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	logger.Info("parsed e-graph: %d classes, %d function roots", g.NumClasses(), len(funRoots))

	if cfg.TimeILP {
		return runTiming(g, funRoots, cfg, logger)
	}

	opts := orchestrator.Options{
		UseILP:    cfg.ILPMode,
		TigerOpts: tiger.Options{UseLiveness: true, UseSatellite: true},
		ILPOpts:   ilpOptions(cfg),
	}

	extractions, err := orchestrator.ExtractAll(g, funRoots, opts)
	if err != nil {
		if errors.Is(err, ilp.ErrTimedOut) {
			return ErrTimeout
		}
		if errors.Is(err, ilp.ErrInfeasible) {
			return fmt.Errorf("orchestrator: %w", err)
		}
		return fmt.Errorf("orchestrator: %w", err)
	}

	logger.Debug("extracted %d function(s)", len(extractions))
	if err := rules.Print(out, g, extractions); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	return nil
}

func runTiming(g *egraph.EGraph, funRoots []egraph.ClassID, cfg *appconfig.Config, logger applog.Logger) error {
	rows, err := timing.Run(g, funRoots, timing.Options{ILPOpts: ilpOptions(cfg)})
	if err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	logger.Info("timed %d region(s)", len(rows))

	f, err := createReportFile(cfg.ReportRegionTimingsPath)
	if err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	defer f.Close()
	return timing.WriteReport(f, rows)
}

func ilpOptions(cfg *appconfig.Config) []ilp.Option {
	var opts []ilp.Option
	switch cfg.ILPSolver {
	case appconfig.SolverGurobi:
		opts = append(opts, ilp.WithSolver(ilp.SolverGurobi))
	default:
		opts = append(opts, ilp.WithSolver(ilp.SolverCBC))
	}
	if cfg.ILPTimeoutSeconds > 0 {
		opts = append(opts, ilp.WithTimeout(secondsToDuration(cfg.ILPTimeoutSeconds)))
	}
	if cfg.ILPNoMinimize {
		opts = append(opts, ilp.WithNoMinimize())
	}
	return opts
}

func secondsToDuration(s int) time.Duration { return time.Duration(s) * time.Second }

// createReportFile creates (or truncates) the timing-report output file,
// matching the plain os.Create write_extract_region_timings_json uses
// for its hand-written JSON — our side delegates the actual encoding to
// internal/timing.WriteReport.
func createReportFile(path string) (*os.File, error) {
	return os.Create(path)
}
