// Package appconfig is §9's global configuration surface: a single
// immutable Config struct populated once from CLI flags (internal/cliapp),
// with viper layered on top so every flag can also be set by an
// environment variable — useful in CI harnesses that invoke
// cmd/tiger-extract without constructing an argv.
//
// Grounded on Load/setDefaults/Validate in
// _examples/junjiewwang-perf-analysis/pkg/config/config.go, trimmed to a
// flat struct: this tool has one configuration surface (§6's CLI flags),
// not a multi-section service config file, so there is no YAML file to
// discover and no nested mapstructure sections.
package appconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Solver selects the external MIP solver (§6 "--ilp-solver gurobi|cbc").
type Solver string

const (
	SolverCBC    Solver = "cbc"
	SolverGurobi Solver = "gurobi"
)

// Config is the fully-resolved, validated configuration for one
// cmd/tiger-extract invocation.
type Config struct {
	// ILPMode runs the ILP extractor instead of tiger (§6 "--ilp-mode").
	ILPMode bool `mapstructure:"ilp_mode"`
	// ILPNoMinimize zeroes the ILP objective, stopping at the first
	// feasible solution (§6 "--ilp-no-minimize"); only meaningful with
	// ILPMode or TimeILP.
	ILPNoMinimize bool `mapstructure:"ilp_no_minimize"`
	// ILPSolver chooses the external MIP solver.
	ILPSolver Solver `mapstructure:"ilp_solver"`
	// ILPTimeoutSeconds bounds one region's solver invocation.
	ILPTimeoutSeconds int `mapstructure:"ilp_timeout_seconds"`

	// TimeILP runs both extractors per region and records timings (§6
	// "--time-ilp"); requires ReportRegionTimingsPath to be set.
	TimeILP bool `mapstructure:"time_ilp"`
	// ReportRegionTimingsPath is where the §4.9 JSON timing report is
	// written (§6 "--report-region-timings <path>").
	ReportRegionTimingsPath string `mapstructure:"report_region_timings"`

	// Verbose enables debug-level logging (internal/applog).
	Verbose bool `mapstructure:"verbose"`
}

// defaults mirrors setDefaults: every knob has a safe, inert value before
// any flag or environment variable is applied.
func defaults() Config {
	return Config{
		ILPSolver:         SolverCBC,
		ILPTimeoutSeconds: 10,
	}
}

// Source supplies one already-parsed flag's value; internal/cliapp
// builds this directly from cobra's Flags() rather than round-tripping
// through a file, since there is no config file in this tool.
type Source struct {
	ILPMode                 bool
	ILPNoMinimize           bool
	ILPSolver               string
	ILPTimeoutSeconds       int
	TimeILP                 bool
	ReportRegionTimingsPath string
	Verbose                 bool
}

// Load resolves a Config from CLI flag values layered over defaults, with
// environment variables (prefixed TIGER_) able to override any field that
// the caller left at its zero value — the same AutomaticEnv override
// behaviour Load gives its service config, scaled down to a flag set
// instead of a YAML file.
func Load(src Source) (*Config, error) {
	v := viper.New()
	d := defaults()
	v.SetDefault("ilp_mode", d.ILPMode)
	v.SetDefault("ilp_no_minimize", d.ILPNoMinimize)
	v.SetDefault("ilp_solver", string(d.ILPSolver))
	v.SetDefault("ilp_timeout_seconds", d.ILPTimeoutSeconds)
	v.SetDefault("time_ilp", d.TimeILP)
	v.SetDefault("report_region_timings", d.ReportRegionTimingsPath)
	v.SetDefault("verbose", d.Verbose)

	v.SetEnvPrefix("TIGER")
	v.AutomaticEnv()

	if src.ILPMode {
		v.Set("ilp_mode", true)
	}
	if src.ILPNoMinimize {
		v.Set("ilp_no_minimize", true)
	}
	if src.ILPSolver != "" {
		v.Set("ilp_solver", src.ILPSolver)
	}
	if src.ILPTimeoutSeconds != 0 {
		v.Set("ilp_timeout_seconds", src.ILPTimeoutSeconds)
	}
	if src.TimeILP {
		v.Set("time_ilp", true)
	}
	if src.ReportRegionTimingsPath != "" {
		v.Set("report_region_timings", src.ReportRegionTimingsPath)
	}
	if src.Verbose {
		v.Set("verbose", true)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("appconfig: unmarshal: %w", err)
	}
	cfg.ILPSolver = Solver(strings.ToLower(string(cfg.ILPSolver)))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("appconfig: %w", err)
	}
	return &cfg, nil
}

// Validate enforces §6's flag-combination rules.
func (c *Config) Validate() error {
	if c.ILPSolver != SolverCBC && c.ILPSolver != SolverGurobi {
		return fmt.Errorf("unsupported ilp solver: %q (valid: cbc, gurobi)", c.ILPSolver)
	}
	if c.TimeILP && c.ReportRegionTimingsPath == "" {
		return fmt.Errorf("--time-ilp requires --report-region-timings")
	}
	if c.ILPNoMinimize && !c.ILPMode && !c.TimeILP {
		return fmt.Errorf("--ilp-no-minimize requires --ilp-mode or --time-ilp")
	}
	if c.ILPTimeoutSeconds < 0 {
		return fmt.Errorf("ilp timeout must be non-negative, got %d", c.ILPTimeoutSeconds)
	}
	return nil
}
