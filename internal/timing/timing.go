// Package timing implements §4.9's optional timing harness: given a
// pruned e-graph and its function roots, it discovers every region once,
// runs all four tiger configurations (liveness on/off × satellite
// on/off) plus one ILP extraction per region on a bounded worker pool,
// and reports per-region wall times, DP frontier-size statistics, and
// ILP variable counts as JSON.
//
// Ported from compute_extract_region_timings / write_extract_region_timings_json
// in _examples/original_source/dag_in_context/src/tiger/time_ilp.cpp. The
// worker pool itself (§5: "an atomic fetch-and-increment dispenses
// prepared regions to a worker pool") has no direct analogue anywhere in
// the example pack — none of the graph-algorithm packages drive external
// processes from a bounded pool — so it is built directly on
// sync/atomic and sync.WaitGroup rather than ported from any one file;
// every region writes to its own pre-allocated slot, so no further
// locking is needed, matching §5's "no locks required".
package timing

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/extractlab/tiger/internal/cost"
	"github.com/extractlab/tiger/internal/egraph"
	"github.com/extractlab/tiger/internal/ilp"
	"github.com/extractlab/tiger/internal/orchestrator"
	"github.com/extractlab/tiger/internal/region"
	"github.com/extractlab/tiger/internal/tiger"
)

// Options configures one Run call.
type Options struct {
	// ILPOpts configures the single ILP invocation timed per region.
	ILPOpts []ilp.Option
	// Workers overrides the pool size; zero selects
	// max(1, runtime.NumCPU()/11) per §4.9's "hardware_threads / 11".
	Workers int
}

// Row is one region's timing report record, matching §6's "Timing report
// format" field set exactly.
type Row struct {
	EGraphSize int `json:"egraph_size"`

	TigerDurationLiveSatNS     int64 `json:"tiger_duration_live_sat_ns"`
	TigerDurationLiveNosatNS   int64 `json:"tiger_duration_live_nosat_ns"`
	TigerDurationNoliveSatNS   int64 `json:"tiger_duration_nolive_sat_ns"`
	TigerDurationNoliveNosatNS int64 `json:"tiger_duration_nolive_nosat_ns"`

	ILPDurationNS *int64 `json:"ilp_duration_ns"`
	ILPTimedOut   bool   `json:"ilp_timed_out"`
	ILPInfeasible bool   `json:"ilp_infeasible"`
	ILPNumVars    int    `json:"ilp_encoding_num_vars"`

	StatewalkWidthLiveSatMax     int     `json:"statewalk_width_live_sat_max"`
	StatewalkWidthLiveSatAvg     float64 `json:"statewalk_width_live_sat_avg"`
	StatewalkWidthLiveNosatMax   int     `json:"statewalk_width_live_nosat_max"`
	StatewalkWidthLiveNosatAvg   float64 `json:"statewalk_width_live_nosat_avg"`
	StatewalkWidthNoliveSatMax   int     `json:"statewalk_width_nolive_sat_max"`
	StatewalkWidthNoliveSatAvg   float64 `json:"statewalk_width_nolive_sat_avg"`
	StatewalkWidthNoliveNosatMax int     `json:"statewalk_width_nolive_nosat_max"`
	StatewalkWidthNoliveNosatAvg float64 `json:"statewalk_width_nolive_nosat_avg"`

	// Err is non-nil only when a fatal per-region failure (structural
	// validation, unknown operator) prevented every other field from
	// being populated; it is never serialised. Run treats any such
	// error as fatal and returns it.
	Err error `json:"-"`
}

// Report is the top-level JSON document §6 specifies: {"rows": [...]}.
type Report struct {
	Rows []Row `json:"rows"`
}

var tigerConfigs = [4]tiger.Options{
	{UseLiveness: true, UseSatellite: true},
	{UseLiveness: true, UseSatellite: false},
	{UseLiveness: false, UseSatellite: true},
	{UseLiveness: false, UseSatellite: false},
}

// Run discovers every region reachable from funRoots, times all four
// tiger configurations and one ILP run per region on a bounded worker
// pool, and returns one Row per region in region-discovery order.
func Run(g *egraph.EGraph, funRoots []egraph.ClassID, opts Options) ([]Row, error) {
	regionRoots := region.FindRegionRoots(g, funRoots)
	oracle, err := cost.Compute(g)
	if err != nil {
		return nil, fmt.Errorf("timing: %w", err)
	}

	rows := make([]Row, len(regionRoots))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() / 11
	}
	if workers < 1 {
		workers = 1
	}

	var next int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&next, 1)) - 1
				if i >= len(regionRoots) {
					return
				}
				rows[i] = timeOneRegion(g, regionRoots[i], oracle.StatewalkCost, opts)
			}
		}()
	}
	wg.Wait()

	for i, row := range rows {
		if row.Err != nil {
			return nil, fmt.Errorf("timing: region %d: %w", regionRoots[i], row.Err)
		}
	}
	return rows, nil
}

// timeOneRegion constructs one region, times all four tiger
// configurations and one ILP extraction against it, and returns the
// filled-in Row. A region-local failure is recorded on Row.Err rather
// than panicking, so one bad region does not take down workers still
// processing others (Run itself decides fatality after every worker
// finishes).
func timeOneRegion(g *egraph.EGraph, root egraph.ClassID, statewalkCost [][]cost.Cost, opts Options) Row {
	reg, err := region.Construct(g, root)
	if err != nil {
		return Row{Err: fmt.Errorf("construct region: %w", err)}
	}
	localCost := orchestrator.ProjectStatewalkCost(reg.ToOuter, reg.Graph, statewalkCost)

	row := Row{EGraphSize: reg.Graph.NumClasses()}

	durations := make([]int64, 4)
	widths := make([]tiger.Stats, 4)
	for i, cfg := range tigerConfigs {
		start := time.Now()
		_, stats, err := tiger.StatewalkDPWithStats(reg.Graph, reg.Root, localCost, cfg)
		durations[i] = time.Since(start).Nanoseconds()
		if err != nil {
			return Row{Err: fmt.Errorf("tiger(liveness=%v,satellite=%v): %w", cfg.UseLiveness, cfg.UseSatellite, err)}
		}
		widths[i] = stats
	}
	row.TigerDurationLiveSatNS = durations[0]
	row.TigerDurationLiveNosatNS = durations[1]
	row.TigerDurationNoliveSatNS = durations[2]
	row.TigerDurationNoliveNosatNS = durations[3]
	row.StatewalkWidthLiveSatMax, row.StatewalkWidthLiveSatAvg = widths[0].MaxWidth, widths[0].AvgWidth
	row.StatewalkWidthLiveNosatMax, row.StatewalkWidthLiveNosatAvg = widths[1].MaxWidth, widths[1].AvgWidth
	row.StatewalkWidthNoliveSatMax, row.StatewalkWidthNoliveSatAvg = widths[2].MaxWidth, widths[2].AvgWidth
	row.StatewalkWidthNoliveNosatMax, row.StatewalkWidthNoliveNosatAvg = widths[3].MaxWidth, widths[3].AvgWidth

	ilpStart := time.Now()
	outcome, err := ilp.Extract(reg.Graph, reg.Root, localCost, opts.ILPOpts...)
	ilpElapsed := time.Since(ilpStart).Nanoseconds()
	switch {
	case err == nil:
		row.ILPDurationNS = &ilpElapsed
		row.ILPNumVars = outcome.NumVars
	case outcome != nil && outcome.TimedOut:
		row.ILPTimedOut = true
		row.ILPNumVars = outcome.NumVars
	case outcome != nil && outcome.Infeasible:
		row.ILPInfeasible = true
		row.ILPNumVars = outcome.NumVars
	default:
		return Row{Err: fmt.Errorf("ilp: %w", err)}
	}

	return row
}

// WriteReport marshals rows as the §6 report document and writes it to w.
func WriteReport(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	return enc.Encode(Report{Rows: rows})
}
