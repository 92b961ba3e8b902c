// Package orchestrator implements §4.8: given a pruned e-graph and a set
// of function roots, it discovers every region, extracts each one
// exactly once (memoised across function roots that share a region),
// and splices sub-region extractions in at the secondary effectful
// child positions that internal/region drops from its rebuilt graphs.
//
// Ported from extract_all_fun_roots_tiger / extract_region_tiger in
// _examples/original_source/dag_in_context/src/tiger/regionalize.cpp.
package orchestrator

import (
	"errors"
	"fmt"

	"github.com/extractlab/tiger/internal/cost"
	"github.com/extractlab/tiger/internal/egraph"
	"github.com/extractlab/tiger/internal/ilp"
	"github.com/extractlab/tiger/internal/region"
	"github.com/extractlab/tiger/internal/tiger"
	"github.com/extractlab/tiger/internal/treebuild"
)

// Options configures how every region in one ExtractAll call is extracted.
type Options struct {
	// UseILP runs internal/ilp instead of the tiger/treebuild pipeline
	// for every region (§6 "--ilp-mode").
	UseILP bool
	// TigerOpts is passed to tiger.StatewalkDP when UseILP is false.
	TigerOpts tiger.Options
	// ILPOpts is passed to ilp.Extract when UseILP is true.
	ILPOpts []ilp.Option
}

// regionResult memoises one region root's own extraction (not yet
// spliced into any function root's combined extraction): Class/Node
// fields are in outer-graph space, but Children entries are positions
// local to this slice, exactly as extract_region_tiger's cached
// region_extraction_cache[rid].first.
type regionResult struct {
	extraction *egraph.Extraction
	built      bool
}

// ExtractAll computes one Extraction per function root. A region shared
// by two function roots is extracted once and spliced into both.
func ExtractAll(g *egraph.EGraph, funRoots []egraph.ClassID, opts Options) ([]*egraph.Extraction, error) {
	regionRoots := region.FindRegionRoots(g, funRoots)
	regionRootID := make(map[egraph.ClassID]int, len(regionRoots))
	for i, r := range regionRoots {
		regionRootID[r] = i
	}

	oracle, err := cost.Compute(g)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	cache := make([]regionResult, len(regionRoots))
	results := make([]*egraph.Extraction, len(funRoots))
	for i, root := range funRoots {
		e := &egraph.Extraction{}
		positions := make(map[int]int)
		if _, err := spliceRegion(g, root, e, regionRootID, cache, positions, oracle.StatewalkCost, opts); err != nil {
			return nil, fmt.Errorf("orchestrator: function root %d: %w", root, err)
		}
		if err := e.Validate(g); err != nil {
			return nil, fmt.Errorf("orchestrator: function root %d: %w", root, err)
		}
		if err := e.EffectSafe(g); err != nil {
			return nil, fmt.Errorf("orchestrator: function root %d: %w", root, err)
		}
		results[i] = e
	}
	return results, nil
}

// spliceRegion ensures root's region has been extracted (computing and
// caching it on first use), recursively splices in every sub-region it
// references, appends the region's own nodes to e at their final
// position, and returns that position — memoised per function root via
// positions so a region reached twice within one function is only
// appended once.
func spliceRegion(
	g *egraph.EGraph,
	root egraph.ClassID,
	e *egraph.Extraction,
	regionRootID map[egraph.ClassID]int,
	cache []regionResult,
	positions map[int]int,
	statewalkCost [][]cost.Cost,
	opts Options,
) (int, error) {
	rid, ok := regionRootID[root]
	if !ok {
		return 0, fmt.Errorf("class %d is not a known region root", root)
	}
	if pos, ok := positions[rid]; ok {
		return pos, nil
	}

	if !cache[rid].built {
		local, err := computeRegionExtraction(g, root, statewalkCost, opts)
		if err != nil {
			return 0, fmt.Errorf("region %d: %w", root, err)
		}
		cache[rid] = regionResult{extraction: local, built: true}
	}
	localExt := cache[rid].extraction

	// Pass 1: recurse into every secondary effectful child referenced by
	// this region's own nodes (sub-region roots), in encounter order.
	var subregions []int
	for _, rec := range localExt.Nodes {
		node, err := g.Node(rec.Class, rec.Node)
		if err != nil {
			return 0, err
		}
		seenEffectful := false
		for _, ch := range node.Children {
			if !ch.Valid() {
				continue
			}
			chCls, err := g.Class(ch)
			if err != nil {
				return 0, err
			}
			if !chCls.Effectful {
				continue
			}
			if !seenEffectful {
				seenEffectful = true
				continue
			}
			pos, err := spliceRegion(g, ch, e, regionRootID, cache, positions, statewalkCost, opts)
			if err != nil {
				return 0, err
			}
			subregions = append(subregions, pos)
		}
	}

	// Pass 2: append this region's own records at base+i, interleaving
	// the just-built subregion positions at the secondary-effectful-child
	// slots and offsetting the region-local positions everywhere else.
	base := len(e.Nodes)
	e.Nodes = append(e.Nodes, make([]egraph.ExtractionNode, len(localExt.Nodes))...)
	l := 0
	for i, rec := range localExt.Nodes {
		node, err := g.Node(rec.Class, rec.Node)
		if err != nil {
			return 0, err
		}
		children := make([]int, len(node.Children))
		seenEffectful := false
		k := 0
		for j, ch := range node.Children {
			isEffectful := false
			if ch.Valid() {
				if chCls, err := g.Class(ch); err == nil && chCls.Effectful {
					isEffectful = true
				}
			}
			if isEffectful {
				if seenEffectful {
					children[j] = subregions[l]
					l++
					continue
				}
				seenEffectful = true
			}
			if k >= len(rec.Children) {
				return 0, fmt.Errorf("region %d record %d: child index %d out of range", root, i, k)
			}
			children[j] = base + rec.Children[k]
			k++
		}
		e.Nodes[base+i] = egraph.ExtractionNode{Class: rec.Class, Node: rec.Node, Children: children}
	}

	pos := base + len(localExt.Nodes) - 1
	positions[rid] = pos
	return pos, nil
}

// computeRegionExtraction builds and returns one region's own extraction
// (Class/Node projected to outer space, Children positions local to the
// returned Extraction) — the region-construction, extraction, and
// back-projection steps of extract_region_tiger's "not yet computed"
// branch.
func computeRegionExtraction(g *egraph.EGraph, root egraph.ClassID, statewalkCost [][]cost.Cost, opts Options) (*egraph.Extraction, error) {
	reg, err := region.Construct(g, root)
	if err != nil {
		return nil, fmt.Errorf("construct region: %w", err)
	}
	localCost := ProjectStatewalkCost(reg.ToOuter, reg.Graph, statewalkCost)

	var local *egraph.Extraction
	if opts.UseILP {
		outcome, err := ilp.Extract(reg.Graph, reg.Root, localCost, opts.ILPOpts...)
		if errors.Is(err, ilp.ErrInfeasible) && outcome != nil && outcome.Diagnostic != "" {
			return nil, fmt.Errorf("%w\n%s", err, outcome.Diagnostic)
		}
		if err != nil {
			return nil, err
		}
		local = outcome.Extraction
	} else {
		local, err = treebuild.ExtractRegion(reg.Graph, reg.Root, localCost, opts.TigerOpts)
		if errors.Is(err, tiger.ErrNoStatewalk) {
			return nil, fmt.Errorf("%w\n%s", err, region.DumpRegion(reg))
		}
		if err != nil {
			return nil, err
		}
	}

	if err := egraph.ProjectExtraction(reg.ToOuter, local); err != nil {
		return nil, fmt.Errorf("project region extraction: %w", err)
	}
	return local, nil
}

// ProjectStatewalkCost re-keys outerCost (indexed by outer class/node)
// into the region-local class/node space toOuter maps from, mirroring
// project_statewalk_cost in tiger.cpp. Exported so internal/timing can
// project the same globally-computed statewalk_cost per region without
// recomputing the oracle per region.
func ProjectStatewalkCost(toOuter *egraph.Mapping, localGraph *egraph.EGraph, outerCost [][]cost.Cost) [][]cost.Cost {
	out := make([][]cost.Cost, localGraph.NumClasses())
	for c, cls := range localGraph.Classes {
		if !cls.Effectful {
			continue
		}
		out[c] = make([]cost.Cost, len(cls.Nodes))
		outerClass := toOuter.MapClass(egraph.ClassID(c))
		if !outerClass.Valid() {
			continue
		}
		for n := range cls.Nodes {
			outerNode := toOuter.MapNode(egraph.ClassID(c), egraph.NodeID(n))
			if outerNode == egraph.NodeID(egraph.UnextractableClass) {
				continue
			}
			if int(outerClass) < len(outerCost) && int(outerNode) < len(outerCost[outerClass]) {
				out[c][n] = outerCost[outerClass][outerNode]
			}
		}
	}
	return out
}
