// Package ingest is the boundary translator of §6 "Standard input": it
// decodes the upstream equality-saturation exporter's JSON shape into an
// *egraph.EGraph plus the list of function-root classes, following the
// classification rules of
// _examples/original_source/dag_in_context/src/tiger/json2egraphin.cpp
// (parse_egglog_json) but built on encoding/json rather than a hand-rolled
// tokenizer — §1 excludes this component from the core contribution, so
// it is written the idiomatic Go way rather than ported token-for-token.
//
// Stub replaced: this package fills the role converterts/doc.go's
// "two-way adapters between core.Graph and popular Go graph libraries"
// play in the teacher pack, except the foreign representation here is
// the upstream exporter's JSON, not another Go graph library.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/extractlab/tiger/internal/egraph"
	"github.com/extractlab/tiger/internal/prune"
)

// ErrMissingStateT indicates the document never declares a StateT type
// node, so effectfulness cannot be propagated (json2egraphin.cpp assumes
// exactly one exists).
var ErrMissingStateT = errors.New("ingest: no StateT node found in document")

// rawNode is one entry of the JSON document's "nodes" object.
type rawNode struct {
	Op       string   `json:"op"`
	Children []string `json:"children"`
	EClass   string   `json:"eclass"`
	Cost     float64  `json:"cost"` // ignored, per §6
	Subsumed bool     `json:"subsumed"`
}

// document is the top-level shape: {"nodes": {name: rawNode, ...}, ...}.
// Unrecognised top-level keys (e.g. a "class_data" sibling some exporter
// variants include) are tolerated and ignored, per §6's "tolerates
// line-level noise".
type document struct {
	Nodes map[string]rawNode `json:"nodes"`
}

// namedNode pairs a rawNode with its JSON key (the upstream node name),
// mirroring RawENode.name in json2egraphin.cpp.
type namedNode struct {
	name string
	node rawNode
}

// rawClass groups every namedNode sharing one eclass string, in the
// deterministic order assigned by Parse (sorted node names), replacing
// the tokenizer's single-pass discovery order with a reproducible one.
type rawClass struct {
	eclassStr string
	nodes     []namedNode
}

// Parse decodes an upstream exporter document into a pruned EGraph plus
// its function-root classes, running the same pipeline as
// parse_egglog_json: classify raw classes into the seven families,
// propagate effectfulness from StateT through type constructors, mark
// reachability and necessary types from every Function root, rebuild a
// simplified graph, and prune it of unextractable nodes (§4.2).
func Parse(r io.Reader) (*egraph.EGraph, []egraph.ClassID, error) {
	var doc document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("ingest: decode: %w", err)
	}

	classes, classOf := groupByClass(doc.Nodes)

	effectfulType, err := propagateEffectfulTypes(classes, classOf)
	if err != nil {
		return nil, nil, err
	}
	hasEffectfulType := markEffectfulExprs(classes, classOf, effectfulType)

	funRoots := findFunctionRoots(classes)
	if len(funRoots) == 0 {
		return nil, nil, fmt.Errorf("ingest: document has no Function root")
	}

	reachable, necessaryTypes := markReachable(classes, classOf, funRoots)

	g, newID := buildSimpleGraph(classes, classOf, reachable, necessaryTypes, hasEffectfulType)

	res, err := prune.Prune(g, egraph.UnextractableClass)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: %w", err)
	}

	prunedRoots := make([]egraph.ClassID, 0, len(funRoots))
	for _, r := range funRoots {
		nid, ok := newID[r]
		if !ok {
			continue
		}
		mapped := res.Mapping.MapClass(nid)
		if mapped.Valid() {
			prunedRoots = append(prunedRoots, mapped)
		}
	}
	if len(prunedRoots) == 0 {
		return nil, nil, fmt.Errorf("ingest: no function root survived pruning")
	}

	return res.Graph, prunedRoots, nil
}

// groupByClass buckets every named node by its eclass string, assigning
// each distinct string a raw class index in sorted-name order for
// reproducibility (the original tokenizer's order depends on file layout,
// which Go's map-based JSON decoding does not preserve).
func groupByClass(nodes map[string]rawNode) ([]rawClass, map[string]int) {
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	classIdx := make(map[string]int)
	var classes []rawClass
	for _, name := range names {
		n := nodes[name]
		idx, ok := classIdx[n.EClass]
		if !ok {
			idx = len(classes)
			classIdx[n.EClass] = idx
			classes = append(classes, rawClass{eclassStr: n.EClass})
		}
		classes[idx].nodes = append(classes[idx].nodes, namedNode{name: name, node: n})
	}

	classOf := make(map[string]int, len(nodes))
	for ci, c := range classes {
		for _, nn := range c.nodes {
			classOf[nn.name] = ci
		}
	}
	return classes, classOf
}

func isExpr(c rawClass) bool {
	return hasAnyPrefix(c.eclassStr, "Expr", "Constant", "TernaryOp", "BinaryOp", "UnaryOp")
}

func isType(c rawClass) bool {
	return hasAnyPrefix(c.eclassStr, "Type", "BaseType", "TypeList")
}

func isPrimitiveName(name string) bool {
	return strings.HasPrefix(name, "primitive")
}

func isPrimitiveClass(c rawClass) bool {
	for _, nn := range c.nodes {
		if isPrimitiveName(nn.name) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// typeListSkipOps are excluded from the type-dependency graph built by
// propagateEffectfulTypes, mirroring propagate_effectful_types's "assuming
// it will be merged with some grounded type" skip for these two ops.
var typeListSkipOps = map[string]bool{
	"TypeList-ith":      true,
	"TypeListRemoveAt": true,
}

// propagateEffectfulTypes marks every type class that transitively
// contains a StateT as effectful, following propagate_effectful_types:
// build a dependency edge child->parent for every type node's children,
// then BFS outward from the StateT class along those edges.
func propagateEffectfulTypes(classes []rawClass, classOf map[string]int) ([]bool, error) {
	edges := make([][]int, len(classes))
	stateT := -1
	for i, c := range classes {
		if !isType(c) {
			continue
		}
		for _, nn := range c.nodes {
			if nn.node.Op == "StateT" {
				stateT = i
			}
			if typeListSkipOps[nn.node.Op] {
				continue
			}
			for _, chName := range nn.node.Children {
				v, ok := classOf[chName]
				if !ok {
					continue
				}
				edges[v] = append(edges[v], i)
			}
		}
	}
	if stateT == -1 {
		return nil, ErrMissingStateT
	}

	effectful := make([]bool, len(classes))
	effectful[stateT] = true
	queue := []int{stateT}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range edges[u] {
			if !effectful[v] {
				effectful[v] = true
				queue = append(queue, v)
			}
		}
	}
	return effectful, nil
}

// markEffectfulExprs marks every Expr class reachable from a "HasType"
// node whose type operand is effectful, plus every class containing a
// Function node, mirroring mark_effectful_exprs.
func markEffectfulExprs(classes []rawClass, classOf map[string]int, effectfulType []bool) []bool {
	has := make([]bool, len(classes))
	for i, c := range classes {
		for _, nn := range c.nodes {
			switch nn.node.Op {
			case "HasType":
				if len(nn.node.Children) != 2 {
					continue
				}
				ec, ok1 := classOf[nn.node.Children[0]]
				tc, ok2 := classOf[nn.node.Children[1]]
				if ok1 && ok2 && effectfulType[tc] {
					has[ec] = true
				}
			case "Function":
				has[i] = true
			}
		}
	}
	return has
}

// findFunctionRoots returns every raw class index holding a node whose op
// is "Function", in class-index order (find_function_roots).
func findFunctionRoots(classes []rawClass) []int {
	var roots []int
	for i, c := range classes {
		for _, nn := range c.nodes {
			if nn.node.Op == "Function" {
				roots = append(roots, i)
				break
			}
		}
	}
	return roots
}

var typeNormalFormOps = map[string]bool{
	"IntT": true, "BoolT": true, "FloatT": true, "PointerT": true,
	"StateT": true, "Base": true, "TupleT": true, "TNil": true, "TCons": true,
}

// markReachable runs mark_reachable from every function root: BFS over
// Expr/primitive classes (treating primitive classes as leaves, never
// descending into their children), tracking the Type classes a Function's
// input/output types or an Alloc's type operand need preserved, then a
// second BFS over those type classes restricted to type-normal-form nodes.
func markReachable(classes []rawClass, classOf map[string]int, funRoots []int) (reachable, necessaryTypes []bool) {
	reachable = make([]bool, len(classes))
	necessaryTypes = make([]bool, len(classes))
	var typeQueue []int

	markType := func(idx int) {
		if !necessaryTypes[idx] {
			necessaryTypes[idx] = true
			typeQueue = append(typeQueue, idx)
		}
	}

	var queue []int
	for _, r := range funRoots {
		if !reachable[r] {
			reachable[r] = true
			queue = append(queue, r)
		}
	}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		if isPrimitiveClass(classes[u]) {
			continue
		}
		for _, nn := range classes[u].nodes {
			for _, chName := range nn.node.Children {
				v, ok := classOf[chName]
				if !ok {
					continue
				}
				if !reachable[v] && (isExpr(classes[v]) || isPrimitiveClass(classes[v])) {
					reachable[v] = true
					queue = append(queue, v)
				}
			}
			switch nn.node.Op {
			case "Function":
				if len(nn.node.Children) == 4 {
					if inputT, ok := classOf[nn.node.Children[1]]; ok {
						markType(inputT)
					}
					if outputT, ok := classOf[nn.node.Children[2]]; ok {
						markType(outputT)
					}
				}
			case "Alloc":
				if len(nn.node.Children) == 4 {
					if ty, ok := classOf[nn.node.Children[3]]; ok {
						markType(ty)
					}
				}
			}
		}
	}

	for len(typeQueue) > 0 {
		u := typeQueue[0]
		typeQueue = typeQueue[1:]
		for _, nn := range classes[u].nodes {
			if !typeNormalFormOps[nn.node.Op] {
				continue
			}
			for _, chName := range nn.node.Children {
				v, ok := classOf[chName]
				if !ok {
					continue
				}
				markType(v)
			}
		}
	}

	return reachable, necessaryTypes
}

// extractableOps mirrors EXTRACTABLEOP: operators that survive into the
// simplified graph. Numeric/string literal ops (recognised by their
// leading character rather than an exact name) are handled separately by
// isExtractableOp.
var extractableOps = map[string]bool{
	"Int": true, "Bool": true, "Float": true,
	"Const": true, "Arg": true,
	"true": true, "false": true, "()": true,
	"Empty": true, "Single": true, "Concat": true, "Nil": true, "Cons": true,
	"Get": true,
	"Abs": true, "Bitand": true, "Neg": true, "Add": true, "PtrAdd": true,
	"Sub": true, "And": true, "Or": true, "Not": true, "Shl": true, "Shr": true,
	"FAdd": true, "FSub": true, "Fmax": true, "Fmin": true,
	"Mul": true, "FMul": true, "Div": true, "FDiv": true,
	"Eq": true, "LessThan": true, "GreaterThan": true, "LessEq": true, "GreaterEq": true,
	"Select": true, "Smax": true, "Smin": true,
	"FEq": true, "FLessThan": true, "FGreaterThan": true, "FLessEq": true, "FGreaterEq": true,
	"Print": true, "Write": true, "Load": true,
	"Alloc": true, "Free": true,
	"Call":     true,
	"Program":  true,
	"Function": true,
	"DoWhile":  true,
	"If":       true,
	"Switch":   true,
	"Bop":      true, "Uop": true, "Top": true,
}

func isExtractableOp(op string) bool {
	if op == "" {
		return false
	}
	switch op[0] {
	case '\\', '"', '.', '-':
		return true
	}
	if op[0] >= '0' && op[0] <= '9' {
		return true
	}
	return extractableOps[op]
}

// buildSimpleGraph mirrors build_simple_egraph: allocate one egraph class
// per reachable Expr/primitive raw class (effectful per hasEffectfulType)
// and per necessary-type raw class (always pure), then emit nodes —
// dropping Type children from ordinary Expr nodes (kept only for Function
// and Alloc, which need their type operands) and keeping only
// type-normal-form nodes for necessary-type classes.
func buildSimpleGraph(classes []rawClass, classOf map[string]int, reachable, necessaryTypes, hasEffectfulType []bool) (*egraph.EGraph, map[int]egraph.ClassID) {
	g := egraph.NewEGraph(len(classes))
	newID := make(map[int]egraph.ClassID, len(classes))

	for i, c := range classes {
		switch {
		case reachable[i] && (isExpr(c) || isPrimitiveClass(c)):
			newID[i] = g.AddClass(hasEffectfulType[i])
		case necessaryTypes[i]:
			newID[i] = g.AddClass(false)
		}
	}

	for i, c := range classes {
		nid, kept := newID[i]
		if !kept {
			continue
		}
		switch {
		case reachable[i] && isExpr(c):
			for _, nn := range c.nodes {
				if !isExtractableOp(nn.node.Op) {
					continue
				}
				en := egraph.ENode{Head: nn.name + egraph.HeadDelimiter + nn.node.Op}
				keepTypeChild := nn.node.Op == "Function" || nn.node.Op == "Alloc"
				for _, chName := range nn.node.Children {
					v, ok := classOf[chName]
					if !ok {
						continue
					}
					cid, ok := newID[v]
					if !ok {
						continue
					}
					if !keepTypeChild && isType(classes[v]) {
						continue
					}
					en.Children = append(en.Children, cid)
				}
				g.AddNode(nid, en)
			}
		case reachable[i]:
			for _, nn := range c.nodes {
				if !isPrimitiveName(nn.name) || !isExtractableOp(nn.node.Op) {
					continue
				}
				en := egraph.ENode{Head: nn.name + egraph.HeadDelimiter + nn.node.Op}
				for _, chName := range nn.node.Children {
					v, ok := classOf[chName]
					if !ok {
						continue
					}
					cid, ok := newID[v]
					if !ok || isType(classes[v]) {
						continue
					}
					en.Children = append(en.Children, cid)
				}
				g.AddNode(nid, en)
			}
		case necessaryTypes[i]:
			for _, nn := range c.nodes {
				if !typeNormalFormOps[nn.node.Op] {
					continue
				}
				en := egraph.ENode{Head: nn.name + egraph.HeadDelimiter + nn.node.Op}
				for _, chName := range nn.node.Children {
					v, ok := classOf[chName]
					if !ok {
						continue
					}
					cid, ok := newID[v]
					if !ok {
						continue
					}
					en.Children = append(en.Children, cid)
				}
				g.AddNode(nid, en)
			}
		}
	}

	return g, newID
}
