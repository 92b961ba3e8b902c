// Package cost implements §4.3's bag-based greedy cost oracle: a fixed
// operator cost table, a Dijkstra-like lowest-ready-cost-first
// propagation (grounded on dijkstra/dijkstra.go's runner/nodePQ shape)
// that produces a scalar bag cost per class, and a second pass deriving
// statewalk_cost for every effectful node.
package cost

import (
	"errors"
	"fmt"

	"github.com/extractlab/tiger/internal/egraph"
)

// Cost is the oracle's cost unit: an unsigned integer, matching
// greedy.cpp's `Cost = unsigned long long`.
type Cost = uint64

// Inf represents an unreachable/unassigned cost (greedy.cpp's `~0ull`).
const Inf Cost = ^Cost(0)

// ErrUnknownOperator is returned when an operator absent from OpTable is
// encountered and SPEC_FULL's ambient error-handling policy requires
// treating this as §7 kind 2, a fatal configuration failure.
var ErrUnknownOperator = errors.New("cost: unknown operator")

// OpTable is the fixed, hard-coded per-operator cost table: a data table
// rather than scattered constants, per §9 "Operator cost table as source
// of truth". Values are ported verbatim from get_enode_cost in
// _examples/original_source/dag_in_context/src/tiger/greedy.cpp.
var OpTable = map[string]Cost{
	"Const": 10,

	"Arg": 0,
	"Get": 1,

	"Empty":  0,
	"Single": 0,
	"Concat": 0,
	"Nil":    0,
	"Cons":   0,

	"Abs":    100,
	"Bitand": 100,
	"Neg":    100,
	"Add":    100,
	"PtrAdd": 100,
	"Sub":    100,
	"And":    100,
	"Or":     100,
	"Not":    100,
	"Shl":    100,
	"Shr":    100,

	"FAdd": 500,
	"FSub": 500,
	"Fmax": 500,
	"Fmin": 500,

	"Mul":    300,
	"FMul":   1500,
	"Select": 1500,

	"Div":  500,
	"FDiv": 2500,

	"Eq":         100,
	"LessThan":   100,
	"GreaterThan": 100,
	"LessEq":     100,
	"GreaterEq":  100,
	"Smax":       100,
	"Smin":       100,
	"FEq":        100,

	"FLessThan":   1000,
	"FGreaterThan": 1000,
	"FLessEq":      1000,
	"FGreaterEq":   1000,

	"Print": 500,
	"Write": 500,
	"Load":  500,

	"Alloc": 1000,
	"Free":  1000,

	"Call": 500000,

	"Program":  0,
	"Function": 0,

	"DoWhile": 1,
	"If":      250,
	"Switch":  250,

	"Uop": 0,
	"Bop": 0,
	"Top": 0,
}

// isPrimitiveOrType covers the families the original's isPrimitive/isType
// helpers classify as always zero-cost leaves: type/shape constructors
// and primitive literal wrappers that never appear in OpTable by exact
// operator name (their Op() strings vary by literal value).
func isPrimitiveOrType(op string) bool {
	switch {
	case hasAnyPrefix(op, "Int", "Bool", "Float"):
		return true
	case hasAnyPrefix(op, "Type", "BaseType", "TypeList"):
		return true
	case hasAnyPrefix(op, "Base", "StateT", "PointerT", "TupleT", "TNil", "TCons"):
		return true
	case hasAnyPrefix(op, "primitive"):
		return true
	}
	return false
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if len(s) >= len(p) && s[:len(p)] == p {
			return true
		}
	}
	return false
}

// EnodeCost returns the fixed cost of a single node by its operator tag,
// or ErrUnknownOperator if the operator is absent from OpTable and is
// not one of the always-zero primitive/type families (§7 kind 2: "fail
// with a fatal configuration error").
func EnodeCost(n *egraph.ENode) (Cost, error) {
	op := n.Op()
	if c, ok := OpTable[op]; ok {
		return c, nil
	}
	if isPrimitiveOrType(op) || hasAnyPrefix(n.Name(), "primitive") {
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
}
