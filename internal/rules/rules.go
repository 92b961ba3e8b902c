// Package rules is the boundary translator of §6 "Standard output": it
// prints a sequence of reconstruction rules in the upstream rewriter's
// syntax from a finished Extraction — a fixed datatype prologue, one
// `let`-chain rule per function extraction, and an epilogue running the
// reconstruction ruleset once.
//
// Ported from print_egg_prologue / print_egg_extraction / print_egg_epilogue
// in _examples/original_source/dag_in_context/src/tiger/toegglog.cpp. §1
// excludes this component from the core contribution, so the datatype
// declarations and per-node dispatch are followed structurally but
// written as ordinary Go string/io.Writer code rather than ported
// printf-for-printf.
package rules

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/extractlab/tiger/internal/egraph"
)

// prologue is the fixed datatype/constructor declaration block every
// reconstruction run needs before any rule body, verbatim from
// print_egg_prologue's schema string.
const prologue = `
(datatype Expr)

(sort TypeList)

(datatype BaseType
  (IntT)
  (BoolT)
  (FloatT)
  (PointerT BaseType)
  (StateT)
)

(datatype Type
  (Base BaseType)
  (TupleT TypeList)
)

(constructor TNil () TypeList)
(constructor TCons (BaseType TypeList) TypeList)

(let DumT (TupleT (TNil)))

(datatype Assumption
  (DumC)
)

(constructor Arg (Type Assumption) Expr)

(datatype Constant
  (Int i64)
  (Bool bool)
  (Float f64)
)

(constructor Empty (Type Assumption) Expr)

(constructor Const (Constant Type Assumption) Expr)

(datatype TernaryOp
  (Write)
  (Select)
)

(datatype BinaryOp
  (Bitand)
  (Add)
  (Sub)
  (Div)
  (Mul)
  (LessThan)
  (GreaterThan)
  (LessEq)
  (GreaterEq)
  (Eq)
  (Smin)
  (Smax)
  (Shl)
  (Shr)
  (FAdd)
  (FSub)
  (FDiv)
  (FMul)
  (FLessThan)
  (FGreaterThan)
  (FLessEq)
  (FGreaterEq)
  (FEq)
  (Fmin)
  (Fmax)
  (And)
  (Or)
  (Load)
  (PtrAdd)
  (Print)
  (Free)
)

(datatype UnaryOp
  (Neg)
  (Abs)
  (Not)
)

(constructor Top   (TernaryOp Expr Expr Expr) Expr)
(constructor Bop   (BinaryOp Expr Expr) Expr)
(constructor Uop   (UnaryOp Expr) Expr)

(constructor Get   (Expr i64) Expr)
(constructor Alloc (i64 Expr Expr BaseType) Expr)
(constructor Call  (String Expr) Expr)

(constructor Single (Expr) Expr)
(constructor Concat (Expr Expr) Expr)

(constructor If (Expr Expr Expr Expr) Expr)

(constructor DoWhile (Expr Expr) Expr)

(constructor Function (String Type Type Expr) Expr)

(ruleset reconstruction)
`

// epilogue runs the reconstruction ruleset once, after every function's
// rule has been emitted (print_egg_epilogue).
const epilogue = "(run reconstruction 1)\n"

// Printer emits reconstruction rules across one or more extractions,
// carrying the monotonically increasing temp-variable counter toegglog.cpp
// keeps as a file-local static (cnt) across every print_egg_extraction
// call.
type Printer struct {
	tmpCounter int
	funCounter int
}

// NewPrinter returns a Printer ready to print the fixed prologue followed
// by one rule per extraction.
func NewPrinter() *Printer { return &Printer{} }

// WritePrologue writes the fixed datatype/constructor prologue.
func (p *Printer) WritePrologue(w io.Writer) error {
	_, err := io.WriteString(w, prologue)
	return err
}

// WriteEpilogue runs the reconstruction ruleset once.
func (p *Printer) WriteEpilogue(w io.Writer) error {
	_, err := io.WriteString(w, epilogue)
	return err
}

// WriteExtraction prints one function's extraction as a `(rule () (...)
// :ruleset reconstruction)` body: a let-chain binding a fresh temp symbol
// per node in topological order, mirroring print_egg_extraction's per-node
// dispatch (primitive literals bind to their literal text; Arg/Const/Empty
// get their fixed dummy-type/assumption arguments; every other op is
// printed with its extracted children as operands).
func (p *Printer) WriteExtraction(w io.Writer, g *egraph.EGraph, e *egraph.Extraction) error {
	p.funCounter++
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "; Function #%d\n", p.funCounter)
	fmt.Fprint(bw, "(rule () (\n")

	vars := make([]string, len(e.Nodes))
	for i, rec := range e.Nodes {
		n, err := g.Node(rec.Class, rec.Node)
		if err != nil {
			return fmt.Errorf("rules: extraction[%d]: %w", i, err)
		}
		name, op := n.Name(), n.Op()

		if strings.HasPrefix(name, "primitive") {
			vars[i] = literalText(op)
			continue
		}

		curvar := fmt.Sprintf("__tmp%d", p.tmpCounter)
		p.tmpCounter++
		vars[i] = curvar

		fmt.Fprintf(bw, "\t(let %s (", curvar)
		switch op {
		case "Arg":
			fmt.Fprint(bw, "Arg DumT (DumC)")
		case "Const":
			if len(rec.Children) != 1 {
				return fmt.Errorf("rules: extraction[%d]: Const expects 1 child, got %d", i, len(rec.Children))
			}
			fmt.Fprintf(bw, "Const %s DumT (DumC)", vars[rec.Children[0]])
		case "Empty":
			fmt.Fprint(bw, "Empty DumT (DumC)")
		default:
			fmt.Fprint(bw, op)
			for _, childPos := range rec.Children {
				fmt.Fprintf(bw, " %s", vars[childPos])
			}
		}
		fmt.Fprint(bw, "))\n")
	}

	fmt.Fprint(bw, ") :ruleset reconstruction)\n")
	return bw.Flush()
}

// literalText turns a primitive node's Op into the literal egglog source it
// should appear as in a let-chain body. A string literal is encoded as
// `\"content\"` (a leading backslash marking it as a literal, the content
// itself still carrying its original escaped quotes); literalText drops
// the leading backslash and the trailing `\"`, then reappends a single
// closing quote. Every other literal (numbers, "true"/"false") is emitted
// verbatim — mirrors print_egg_extraction's
// `if (op[0] == '\\') var[i] = op.substr(1, op.length()-3) + "\""`.
func literalText(op string) string {
	if strings.HasPrefix(op, "\\") && len(op) >= 4 {
		return op[1:len(op)-2] + "\""
	}
	return op
}

// Print runs the full §6 output pipeline: prologue, one rule per
// extraction in order, then the epilogue (output_egglog).
func Print(w io.Writer, g *egraph.EGraph, extractions []*egraph.Extraction) error {
	p := NewPrinter()
	if err := p.WritePrologue(w); err != nil {
		return err
	}
	for _, e := range extractions {
		if err := p.WriteExtraction(w, g, e); err != nil {
			return err
		}
	}
	return p.WriteEpilogue(w)
}
