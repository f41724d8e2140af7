package eval

import (
	"math"

	"github.com/vimeh/gridcore/ast"
	"github.com/vimeh/gridcore/grid"
)

// BuiltinFunc implements a formula function. args are the unevaluated call
// arguments so that range-aware builtins (SUM, COUNT, ...) can walk ranges
// without the evaluator first flattening them into scalars.
type BuiltinFunc func(e *Evaluator, ctx Context, args []ast.Node) grid.Value

// Evaluator walks a parsed formula AST, resolving references through a
// Context and dispatching calls through a table of built-in functions.
type Evaluator struct {
	funcs map[string]BuiltinFunc
}

// New returns an Evaluator preloaded with the standard built-in function
// table.
func New() *Evaluator {
	e := &Evaluator{funcs: make(map[string]BuiltinFunc)}
	registerBuiltins(e)
	return e
}

// Register adds or replaces the builtin named name (case-sensitive, always
// upper-case by convention).
func (e *Evaluator) Register(name string, fn BuiltinFunc) {
	e.funcs[name] = fn
}

// Eval evaluates node against ctx, returning an error Value rather than a Go
// error: every formula failure is representable as a cell value.
func (e *Evaluator) Eval(node ast.Node, ctx Context) grid.Value {
	switch n := node.(type) {
	case *ast.NumberLit:
		return grid.Num(n.Value)
	case *ast.StringLit:
		return grid.Str(n.Value)
	case *ast.BoolLit:
		return grid.Bool(n.Value)
	case *ast.CellRef:
		return e.evalCellRef(n, ctx)
	case *ast.RangeRef:
		// A range used directly (not as a call argument) has no scalar
		// meaning.
		return errValue("#VALUE!", "range reference used outside a function call")
	case *ast.UnaryExpr:
		return e.evalUnary(n, ctx)
	case *ast.BinaryExpr:
		return e.evalBinary(n, ctx)
	case *ast.Call:
		return e.evalCall(n, ctx)
	default:
		return errValue("#ERROR!", "unrecognized expression")
	}
}

func (e *Evaluator) evalCellRef(n *ast.CellRef, ctx Context) grid.Value {
	if n.HasSheet {
		return ctx.SheetCell(n.Sheet, n.Addr)
	}
	return ctx.Cell(n.Addr)
}

func (e *Evaluator) evalUnary(n *ast.UnaryExpr, ctx Context) grid.Value {
	x := e.Eval(n.X, ctx)
	if x.IsError() {
		return x
	}
	v := coerceLoose(x)
	if n.Op == "-" {
		v = -v
	}
	return grid.Num(v)
}

func (e *Evaluator) evalBinary(n *ast.BinaryExpr, ctx Context) grid.Value {
	x := e.Eval(n.X, ctx)
	if x.IsError() {
		return x
	}
	y := e.Eval(n.Y, ctx)
	if y.IsError() {
		return y
	}

	switch n.Op {
	case "+":
		return grid.Num(coerceLoose(x) + coerceLoose(y))
	case "-":
		return grid.Num(coerceLoose(x) - coerceLoose(y))
	case "*":
		return grid.Num(coerceLoose(x) * coerceLoose(y))
	case "/":
		d := coerceLoose(y)
		if d == 0 {
			return grid.Err("#DIV/0!")
		}
		return grid.Num(coerceLoose(x) / d)
	case "^":
		return grid.Num(math.Pow(coerceLoose(x), coerceLoose(y)))
	case "&":
		return grid.Str(toText(x) + toText(y))
	case "=":
		return grid.Bool(compareEqual(x, y))
	case "<>":
		return grid.Bool(!compareEqual(x, y))
	case "<", ">", "<=", ">=":
		return compareOrdered(n.Op, x, y)
	default:
		return errValue("#ERROR!", "unknown operator "+n.Op)
	}
}

// compareEqual implements loose equality: numeric operands (after strict
// coercion) compare by value, otherwise operands compare raw.
func compareEqual(x, y grid.Value) bool {
	if xn, xok := coerceStrict(x); xok {
		if yn, yok := coerceStrict(y); yok {
			return xn == yn
		}
	}
	return rawEqual(x, y)
}

// compareOrdered implements the four ordering operators: mixed-type operands
// are always resolved through use-site numeric coercion first, unlike '='
// and '<>' which fall back to raw equality when coercion isn't clean.
func compareOrdered(op string, x, y grid.Value) grid.Value {
	xn, yn := coerceLoose(x), coerceLoose(y)
	return boolFromOrdering(op, xn < yn, xn > yn)
}

func boolFromOrdering(op string, less, greater bool) grid.Value {
	switch op {
	case "<":
		return grid.Bool(less)
	case ">":
		return grid.Bool(greater)
	case "<=":
		return grid.Bool(less || !greater)
	case ">=":
		return grid.Bool(greater || !less)
	default:
		return grid.Err("#ERROR!")
	}
}

func (e *Evaluator) evalCall(n *ast.Call, ctx Context) grid.Value {
	fn, ok := e.funcs[n.Name]
	if !ok {
		return errValue("#NAME?", "unknown function "+n.Name)
	}
	return fn(e, ctx, n.Args)
}
