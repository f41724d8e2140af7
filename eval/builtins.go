package eval

import (
	"strings"

	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/ast"
	"github.com/vimeh/gridcore/grid"
)

// registerBuiltins installs the standard function table on e.
func registerBuiltins(e *Evaluator) {
	e.Register("SUM", biSum)
	e.Register("AVERAGE", biAverage)
	e.Register("COUNT", biCount)
	e.Register("MAX", biMax)
	e.Register("MIN", biMin)
	e.Register("IF", biIf)
	e.Register("AND", biAnd)
	e.Register("OR", biOr)
	e.Register("NOT", biNot)
	e.Register("CONCATENATE", biConcatenate)
	e.Register("UPPER", biUpper)
	e.Register("LOWER", biLower)
	e.Register("LEN", biLen)
}

// argGroup is one resolved call argument: either the occupied cells of a
// range reference, or a single evaluated scalar.
type argGroup struct {
	values    []grid.Value
	fromRange bool
}

// resolveArgs evaluates every argument node, expanding RangeRef arguments
// into their occupied cells (so aggregator functions can tell "came from a
// range" apart from "came from a scalar expression"). Evaluation stops and
// returns the first error encountered, left-to-right.
func resolveArgs(e *Evaluator, ctx Context, args []ast.Node) ([]argGroup, grid.Value) {
	groups := make([]argGroup, 0, len(args))
	for _, a := range args {
		if rr, ok := a.(*ast.RangeRef); ok {
			vals := rangeValues(ctx, rr)
			groups = append(groups, argGroup{values: vals, fromRange: true})
			continue
		}
		v := e.Eval(a, ctx)
		if v.IsError() {
			return nil, v
		}
		groups = append(groups, argGroup{values: []grid.Value{v}})
	}
	return groups, grid.Empty
}

func rangeValues(ctx Context, rr *ast.RangeRef) []grid.Value {
	r := address.NormalizeRange(rr.Start.Addr, rr.End.Addr)
	if rr.Start.HasSheet {
		return ctx.SheetRange(rr.Start.Sheet, r)
	}
	return ctx.Range(r)
}

// numericOperands flattens groups into the float64 operands that SUM,
// AVERAGE, MAX and MIN accumulate over: cells from a range contribute only
// when they hold a number or numeric text, while a scalar argument always
// contributes via loose coercion.
func numericOperands(groups []argGroup) []float64 {
	var out []float64
	for _, g := range groups {
		for _, v := range g.values {
			if g.fromRange {
				if n, ok := isNumericCell(v); ok {
					out = append(out, n)
				}
				continue
			}
			out = append(out, coerceLoose(v))
		}
	}
	return out
}

func biSum(e *Evaluator, ctx Context, args []ast.Node) grid.Value {
	groups, errv := resolveArgs(e, ctx, args)
	if errv.IsError() {
		return errv
	}
	total := 0.0
	for _, n := range numericOperands(groups) {
		total += n
	}
	return grid.Num(total)
}

func biAverage(e *Evaluator, ctx Context, args []ast.Node) grid.Value {
	groups, errv := resolveArgs(e, ctx, args)
	if errv.IsError() {
		return errv
	}
	operands := numericOperands(groups)
	if len(operands) == 0 {
		return grid.Err("#DIV/0!")
	}
	total := 0.0
	for _, n := range operands {
		total += n
	}
	return grid.Num(total / float64(len(operands)))
}

func biMax(e *Evaluator, ctx Context, args []ast.Node) grid.Value {
	groups, errv := resolveArgs(e, ctx, args)
	if errv.IsError() {
		return errv
	}
	operands := numericOperands(groups)
	if len(operands) == 0 {
		return grid.Num(0)
	}
	m := operands[0]
	for _, n := range operands[1:] {
		if n > m {
			m = n
		}
	}
	return grid.Num(m)
}

func biMin(e *Evaluator, ctx Context, args []ast.Node) grid.Value {
	groups, errv := resolveArgs(e, ctx, args)
	if errv.IsError() {
		return errv
	}
	operands := numericOperands(groups)
	if len(operands) == 0 {
		return grid.Num(0)
	}
	m := operands[0]
	for _, n := range operands[1:] {
		if n < m {
			m = n
		}
	}
	return grid.Num(m)
}

// biCount counts numeric entries under one rule for every argument: a value
// counts if it is a number or text that parses cleanly as a numeral,
// whether it came from a range or was written as a scalar argument.
func biCount(e *Evaluator, ctx Context, args []ast.Node) grid.Value {
	groups, errv := resolveArgs(e, ctx, args)
	if errv.IsError() {
		return errv
	}
	count := 0
	for _, g := range groups {
		for _, v := range g.values {
			if _, ok := isNumericCell(v); ok {
				count++
			}
		}
	}
	return grid.Num(float64(count))
}

func biIf(e *Evaluator, ctx Context, args []ast.Node) grid.Value {
	if len(args) < 2 || len(args) > 3 {
		return errValue("#N/A!", "IF requires 2 or 3 arguments")
	}
	cond := e.Eval(args[0], ctx)
	if cond.IsError() {
		return cond
	}
	if toBool(cond) {
		return e.Eval(args[1], ctx)
	}
	if len(args) == 3 {
		return e.Eval(args[2], ctx)
	}
	return grid.Bool(false)
}

func biAnd(e *Evaluator, ctx Context, args []ast.Node) grid.Value {
	if len(args) == 0 {
		return errValue("#N/A!", "AND requires at least 1 argument")
	}
	result := true
	for _, a := range args {
		v := e.Eval(a, ctx)
		if v.IsError() {
			return v
		}
		result = result && toBool(v)
	}
	return grid.Bool(result)
}

func biOr(e *Evaluator, ctx Context, args []ast.Node) grid.Value {
	if len(args) == 0 {
		return errValue("#N/A!", "OR requires at least 1 argument")
	}
	result := false
	for _, a := range args {
		v := e.Eval(a, ctx)
		if v.IsError() {
			return v
		}
		result = result || toBool(v)
	}
	return grid.Bool(result)
}

func biNot(e *Evaluator, ctx Context, args []ast.Node) grid.Value {
	if len(args) != 1 {
		return errValue("#N/A!", "NOT requires exactly 1 argument")
	}
	v := e.Eval(args[0], ctx)
	if v.IsError() {
		return v
	}
	return grid.Bool(!toBool(v))
}

func biConcatenate(e *Evaluator, ctx Context, args []ast.Node) grid.Value {
	groups, errv := resolveArgs(e, ctx, args)
	if errv.IsError() {
		return errv
	}
	var b strings.Builder
	for _, g := range groups {
		for _, v := range g.values {
			b.WriteString(toText(v))
		}
	}
	return grid.Str(b.String())
}

func biUpper(e *Evaluator, ctx Context, args []ast.Node) grid.Value {
	if len(args) != 1 {
		return errValue("#N/A!", "UPPER requires exactly 1 argument")
	}
	v := e.Eval(args[0], ctx)
	if v.IsError() {
		return v
	}
	return grid.Str(strings.ToUpper(toText(v)))
}

func biLower(e *Evaluator, ctx Context, args []ast.Node) grid.Value {
	if len(args) != 1 {
		return errValue("#N/A!", "LOWER requires exactly 1 argument")
	}
	v := e.Eval(args[0], ctx)
	if v.IsError() {
		return v
	}
	return grid.Str(strings.ToLower(toText(v)))
}

func biLen(e *Evaluator, ctx Context, args []ast.Node) grid.Value {
	if len(args) != 1 {
		return errValue("#N/A!", "LEN requires exactly 1 argument")
	}
	v := e.Eval(args[0], ctx)
	if v.IsError() {
		return v
	}
	return grid.Num(float64(len(toText(v))))
}
