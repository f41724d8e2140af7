// Package ast defines the formula abstract syntax tree produced by the
// parser and walked by the evaluator.
package ast

import "github.com/vimeh/gridcore/address"

// Node is the common interface satisfied by every AST variant.
type Node interface {
	node()
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
}

// StringLit is a string literal; the lexer has already unescaped it.
type StringLit struct {
	Value string
}

// BoolLit is a TRUE/FALSE literal.
type BoolLit struct {
	Value bool
}

// CellRef is a reference to a single cell, carrying per-axis absoluteness
// as recorded in the source formula (not a property of the address itself).
type CellRef struct {
	Addr      address.Addr
	AbsRow    bool
	AbsCol    bool
	Sheet     string // empty unless sheet-qualified
	HasSheet  bool
}

// RangeRef is a reference to a rectangular range, expressed as its two
// corner cell references. Only admissible as a direct function-call
// argument; elsewhere it is a runtime error.
type RangeRef struct {
	Start CellRef
	End   CellRef
}

// UnaryExpr is a prefix +/- applied to an operand.
type UnaryExpr struct {
	Op string
	X  Node
}

// BinaryExpr is an infix operator applied to two operands.
type BinaryExpr struct {
	Op   string
	X, Y Node
}

// Call is a function invocation with an argument list. Arguments are kept
// unevaluated so aggregating builtins can walk ranges without
// materializing intermediate scalars.
type Call struct {
	Name string
	Args []Node
}

func (*NumberLit) node()  {}
func (*StringLit) node()  {}
func (*BoolLit) node()    {}
func (*CellRef) node()    {}
func (*RangeRef) node()   {}
func (*UnaryExpr) node()  {}
func (*BinaryExpr) node() {}
func (*Call) node()       {}
