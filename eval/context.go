// Package eval interprets a formula AST against a Context supplied by the
// engine, using a registrable table of built-in functions.
package eval

import (
	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/grid"
)

// Context is supplied by the engine (never stored on the Evaluator) and
// gives a formula access to the rest of the workbook.
type Context interface {
	// Cell returns the value at addr on the current sheet, or the empty
	// value if addr is unoccupied.
	Cell(addr address.Addr) grid.Value
	// Range returns the values of the occupied cells in r, on the current
	// sheet, in row-major order.
	Range(r address.Range) []grid.Value
	// SheetCell resolves a sheet-qualified single-cell reference. An
	// unknown sheet name yields a #REF! error.
	SheetCell(sheet string, addr address.Addr) grid.Value
	// SheetRange resolves a sheet-qualified range reference.
	SheetRange(sheet string, r address.Range) []grid.Value
	// CurrentAddr is the address of the cell currently being evaluated,
	// used by the engine for cross-sheet dependency tracking.
	CurrentAddr() address.Addr
}
