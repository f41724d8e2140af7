package engine

import (
	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/grid"
)

// The eval.Context methods below are only ever invoked from evalAt, which
// runs while the engine already holds e.mu; they must not take the lock
// themselves or they would deadlock against the caller.

// Cell returns the value at addr, or the empty value if unoccupied.
func (e *Engine) Cell(addr address.Addr) grid.Value {
	rec, ok := e.grid.Get(addr)
	if !ok {
		return grid.Empty
	}
	return rec.Computed
}

// Range returns the values of the occupied cells in r, row-major.
func (e *Engine) Range(r address.Range) []grid.Value {
	var out []grid.Value
	for _, a := range r.Cells() {
		if rec, ok := e.grid.Get(a); ok {
			out = append(out, rec.Computed)
		}
	}
	return out
}

// SheetCell resolves a sheet-qualified single-cell reference via the
// engine's SheetResolver, recording the cross-sheet edge through its hook.
func (e *Engine) SheetCell(sheet string, addr address.Addr) grid.Value {
	if e.crossSheet != nil {
		e.crossSheet(e.currentAddr, sheet, addr, false, address.Addr{})
	}
	if e.sheetLookup == nil {
		return grid.Err("#REF!")
	}
	reader, ok := e.sheetLookup(sheet)
	if !ok {
		return grid.Err("#REF!")
	}
	rec, ok := reader.Get(addr)
	if !ok {
		return grid.Empty
	}
	return rec.Computed
}

// SheetRange resolves a sheet-qualified range reference.
func (e *Engine) SheetRange(sheet string, r address.Range) []grid.Value {
	if e.crossSheet != nil {
		e.crossSheet(e.currentAddr, sheet, r.Start, true, r.End)
	}
	if e.sheetLookup == nil {
		return nil
	}
	reader, ok := e.sheetLookup(sheet)
	if !ok {
		return nil
	}
	return reader.ComputedRange(r)
}

// CurrentAddr is the address of the cell presently being evaluated.
func (e *Engine) CurrentAddr() address.Addr {
	return e.currentAddr
}
