package engine

import (
	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/ast"
)

// localDeps walks node and returns every intra-sheet single-cell dependency
// it references, expanding ranges into their contained addresses.
// Sheet-qualified references are excluded: those are tracked by the
// workbook's cross-sheet side-table, not this sheet's dependency graph.
func localDeps(node ast.Node) []address.Addr {
	var out []address.Addr
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		switch v := n.(type) {
		case *ast.CellRef:
			if !v.HasSheet {
				out = append(out, v.Addr)
			}
		case *ast.RangeRef:
			if !v.Start.HasSheet {
				r := address.NormalizeRange(v.Start.Addr, v.End.Addr)
				out = append(out, r.Cells()...)
			}
		case *ast.UnaryExpr:
			walk(v.X)
		case *ast.BinaryExpr:
			walk(v.X)
			walk(v.Y)
		case *ast.Call:
			for _, a := range v.Args {
				walk(a)
			}
		}
	}
	walk(node)
	return out
}

// sheetRefs walks node and returns every sheet-qualified cell or range
// reference it contains, for the workbook to register as cross-sheet edges.
func sheetRefs(node ast.Node) []*ast.CellRef {
	var out []*ast.CellRef
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		switch v := n.(type) {
		case *ast.CellRef:
			if v.HasSheet {
				out = append(out, v)
			}
		case *ast.RangeRef:
			if v.Start.HasSheet {
				start, end := v.Start, v.End
				out = append(out, &start, &end)
			}
		case *ast.UnaryExpr:
			walk(v.X)
		case *ast.BinaryExpr:
			walk(v.X)
			walk(v.Y)
		case *ast.Call:
			for _, a := range v.Args {
				walk(a)
			}
		}
	}
	walk(node)
	return out
}
