package engine

import (
	"sort"

	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/eval"
	"github.com/vimeh/gridcore/grid"
	"github.com/vimeh/gridcore/parser"
)

// CellState is the serializable form of one occupied cell.
type CellState struct {
	Addr     address.Addr
	Raw      string
	Formula  string
	Computed ValueSnapshot
	Error    string
	Style    map[string]any
}

// State is a complete, self-contained snapshot of an engine's data: enough
// to rebuild an equivalent engine via FromState. Dependencies are carried
// as structural addresses, per the engine's own key convention; a host
// that needs label-keyed interchange converts at the boundary.
type State struct {
	Rows, Cols   int
	Cells        []CellState
	Dependencies map[address.Addr][]address.Addr // reader -> read_cells
}

// ToState captures a deep, engine-independent snapshot of the current data.
func (e *Engine) ToState() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, cols := e.grid.Dimensions()
	addrs := e.grid.NonEmptyCells()
	cells := make([]CellState, 0, len(addrs))
	deps := make(map[address.Addr][]address.Addr, len(addrs))

	for _, a := range addrs {
		rec, _ := e.grid.Get(a)
		cells = append(cells, CellState{
			Addr:     a,
			Raw:      rec.Raw,
			Formula:  rec.Formula,
			Computed: snapshotValue(rec.Computed),
			Error:    rec.Error,
			Style:    cloneStyle(rec.Style),
		})
		if rec.Formula != "" {
			if node, err := parser.Parse(rec.Formula); err == nil {
				ds := localDeps(node)
				sort.Slice(ds, func(i, j int) bool {
					if ds[i].Row != ds[j].Row {
						return ds[i].Row < ds[j].Row
					}
					return ds[i].Col < ds[j].Col
				})
				deps[a] = ds
			}
		}
	}

	return State{Rows: rows, Cols: cols, Cells: cells, Dependencies: deps}
}

func cloneStyle(style map[string]any) map[string]any {
	if style == nil {
		return nil
	}
	out := make(map[string]any, len(style))
	for k, v := range style {
		out[k] = v
	}
	return out
}

// FromState rebuilds the grid and dependency graph from s, then
// re-evaluates every formula cell so Computed reflects the current
// evaluator. It is a package-level function that returns a fresh Engine,
// matching the engine/workbook convention of rebuilding rather than
// mutating in place.
func FromState(s State) *Engine {
	e := New(s.Rows, s.Cols)
	for _, cs := range s.Cells {
		rec, _ := e.grid.Set(cs.Addr, cs.Raw, cs.Formula)
		rec.Style = cloneStyle(cs.Style)
	}
	for reader, reads := range s.Dependencies {
		for _, d := range reads {
			e.graph.AddEdge(reader, d)
		}
	}
	e.reevaluateAll()
	return e
}

// reevaluateAll re-runs every formula cell's evaluation in dependency
// order, leaving literal cells untouched. Caller must not hold e.mu.
func (e *Engine) reevaluateAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	addrs := e.grid.NonEmptyCells()
	ordered, cerr := e.graph.Order(addrs)
	if cerr != nil {
		e.markCircular(cerr)
		ordered, _ = e.graph.Order(addrs)
	}
	for _, a := range ordered {
		rec, ok := e.grid.Get(a)
		if !ok || rec.Formula == "" {
			continue
		}
		node, err := parser.Parse(rec.Formula)
		if err != nil {
			rec.Error = err.Error()
			rec.Computed = grid.Err("#VALUE!")
			continue
		}
		v := e.evalAt(a, node)
		rec.Computed = eval.BareError(v)
		if v.IsError() {
			rec.Error = v.Err
		} else {
			rec.Error = ""
		}
	}
}
