// Package pivot implements the pivot projector: a read-only consumer of a
// declared source range that aggregates by row/column grouping fields and
// writes the result back into a grid through an engine's batch path.
package pivot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/engine"
	"github.com/vimeh/gridcore/grid"
)

// Aggregator names the supported value-field aggregation functions.
type Aggregator string

const (
	Sum     Aggregator = "SUM"
	Average Aggregator = "AVERAGE"
	Count   Aggregator = "COUNT"
	CountA  Aggregator = "COUNTA"
	Min     Aggregator = "MIN"
	Max     Aggregator = "MAX"
	Product Aggregator = "PRODUCT"
)

// ValueField names a source column to aggregate, the aggregator to apply,
// and an optional display alias (defaults to "<aggregator>(<field>)").
type ValueField struct {
	Field      string
	Aggregator Aggregator
	Alias      string
}

func (f ValueField) label() string {
	if f.Alias != "" {
		return f.Alias
	}
	return fmt.Sprintf("%s(%s)", f.Aggregator, f.Field)
}

// Filter restricts data rows by one field's text value: an include-set
// requires membership, an exclude-set rejects membership.
type Filter struct {
	Field   string
	Include bool
	Values  []string
}

func (f Filter) matches(v string) bool {
	in := false
	for _, c := range f.Values {
		if c == v {
			in = true
			break
		}
	}
	if f.Include {
		return in
	}
	return !in
}

// Config declares a pivot table over a source range.
type Config struct {
	Source           address.Range
	RowFields        []string
	ColumnFields     []string
	ValueFields      []ValueField
	Filters          []Filter
	ShowRowTotals    bool
	ShowColumnTotals bool
	ShowGrandTotals  bool
}

// ParseSourceLabel is a convenience for callers holding the source range in
// its "A1:D20" label form.
func ParseSourceLabel(label string) (address.Range, error) {
	return address.ParseRange(label)
}

// lastOutput remembers what a prior Refresh wrote, so the next one can
// clear cells that are no longer part of the output.
type lastOutput struct {
	topLeft address.Addr
	cells   map[address.Addr]bool
}

// Projector holds a pivot configuration and the memory of its last output.
type Projector struct {
	Config Config
	last   *lastOutput
}

// New returns a projector for the given configuration.
func New(cfg Config) *Projector {
	return &Projector{Config: cfg}
}

// group accumulates, for one (rowKey, columnKey) pair, the raw values of
// each configured value field across every data row that landed in it.
type group struct {
	rowParts []string
	colParts []string
	values   [][]grid.Value // indexed by ValueField position
}

// Refresh recomputes the pivot from source (reading its current computed
// values) and writes the result into target beginning at topLeft, via
// target's batch path. Any cell written by the previous Refresh that falls
// outside the new output is cleared first.
func (p *Projector) Refresh(source *engine.Engine, target *engine.Engine, topLeft address.Addr) error {
	rows := readMatrix(source, p.Config.Source)
	if len(rows) == 0 {
		return p.apply(target, topLeft, nil, 0, 0)
	}

	header := rows[0]
	fieldCol := make(map[string]int, len(header))
	for i, v := range header {
		fieldCol[pivotText(v)] = i
	}

	groups, rowOrder, colOrder := p.bucket(rows[1:], fieldCol)

	batch, width, height := p.layout(groups, rowOrder, colOrder)
	return p.apply(target, topLeft, batch, width, height)
}

// readMatrix reads r's cells from source row-major, one slice per row.
func readMatrix(source *engine.Engine, r address.Range) [][]grid.Value {
	rowsN := r.End.Row - r.Start.Row + 1
	colsN := r.End.Col - r.Start.Col + 1
	if rowsN <= 0 || colsN <= 0 {
		return nil
	}
	out := make([][]grid.Value, rowsN)
	for i := 0; i < rowsN; i++ {
		row := make([]grid.Value, colsN)
		for j := 0; j < colsN; j++ {
			addr := address.Addr{Row: r.Start.Row + i, Col: r.Start.Col + j}
			if rec, ok := source.Get(addr); ok {
				row[j] = rec.Computed
			} else {
				row[j] = grid.Empty
			}
		}
		out[i] = row
	}
	return out
}

// bucket applies filters and groups data rows by (rowKey, columnKey),
// returning the group index plus the row-key and column-key orderings in
// first-seen order (the deterministic tie-break the spec requires).
func (p *Projector) bucket(dataRows [][]grid.Value, fieldCol map[string]int) (map[string]*group, []string, []string) {
	groups := make(map[string]*group)
	var rowOrder, colOrder []string
	seenRow := make(map[string]bool)
	seenCol := make(map[string]bool)

	for _, row := range dataRows {
		if p.rejected(row, fieldCol) {
			continue
		}
		rowParts := fieldParts(row, fieldCol, p.Config.RowFields)
		colParts := fieldParts(row, fieldCol, p.Config.ColumnFields)
		rowKey := strings.Join(rowParts, "|")
		colKey := strings.Join(colParts, "|")

		if !seenRow[rowKey] {
			seenRow[rowKey] = true
			rowOrder = append(rowOrder, rowKey)
		}
		if !seenCol[colKey] {
			seenCol[colKey] = true
			colOrder = append(colOrder, colKey)
		}

		key := rowKey + "\x00" + colKey
		g, ok := groups[key]
		if !ok {
			g = &group{rowParts: rowParts, colParts: colParts, values: make([][]grid.Value, len(p.Config.ValueFields))}
			groups[key] = g
		}
		for i, vf := range p.Config.ValueFields {
			idx, ok := fieldCol[vf.Field]
			if !ok {
				continue
			}
			g.values[i] = append(g.values[i], row[idx])
		}
	}
	return groups, rowOrder, colOrder
}

func (p *Projector) rejected(row []grid.Value, fieldCol map[string]int) bool {
	for _, f := range p.Config.Filters {
		idx, ok := fieldCol[f.Field]
		if !ok {
			continue
		}
		if !f.matches(pivotText(row[idx])) {
			return true
		}
	}
	return false
}

func fieldParts(row []grid.Value, fieldCol map[string]int, fields []string) []string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		if idx, ok := fieldCol[f]; ok {
			parts[i] = pivotText(row[idx])
		}
	}
	return parts
}

// cellWrite is one (address, value) pair destined for the target grid.
type cellWrite struct {
	addr  address.Addr
	value grid.Value
}

// layout lays the aggregated groups out into a grid of cellWrites relative
// to (0,0), returning the writes plus the overall width/height.
func (p *Projector) layout(groups map[string]*group, rowOrder, colOrder []string) ([]cellWrite, int, int) {
	sort.Strings(rowOrder)
	sort.Strings(colOrder)

	R := len(p.Config.RowFields)
	V := len(p.Config.ValueFields)
	hasCols := len(p.Config.ColumnFields) > 0
	if !hasCols {
		colOrder = []string{""}
	}
	C := len(colOrder)

	headerRows := 1
	if hasCols {
		headerRows = 2
	}

	totalColBlocks := C
	if p.Config.ShowRowTotals {
		totalColBlocks++
	}
	totalRowBlocks := len(rowOrder)
	if p.Config.ShowColumnTotals {
		totalRowBlocks++
	}

	var writes []cellWrite

	// Header: column-key row (only with column fields).
	if hasCols {
		for ci, ck := range colOrder {
			writes = append(writes, cellWrite{address.Addr{Row: 0, Col: R + ci*V}, grid.Str(ck)})
		}
		if p.Config.ShowRowTotals {
			writes = append(writes, cellWrite{address.Addr{Row: 0, Col: R + C*V}, grid.Str("Total")})
		}
	}
	// Header: value-field label row.
	labelRow := headerRows - 1
	for ci := 0; ci < totalColBlocks; ci++ {
		for vi, vf := range p.Config.ValueFields {
			writes = append(writes, cellWrite{address.Addr{Row: labelRow, Col: R + ci*V + vi}, grid.Str(vf.label())})
		}
	}

	// fetchGroup returns the group for (rowKey, colKey), or nil.
	fetchGroup := func(rowKey, colKey string) *group {
		if !hasCols {
			colKey = ""
		}
		g, _ := groups[rowKey+"\x00"+colKey]
		return g
	}

	streamFor := func(predicate func(rk, ck string) bool, vi int) []grid.Value {
		var out []grid.Value
		for key, g := range groups {
			parts := strings.SplitN(key, "\x00", 2)
			rk, ck := parts[0], parts[1]
			if predicate(rk, ck) {
				out = append(out, g.values[vi]...)
			}
		}
		return out
	}

	// Data rows.
	for ri, rowKey := range rowOrder {
		row := headerRows + ri
		// Row-key columns: only the single-field case maps cleanly onto
		// R columns one-to-one; general case splits the joined key back.
		parts := strings.Split(rowKey, "|")
		for c := 0; c < R && c < len(parts); c++ {
			writes = append(writes, cellWrite{address.Addr{Row: row, Col: c}, grid.Str(parts[c])})
		}
		for ci, colKey := range colOrder {
			g := fetchGroup(rowKey, colKey)
			for vi, vf := range p.Config.ValueFields {
				var values []grid.Value
				if g != nil {
					values = g.values[vi]
				}
				writes = append(writes, cellWrite{address.Addr{Row: row, Col: R + ci*V + vi}, grid.Num(aggregate(vf, values))})
			}
		}
		if p.Config.ShowRowTotals {
			for vi, vf := range p.Config.ValueFields {
				values := streamFor(func(rk, ck string) bool { return rk == rowKey }, vi)
				writes = append(writes, cellWrite{address.Addr{Row: row, Col: R + C*V + vi}, grid.Num(aggregate(vf, values))})
			}
		}
	}

	// Column totals row.
	if p.Config.ShowColumnTotals {
		row := headerRows + len(rowOrder)
		writes = append(writes, cellWrite{address.Addr{Row: row, Col: 0}, grid.Str("Total")})
		for ci, colKey := range colOrder {
			for vi, vf := range p.Config.ValueFields {
				values := streamFor(func(rk, ck string) bool { return ck == colKey }, vi)
				writes = append(writes, cellWrite{address.Addr{Row: row, Col: R + ci*V + vi}, grid.Num(aggregate(vf, values))})
			}
		}
		if p.Config.ShowGrandTotals {
			for vi, vf := range p.Config.ValueFields {
				values := streamFor(func(rk, ck string) bool { return true }, vi)
				writes = append(writes, cellWrite{address.Addr{Row: row, Col: R + C*V + vi}, grid.Num(aggregate(vf, values))})
			}
		}
	}

	width := R + totalColBlocks*V
	height := headerRows + totalRowBlocks
	return writes, width, height
}

// apply diffs writes against the previous output, clears cells that fell
// out of the new output, then applies writes via target's batch path.
func (p *Projector) apply(target *engine.Engine, topLeft address.Addr, writes []cellWrite, width, height int) error {
	newCells := make(map[address.Addr]bool, len(writes))
	batch := make([]engine.CellUpdate, 0, len(writes))
	for _, w := range writes {
		addr := address.Addr{Row: topLeft.Row + w.addr.Row, Col: topLeft.Col + w.addr.Col}
		newCells[addr] = true
		batch = append(batch, engine.CellUpdate{Addr: addr, Raw: pivotText(w.value)})
	}

	if p.last != nil {
		for addr := range p.last.cells {
			if !newCells[addr] {
				_ = target.Clear(addr)
			}
		}
	}

	if len(batch) > 0 {
		if err := target.SetCells(batch); err != nil {
			return err
		}
	}

	p.last = &lastOutput{topLeft: topLeft, cells: newCells}
	return nil
}
