// Package engine implements the spreadsheet engine: the grid, its
// dependency graph, and the formula evaluator are wired together here into
// a single coordinator that applies mutations, propagates recalculation,
// and dispatches change events.
package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/ast"
	"github.com/vimeh/gridcore/depgraph"
	"github.com/vimeh/gridcore/eval"
	"github.com/vimeh/gridcore/grid"
	"github.com/vimeh/gridcore/parser"
)

// CrossSheetHook is invoked whenever the evaluator resolves a sheet-
// qualified reference while evaluating fromAddr, letting an owning
// workbook record the cross-sheet edge in its side-table. The engine
// itself carries no notion of sheets beyond this optional hook.
type CrossSheetHook func(fromAddr address.Addr, sheetName string, targetAddr address.Addr, isRange bool, rangeEnd address.Addr)

// SheetResolver resolves a sheet name to the values needed to answer a
// cross-sheet reference. It is supplied by the owning workbook; a bare
// Engine with no resolver treats every sheet-qualified reference as
// unresolvable.
type SheetResolver func(sheetName string) (Reader, bool)

// Reader is the read surface a foreign sheet's engine exposes to a
// cross-sheet reference.
type Reader interface {
	Get(addr address.Addr) (*grid.Record, bool)
	ComputedRange(r address.Range) []grid.Value
}

// Engine coordinates a grid, its dependency graph, and the evaluator. It is
// single-threaded and cooperative: every public method runs to quiescence
// before returning, as described by the package's concurrency model.
type Engine struct {
	mu sync.Mutex

	grid  *grid.Grid
	graph *depgraph.Graph
	eval  *eval.Evaluator

	listeners    map[ListenerHandle]Listener
	nextListener ListenerHandle

	reentrant    bool
	pendingSeeds []address.Addr

	currentAddr address.Addr

	sheetName   string
	sheetLookup SheetResolver
	crossSheet  CrossSheetHook

	history HistoryManager
}

// New returns an Engine governing a grid of the given dimensions.
func New(rows, cols int) *Engine {
	return &Engine{
		grid:      grid.New(rows, cols),
		graph:     depgraph.New(),
		eval:      eval.New(),
		listeners: make(map[ListenerHandle]Listener),
	}
}

// SetSheetContext wires the engine into a workbook: name is this engine's
// owning sheet name (used in cross-sheet error messages and lookups),
// resolver answers sheet-qualified reads, and hook records cross-sheet
// dependency edges as they're discovered during evaluation.
func (e *Engine) SetSheetContext(name string, resolver SheetResolver, hook CrossSheetHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sheetName = name
	e.sheetLookup = resolver
	e.crossSheet = hook
}

// Dimensions returns the grid's row and column bounds.
func (e *Engine) Dimensions() (rows, cols int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.Dimensions()
}

// Get returns the record at addr, or false if addr is unoccupied.
func (e *Engine) Get(addr address.Addr) (*grid.Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.Get(addr)
}

// ComputedRange returns the Computed value of every occupied cell in r, in
// row-major order, satisfying the Reader interface for cross-sheet reads.
func (e *Engine) ComputedRange(r address.Range) []grid.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []grid.Value
	for _, a := range r.Cells() {
		if rec, ok := e.grid.Get(a); ok {
			out = append(out, rec.Computed)
		}
	}
	return out
}

// NonEmptyCells returns every occupied address in row-major order.
func (e *Engine) NonEmptyCells() []address.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.NonEmptyCells()
}

// UsedRange returns the bounding range of all occupied cells.
func (e *Engine) UsedRange() (address.Range, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.UsedRange()
}

// CellCount returns the number of occupied cells.
func (e *Engine) CellCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.Count()
}

// AddListener registers fn and returns a handle for later removal.
// Listeners are invoked synchronously, in registration order.
func (e *Engine) AddListener(fn Listener) ListenerHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.nextListener
	e.nextListener++
	e.listeners[h] = fn
	return h
}

// RemoveListener unregisters the listener identified by h.
func (e *Engine) RemoveListener(h ListenerHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.listeners, h)
}

// UpdateStyle shallow-merges patch onto addr's style. It never touches
// Computed or Error, never propagates, and takes no undo snapshot; it still
// emits a cell-change event.
func (e *Engine) UpdateStyle(addr address.Addr, patch map[string]any) error {
	e.mu.Lock()
	if !address.InBounds(addr) {
		e.mu.Unlock()
		return &address.OutOfBoundsError{Row: addr.Row, Col: addr.Col}
	}
	old, _ := e.grid.Get(addr)
	oldSnap := snapshotRecord(old)
	e.grid.UpdateStyle(addr, patch)
	newRec, _ := e.grid.Get(addr)
	newSnap := snapshotRecord(newRec)
	e.mu.Unlock()

	e.dispatch(Event{Kind: CellChange, Changes: []Change{{Addr: addr, Old: oldSnap, New: newSnap}}})
	return nil
}

// Set implements the single-cell set protocol: clear old edges, write the
// record, parse and wire the formula (or detect a cycle), propagate, and
// emit a cell-change event. A parse failure or a would-be cycle still
// writes the error to the cell and still propagates and emits: cells that
// depend on addr must see its new (faulted) value too.
func (e *Engine) Set(addr address.Addr, raw string, formula string) error {
	e.mu.Lock()
	if !address.InBounds(addr) {
		e.mu.Unlock()
		return &address.OutOfBoundsError{Row: addr.Row, Col: addr.Col}
	}

	oldRec, _ := e.grid.Get(addr)
	oldSnap := snapshotRecord(oldRec)

	e.graph.ClearFor(addr)
	rec, _ := e.grid.Set(addr, raw, formula)

	e.applyFormula(addr, rec, formula)

	newSnap := snapshotRecord(rec)
	e.mu.Unlock()

	e.propagate(addr)

	e.dispatch(Event{Kind: CellChange, Changes: []Change{{Addr: addr, Old: oldSnap, New: newSnap}}})
	e.RecordSnapshot("Set " + addr.String())
	return nil
}

// SetByLabel parses label as an A1-style address and delegates to Set.
func (e *Engine) SetByLabel(label, raw, formula string) error {
	addr, err := address.ParseAddress(label)
	if err != nil {
		return err
	}
	return e.Set(addr, raw, formula)
}

// applyFormula runs step 4 of the single-cell set protocol. Caller holds
// e.mu.
func (e *Engine) applyFormula(addr address.Addr, rec *grid.Record, formula string) {
	if formula == "" {
		return
	}
	node, err := parser.Parse(formula)
	if err != nil {
		rec.Error = err.Error()
		rec.Computed = grid.Err("#VALUE!")
		return
	}

	for _, d := range localDeps(node) {
		if e.graph.WouldCycle(addr, d) {
			rec.Error = "#CIRCULAR!"
			rec.Computed = grid.Err("#CIRCULAR!")
			return
		}
	}
	for _, d := range localDeps(node) {
		e.graph.AddEdge(addr, d)
	}

	v := e.evalAt(addr, node)
	rec.Computed = eval.BareError(v)
	if v.IsError() {
		rec.Error = v.Err
	} else {
		rec.Error = ""
	}
}

// evalAt evaluates node as if it were the formula of addr, with addr as the
// evaluation context's CurrentAddr. Caller holds e.mu.
func (e *Engine) evalAt(addr address.Addr, node ast.Node) grid.Value {
	prev := e.currentAddr
	e.currentAddr = addr
	v := e.eval.Eval(node, e)
	e.currentAddr = prev
	return v
}

// Clear removes addr's record and outgoing edges, then propagates;
// downstream formulas see the now-empty cell as the empty value.
func (e *Engine) Clear(addr address.Addr) error {
	e.mu.Lock()
	if !address.InBounds(addr) {
		e.mu.Unlock()
		return &address.OutOfBoundsError{Row: addr.Row, Col: addr.Col}
	}
	oldRec, _ := e.grid.Get(addr)
	oldSnap := snapshotRecord(oldRec)
	e.graph.ClearFor(addr)
	e.grid.Clear(addr)
	newSnap := snapshotRecord(nil)
	e.mu.Unlock()

	e.propagate(addr)
	e.dispatch(Event{Kind: CellChange, Changes: []Change{{Addr: addr, Old: oldSnap, New: newSnap}}})
	return nil
}

// ClearAll drops the entire grid and graph and emits a single batch-change
// listing every former cell with new = empty.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	cells := e.grid.NonEmptyCells()
	changes := make([]Change, 0, len(cells))
	for _, a := range cells {
		rec, _ := e.grid.Get(a)
		changes = append(changes, Change{Addr: a, Old: snapshotRecord(rec), New: snapshotRecord(nil)})
	}
	e.grid.ClearAll()
	e.graph = depgraph.New()
	e.mu.Unlock()

	e.dispatch(Event{Kind: BatchChange, Changes: changes})
}

// CellUpdate is one entry of a batch set_cells call.
type CellUpdate struct {
	Addr    address.Addr
	Raw     string
	Formula string
}

// SetCells applies a batch of updates in two passes: direct writes first,
// then downstream recomputation of their combined dependents, all reported
// in a single batch-change event.
func (e *Engine) SetCells(batch []CellUpdate) error {
	e.mu.Lock()

	directChanges := make([]Change, 0, len(batch))
	seeds := make([]address.Addr, 0, len(batch))
	for _, u := range batch {
		if !address.InBounds(u.Addr) {
			e.mu.Unlock()
			return &address.OutOfBoundsError{Row: u.Addr.Row, Col: u.Addr.Col}
		}
	}
	for _, u := range batch {
		oldRec, _ := e.grid.Get(u.Addr)
		oldSnap := snapshotRecord(oldRec)

		e.graph.ClearFor(u.Addr)
		rec, _ := e.grid.Set(u.Addr, u.Raw, u.Formula)
		e.applyFormula(u.Addr, rec, u.Formula)

		directChanges = append(directChanges, Change{Addr: u.Addr, Old: oldSnap, New: snapshotRecord(rec)})
		seeds = append(seeds, u.Addr)
	}

	downstream := e.graph.AffectedClosure(seeds)
	directSet := make(map[address.Addr]bool, len(seeds))
	for _, s := range seeds {
		directSet[s] = true
	}
	ordered, cerr := e.graph.Order(downstream)
	if cerr != nil {
		e.markCircular(cerr)
		ordered, _ = e.graph.Order(downstream)
	}

	var recomputed []Change
	for _, a := range ordered {
		rec, ok := e.grid.Get(a)
		if !ok || rec.Formula == "" {
			continue
		}
		if directSet[a] && rec.Error == "#CIRCULAR!" {
			continue
		}
		before := snapshotValue(rec.Computed)
		node, err := parser.Parse(rec.Formula)
		if err != nil {
			continue
		}
		v := e.evalAt(a, node)
		newComputed := eval.BareError(v)
		if !valuesEqual(before, snapshotValue(newComputed)) {
			oldSnap := snapshotRecord(rec)
			rec.Computed = newComputed
			if v.IsError() {
				rec.Error = v.Err
			} else {
				rec.Error = ""
			}
			if directSet[a] {
				for i := range directChanges {
					if directChanges[i].Addr == a {
						directChanges[i].New = snapshotRecord(rec)
					}
				}
				continue
			}
			recomputed = append(recomputed, Change{Addr: a, Old: oldSnap, New: snapshotRecord(rec)})
		}
	}

	all := append(directChanges, recomputed...)
	e.mu.Unlock()

	e.dispatch(Event{Kind: BatchChange, Changes: all})
	e.RecordSnapshot(fmt.Sprintf("Batch update (%d cells)", len(batch)))
	return nil
}

// markCircular writes #CIRCULAR! to every cell participating in a detected
// cycle and removes their outgoing edges so the graph no longer contains
// the offending cycle. Caller holds e.mu.
func (e *Engine) markCircular(cerr *depgraph.CycleError) {
	for _, a := range cerr.Cells {
		e.graph.ClearFor(a)
		if rec, ok := e.grid.Get(a); ok {
			rec.Computed = grid.Err("#CIRCULAR!")
			rec.Error = "#CIRCULAR!"
		}
	}
}

// snapshotRecord copies rec (or the empty record if rec is nil) into an
// event-safe CellSnapshot.
func snapshotRecord(rec *grid.Record) CellSnapshot {
	if rec == nil {
		return CellSnapshot{Present: false, Computed: snapshotValue(grid.Empty)}
	}
	return CellSnapshot{
		Present:  true,
		Raw:      rec.Raw,
		Formula:  rec.Formula,
		Computed: snapshotValue(rec.Computed),
		Error:    rec.Error,
	}
}

func snapshotValue(v grid.Value) ValueSnapshot {
	return ValueSnapshot{Kind: int(v.Kind), Number: v.Number, Text: v.Text, Boolean: v.Boolean, Err: v.Err}
}

func valuesEqual(a, b ValueSnapshot) bool {
	return a == b
}

func (e *Engine) dispatch(evt Event) {
	e.mu.Lock()
	handles := make([]ListenerHandle, 0, len(e.listeners))
	for h := range e.listeners {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	fns := make([]Listener, 0, len(handles))
	for _, h := range handles {
		fns = append(fns, e.listeners[h])
	}
	e.mu.Unlock()

	for _, fn := range fns {
		e.invokeListener(fn, evt)
	}
}

// invokeListener calls fn, recovering from a panic so one misbehaving
// listener cannot corrupt dispatch to the rest.
func (e *Engine) invokeListener(fn Listener, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			_ = fmt.Sprintf("engine: listener panic recovered: %v", r)
		}
	}()
	fn(evt)
}
