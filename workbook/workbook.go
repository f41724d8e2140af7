// Package workbook composes multiple named sheets, each its own
// engine.Engine, into one ordered collection with cross-sheet references.
// Every sheet's dependency graph stays intra-sheet; cross-sheet edges live
// only in this package's side-table, per the engine's design note that
// keeps a bare Engine unaware of any owning workbook.
package workbook

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/engine"
	"github.com/vimeh/gridcore/history"
)

// Sheet is one named tab of a workbook, backed by its own engine.
type Sheet struct {
	ID     string
	Name   string
	Hidden bool
	Engine *engine.Engine
}

// crossKey identifies a single cell on a specific sheet, the unit the
// cross-sheet side-table is keyed by.
type crossKey struct {
	sheetID string
	addr    address.Addr
}

// Workbook is an ordered collection of sheets sharing one cross-sheet
// dependency side-table.
type Workbook struct {
	mu sync.Mutex

	sheets   []*Sheet
	byID     map[string]*Sheet
	activeID string
	nextID   int

	// dependents[crossKey{source}] is the set of readers (on any sheet)
	// whose formula reads that source cell.
	dependents map[crossKey]map[crossKey]bool

	metadata map[string]string

	rows, cols int

	// crossSheetDepth bounds cross-sheet propagation to a single hop: a
	// reader re-evaluated by PropagateCrossSheetChanges may itself have
	// cross-sheet readers, but those are not chased further. The source
	// doesn't run a global cross-sheet cycle check, so without this bound
	// a cross-sheet cycle (A reads B, B reads A) would recurse forever
	// instead of merely going stale after one pass.
	crossSheetDepth int
}

// New returns an empty workbook whose sheets are created with the given
// grid dimensions.
func New(rows, cols int) *Workbook {
	return &Workbook{
		byID:       make(map[string]*Sheet),
		dependents: make(map[crossKey]map[crossKey]bool),
		metadata:   make(map[string]string),
		rows:       rows,
		cols:       cols,
	}
}

// AddSheet creates a new sheet named name (auto-suffixing "(1)", "(2)", …
// on a collision) and makes it active if it is the first sheet. It returns
// the new sheet's stable id.
func (w *Workbook) AddSheet(name string) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := fmt.Sprintf("sheet-%d", w.nextID)
	w.nextID++

	s := &Sheet{ID: id, Name: w.uniqueName(name), Engine: engine.New(w.rows, w.cols)}
	s.Engine.SetHistory(history.New(0))
	// The empty starting state is the history root, so the sheet's first
	// edit can be undone.
	s.Engine.RecordSnapshot("Initial state")
	w.wireSheet(s)
	w.attachCrossSheetListener(s)
	w.sheets = append(w.sheets, s)
	w.byID[id] = s
	if w.activeID == "" {
		w.activeID = id
	}
	return id
}

// attachCrossSheetListener subscribes to s's own change events so that,
// once its intra-sheet propagation settles, any cross-sheet dependents
// recorded against its changed cells are re-evaluated on their own sheets.
func (w *Workbook) attachCrossSheetListener(s *Sheet) {
	sheetID := s.ID
	s.Engine.AddListener(func(evt engine.Event) {
		addrs := make([]address.Addr, len(evt.Changes))
		for i, c := range evt.Changes {
			addrs[i] = c.Addr
		}
		w.PropagateCrossSheetChanges(sheetID, addrs)
	})
}

// uniqueName appends " (1)", " (2)", … to name until it no longer collides
// with an existing sheet name. Caller holds w.mu.
func (w *Workbook) uniqueName(name string) string {
	candidate := name
	for i := 1; w.nameTaken(candidate); i++ {
		candidate = fmt.Sprintf("%s (%d)", name, i)
	}
	return candidate
}

func (w *Workbook) nameTaken(name string) bool {
	for _, s := range w.sheets {
		if s.Name == name {
			return true
		}
	}
	return false
}

// wireSheet connects a sheet's engine into the workbook's cross-sheet
// machinery: a resolver that finds other sheets by name, and a hook that
// records cross-sheet edges as the evaluator discovers them.
func (w *Workbook) wireSheet(s *Sheet) {
	s.Engine.SetSheetContext(s.Name, w.resolve, w.recordCrossSheetEdge(s.ID))
}

// resolve implements engine.SheetResolver by name across all sheets.
func (w *Workbook) resolve(name string) (engine.Reader, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sheets {
		if s.Name == name {
			return s.Engine, true
		}
	}
	return nil, false
}

// recordCrossSheetEdge returns an engine.CrossSheetHook bound to readerSheetID.
func (w *Workbook) recordCrossSheetEdge(readerSheetID string) engine.CrossSheetHook {
	return func(fromAddr address.Addr, sheetName string, targetAddr address.Addr, isRange bool, rangeEnd address.Addr) {
		w.mu.Lock()
		defer w.mu.Unlock()

		var targetSheet *Sheet
		for _, s := range w.sheets {
			if s.Name == sheetName {
				targetSheet = s
				break
			}
		}
		if targetSheet == nil {
			return
		}

		reader := crossKey{sheetID: readerSheetID, addr: fromAddr}
		targets := []address.Addr{targetAddr}
		if isRange {
			targets = address.NormalizeRange(targetAddr, rangeEnd).Cells()
		}
		for _, t := range targets {
			src := crossKey{sheetID: targetSheet.ID, addr: t}
			if w.dependents[src] == nil {
				w.dependents[src] = make(map[crossKey]bool)
			}
			w.dependents[src][reader] = true
		}
	}
}

// RemoveSheet deletes the sheet with the given id. The last remaining
// sheet cannot be removed. If id is the active sheet, activity moves to
// the previous sibling, or the first remaining sheet if id was first.
func (w *Workbook) RemoveSheet(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.sheets) <= 1 {
		return fmt.Errorf("workbook: cannot remove the last remaining sheet")
	}
	idx := w.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("workbook: no sheet with id %q", id)
	}

	w.sheets = append(w.sheets[:idx], w.sheets[idx+1:]...)
	delete(w.byID, id)
	w.dropCrossSheetEdgesFor(id)

	if w.activeID == id {
		if idx > 0 {
			w.activeID = w.sheets[idx-1].ID
		} else {
			w.activeID = w.sheets[0].ID
		}
	}
	return nil
}

// dropCrossSheetEdgesFor removes every side-table entry naming sheetID as
// either the source or a reader. Caller holds w.mu.
func (w *Workbook) dropCrossSheetEdgesFor(sheetID string) {
	for src, readers := range w.dependents {
		if src.sheetID == sheetID {
			delete(w.dependents, src)
			continue
		}
		for r := range readers {
			if r.sheetID == sheetID {
				delete(readers, r)
			}
		}
		if len(readers) == 0 {
			delete(w.dependents, src)
		}
	}
}

func (w *Workbook) indexOf(id string) int {
	for i, s := range w.sheets {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// RenameSheet renames the sheet with the given id; it fails if newName is
// already taken by a different sheet.
func (w *Workbook) RenameSheet(id, newName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.byID[id]
	if !ok {
		return fmt.Errorf("workbook: no sheet with id %q", id)
	}
	if s.Name == newName {
		return nil
	}
	if w.nameTaken(newName) {
		return fmt.Errorf("workbook: sheet name %q is already in use", newName)
	}
	s.Name = newName
	w.wireSheet(s)
	return nil
}

// MoveSheet relocates the sheet with the given id to newIndex in the
// ordered sheet list.
func (w *Workbook) MoveSheet(id string, newIndex int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := w.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("workbook: no sheet with id %q", id)
	}
	if newIndex < 0 || newIndex >= len(w.sheets) {
		return fmt.Errorf("workbook: index %d out of range", newIndex)
	}
	s := w.sheets[idx]
	w.sheets = append(w.sheets[:idx], w.sheets[idx+1:]...)
	w.sheets = append(w.sheets[:newIndex], append([]*Sheet{s}, w.sheets[newIndex:]...)...)
	return nil
}

// DuplicateSheet creates a copy of the sheet with the given id, named
// name, placed immediately after the source sheet. The copy's engine state
// (data only; history and cross-sheet edges are not carried over) is a
// deep clone of the source's.
func (w *Workbook) DuplicateSheet(id, name string) (string, error) {
	w.mu.Lock()
	src, ok := w.byID[id]
	if !ok {
		w.mu.Unlock()
		return "", fmt.Errorf("workbook: no sheet with id %q", id)
	}
	state := src.Engine.ToState()
	srcIdx := w.indexOf(id)
	w.mu.Unlock()

	newID := w.AddSheet(name)

	w.mu.Lock()
	defer w.mu.Unlock()
	dup := w.byID[newID]
	dup.Engine = engine.FromState(state)
	dup.Engine.SetHistory(history.New(0))
	w.wireSheet(dup)
	w.attachCrossSheetListener(dup)

	// AddSheet appended at the end; move it next to its source.
	curIdx := w.indexOf(newID)
	w.sheets = append(w.sheets[:curIdx], w.sheets[curIdx+1:]...)
	insertAt := srcIdx + 1
	if insertAt > len(w.sheets) {
		insertAt = len(w.sheets)
	}
	w.sheets = append(w.sheets[:insertAt], append([]*Sheet{dup}, w.sheets[insertAt:]...)...)
	return newID, nil
}

// SheetByID returns the sheet with the given id.
func (w *Workbook) SheetByID(id string) (*Sheet, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.byID[id]
	return s, ok
}

// SheetByName returns the sheet with the given name.
func (w *Workbook) SheetByName(name string) (*Sheet, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sheets {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// SheetByIndex returns the sheet at position i in the ordered sheet list.
func (w *Workbook) SheetByIndex(i int) (*Sheet, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.sheets) {
		return nil, false
	}
	return w.sheets[i], true
}

// Sheets returns every sheet in order. The slice is a copy; mutating it
// does not affect the workbook.
func (w *Workbook) Sheets() []*Sheet {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Sheet, len(w.sheets))
	copy(out, w.sheets)
	return out
}

// ActiveSheet returns the currently active sheet.
func (w *Workbook) ActiveSheet() (*Sheet, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.byID[w.activeID]
	return s, ok
}

// SetActiveSheet makes the sheet with the given id active.
func (w *Workbook) SetActiveSheet(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.byID[id]; !ok {
		return fmt.Errorf("workbook: no sheet with id %q", id)
	}
	w.activeID = id
	return nil
}

// SetMetadata sets a workbook-level metadata field (title, author, …).
func (w *Workbook) SetMetadata(key, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.metadata[key] = value
}

// Metadata returns a workbook-level metadata field.
func (w *Workbook) Metadata(key string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.metadata[key]
	return v, ok
}

// PropagateCrossSheetChanges re-evaluates every formula that cross-sheet
// depends on any of the given (sheetID, addr) sources, by replaying each
// dependent's own set() on its owning sheet — which reparses, re-adds its
// intra-sheet edges, evaluates, and propagates intra-sheet on that reader's
// engine. Call this after a sheet's own mutation (and its intra-sheet
// propagation) has settled, with the set of addresses that changed.
//
// Bounded to one hop by crossSheetDepth: the source does not run a global
// cross-sheet cycle check, so a genuine A-reads-B/B-reads-A cross-sheet
// cycle goes stale after one pass here rather than recursing forever.
func (w *Workbook) PropagateCrossSheetChanges(sheetID string, changed []address.Addr) {
	w.mu.Lock()
	if w.crossSheetDepth > 0 {
		w.mu.Unlock()
		return
	}
	w.crossSheetDepth++
	var readers []crossKey
	seen := make(map[crossKey]bool)
	for _, a := range changed {
		for r := range w.dependents[crossKey{sheetID: sheetID, addr: a}] {
			if !seen[r] {
				seen[r] = true
				readers = append(readers, r)
			}
		}
	}
	sort.Slice(readers, func(i, j int) bool {
		if readers[i].sheetID != readers[j].sheetID {
			return readers[i].sheetID < readers[j].sheetID
		}
		if readers[i].addr.Row != readers[j].addr.Row {
			return readers[i].addr.Row < readers[j].addr.Row
		}
		return readers[i].addr.Col < readers[j].addr.Col
	})
	byID := w.byID
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.crossSheetDepth--
		w.mu.Unlock()
	}()

	for _, r := range readers {
		s, ok := byID[r.sheetID]
		if !ok {
			continue
		}
		rec, ok := s.Engine.Get(r.addr)
		if !ok {
			continue
		}
		_ = s.Engine.Set(r.addr, rec.Raw, rec.Formula)
	}
}

// String renders a human-readable summary, mainly for debugging.
func (w *Workbook) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, len(w.sheets))
	for i, s := range w.sheets {
		names[i] = s.Name
	}
	return fmt.Sprintf("Workbook{sheets: [%s], active: %s}", strings.Join(names, ", "), w.activeID)
}
