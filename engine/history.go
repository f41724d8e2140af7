package engine

import "github.com/vimeh/gridcore/address"

// HistoryManager is the narrow interface a history module must satisfy to
// back Engine's undo/redo surface. It is defined here, rather than imported
// from the history package, so the dependency runs one way: history depends
// on engine.State, engine never depends on history.
type HistoryManager interface {
	Record(state State, description string)
	Undo() (State, bool)
	Redo() (State, bool)
	CanUndo() bool
	CanRedo() bool
	Clear()
}

// SetHistory attaches a history manager. Until one is attached, undo/redo
// are no-ops: can_undo and can_redo report false and record_snapshot does
// nothing.
func (e *Engine) SetHistory(h HistoryManager) {
	e.mu.Lock()
	e.history = h
	e.mu.Unlock()
}

// RecordSnapshot captures the current state as a new history node.
func (e *Engine) RecordSnapshot(description string) {
	if e.history == nil {
		return
	}
	e.history.Record(e.ToState(), description)
}

// Undo moves the attached history back one node and loads its state into
// this engine, reporting whether a prior state existed.
func (e *Engine) Undo() bool {
	if e.history == nil {
		return false
	}
	s, ok := e.history.Undo()
	if !ok {
		return false
	}
	e.loadState(s)
	return true
}

// Redo moves the attached history forward to the most recently undone
// branch and loads its state into this engine.
func (e *Engine) Redo() bool {
	if e.history == nil {
		return false
	}
	s, ok := e.history.Redo()
	if !ok {
		return false
	}
	e.loadState(s)
	return true
}

// CanUndo reports whether Undo would succeed.
func (e *Engine) CanUndo() bool {
	if e.history == nil {
		return false
	}
	return e.history.CanUndo()
}

// CanRedo reports whether Redo would succeed.
func (e *Engine) CanRedo() bool {
	if e.history == nil {
		return false
	}
	return e.history.CanRedo()
}

// loadState replaces this engine's grid and graph with s in place, then
// emits a single batch-change covering every address that differs (added,
// removed, or changed) between the old and new data. Listeners registered
// on the engine survive the reload; they are not part of the snapshot.
func (e *Engine) loadState(s State) {
	e.mu.Lock()

	oldAddrs := e.grid.NonEmptyCells()
	oldSnap := make(map[address.Addr]CellSnapshot, len(oldAddrs))
	for _, a := range oldAddrs {
		rec, _ := e.grid.Get(a)
		oldSnap[a] = snapshotRecord(rec)
	}

	rebuilt := FromState(s)
	e.grid = rebuilt.grid
	e.graph = rebuilt.graph

	newAddrs := e.grid.NonEmptyCells()
	newSnap := make(map[address.Addr]CellSnapshot, len(newAddrs))
	for _, a := range newAddrs {
		rec, _ := e.grid.Get(a)
		newSnap[a] = snapshotRecord(rec)
	}

	seen := make(map[address.Addr]bool, len(oldSnap)+len(newSnap))
	var changes []Change
	for _, a := range oldAddrs {
		if seen[a] {
			continue
		}
		seen[a] = true
		n, stillPresent := newSnap[a]
		if !stillPresent {
			n = snapshotRecord(nil)
		}
		if oldSnap[a] != n {
			changes = append(changes, Change{Addr: a, Old: oldSnap[a], New: n})
		}
	}
	for _, a := range newAddrs {
		if seen[a] {
			continue
		}
		seen[a] = true
		changes = append(changes, Change{Addr: a, Old: snapshotRecord(nil), New: newSnap[a]})
	}

	e.mu.Unlock()

	if len(changes) > 0 {
		e.dispatch(Event{Kind: BatchChange, Changes: changes})
	}
}
