package engine

import (
	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/eval"
	"github.com/vimeh/gridcore/parser"
)

// propagate recomputes every cell affected by a change at seed. If a
// propagation is already in progress (reentrancy, typically a listener
// mutating the engine), seed is enqueued and this call returns immediately;
// the in-progress propagation drains the queue once it finishes.
func (e *Engine) propagate(seed address.Addr) {
	e.mu.Lock()
	if e.reentrant {
		e.pendingSeeds = append(e.pendingSeeds, seed)
		e.mu.Unlock()
		return
	}
	e.reentrant = true
	e.mu.Unlock()

	e.runPropagation(seed)

	e.mu.Lock()
	e.reentrant = false
	pending := e.pendingSeeds
	e.pendingSeeds = nil
	e.mu.Unlock()

	for _, s := range pending {
		e.propagate(s)
	}
}

// runPropagation computes the affected closure of seed, orders it, and
// re-evaluates every formula cell in that order (except the seed, already
// evaluated by Set/SetCells). It emits at most one batch-change event.
func (e *Engine) runPropagation(seed address.Addr) {
	e.mu.Lock()

	closure := e.graph.AffectedClosure([]address.Addr{seed})
	ordered, cerr := e.graph.Order(closure)
	if cerr != nil {
		e.markCircular(cerr)
		ordered, _ = e.graph.Order(closure)
	}

	var changes []Change
	anyDiffer := false
	for _, a := range ordered {
		if a == seed {
			continue
		}
		rec, ok := e.grid.Get(a)
		if !ok || rec.Formula == "" {
			continue
		}
		oldSnap := snapshotRecord(rec)
		node, err := parser.Parse(rec.Formula)
		if err != nil {
			continue
		}
		v := e.evalAt(a, node)
		newComputed := eval.BareError(v)
		if v.IsError() {
			rec.Error = v.Err
		} else {
			rec.Error = ""
		}
		rec.Computed = newComputed
		newSnap := snapshotRecord(rec)
		if oldSnap != newSnap {
			anyDiffer = true
		}
		changes = append(changes, Change{Addr: a, Old: oldSnap, New: newSnap})
	}

	e.mu.Unlock()

	if anyDiffer {
		e.dispatch(Event{Kind: BatchChange, Changes: changes})
	}
}
