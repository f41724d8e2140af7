package engine_test

import (
	"strconv"
	"testing"

	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/engine"
	"github.com/vimeh/gridcore/grid"
	"github.com/vimeh/gridcore/history"
)

func mustSetE(t *testing.T, e *engine.Engine, label, raw, formula string) {
	t.Helper()
	if err := e.SetByLabel(label, raw, formula); err != nil {
		t.Fatalf("set %s: %v", label, err)
	}
}

func a1Computed(t *testing.T, e *engine.Engine) float64 {
	t.Helper()
	addr, _ := address.ParseAddress("A1")
	rec, ok := e.Get(addr)
	if !ok {
		t.Fatalf("A1 not set")
	}
	// A1 holds a literal, whose Computed value is the raw text.
	if rec.Computed.Kind != grid.KindText {
		t.Fatalf("A1 computed = %+v, want literal text", rec.Computed)
	}
	n, err := strconv.ParseFloat(rec.Computed.Text, 64)
	if err != nil {
		t.Fatalf("A1 text %q is not a number: %v", rec.Computed.Text, err)
	}
	return n
}

func TestEngineUndoRedoSeedScenario(t *testing.T) {
	// Mirrors the spec's history seed scenario: record S1 (A1=1), S2
	// (A1=2), S3 (A1=3); undo to S1; record S2b (A1=9); redo should then
	// be unavailable and the undo chain should lead straight back to S1.
	// Set already records a snapshot per its protocol's step 7, so each
	// mustSetE call below produces one history node.
	e := engine.New(10, 10)
	h := history.New(0)
	e.SetHistory(h)

	mustSetE(t, e, "A1", "1", "") // S1
	mustSetE(t, e, "A1", "2", "") // S2
	mustSetE(t, e, "A1", "3", "") // S3

	if !e.Undo() {
		t.Fatalf("expected undo from S3 to succeed")
	}
	if got := a1Computed(t, e); got != 2 {
		t.Fatalf("after first undo A1 = %v, want 2", got)
	}
	if !e.Undo() {
		t.Fatalf("expected undo from S2 to succeed")
	}
	if got := a1Computed(t, e); got != 1 {
		t.Fatalf("after second undo A1 = %v, want 1", got)
	}

	mustSetE(t, e, "A1", "9", "") // S2b

	if e.CanRedo() {
		t.Errorf("recording S2b from S1 should have dropped the S2->S3 redo path")
	}
	if !e.Undo() {
		t.Fatalf("expected undo from S2b to succeed")
	}
	if got := a1Computed(t, e); got != 1 {
		t.Errorf("after undoing S2b A1 = %v, want 1", got)
	}
	if e.CanUndo() {
		t.Errorf("S1 is the root of the retained history, should not undo further")
	}
}

func TestEngineUndoRedoRoundTripIsExact(t *testing.T) {
	e := engine.New(10, 10)
	h := history.New(0)
	e.SetHistory(h)

	mustSetE(t, e, "A1", "10", "")
	mustSetE(t, e, "B1", "", "=A1*2")
	mustSetE(t, e, "A1", "99", "")

	afterMutation := e.ToState()

	if !e.Undo() {
		t.Fatalf("expected undo to succeed")
	}
	if !e.Redo() {
		t.Fatalf("expected redo to succeed")
	}
	restored := e.ToState()

	if len(afterMutation.Cells) != len(restored.Cells) {
		t.Fatalf("cell counts differ after undo;redo: before=%d after=%d", len(afterMutation.Cells), len(restored.Cells))
	}
	for i := range afterMutation.Cells {
		b, a := afterMutation.Cells[i], restored.Cells[i]
		if b.Addr != a.Addr || b.Raw != a.Raw || b.Formula != a.Formula || b.Computed != a.Computed || b.Error != a.Error {
			t.Errorf("cell %d differs after undo;redo: before=%+v after=%+v", i, b, a)
		}
	}
}

func TestEngineWithoutHistoryAttachedIsNoOp(t *testing.T) {
	e := engine.New(5, 5)
	mustSetE(t, e, "A1", "1", "")
	e.RecordSnapshot("ignored")
	if e.CanUndo() || e.CanRedo() || e.Undo() || e.Redo() {
		t.Errorf("an engine with no history attached should report no undo/redo availability")
	}
}
