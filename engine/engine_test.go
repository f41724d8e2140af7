package engine

import (
	"testing"

	"github.com/vimeh/gridcore/address"
)

func mustSet(t *testing.T, e *Engine, label, raw, formula string) {
	t.Helper()
	if err := e.SetByLabel(label, raw, formula); err != nil {
		t.Fatalf("set %s: %v", label, err)
	}
}

func computed(t *testing.T, e *Engine, label string) ValueSnapshot {
	t.Helper()
	a, err := address.ParseAddress(label)
	if err != nil {
		t.Fatalf("parse %s: %v", label, err)
	}
	rec, ok := e.Get(a)
	if !ok {
		t.Fatalf("%s not set", label)
	}
	return snapshotValue(rec.Computed)
}

func TestChainedRecalculation(t *testing.T) {
	e := New(10, 10)
	mustSet(t, e, "A1", "10", "")
	mustSet(t, e, "B1", "", "=A1*2")
	mustSet(t, e, "C1", "", "=B1+5")

	if got := computed(t, e, "B1"); got.Number != 20 {
		t.Errorf("B1 = %+v, want 20", got)
	}
	if got := computed(t, e, "C1"); got.Number != 25 {
		t.Errorf("C1 = %+v, want 25", got)
	}

	var batchEvent Event
	e.AddListener(func(evt Event) {
		if evt.Kind == BatchChange {
			batchEvent = evt
		}
	})

	mustSet(t, e, "A1", "5", "")
	if got := computed(t, e, "B1"); got.Number != 10 {
		t.Errorf("B1 = %+v, want 10", got)
	}
	if got := computed(t, e, "C1"); got.Number != 15 {
		t.Errorf("C1 = %+v, want 15", got)
	}
	if batchEvent.Kind != BatchChange {
		t.Fatalf("expected a batch-change from propagation, got kind %v", batchEvent.Kind)
	}
	posB1, posC1 := -1, -1
	for i, c := range batchEvent.Changes {
		if c.Addr == (address.Addr{Row: 0, Col: 1}) {
			posB1 = i
		}
		if c.Addr == (address.Addr{Row: 0, Col: 2}) {
			posC1 = i
		}
	}
	if posB1 == -1 || posC1 == -1 || posB1 >= posC1 {
		t.Errorf("expected B1 before C1 in the batch, got %+v", batchEvent.Changes)
	}
}

func TestMutualCircularReference(t *testing.T) {
	e := New(10, 10)
	mustSet(t, e, "A1", "", "=B1")
	mustSet(t, e, "B1", "", "=A1")

	a1 := computed(t, e, "A1")
	b1 := computed(t, e, "B1")
	if a1.Err != "#CIRCULAR!" || b1.Err != "#CIRCULAR!" {
		t.Fatalf("expected both cells #CIRCULAR!, got A1=%+v B1=%+v", a1, b1)
	}

	addrA1, _ := address.ParseAddress("A1")
	closure := e.graph.AffectedClosure([]address.Addr{addrA1})
	if len(closure) != 1 {
		t.Errorf("no cell should have a dependency edge onto A1 (B1's cyclic edge must not be recorded), closure=%v", closure)
	}
}

func TestSumSkipsClearedCell(t *testing.T) {
	e := New(10, 10)
	mustSet(t, e, "A1", "1", "")
	mustSet(t, e, "B1", "2", "")
	mustSet(t, e, "C1", "3", "")
	mustSet(t, e, "D1", "", "=SUM(A1:C1)")

	if got := computed(t, e, "D1"); got.Number != 6 {
		t.Fatalf("D1 = %+v, want 6", got)
	}

	b1, _ := address.ParseAddress("B1")
	if err := e.Clear(b1); err != nil {
		t.Fatalf("clear B1: %v", err)
	}
	if got := computed(t, e, "D1"); got.Number != 4 {
		t.Errorf("D1 = %+v, want 4 after clearing B1", got)
	}
}

func TestAverageSkipsTextCellInRange(t *testing.T) {
	e := New(10, 10)
	mustSet(t, e, "A1", "10", "")
	mustSet(t, e, "B1", "20", "")
	mustSet(t, e, "C1", "30", "")
	mustSet(t, e, "E1", "", "=AVERAGE(A1:C1)")
	if got := computed(t, e, "E1"); got.Number != 20 {
		t.Fatalf("E1 = %+v, want 20", got)
	}

	mustSet(t, e, "B1", "text", "")
	if got := computed(t, e, "E1"); got.Number != 20 {
		t.Errorf("E1 = %+v, want 20 (text cell skipped by AVERAGE)", got)
	}
}

func TestIfSurfacesDownstreamError(t *testing.T) {
	e := New(10, 10)
	mustSet(t, e, "A1", "10", "")
	mustSet(t, e, "B1", "5", "")
	mustSet(t, e, "C1", "", `=IF(A1>B1,"Yes","No")`)
	if got := computed(t, e, "C1"); got.Text != "Yes" {
		t.Fatalf("C1 = %+v, want Yes", got)
	}

	mustSet(t, e, "A1", "1", "")
	mustSet(t, e, "B1", "10", "")
	if got := computed(t, e, "C1"); got.Text != "No" {
		t.Fatalf("C1 = %+v, want No", got)
	}

	mustSet(t, e, "A1", "", "=1/0")
	if got := computed(t, e, "C1"); got.Err != "#DIV/0!" {
		t.Errorf("C1 = %+v, want #DIV/0! propagated from A1", got)
	}
}

func TestUpdateStyleDoesNotTouchComputedOrError(t *testing.T) {
	e := New(10, 10)
	mustSet(t, e, "A1", "", "=1/0")
	before := computed(t, e, "A1")

	a1, _ := address.ParseAddress("A1")
	if err := e.UpdateStyle(a1, map[string]any{"bold": true}); err != nil {
		t.Fatalf("update style: %v", err)
	}
	after := computed(t, e, "A1")
	if before != after {
		t.Errorf("UpdateStyle changed Computed: before=%+v after=%+v", before, after)
	}
}

func TestClearAllEmitsSingleBatch(t *testing.T) {
	e := New(5, 5)
	mustSet(t, e, "A1", "1", "")
	mustSet(t, e, "B1", "2", "")

	var events []Event
	e.AddListener(func(evt Event) { events = append(events, evt) })
	e.ClearAll()

	if len(events) != 1 || events[0].Kind != BatchChange {
		t.Fatalf("expected exactly one batch-change, got %+v", events)
	}
	if len(events[0].Changes) != 2 {
		t.Errorf("expected 2 changes, got %d", len(events[0].Changes))
	}
	if e.CellCount() != 0 {
		t.Errorf("grid should be empty after ClearAll")
	}
}

func TestSetCellsBatchUpdatesDownstream(t *testing.T) {
	e := New(10, 10)
	mustSet(t, e, "A1", "1", "")
	mustSet(t, e, "B1", "", "=A1+1")

	a1, _ := address.ParseAddress("A1")
	c1, _ := address.ParseAddress("C1")
	err := e.SetCells([]CellUpdate{
		{Addr: a1, Raw: "10"},
		{Addr: c1, Raw: "", Formula: "=A1+B1"},
	})
	if err != nil {
		t.Fatalf("SetCells: %v", err)
	}
	if got := computed(t, e, "B1"); got.Number != 11 {
		t.Errorf("B1 = %+v, want 11", got)
	}
	if got := computed(t, e, "C1"); got.Number != 21 {
		t.Errorf("C1 = %+v, want 21", got)
	}
}

func TestListenerPanicDoesNotStopOtherListeners(t *testing.T) {
	e := New(5, 5)
	secondRan := false
	e.AddListener(func(evt Event) { panic("boom") })
	e.AddListener(func(evt Event) { secondRan = true })
	mustSet(t, e, "A1", "1", "")
	if !secondRan {
		t.Errorf("expected second listener to run despite first panicking")
	}
}
