package workbook

import (
	"strconv"
	"strings"
	"testing"

	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/grid"
)

func setCell(t *testing.T, s *Sheet, label, raw, formula string) {
	t.Helper()
	if err := s.Engine.SetByLabel(label, raw, formula); err != nil {
		t.Fatalf("set %s on %s: %v", label, s.Name, err)
	}
}

// computedAt reads the numeric value of a cell, coercing the way a formula
// reading that cell would: literals are stored as text (numeric strings
// remain text per the value model) and only coerce to number at use-sites.
func computedAt(t *testing.T, s *Sheet, label string) float64 {
	t.Helper()
	addr, err := address.ParseAddress(label)
	if err != nil {
		t.Fatalf("parse %s: %v", label, err)
	}
	rec, ok := s.Engine.Get(addr)
	if !ok {
		t.Fatalf("%s not set on %s", label, s.Name)
	}
	switch rec.Computed.Kind {
	case grid.KindNumber:
		return rec.Computed.Number
	case grid.KindText:
		n, _ := strconv.ParseFloat(strings.TrimSpace(rec.Computed.Text), 64)
		return n
	case grid.KindBoolean:
		if rec.Computed.Boolean {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func TestAddSheetAutoSuffixesDuplicateNames(t *testing.T) {
	w := New(10, 10)
	id1 := w.AddSheet("Sheet1")
	id2 := w.AddSheet("Sheet1")
	s1, _ := w.SheetByID(id1)
	s2, _ := w.SheetByID(id2)
	if s1.Name != "Sheet1" || s2.Name != "Sheet1 (1)" {
		t.Errorf("expected auto-suffixed names, got %q and %q", s1.Name, s2.Name)
	}
}

func TestRemoveActiveSheetMovesToPreviousSibling(t *testing.T) {
	w := New(10, 10)
	a := w.AddSheet("A")
	b := w.AddSheet("B")
	c := w.AddSheet("C")
	w.SetActiveSheet(b)

	if err := w.RemoveSheet(b); err != nil {
		t.Fatalf("remove B: %v", err)
	}
	active, _ := w.ActiveSheet()
	if active.ID != a {
		t.Errorf("expected active to move to previous sibling A, got %s", active.Name)
	}

	// Removing the first sheet while active should fall to the new first.
	w.SetActiveSheet(a)
	if err := w.RemoveSheet(a); err != nil {
		t.Fatalf("remove A: %v", err)
	}
	active, _ = w.ActiveSheet()
	if active.ID != c {
		t.Errorf("expected active to fall to the first remaining sheet C, got %s", active.Name)
	}
}

func TestCannotRemoveLastSheet(t *testing.T) {
	w := New(10, 10)
	id := w.AddSheet("Only")
	if err := w.RemoveSheet(id); err == nil {
		t.Errorf("expected an error removing the last remaining sheet")
	}
}

func TestRenameRejectsCollidingName(t *testing.T) {
	w := New(10, 10)
	w.AddSheet("A")
	bID := w.AddSheet("B")
	if err := w.RenameSheet(bID, "A"); err == nil {
		t.Errorf("expected rename to A to fail since A is taken")
	}
}

func TestCrossSheetReferenceResolves(t *testing.T) {
	w := New(10, 10)
	salesID := w.AddSheet("Sales")
	summaryID := w.AddSheet("Summary")
	sales, _ := w.SheetByID(salesID)
	summary, _ := w.SheetByID(summaryID)

	setCell(t, sales, "B2", "100", "")
	setCell(t, summary, "A1", "", "=Sales!B2*2")

	if got := computedAt(t, summary, "A1"); got != 200 {
		t.Errorf("Summary!A1 = %v, want 200", got)
	}
}

func TestCrossSheetChangePropagatesToDependent(t *testing.T) {
	w := New(10, 10)
	salesID := w.AddSheet("Sales")
	summaryID := w.AddSheet("Summary")
	sales, _ := w.SheetByID(salesID)
	summary, _ := w.SheetByID(summaryID)

	setCell(t, sales, "B2", "100", "")
	setCell(t, summary, "A1", "", "=Sales!B2*2")
	if got := computedAt(t, summary, "A1"); got != 200 {
		t.Fatalf("Summary!A1 = %v, want 200", got)
	}

	setCell(t, sales, "B2", "50", "")
	if got := computedAt(t, summary, "A1"); got != 100 {
		t.Errorf("Summary!A1 after Sales!B2 change = %v, want 100", got)
	}
}

func TestDuplicateSheetClonesData(t *testing.T) {
	w := New(10, 10)
	srcID := w.AddSheet("Src")
	src, _ := w.SheetByID(srcID)
	setCell(t, src, "A1", "42", "")

	dupID, err := w.DuplicateSheet(srcID, "Src copy")
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	dup, _ := w.SheetByID(dupID)
	if got := computedAt(t, dup, "A1"); got != 42 {
		t.Errorf("duplicated sheet A1 = %v, want 42", got)
	}

	setCell(t, src, "A1", "7", "")
	if got := computedAt(t, dup, "A1"); got != 42 {
		t.Errorf("mutating source after duplication should not affect the copy, got %v", got)
	}
}

func TestWorkbookStateRoundTrip(t *testing.T) {
	w := New(10, 10)
	salesID := w.AddSheet("Sales")
	w.AddSheet("Summary")
	sales, _ := w.SheetByID(salesID)
	summary, _ := w.SheetByName("Summary")

	setCell(t, sales, "B2", "100", "")
	setCell(t, summary, "A1", "", "=Sales!B2*2")
	w.SetMetadata("title", "Q1 Report")

	snap := w.ToState(ToStateOptions{IncludeMetadata: true})
	restored := FromState(snap)

	rSummary, ok := restored.SheetByName("Summary")
	if !ok {
		t.Fatalf("restored workbook missing Summary sheet")
	}
	if got := computedAt(t, rSummary, "A1"); got != 200 {
		t.Errorf("restored Summary!A1 = %v, want 200", got)
	}
	if title, _ := restored.Metadata("title"); title != "Q1 Report" {
		t.Errorf("restored metadata title = %q, want %q", title, "Q1 Report")
	}

	// Cross-sheet wiring must still be live after restoration.
	rSales, _ := restored.SheetByName("Sales")
	setCell(t, rSales, "B2", "10", "")
	if got := computedAt(t, rSummary, "A1"); got != 20 {
		t.Errorf("restored cross-sheet link did not propagate: A1 = %v, want 20", got)
	}
}
