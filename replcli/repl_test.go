package replcli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/grid"
	"github.com/vimeh/gridcore/workbook"
)

func newWorkbook(t *testing.T) *workbook.Workbook {
	t.Helper()
	wb := workbook.New(20, 20)
	wb.AddSheet("Sheet1")
	return wb
}

func TestEvalLineSetsLiteral(t *testing.T) {
	wb := newWorkbook(t)
	if err := evalLine("A1=10", wb); err != nil {
		t.Fatalf("evalLine: %v", err)
	}
	sheet, _ := wb.ActiveSheet()
	rec, ok := sheet.Engine.Get(mustAddr(t, "A1"))
	if !ok {
		t.Fatal("A1 not set")
	}
	if rec.Raw != "10" || rec.Formula != "" {
		t.Errorf("rec = %+v, want raw=10 formula=empty", rec)
	}
	if rec.Computed.Kind != grid.KindText || rec.Computed.Text != "10" {
		t.Errorf("literal A1 computed = %+v, want text \"10\"", rec.Computed)
	}
}

func TestEvalLineSetsFormulaVerbatim(t *testing.T) {
	wb := newWorkbook(t)
	if err := evalLine("A1=10", wb); err != nil {
		t.Fatalf("evalLine A1: %v", err)
	}
	if err := evalLine("B1==A1*2", wb); err != nil {
		t.Fatalf("evalLine B1: %v", err)
	}
	sheet, _ := wb.ActiveSheet()
	rec, ok := sheet.Engine.Get(mustAddr(t, "B1"))
	if !ok {
		t.Fatal("B1 not set")
	}
	if rec.Raw != "=A1*2" || rec.Formula != "=A1*2" {
		t.Errorf("rec = %+v, want raw and formula both \"=A1*2\"", rec)
	}
	if rec.Computed.Kind != grid.KindNumber || rec.Computed.Number != 20 {
		t.Errorf("B1 computed = %+v, want number 20", rec.Computed)
	}
}

func TestEvalLineBareReferenceIsNoop(t *testing.T) {
	wb := newWorkbook(t)
	if err := evalLine("A1=5", wb); err != nil {
		t.Fatalf("evalLine: %v", err)
	}
	if err := evalLine("A1", wb); err != nil {
		t.Fatalf("evalLine bare ref: %v", err)
	}
	sheet, _ := wb.ActiveSheet()
	rec, _ := sheet.Engine.Get(mustAddr(t, "A1"))
	if rec.Raw != "5" {
		t.Errorf("bare reference mutated A1: %+v", rec)
	}
}

func TestEvalLineRejectsBadAddress(t *testing.T) {
	wb := newWorkbook(t)
	if err := evalLine("!!=1", wb); err == nil {
		t.Fatal("expected an error for an invalid cell reference")
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		v    grid.Value
		want string
	}{
		{grid.Num(3.5), "3.5"},
		{grid.Str("hi"), "hi"},
		{grid.Bool(true), "TRUE"},
		{grid.Bool(false), "FALSE"},
		{grid.Empty, ""},
	}
	for _, c := range cases {
		if got := formatValue(c.v); got != c.want {
			t.Errorf("formatValue(%+v) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestHandleCommandSheetsAndUse(t *testing.T) {
	wb := newWorkbook(t)
	wb.AddSheet("Sheet2")

	var out bytes.Buffer
	if quit := handleCommand(":sheets", &out, wb); quit {
		t.Fatal(":sheets should not end the session")
	}
	if !strings.Contains(out.String(), "Sheet1") || !strings.Contains(out.String(), "Sheet2") {
		t.Errorf(":sheets output = %q, missing a sheet name", out.String())
	}

	out.Reset()
	if quit := handleCommand(":use Sheet2", &out, wb); quit {
		t.Fatal(":use should not end the session")
	}
	active, ok := wb.ActiveSheet()
	if !ok || active.Name != "Sheet2" {
		t.Errorf("active sheet = %+v, want Sheet2", active)
	}
}

func TestHandleCommandUndoRedo(t *testing.T) {
	wb := newWorkbook(t)
	if err := evalLine("A1=1", wb); err != nil {
		t.Fatalf("evalLine: %v", err)
	}

	var out bytes.Buffer
	if quit := handleCommand(":undo", &out, wb); quit {
		t.Fatal(":undo should not end the session")
	}
	if !strings.Contains(out.String(), "undone") {
		t.Errorf(":undo output = %q, want it to report success", out.String())
	}
	sheet, _ := wb.ActiveSheet()
	if _, ok := sheet.Engine.Get(mustAddr(t, "A1")); ok {
		t.Error("A1 still set after :undo")
	}

	out.Reset()
	if quit := handleCommand(":redo", &out, wb); quit {
		t.Fatal(":redo should not end the session")
	}
	if !strings.Contains(out.String(), "redone") {
		t.Errorf(":redo output = %q, want it to report success", out.String())
	}
	if _, ok := sheet.Engine.Get(mustAddr(t, "A1")); !ok {
		t.Error("A1 not restored after :redo")
	}
}

func TestHandleCommandClear(t *testing.T) {
	wb := newWorkbook(t)
	if err := evalLine("A1=1", wb); err != nil {
		t.Fatalf("evalLine: %v", err)
	}
	var out bytes.Buffer
	if quit := handleCommand(":clear A1", &out, wb); quit {
		t.Fatal(":clear should not end the session")
	}
	sheet, _ := wb.ActiveSheet()
	if _, ok := sheet.Engine.Get(mustAddr(t, "A1")); ok {
		t.Error("A1 still set after :clear A1")
	}
}

func TestHandleCommandQuit(t *testing.T) {
	wb := newWorkbook(t)
	var out bytes.Buffer
	if quit := handleCommand(":quit", &out, wb); !quit {
		t.Error(":quit should end the session")
	}
}

func TestStartReadsNonTerminalInput(t *testing.T) {
	wb := newWorkbook(t)
	in := strings.NewReader("A1=7\nB1==A1+1\n:quit\n")
	var out bytes.Buffer

	Start(in, &out, wb)

	sheet, _ := wb.ActiveSheet()
	rec, ok := sheet.Engine.Get(mustAddr(t, "B1"))
	if !ok || rec.Computed.Kind != grid.KindNumber || rec.Computed.Number != 8 {
		t.Errorf("B1 after session = %+v, ok=%v, want number 8", rec, ok)
	}
	if !strings.Contains(out.String(), "bye") {
		t.Errorf("session output missing quit banner: %q", out.String())
	}
}

func mustAddr(t *testing.T, label string) address.Addr {
	t.Helper()
	a, err := address.ParseAddress(label)
	if err != nil {
		t.Fatalf("parse %s: %v", label, err)
	}
	return a
}
