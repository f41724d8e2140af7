package pivot

import (
	"testing"

	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/engine"
)

// seedSource writes a small "Region, Product, Amount" table starting at A1:
//
//	Region   Product  Amount
//	East     Widget   10
//	East     Widget   20
//	East     Gadget   5
//	West     Widget   7
func seedSource(t *testing.T, e *engine.Engine) {
	t.Helper()
	rows := [][3]string{
		{"Region", "Product", "Amount"},
		{"East", "Widget", "10"},
		{"East", "Widget", "20"},
		{"East", "Gadget", "5"},
		{"West", "Widget", "7"},
	}
	for r, row := range rows {
		for c, v := range row {
			addr := address.Addr{Row: r, Col: c}
			if err := e.Set(addr, v, ""); err != nil {
				t.Fatalf("seed %v: %v", addr, err)
			}
		}
	}
}

func textAt(t *testing.T, e *engine.Engine, addr address.Addr) string {
	t.Helper()
	rec, ok := e.Get(addr)
	if !ok {
		return ""
	}
	return pivotText(rec.Computed)
}

func TestRefreshGroupsByRowFieldAndSums(t *testing.T) {
	src := engine.New(20, 20)
	seedSource(t, src)
	dst := engine.New(20, 20)

	p := New(Config{
		Source:      address.Range{Start: address.Addr{Row: 0, Col: 0}, End: address.Addr{Row: 4, Col: 2}},
		RowFields:   []string{"Region"},
		ValueFields: []ValueField{{Field: "Amount", Aggregator: Sum, Alias: "Total"}},
	})

	top := address.Addr{Row: 10, Col: 0}
	if err := p.Refresh(src, dst, top); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Single header row (no column fields): ["Total"] at col 1.
	if got := textAt(t, dst, address.Addr{Row: 10, Col: 1}); got != "Total" {
		t.Errorf("header label = %q, want Total", got)
	}

	// Rows are sorted by key: "East" before "West".
	if got := textAt(t, dst, address.Addr{Row: 11, Col: 0}); got != "East" {
		t.Errorf("row 0 key = %q, want East", got)
	}
	if got := textAt(t, dst, address.Addr{Row: 11, Col: 1}); got != "35" {
		t.Errorf("East total = %q, want 35", got)
	}
	if got := textAt(t, dst, address.Addr{Row: 12, Col: 0}); got != "West" {
		t.Errorf("row 1 key = %q, want West", got)
	}
	if got := textAt(t, dst, address.Addr{Row: 12, Col: 1}); got != "7" {
		t.Errorf("West total = %q, want 7", got)
	}
}

func TestRefreshWithColumnFieldsAndGrandTotal(t *testing.T) {
	src := engine.New(20, 20)
	seedSource(t, src)
	dst := engine.New(20, 20)

	p := New(Config{
		Source:           address.Range{Start: address.Addr{Row: 0, Col: 0}, End: address.Addr{Row: 4, Col: 2}},
		RowFields:        []string{"Region"},
		ColumnFields:     []string{"Product"},
		ValueFields:      []ValueField{{Field: "Amount", Aggregator: Sum, Alias: "Amt"}},
		ShowRowTotals:    true,
		ShowColumnTotals: true,
		ShowGrandTotals:  true,
	})

	top := address.Addr{Row: 0, Col: 0}
	if err := p.Refresh(src, dst, top); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Column keys sorted: "Gadget" then "Widget", each one column wide,
	// followed by the row-totals "Total" block.
	if got := textAt(t, dst, address.Addr{Row: 0, Col: 1}); got != "Gadget" {
		t.Errorf("col key 0 = %q, want Gadget", got)
	}
	if got := textAt(t, dst, address.Addr{Row: 0, Col: 2}); got != "Widget" {
		t.Errorf("col key 1 = %q, want Widget", got)
	}
	if got := textAt(t, dst, address.Addr{Row: 0, Col: 3}); got != "Total" {
		t.Errorf("row-total block header = %q, want Total", got)
	}

	// East/Gadget=5, East/Widget=30, East row total=35.
	if got := textAt(t, dst, address.Addr{Row: 2, Col: 0}); got != "East" {
		t.Fatalf("row 0 key = %q, want East", got)
	}
	if got := textAt(t, dst, address.Addr{Row: 2, Col: 1}); got != "5" {
		t.Errorf("East/Gadget = %q, want 5", got)
	}
	if got := textAt(t, dst, address.Addr{Row: 2, Col: 2}); got != "30" {
		t.Errorf("East/Widget = %q, want 30", got)
	}
	if got := textAt(t, dst, address.Addr{Row: 2, Col: 3}); got != "35" {
		t.Errorf("East row total = %q, want 35", got)
	}

	// Column totals row and grand total.
	colTotalsRow := 4
	if got := textAt(t, dst, address.Addr{Row: colTotalsRow, Col: 0}); got != "Total" {
		t.Errorf("column totals row label = %q, want Total", got)
	}
	if got := textAt(t, dst, address.Addr{Row: colTotalsRow, Col: 1}); got != "5" {
		t.Errorf("Gadget column total = %q, want 5", got)
	}
	if got := textAt(t, dst, address.Addr{Row: colTotalsRow, Col: 2}); got != "37" {
		t.Errorf("Widget column total = %q, want 37", got)
	}
	if got := textAt(t, dst, address.Addr{Row: colTotalsRow, Col: 3}); got != "42" {
		t.Errorf("grand total = %q, want 42", got)
	}
}

func TestRefreshAppliesFilter(t *testing.T) {
	src := engine.New(20, 20)
	seedSource(t, src)
	dst := engine.New(20, 20)

	p := New(Config{
		Source:      address.Range{Start: address.Addr{Row: 0, Col: 0}, End: address.Addr{Row: 4, Col: 2}},
		RowFields:   []string{"Region"},
		ValueFields: []ValueField{{Field: "Amount", Aggregator: Sum}},
		Filters:     []Filter{{Field: "Product", Include: true, Values: []string{"Widget"}}},
	})

	top := address.Addr{Row: 0, Col: 0}
	if err := p.Refresh(src, dst, top); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Gadget row excluded entirely: East now totals only its Widget rows.
	if got := textAt(t, dst, address.Addr{Row: 1, Col: 1}); got != "30" {
		t.Errorf("East Widget-only total = %q, want 30", got)
	}
}

func TestRefreshClearsCellsDroppedFromOutput(t *testing.T) {
	src := engine.New(20, 20)
	dst := engine.New(20, 20)

	rows := [][2]string{
		{"Region", "Amount"},
		{"East", "10"},
		{"West", "5"},
	}
	for r, row := range rows {
		for c, v := range row {
			_ = src.Set(address.Addr{Row: r, Col: c}, v, "")
		}
	}

	p := New(Config{
		Source:      address.Range{Start: address.Addr{Row: 0, Col: 0}, End: address.Addr{Row: 2, Col: 1}},
		RowFields:   []string{"Region"},
		ValueFields: []ValueField{{Field: "Amount", Aggregator: Sum}},
	})

	top := address.Addr{Row: 0, Col: 0}
	if err := p.Refresh(src, dst, top); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if _, ok := dst.Get(address.Addr{Row: 2, Col: 0}); !ok {
		t.Fatalf("expected West's row to be written")
	}

	// Shrink the source range to drop West's row entirely; the next
	// refresh should clear the cells that output no longer covers.
	p.Config.Source = address.Range{Start: address.Addr{Row: 0, Col: 0}, End: address.Addr{Row: 1, Col: 1}}

	if err := p.Refresh(src, dst, top); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if _, ok := dst.Get(address.Addr{Row: 2, Col: 0}); ok {
		t.Errorf("expected West's former row to be cleared")
	}
	if got := textAt(t, dst, address.Addr{Row: 1, Col: 0}); got != "East" {
		t.Errorf("East's row should remain after shrinking the range, got %q", got)
	}
}

func TestAggregatorEdgeCases(t *testing.T) {
	src := engine.New(10, 10)
	dst := engine.New(10, 10)

	_ = src.Set(address.Addr{Row: 0, Col: 0}, "Group", "")
	_ = src.Set(address.Addr{Row: 0, Col: 1}, "Value", "")
	_ = src.Set(address.Addr{Row: 1, Col: 0}, "A", "")
	_ = src.Set(address.Addr{Row: 1, Col: 1}, "text", "")
	_ = src.Set(address.Addr{Row: 2, Col: 0}, "A", "")
	// Row 2's Value cell is left unset entirely (genuinely empty, not the
	// text "" cell row 1 would produce) so CountA sees exactly one entry.

	cfg := Config{
		Source:    address.Range{Start: address.Addr{Row: 0, Col: 0}, End: address.Addr{Row: 2, Col: 1}},
		RowFields: []string{"Group"},
	}

	for _, tc := range []struct {
		agg  Aggregator
		want string
	}{
		{Min, "0"},
		{Max, "0"},
		{Average, "0"},
		{Product, "1"},
		{Count, "0"},
		{CountA, "1"}, // "text" is non-empty, the unset cell is empty
	} {
		cfg.ValueFields = []ValueField{{Field: "Value", Aggregator: tc.agg}}
		p := New(cfg)
		top := address.Addr{Row: 0, Col: 0}
		if err := p.Refresh(src, dst, top); err != nil {
			t.Fatalf("refresh %s: %v", tc.agg, err)
		}
		if got := textAt(t, dst, address.Addr{Row: 1, Col: 1}); got != tc.want {
			t.Errorf("%s on non-numeric stream = %q, want %q", tc.agg, got, tc.want)
		}
	}
}
