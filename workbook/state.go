package workbook

import (
	"fmt"

	"github.com/vimeh/gridcore/engine"
)

// SheetState is the serializable form of one sheet: its identity plus a
// full engine.State for its data.
type SheetState struct {
	ID     string
	Name   string
	Hidden bool
	Data   engine.State
}

// ToStateOptions controls what ToState includes.
type ToStateOptions struct {
	IncludeHiddenSheets bool
	IncludeMetadata     bool
}

// WorkbookState is a complete, self-contained snapshot of a workbook.
type WorkbookState struct {
	Rows, Cols int
	Sheets     []SheetState
	ActiveID   string
	Metadata   map[string]string
}

// ToState captures every sheet's data (respecting IncludeHiddenSheets) and,
// if requested, the workbook's metadata. Cross-sheet edges are not part of
// the snapshot: FromState rebuilds them by replaying every formula cell
// once all sheets exist.
func (w *Workbook) ToState(opts ToStateOptions) WorkbookState {
	w.mu.Lock()
	sheets := make([]*Sheet, len(w.sheets))
	copy(sheets, w.sheets)
	active := w.activeID
	rows, cols := w.rows, w.cols
	var meta map[string]string
	if opts.IncludeMetadata {
		meta = make(map[string]string, len(w.metadata))
		for k, v := range w.metadata {
			meta[k] = v
		}
	}
	w.mu.Unlock()

	out := WorkbookState{Rows: rows, Cols: cols, ActiveID: active, Metadata: meta}
	for _, s := range sheets {
		if s.Hidden && !opts.IncludeHiddenSheets {
			continue
		}
		out.Sheets = append(out.Sheets, SheetState{ID: s.ID, Name: s.Name, Hidden: s.Hidden, Data: s.Engine.ToState()})
	}
	return out
}

// FromState rebuilds a workbook from a snapshot: every sheet's engine is
// restored first, then every formula cell is replayed through set() once
// all sheets exist, so cross-sheet references re-resolve and the
// cross-sheet side-table repopulates.
func FromState(s WorkbookState) *Workbook {
	w := New(s.Rows, s.Cols)

	w.mu.Lock()
	for _, ss := range s.Sheets {
		sheet := &Sheet{ID: ss.ID, Name: ss.Name, Hidden: ss.Hidden, Engine: engine.FromState(ss.Data)}
		w.wireSheet(sheet)
		w.sheets = append(w.sheets, sheet)
		w.byID[ss.ID] = sheet
	}
	w.activeID = s.ActiveID
	if _, ok := w.byID[w.activeID]; !ok && len(w.sheets) > 0 {
		w.activeID = w.sheets[0].ID
	}
	for k, v := range s.Metadata {
		w.metadata[k] = v
	}
	w.nextID = nextIDAfter(s.Sheets)
	w.mu.Unlock()

	for _, sheet := range w.sheets {
		w.attachCrossSheetListener(sheet)
	}
	for _, sheet := range w.sheets {
		for _, cell := range sheet.Engine.ToState().Cells {
			if cell.Formula != "" {
				_ = sheet.Engine.Set(cell.Addr, cell.Raw, cell.Formula)
			}
		}
	}
	return w
}

// nextIDAfter returns one past the highest "sheet-N" suffix found among
// states, so a workbook rebuilt from a snapshot never reissues an id
// already in use.
func nextIDAfter(states []SheetState) int {
	max := -1
	for _, s := range states {
		var n int
		if _, err := fmt.Sscanf(s.ID, "sheet-%d", &n); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}
