// Package replcli implements an interactive command shell over a
// workbook: cell assignments and a handful of ":"-prefixed commands for
// navigating sheets and the undo/redo history.
package replcli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/engine"
	"github.com/vimeh/gridcore/grid"
	"github.com/vimeh/gridcore/workbook"
)

const (
	prompt = "gridcore> "
)

type scannerResult struct {
	line string
	ok   bool
}

// Start begins a REPL session against wb, reading from in and writing
// prompts and output to out. It returns once the session ends (:quit, a
// closed input stream, or Ctrl+D/Ctrl+C on a raw terminal).
func Start(in io.Reader, out io.Writer, wb *workbook.Workbook) {
	var (
		scanCh chan scannerResult
		tty    *ttyInput
	)
	if ti, ok := newTTYInput(in, out); ok {
		tty = ti
		defer tty.Close()
	} else {
		scanner := bufio.NewScanner(in)
		scanCh = make(chan scannerResult)
		go scanInput(scanner, scanCh)
	}

	fmt.Fprintln(out, "gridcore interactive shell")
	fmt.Fprintln(out, "Enter A1=10 or B1==A1*2 to set a cell, a bare A1 to read one.")
	fmt.Fprintln(out, "Commands: :help :sheets :use <name> :undo :redo :clear <cell> :quit")
	fmt.Fprintln(out)

	for {
		var (
			line string
			ok   bool
		)
		if tty != nil {
			line, ok = tty.readLine(prompt)
		} else {
			fmt.Fprint(out, prompt)
			res, chOk := <-scanCh
			line, ok = res.line, chOk && res.ok
		}
		if !ok {
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ":") {
			if handleCommand(line, out, wb) {
				return
			}
			continue
		}

		if err := evalLine(line, wb); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printLine(out, line, wb)
	}
}

// evalLine applies one "<cell>" or "<cell>=<value>" input line to the
// workbook's active sheet.
func evalLine(line string, wb *workbook.Workbook) error {
	sheet, ok := wb.ActiveSheet()
	if !ok {
		return fmt.Errorf("no active sheet")
	}

	ref, value, hasValue := strings.Cut(line, "=")
	ref = strings.TrimSpace(ref)
	addr, err := address.ParseAddress(ref)
	if err != nil {
		return err
	}
	if !hasValue {
		return nil // a bare reference just reads; printLine shows it.
	}

	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "=") {
		// Formula: raw and formula both hold the verbatim "= ..." text.
		return sheet.Engine.Set(addr, value, value)
	}
	return sheet.Engine.Set(addr, value, "")
}

// printLine shows the cell referenced by a successfully evaluated line.
func printLine(out io.Writer, line string, wb *workbook.Workbook) {
	sheet, ok := wb.ActiveSheet()
	if !ok {
		return
	}
	ref, _, _ := strings.Cut(line, "=")
	addr, err := address.ParseAddress(strings.TrimSpace(ref))
	if err != nil {
		return
	}
	fmt.Fprintf(out, "%s = %s\n", addr.String(), formatCell(sheet.Engine, addr))
}

func formatCell(e *engine.Engine, addr address.Addr) string {
	rec, ok := e.Get(addr)
	if !ok {
		return "(empty)"
	}
	if rec.Error != "" {
		return rec.Error
	}
	return formatValue(rec.Computed)
}

func formatValue(v grid.Value) string {
	switch v.Kind {
	case grid.KindNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case grid.KindText:
		return v.Text
	case grid.KindBoolean:
		if v.Boolean {
			return "TRUE"
		}
		return "FALSE"
	case grid.KindError:
		return v.Err
	default:
		return ""
	}
}

// handleCommand processes a ":"-prefixed command; it returns true if the
// session should end.
func handleCommand(cmd string, out io.Writer, wb *workbook.Workbook) bool {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case ":quit", ":q", ":exit":
		fmt.Fprintln(out, "bye")
		return true

	case ":help", ":h":
		fmt.Fprintln(out, "Commands:")
		fmt.Fprintln(out, "  :sheets            list sheets, marking the active one")
		fmt.Fprintln(out, "  :use <name>        switch the active sheet")
		fmt.Fprintln(out, "  :undo / :redo      step through undo history")
		fmt.Fprintln(out, "  :clear <cell>      clear one cell")
		fmt.Fprintln(out, "  :quit              exit")

	case ":sheets":
		for _, s := range wb.Sheets() {
			marker := " "
			if active, ok := wb.ActiveSheet(); ok && active.ID == s.ID {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n", marker, s.Name)
		}

	case ":use":
		if len(fields) < 2 {
			fmt.Fprintln(out, "usage: :use <name>")
			break
		}
		s, ok := wb.SheetByName(strings.Join(fields[1:], " "))
		if !ok {
			fmt.Fprintf(out, "no such sheet: %s\n", strings.Join(fields[1:], " "))
			break
		}
		wb.SetActiveSheet(s.ID)

	case ":undo":
		sheet, ok := wb.ActiveSheet()
		if ok && sheet.Engine.Undo() {
			fmt.Fprintln(out, "undone")
		} else {
			fmt.Fprintln(out, "nothing to undo")
		}

	case ":redo":
		sheet, ok := wb.ActiveSheet()
		if ok && sheet.Engine.Redo() {
			fmt.Fprintln(out, "redone")
		} else {
			fmt.Fprintln(out, "nothing to redo")
		}

	case ":clear":
		if len(fields) < 2 {
			fmt.Fprintln(out, "usage: :clear <cell>")
			break
		}
		sheet, ok := wb.ActiveSheet()
		if !ok {
			break
		}
		addr, err := address.ParseAddress(fields[1])
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			break
		}
		if err := sheet.Engine.Clear(addr); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}

	default:
		fmt.Fprintf(out, "unknown command: %s (try :help)\n", fields[0])
	}
	return false
}

func scanInput(scanner *bufio.Scanner, out chan<- scannerResult) {
	defer close(out)
	for scanner.Scan() {
		out <- scannerResult{line: scanner.Text(), ok: true}
	}
}
