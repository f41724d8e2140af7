// Package server exposes a workbook over a websocket connection: every
// browser tab that connects sees the sheet's full state up front, then a
// stream of cell updates as they happen, and can push its own edits back.
//
// Unlike a design that walks a dependency graph by hand to figure out
// which cells a single edit touched, broadcasting here rides directly on
// an engine's own change events: propagation already knows exactly which
// cells it recalculated, so every affected cell is in the same event that
// triggered it.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/engine"
	"github.com/vimeh/gridcore/workbook"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server serves a workbook's sheets over HTTP/websocket.
type Server struct {
	wb *workbook.Workbook

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// New wires a websocket broadcaster onto every sheet currently in wb.
// Sheets added to wb afterward are not broadcast.
func New(wb *workbook.Workbook) *Server {
	s := &Server{
		wb:      wb,
		clients: make(map[*websocket.Conn]bool),
	}
	for _, sheet := range wb.Sheets() {
		s.attach(sheet)
	}
	return s
}

func (s *Server) attach(sheet *workbook.Sheet) {
	name := sheet.Name
	sheet.Engine.AddListener(func(evt engine.Event) {
		s.broadcastEvent(name, evt)
	})
}

func (s *Server) broadcastEvent(sheetName string, evt engine.Event) {
	msgs := make([]CellMessage, 0, len(evt.Changes))
	for _, c := range evt.Changes {
		msgs = append(msgs, cellMessage(sheetName, c.Addr, c.New))
	}
	s.broadcast(msgs)
}

func (s *Server) broadcast(msgs []CellMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range msgs {
		for conn := range s.clients {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("server: write to client failed: %v", err)
				_ = conn.Close()
				delete(s.clients, conn)
			}
		}
	}
}

// HandleWebSocket upgrades the connection, streams the current state of
// every sheet, then dispatches incoming edit requests until the client
// disconnects.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	s.sendInitialState(conn)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req EditRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			log.Printf("server: malformed request: %v", err)
			continue
		}
		s.handleRequest(req)
	}
}

func (s *Server) sendInitialState(conn *websocket.Conn) {
	for _, sheet := range s.wb.Sheets() {
		for _, addr := range sheet.Engine.NonEmptyCells() {
			rec, ok := sheet.Engine.Get(addr)
			if !ok {
				continue
			}
			msg := CellMessage{
				Type:    "cell",
				Sheet:   sheet.Name,
				Addr:    addr.String(),
				Raw:     rec.Raw,
				Display: displayValue(rec.Computed),
				Error:   rec.Error,
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("server: initial state write failed: %v", err)
				return
			}
		}
	}
}

// EditRequest is the JSON shape a client sends to mutate a sheet.
type EditRequest struct {
	Type    string `json:"type"` // "set", "clear", "undo", "redo"
	Sheet   string `json:"sheet"`
	Addr    string `json:"addr,omitempty"`
	Value   string `json:"value,omitempty"`
	Formula string `json:"formula,omitempty"`
}

// CellMessage is the JSON shape broadcast for one cell's state.
type CellMessage struct {
	Type    string `json:"type"`
	Sheet   string `json:"sheet"`
	Addr    string `json:"addr"`
	Raw     string `json:"raw"`
	Display string `json:"display"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleRequest(req EditRequest) {
	sheet, ok := s.wb.SheetByName(req.Sheet)
	if !ok {
		return
	}

	switch req.Type {
	case "set":
		addr, err := address.ParseAddress(req.Addr)
		if err != nil {
			log.Printf("server: bad address %q: %v", req.Addr, err)
			return
		}
		if err := sheet.Engine.Set(addr, req.Value, req.Formula); err != nil {
			log.Printf("server: set %s!%s failed: %v", req.Sheet, req.Addr, err)
		}
	case "clear":
		addr, err := address.ParseAddress(req.Addr)
		if err != nil {
			log.Printf("server: bad address %q: %v", req.Addr, err)
			return
		}
		if err := sheet.Engine.Clear(addr); err != nil {
			log.Printf("server: clear %s!%s failed: %v", req.Sheet, req.Addr, err)
		}
	case "undo":
		sheet.Engine.Undo()
	case "redo":
		sheet.Engine.Redo()
	}
}

func cellMessage(sheetName string, addr address.Addr, snap engine.CellSnapshot) CellMessage {
	return CellMessage{
		Type:    "cell",
		Sheet:   sheetName,
		Addr:    addr.String(),
		Raw:     snap.Raw,
		Display: displaySnapshot(snap.Computed),
		Error:   snap.Error,
	}
}
