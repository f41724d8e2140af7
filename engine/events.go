package engine

import "github.com/vimeh/gridcore/address"

// EventKind discriminates the two event shapes a listener may receive.
type EventKind int

const (
	// CellChange carries exactly one (addr, old, new) triple.
	CellChange EventKind = iota
	// BatchChange carries one or more triples.
	BatchChange
)

// Change is one cell's before/after snapshot within an Event.
type Change struct {
	Addr address.Addr
	Old  CellSnapshot
	New  CellSnapshot
}

// CellSnapshot is an immutable copy of a cell record, safe to hand to a
// listener without risking a view into live engine state.
type CellSnapshot struct {
	Present  bool
	Raw      string
	Formula  string
	Computed ValueSnapshot
	Error    string
}

// ValueSnapshot mirrors grid.Value without importing the grid package's
// mutable Record, so event payloads never alias engine-owned memory.
type ValueSnapshot struct {
	Kind    int
	Number  float64
	Text    string
	Boolean bool
	Err     string
}

// Event is delivered synchronously to every registered Listener.
type Event struct {
	Kind    EventKind
	Changes []Change
}

// Listener receives engine events. A listener must not panic; the engine
// recovers from one and continues dispatching to the rest, but the
// triggering listener's remaining work for that event is lost.
type Listener func(Event)

// ListenerHandle identifies a registered listener for later removal.
type ListenerHandle int
