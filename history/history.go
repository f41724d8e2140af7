// Package history implements the undo/redo tree: a manager that records
// engine.State snapshots as nodes with at most one parent and any number of
// children, and navigates current up (undo) and down (redo) that tree.
package history

import (
	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/engine"
)

// DefaultMaxSize is the node cap applied when a Manager is constructed with
// maxSize <= 0.
const DefaultMaxSize = 100

// Node is one snapshot in the history tree.
type Node struct {
	id          int
	parent      *Node
	children    []*Node
	state       engine.State
	description string
}

// Manager owns the history tree for a single engine.
type Manager struct {
	root    *Node
	current *Node
	nodes   map[int]*Node
	nextID  int
	maxSize int
}

// New returns an empty history manager. maxSize <= 0 selects DefaultMaxSize.
func New(maxSize int) *Manager {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Manager{nodes: make(map[int]*Node), maxSize: maxSize}
}

// Record creates a node with parent = current, appends it as a child of
// current (any existing children remain as sibling branches), and makes it
// the new current. The state is deep-cloned so the manager never shares
// memory with the live engine.
func (m *Manager) Record(state engine.State, description string) {
	n := &Node{
		id:          m.nextID,
		parent:      m.current,
		state:       cloneState(state),
		description: description,
	}
	m.nextID++
	m.nodes[n.id] = n
	if m.current != nil {
		m.current.children = append(m.current.children, n)
	}
	if m.root == nil {
		m.root = n
	}
	m.current = n
	m.prune()
}

// Undo moves current to its parent and returns a clone of the parent's
// state. It reports false and leaves current unchanged if current has no
// parent.
func (m *Manager) Undo() (engine.State, bool) {
	if m.current == nil || m.current.parent == nil {
		return engine.State{}, false
	}
	m.current = m.current.parent
	return cloneState(m.current.state), true
}

// Redo moves current to its most-recently-added child and returns a clone
// of its state. It never crosses to a sibling branch; if current has no
// children it reports false.
func (m *Manager) Redo() (engine.State, bool) {
	if m.current == nil || len(m.current.children) == 0 {
		return engine.State{}, false
	}
	m.current = m.current.children[len(m.current.children)-1]
	return cloneState(m.current.state), true
}

// CanUndo reports whether Undo would succeed.
func (m *Manager) CanUndo() bool {
	return m.current != nil && m.current.parent != nil
}

// CanRedo reports whether Redo would succeed.
func (m *Manager) CanRedo() bool {
	return m.current != nil && len(m.current.children) > 0
}

// Clear empties the tree entirely.
func (m *Manager) Clear() {
	m.root = nil
	m.current = nil
	m.nodes = make(map[int]*Node)
	m.nextID = 0
}

// Len reports the number of nodes currently retained.
func (m *Manager) Len() int {
	return len(m.nodes)
}

// prune enforces maxSize by evicting the oldest nodes not on the path from
// current to root. Ancestors of current are never evicted, so undo from the
// current state remains possible no matter how deep the tree has grown.
func (m *Manager) prune() {
	if len(m.nodes) <= m.maxSize {
		return
	}

	onPath := make(map[int]bool)
	for n := m.current; n != nil; n = n.parent {
		onPath[n.id] = true
	}

	type candidate struct {
		id   int
		node *Node
	}
	var candidates []candidate
	for id, n := range m.nodes {
		if !onPath[id] {
			candidates = append(candidates, candidate{id, n})
		}
	}
	// Oldest (lowest id, assigned monotonically at Record time) first.
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].id < candidates[i].id {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}

	excess := len(m.nodes) - m.maxSize
	for i := 0; i < excess && i < len(candidates); i++ {
		m.evict(candidates[i].node)
	}

	if !onPath[m.root.id] {
		m.root = m.earliestSurvivingAncestor()
	}
}

// evict removes n from its parent's child list and from the node index. n
// must not be on the path from current to root.
func (m *Manager) evict(n *Node) {
	if n.parent != nil {
		kept := n.parent.children[:0]
		for _, c := range n.parent.children {
			if c != n {
				kept = append(kept, c)
			}
		}
		n.parent.children = kept
	}
	for _, c := range n.children {
		c.parent = n.parent
		if n.parent != nil {
			n.parent.children = append(n.parent.children, c)
		}
	}
	delete(m.nodes, n.id)
}

// earliestSurvivingAncestor walks up from current to find the new root
// after the old one was evicted: the highest surviving node on the path to
// the (now gone) root.
func (m *Manager) earliestSurvivingAncestor() *Node {
	n := m.current
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// cloneState deep-copies an engine.State so neither the manager nor the
// caller shares memory with the live engine or with other stored snapshots.
func cloneState(s engine.State) engine.State {
	cells := make([]engine.CellState, len(s.Cells))
	for i, c := range s.Cells {
		cells[i] = c
		cells[i].Style = cloneStyle(c.Style)
	}

	deps := make(map[address.Addr][]address.Addr, len(s.Dependencies))
	for k, v := range s.Dependencies {
		cp := make([]address.Addr, len(v))
		copy(cp, v)
		deps[k] = cp
	}

	return engine.State{
		Rows:         s.Rows,
		Cols:         s.Cols,
		Cells:        cells,
		Dependencies: deps,
	}
}

// cloneStyle deep-copies a cell style map; nil stays nil.
func cloneStyle(style map[string]any) map[string]any {
	if style == nil {
		return nil
	}
	out := make(map[string]any, len(style))
	for k, v := range style {
		out[k] = v
	}
	return out
}
