// Package depgraph tracks formula dependencies between cells and exposes
// the operations the engine needs to detect cycles and order recomputation.
//
// Edges point reader → read_cell ("reader depends on read_cell"). Two
// mirrored graphs are kept: deps (reader → read_cell, the direction above)
// and dependents (read_cell → reader, its transpose), so that both
// direction's neighbor queries are O(degree) rather than requiring a scan.
package depgraph

import (
	"fmt"
	"sort"

	"github.com/katalvlaran/lvlath/core"
	"github.com/vimeh/gridcore/address"
)

// CycleError reports that completing an edge, or ordering a set of cells,
// would close a dependency cycle. Cell identifies the one participant that
// closed the cycle (the back-edge's target); Cells lists every cell on the
// cycle itself, for callers that must mark the whole cycle as faulted.
type CycleError struct {
	Cell  address.Addr
	Cells []address.Addr
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("depgraph: cycle detected at %s", e.Cell)
}

// Graph is the dependency graph for a single sheet's cells.
type Graph struct {
	deps       *core.Graph // reader -> read_cell
	dependents *core.Graph // read_cell -> reader
}

// New returns an empty dependency graph.
func New() *Graph {
	return &Graph{
		deps:       core.NewGraph(core.WithDirected(true)),
		dependents: core.NewGraph(core.WithDirected(true)),
	}
}

func key(a address.Addr) string { return fmt.Sprintf("%d,%d", a.Row, a.Col) }

func parseKey(s string) address.Addr {
	var row, col int
	fmt.Sscanf(s, "%d,%d", &row, &col)
	return address.Addr{Row: row, Col: col}
}

// AddEdge records that reader depends on readCell. Idempotent: adding the
// same edge twice has no additional effect.
func (g *Graph) AddEdge(reader, readCell address.Addr) {
	rk, dk := key(reader), key(readCell)
	if g.deps.HasEdge(rk, dk) {
		return
	}
	_, _ = g.deps.AddEdge(rk, dk, 0)
	_, _ = g.dependents.AddEdge(dk, rk, 0)
}

// ClearFor removes every outgoing edge from cell (every dependency cell
// declares on something else), in preparation for re-parsing its formula.
// It is a no-op if cell has no outgoing edges.
func (g *Graph) ClearFor(cell address.Addr) {
	ck := key(cell)
	neighbors, err := g.deps.Neighbors(ck)
	if err != nil {
		return
	}
	for _, e := range neighbors {
		if e.From != ck {
			continue
		}
		_ = g.deps.RemoveEdge(e.ID)
		if de, err := g.dependents.Neighbors(e.To); err == nil {
			for _, d := range de {
				if d.From == e.To && d.To == ck {
					_ = g.dependents.RemoveEdge(d.ID)
				}
			}
		}
	}
}

// WouldCycle reports whether adding the edge reader -> readCell would close
// a cycle, i.e. whether reader is already reachable from readCell by
// following existing deps edges.
func (g *Graph) WouldCycle(reader, readCell address.Addr) bool {
	target := key(reader)
	start := key(readCell)
	if target == start {
		return true
	}
	visited := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		if cur == target {
			return true
		}
		neighbors, err := g.deps.Neighbors(cur)
		if err != nil {
			continue
		}
		for _, e := range neighborsFrom(neighbors, cur) {
			if !visited[e] {
				stack = append(stack, e)
			}
		}
	}
	return false
}

// neighborsFrom extracts the "to" side of every edge directed out of from,
// sorted for deterministic traversal.
func neighborsFrom(edges []*core.Edge, from string) []string {
	var out []string
	for _, e := range edges {
		if e.From == from {
			out = append(out, e.To)
		}
	}
	sort.Strings(out)
	return out
}

// AffectedClosure returns every cell reachable from seeds by following
// dependents edges, including the seeds themselves.
func (g *Graph) AffectedClosure(seeds []address.Addr) []address.Addr {
	visited := make(map[string]bool)
	order := make([]string, 0)
	var stack []string
	for _, s := range seeds {
		stack = append(stack, key(s))
	}
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		order = append(order, cur)
		neighbors, err := g.dependents.Neighbors(cur)
		if err != nil {
			continue
		}
		for _, e := range neighborsFrom(neighbors, cur) {
			if !visited[e] {
				stack = append(stack, e)
			}
		}
	}
	out := make([]address.Addr, len(order))
	for i, k := range order {
		out[i] = parseKey(k)
	}
	return out
}

// visitState tracks the three-color DFS state used by Order.
type visitState int

const (
	white visitState = iota
	gray
	black
)

// Order returns a topological ordering of cells under the deps edges (reads
// precede readers). A back-edge encountered mid-traversal is a cycle fault;
// Order returns the ordering achieved so far along with a *CycleError
// identifying one participating cell, and the caller is responsible for
// excluding that cell (and retrying without it, if desired).
func (g *Graph) Order(cells []address.Addr) ([]address.Addr, error) {
	state := make(map[string]visitState, len(cells))
	included := make(map[string]bool, len(cells))
	for _, c := range cells {
		included[key(c)] = true
	}

	var out []string
	var cycleAt string
	var pathStack []string

	var visit func(n string) bool
	visit = func(n string) bool {
		state[n] = gray
		pathStack = append(pathStack, n)
		neighbors, err := g.deps.Neighbors(n)
		if err == nil {
			for _, to := range neighborsFrom(neighbors, n) {
				if !included[to] {
					continue
				}
				switch state[to] {
				case gray:
					cycleAt = to
					return false
				case white:
					if !visit(to) {
						return false
					}
				}
			}
		}
		pathStack = pathStack[:len(pathStack)-1]
		state[n] = black
		out = append(out, n)
		return true
	}

	for _, c := range cells {
		k := key(c)
		if state[k] != white {
			continue
		}
		if !visit(k) {
			cycleCells := cycleFromStack(pathStack, cycleAt)
			return addrsOf(out), &CycleError{Cell: parseKey(cycleAt), Cells: addrsOf(cycleCells)}
		}
	}
	return addrsOf(out), nil
}

// cycleFromStack extracts the contiguous segment of the active recursion
// stack from the first occurrence of target to its end: the set of cells
// that form the cycle just detected.
func cycleFromStack(stack []string, target string) []string {
	for i, k := range stack {
		if k == target {
			out := make([]string, len(stack)-i)
			copy(out, stack[i:])
			return out
		}
	}
	return []string{target}
}

func addrsOf(keys []string) []address.Addr {
	out := make([]address.Addr, len(keys))
	for i, k := range keys {
		out[i] = parseKey(k)
	}
	return out
}
