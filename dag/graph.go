package dag

import (
	"fmt"
	"sort"
)

// Version returns a counter that changes on every structural edit.
func (g *Graph) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.version
}

// AddVertex inserts id; adding an existing vertex is a no-op.
func (g *Graph) AddVertex(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.out[id]; ok {
		return nil
	}
	g.out[id] = make(map[string]Tag)
	g.in[id] = make(map[string]Tag)
	g.version++

	return nil
}

// HasVertex reports whether id exists.
func (g *Graph) HasVertex(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.out[id]

	return ok
}

// Vertices returns all vertex IDs in sorted order.
func (g *Graph) Vertices() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return sortedKeys(g.out)
}

// AddEdge records that to depends on from. Re-adding an edge updates its tag.
// An edge that would close a cycle (including a self-loop) fails with
// ErrCycleDetected and leaves the graph unchanged.
func (g *Graph) AddEdge(from, to string, tag Tag) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.out[from]; !ok {
		return fmt.Errorf("AddEdge(%q, %q): %w", from, to, ErrVertexNotFound)
	}
	if _, ok := g.out[to]; !ok {
		return fmt.Errorf("AddEdge(%q, %q): %w", from, to, ErrVertexNotFound)
	}
	if from == to || g.reachableLocked(to)[from] {
		return fmt.Errorf("AddEdge(%q, %q): %w", from, to, ErrCycleDetected)
	}
	g.out[from][to] = tag
	g.in[to][from] = tag
	g.version++

	return nil
}

// SetDependencies atomically replaces every incoming edge of to with deps.
// Either all edges are installed or, on error, none change.
func (g *Graph) SetDependencies(to string, deps map[string]Tag) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// 1. Validate endpoints
	if _, ok := g.out[to]; !ok {
		return fmt.Errorf("SetDependencies(%q): %w", to, ErrVertexNotFound)
	}
	for from := range deps {
		if _, ok := g.out[from]; !ok {
			return fmt.Errorf("SetDependencies(%q): dependency %q: %w", to, from, ErrVertexNotFound)
		}
	}
	// 2. A cycle closes iff some new dependency is to itself or reachable from to
	down := g.reachableLocked(to)
	for from := range deps {
		if from == to || down[from] {
			return fmt.Errorf("SetDependencies(%q): %q depends on it: %w", to, from, ErrCycleDetected)
		}
	}
	// 3. Swap incoming edges
	for from := range g.in[to] {
		delete(g.out[from], to)
	}
	g.in[to] = make(map[string]Tag, len(deps))
	for from, tag := range deps {
		g.in[to][from] = tag
		g.out[from][to] = tag
	}
	g.version++

	return nil
}

// RemoveVertex deletes id and every edge touching it.
func (g *Graph) RemoveVertex(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.out[id]; !ok {
		return fmt.Errorf("RemoveVertex(%q): %w", id, ErrVertexNotFound)
	}
	for to := range g.out[id] {
		delete(g.in[to], id)
	}
	for from := range g.in[id] {
		delete(g.out[from], id)
	}
	delete(g.out, id)
	delete(g.in, id)
	g.version++

	return nil
}

// Dependencies returns a copy of id's incoming edges (its dependencies).
func (g *Graph) Dependencies(id string) map[string]Tag {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]Tag, len(g.in[id]))
	for k, v := range g.in[id] {
		out[k] = v
	}

	return out
}

// Predecessors returns id's dependencies in sorted order.
func (g *Graph) Predecessors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return sortedKeys(g.in[id])
}

// Successors returns id's direct dependents in sorted order.
func (g *Graph) Successors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return sortedKeys(g.out[id])
}

// Edge returns the tag of from→to.
func (g *Graph) Edge(from, to string) (Tag, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.out[from][to]

	return t, ok
}

// Reachable returns every transitive dependent of from, sorted.
func (g *Graph) Reachable(from string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := g.reachableLocked(from)
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)

	return out
}

// WouldCycle reports whether adding from→to would close a cycle.
func (g *Graph) WouldCycle(from, to string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return from == to || g.reachableLocked(to)[from]
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c := New()
	for id, m := range g.out {
		c.out[id] = make(map[string]Tag, len(m))
		for k, v := range m {
			c.out[id][k] = v
		}
	}
	for id, m := range g.in {
		c.in[id] = make(map[string]Tag, len(m))
		for k, v := range m {
			c.in[id][k] = v
		}
	}
	c.version = g.version

	return c
}

// reachableLocked collects the transitive successors of from, excluding from
// itself unless it lies on a cycle. Caller holds the lock.
func (g *Graph) reachableLocked(from string) map[string]bool {
	seen := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for to := range g.out[id] {
			if !seen[to] {
				seen[to] = true
				stack = append(stack, to)
			}
		}
	}

	return seen
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)

	return out
}
