package dag

// topoSorter encapsulates state for a topological sort traversal.
type topoSorter struct {
	graph *Graph
	opts  options
	state map[string]int // White, Gray, Black
	order []string       // post-order sequence
}

// TopologicalSort returns the vertices of g ordered so that every vertex
// follows all of its dependencies. Ties are broken by ID, so the order is
// deterministic. A cycle yields ErrCycleDetected; a cancelled context yields
// its error.
func TopologicalSort(g *Graph, opts ...Option) ([]string, error) {
	// 1. Apply optional settings
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	// 2. Hold a read lock for a consistent snapshot
	g.mu.RLock()
	defer g.mu.RUnlock()
	verts := sortedKeys(g.out)
	t := &topoSorter{
		graph: g,
		opts:  o,
		state: make(map[string]int, len(verts)),
		order: make([]string, 0, len(verts)),
	}
	// 3. Drive DFS from every unvisited vertex, in reverse ID order so the
	//    reversed post-order lists independent vertices by ascending ID
	for i := len(verts) - 1; i >= 0; i-- {
		if t.state[verts[i]] == White {
			if err := t.visit(verts[i]); err != nil {
				return nil, err
			}
		}
	}
	// 4. Reverse post-order
	for i, j := 0, len(t.order)-1; i < j; i, j = i+1, j-1 {
		t.order[i], t.order[j] = t.order[j], t.order[i]
	}

	return t.order, nil
}

// visit performs a DFS from id, marking states and detecting cycles.
func (t *topoSorter) visit(id string) error {
	// 1. Cancellation check at entry
	select {
	case <-t.opts.ctx.Done():
		return t.opts.ctx.Err()
	default:
	}
	// 2. Back-edge means a cycle
	if t.state[id] == Gray {
		return ErrCycleDetected
	}
	if t.state[id] == Black {
		return nil
	}
	t.state[id] = Gray
	// 3. Explore dependents, highest ID first (see TopologicalSort)
	next := sortedKeys(t.graph.out[id])
	for i := len(next) - 1; i >= 0; i-- {
		if err := t.visit(next[i]); err != nil {
			return err
		}
	}
	// 4. Done: record post-order
	t.state[id] = Black
	t.order = append(t.order, id)

	return nil
}
