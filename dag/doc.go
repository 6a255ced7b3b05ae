// Package dag provides a small string-keyed directed graph for dependency
// tracking, with tagged edges and a cancellable topological sort.
//
// An edge u→v means "v depends on u", so a topological order lists every
// vertex after all of its dependencies. Each edge carries a Tag that records
// whether the dependent shares the dependency with others (Shared) or owns
// a private copy of it (Owned).
//
// The graph rejects edits that would close a cycle; TopologicalSort still
// reports ErrCycleDetected for completeness. All methods are safe for
// concurrent use (sync.RWMutex).
//
// Complexity:
//
//   - AddEdge:          O(V + E) (reachability check)
//   - TopologicalSort:  O(V + E)
//   - Reachable:        O(V + E)
package dag
