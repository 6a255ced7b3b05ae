package dag

import (
	"context"
	"errors"
	"sync"
)

// Visitation states for the depth-first sort.
const (
	White = iota // not visited
	Gray         // on the recursion stack
	Black        // fully explored
)

var (
	// ErrEmptyID indicates an empty vertex identifier.
	ErrEmptyID = errors.New("dag: vertex ID is empty")

	// ErrVertexNotFound indicates an operation referenced a missing vertex.
	ErrVertexNotFound = errors.New("dag: vertex not found")

	// ErrCycleDetected indicates that an edge would close, or the graph
	// contains, a directed cycle.
	ErrCycleDetected = errors.New("dag: cycle detected")
)

// Tag classifies a dependency edge.
type Tag int

const (
	// Shared marks a reference to a dependency others may also use.
	Shared Tag = iota
	// Owned marks a dependency created for, and private to, the dependent.
	Owned
)

// String returns "shared" or "owned".
func (t Tag) String() string {
	if t == Owned {
		return "owned"
	}

	return "shared"
}

// Graph is a directed graph keyed by string IDs.
//
// out[u][v] and in[v][u] hold the tag of edge u→v. version increases on
// every structural edit so callers can cache derived orders.
type Graph struct {
	mu      sync.RWMutex
	out     map[string]map[string]Tag
	in      map[string]map[string]Tag
	version uint64
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		out: make(map[string]map[string]Tag),
		in:  make(map[string]map[string]Tag),
	}
}

// Option configures TopologicalSort.
type Option func(*options)

type options struct {
	ctx context.Context // allows cancellation; defaults to Background
}

func defaultOptions() options {
	return options{ctx: context.Background()}
}

// WithContext sets the cancellation context. A nil context has no effect.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}
