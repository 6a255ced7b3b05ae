package dag_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/lvfit/dag"
)

func build(t *testing.T, edges [][2]string, verts ...string) *dag.Graph {
	t.Helper()
	g := dag.New()
	for _, v := range verts {
		require.NoError(t, g.AddVertex(v))
	}
	for _, e := range edges {
		require.NoError(t, g.AddVertex(e[0]))
		require.NoError(t, g.AddVertex(e[1]))
		require.NoError(t, g.AddEdge(e[0], e[1], dag.Shared))
	}

	return g
}

// TestTopologicalSort_Order verifies dependencies precede dependents and
// independent vertices come out by ID.
func TestTopologicalSort_Order(t *testing.T) {
	g := build(t, [][2]string{{"a", "c"}, {"b", "c"}, {"c", "d"}}, "z", "e")
	order, err := dag.TopologicalSort(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "z"}, order)
}

// TestAddEdge_RejectsCycle verifies that a cycle-closing edge leaves the graph unchanged.
func TestAddEdge_RejectsCycle(t *testing.T) {
	g := build(t, [][2]string{{"a", "b"}, {"b", "c"}})
	v := g.Version()

	err := g.AddEdge("c", "a", dag.Shared)
	assert.True(t, errors.Is(err, dag.ErrCycleDetected))
	assert.True(t, errors.Is(g.AddEdge("a", "a", dag.Shared), dag.ErrCycleDetected))
	assert.Equal(t, v, g.Version())
	assert.Empty(t, g.Predecessors("a"))
	assert.True(t, g.WouldCycle("c", "a"))
	assert.False(t, g.WouldCycle("a", "c"))
}

// TestSetDependencies_Atomic verifies replacement of incoming edges.
func TestSetDependencies_Atomic(t *testing.T) {
	g := build(t, [][2]string{{"a", "c"}, {"b", "c"}}, "d")
	require.NoError(t, g.SetDependencies("c", map[string]dag.Tag{"d": dag.Owned}))
	assert.Equal(t, []string{"d"}, g.Predecessors("c"))
	assert.Empty(t, g.Successors("a"))
	tag, ok := g.Edge("d", "c")
	require.True(t, ok)
	assert.Equal(t, dag.Owned, tag)

	err := g.SetDependencies("d", map[string]dag.Tag{"a": dag.Shared, "c": dag.Shared})
	assert.True(t, errors.Is(err, dag.ErrCycleDetected))
	assert.Empty(t, g.Predecessors("d"))

	err = g.SetDependencies("d", map[string]dag.Tag{"nope": dag.Shared})
	assert.True(t, errors.Is(err, dag.ErrVertexNotFound))
}

// TestReachable verifies transitive dependents.
func TestReachable(t *testing.T) {
	g := build(t, [][2]string{{"a", "b"}, {"b", "c"}, {"a", "d"}, {"e", "c"}})
	assert.Equal(t, []string{"b", "c", "d"}, g.Reachable("a"))
	assert.Empty(t, g.Reachable("c"))
}

// TestRemoveVertex verifies edges are dropped with the vertex.
func TestRemoveVertex(t *testing.T) {
	g := build(t, [][2]string{{"a", "b"}, {"b", "c"}})
	require.NoError(t, g.RemoveVertex("b"))
	assert.False(t, g.HasVertex("b"))
	assert.Empty(t, g.Successors("a"))
	assert.Empty(t, g.Predecessors("c"))
	assert.True(t, errors.Is(g.RemoveVertex("b"), dag.ErrVertexNotFound))
	assert.True(t, errors.Is(g.AddVertex(""), dag.ErrEmptyID))
}

// TestClone_Independent verifies that a clone does not share storage.
func TestClone_Independent(t *testing.T) {
	g := build(t, [][2]string{{"a", "b"}})
	c := g.Clone()
	require.NoError(t, c.RemoveVertex("a"))
	assert.True(t, g.HasVertex("a"))
	assert.Equal(t, []string{"a"}, g.Predecessors("b"))
}

// TestTopologicalSort_Cancelled verifies context cancellation.
func TestTopologicalSort_Cancelled(t *testing.T) {
	g := build(t, [][2]string{{"a", "b"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := dag.TopologicalSort(g, dag.WithContext(ctx))
	assert.True(t, errors.Is(err, context.Canceled))
}

// TestVertices_Sorted verifies vertex listing is ordered by ID regardless
// of insertion order.
func TestVertices_Sorted(t *testing.T) {
	g := build(t, [][2]string{{"m", "b"}}, "z", "a")
	assert.Equal(t, []string{"a", "b", "m", "z"}, g.Vertices())
	assert.Equal(t, []string{"b"}, g.Successors("m"))
	assert.Equal(t, []string{"m"}, g.Predecessors("b"))
}
