package vars_test

import (
	"errors"
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/lvfit/dag"
	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
	"github.com/katalvlaran/lvfit/vars"
)

func dom(lo, hi float64) *vars.Domain { return &vars.Domain{Lo: lo, Hi: hi} }

func value(t *testing.T, g *vars.Graph, name string) float64 {
	t.Helper()
	v, err := g.Value(name)
	require.NoError(t, err)

	return v
}

// TestAssign_DomainRejection verifies that out-of-domain assignments fail
// with ErrDomain and keep the prior value.
func TestAssign_DomainRejection(t *testing.T) {
	g := vars.New()
	require.NoError(t, g.DeclareSimple("a", 5, true, dom(0, 10)))

	for _, v := range []float64{-0.1, 10.5, math.Inf(1)} {
		err := g.Assign("a", v)
		assert.True(t, errors.Is(err, errs.ErrDomain), "v=%g", v)
		assert.Equal(t, 5.0, value(t, g, "a"))
	}
	require.NoError(t, g.Assign("a", 10))
	assert.Equal(t, 10.0, value(t, g, "a"))

	// Redefinition without a domain keeps the declared one.
	err := g.DeclareSimple("a", 12, true, nil)
	assert.True(t, errors.Is(err, errs.ErrDomain))
	assert.Equal(t, 10.0, value(t, g, "a"))

	assert.True(t, errors.Is(g.DeclareSimple("b", 3, true, dom(4, 5)), errs.ErrDomain))
	assert.False(t, g.Has("b"))
}

// TestCompound_LazyRecompute verifies compound values follow their inputs.
func TestCompound_LazyRecompute(t *testing.T) {
	g := vars.New()
	require.NoError(t, g.DeclareSimple("a", 2, true, nil))
	require.NoError(t, g.DeclareSimple("b", 3, false, nil))
	require.NoError(t, g.DeclareCompound("c", expr.MustParse("$a*$b + 1")))
	require.NoError(t, g.DeclareCompound("d", expr.MustParse("$c^2")))
	assert.Equal(t, 49.0, value(t, g, "d"))

	require.NoError(t, g.Assign("a", 1))
	assert.Equal(t, 16.0, value(t, g, "d"))

	grad, err := g.Gradient("d")
	require.NoError(t, err)
	// d = (ab+1)^2; ∂d/∂a = 2(ab+1)b, ∂d/∂b = 2(ab+1)a
	assert.InDelta(t, 24, grad["a"], 1e-12)
	assert.InDelta(t, 8, grad["b"], 1e-12)

	d, err := g.Dual("d", map[string]int{"a": 0})
	require.NoError(t, err)
	assert.InDelta(t, 24, d.Partial(0), 1e-12)
	assert.Len(t, d.D, 1)
}

// TestCompound_Errors verifies reference and evaluation errors leave the
// graph unchanged.
func TestCompound_Errors(t *testing.T) {
	g := vars.New()
	require.NoError(t, g.DeclareSimple("a", 2, true, nil))
	require.NoError(t, g.DeclareCompound("b", expr.MustParse("$a + 1")))

	err := g.DeclareCompound("a", expr.MustParse("$b*2"))
	assert.True(t, errors.Is(err, errs.ErrReference))
	v, err := g.Get("a")
	require.NoError(t, err)
	assert.Equal(t, vars.Simple, v.Kind)

	assert.True(t, errors.Is(g.DeclareCompound("c", expr.MustParse("$nope")), errs.ErrEvaluation))
	assert.True(t, errors.Is(g.DeclareCompound("c", expr.MustParse("x + $a")), errs.ErrEvaluation))
	assert.True(t, errors.Is(g.DeclareCompound("b", expr.MustParse("$b + 1")), errs.ErrReference))
	assert.True(t, errors.Is(g.Assign("b", 3), errs.ErrEvaluation))
	assert.True(t, errors.Is(g.SetDomain("b", dom(0, 1)), errs.ErrDomain))
	assert.False(t, g.Has("c"))
	assert.Equal(t, 3.0, value(t, g, "b"))
}

// TestDelete_Reference verifies that used variables cannot be deleted.
func TestDelete_Reference(t *testing.T) {
	g := vars.New()
	require.NoError(t, g.DeclareSimple("a", 1, true, nil))
	require.NoError(t, g.DeclareCompound("b", expr.MustParse("2*$a")))
	assert.True(t, errors.Is(g.Delete("a"), errs.ErrReference))

	require.NoError(t, g.Attach("%f", map[string]dag.Tag{"b": dag.Shared}))
	assert.True(t, errors.Is(g.Delete("b"), errs.ErrReference))
	g.Detach("%f")
	require.NoError(t, g.Delete("b"))
	require.NoError(t, g.Delete("a"))
	assert.Empty(t, g.Names())
}

// TestCopy_Independence verifies copies never observe edits on the source.
func TestCopy_Independence(t *testing.T) {
	g := vars.New()
	require.NoError(t, g.DeclareSimple("a", 2, true, dom(0, 5)))
	require.NoError(t, g.DeclareCompound("b", expr.MustParse("$a*3")))

	require.NoError(t, g.Copy("c", "b"))
	require.NoError(t, g.Copy("s", "a"))
	assert.Equal(t, 6.0, value(t, g, "c"))

	require.NoError(t, g.Assign("a", 4))
	assert.Equal(t, 12.0, value(t, g, "b"))
	assert.Equal(t, 6.0, value(t, g, "c"))
	assert.Equal(t, 2.0, value(t, g, "s"))

	s, err := g.Get("s")
	require.NoError(t, err)
	require.NotNil(t, s.Domain)
	assert.Equal(t, vars.Domain{Lo: 0, Hi: 5}, *s.Domain)
	assert.True(t, s.Free)

	// c owns a private copy of a
	c, err := g.Get("c")
	require.NoError(t, err)
	require.Len(t, c.Deps, 1)
	assert.True(t, vars.IsAuto(c.Deps[0]))
	assert.Equal(t, map[string]dag.Tag{c.Deps[0]: dag.Owned}, g.Edges("c"))
	require.NoError(t, g.Assign(c.Deps[0], 1))
	assert.Equal(t, 3.0, value(t, g, "c"))
	assert.Equal(t, 4.0, value(t, g, "a"))
}

// TestCopy_ReplacesDomain verifies copying onto an existing variable
// installs the source's domain, including no domain at all.
func TestCopy_ReplacesDomain(t *testing.T) {
	g := vars.New()
	require.NoError(t, g.DeclareSimple("b", 0.5, true, dom(0, 1)))
	require.NoError(t, g.DeclareSimple("a", 0.7, true, nil))
	require.NoError(t, g.Copy("b", "a"))
	b, err := g.Get("b")
	require.NoError(t, err)
	assert.Nil(t, b.Domain)
	assert.Equal(t, 0.7, b.Value)

	// outside b's former [0:1]
	require.NoError(t, g.DeclareSimple("b", 0.5, true, dom(0, 1)))
	require.NoError(t, g.DeclareSimple("c", 5, true, nil))
	require.NoError(t, g.Copy("b", "c"))
	assert.Equal(t, 5.0, value(t, g, "b"))

	require.NoError(t, g.DeclareSimple("d", 3, true, dom(2, 4)))
	require.NoError(t, g.Copy("b", "d"))
	b, err = g.Get("b")
	require.NoError(t, err)
	require.NotNil(t, b.Domain)
	assert.Equal(t, vars.Domain{Lo: 2, Hi: 4}, *b.Domain)

	// plain redefinition still keeps the declared bound
	assert.True(t, errors.Is(g.DeclareSimple("b", 9, true, nil), errs.ErrDomain))
}

// TestAlias_Shared verifies aliases follow the source until redefined.
func TestAlias_Shared(t *testing.T) {
	g := vars.New()
	require.NoError(t, g.DeclareSimple("a", 1, true, nil))
	require.NoError(t, g.Alias("b", "a"))
	require.NoError(t, g.Assign("a", 7))
	assert.Equal(t, 7.0, value(t, g, "b"))
	assert.Equal(t, map[string]dag.Tag{"a": dag.Shared}, g.Edges("b"))

	require.NoError(t, g.DeclareSimple("b", 0, true, nil))
	require.NoError(t, g.Assign("a", 8))
	assert.Equal(t, 0.0, value(t, g, "b"))
	assert.True(t, errors.Is(g.Alias("a", "a"), errs.ErrReference))
}

// TestAutoNames verifies _N generation skips explicitly declared names.
func TestAutoNames(t *testing.T) {
	g := vars.New()
	require.NoError(t, g.DeclareSimple("_3", 1, true, nil))
	n, err := g.NewAuto(2, true, nil)
	require.NoError(t, err)
	assert.Equal(t, "_4", n)

	pruned := g.Prune()
	sort.Strings(pruned)
	assert.Equal(t, []string{"_3", "_4"}, pruned)
}

// TestPrune_KeepsUsed verifies pruning only drops unreferenced auto variables.
func TestPrune_KeepsUsed(t *testing.T) {
	g := vars.New()
	a, err := g.NewAuto(1, true, nil)
	require.NoError(t, err)
	b, err := g.NewAutoCompound(&expr.VarRef{Name: a})
	require.NoError(t, err)
	require.NoError(t, g.Attach("%f", map[string]dag.Tag{b: dag.Owned}))
	assert.Empty(t, g.Prune())

	g.Detach("%f")
	assert.Len(t, g.Prune(), 2)
	assert.Empty(t, g.Names())
}

// TestAssignAll_Atomic verifies all-or-nothing assignment.
func TestAssignAll_Atomic(t *testing.T) {
	g := vars.New()
	require.NoError(t, g.DeclareSimple("a", 1, true, nil))
	require.NoError(t, g.DeclareSimple("b", 1, true, dom(0, 2)))
	require.NoError(t, g.DeclareCompound("c", expr.MustParse("$a + $b")))

	err := g.AssignAll([]string{"a", "b"}, []float64{5, 3})
	assert.True(t, errors.Is(err, errs.ErrDomain))
	assert.Equal(t, 1.0, value(t, g, "a"))

	require.NoError(t, g.AssignAll([]string{"a", "b"}, []float64{5, 2}))
	assert.Equal(t, 7.0, value(t, g, "c"))

	snap := g.Snapshot()
	require.NoError(t, g.Assign("a", 0))
	g.Restore(snap)
	assert.Equal(t, 7.0, value(t, g, "c"))
}

// TestOrdered_Definitions verifies dependency order and rendered definitions.
func TestOrdered_Definitions(t *testing.T) {
	g := vars.New()
	require.NoError(t, g.DeclareSimple("z", -1.5, true, dom(math.Inf(-1), 0)))
	require.NoError(t, g.DeclareCompound("a", expr.MustParse("$z*2")))
	require.NoError(t, g.DeclareSimple("m", 3, false, nil))

	order, err := g.Ordered()
	require.NoError(t, err)
	assert.Equal(t, []string{"m", "z", "a"}, order)

	def, err := g.Definition("z")
	require.NoError(t, err)
	assert.Equal(t, "~-1.5 [:0]", def)
	def, err = g.Definition("a")
	require.NoError(t, err)
	assert.Equal(t, "$z*2", def)
	def, err = g.Definition("m")
	require.NoError(t, err)
	assert.Equal(t, "3", def)
}

// TestStdErr_Propagation verifies linear error propagation to compounds.
func TestStdErr_Propagation(t *testing.T) {
	g := vars.New()
	require.NoError(t, g.DeclareSimple("a", 1, true, nil))
	require.NoError(t, g.DeclareCompound("b", expr.MustParse("3*$a")))
	_, ok := g.StdErr("a")
	assert.False(t, ok)

	g.SetStdErr("a", 0.5)
	se, ok := g.StdErr("b")
	require.True(t, ok)
	assert.InDelta(t, 1.5, se, 1e-12)
}

// TestVariation verifies the search range used by simplex and genetic fits.
func TestVariation(t *testing.T) {
	g := vars.New()
	require.NoError(t, g.DeclareSimple("a", 10, true, nil))
	require.NoError(t, g.DeclareSimple("b", 1, true, dom(0, 4)))
	require.NoError(t, g.DeclareSimple("c", 0, true, nil))

	lo, hi, err := g.Variation("a", 30)
	require.NoError(t, err)
	assert.InDelta(t, 7, lo, 1e-12)
	assert.InDelta(t, 13, hi, 1e-12)
	lo, hi, err = g.Variation("b", 30)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 4}, []float64{lo, hi})
	lo, hi, err = g.Variation("c", 30)
	require.NoError(t, err)
	assert.InDelta(t, -0.3, lo, 1e-12)
	assert.InDelta(t, 0.3, hi, 1e-12)
}

// TestFreeParams verifies free-parameter discovery through compounds.
func TestFreeParams(t *testing.T) {
	g := vars.New()
	require.NoError(t, g.DeclareSimple("a", 1, true, nil))
	require.NoError(t, g.DeclareSimple("b", 1, false, nil))
	require.NoError(t, g.DeclareSimple("u", 1, true, nil))
	require.NoError(t, g.DeclareCompound("c", expr.MustParse("$a + $b")))
	require.NoError(t, g.Attach("%f", map[string]dag.Tag{"c": dag.Shared}))

	assert.Equal(t, []string{"a", "b"}, g.SimpleRoots("%f"))
	assert.Equal(t, []string{"a"}, g.FreeParams("%f"))
	assert.Equal(t, []string{"a", "u"}, g.FreeParams())
}

// TestConcurrentReads verifies the lazy cache is safe under concurrent reads.
func TestConcurrentReads(t *testing.T) {
	g := vars.New()
	require.NoError(t, g.DeclareSimple("a", 2, true, nil))
	require.NoError(t, g.DeclareCompound("b", expr.MustParse("$a^3")))
	require.NoError(t, g.Assign("a", 3))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := g.Value("b")
			assert.NoError(t, err)
			assert.Equal(t, 27.0, v)
		}()
	}
	wg.Wait()
}

// TestTrial verifies evaluation at trial values leaves the graph untouched
// and carries partials through compounds.
func TestTrial(t *testing.T) {
	g := vars.New()
	require.NoError(t, g.DeclareSimple("a", 2, true, nil))
	require.NoError(t, g.DeclareSimple("b", 3, false, nil))
	require.NoError(t, g.DeclareCompound("c", expr.MustParse("$a*$a + $b")))
	require.NoError(t, g.DeclareCompound("d", expr.MustParse("2*$c")))

	got, err := g.Trial([]string{"c", "d", "b"}, []string{"a"}, []float64{5}, true)
	require.NoError(t, err)
	assert.Equal(t, 28.0, got["c"].V)
	assert.Equal(t, 10.0, got["c"].Partial(0))
	assert.Equal(t, 56.0, got["d"].V)
	assert.Equal(t, 20.0, got["d"].Partial(0))
	assert.Equal(t, 3.0, got["b"].V)
	assert.Equal(t, 7.0, value(t, g, "c"))

	got, err = g.Trial([]string{"d"}, []string{"a"}, []float64{1}, false)
	require.NoError(t, err)
	assert.Equal(t, 8.0, got["d"].V)
	assert.Nil(t, got["d"].D)

	_, err = g.Trial([]string{"zz"}, nil, nil, false)
	assert.True(t, errors.Is(err, errs.ErrEvaluation))
}
