package dataset_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/lvfit/dataset"
	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
)

func col(attr byte, src string) dataset.Assignment {
	return dataset.Assignment{Attr: attr, Value: expr.MustParse(src)}
}

func at(attr byte, idx, src string) dataset.Assignment {
	return dataset.Assignment{Attr: attr, Index: expr.MustParse(idx), Value: expr.MustParse(src)}
}

func xs(d *dataset.Dataset) []float64 {
	var out []float64
	for _, p := range d.Points() {
		out = append(out, p.X)
	}
	return out
}

func ys(d *dataset.Dataset) []float64 {
	var out []float64
	for _, p := range d.Points() {
		out = append(out, p.Y)
	}
	return out
}

// parabola is M=11, X=(n-5)/2, Y=X*(X-3.1).
func parabola(t *testing.T) *dataset.Dataset {
	t.Helper()
	d := dataset.New("parabola")
	require.NoError(t, d.Resize(11))
	require.NoError(t, d.Transform([]dataset.Assignment{
		col('X', "(n-5)/2"),
		col('Y', "X*(X-3.1)"),
	}, nil))

	return d
}

// TestFromArrays_DefaultSigma verifies both default sigma rules and sorting.
func TestFromArrays_DefaultSigma(t *testing.T) {
	d, err := dataset.FromArrays([]float64{3, 1, 2}, []float64{9, 0.5, 4}, nil, "t", dataset.SigmaSqrt)
	require.NoError(t, err)
	pts := d.Points()
	assert.Equal(t, []float64{1, 2, 3}, xs(d))
	assert.Equal(t, 1.0, pts[0].Sigma)
	assert.Equal(t, 2.0, pts[1].Sigma)
	assert.Equal(t, 3.0, pts[2].Sigma)
	assert.True(t, pts[0].Active)
	assert.Equal(t, "t", d.Title())

	d, err = dataset.FromArrays([]float64{1, 2}, []float64{9, 16}, nil, "", dataset.SigmaOne)
	require.NoError(t, err)
	for _, p := range d.Points() {
		assert.Equal(t, 1.0, p.Sigma)
	}

	d, err = dataset.FromArrays([]float64{1, 2}, []float64{9, 16}, []float64{0.1, 0.2}, "", dataset.SigmaSqrt)
	require.NoError(t, err)
	assert.Equal(t, 0.2, d.Points()[1].Sigma)

	_, err = dataset.FromArrays([]float64{1, 2}, []float64{1}, nil, "", dataset.SigmaSqrt)
	assert.True(t, errors.Is(err, errs.ErrEvaluation))
	_, err = dataset.FromArrays([]float64{1}, []float64{1}, nil, "", "poisson")
	assert.True(t, errors.Is(err, errs.ErrEvaluation))
	_, err = dataset.FromArrays([]float64{1}, []float64{1}, nil, `it's "x"`, dataset.SigmaOne)
	assert.True(t, errors.Is(err, errs.ErrEvaluation))
	assert.True(t, dataset.QuotableTitle(`it's`))
	assert.True(t, dataset.QuotableTitle(`"x"`))
}

// TestTransform_Columns verifies whole-column assignments, where uppercase
// names see the values assigned earlier in the same statement.
func TestTransform_Columns(t *testing.T) {
	d := parabola(t)
	require.Equal(t, 11, d.Len())
	pts := d.Points()
	assert.Equal(t, -2.5, pts[0].X)
	assert.InDelta(t, 14.0, pts[0].Y, 1e-12)
	assert.Equal(t, 2.5, pts[10].X)
	assert.InDelta(t, -1.5, pts[10].Y, 1e-12)

	v, err := d.Eval(expr.MustParse("count(y > 0)"), nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, v) // x = -2.5 ... -0.5
}

// TestTransform_LowercaseReadsOldValues verifies that lowercase names read
// the state before the statement and that x keeps its y after re-sorting.
func TestTransform_LowercaseReadsOldValues(t *testing.T) {
	d := parabola(t)
	require.NoError(t, d.Transform([]dataset.Assignment{col('X', "-x"), col('Y', "y")}, nil))
	pts := d.Points()
	assert.Equal(t, -2.5, pts[0].X)
	assert.InDelta(t, -1.5, pts[0].Y, 1e-12)
	assert.Equal(t, 2.5, pts[10].X)
	assert.InDelta(t, 14.0, pts[10].Y, 1e-12)
}

// TestTransform_Swap verifies X=y, Y=x followed by the stable sort.
func TestTransform_Swap(t *testing.T) {
	d, err := dataset.FromArrays([]float64{1, 2, 3}, []float64{30, 10, 20}, nil, "", dataset.SigmaOne)
	require.NoError(t, err)
	require.NoError(t, d.Transform([]dataset.Assignment{col('X', "y"), col('Y', "x")}, nil))
	assert.Equal(t, []float64{10, 20, 30}, xs(d))
	assert.Equal(t, []float64{2, 3, 1}, ys(d))
}

// TestTransform_Normalize verifies aggregates inside per-point formulas.
func TestTransform_Normalize(t *testing.T) {
	d, err := dataset.FromArrays([]float64{1, 2, 3}, []float64{2, 8, 4}, nil, "", dataset.SigmaOne)
	require.NoError(t, err)
	require.NoError(t, d.Transform([]dataset.Assignment{col('Y', "y/max(y)")}, nil))
	assert.Equal(t, []float64{0.25, 1, 0.5}, ys(d))
}

// TestTransform_Index verifies single point assignments, negative indexes
// and appending through X[M].
func TestTransform_Index(t *testing.T) {
	d := parabola(t)
	require.NoError(t, d.Transform([]dataset.Assignment{at('Y', "3", "7")}, nil))
	require.NoError(t, d.Transform([]dataset.Assignment{at('Y', "-2", "12.34")}, nil))
	pts := d.Points()
	assert.Equal(t, 7.0, pts[3].Y)
	assert.Equal(t, 12.34, pts[9].Y)

	err := d.Transform([]dataset.Assignment{at('Y', "M", "1")}, nil)
	assert.True(t, errors.Is(err, errs.ErrEvaluation))
	err = d.Transform([]dataset.Assignment{at('Y', "20", "1")}, nil)
	assert.True(t, errors.Is(err, errs.ErrEvaluation))

	require.NoError(t, d.Transform([]dataset.Assignment{
		at('X', "M", "-10"), at('Y', "11", "5"), at('S', "11", "0.5"), at('A', "11", "0"),
	}, nil))
	require.Equal(t, 12, d.Len())
	first := d.Points()[0]
	assert.Equal(t, dataset.Point{X: -10, Y: 5, Sigma: 0.5, Active: false}, first)
}

// TestTransform_Atomic verifies that a failing assignment leaves the
// dataset untouched.
func TestTransform_Atomic(t *testing.T) {
	d := parabola(t)
	before := d.Points()
	err := d.Transform([]dataset.Assignment{col('Y', "0"), col('S', "foo")}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrEvaluation))
	assert.Equal(t, before, d.Points())

	err = d.Transform([]dataset.Assignment{{Attr: 'Q', Value: expr.MustParse("1")}}, nil)
	assert.True(t, errors.Is(err, errs.ErrEvaluation))
}

// TestFilter_Idempotent verifies A = x >= 0; delete(not a) and that the same
// filter applied twice removes nothing the second time.
func TestFilter_Idempotent(t *testing.T) {
	d := parabola(t)
	require.NoError(t, d.Transform([]dataset.Assignment{col('A', "x >= 0")}, nil))
	assert.Len(t, d.Active(), 6)

	n, err := d.Filter(expr.MustParse("not a"), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []float64{0, 0.5, 1, 1.5, 2, 2.5}, xs(d))

	n, err = d.Filter(expr.MustParse("not a"), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 6, d.Len())
}

// TestResize verifies truncation, growth with default points and bounds.
func TestResize(t *testing.T) {
	d := parabola(t)
	require.NoError(t, d.Resize(3))
	assert.Equal(t, []float64{-2.5, -2, -1.5}, xs(d))

	require.NoError(t, d.Resize(5))
	pts := d.Points()
	assert.Equal(t, []float64{-2.5, -2, -1.5, 0, 0}, xs(d))
	assert.Equal(t, dataset.Point{Sigma: 1, Active: true}, pts[4])

	assert.True(t, errors.Is(d.Resize(-1), errs.ErrEvaluation))
	assert.True(t, errors.Is(d.Resize(dataset.MaxPoints+1), errs.ErrEvaluation))
	assert.Equal(t, 5, d.Len())
}

// TestActiveRange verifies the range view skips inactive points.
func TestActiveRange(t *testing.T) {
	d := parabola(t)
	require.NoError(t, d.Transform([]dataset.Assignment{at('A', "5", "0")}, nil)) // x = 0
	pts := d.ActiveRange(-0.5, 1)
	require.Len(t, pts, 3)
	assert.Equal(t, -0.5, pts[0].X)
	assert.Equal(t, 0.5, pts[1].X)
	assert.Equal(t, 1.0, pts[2].X)

	c := d.Clone()
	c.SetTitle("copy")
	require.NoError(t, c.Resize(0))
	assert.Equal(t, 11, d.Len())
	assert.Equal(t, "parabola", d.Title())
}

// TestEval_Aggregates verifies scalar data formulas.
func TestEval_Aggregates(t *testing.T) {
	d, err := dataset.FromArrays([]float64{0, 1, 2}, []float64{1, 3, 5}, nil, "", dataset.SigmaOne)
	require.NoError(t, err)
	for src, want := range map[string]float64{
		"M":             3,
		"y[-1]":         5,
		"sum(y)":        9,
		"max(y if x<2)": 3,
		"avg(x)":        1,
	} {
		v, err := d.Eval(expr.MustParse(src), nil)
		require.NoError(t, err, src)
		assert.InDelta(t, want, v, 1e-12, src)
	}
	_, err = d.Eval(expr.MustParse("x"), nil)
	assert.True(t, errors.Is(err, errs.ErrEvaluation))
}

// TestStore verifies indexing, the default dataset and deletion.
func TestStore(t *testing.T) {
	s := dataset.NewStore()
	require.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.Append(dataset.New("one")))
	assert.Equal(t, 2, s.Append(dataset.New("two")))

	require.NoError(t, s.Use(2))
	assert.Equal(t, 2, s.Default())
	assert.True(t, errors.Is(s.Use(3), errs.ErrEvaluation))

	require.NoError(t, s.Delete(1))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 1, s.Default())
	d, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "two", d.Title())

	require.NoError(t, s.Replace(0, dataset.New("zero")))
	require.NoError(t, s.Delete(1))
	require.NoError(t, s.Delete(0))
	assert.Equal(t, 1, s.Len())
	d, err = s.Get(0)
	require.NoError(t, err)
	assert.Empty(t, d.Title())
	assert.Equal(t, 0, s.Default())

	_, err = s.Get(5)
	assert.True(t, errors.Is(err, errs.ErrEvaluation))
}
