package guess_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/lvfit/config"
	"github.com/katalvlaran/lvfit/dataset"
	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/guess"
	"github.com/katalvlaran/lvfit/model"
	"github.com/katalvlaran/lvfit/vars"
)

func sample(lo, hi, step float64, f func(float64) float64) guess.Data {
	var d guess.Data
	for x := lo; x <= hi+step/2; x += step {
		d.X = append(d.X, x)
		d.Y = append(d.Y, f(x))
	}
	return d
}

func gauss(h, c, w float64) func(float64) float64 {
	return func(x float64) float64 { return h * math.Exp(-math.Ln2*((x-c)/w)*((x-c)/w)) }
}

// TestPeak_Gaussian verifies center, height and half width of a clean peak.
func TestPeak_Gaussian(t *testing.T) {
	d := sample(0, 6, 0.05, gauss(10, 3, 0.5))
	p := guess.Peak(d, false, 1, 1, 1e-12)
	assert.False(t, p.Fallback)
	assert.InDelta(t, 3, p.Center, 1e-9)
	assert.InDelta(t, 10, p.Height, 1e-9)
	assert.InDelta(t, 0.5, p.HWHM, 0.06)
	assert.Greater(t, p.Area, 5.0)
	assert.Less(t, p.Area, 10*0.5*math.Sqrt(math.Pi/math.Ln2))

	p = guess.Peak(d, false, 0.5, 2, 1e-12)
	assert.InDelta(t, 5, p.Height, 1e-9)
	assert.InDelta(t, 1, p.HWHM, 0.12)
}

// TestPeak_Fluctuation verifies that a single point below half maximum does
// not end a peak side.
func TestPeak_Fluctuation(t *testing.T) {
	ys := []float64{0, 0, 0, 0, 1, 6, 8, 10, 4, 9, 7, 1, 0, 0, 0, 0}
	d := guess.Data{Y: ys}
	for i := range ys {
		d.X = append(d.X, float64(i))
	}
	p := guess.Peak(d, false, 1, 1, 1e-12)
	assert.Equal(t, 7.0, p.Center)
	assert.Equal(t, 3.0, p.HWHM) // from x=5 to x=11
}

// TestPeak_Weighted verifies that weights compare y/sigma.
func TestPeak_Weighted(t *testing.T) {
	d := guess.Data{
		X:     []float64{0, 1, 2, 3, 4},
		Y:     []float64{0, 10, 0, 8, 0},
		Sigma: []float64{1, 10, 1, 1, 1},
	}
	assert.Equal(t, 1.0, guess.Peak(d, false, 1, 1, 1e-12).Center)
	assert.Equal(t, 3.0, guess.Peak(d, true, 1, 1, 1e-12).Center)
}

// TestPeak_SoftFailure verifies the fallbacks for degenerate data.
func TestPeak_SoftFailure(t *testing.T) {
	p := guess.Peak(guess.Data{}, false, 1, 1, 1e-12)
	assert.True(t, p.Fallback)
	assert.Equal(t, 1.0, p.HWHM)

	mono := guess.Data{X: []float64{0, 1, 2, 3}, Y: []float64{1, 2, 3, 4}}
	p = guess.Peak(mono, false, 1, 1, 1e-12)
	assert.True(t, p.Fallback)
	assert.Equal(t, 3.0, p.Center)
	assert.Equal(t, 4.0, p.Height)
	assert.Positive(t, p.HWHM)

	neg := guess.Data{X: []float64{0, 1, 2}, Y: []float64{-3, -1, -2}}
	p = guess.Peak(neg, false, 1, 1, 1e-3)
	assert.Equal(t, 1.0, p.Center)
	assert.Equal(t, 1.0, p.HWHM) // every point is below half of a negative maximum
}

// TestLinear verifies the least-squares line and the vertical fallback.
func TestLinear(t *testing.T) {
	l := guess.Linear(sample(0, 4, 1, func(x float64) float64 { return 2*x + 1 }))
	assert.InDelta(t, 2, l.Slope, 1e-12)
	assert.InDelta(t, 1, l.Intercept, 1e-12)
	assert.InDelta(t, 5, l.AvgY, 1e-12)

	l = guess.Linear(guess.Data{X: []float64{1, 1}, Y: []float64{2, 4}})
	assert.True(t, l.Fallback)
	assert.Equal(t, 3.0, l.Intercept)
}

// TestSigmoid verifies plateaus, midpoint and width of a logistic step.
func TestSigmoid(t *testing.T) {
	d := sample(0, 10, 0.01, func(x float64) float64 { return 2 + 8/(1+math.Exp((5-x)/0.4)) })
	s := guess.Sigmoid(d)
	assert.False(t, s.Fallback)
	assert.InDelta(t, 2, s.Lower, 0.05)
	assert.InDelta(t, 10, s.Upper, 0.05)
	assert.InDelta(t, 5, s.XMid, 0.02)
	assert.InDelta(t, 0.4, s.WSig, 0.05)
}

// TestEngine_Guess verifies template defaults over traits.
func TestEngine_Guess(t *testing.T) {
	lib := model.NewLibrary()
	e := guess.New(guess.OptionsFrom(config.Default()))
	d := sample(0, 6, 0.05, gauss(10, 3, 0.5))

	tpl, err := lib.Get("Voigt")
	require.NoError(t, err)
	v, err := e.Guess(tpl, d, nil)
	require.NoError(t, err)
	require.Len(t, v, 4)
	assert.InDelta(t, 10, v[0], 1e-9)
	assert.InDelta(t, 3, v[1], 1e-9)
	assert.InDelta(t, 0.4, v[2], 0.05) // hwhm*0.8
	assert.Equal(t, 0.1, v[3])

	v, err = e.Guess(tpl, d, map[string]float64{"center": 2.9})
	require.NoError(t, err)
	assert.Equal(t, 2.9, v[1])

	tpl, err = lib.Get("Linear")
	require.NoError(t, err)
	v, err = e.Guess(tpl, sample(0, 4, 1, func(x float64) float64 { return 3 - x }), nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{3, -1}, v, 1e-12)

	// neutral values for an empty range, no error
	tpl, err = lib.Get("Gaussian")
	require.NoError(t, err)
	v, err = e.Guess(tpl, guess.Data{}, nil)
	require.NoError(t, err)
	assert.Len(t, v, 3)
}

// TestEngine_UnknownTrait verifies that a default naming no trait is an
// EvaluationError.
func TestEngine_UnknownTrait(t *testing.T) {
	lib := model.NewLibrary()
	tpl, err := lib.Define("Odd(a, q) = a*x + q")
	require.NoError(t, err)
	_, err = guess.New(guess.Options{}).Guess(tpl, guess.Data{}, nil)
	assert.True(t, errors.Is(err, errs.ErrEvaluation))

	v, err := guess.New(guess.Options{}).Guess(tpl, guess.Data{}, map[string]float64{"a": 1, "q": 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, v)
}

// TestCollect verifies range restriction and subtraction of the rest of the
// model.
func TestCollect(t *testing.T) {
	ds, err := dataset.FromArrays([]float64{0, 1, 2, 3}, []float64{5, 6, 7, 8}, nil, "", dataset.SigmaOne)
	require.NoError(t, err)
	reg := model.NewRegistry(model.NewLibrary(), vars.New())
	bg, err := reg.CreateFromValues("bg", "Constant", []float64{5}, true)
	require.NoError(t, err)
	pk, err := reg.CreateFromValues("pk", "Constant", []float64{100}, true)
	require.NoError(t, err)
	m := reg.NewModel()
	require.NoError(t, m.Set([]string{bg.Name(), pk.Name()}))

	d, err := guess.Collect(ds, m, "pk", 1, 2.5)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, d.X)
	assert.Equal(t, []float64{1, 2}, d.Y)
	assert.Equal(t, []float64{1, 1}, d.Sigma)

	d, err = guess.Collect(ds, nil, "", math.Inf(-1), math.Inf(1))
	require.NoError(t, err)
	assert.Equal(t, 4, d.Len())
}
