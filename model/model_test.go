package model_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
	"github.com/katalvlaran/lvfit/model"
	"github.com/katalvlaran/lvfit/vars"
)

func newRegistry() *model.Registry {
	return model.NewRegistry(model.NewLibrary(), vars.New())
}

// param is one argument for create: a fresh ~value or a fixed value.
type param struct {
	v    float64
	free bool
}

func free(v float64) param  { return param{v: v, free: true} }
func fixed(v float64) param { return param{v: v} }

// create builds %name from fresh auto variables, like "%f = Gaussian(~10, ~0, 0.5)".
func create(t *testing.T, r *model.Registry, name, tpl string, ps ...param) *model.Function {
	t.Helper()
	tp, err := r.Library().Get(tpl)
	require.NoError(t, err)
	bs := make([]model.Binding, len(ps))
	for i, p := range ps {
		v, err := r.ParamVar(tp, i, p.v, p.free)
		require.NoError(t, err)
		bs[i] = model.Binding{Var: v, Owned: true}
	}
	f, err := r.Create(name, tpl, bs)
	require.NoError(t, err)

	return f
}

func paramOf(t *testing.T, r *model.Registry, fn, p string) float64 {
	t.Helper()
	f, err := r.Get(fn)
	require.NoError(t, err)
	v, err := f.ParamValue(p)
	require.NoError(t, err)

	return v
}

// TestLibrary_Builtins verifies the catalog and the kind of each family.
func TestLibrary_Builtins(t *testing.T) {
	lib := model.NewLibrary()
	for _, name := range []string{
		"Constant", "Linear", "Quadratic", "Cubic", "Polynomial4", "Polynomial5", "Polynomial6",
		"Gaussian", "SplitGaussian", "Lorentzian", "Pearson7", "SplitPearson7", "PseudoVoigt",
		"Voigt", "VoigtA", "EMG", "DoniachSunjic", "LogNormal", "ExpDecay", "GaussianA",
		"LogNormalA", "LorentzianA", "Pearson7A", "PseudoVoigtA", "Sigmoid", "SplitLorentzian",
		"SplitPseudoVoigt", "SplitVoigt",
	} {
		assert.True(t, lib.Has(name), name)
	}
	kinds := map[string]model.Kind{
		"Gaussian":     model.KindExpression,
		"SplitVoigt":   model.KindPiecewise,
		"GaussianA":    model.KindCompound,
		"PseudoVoigtA": model.KindCompound,
		"Voigt":        model.KindCoded,
	}
	for name, k := range kinds {
		tpl, err := lib.Get(name)
		require.NoError(t, err)
		assert.Equal(t, k, tpl.Kind, name)
	}
	tpl, _ := lib.Get("Voigt")
	assert.Equal(t, []string{"height", "center", "hwhm"}, tpl.Traits())
	assert.Empty(t, lib.UserDefined())

	_, err := lib.Get("Nope")
	assert.True(t, errors.Is(err, errs.ErrEvaluation))
}

// TestFormula_Voigt verifies that coded templates render as a call and
// expose the Voigt-specific properties.
func TestFormula_Voigt(t *testing.T) {
	r := newRegistry()
	f := create(t, r, "v", "Voigt", free(926), free(43.2), free(0.144), free(0.1))
	m := r.NewModel()
	require.NoError(t, m.Add("v"))

	s, err := m.Formula("%g")
	require.NoError(t, err)
	assert.Equal(t, "Voigt(926, 43.2, 0.144, 0.1)", s)
	s, err = m.SimplifiedFormula("%g")
	require.NoError(t, err)
	assert.Equal(t, "Voigt(926, 43.2, 0.144, 0.1)", s)

	g, err := f.Property(model.PropGaussianFWHM)
	require.NoError(t, err)
	assert.InDelta(t, 0.2397757280134, g, 1e-13)

	// The profile peaks at height whatever the shape.
	y, err := f.Value(43.2)
	require.NoError(t, err)
	assert.InDelta(t, 926, y, 1e-9)
}

// TestFormula_SplitVoigt verifies the piecewise layout, identical in the
// full and simplified forms.
func TestFormula_SplitVoigt(t *testing.T) {
	r := newRegistry()
	create(t, r, "s", "SplitVoigt", free(926), free(43.2), free(0.144), free(0.143), free(0.1), free(0.13))
	m := r.NewModel()
	require.NoError(t, m.Add("s"))

	want := "x < 43.2 ? Voigt(926, 43.2, 0.144, 0.1) : Voigt(926, 43.2, 0.143, 0.13)"
	s, err := m.Formula("%g")
	require.NoError(t, err)
	assert.Equal(t, want, s)
	s, err = m.SimplifiedFormula("%g")
	require.NoError(t, err)
	assert.Equal(t, want, s)
}

// TestFormula_Simplified verifies constant folding in compound templates.
func TestFormula_Simplified(t *testing.T) {
	r := newRegistry()
	f := create(t, r, "a", "LorentzianA", free(math.Pi), free(0), fixed(1))

	full, err := f.Formula("")
	require.NoError(t, err)
	assert.Equal(t, "Lorentzian(3.141592653589793/1/pi, 0, 1)", full)
	simple, err := f.SimplifiedFormula("")
	require.NoError(t, err)
	assert.Equal(t, "Lorentzian(1, 0, 1)", simple)

	g := create(t, r, "g", "Gaussian", free(2), free(1), free(0.5))
	s, err := g.Formula("")
	require.NoError(t, err)
	assert.Equal(t, "2*exp(-ln(2)*((x - 1)/0.5)^2)", s)
	assert.Equal(t, "%g = Gaussian($_4, $_5, $_6)", g.Assignment())

	m := r.NewModel()
	s, err = m.Formula("")
	require.NoError(t, err)
	assert.Equal(t, "0", s)
}

// TestNumericArea verifies Simpson integration of 1+2x+3x² over [2, 4] and
// additivity for a sum of instances.
func TestNumericArea(t *testing.T) {
	r := newRegistry()
	q := create(t, r, "q", "Quadratic", free(1), free(2), free(3))

	for _, n := range []int{1, 2, 3, 10, 100} {
		a, err := q.NumericArea(2, 4, n)
		require.NoError(t, err)
		assert.InDelta(t, 70, a, 1e-9, "n=%d", n)
	}

	create(t, r, "l", "Linear", free(1), free(1))
	m := r.NewModel()
	require.NoError(t, m.Set([]string{"q", "l"}))
	a, err := m.NumericArea(2, 4, 100)
	require.NoError(t, err)
	assert.InDelta(t, 78, a, 1e-9)
}

// TestNumericArea_MatchesAreaProperty verifies the closed-form areas.
func TestNumericArea_MatchesAreaProperty(t *testing.T) {
	r := newRegistry()
	cases := []struct {
		tpl string
		ps  []param
		tol float64
	}{
		{"Gaussian", []param{free(3), free(1), free(0.7)}, 1e-9},
		{"Lorentzian", []param{free(3), free(1), free(0.7)}, 5e-3},
		{"PseudoVoigt", []param{free(3), free(1), free(0.7), free(0.3)}, 5e-3},
		{"SplitGaussian", []param{free(3), free(1), free(0.5), free(0.9)}, 1e-6},
		{"GaussianA", []param{free(5), free(1), free(0.7)}, 1e-9},
	}
	for _, tc := range cases {
		t.Run(tc.tpl, func(t *testing.T) {
			f := create(t, r, "", tc.tpl, tc.ps...)
			want, err := f.Property(model.PropArea)
			require.NoError(t, err)
			got, err := f.NumericArea(-200, 200, 40000)
			require.NoError(t, err)
			assert.InEpsilon(t, want, got, tc.tol)
		})
	}
}

// TestValueAndDerivatives verifies parameter and x derivatives against
// central differences, including the chain rule through a compound variable.
func TestValueAndDerivatives(t *testing.T) {
	g := vars.New()
	r := model.NewRegistry(model.NewLibrary(), g)
	require.NoError(t, g.DeclareSimple("h", 2, true, nil))
	require.NoError(t, g.DeclareSimple("a", 0.5, true, nil))
	require.NoError(t, g.DeclareCompound("c", expr.MustParse("$a*2")))
	require.NoError(t, g.DeclareSimple("w", 0.5, true, nil))
	f, err := r.Create("f", "Gaussian", []model.Binding{{Var: "h"}, {Var: "c"}, {Var: "w"}})
	require.NoError(t, err)

	const x = 1.25
	y, dydx, grad, err := f.ValueAndDerivatives(x)
	require.NoError(t, err)
	assert.InDelta(t, 1.681792830507429, y, 1e-12)
	assert.ElementsMatch(t, []string{"a", "h", "w"}, keys(grad))

	at := func(name string, v float64) float64 {
		old, _ := g.Value(name)
		require.NoError(t, g.Assign(name, v))
		out, err := f.Value(x)
		require.NoError(t, err)
		require.NoError(t, g.Assign(name, old))
		return out
	}
	const eps = 1e-6
	for _, name := range []string{"h", "a", "w"} {
		v, _ := g.Value(name)
		num := (at(name, v+eps) - at(name, v-eps)) / (2 * eps)
		assert.InDelta(t, num, grad[name], 1e-6, name)
	}
	yp, _ := f.Value(x + eps)
	ym, _ := f.Value(x - eps)
	assert.InDelta(t, (yp-ym)/(2*eps), dydx, 1e-6)
}

func keys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	return out
}

// TestCodedDerivatives verifies the Voigt gradient numerically, within the
// accuracy of the kernel approximation.
func TestCodedDerivatives(t *testing.T) {
	r := newRegistry()
	f := create(t, r, "v", "Voigt", free(1), free(1), free(0.4), free(0.6))
	_, dydx, grad, err := f.ValueAndDerivatives(1.3)
	require.NoError(t, err)

	g := r.Vars()
	const eps = 1e-6
	for i, name := range f.Vars() {
		v, _ := g.Value(name)
		require.NoError(t, g.Assign(name, v+eps))
		yp, _ := f.Value(1.3)
		require.NoError(t, g.Assign(name, v-eps))
		ym, _ := f.Value(1.3)
		require.NoError(t, g.Assign(name, v))
		assert.InDelta(t, (yp-ym)/(2*eps), grad[name], 5e-3, "param %d", i)
	}
	yp, _ := f.Value(1.3 + eps)
	ym, _ := f.Value(1.3 - eps)
	assert.InDelta(t, (yp-ym)/(2*eps), dydx, 5e-3)
}

// TestFindX_Extremum verifies root and extremum searches and their
// NotFound cases.
func TestFindX_Extremum(t *testing.T) {
	r := newRegistry()
	f := create(t, r, "g", "Gaussian", free(1), free(0), free(1))

	x, err := f.FindX(0, 5, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 1, x, 1e-10)

	_, err = f.FindX(0, 5, 2)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	x, err = f.Extremum(-1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0, x, 1e-9)

	_, err = f.Extremum(1, 2)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

// TestDefine verifies user templates, their kinds and removal rules.
func TestDefine(t *testing.T) {
	r := newRegistry()
	lib := r.Library()

	foo, err := lib.Define("Foo(a, b=2 [0:10]) = a*x + b")
	require.NoError(t, err)
	assert.Equal(t, model.KindExpression, foo.Kind)
	assert.Equal(t, "Foo(a, b=2 [0:10]) = a*x + b", foo.Definition())
	assert.Equal(t, []string{"a"}, foo.Traits())

	bar, err := lib.Define("Bar(h, c) = Gaussian(h, c, 1) + Foo(h, c)")
	require.NoError(t, err)
	assert.Equal(t, model.KindCompound, bar.Kind)

	f := create(t, r, "b", "Bar", free(2), free(3))
	y, err := f.Value(3)
	require.NoError(t, err)
	assert.InDelta(t, 2+2*3+3, y, 1e-12)

	assert.Len(t, lib.UserDefined(), 2)

	cases := []struct {
		src  string
		kind error
	}{
		{"Foo(a) = a", errs.ErrEvaluation},             // already defined
		{"Baz(a) = a*y", errs.ErrEvaluation},           // unknown parameter
		{"Baz(a) = $v*a", errs.ErrEvaluation},          // variables not allowed
		{"Baz(a) = Gaussian(a, 1)", errs.ErrEvaluation}, // arity
		{"Baz(a) = Qux(a)", errs.ErrEvaluation},         // unknown template
		{"Baz(a, a) = a", errs.ErrEvaluation},           // duplicate parameter
		{"baz(a) = a", errs.ErrSyntax},
		{"Baz(a = a", errs.ErrSyntax},
		{"Baz(a)", errs.ErrSyntax},
	}
	for _, tc := range cases {
		_, err := lib.Define(tc.src)
		assert.True(t, errors.Is(err, tc.kind), "%s: %v", tc.src, err)
	}

	assert.True(t, errors.Is(lib.Undefine("Foo"), errs.ErrReference))
	assert.True(t, errors.Is(lib.Undefine("Gaussian"), errs.ErrEvaluation))
	assert.True(t, errors.Is(r.Undefine("Bar"), errs.ErrReference))
	require.NoError(t, r.Delete("b"))
	require.NoError(t, r.Undefine("Bar"))
	require.NoError(t, r.Undefine("Foo"))
	assert.False(t, lib.Has("Foo"))
}

// TestDomain_CopiedFromTemplate verifies template domains are copied into
// new variables and later edits stay local.
func TestDomain_CopiedFromTemplate(t *testing.T) {
	r := newRegistry()
	f := create(t, r, "p", "PseudoVoigt", free(1), free(0), free(1), free(0.5))
	shape, err := f.VarOf("shape")
	require.NoError(t, err)

	v, err := r.Vars().Get(shape)
	require.NoError(t, err)
	require.NotNil(t, v.Domain)
	assert.Equal(t, vars.Domain{Lo: 0, Hi: 1}, *v.Domain)

	require.NoError(t, r.Vars().SetDomain(shape, &vars.Domain{Lo: 0.2, Hi: 0.8}))
	tpl, _ := r.Library().Get("PseudoVoigt")
	assert.Equal(t, vars.Domain{Lo: 0, Hi: 1}, *tpl.Params[3].Domain)

	_, err = r.CreateFromValues("q", "PseudoVoigt", []float64{1, 0, 1, 1.5}, true)
	assert.True(t, errors.Is(err, errs.ErrDomain))
	assert.False(t, r.Has("q"))
}

// TestCopy_SharedVersusCopied replays the copy sequence: copied functions
// and copied models are independent, assigned models share instances.
func TestCopy_SharedVersusCopied(t *testing.T) {
	r := newRegistry()
	g := r.Vars()
	create(t, r, "f", "Gaussian", free(10), free(0), fixed(0.5))

	_, err := r.Copy("g", "f")
	require.NoError(t, err)
	assert.Len(t, g.FreeParams(), 4)

	setCenter := func(v float64) {
		n, err := g.NewAuto(v, true, nil)
		require.NoError(t, err)
		require.NoError(t, r.SetParam("g", "center", model.Binding{Var: n, Owned: true}))
	}
	setCenter(2.3)
	assert.Len(t, g.FreeParams(), 4)

	m0 := r.NewModel()
	require.NoError(t, m0.Set([]string{"f", "g"}))
	m1 := r.NewModel()
	require.NoError(t, r.CopyModel(m1, m0))
	assert.Len(t, g.FreeParams(), 8)

	m2 := r.NewModel()
	require.NoError(t, m2.Set(m0.Names()))
	assert.Len(t, g.FreeParams(), 8)

	setCenter(2.4)
	centers := func(m *model.Model) []float64 {
		var out []float64
		for _, n := range m.Names() {
			out = append(out, paramOf(t, r, n, "center"))
		}
		return out
	}
	assert.Equal(t, []float64{0, 2.4}, centers(m0))
	assert.Equal(t, []float64{0, 2.3}, centers(m1))
	assert.Equal(t, []float64{0, 2.4}, centers(m2))
}

// TestDelete_Referenced verifies instances listed in a model survive delete
// and that unused auto variables are pruned.
func TestDelete_Referenced(t *testing.T) {
	r := newRegistry()
	create(t, r, "f", "Lorentzian", free(1), free(2), free(3))
	m := r.NewModel()
	require.NoError(t, m.Add("f"))

	assert.True(t, errors.Is(r.Delete("f"), errs.ErrReference))
	assert.Equal(t, 1, r.Uses("f"))
	assert.True(t, m.Remove("f"))
	require.NoError(t, r.Delete("f"))
	assert.Empty(t, r.Vars().Names())
	assert.False(t, r.Has("f"))

	assert.True(t, errors.Is(m.Add("f"), errs.ErrEvaluation))
	assert.True(t, errors.Is(m.Set([]string{"nope"}), errs.ErrEvaluation))
}

// TestCreate_Errors verifies arity and name checks.
func TestCreate_Errors(t *testing.T) {
	r := newRegistry()
	_, err := r.CreateFromValues("f", "Gaussian", []float64{1, 2}, true)
	assert.True(t, errors.Is(err, errs.ErrEvaluation))
	_, err = r.CreateFromValues("f", "Unknown", nil, true)
	assert.True(t, errors.Is(err, errs.ErrEvaluation))
	_, err = r.Create("f", "Linear", []model.Binding{{Var: "missing"}, {Var: "missing"}})
	assert.True(t, errors.Is(err, errs.ErrEvaluation))

	f, err := r.CreateFromValues("", "Linear", []float64{1, 2}, true)
	require.NoError(t, err)
	assert.Equal(t, "_1", f.Name())
	assert.Equal(t, "_2", r.NextAuto())
}

// TestProperties verifies derived peak properties.
func TestProperties(t *testing.T) {
	r := newRegistry()
	g := create(t, r, "g", "Gaussian", free(4), free(1.5), free(0.5))

	c, err := g.Property(model.PropCenter)
	require.NoError(t, err)
	assert.Equal(t, 1.5, c)
	w, err := g.Property(model.PropFWHM)
	require.NoError(t, err)
	assert.Equal(t, 1.0, w)
	a, err := g.Property(model.PropArea)
	require.NoError(t, err)
	assert.InDelta(t, 4*0.5*math.Sqrt(math.Pi/math.Ln2), a, 1e-12)
	iw, err := g.Property(model.PropIWidth)
	require.NoError(t, err)
	assert.InDelta(t, a/4, iw, 1e-12)
	assert.Equal(t, []string{"Center", "Height", "FWHM", "Area", "IWidth"}, g.Properties())

	_, err = g.Property(model.PropGaussianFWHM)
	assert.True(t, errors.Is(err, errs.ErrEvaluation))

	ga := create(t, r, "ga", "GaussianA", free(a), free(1.5), free(0.5))
	h, err := ga.Property(model.PropHeight)
	require.NoError(t, err)
	assert.InDelta(t, 4, h, 1e-12)

	s := create(t, r, "s", "Sigmoid", free(0), free(1), free(3), free(1))
	c, err = s.Property(model.PropCenter)
	require.NoError(t, err)
	assert.Equal(t, 3.0, c)
}
