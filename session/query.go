package session

import (
	"github.com/katalvlaran/lvfit/config"
	"github.com/katalvlaran/lvfit/dataset"
	"github.com/katalvlaran/lvfit/expr"
	"github.com/katalvlaran/lvfit/fit"
	"github.com/katalvlaran/lvfit/model"
	"github.com/katalvlaran/lvfit/vars"
)

// Eval evaluates a formula against the default dataset, e.g. "$a*2",
// "%f(3.5)", "F(0) - y[0]" or "darea(y)".
func (s *Session) Eval(formula string) (float64, error) {
	n, err := expr.Parse(formula)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.evalIn(n, s.data.Default())
}

// Variables returns every variable, sorted by name.
func (s *Session) Variables() []vars.Variable {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := s.g.Names()
	out := make([]vars.Variable, 0, len(names))
	for _, n := range names {
		if v, err := s.g.Get(n); err == nil {
			out = append(out, v)
		}
	}

	return out
}

// Variable returns $name.
func (s *Session) Variable(name string) (vars.Variable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.g.Get(name)
}

// Functions returns every function instance in creation order.
func (s *Session) Functions() []*model.Function {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reg.Functions()
}

// Function returns %name.
func (s *Session) Function(name string) (*model.Function, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reg.Get(name)
}

// ParamValue returns the current value of parameter param of %name.
func (s *Session) ParamValue(name, param string) (float64, error) {
	f, err := s.Function(name)
	if err != nil {
		return 0, err
	}

	return f.ParamValue(param)
}

// Templates returns every template name.
func (s *Session) Templates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lib.Names()
}

// Datasets returns the number of datasets.
func (s *Session) Datasets() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.data.Len()
}

// Model returns the instance names of dataset ds's model.
func (s *Session) Model(ds int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.dataset(ds); err != nil {
		return nil, err
	}

	return s.models[ds].Names(), nil
}

// Formula renders dataset ds's model with the current parameter values,
// numbers formatted by numeric_format.
func (s *Session) Formula(ds int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.dataset(ds); err != nil {
		return "", err
	}

	return s.models[ds].Formula(s.cfg.NumericFormat)
}

// SimplifiedFormula is Formula with constant sub-expressions folded.
func (s *Session) SimplifiedFormula(ds int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.dataset(ds); err != nil {
		return "", err
	}

	return s.models[ds].SimplifiedFormula(s.cfg.NumericFormat)
}

// Points returns every point of dataset ds.
func (s *Session) Points(ds int) ([]dataset.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data.Get(ds)
	if err != nil {
		return nil, err
	}

	return d.Points(), nil
}

// ActivePoints returns the active points of dataset ds with lo <= x <= hi.
func (s *Session) ActivePoints(ds int, lo, hi float64) ([]dataset.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data.Get(ds)
	if err != nil {
		return nil, err
	}

	return d.ActiveRange(lo, hi), nil
}

// FitInfo computes fit statistics of the given datasets (the default one
// when none is given) fitted together, at the current parameter values.
func (s *Session) FitInfo(ds ...int) (*fit.Diagnostics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.orDefault(ds)
	targets := make([]fit.Target, len(ts))
	for i, n := range ts {
		d, err := s.dataset(n)
		if err != nil {
			return nil, err
		}
		targets[i] = fit.Target{Data: d, Model: s.models[n]}
	}

	return s.fitter.Diagnostics(targets)
}

// LastFit returns the result of the latest fit, or nil.
func (s *Session) LastFit() *fit.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fitter.Last()
}

// Methods returns the names of the available fitting methods.
func (s *Session) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fitter.Methods()
}

// Settings returns a copy of the current settings.
func (s *Session) Settings() *config.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cfg.Clone()
}
