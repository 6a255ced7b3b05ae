package model

import (
	"fmt"
	"strings"

	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
)

// Model is the ordered list of function instances summed to fit one
// dataset. Models hold instance names; the same instance may appear in
// several models (shared assignment) and Registry.Delete refuses instances
// that are still listed.
type Model struct {
	reg   *Registry
	names []string
}

// NewModel returns an empty model over r.
func (r *Registry) NewModel() *Model { return &Model{reg: r} }

// Names returns the instance names in order.
func (m *Model) Names() []string {
	m.reg.mu.RLock()
	defer m.reg.mu.RUnlock()

	return append([]string(nil), m.names...)
}

// Len returns the number of instances.
func (m *Model) Len() int {
	m.reg.mu.RLock()
	defer m.reg.mu.RUnlock()

	return len(m.names)
}

// Add appends instance name.
func (m *Model) Add(name string) error {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	if _, ok := m.reg.funcs[name]; !ok {
		return fmt.Errorf("model: undefined function %%%s: %w", name, errs.ErrEvaluation)
	}
	m.names = append(m.names, name)
	m.reg.refs[name]++

	return nil
}

// Remove drops every occurrence of name and reports whether one was found.
func (m *Model) Remove(name string) bool {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	kept := m.names[:0]
	found := false
	for _, n := range m.names {
		if n == name {
			m.reg.refs[n]--
			found = true
			continue
		}
		kept = append(kept, n)
	}
	m.names = kept

	return found
}

// Clear empties the model.
func (m *Model) Clear() {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	m.releaseLocked()
}

func (m *Model) releaseLocked() {
	for _, n := range m.names {
		m.reg.refs[n]--
	}
	m.names = nil
}

// Set replaces the content with names, all or nothing.
func (m *Model) Set(names []string) error {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	for _, n := range names {
		if _, ok := m.reg.funcs[n]; !ok {
			return fmt.Errorf("model: undefined function %%%s: %w", n, errs.ErrEvaluation)
		}
	}
	m.releaseLocked()
	m.names = append([]string(nil), names...)
	for _, n := range names {
		m.reg.refs[n]++
	}

	return nil
}

// Functions resolves the instances in order.
func (m *Model) Functions() []*Function {
	m.reg.mu.RLock()
	defer m.reg.mu.RUnlock()
	out := make([]*Function, len(m.names))
	for i, n := range m.names {
		out[i] = m.reg.funcs[n]
	}

	return out
}

// Params returns each instance's parameters over the slot space index, for
// repeated evaluation with Eval.
func (m *Model) Params(index map[string]int) ([][]expr.Dual, error) {
	fs := m.Functions()
	out := make([][]expr.Dual, len(fs))
	for i, f := range fs {
		p, err := f.Params(index)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}

	return out, nil
}

// Eval sums the instances at x for parameters obtained from Params. The
// result carries the gradient over the same slot space.
func (m *Model) Eval(x expr.Dual, params [][]expr.Dual) (expr.Dual, error) {
	fs := m.Functions()
	if len(fs) != len(params) {
		return expr.Dual{}, fmt.Errorf("model: changed during evaluation: %w", errs.ErrEvaluation)
	}
	sum := expr.Const(0)
	for i, f := range fs {
		d, err := f.At(x, params[i])
		if err != nil {
			return expr.Dual{}, err
		}
		sum = sum.Add(d)
	}

	return sum, nil
}

// Value returns the model value at x (0 for an empty model).
func (m *Model) Value(x float64) (float64, error) {
	p, err := m.Params(nil)
	if err != nil {
		return 0, err
	}
	d, err := m.Eval(expr.Const(x), p)

	return d.V, err
}

// Values evaluates the model at every x.
func (m *Model) Values(xs []float64) ([]float64, error) {
	p, err := m.Params(nil)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(xs))
	for i, x := range xs {
		d, err := m.Eval(expr.Const(x), p)
		if err != nil {
			return nil, err
		}
		out[i] = d.V
	}

	return out, nil
}

// ValueAndDerivatives returns the value at x, dy/dx and the gradient over
// every simple variable the instances depend on.
func (m *Model) ValueAndDerivatives(x float64) (y, dydx float64, grad map[string]float64, err error) {
	grad = make(map[string]float64)
	for _, f := range m.Functions() {
		fy, fdx, fg, err := f.ValueAndDerivatives(x)
		if err != nil {
			return 0, 0, nil, err
		}
		y += fy
		dydx += fdx
		for k, v := range fg {
			grad[k] += v
		}
	}

	return y, dydx, grad, nil
}

// NumericArea integrates the model over [lo, hi] with the composite Simpson
// rule (see Function.NumericArea).
func (m *Model) NumericArea(lo, hi float64, n int) (float64, error) {
	p, err := m.Params(nil)
	if err != nil {
		return 0, err
	}

	return simpson(func(x float64) (float64, float64, error) {
		d, err := m.Eval(expr.Const(x), p)
		return d.V, 0, err
	}, lo, hi, n)
}

// Formula joins the instance formulas with " + "; an empty model is "0".
func (m *Model) Formula(numFmt string) (string, error) {
	return m.join(func(f *Function) (string, error) { return f.Formula(numFmt) })
}

// SimplifiedFormula is Formula built from simplified instance formulas.
func (m *Model) SimplifiedFormula(numFmt string) (string, error) {
	return m.join(func(f *Function) (string, error) { return f.SimplifiedFormula(numFmt) })
}

func (m *Model) join(part func(*Function) (string, error)) (string, error) {
	fs := m.Functions()
	if len(fs) == 0 {
		return "0", nil
	}
	parts := make([]string, len(fs))
	for i, f := range fs {
		s, err := part(f)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}

	return strings.Join(parts, " + "), nil
}

// CopyModel fills dst with independent copies of src's instances under
// fresh auto names. On failure dst is unchanged and the copies are removed.
func (r *Registry) CopyModel(dst, src *Model) error {
	var created []string
	for _, n := range src.Names() {
		f, err := r.Copy("", n)
		if err != nil {
			for _, c := range created {
				_ = r.Delete(c)
			}
			return err
		}
		created = append(created, f.Name())
	}

	return dst.Set(created)
}
