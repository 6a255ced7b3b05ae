package model

import (
	"fmt"
	"strings"

	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
)

// Function is a template instance whose parameters are bound to variables.
// Functions are created and owned by a Registry.
type Function struct {
	name string
	tpl  *Template
	vars []string
	reg  *Registry
}

// Name returns the instance name without the leading '%'.
func (f *Function) Name() string { return f.name }

// Template returns the instantiated template.
func (f *Function) Template() *Template { return f.tpl }

// Vars returns the variable bound to each parameter, in parameter order.
func (f *Function) Vars() []string { return append([]string(nil), f.vars...) }

// VarOf returns the variable bound to param.
func (f *Function) VarOf(param string) (string, error) {
	i := f.tpl.ParamIndex(param)
	if i < 0 {
		return "", fmt.Errorf("model: %%%s has no parameter %s: %w", f.name, param, errs.ErrEvaluation)
	}

	return f.vars[i], nil
}

// ParamValues returns the current parameter values.
func (f *Function) ParamValues() ([]float64, error) {
	return f.reg.vars.Values(f.vars)
}

// ParamValue returns the current value of param.
func (f *Function) ParamValue(param string) (float64, error) {
	v, err := f.VarOf(param)
	if err != nil {
		return 0, err
	}

	return f.reg.vars.Value(v)
}

// Params returns the parameters as duals over the slot space index, which
// maps simple variable names to gradient positions (see vars.Graph.Dual).
func (f *Function) Params(index map[string]int) ([]expr.Dual, error) {
	out := make([]expr.Dual, len(f.vars))
	for i, v := range f.vars {
		d, err := f.reg.vars.Dual(v, index)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}

	return out, nil
}

// At evaluates the function at x for parameters obtained from Params.
// Callers evaluating many points fetch the parameters once.
func (f *Function) At(x expr.Dual, params []expr.Dual) (expr.Dual, error) {
	return f.tpl.at(f.reg.lib, x, params)
}

// Value returns the function value at x.
func (f *Function) Value(x float64) (float64, error) {
	p, err := f.Params(nil)
	if err != nil {
		return 0, err
	}
	d, err := f.At(expr.Const(x), p)

	return d.V, err
}

// ValueAndDerivatives returns the value at x, dy/dx, and the partial
// derivatives with respect to every simple variable the parameters depend
// on (chain rule through compound variables).
func (f *Function) ValueAndDerivatives(x float64) (y, dydx float64, grad map[string]float64, err error) {
	roots := f.reg.vars.SimpleRoots(f.vars...)
	index := make(map[string]int, len(roots))
	for i, r := range roots {
		index[r] = i
	}
	p, err := f.Params(index)
	if err != nil {
		return 0, 0, nil, err
	}
	d, err := f.At(expr.Seed(x, len(roots), len(roots)+1), p)
	if err != nil {
		return 0, 0, nil, err
	}
	grad = make(map[string]float64, len(roots))
	for i, r := range roots {
		grad[r] = d.Partial(i)
	}

	return d.V, d.Partial(len(roots)), grad, nil
}

// valueAndSlope is ValueAndDerivatives without the parameter gradient.
func (f *Function) valueAndSlope(params []expr.Dual, x float64) (float64, float64, error) {
	d, err := f.At(expr.Seed(x, 0, 1), params)

	return d.V, d.Partial(0), err
}

// expression returns the instance formula with parameter values in place.
func (f *Function) expression() (expr.Node, error) {
	vals, err := f.ParamValues()
	if err != nil {
		return nil, err
	}
	if f.tpl.Kind == KindCoded {
		args := make([]expr.Node, len(vals))
		for i, v := range vals {
			args[i] = &expr.Num{V: v}
		}
		return &expr.Call{Name: f.tpl.Name, Args: args}, nil
	}
	repl := make(map[string]expr.Node, len(vals))
	for i, p := range f.tpl.Params {
		repl[p.Name] = &expr.Num{V: vals[i]}
	}

	return expr.Substitute(f.tpl.Formula, repl), nil
}

// Formula renders the instance formula with current parameter values
// formatted by numFmt (empty: shortest exact form). Coded templates render
// as a call, e.g. "Voigt(926, 43.2, 0.144, 0.1)"; piecewise templates keep
// their conditional, e.g. "x < 43.2 ? Voigt(...) : Voigt(...)".
func (f *Function) Formula(numFmt string) (string, error) {
	n, err := f.expression()
	if err != nil {
		return "", err
	}

	return expr.RenderWith(n, numFmt), nil
}

// SimplifiedFormula is Formula with constant sub-expressions folded.
func (f *Function) SimplifiedFormula(numFmt string) (string, error) {
	n, err := f.expression()
	if err != nil {
		return "", err
	}

	return expr.RenderWith(expr.Fold(n), numFmt), nil
}

// Assignment renders the statement that recreates the instance from its
// variables, e.g. "%f = Gaussian($_1, $_2, $_3)".
func (f *Function) Assignment() string {
	args := make([]string, len(f.vars))
	for i, v := range f.vars {
		args[i] = "$" + v
	}

	return "%" + f.name + " = " + f.tpl.Name + "(" + strings.Join(args, ", ") + ")"
}
