package session

import (
	"fmt"

	"github.com/katalvlaran/lvfit/dataset"
	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
)

// scope resolves $variables, %functions and F(x) while evaluating a
// formula for dataset ds.
type scope struct {
	s  *Session
	ds int
}

var _ expr.Scope = scope{}

func (c scope) Var(name string) (expr.Dual, error) {
	v, err := c.s.g.Value(name)
	if err != nil {
		return expr.Dual{}, err
	}

	return expr.Const(v), nil
}

// Call handles F(x), the model of the scope's dataset.
func (c scope) Call(name string, args []expr.Dual) (expr.Dual, bool, error) {
	if name != "F" {
		return expr.Dual{}, false, nil
	}
	if len(args) != 1 {
		return expr.Dual{}, true, fmt.Errorf("session: F takes 1 argument, got %d: %w", len(args), errs.ErrEvaluation)
	}
	y, err := c.s.models[c.ds].Value(args[0].V)

	return expr.Const(y), true, err
}

func (c scope) Func(name string, x expr.Dual) (expr.Dual, error) {
	f, err := c.s.reg.Get(name)
	if err != nil {
		return expr.Dual{}, err
	}
	y, err := f.Value(x.V)

	return expr.Const(y), err
}

func (c scope) FuncParam(name, param string) (expr.Dual, error) {
	f, err := c.s.reg.Get(name)
	if err != nil {
		return expr.Dual{}, err
	}
	v, err := f.ParamValue(param)

	return expr.Const(v), err
}

// dataset returns dataset ds.
func (s *Session) dataset(ds int) (*dataset.Dataset, error) { return s.data.Get(ds) }

// evalIn evaluates n with the aggregates and indexed points of dataset ds
// available, e.g. "max(y)" or "x[0]".
func (s *Session) evalIn(n expr.Node, ds int) (float64, error) {
	d, err := s.dataset(ds)
	if err != nil {
		return 0, err
	}

	return d.Eval(n, scope{s: s, ds: ds})
}

// dataDependent reports whether n reads datasets or functions, so it must
// be evaluated when the statement runs instead of being stored.
func dataDependent(n expr.Node) bool {
	found := false
	expr.Walk(n, func(m expr.Node) bool {
		switch v := m.(type) {
		case *expr.Aggregate, *expr.Index, *expr.FuncRef, *expr.FuncParam:
			found = true
		case *expr.Call:
			found = found || v.Name == "F"
		case *expr.Ident:
			found = found || v.Name == "M"
		}
		return !found
	})

	return found
}
