package expr

import (
	"fmt"
	"math"

	"github.com/katalvlaran/lvfit/errs"
)

// Scope resolves the names an expression may reference beyond built-ins and
// point attributes. Embed BaseScope to implement only part of it.
type Scope interface {
	// Var returns the value (and gradient) of $name.
	Var(name string) (Dual, error)
	// Call evaluates a non-builtin call such as a template or F(x).
	// ok is false when name is unknown to the scope.
	Call(name string, args []Dual) (d Dual, ok bool, err error)
	// Func returns the value of function instance %name at x.
	Func(name string, x Dual) (Dual, error)
	// FuncParam returns parameter param of function instance %name.
	FuncParam(name, param string) (Dual, error)
}

// BaseScope resolves nothing; every lookup is an EvaluationError.
type BaseScope struct{}

// Var implements Scope.
func (BaseScope) Var(name string) (Dual, error) {
	return Dual{}, fmt.Errorf("unknown variable $%s: %w", name, errs.ErrEvaluation)
}

// Call implements Scope.
func (BaseScope) Call(string, []Dual) (Dual, bool, error) { return Dual{}, false, nil }

// Func implements Scope.
func (BaseScope) Func(name string, _ Dual) (Dual, error) {
	return Dual{}, fmt.Errorf("unknown function %%%s: %w", name, errs.ErrEvaluation)
}

// FuncParam implements Scope.
func (BaseScope) FuncParam(name, param string) (Dual, error) {
	return Dual{}, fmt.Errorf("unknown function %%%s: %w", name, errs.ErrEvaluation)
}

// evaluator carries one evaluation's context. It is never shared.
type evaluator struct {
	scope Scope
	slots []Dual
	cols  *Columns
	point int                  // current point index, -1 outside per-point context
	aggs  map[*Aggregate]float64 // aggregates do not depend on the outer point
}

func newEvaluator(s Scope, slots []Dual, cols *Columns) *evaluator {
	if s == nil {
		s = BaseScope{}
	}

	return &evaluator{scope: s, slots: slots, cols: cols, point: -1}
}

// Eval evaluates n to a scalar. Point attributes and aggregates are not
// available; use EvalData for those.
func Eval(n Node, s Scope) (float64, error) {
	d, err := newEvaluator(s, nil, nil).eval(n)

	return d.V, err
}

// EvalDual evaluates n in forward mode. slots supplies the values of Slot
// nodes created by Bind; their gradients define the slot space.
func EvalDual(n Node, s Scope, slots []Dual) (Dual, error) {
	return newEvaluator(s, slots, nil).eval(n)
}

// EvalData evaluates n to a scalar with dataset aggregates and indexed point
// access available (e.g. "darea(y)", "y[3]", "M").
func EvalData(n Node, s Scope, cols *Columns) (float64, error) {
	d, err := newEvaluator(s, nil, cols).eval(n)

	return d.V, err
}

// EvalPoints evaluates n once per point of cols.
func EvalPoints(n Node, s Scope, cols *Columns) ([]float64, error) {
	e := newEvaluator(s, nil, cols)
	out := make([]float64, cols.Len())
	for i := range out {
		e.point = i
		d, err := e.eval(n)
		if err != nil {
			return nil, err
		}
		out[i] = d.V
	}

	return out, nil
}

func boolDual(b bool) Dual {
	if b {
		return Const(1)
	}

	return Const(0)
}

func (e *evaluator) eval(n Node) (Dual, error) {
	switch n := n.(type) {
	case *Num:
		return Const(n.V), nil
	case *Slot:
		if n.I < 0 || n.I >= len(e.slots) {
			return Dual{}, fmt.Errorf("unbound parameter %s: %w", n.Name, errs.ErrEvaluation)
		}
		return e.slots[n.I], nil
	case *Ident:
		return e.ident(n.Name)
	case *VarRef:
		return e.scope.Var(n.Name)
	case *Unary:
		x, err := e.eval(n.X)
		if err != nil {
			return Dual{}, err
		}
		if n.Op == "not" {
			return boolDual(x.V == 0), nil
		}
		return x.Neg(), nil
	case *Binary:
		return e.binary(n)
	case *Cond:
		c, err := e.eval(n.If)
		if err != nil {
			return Dual{}, err
		}
		if c.V != 0 {
			return e.eval(n.Then)
		}
		return e.eval(n.Else)
	case *Call:
		return e.call(n)
	case *Aggregate:
		v, err := e.aggregate(n)
		return Const(v), err
	case *Index:
		return e.index(n)
	case *FuncRef:
		x, err := e.eval(n.Arg)
		if err != nil {
			return Dual{}, err
		}
		return e.scope.Func(n.Name, x)
	case *FuncParam:
		return e.scope.FuncParam(n.Name, n.Param)
	}

	return Dual{}, fmt.Errorf("unsupported node %T: %w", n, errs.ErrEvaluation)
}

func (e *evaluator) ident(name string) (Dual, error) {
	if v, ok := constants[name]; ok {
		return Const(v), nil
	}
	if e.cols != nil {
		if name == "M" {
			return Const(float64(e.cols.Len())), nil
		}
		if name == "n" || pointAttrs[name] {
			if e.point < 0 {
				return Dual{}, fmt.Errorf("%s is only defined per point: %w", name, errs.ErrEvaluation)
			}
			if name == "n" {
				return Const(float64(e.point)), nil
			}
			return Const(e.cols.attr(name, e.point)), nil
		}
	}

	return Dual{}, fmt.Errorf("unknown name %q: %w", name, errs.ErrEvaluation)
}

func (e *evaluator) binary(n *Binary) (Dual, error) {
	l, err := e.eval(n.L)
	if err != nil {
		return Dual{}, err
	}
	// and/or short-circuit
	switch n.Op {
	case "and":
		if l.V == 0 {
			return Const(0), nil
		}
	case "or":
		if l.V != 0 {
			return Const(1), nil
		}
	}
	r, err := e.eval(n.R)
	if err != nil {
		return Dual{}, err
	}
	switch n.Op {
	case "+":
		return l.Add(r), nil
	case "-":
		return l.Sub(r), nil
	case "*":
		return l.Mul(r), nil
	case "/":
		return l.Div(r), nil
	case "^":
		return l.Pow(r), nil
	case "<":
		return boolDual(l.V < r.V), nil
	case "<=":
		return boolDual(l.V <= r.V), nil
	case ">":
		return boolDual(l.V > r.V), nil
	case ">=":
		return boolDual(l.V >= r.V), nil
	case "==":
		return boolDual(l.V == r.V), nil
	case "!=":
		return boolDual(l.V != r.V), nil
	case "and", "or":
		return boolDual(r.V != 0), nil
	}

	return Dual{}, fmt.Errorf("unknown operator %q: %w", n.Op, errs.ErrEvaluation)
}

func (e *evaluator) call(n *Call) (Dual, error) {
	args := make([]Dual, len(n.Args))
	for i, a := range n.Args {
		d, err := e.eval(a)
		if err != nil {
			return Dual{}, err
		}
		args[i] = d
	}
	if b, ok := builtins[n.Name]; ok {
		if len(args) != b.arity {
			return Dual{}, fmt.Errorf("%s takes %d argument(s), got %d: %w", n.Name, b.arity, len(args), errs.ErrEvaluation)
		}
		return b.fn(args), nil
	}
	d, ok, err := e.scope.Call(n.Name, args)
	if err != nil {
		return Dual{}, err
	}
	if !ok {
		return Dual{}, fmt.Errorf("unknown function %s(): %w", n.Name, errs.ErrEvaluation)
	}

	return d, nil
}

func (e *evaluator) index(n *Index) (Dual, error) {
	if e.cols == nil {
		return Dual{}, fmt.Errorf("%s[...] needs a dataset: %w", n.Name, errs.ErrEvaluation)
	}
	d, err := e.eval(n.Idx)
	if err != nil {
		return Dual{}, err
	}
	i, err := e.cols.resolve(d.V)
	if err != nil {
		return Dual{}, err
	}

	return Const(e.cols.attr(n.Name, i)), nil
}

// aggregate evaluates n.Arg over every point matching n.Where.
func (e *evaluator) aggregate(n *Aggregate) (float64, error) {
	if e.cols == nil {
		return 0, fmt.Errorf("%s() needs a dataset: %w", n.Name, errs.ErrEvaluation)
	}
	if v, ok := e.aggs[n]; ok {
		return v, nil
	}
	saved := e.point
	defer func() { e.point = saved }()

	// 1. Collect per-point values of the selected points
	m := e.cols.Len()
	idx := make([]int, 0, m)
	vals := make([]float64, 0, m)
	for i := 0; i < m; i++ {
		e.point = i
		if n.Where != nil {
			w, err := e.eval(n.Where)
			if err != nil {
				return 0, err
			}
			if w.V == 0 {
				continue
			}
		}
		d, err := e.eval(n.Arg)
		if err != nil {
			return 0, err
		}
		idx = append(idx, i)
		vals = append(vals, d.V)
	}
	// 2. Reduce
	v, err := reduce(n.Name, e.cols, idx, vals)
	if err != nil {
		return 0, err
	}
	if e.aggs == nil {
		e.aggs = make(map[*Aggregate]float64)
	}
	e.aggs[n] = v

	return v, nil
}

func reduce(name string, cols *Columns, idx []int, vals []float64) (float64, error) {
	k := len(vals)
	if k == 0 && name != "count" && name != "sum" && name != "darea" {
		return 0, fmt.Errorf("%s() over no points: %w", name, errs.ErrEvaluation)
	}
	switch name {
	case "count":
		c := 0
		for _, v := range vals {
			if v != 0 {
				c++
			}
		}
		return float64(c), nil
	case "sum":
		s := 0.0
		for _, v := range vals {
			s += v
		}
		return s, nil
	case "darea":
		last := cols.Len() - 1
		s := 0.0
		for j, v := range vals {
			i := idx[j]
			s += v * (cols.X[min(i+1, last)] - cols.X[max(i-1, 0)]) / 2
		}
		return s, nil
	case "avg":
		s := 0.0
		for _, v := range vals {
			s += v
		}
		return s / float64(k), nil
	case "min", "argmin":
		best := 0
		for j, v := range vals {
			if v < vals[best] {
				best = j
			}
		}
		if name == "argmin" {
			return cols.X[idx[best]], nil
		}
		return vals[best], nil
	case "max", "argmax":
		best := 0
		for j, v := range vals {
			if v > vals[best] {
				best = j
			}
		}
		if name == "argmax" {
			return cols.X[idx[best]], nil
		}
		return vals[best], nil
	case "stddev":
		if k < 2 {
			return 0, fmt.Errorf("stddev() needs at least two points: %w", errs.ErrEvaluation)
		}
		mean := 0.0
		for _, v := range vals {
			mean += v
		}
		mean /= float64(k)
		ss := 0.0
		for _, v := range vals {
			ss += (v - mean) * (v - mean)
		}
		return math.Sqrt(ss / float64(k-1)), nil
	}

	return 0, fmt.Errorf("unknown aggregate %s(): %w", name, errs.ErrEvaluation)
}
