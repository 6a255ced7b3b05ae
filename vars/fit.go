package vars

import (
	"fmt"
	"math"
	"sort"

	"github.com/katalvlaran/lvfit/expr"
)

// SimpleRoots returns the simple variables that the given variables (or
// owners registered with Attach) depend on, sorted. Simple variables in
// names are included themselves.
func (g *Graph) SimpleRoots(names ...string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		for _, d := range g.deps.Predecessors(n) {
			walk(d)
		}
	}
	for _, n := range names {
		walk(n)
	}
	var out []string
	for n := range seen {
		if e, ok := g.vars[n]; ok && e.kind == Simple {
			out = append(out, n)
		}
	}
	sort.Strings(out)

	return out
}

// FreeParams returns the free simple variables among SimpleRoots(names...).
// With no names it returns every free simple variable.
func (g *Graph) FreeParams(names ...string) []string {
	var cand []string
	if len(names) == 0 {
		cand = g.Names()
	} else {
		cand = g.SimpleRoots(names...)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := cand[:0]
	for _, n := range cand {
		if e, ok := g.vars[n]; ok && e.kind == Simple && e.free {
			out = append(out, n)
		}
	}

	return out
}

// Values returns the values of names in order.
func (g *Graph) Values(names []string) ([]float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]float64, len(names))
	for i, n := range names {
		e, err := g.lookup(n)
		if err != nil {
			return nil, err
		}
		if err = g.refreshLocked(e); err != nil {
			return nil, err
		}
		out[i] = e.value
	}

	return out, nil
}

// AssignAll assigns values to the simple variables names, all or nothing:
// any compound name or out-of-domain value fails before anything changes.
func (g *Graph) AssignAll(names []string, values []float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ents := make([]*entry, len(names))
	for i, n := range names {
		e, err := g.assignable(n, values[i])
		if err != nil {
			return err
		}
		ents[i] = e
	}
	for i, e := range ents {
		e.value = values[i]
	}
	for _, e := range g.vars {
		if e.kind == Compound {
			e.stale = true
		}
	}

	return nil
}

// Domains returns the domain of each simple variable in names (Unbounded
// when none is declared).
func (g *Graph) Domains(names []string) []Domain {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Domain, len(names))
	for i, n := range names {
		out[i] = Unbounded
		if e, ok := g.vars[n]; ok && e.domain != nil {
			out[i] = *e.domain
		}
	}

	return out
}

// Snapshot captures every simple variable's value.
type Snapshot map[string]float64

// Snapshot returns the current simple values.
func (g *Graph) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := make(Snapshot, len(g.vars))
	for n, e := range g.vars {
		if e.kind == Simple {
			s[n] = e.value
		}
	}

	return s
}

// Restore writes back snapshot values for variables that still exist as
// simple variables; domains are not re-checked since the values were valid
// when taken. Restore is how a fit history step is undone.
func (g *Graph) Restore(s Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for n, v := range s {
		if e, ok := g.vars[n]; ok && e.kind == Simple {
			e.value = v
		}
	}
	for _, e := range g.vars {
		if e.kind == Compound {
			e.stale = true
		}
	}
}

// SetStdErr records a fitted standard error for a simple variable.
func (g *Graph) SetStdErr(name string, v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.vars[name]; ok {
		e.stdErr = v
	}
}

// StdErr returns a variable's standard error. Simple variables report the
// last fitted value; compound ones propagate simple errors linearly,
// ignoring covariances. ok is false when no error is known.
func (g *Graph) StdErr(name string) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.vars[name]
	if !ok {
		return 0, false
	}
	if e.kind == Simple {
		return e.stdErr, !math.IsNaN(e.stdErr)
	}
	if g.refreshLocked(e) != nil {
		return 0, false
	}
	var ss float64
	known := false
	for s, p := range e.grad {
		if se := g.vars[s]; se != nil && !math.IsNaN(se.stdErr) {
			ss += p * p * se.stdErr * se.stdErr
			known = true
		}
	}

	return math.Sqrt(ss), known
}

// Variation returns the search range of a simple variable: its domain when
// both bounds are finite, otherwise value ± |value|·percent/100 (± percent/100
// around zero).
func (g *Graph) Variation(name string, percent float64) (lo, hi float64, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.lookup(name)
	if err != nil {
		return 0, 0, err
	}
	if e.domain != nil && e.domain.Finite() {
		return e.domain.Lo, e.domain.Hi, nil
	}
	w := math.Abs(e.value) * percent / 100
	if w == 0 {
		w = percent / 100
	}
	lo, hi = e.value-w, e.value+w
	if e.domain != nil {
		lo, hi = math.Max(lo, e.domain.Lo), math.Min(hi, e.domain.Hi)
	}

	return lo, hi, nil
}

// Trial evaluates names as if each simple variable params[i] held
// values[i], without touching stored values. The duals carry partials over
// the slot space params (nil D when grad is false).
func (g *Graph) Trial(names, params []string, values []float64, grad bool) (map[string]expr.Dual, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t := &trial{g: g, memo: make(map[string]expr.Dual), index: make(map[string]int, len(params)), values: values, grad: grad}
	for i, p := range params {
		t.index[p] = i
	}
	out := make(map[string]expr.Dual, len(names))
	for _, n := range names {
		d, err := t.Var(n)
		if err != nil {
			return nil, err
		}
		out[n] = d
	}

	return out, nil
}

// trial is the scope of one Trial call; compound definitions read their
// references through it.
type trial struct {
	expr.BaseScope
	g      *Graph
	memo   map[string]expr.Dual
	index  map[string]int
	values []float64
	grad   bool
}

func (t *trial) Var(name string) (expr.Dual, error) {
	if d, ok := t.memo[name]; ok {
		return d, nil
	}
	e, err := t.g.lookup(name)
	if err != nil {
		return expr.Dual{}, err
	}
	var d expr.Dual
	switch i, isParam := t.index[name]; {
	case e.kind == Simple && isParam && t.grad:
		d = expr.Seed(t.values[i], i, len(t.values))
	case e.kind == Simple && isParam:
		d = expr.Const(t.values[i])
	case e.kind == Simple:
		d = expr.Const(e.value)
	default:
		if d, err = expr.EvalDual(e.node, t, nil); err != nil {
			return expr.Dual{}, fmt.Errorf("vars: $%s: %w", name, err)
		}
	}
	t.memo[name] = d

	return d, nil
}
