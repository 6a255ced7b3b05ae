package vars

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/katalvlaran/lvfit/dag"
	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
)

// entry is the mutable state of one variable.
type entry struct {
	name   string
	kind   Kind
	value  float64
	free   bool
	domain *Domain
	node   expr.Node
	refs   []string // expr.Refs(node), in slot order
	stdErr float64

	stale bool
	grad  map[string]float64 // ∂value/∂simple variable
}

// Graph owns all variables of a session.
//
// mu guards every field, including the lazily refreshed values; reads take
// it too because they may refresh stale compounds.
type Graph struct {
	mu       sync.Mutex
	deps     *dag.Graph
	vars     map[string]*entry
	owners   map[string]bool // non-variable vertices registered by Attach
	nextAuto int
	log      *zap.Logger
}

// New returns an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		deps:   dag.New(),
		vars:   make(map[string]*entry),
		owners: make(map[string]bool),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Has reports whether name is a variable.
func (g *Graph) Has(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.vars[name]

	return ok
}

// Names returns all variable names, sorted.
func (g *Graph) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.vars))
	for n := range g.vars {
		out = append(out, n)
	}
	sort.Strings(out)

	return out
}

// NextAuto reserves and returns a fresh auto name (_N).
func (g *Graph) NextAuto() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.nextAutoLocked()
}

func (g *Graph) nextAutoLocked() string {
	for {
		g.nextAuto++
		name := autoName(g.nextAuto)
		if _, taken := g.vars[name]; !taken && !g.owners[name] {
			return name
		}
	}
}

// noteName keeps the auto counter ahead of explicitly declared _N names.
func (g *Graph) noteName(name string) {
	if m := autoRe.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > g.nextAuto {
			g.nextAuto = n
		}
	}
}

func (g *Graph) lookup(name string) (*entry, error) {
	e, ok := g.vars[name]
	if !ok {
		return nil, fmt.Errorf("vars: $%s: undefined variable: %w", name, errs.ErrEvaluation)
	}

	return e, nil
}

// DeclareSimple creates or redefines name as a simple variable. A nil dom
// keeps the domain of an existing simple variable of the same name, so
// redefinition cannot escape a declared bound. Out-of-domain values fail
// with ErrDomain and change nothing.
func (g *Graph) DeclareSimple(name string, value float64, free bool, dom *Domain) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.declareSimpleLocked(name, value, free, dom)
}

func (g *Graph) declareSimpleLocked(name string, value float64, free bool, dom *Domain) error {
	old := g.vars[name]
	if dom == nil && old != nil && old.kind == Simple && old.domain != nil {
		d := *old.domain
		dom = &d
	}

	return g.installSimpleLocked(name, value, free, dom)
}

// installSimpleLocked makes name a simple variable with exactly dom, which
// may be nil.
func (g *Graph) installSimpleLocked(name string, value float64, free bool, dom *Domain) error {
	// 1. Validate
	if !ValidName(name) {
		return fmt.Errorf("vars: %q is not a valid variable name: %w", name, errs.ErrSyntax)
	}
	if g.owners[name] {
		return fmt.Errorf("vars: $%s: name taken: %w", name, errs.ErrEvaluation)
	}
	if dom != nil {
		if dom.Lo > dom.Hi {
			return fmt.Errorf("vars: $%s: empty domain %s: %w", name, dom, errs.ErrDomain)
		}
		if !dom.Contains(value) {
			return fmt.Errorf("vars: $%s = %g outside %s: %w", name, value, dom, errs.ErrDomain)
		}
	}
	// 2. Install vertex and drop previous dependencies
	if err := g.deps.AddVertex(name); err != nil {
		return err
	}
	if err := g.deps.SetDependencies(name, nil); err != nil {
		return err
	}
	// 3. Commit
	e := &entry{name: name, kind: Simple, value: value, free: free, domain: dom, stdErr: math.NaN()}
	e.grad = map[string]float64{name: 1}
	g.vars[name] = e
	g.noteName(name)
	g.invalidateLocked(name)
	g.log.Debug("declare simple", zap.String("name", name), zap.Float64("value", value), zap.Bool("free", free))

	return nil
}

// DeclareCompound creates or redefines name as the expression node over
// other variables. Unknown references are ErrEvaluation; a definition that
// would make name depend on itself is ErrReference. Nothing changes on error.
func (g *Graph) DeclareCompound(name string, node expr.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.declareCompoundLocked(name, node, dag.Shared)
}

func (g *Graph) declareCompoundLocked(name string, node expr.Node, tag dag.Tag) error {
	// 1. Validate name and references
	if !ValidName(name) {
		return fmt.Errorf("vars: %q is not a valid variable name: %w", name, errs.ErrSyntax)
	}
	if g.owners[name] {
		return fmt.Errorf("vars: $%s: name taken: %w", name, errs.ErrEvaluation)
	}
	if ids := expr.Idents(node); len(ids) > 0 {
		return fmt.Errorf("vars: $%s: unknown name %q in definition: %w", name, ids[0], errs.ErrEvaluation)
	}
	if fs := expr.FuncRefs(node); len(fs) > 0 {
		return fmt.Errorf("vars: $%s: function reference %%%s in definition: %w", name, fs[0], errs.ErrEvaluation)
	}
	refs := expr.Refs(node)
	deps := make(map[string]dag.Tag, len(refs))
	for _, r := range refs {
		if _, err := g.lookup(r); err != nil {
			return err
		}
		deps[r] = tag
	}
	trial := &entry{name: name, kind: Compound, node: node, refs: refs, stale: true}
	if err := g.refreshLocked(trial); err != nil {
		return err
	}
	// 2. Install edges; the dag rejects cycles atomically
	_, existed := g.vars[name]
	if err := g.deps.AddVertex(name); err != nil {
		return err
	}
	if err := g.deps.SetDependencies(name, deps); err != nil {
		if !existed {
			_ = g.deps.RemoveVertex(name)
		}
		if errors.Is(err, dag.ErrCycleDetected) {
			return fmt.Errorf("vars: $%s: circular definition: %w", name, errs.ErrReference)
		}
		return err
	}
	// 3. Commit
	trial.stdErr = math.NaN()
	g.vars[name] = trial
	g.noteName(name)
	g.invalidateLocked(name)
	g.log.Debug("declare compound", zap.String("name", name), zap.String("expr", expr.Render(node)))

	return nil
}

// invalidateLocked marks every transitive dependent of name stale.
func (g *Graph) invalidateLocked(name string) {
	for _, d := range g.deps.Reachable(name) {
		if e, ok := g.vars[d]; ok && e.kind == Compound {
			e.stale = true
		}
	}
}

// refreshLocked recomputes a stale compound value and gradient, refreshing
// its dependencies first.
func (g *Graph) refreshLocked(e *entry) error {
	if e.kind == Simple || !e.stale {
		return nil
	}
	deps := make([]*entry, len(e.refs))
	for j, r := range e.refs {
		d, err := g.lookup(r)
		if err != nil {
			return err
		}
		if err = g.refreshLocked(d); err != nil {
			return err
		}
		deps[j] = d
	}
	d, err := expr.EvalDual(e.node, slotScope{refs: e.refs, deps: deps}, nil)
	if err != nil {
		return fmt.Errorf("vars: $%s: %w", e.name, err)
	}
	grad := make(map[string]float64)
	for j, dep := range deps {
		pj := d.Partial(j)
		if pj == 0 {
			continue
		}
		for s, gs := range dep.grad {
			grad[s] += pj * gs
		}
	}
	e.value, e.grad, e.stale = d.V, grad, false

	return nil
}

// slotScope exposes direct dependencies as seeded duals.
type slotScope struct {
	expr.BaseScope
	refs []string
	deps []*entry
}

func (s slotScope) Var(name string) (expr.Dual, error) {
	for j, r := range s.refs {
		if r == name {
			return expr.Seed(s.deps[j].value, j, len(s.refs)), nil
		}
	}

	return s.BaseScope.Var(name)
}

// Value returns the current value of name, recomputing it if stale.
func (g *Graph) Value(name string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.lookup(name)
	if err != nil {
		return 0, err
	}
	if err = g.refreshLocked(e); err != nil {
		return 0, err
	}

	return e.value, nil
}

// Gradient returns ∂name/∂s for every simple variable s it depends on with
// a non-zero partial. A simple variable's gradient is {name: 1}.
func (g *Graph) Gradient(name string) (map[string]float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.lookup(name)
	if err != nil {
		return nil, err
	}
	if err = g.refreshLocked(e); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(e.grad))
	for k, v := range e.grad {
		out[k] = v
	}

	return out, nil
}

// Dual returns name's value seeded over the slot space index: partials with
// respect to simple variables listed in index, other partials dropped.
func (g *Graph) Dual(name string, index map[string]int) (expr.Dual, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.lookup(name)
	if err != nil {
		return expr.Dual{}, err
	}
	if err = g.refreshLocked(e); err != nil {
		return expr.Dual{}, err
	}
	var d []float64
	for s, v := range e.grad {
		if i, ok := index[s]; ok {
			if d == nil {
				d = make([]float64, len(index))
			}
			d[i] += v
		}
	}

	return expr.Dual{V: e.value, D: d}, nil
}

// Get returns a view of name.
func (g *Graph) Get(name string) (Variable, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.lookup(name)
	if err != nil {
		return Variable{}, err
	}
	if err = g.refreshLocked(e); err != nil {
		return Variable{}, err
	}
	v := Variable{
		Name:   e.name,
		Kind:   e.kind,
		Value:  e.value,
		Free:   e.free,
		Expr:   e.node,
		Auto:   IsAuto(e.name),
		StdErr: e.stdErr,
		Deps:   g.deps.Predecessors(e.name),
	}
	if e.domain != nil {
		d := *e.domain
		v.Domain = &d
	}

	return v, nil
}

// Assign sets a simple variable's value. A compound is ErrEvaluation; a
// value outside the domain is ErrDomain and leaves the prior value.
func (g *Graph) Assign(name string, value float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.assignable(name, value)
	if err != nil {
		return err
	}
	e.value = value
	g.invalidateLocked(name)

	return nil
}

func (g *Graph) assignable(name string, value float64) (*entry, error) {
	e, err := g.lookup(name)
	if err != nil {
		return nil, err
	}
	if e.kind != Simple {
		return nil, fmt.Errorf("vars: $%s is compound and cannot be assigned: %w", name, errs.ErrEvaluation)
	}
	if e.domain != nil && !e.domain.Contains(value) {
		return nil, fmt.Errorf("vars: $%s = %g outside %s: %w", name, value, e.domain, errs.ErrDomain)
	}

	return e, nil
}

// SetDomain replaces a simple variable's domain (nil clears it). Compound
// variables cannot carry a domain; a current value outside the new domain
// is rejected. Both are ErrDomain.
func (g *Graph) SetDomain(name string, dom *Domain) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.lookup(name)
	if err != nil {
		return err
	}
	if e.kind != Simple {
		return fmt.Errorf("vars: $%s is compound and cannot have a domain: %w", name, errs.ErrDomain)
	}
	if dom != nil {
		if dom.Lo > dom.Hi || !dom.Contains(e.value) {
			return fmt.Errorf("vars: $%s = %g outside %s: %w", name, e.value, dom, errs.ErrDomain)
		}
		d := *dom
		dom = &d
	}
	e.domain = dom

	return nil
}

// SetFree marks a simple variable as fitted (true) or fixed (false).
func (g *Graph) SetFree(name string, free bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.lookup(name)
	if err != nil {
		return err
	}
	if e.kind != Simple {
		return fmt.Errorf("vars: $%s is compound: %w", name, errs.ErrEvaluation)
	}
	e.free = free

	return nil
}

// Delete removes name. It fails with ErrReference while another variable or
// an attached owner depends on it.
func (g *Graph) Delete(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.lookup(name); err != nil {
		return err
	}
	if users := g.deps.Successors(name); len(users) > 0 {
		return fmt.Errorf("vars: cannot delete $%s, used by %v: %w", name, users, errs.ErrReference)
	}
	if err := g.deps.RemoveVertex(name); err != nil {
		return err
	}
	delete(g.vars, name)
	g.log.Debug("delete variable", zap.String("name", name))

	return nil
}

// Users returns the direct dependents of name: variables and owners.
func (g *Graph) Users(name string) []string {
	return g.deps.Successors(name)
}

// Edges returns name's direct dependencies with their tags.
func (g *Graph) Edges(name string) map[string]dag.Tag {
	return g.deps.Dependencies(name)
}

// Attach registers owner (e.g. a function instance) as a user of vars with
// the given tags, replacing any previous registration. Owner names share the
// vertex namespace, so callers prefix them (e.g. "%f").
func (g *Graph) Attach(owner string, deps map[string]dag.Tag) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, isVar := g.vars[owner]; isVar {
		return fmt.Errorf("vars: owner %q collides with a variable: %w", owner, errs.ErrEvaluation)
	}
	for v := range deps {
		if _, err := g.lookup(v); err != nil {
			return err
		}
	}
	existed := g.owners[owner]
	if err := g.deps.AddVertex(owner); err != nil {
		return err
	}
	if err := g.deps.SetDependencies(owner, deps); err != nil {
		if !existed {
			_ = g.deps.RemoveVertex(owner)
		}
		return err
	}
	g.owners[owner] = true

	return nil
}

// Detach removes owner's registration.
func (g *Graph) Detach(owner string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.owners[owner] {
		_ = g.deps.RemoveVertex(owner)
		delete(g.owners, owner)
	}
}

// Ordered returns all variable names in dependency order: every variable
// follows the variables it references.
func (g *Graph) Ordered() ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, err := dag.TopologicalSort(g.deps)
	if err != nil {
		return nil, fmt.Errorf("vars: %v: %w", err, errs.ErrReference)
	}
	out := order[:0]
	for _, id := range order {
		if _, ok := g.vars[id]; ok {
			out = append(out, id)
		}
	}

	return out, nil
}

// Definition renders name's right-hand side: "~1.5 [0:10]", "2" or the
// compound expression.
func (g *Graph) Definition(name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.lookup(name)
	if err != nil {
		return "", err
	}
	if e.kind == Compound {
		return expr.Render(e.node), nil
	}
	s := expr.FormatNumber(e.value)
	if e.free {
		s = "~" + s
	}
	if e.domain != nil {
		s += " " + e.domain.String()
	}

	return s, nil
}
