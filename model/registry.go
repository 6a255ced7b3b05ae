package model

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/katalvlaran/lvfit/dag"
	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/vars"
)

// Binding attaches one template parameter to a variable. Owned marks a
// variable created for this instance alone (a fresh ~value or a copy); it
// is pruned together with the instance.
type Binding struct {
	Var   string
	Owned bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger; the default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// Registry owns the function instances of a session. Instances are
// immutable: SetParam replaces the stored *Function, so a value obtained
// from Get stays consistent while it is used.
type Registry struct {
	mu    sync.RWMutex
	lib   *Library
	vars  *vars.Graph
	funcs map[string]*Function
	order []string
	refs  map[string]int // model memberships
	next  int
	log   *zap.Logger
}

// NewRegistry creates an empty registry over lib and g.
func NewRegistry(lib *Library, g *vars.Graph, opts ...Option) *Registry {
	r := &Registry{
		lib:   lib,
		vars:  g,
		funcs: make(map[string]*Function),
		refs:  make(map[string]int),
		log:   zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}

	return r
}

// Library returns the template library.
func (r *Registry) Library() *Library { return r.lib }

// Vars returns the variable graph.
func (r *Registry) Vars() *vars.Graph { return r.vars }

func owner(name string) string { return "%" + name }

// NextAuto returns the name the next anonymous instance will get.
func (r *Registry) NextAuto() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.peekAutoLocked()
}

func (r *Registry) peekAutoLocked() string {
	name, _ := r.scanAutoLocked()

	return name
}

func (r *Registry) scanAutoLocked() (string, int) {
	for n := r.next + 1; ; n++ {
		name := fmt.Sprintf("_%d", n)
		if _, taken := r.funcs[name]; !taken {
			return name, n
		}
	}
}

func (r *Registry) autoLocked() string {
	name, n := r.scanAutoLocked()
	r.next = n

	return name
}

// Has reports whether instance name exists.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]

	return ok
}

// Get returns instance name.
func (r *Registry) Get(name string) (*Function, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("model: undefined function %%%s: %w", name, errs.ErrEvaluation)
	}

	return f, nil
}

// Names returns instance names in creation order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Functions returns all instances in creation order.
func (r *Registry) Functions() []*Function {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Function, len(r.order))
	for i, n := range r.order {
		out[i] = r.funcs[n]
	}

	return out
}

// ParamVar creates an auto-named simple variable for parameter i of tpl,
// carrying a copy of the parameter's default domain.
func (r *Registry) ParamVar(tpl *Template, i int, value float64, free bool) (string, error) {
	var dom *vars.Domain
	if d := tpl.Params[i].Domain; d != nil {
		c := *d
		dom = &c
	}

	return r.vars.NewAuto(value, free, dom)
}

// Create instantiates template with one binding per parameter. An empty
// name picks the next auto name (_N); an existing name is redefined in
// place, keeping its model memberships.
func (r *Registry) Create(name, template string, bindings []Binding) (*Function, error) {
	tpl, err := r.lib.Get(template)
	if err != nil {
		return nil, err
	}
	if len(bindings) != len(tpl.Params) {
		return nil, fmt.Errorf("model: %s takes %d parameter(s), got %d: %w",
			tpl.Name, len(tpl.Params), len(bindings), errs.ErrEvaluation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		name = r.autoLocked()
	} else if !vars.ValidName(name) {
		return nil, fmt.Errorf("model: invalid function name %q: %w", name, errs.ErrSyntax)
	}
	f := &Function{name: name, tpl: tpl, vars: make([]string, len(bindings)), reg: r}
	for i, b := range bindings {
		f.vars[i] = b.Var
	}
	if err = r.storeLocked(f, bindings); err != nil {
		return nil, err
	}
	r.log.Debug("create function", zap.String("name", name), zap.String("template", tpl.Name), zap.Strings("vars", f.vars))

	return f, nil
}

// CreateFromValues instantiates template with fresh auto-named variables
// initialised to values (free or fixed). Variables are rolled back when the
// instance cannot be created.
func (r *Registry) CreateFromValues(name, template string, values []float64, free bool) (*Function, error) {
	tpl, err := r.lib.Get(template)
	if err != nil {
		return nil, err
	}
	if len(values) != len(tpl.Params) {
		return nil, fmt.Errorf("model: %s takes %d parameter(s), got %d: %w",
			tpl.Name, len(tpl.Params), len(values), errs.ErrEvaluation)
	}
	bindings := make([]Binding, 0, len(values))
	for i, v := range values {
		n, err := r.ParamVar(tpl, i, v, free)
		if err != nil {
			r.vars.Prune()
			return nil, err
		}
		bindings = append(bindings, Binding{Var: n, Owned: true})
	}
	f, err := r.Create(name, template, bindings)
	if err != nil {
		r.vars.Prune()
		return nil, err
	}

	return f, nil
}

// storeLocked attaches f's variables and stores f, replacing any instance of
// the same name.
func (r *Registry) storeLocked(f *Function, bindings []Binding) error {
	deps := make(map[string]dag.Tag, len(bindings))
	for _, b := range bindings {
		tag := dag.Shared
		if b.Owned {
			tag = dag.Owned
		}
		if prev, seen := deps[b.Var]; !seen || prev == dag.Shared {
			deps[b.Var] = tag
		}
	}
	if err := r.vars.Attach(owner(f.name), deps); err != nil {
		return err
	}
	if _, existed := r.funcs[f.name]; !existed {
		r.order = append(r.order, f.name)
	}
	r.funcs[f.name] = f
	r.vars.Prune()

	return nil
}

func (r *Registry) bindingsOf(f *Function) []Binding {
	edges := r.vars.Edges(owner(f.name))
	out := make([]Binding, len(f.vars))
	for i, v := range f.vars {
		out[i] = Binding{Var: v, Owned: edges[v] == dag.Owned}
	}

	return out
}

// SetParam rebinds one parameter of instance name. The previous variable is
// pruned when it was auto-named and nothing else uses it.
func (r *Registry) SetParam(name, param string, b Binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.funcs[name]
	if !ok {
		return fmt.Errorf("model: undefined function %%%s: %w", name, errs.ErrEvaluation)
	}
	i := f.tpl.ParamIndex(param)
	if i < 0 {
		return fmt.Errorf("model: %%%s has no parameter %s: %w", name, param, errs.ErrEvaluation)
	}
	bindings := r.bindingsOf(f)
	bindings[i] = b
	nf := &Function{name: f.name, tpl: f.tpl, vars: append([]string(nil), f.vars...), reg: r}
	nf.vars[i] = b.Var

	return r.storeLocked(nf, bindings)
}

// Copy makes dst an independent copy of src: every parameter variable is
// deep-copied into fresh auto-named variables. An empty dst picks an auto
// name.
func (r *Registry) Copy(dst, src string) (*Function, error) {
	f, err := r.Get(src)
	if err != nil {
		return nil, err
	}
	bindings := make([]Binding, len(f.vars))
	for i, v := range f.vars {
		n, err := r.vars.CopyAuto(v)
		if err != nil {
			r.vars.Prune()
			return nil, err
		}
		bindings[i] = Binding{Var: n, Owned: true}
	}
	nf, err := r.Create(dst, f.tpl.Name, bindings)
	if err != nil {
		r.vars.Prune()
		return nil, err
	}

	return nf, nil
}

// Delete removes instance name. It fails with ErrReference while a model
// still contains it. Auto-named variables left unused are pruned.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; !ok {
		return fmt.Errorf("model: undefined function %%%s: %w", name, errs.ErrEvaluation)
	}
	if n := r.refs[name]; n > 0 {
		return fmt.Errorf("model: %%%s is used by %d model(s): %w", name, n, errs.ErrReference)
	}
	r.vars.Detach(owner(name))
	delete(r.funcs, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	pruned := r.vars.Prune()
	r.log.Debug("delete function", zap.String("name", name), zap.Strings("pruned", pruned))

	return nil
}

// Undefine removes a user template that has no instances.
func (r *Registry) Undefine(template string) error {
	r.mu.RLock()
	for _, f := range r.funcs {
		if f.tpl.Name == template {
			r.mu.RUnlock()
			return fmt.Errorf("model: %s is used by %%%s: %w", template, f.name, errs.ErrReference)
		}
	}
	r.mu.RUnlock()

	return r.lib.Undefine(template)
}

// Uses returns how many models contain instance name.
func (r *Registry) Uses(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.refs[name]
}
