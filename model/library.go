package model

import (
	"fmt"
	"sync"

	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
)

// Library is the catalog of templates: the built-ins plus user definitions.
// It is safe for concurrent use.
type Library struct {
	mu    sync.RWMutex
	tpls  map[string]*Template
	order []string
}

// NewLibrary returns a library holding the built-in templates.
func NewLibrary() *Library {
	l := &Library{tpls: make(map[string]*Template)}
	for _, src := range builtinSources {
		t, err := l.parse(src)
		if err != nil {
			panic(fmt.Sprintf("model: built-in template %q: %v", src, err))
		}
		t.Builtin = true
		l.add(t)
	}

	return l
}

func (l *Library) add(t *Template) {
	l.tpls[t.Name] = t
	l.order = append(l.order, t.Name)
}

func (l *Library) lookup(name string) (*Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tpls[name]

	return t, ok
}

// Get returns the template called name.
func (l *Library) Get(name string) (*Template, error) {
	t, ok := l.lookup(name)
	if !ok {
		return nil, fmt.Errorf("model: undefined template %s: %w", name, errs.ErrEvaluation)
	}

	return t, nil
}

// Has reports whether name is defined.
func (l *Library) Has(name string) bool {
	_, ok := l.lookup(name)

	return ok
}

// Names returns every template name, built-ins first, in definition order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]string(nil), l.order...)
}

// UserDefined returns the templates added with Define, oldest first.
func (l *Library) UserDefined() []*Template {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Template
	for _, n := range l.order {
		if t := l.tpls[n]; !t.Builtin {
			out = append(out, t)
		}
	}

	return out
}

// Define adds a template from "Name(p1, p2=default [lo:hi], ...) = formula".
// The formula may use x, the parameters, built-in functions and previously
// defined templates. A name already in use must be undefined first.
func (l *Library) Define(src string) (*Template, error) {
	t, err := l.parse(src)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.tpls[t.Name]; dup {
		return nil, fmt.Errorf("model: %s is already defined (undefine it first): %w", t.Name, errs.ErrEvaluation)
	}
	l.add(t)

	return t, nil
}

// parse reads a definition. Header-only sources are accepted for the names
// in codedTemplates.
func (l *Library) parse(src string) (*Template, error) {
	p, err := expr.NewParser(src)
	if err != nil {
		return nil, err
	}
	t, err := parseHeader(p)
	if err != nil {
		return nil, err
	}
	if p.AtEnd() {
		fn, ok := codedTemplates[t.Name]
		if !ok || l.Has(t.Name) {
			return nil, p.Unexpected("expected '=' and a formula")
		}
		t.code = fn
		t.Kind = KindCoded

		return t, nil
	}
	if err = p.Expect("="); err != nil {
		return nil, err
	}
	if t.Formula, err = p.ParseExpr(); err != nil {
		return nil, err
	}
	if !p.AtEnd() {
		return nil, p.Unexpected("end of definition")
	}
	if err = t.classify(l); err != nil {
		return nil, err
	}

	return t, nil
}

// Undefine removes a user template. Built-ins and templates called by other
// templates cannot be removed; Registry.Undefine also refuses templates that
// still have instances.
func (l *Library) Undefine(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tpls[name]
	if !ok {
		return fmt.Errorf("model: undefined template %s: %w", name, errs.ErrEvaluation)
	}
	if t.Builtin {
		return fmt.Errorf("model: cannot undefine built-in template %s: %w", name, errs.ErrEvaluation)
	}
	for _, other := range l.tpls {
		for _, c := range other.calls {
			if c == name {
				return fmt.Errorf("model: %s is used by template %s: %w", name, other.Name, errs.ErrReference)
			}
		}
	}
	delete(l.tpls, name)
	for i, n := range l.order {
		if n == name {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}

	return nil
}
