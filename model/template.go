package model

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
	"github.com/katalvlaran/lvfit/vars"
)

// Kind classifies how a template computes its value.
type Kind int

const (
	// KindExpression templates are closed-form formulas over x and parameters.
	KindExpression Kind = iota
	// KindPiecewise templates choose between template calls with a conditional.
	KindPiecewise
	// KindCompound templates combine calls to other templates.
	KindCompound
	// KindCoded templates are evaluated in Go.
	KindCoded
)

var kindNames = [...]string{"expression", "piecewise", "compound", "coded"}

// String returns the kind's lower-case name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

// Param is one template parameter.
type Param struct {
	Name string
	// Default is an expression over guess traits (center, height, hwhm,
	// slope, ...). Nil means the parameter's own name read as a trait.
	Default expr.Node
	// Domain is copied into simple variables created for new instances.
	Domain *vars.Domain
}

// coded evaluates a KindCoded template.
type coded func(x expr.Dual, p []expr.Dual) expr.Dual

// Template is a named, parametrized shape.
type Template struct {
	Name    string
	Params  []Param
	Formula expr.Node // nil for coded templates
	Kind    Kind
	Builtin bool

	bound expr.Node // Formula with x and the parameters bound to slots
	calls []string  // templates called by Formula
	code  coded
}

var (
	templateNameRe = regexp.MustCompile(`^[A-Z][A-Za-z0-9_]*$`)
	paramNameRe    = regexp.MustCompile(`^[a-z][A-Za-z0-9_]*$`)
)

// ParamNames returns the parameter names in order.
func (t *Template) ParamNames() []string {
	out := make([]string, len(t.Params))
	for i, p := range t.Params {
		out[i] = p.Name
	}

	return out
}

// ParamIndex returns the position of param, or -1.
func (t *Template) ParamIndex(param string) int {
	for i, p := range t.Params {
		if p.Name == param {
			return i
		}
	}

	return -1
}

// DefaultOf returns the default expression of parameter i.
func (t *Template) DefaultOf(i int) expr.Node {
	if d := t.Params[i].Default; d != nil {
		return d
	}

	return &expr.Ident{Name: t.Params[i].Name}
}

// Traits returns the distinct names the parameter defaults refer to.
func (t *Template) Traits() []string {
	var (
		out  []string
		seen = map[string]bool{}
	)
	for i := range t.Params {
		for _, id := range expr.Idents(t.DefaultOf(i)) {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}

	return out
}

// Calls returns the templates this one calls.
func (t *Template) Calls() []string { return append([]string(nil), t.calls...) }

// Header renders "Name(a, b=hwhm*0.8, c=0.5 [0:1])".
func (t *Template) Header() string {
	var b strings.Builder
	b.WriteString(t.Name)
	b.WriteByte('(')
	for i, p := range t.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		if p.Default != nil {
			b.WriteByte('=')
			b.WriteString(expr.Render(p.Default))
		}
		if p.Domain != nil {
			b.WriteByte(' ')
			b.WriteString(p.Domain.String())
		}
	}
	b.WriteByte(')')

	return b.String()
}

// Definition renders the template the way Define accepts it.
func (t *Template) Definition() string {
	if t.Kind == KindCoded {
		return t.Header() + " = <coded>"
	}

	return t.Header() + " = " + expr.Render(t.Formula)
}

// at evaluates the template at x with the given parameters.
func (t *Template) at(lib *Library, x expr.Dual, params []expr.Dual) (expr.Dual, error) {
	if len(params) != len(t.Params) {
		return expr.Dual{}, fmt.Errorf("model: %s takes %d parameter(s), got %d: %w",
			t.Name, len(t.Params), len(params), errs.ErrEvaluation)
	}
	if t.code != nil {
		return t.code(x, params), nil
	}
	slots := make([]expr.Dual, 0, len(params)+1)
	slots = append(slots, x)
	slots = append(slots, params...)

	return expr.EvalDual(t.bound, libScope{lib: lib, x: x}, slots)
}

// libScope resolves template calls inside template formulas; x is the
// point the outer template is evaluated at.
type libScope struct {
	expr.BaseScope
	lib *Library
	x   expr.Dual
}

func (s libScope) Call(name string, args []expr.Dual) (expr.Dual, bool, error) {
	t, ok := s.lib.lookup(name)
	if !ok {
		return expr.Dual{}, false, nil
	}
	d, err := t.at(s.lib, s.x, args)

	return d, true, err
}

// parseHeader parses "Name(p1, p2=default [lo:hi], ...)" at the cursor.
func parseHeader(p *expr.Parser) (*Template, error) {
	nt := p.Next()
	if nt.Kind != expr.TokIdent || !templateNameRe.MatchString(nt.Text) {
		return nil, &expr.SyntaxError{Pos: nt.Pos, Token: nt.String(), Msg: "expected template name starting with an upper-case letter"}
	}
	t := &Template{Name: nt.Text}
	if err := p.Expect("("); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for !p.Accept(")") {
		if len(t.Params) > 0 {
			if err := p.Expect(","); err != nil {
				return nil, err
			}
		}
		pt := p.Next()
		if pt.Kind != expr.TokIdent || !paramNameRe.MatchString(pt.Text) || pt.Text == "x" {
			return nil, &expr.SyntaxError{Pos: pt.Pos, Token: pt.String(), Msg: "expected parameter name"}
		}
		if seen[pt.Text] {
			return nil, fmt.Errorf("model: %s: duplicate parameter %s: %w", t.Name, pt.Text, errs.ErrEvaluation)
		}
		seen[pt.Text] = true
		par := Param{Name: pt.Text}
		if p.Accept("=") {
			d, err := p.ParseExpr()
			if err != nil {
				return nil, err
			}
			par.Default = d
		}
		dom, err := vars.ParseDomain(p)
		if err != nil {
			return nil, err
		}
		par.Domain = dom
		t.Params = append(t.Params, par)
	}

	return t, nil
}

// classify checks the formula against the library and sets the kind, the
// called templates and the bound form.
func (t *Template) classify(lib *Library) error {
	names := append([]string{"x"}, t.ParamNames()...)
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	for _, id := range expr.Idents(t.Formula) {
		if !allowed[id] {
			return fmt.Errorf("model: %s: unknown parameter %s: %w", t.Name, id, errs.ErrEvaluation)
		}
	}
	var bad error
	expr.Walk(t.Formula, func(n expr.Node) bool {
		switch n := n.(type) {
		case *expr.VarRef:
			bad = fmt.Errorf("model: %s: variables are not allowed in templates ($%s): %w", t.Name, n.Name, errs.ErrEvaluation)
		case *expr.FuncRef, *expr.FuncParam, *expr.Aggregate, *expr.Index:
			bad = fmt.Errorf("model: %s: %s is not allowed in templates: %w", t.Name, expr.Render(n), errs.ErrEvaluation)
		case *expr.Call:
			if expr.IsBuiltin(n.Name) {
				break
			}
			callee, ok := lib.lookup(n.Name)
			if !ok {
				bad = fmt.Errorf("model: %s: unknown template %s: %w", t.Name, n.Name, errs.ErrEvaluation)
				break
			}
			if len(n.Args) != len(callee.Params) {
				bad = fmt.Errorf("model: %s: %s takes %d parameter(s), got %d: %w",
					t.Name, n.Name, len(callee.Params), len(n.Args), errs.ErrEvaluation)
			}
		}
		return bad == nil
	})
	if bad != nil {
		return bad
	}
	t.calls = expr.Calls(t.Formula)
	switch {
	case len(t.calls) == 0:
		t.Kind = KindExpression
	case isCond(t.Formula):
		t.Kind = KindPiecewise
	default:
		t.Kind = KindCompound
	}
	t.bound = expr.Bind(t.Formula, names)

	return nil
}

func isCond(n expr.Node) bool {
	_, ok := n.(*expr.Cond)

	return ok
}
