package session

import (
	"fmt"

	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
	"github.com/katalvlaran/lvfit/model"
	"github.com/katalvlaran/lvfit/vars"
)

// arg is a parsed right-hand side of "$v = ..." or a function parameter.
// Exactly one of copyOf, ref, node or the value form applies.
type arg struct {
	copyOf string     // copy($v)
	ref    string     // plain $v
	node   expr.Node  // compound definition over variables
	value  float64    // simple variable value
	free   bool       // written with '~'
	dom    *vars.Domain
}

// parseArg reads one right-hand side. Expressions that read datasets or
// functions, and "{...}", are evaluated against dataset ds right away.
func (s *Session) parseArg(p *expr.Parser, ds int) (arg, error) {
	var a arg

	// 1. copy($v)
	if p.IsWord("copy") && p.PeekAt(1).Kind == expr.TokOp && p.PeekAt(1).Text == "(" &&
		p.PeekAt(2).Kind == expr.TokDollar {
		p.Next()
		p.Next()
		a.copyOf = p.Next().Text
		return a, p.Expect(")")
	}

	// 2. ~value, ~{expr}, {expr}
	a.free = p.Accept("~")
	if p.Accept("{") {
		n, err := p.ParseExpr()
		if err != nil {
			return a, err
		}
		if err = p.Expect("}"); err != nil {
			return a, err
		}
		if a.value, err = s.evalIn(n, ds); err != nil {
			return a, err
		}
		a.dom, err = vars.ParseDomain(p)
		return a, err
	}

	// 3. expression
	n, err := p.ParseExpr()
	if err != nil {
		return a, err
	}
	refs := expr.Refs(n)
	switch {
	case a.free || len(refs) == 0 || dataDependent(n):
		if a.value, err = s.evalIn(n, ds); err != nil {
			return a, err
		}
	case len(refs) == 1 && isRef(n):
		a.ref = refs[0]
	default:
		a.node = n
	}
	if a.dom, err = vars.ParseDomain(p); err != nil {
		return a, err
	}
	if a.dom != nil && (a.ref != "" || a.node != nil) {
		return a, fmt.Errorf("session: a domain needs a simple variable, not %s: %w", expr.Render(n), errs.ErrSyntax)
	}

	return a, nil
}

func isRef(n expr.Node) bool {
	_, ok := n.(*expr.VarRef)

	return ok
}

// assignVariable runs "$name = ...".
func (s *Session) assignVariable(p *expr.Parser) error {
	name := p.Next().Text
	if err := p.Expect("="); err != nil {
		return err
	}
	a, err := s.parseArg(p, s.data.Default())
	if err != nil {
		return err
	}
	if err = end(p); err != nil {
		return err
	}
	switch {
	case a.copyOf != "":
		return s.g.Copy(name, a.copyOf)
	case a.ref != "":
		return s.g.Alias(name, a.ref)
	case a.node != nil:
		return s.g.DeclareCompound(name, a.node)
	}

	return s.g.DeclareSimple(name, a.value, a.free, a.dom)
}

// bind turns a into the variable bound to parameter i of tpl, creating an
// auto-named variable unless a names an existing one.
func (s *Session) bind(tpl *model.Template, i int, a arg) (model.Binding, error) {
	switch {
	case a.copyOf != "":
		n, err := s.g.CopyAuto(a.copyOf)
		return model.Binding{Var: n, Owned: true}, err
	case a.ref != "":
		if !s.g.Has(a.ref) {
			return model.Binding{}, fmt.Errorf("session: undefined variable $%s: %w", a.ref, errs.ErrEvaluation)
		}
		return model.Binding{Var: a.ref}, nil
	case a.node != nil:
		n, err := s.g.NewAutoCompound(a.node)
		return model.Binding{Var: n, Owned: true}, err
	}
	if a.dom == nil {
		n, err := s.reg.ParamVar(tpl, i, a.value, a.free)
		return model.Binding{Var: n, Owned: true}, err
	}
	n, err := s.g.NewAuto(a.value, a.free, a.dom)

	return model.Binding{Var: n, Owned: true}, err
}
