package session

import (
	"fmt"
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
	"github.com/katalvlaran/lvfit/guess"
	"github.com/katalvlaran/lvfit/model"
	"github.com/katalvlaran/lvfit/vars"
)

func (s *Session) guesser() *guess.Engine {
	return guess.New(guess.OptionsFrom(s.cfg), guess.WithLogger(s.log.Named("guess")))
}

// assignFunction runs "%f = Template(...)", "%f = copy(%g)" and
// "%f.param = ...".
func (s *Session) assignFunction(p *expr.Parser, targets []int) error {
	name := p.Next().Text
	ds := s.orDefault(targets)[0]

	// 1. %f.param = arg
	if p.Accept(".") {
		pt := p.Next()
		if pt.Kind != expr.TokIdent {
			return &expr.SyntaxError{Pos: pt.Pos, Token: pt.String(), Msg: "expected parameter name"}
		}
		if err := p.Expect("="); err != nil {
			return err
		}
		f, err := s.reg.Get(name)
		if err != nil {
			return err
		}
		i := f.Template().ParamIndex(pt.Text)
		if i < 0 {
			return fmt.Errorf("session: %%%s has no parameter %s: %w", name, pt.Text, errs.ErrEvaluation)
		}
		a, err := s.parseArg(p, ds)
		if err != nil {
			return err
		}
		if err = end(p); err != nil {
			return err
		}
		b, err := s.bind(f.Template(), i, a)
		if err == nil {
			err = s.reg.SetParam(name, pt.Text, b)
		}
		if err != nil {
			s.g.Prune()
		}
		return err
	}
	if err := p.Expect("="); err != nil {
		return err
	}

	// 2. %f = copy(%g)
	if p.IsWord("copy") {
		p.Next()
		if err := p.Expect("("); err != nil {
			return err
		}
		src := p.Next()
		if src.Kind != expr.TokPercent {
			return &expr.SyntaxError{Pos: src.Pos, Token: src.String(), Msg: "expected %function"}
		}
		if err := p.Expect(")"); err != nil {
			return err
		}
		if err := end(p); err != nil {
			return err
		}
		_, err := s.reg.Copy(name, src.Text)
		return err
	}

	// 3. %f = Template(...)
	t := p.Next()
	if t.Kind != expr.TokIdent {
		return &expr.SyntaxError{Pos: t.Pos, Token: t.String(), Msg: "expected a template name"}
	}
	c, err := s.parseCall(p, t.Text, ds)
	if err != nil {
		return err
	}
	if err = end(p); err != nil {
		return err
	}
	_, err = s.instantiate(name, c)

	return err
}

// call is a parsed "Template(args...)" that has not been instantiated.
type call struct {
	tpl  *model.Template
	args []*arg // nil entries are guessed
	ds   int
}

// parseCall parses "(arg, name=arg, ...)" after a template name. Argument
// expressions are evaluated against dataset ds; nothing is created.
func (s *Session) parseCall(p *expr.Parser, template string, ds int) (*call, error) {
	tpl, err := s.lib.Get(template)
	if err != nil {
		return nil, err
	}
	args := make([]*arg, len(tpl.Params))
	if err = p.Expect("("); err != nil {
		return nil, err
	}
	keyword := false
	for pos := 0; !p.Accept(")"); pos++ {
		if pos > 0 {
			if err = p.Expect(","); err != nil {
				return nil, err
			}
		}
		i := pos
		if t, next := p.Peek(), p.PeekAt(1); t.Kind == expr.TokIdent && next.Kind == expr.TokOp && next.Text == "=" {
			p.Next()
			p.Next()
			if i = tpl.ParamIndex(t.Text); i < 0 {
				return nil, fmt.Errorf("session: %s has no parameter %s: %w", tpl.Name, t.Text, errs.ErrEvaluation)
			}
			keyword = true
		} else if keyword {
			return nil, p.Unexpected("positional argument after a named one")
		}
		if i >= len(args) {
			return nil, fmt.Errorf("session: %s takes %d parameter(s): %w", tpl.Name, len(args), errs.ErrEvaluation)
		}
		if args[i] != nil {
			return nil, fmt.Errorf("session: %s: parameter %s given twice: %w", tpl.Name, tpl.Params[i].Name, errs.ErrEvaluation)
		}
		a, err := s.parseArg(p, ds)
		if err != nil {
			return nil, err
		}
		args[i] = &a
	}

	return &call{tpl: tpl, args: args, ds: ds}, nil
}

// instantiate creates the instance described by c, guessing the missing
// parameters from its dataset. New variables are pruned on failure.
func (s *Session) instantiate(name string, c *call) (*model.Function, error) {
	args := slices.Clone(c.args)
	if slices.Contains(args, nil) {
		if err := s.fillMissing(c.tpl, name, args, c.ds); err != nil {
			return nil, err
		}
	}
	bindings := make([]model.Binding, len(args))
	for i, a := range args {
		b, err := s.bind(c.tpl, i, *a)
		if err != nil {
			s.g.Prune()
			return nil, err
		}
		bindings[i] = b
	}
	f, err := s.reg.Create(name, c.tpl.Name, bindings)
	if err != nil {
		s.g.Prune()
		return nil, err
	}

	return f, nil
}

// fillMissing sets the nil entries of args to free values guessed from
// the active points of dataset ds.
func (s *Session) fillMissing(tpl *model.Template, name string, args []*arg, ds int) error {
	given := make(map[string]float64)
	for i, a := range args {
		if a == nil {
			continue
		}
		switch {
		case a.copyOf != "":
			v, err := s.g.Value(a.copyOf)
			if err != nil {
				return err
			}
			given[tpl.Params[i].Name] = v
		case a.ref != "":
			v, err := s.g.Value(a.ref)
			if err != nil {
				return err
			}
			given[tpl.Params[i].Name] = v
		case a.node == nil:
			given[tpl.Params[i].Name] = a.value
		}
	}
	d, err := s.dataset(ds)
	if err != nil {
		return err
	}
	data, err := guess.Collect(d, s.models[ds], name, math.Inf(-1), math.Inf(1))
	if err != nil {
		return err
	}
	vals, err := s.guesser().Guess(tpl, data, given)
	if err != nil {
		return err
	}
	for i, a := range args {
		if a == nil {
			args[i] = &arg{value: vals[i], free: true}
		}
	}

	return nil
}

// term is one parsed summand of a model assignment: an existing instance
// to share, an instance to copy, or a template call.
type term struct {
	name   string
	copyOf string
	call   *call
}

// assignModel runs "F = ...", "F += ..." for each target dataset. The
// right-hand side is parsed for every target first; new instances are then
// created, and the models change only once all of them exist.
func (s *Session) assignModel(p *expr.Parser, targets []int) error {
	add := p.Accept("+=")
	if !add {
		if err := p.Expect("="); err != nil {
			return err
		}
	}

	// 1. Parse
	ts := s.orDefault(targets)
	plans := make([][]term, len(ts))
	start := p.Mark()
	for i, ds := range ts {
		p.Reset(start)
		terms, err := s.modelTerms(p, ds)
		if err != nil {
			return err
		}
		plans[i] = terms
	}
	if err := end(p); err != nil {
		return err
	}

	// 2. Create instances
	var created []string
	names := make([][]string, len(ts))
	for i, terms := range plans {
		for _, t := range terms {
			n, fresh, err := s.materialize(t)
			if err != nil {
				s.discard(created)
				return err
			}
			if fresh {
				created = append(created, n)
			}
			names[i] = append(names[i], n)
		}
	}

	// 3. Commit, restoring earlier models if one is rejected
	old := make([][]string, len(ts))
	for i, ds := range ts {
		old[i] = s.models[ds].Names()
		next := names[i]
		if add {
			next = append(slices.Clone(old[i]), next...)
		}
		if err := s.models[ds].Set(next); err != nil {
			for j := range i {
				_ = s.models[ts[j]].Set(old[j])
			}
			s.discard(created)
			return err
		}
	}

	return nil
}

// materialize returns the instance name of t, creating it unless t shares
// an existing one; fresh reports a creation.
func (s *Session) materialize(t term) (name string, fresh bool, err error) {
	var f *model.Function
	switch {
	case t.call != nil:
		f, err = s.instantiate("", t.call)
	case t.copyOf != "":
		f, err = s.reg.Copy("", t.copyOf)
	default:
		return t.name, false, nil
	}
	if err != nil {
		return "", false, err
	}

	return f.Name(), true, nil
}

// discard deletes instances created by a statement that failed later.
func (s *Session) discard(names []string) {
	for _, n := range slices.Backward(names) {
		_ = s.reg.Delete(n)
	}
}

// modelTerms parses "0" or a '+' separated list of %f, Template(...),
// copy(%f), @n.F and copy(@n.F).
func (s *Session) modelTerms(p *expr.Parser, ds int) ([]term, error) {
	if t := p.Peek(); t.Kind == expr.TokNumber && t.Num == 0 {
		p.Next()
		return nil, nil
	}
	var terms []term
	for {
		t := p.Peek()
		switch {
		case t.Kind == expr.TokPercent:
			p.Next()
			if !s.reg.Has(t.Text) {
				return nil, fmt.Errorf("session: undefined function %%%s: %w", t.Text, errs.ErrEvaluation)
			}
			terms = append(terms, term{name: t.Text})
		case t.Kind == expr.TokAt:
			src, err := s.modelRef(p)
			if err != nil {
				return nil, err
			}
			for _, n := range s.models[src].Names() {
				terms = append(terms, term{name: n})
			}
		case t.Kind == expr.TokIdent && t.Text == "copy":
			p.Next()
			copies, err := s.copyTerm(p)
			if err != nil {
				return nil, err
			}
			terms = append(terms, copies...)
		case t.Kind == expr.TokIdent:
			p.Next()
			c, err := s.parseCall(p, t.Text, ds)
			if err != nil {
				return nil, err
			}
			terms = append(terms, term{call: c})
		default:
			return nil, p.Unexpected("expected %function, template, copy(...) or @n.F")
		}
		if !p.Accept("+") {
			return terms, nil
		}
	}
}

// copyTerm parses "(%f)" or "(@n.F)" after copy.
func (s *Session) copyTerm(p *expr.Parser) ([]term, error) {
	if err := p.Expect("("); err != nil {
		return nil, err
	}
	var terms []term
	if t := p.Peek(); t.Kind == expr.TokPercent {
		p.Next()
		if !s.reg.Has(t.Text) {
			return nil, fmt.Errorf("session: undefined function %%%s: %w", t.Text, errs.ErrEvaluation)
		}
		terms = []term{{copyOf: t.Text}}
	} else {
		src, err := s.modelRef(p)
		if err != nil {
			return nil, err
		}
		for _, n := range s.models[src].Names() {
			terms = append(terms, term{copyOf: n})
		}
	}

	return terms, p.Expect(")")
}

// modelRef parses "@n.F" and returns n.
func (s *Session) modelRef(p *expr.Parser) (int, error) {
	ds, err := s.datasetIndex(p.Next())
	if err != nil {
		return 0, err
	}
	if err = p.Expect("."); err != nil {
		return 0, err
	}
	if !p.IsWord("F") {
		return 0, p.Unexpected("expected F")
	}
	p.Next()

	return ds, nil
}

// guessStatement runs "guess [%f =] Template[(param=value, ...)] [[lo:hi]]".
func (s *Session) guessStatement(p *expr.Parser, targets []int) error {
	p.Next()
	name := ""
	if t := p.Peek(); t.Kind == expr.TokPercent {
		p.Next()
		name = t.Text
		if err := p.Expect("="); err != nil {
			return err
		}
	}
	tt := p.Next()
	if tt.Kind != expr.TokIdent {
		return &expr.SyntaxError{Pos: tt.Pos, Token: tt.String(), Msg: "expected a template name"}
	}
	tpl, err := s.lib.Get(tt.Text)
	if err != nil {
		return err
	}
	ts := s.orDefault(targets)
	if name != "" && len(ts) > 1 {
		return fmt.Errorf("session: guess %%%s: one name for %d datasets: %w", name, len(ts), errs.ErrEvaluation)
	}

	// 1. Given parameters and range
	given := make(map[string]float64)
	if p.Accept("(") {
		for !p.Accept(")") {
			if len(given) > 0 {
				if err = p.Expect(","); err != nil {
					return err
				}
			}
			pt := p.Next()
			if pt.Kind != expr.TokIdent || tpl.ParamIndex(pt.Text) < 0 {
				return fmt.Errorf("session: %s has no parameter %s: %w", tpl.Name, pt, errs.ErrEvaluation)
			}
			if err = p.Expect("="); err != nil {
				return err
			}
			n, err := p.ParseExpr()
			if err != nil {
				return err
			}
			if given[pt.Text], err = s.evalIn(n, ts[0]); err != nil {
				return err
			}
		}
	}
	rng, err := vars.ParseDomain(p)
	if err != nil {
		return err
	}
	if rng == nil {
		rng = &vars.Unbounded
	}
	if err = end(p); err != nil {
		return err
	}

	// 2. Guess every dataset before creating anything
	vals := make([][]float64, len(ts))
	for i, ds := range ts {
		d, err := s.dataset(ds)
		if err != nil {
			return err
		}
		data, err := guess.Collect(d, s.models[ds], name, rng.Lo, rng.Hi)
		if err != nil {
			return err
		}
		if data.Len() == 0 {
			return fmt.Errorf("session: guess %s: no active points in %s: %w", tpl.Name, rng, errs.ErrEvaluation)
		}
		if vals[i], err = s.guesser().Guess(tpl, data, given); err != nil {
			return err
		}
	}

	// 3. One instance per dataset
	var created []string
	for i, ds := range ts {
		f, err := s.reg.CreateFromValues(name, tpl.Name, vals[i], true)
		if err != nil {
			s.discard(created)
			return err
		}
		if name == "" {
			created = append(created, f.Name())
		}
		if !slices.Contains(s.models[ds].Names(), f.Name()) {
			if err = s.models[ds].Add(f.Name()); err != nil {
				return err
			}
		}
		s.log.Info("guess", zap.String("function", f.Name()), zap.Int("dataset", ds), zap.Float64s("values", vals[i]))
	}

	return nil
}
