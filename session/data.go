package session

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/katalvlaran/lvfit/dataset"
	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
)

// datasetStatement runs "@+ = 0", "@+ = @n" and "@n.F = ...".
func (s *Session) datasetStatement(p *expr.Parser) error {
	t := p.Next()
	if t.Text != "+" {
		ds, err := s.datasetIndex(t)
		if err != nil {
			return err
		}
		if err = p.Expect("."); err != nil {
			return err
		}
		if !p.IsWord("F") {
			return p.Unexpected("expected F")
		}
		p.Next()
		return s.assignModel(p, []int{ds})
	}

	if err := p.Expect("="); err != nil {
		return err
	}
	d := dataset.New("")
	switch src := p.Next(); {
	case src.Kind == expr.TokNumber && src.Num == 0:
	case src.Kind == expr.TokAt:
		i, err := s.datasetIndex(src)
		if err != nil {
			return err
		}
		orig, _ := s.dataset(i)
		d = orig.Clone()
	default:
		return &expr.SyntaxError{Pos: src.Pos, Token: src.String(), Msg: "expected 0 or @n"}
	}
	if err := end(p); err != nil {
		return err
	}
	s.appendDataset(d)

	return nil
}

func (s *Session) appendDataset(d *dataset.Dataset) int {
	i := s.data.Append(d)
	s.models = append(s.models, s.reg.NewModel())
	s.log.Debug("dataset added", zap.Int("dataset", i), zap.Int("points", d.Len()))

	return i
}

// transform runs "X=..., Y[3]=..., M=n" on each target dataset. A size
// change (M) is applied before the column assignments. Every target is
// computed on a copy; the datasets are replaced only when all succeed.
func (s *Session) transform(p *expr.Parser, targets []int) error {
	// 1. Parse
	var (
		stmt   []dataset.Assignment
		resize expr.Node
	)
	for {
		t := p.Next()
		if t.Kind != expr.TokIdent || len(t.Text) != 1 || !slices.Contains([]byte("XYSAM"), t.Text[0]) {
			return &expr.SyntaxError{Pos: t.Pos, Token: t.String(), Msg: "expected X, Y, S, A or M"}
		}
		a := dataset.Assignment{Attr: t.Text[0]}
		if a.Attr != 'M' && p.Accept("[") {
			idx, err := p.ParseExpr()
			if err != nil {
				return err
			}
			if err = p.Expect("]"); err != nil {
				return err
			}
			a.Index = idx
		}
		if err := p.Expect("="); err != nil {
			return err
		}
		v, err := p.ParseExpr()
		if err != nil {
			return err
		}
		if a.Attr == 'M' {
			resize = v
		} else {
			a.Value = v
			stmt = append(stmt, a)
		}
		if !p.Accept(",") {
			break
		}
	}
	if err := end(p); err != nil {
		return err
	}

	// 2. Apply on copies
	ts := s.orDefault(targets)
	nexts := make([]*dataset.Dataset, len(ts))
	for i, ds := range ts {
		d, err := s.dataset(ds)
		if err != nil {
			return err
		}
		next := d.Clone()
		if resize != nil {
			m, err := s.evalIn(resize, ds)
			if err != nil {
				return err
			}
			if err = next.Resize(int(m)); err != nil {
				return err
			}
		}
		if len(stmt) > 0 {
			if err = next.Transform(stmt, scope{s: s, ds: ds}); err != nil {
				return err
			}
		}
		nexts[i] = next
	}

	// 3. Swap them in
	for i, ds := range ts {
		if err := s.data.Replace(ds, nexts[i]); err != nil {
			return err
		}
	}

	return nil
}

// setTitle runs "title = 'text'".
func (s *Session) setTitle(p *expr.Parser, targets []int) error {
	p.Next()
	if err := p.Expect("="); err != nil {
		return err
	}
	t := p.Next()
	if t.Kind != expr.TokString {
		return &expr.SyntaxError{Pos: t.Pos, Token: t.String(), Msg: "expected a quoted title"}
	}
	if err := end(p); err != nil {
		return err
	}
	ts := s.orDefault(targets)
	sets := make([]*dataset.Dataset, len(ts))
	for i, ds := range ts {
		d, err := s.dataset(ds)
		if err != nil {
			return err
		}
		sets[i] = d
	}
	for _, d := range sets {
		d.SetTitle(t.Text)
	}

	return nil
}

// deleteStatement runs "delete(condition)" on the target datasets, or
// "delete %f, $v, @n".
func (s *Session) deleteStatement(p *expr.Parser, targets []int) error {
	p.Next()
	if p.IsOp("(") {
		pred, err := p.ParseExpr()
		if err != nil {
			return err
		}
		if err = end(p); err != nil {
			return err
		}
		ts := s.orDefault(targets)
		nexts := make([]*dataset.Dataset, len(ts))
		for i, ds := range ts {
			d, err := s.dataset(ds)
			if err != nil {
				return err
			}
			nexts[i] = d.Clone()
			n, err := nexts[i].Filter(pred, scope{s: s, ds: ds})
			if err != nil {
				return err
			}
			s.log.Debug("points deleted", zap.Int("dataset", ds), zap.Int("removed", n))
		}
		for i, ds := range ts {
			if err = s.data.Replace(ds, nexts[i]); err != nil {
				return err
			}
		}
		return nil
	}

	// 1. Parse the whole list
	var funcs, vs []string
	var sets []int
	for {
		t := p.Next()
		switch t.Kind {
		case expr.TokPercent:
			if !s.reg.Has(t.Text) {
				return fmt.Errorf("session: undefined function %%%s: %w", t.Text, errs.ErrEvaluation)
			}
			funcs = append(funcs, t.Text)
		case expr.TokDollar:
			if !s.g.Has(t.Text) {
				return fmt.Errorf("session: undefined variable $%s: %w", t.Text, errs.ErrEvaluation)
			}
			vs = append(vs, t.Text)
		case expr.TokAt:
			ds, err := s.datasetIndex(t)
			if err != nil {
				return err
			}
			sets = append(sets, ds)
		default:
			return &expr.SyntaxError{Pos: t.Pos, Token: t.String(), Msg: "expected %function, $variable or @n"}
		}
		if !p.Accept(",") {
			break
		}
	}
	if err := end(p); err != nil {
		return err
	}

	// 2. Functions first, so their variables are free to go
	for _, f := range funcs {
		if err := s.deleteFunction(f); err != nil {
			return err
		}
	}
	for _, v := range vs {
		if err := s.g.Delete(v); err != nil {
			return err
		}
	}
	// highest first so the remaining indexes stay valid
	slices.Sort(sets)
	for _, ds := range slices.Backward(slices.Compact(sets)) {
		s.deleteDataset(ds)
	}

	return nil
}

// deleteFunction removes %name from every model, then from the registry.
func (s *Session) deleteFunction(name string) error {
	if !s.reg.Has(name) {
		return fmt.Errorf("session: undefined function %%%s: %w", name, errs.ErrEvaluation)
	}
	for _, m := range s.models {
		m.Remove(name)
	}

	return s.reg.Delete(name)
}

func (s *Session) deleteDataset(ds int) {
	s.models[ds].Clear()
	if s.data.Len() == 1 {
		_ = s.data.Delete(ds)
		return
	}
	_ = s.data.Delete(ds)
	s.models = slices.Delete(s.models, ds, ds+1)
}

// LoadData puts the points into dataset i, replacing its content, or
// appends a new dataset when i equals the number of datasets. A nil sigma
// follows default_sigma.
func (s *Session) LoadData(i int, x, y, sigma []float64, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := dataset.FromArrays(x, y, sigma, title, s.cfg.DefaultSigma)
	if err != nil {
		return err
	}
	if i == s.data.Len() {
		s.appendDataset(d)
		return nil
	}
	if err = s.data.Replace(i, d); err != nil {
		return err
	}
	s.log.Info("data loaded", zap.Int("dataset", i), zap.Int("points", len(x)), zap.String("title", title))

	return nil
}
