package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/katalvlaran/lvfit/expr"
	"github.com/katalvlaran/lvfit/fit"
)

// setStatement runs "set key = value[, key = value]". The pairs commit
// together. Values that are not a single word or number are quoted: set
// numeric_format = '%.8g'.
func (s *Session) setStatement(p *expr.Parser, stmt string) error {
	p.Next()
	var pairs [][2]string
	for {
		k := p.Next()
		if k.Kind != expr.TokIdent {
			return &expr.SyntaxError{Pos: k.Pos, Token: k.String(), Msg: "expected an option name"}
		}
		if err := p.Expect("="); err != nil {
			return err
		}
		first := p.Peek()
		for !p.AtEnd() && !p.IsOp(",") {
			p.Next()
		}
		val := strings.TrimSpace(stmt[first.Pos:p.Peek().Pos])
		if first.Kind == expr.TokString {
			val = first.Text
		}
		if k.Text == "fitting_method" {
			if _, err := s.fitter.Algorithm(val); err != nil {
				return err
			}
		}
		pairs = append(pairs, [2]string{k.Text, val})
		if !p.Accept(",") {
			return s.cfg.SetAll(pairs)
		}
	}
}

// fitStatement runs "fit [max_evals]", "fit undo" and "fit redo". The
// target datasets are fitted together.
func (s *Session) fitStatement(ctx context.Context, p *expr.Parser, targets []int) error {
	p.Next()
	switch {
	case p.IsWord("undo"):
		p.Next()
		if err := end(p); err != nil {
			return err
		}
		return s.fitter.Undo()
	case p.IsWord("redo"):
		p.Next()
		if err := end(p); err != nil {
			return err
		}
		return s.fitter.Redo()
	}
	maxEvals := 0
	if t := p.Peek(); t.Kind == expr.TokNumber {
		p.Next()
		maxEvals = int(t.Num)
	}
	if err := end(p); err != nil {
		return err
	}
	ts := s.orDefault(targets)
	fts := make([]fit.Target, len(ts))
	for i, ds := range ts {
		d, err := s.dataset(ds)
		if err != nil {
			return err
		}
		fts[i] = fit.Target{Data: d, Model: s.models[ds]}
	}
	res, err := s.fitter.Fit(ctx, fts, maxEvals)
	if res != nil {
		fmt.Fprintf(s.out, "%s: WSSR %s -> %s (%d evaluations, %s)\n",
			res.Status, s.format(res.InitialWSSR), s.format(res.WSSR), res.Evaluations, res.Method)
	}

	return err
}

// printStatement runs "print expr|'text'[, ...]" against the first target
// dataset and writes one line.
func (s *Session) printStatement(p *expr.Parser, targets []int) error {
	p.Next()
	ds := s.orDefault(targets)[0]
	var parts []string
	for {
		if t := p.Peek(); t.Kind == expr.TokString {
			p.Next()
			parts = append(parts, t.Text)
		} else {
			n, err := p.ParseExpr()
			if err != nil {
				return err
			}
			v, err := s.evalIn(n, ds)
			if err != nil {
				return err
			}
			parts = append(parts, s.format(v))
		}
		if !p.Accept(",") {
			break
		}
	}
	if err := end(p); err != nil {
		return err
	}
	_, err := fmt.Fprintln(s.out, strings.Join(parts, " "))

	return err
}

// format renders v with numeric_format.
func (s *Session) format(v float64) string { return fmt.Sprintf(s.cfg.NumericFormat, v) }
