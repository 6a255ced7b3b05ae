package fit

import (
	"context"
	"math"

	"github.com/katalvlaran/lvfit/config"
)

// NelderMead is the downhill simplex method.
type NelderMead struct {
	s *config.Settings
}

// NewNelderMead returns the nelder_mead_simplex algorithm.
func NewNelderMead(s *config.Settings) *NelderMead { return &NelderMead{s: s} }

func (*NelderMead) Name() string       { return "nelder_mead_simplex" }
func (*NelderMead) UsesGradient() bool { return false }

type vertex struct {
	a    []float64
	wssr float64
}

// simplex holds the vertices and the objective they are scored with.
type simplex struct {
	p     Problem
	v     []vertex
	best  int
	worst int
	// second is the second worst vertex.
	second int
}

func (s *simplex) score(a []float64) (float64, error) {
	w, err := s.p.Objective(a)

	return worse(w), err
}

func (s *simplex) order() {
	s.best, s.worst = 0, 0
	for i, v := range s.v {
		if v.wssr < s.v[s.best].wssr {
			s.best = i
		}
		if v.wssr >= s.v[s.worst].wssr {
			s.worst = i
		}
	}
	s.second = s.best
	for i, v := range s.v {
		if i != s.worst && v.wssr >= s.v[s.second].wssr {
			s.second = i
		}
	}
}

// tryWorst moves the worst vertex along the line through the centroid of
// the others: f=-1 reflects, 2 expands the last move, 0.5 contracts. The
// vertex is replaced only when the new point is better.
func (s *simplex) tryWorst(f float64) (float64, error) {
	n := len(s.v) - 1
	w := s.v[s.worst].a
	t := make([]float64, len(w))
	for j := range t {
		var c float64
		for i, v := range s.v {
			if i != s.worst {
				c += v.a[j]
			}
		}
		c /= float64(n)
		t[j] = c*(1-f) + w[j]*f
	}
	wssr, err := s.score(t)
	if err != nil {
		return 0, err
	}
	if wssr < s.v[s.worst].wssr {
		s.v[s.worst] = vertex{a: t, wssr: wssr}
	}

	return wssr, nil
}

// shrink moves every vertex halfway to the best one.
func (s *simplex) shrink() error {
	b := s.v[s.best].a
	for i := range s.v {
		if i == s.best {
			continue
		}
		for j := range s.v[i].a {
			s.v[i].a[j] = (s.v[i].a[j] + b[j]) / 2
		}
		w, err := s.score(s.v[i].a)
		if err != nil {
			return err
		}
		s.v[i].wssr = w
	}

	return nil
}

func (s *simplex) outcome(iter int, converged bool) Outcome {
	b := s.v[s.best]

	return Outcome{X: append([]float64(nil), b.a...), WSSR: b.wssr, Iterations: iter, Converged: converged}
}

// Minimize starts from x0 plus one vertex per parameter, where parameter i
// is drawn from nm_distribution scaled by nm_move_factor over its search
// range. With nm_move_all the whole simplex is shifted by half of each
// draw. The run converges when 2|worst-best|/(|worst|+|best|) drops below
// nm_convergence.
func (a *NelderMead) Minimize(ctx context.Context, p Problem, x0 []float64, b Budget) (Outcome, error) {
	n := len(x0)
	d := newDrawer(rngFromSeed(a.s.PseudoRandomSeed), a.s.NMDistribution, p)
	s := &simplex{p: p, v: make([]vertex, n+1)}

	// 1. Initial simplex
	for i := range s.v {
		s.v[i].a = append([]float64(nil), x0...)
	}
	for i := 0; i < n; i++ {
		v := d.draw(i, a.s.NMMoveFactor)
		if a.s.NMMoveAll {
			shift := (v - x0[i]) / 2
			for k := range s.v {
				s.v[k].a[i] += shift
			}
		}
		s.v[i+1].a[i] = v
	}
	for i := range s.v {
		w, err := s.score(s.v[i].a)
		if err != nil {
			return Outcome{}, err
		}
		s.v[i].wssr = w
	}

	// 2. Reflect, expand, contract, shrink
	for iter := 0; ; iter++ {
		s.order()
		if err := ctx.Err(); err != nil {
			return s.outcome(iter, false), err
		}
		best, worst := s.v[s.best].wssr, s.v[s.worst].wssr
		spread := 2 * math.Abs(worst-best) / (math.Abs(worst) + math.Abs(best) + 1e-300)
		if spread < a.s.NMConvergence || best == 0 {
			return s.outcome(iter, true), nil
		}
		if b.Exhausted(p) {
			return s.outcome(iter, false), nil
		}
		b.report(iter, best)

		t, err := s.tryWorst(-1)
		if err != nil {
			return s.outcome(iter, false), err
		}
		switch {
		case t <= best:
			if _, err = s.tryWorst(2); err != nil {
				return s.outcome(iter, false), err
			}
		case t >= s.v[s.second].wssr:
			old := s.v[s.worst].wssr
			t2, err := s.tryWorst(0.5)
			if err != nil {
				return s.outcome(iter, false), err
			}
			if t2 >= old {
				if err = s.shrink(); err != nil {
					return s.outcome(iter, false), err
				}
			}
		}
	}
}
