package fit

import (
	"context"
	"fmt"
	"math"

	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/katalvlaran/lvfit/config"
	"github.com/katalvlaran/lvfit/errs"
)

// lmExternalIterations caps the loop of lm.LM, which counts rejected steps
// too. The evaluation budget usually stops a run first.
const lmExternalIterations = 1000

// LMExternal adapts github.com/maorshutman/lm to Algorithm. The analytic
// Jacobian of the problem replaces lm.NumJac. Every trial point goes
// through the problem, so box constraints clamp it the same way as for the
// built-in methods.
type LMExternal struct {
	s *config.Settings
}

// NewLMExternal returns the lm_external algorithm.
func NewLMExternal(s *config.Settings) *LMExternal { return &LMExternal{s: s} }

func (*LMExternal) Name() string       { return "lm_external" }
func (*LMExternal) UsesGradient() bool { return true }

// lmStop unwinds lm.LM, which has no way to be interrupted. A nil err
// means the budget ran out.
type lmStop struct{ err error }

func (a *LMExternal) Minimize(ctx context.Context, p Problem, x0 []float64, b Budget) (out Outcome, err error) {
	out = Outcome{WSSR: math.Inf(1)}
	keep := func(x, r []float64) {
		if f := worse(sumSquares(r)); f < out.WSSR {
			out.X, out.WSSR = append([]float64(nil), x...), f
		}
	}
	check := func() {
		if err := ctx.Err(); err != nil {
			panic(lmStop{err: err})
		}
		if b.Exhausted(p) {
			panic(lmStop{})
		}
	}

	prob := lm.LMProblem{
		Dim:  p.Dim(),
		Size: p.Points(),
		Func: func(dst, x []float64) {
			check()
			r, err := p.Residuals(x)
			if err != nil {
				panic(lmStop{err: err})
			}
			copy(dst, r)
			keep(x, r)
		},
		// called once at the start and after every accepted step
		Jac: func(dst *mat.Dense, x []float64) {
			check()
			r, jac, err := p.Jacobian(x)
			if err != nil {
				panic(lmStop{err: err})
			}
			dst.Copy(jac)
			keep(x, r)
			out.Iterations++
			b.report(out.Iterations, out.WSSR)
		},
		InitParams: append([]float64(nil), x0...),
		Tau:        a.s.LMLambdaStart,
		Eps1:       1e-12,
		Eps2:       1e-10,
	}
	if a.s.XtolRel > 0 {
		prob.Eps2 = a.s.XtolRel
	}

	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		switch v := rec.(type) {
		case lmStop:
			err = v.err
		case string:
			// lm panics on a singular damped system
			err = fmt.Errorf("fit: lm_external: %s: %w", v, errs.ErrFit)
		default:
			panic(rec)
		}
	}()

	res, err := lm.LM(prob, &lm.Settings{Iterations: lmExternalIterations, ObjectiveTol: 1e-16})
	if err != nil {
		return out, fmt.Errorf("fit: lm_external: %v: %w", err, errs.ErrFit)
	}
	out.Converged = res.Status == optimize.StepConvergence

	return out, nil
}
