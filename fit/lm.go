package fit

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/katalvlaran/lvfit/config"
	"github.com/katalvlaran/lvfit/errs"
)

// LevenbergMarquardt is the damped Gauss-Newton method. Settings are read
// at the start of every run.
type LevenbergMarquardt struct {
	s *config.Settings
}

// NewLevenbergMarquardt returns the levenberg_marquardt algorithm.
func NewLevenbergMarquardt(s *config.Settings) *LevenbergMarquardt {
	return &LevenbergMarquardt{s: s}
}

func (*LevenbergMarquardt) Name() string       { return "levenberg_marquardt" }
func (*LevenbergMarquardt) UsesGradient() bool { return true }

// Minimize runs LM from x0. A step is accepted only when it lowers WSSR;
// then lambda shrinks, otherwise it grows. The run converges after two
// accepted steps in a row with a relative WSSR change below
// lm_stop_rel_change, at WSSR 0, after a step smaller than xtol_rel
// relative to the parameters, or once lambda exceeds lm_max_lambda.
func (a *LevenbergMarquardt) Minimize(ctx context.Context, p Problem, x0 []float64, b Budget) (Outcome, error) {
	var (
		lambda   = a.s.LMLambdaStart
		stopRel  = a.s.LMStopRelChange
		maxLam   = a.s.LMMaxLambda
		upFact   = a.s.LMLambdaUpFactor
		downFact = a.s.LMLambdaDownFactor
	)

	// 1. Derivatives at the start point
	best := append([]float64(nil), x0...)
	r, jac, err := p.Jacobian(best)
	if err != nil {
		return Outcome{}, err
	}
	chi2 := sumSquares(r)
	if !finite(chi2) {
		return Outcome{}, fmt.Errorf("fit: WSSR is %g at the start point: %w", chi2, errs.ErrFit)
	}
	out := Outcome{X: best, WSSR: chi2}
	alpha, beta := normalEquations(r, jac)
	small := 0

	// 2. Damped steps
	for iter := 1; ; iter++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if chi2 == 0 {
			out.Converged = true
			return out, nil
		}
		if b.Exhausted(p) {
			return out, nil
		}
		step, err := solveSym(damped(alpha, lambda), dampedRHS(alpha, beta))
		if err != nil {
			return out, err
		}
		trial := make([]float64, len(best))
		for i := range trial {
			trial[i] = best[i] + step[i]
		}
		next, err := p.Objective(trial)
		if err != nil {
			return out, err
		}
		out.Iterations = iter

		if next = worse(next); next < chi2 {
			rel := (chi2 - next) / chi2
			tiny := smallStep(step, best, a.s.XtolRel)
			best, chi2 = trial, next
			out.X, out.WSSR = best, chi2
			b.report(iter, chi2)
			if tiny {
				out.Converged = true
				return out, nil
			}
			if rel < stopRel {
				if small++; small >= 2 {
					out.Converged = true
					return out, nil
				}
			} else {
				small = 0
			}
			lambda /= downFact
			if r, jac, err = p.Jacobian(best); err != nil {
				return out, err
			}
			alpha, beta = normalEquations(r, jac)
			continue
		}
		if lambda > maxLam {
			out.Converged = true
			return out, nil
		}
		lambda *= upFact
	}
}

// smallStep reports whether every component of step is within xtol of
// the matching component of x. A zero xtol disables the test.
func smallStep(step, x []float64, xtol float64) bool {
	if xtol <= 0 {
		return false
	}
	for i, d := range step {
		if math.Abs(d) > xtol*math.Abs(x[i]) {
			return false
		}
	}

	return true
}

// damped returns alpha with its diagonal scaled by 1+lambda. Zero diagonal
// entries (parameters nothing depends on) become 1.
func damped(alpha *mat.SymDense, lambda float64) *mat.SymDense {
	n := alpha.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(alpha)
	for i := 0; i < n; i++ {
		if d := out.At(i, i); d == 0 {
			out.SetSym(i, i, 1)
		} else {
			out.SetSym(i, i, d*(1+lambda))
		}
	}

	return out
}

// dampedRHS zeroes beta where alpha has a zero diagonal, so those
// parameters do not move.
func dampedRHS(alpha *mat.SymDense, beta *mat.VecDense) *mat.VecDense {
	out := mat.VecDenseCopyOf(beta)
	for i := 0; i < out.Len(); i++ {
		if alpha.At(i, i) == 0 {
			out.SetVec(i, 0)
		}
	}

	return out
}
