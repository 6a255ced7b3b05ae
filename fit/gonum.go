package fit

import (
	"context"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/katalvlaran/lvfit/config"
)

// Gonum adapts a gonum/optimize method to Algorithm. Budget and
// cancellation are enforced through the problem's Status callback.
type Gonum struct {
	name   string
	grad   bool
	method func() optimize.Method
	s      *config.Settings
}

// GonumMethods returns the adapters for the gonum minimizers.
func GonumMethods(s *config.Settings) []*Gonum {
	return []*Gonum{
		{name: "gonum_lbfgs", grad: true, method: func() optimize.Method { return &optimize.LBFGS{} }, s: s},
		{name: "gonum_bfgs", grad: true, method: func() optimize.Method { return &optimize.BFGS{} }, s: s},
		{name: "gonum_cg", grad: true, method: func() optimize.Method { return &optimize.CG{} }, s: s},
		{name: "gonum_nelder_mead", method: func() optimize.Method { return &optimize.NelderMead{} }, s: s},
	}
}

func (g *Gonum) Name() string       { return g.name }
func (g *Gonum) UsesGradient() bool { return g.grad }

func (g *Gonum) Minimize(ctx context.Context, p Problem, x0 []float64, b Budget) (Outcome, error) {
	var evalErr error
	out := Outcome{WSSR: math.Inf(1)}
	iter := 0
	keep := func(x []float64, f float64) {
		if f < out.WSSR {
			out.X, out.WSSR = append([]float64(nil), x...), f
		}
	}

	prob := optimize.Problem{
		Func: func(x []float64) float64 {
			f, err := p.Objective(x)
			if err != nil {
				if evalErr == nil {
					evalErr = err
				}
				return math.Inf(1)
			}
			f = worse(f)
			keep(x, f)
			return f
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			if evalErr != nil {
				return optimize.Failure, evalErr
			}
			if b.Exhausted(p) {
				return optimize.FunctionEvaluationLimit, nil
			}
			iter++
			b.report(iter, out.WSSR)
			return optimize.NotTerminated, nil
		},
	}
	if g.grad {
		prob.Grad = func(grad, x []float64) {
			f, err := p.Gradient(x, grad)
			if err != nil {
				if evalErr == nil {
					evalErr = err
				}
				clear(grad)
				return
			}
			keep(x, worse(f))
		}
	}

	conv := &optimize.FunctionConverge{Absolute: 1e-12, Relative: 1e-10, Iterations: 20}
	if g.s.FtolRel > 0 {
		conv.Relative = g.s.FtolRel
	}
	res, err := optimize.Minimize(prob, x0, &optimize.Settings{Converger: conv}, g.method())
	if res != nil {
		out.Iterations = res.Stats.MajorIterations
		keep(res.Location.X, worse(res.Location.F))
	}
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if evalErr != nil {
			return out, evalErr
		}
		return out, err
	}
	switch res.Status {
	case optimize.Success, optimize.FunctionConvergence, optimize.GradientThreshold,
		optimize.StepConvergence, optimize.FunctionThreshold, optimize.MethodConverge:
		out.Converged = true
	}

	return out, nil
}
