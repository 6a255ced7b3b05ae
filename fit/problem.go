package fit

import (
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/katalvlaran/lvfit/config"
	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
	"github.com/katalvlaran/lvfit/model"
	"github.com/katalvlaran/lvfit/vars"
)

// segment is the part of the residual vector owned by one target.
type segment struct {
	off     int
	x, y, s []float64
	fns     []*model.Function
	// slots[k][j] is the variable bound to parameter j of fns[k].
	slots [][]string
}

// problem implements Problem over a variable graph. Trial values never
// touch the stored variable values.
type problem struct {
	g        *vars.Graph
	params   []string
	names    []string
	lo, hi   []float64
	rlo, rhi []float64
	box      bool
	parallel bool
	segs     []segment
	n        int
	evals    atomic.Int64
}

// newProblem collects the active points and model terms of targets. It does
// not require free parameters; Engine.Fit checks that.
func newProblem(g *vars.Graph, targets []Target, s *config.Settings) (*problem, error) {
	p := &problem{g: g, box: s.BoxConstraints, parallel: s.ParallelResiduals}
	seen := make(map[string]bool)

	// 1. Points and function terms per target
	for i, t := range targets {
		if t.Data == nil || t.Model == nil {
			return nil, fmt.Errorf("fit: target %d has no dataset or model: %w", i, errs.ErrFit)
		}
		pts := t.Data.Active()
		seg := segment{
			off: p.n,
			x:   make([]float64, len(pts)),
			y:   make([]float64, len(pts)),
			s:   make([]float64, len(pts)),
			fns: t.Model.Functions(),
		}
		for j, pt := range pts {
			seg.x[j], seg.y[j], seg.s[j] = pt.X, pt.Y, pt.Sigma
		}
		seg.slots = make([][]string, len(seg.fns))
		for k, f := range seg.fns {
			seg.slots[k] = f.Vars()
			for _, v := range seg.slots[k] {
				if !seen[v] {
					seen[v] = true
					p.names = append(p.names, v)
				}
			}
		}
		p.n += len(pts)
		p.segs = append(p.segs, seg)
	}
	if p.n == 0 {
		return nil, fmt.Errorf("fit: no active data points: %w", errs.ErrFit)
	}

	// 2. Free parameters and their ranges
	if len(p.names) > 0 {
		p.params = g.FreeParams(p.names...)
	}
	dim := len(p.params)
	p.lo, p.hi = make([]float64, dim), make([]float64, dim)
	p.rlo, p.rhi = make([]float64, dim), make([]float64, dim)
	for i, d := range g.Domains(p.params) {
		p.lo[i], p.hi[i] = d.Lo, d.Hi
	}
	for i, name := range p.params {
		lo, hi, err := g.Variation(name, s.DomainPercent)
		if err != nil {
			return nil, err
		}
		p.rlo[i], p.rhi[i] = lo, hi
	}

	return p, nil
}

func (p *problem) Dim() int         { return len(p.params) }
func (p *problem) Params() []string { return append([]string(nil), p.params...) }
func (p *problem) Points() int      { return p.n }
func (p *problem) Evaluations() int { return int(p.evals.Load()) }

func (p *problem) Bounds() (lo, hi []float64) {
	return append([]float64(nil), p.lo...), append([]float64(nil), p.hi...)
}

func (p *problem) SearchRange() (lo, hi []float64) {
	return append([]float64(nil), p.rlo...), append([]float64(nil), p.rhi...)
}

// clamp limits x to the parameter domains.
func (p *problem) clamp(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Max(p.lo[i], math.Min(p.hi[i], v))
	}

	return out
}

// point is the vector actually evaluated for x: clamped to the domains
// when box constraints are on.
func (p *problem) point(x []float64) []float64 {
	if !p.box {
		return x
	}

	return p.clamp(x)
}

func (p *problem) Objective(x []float64) (float64, error) {
	r, err := p.Residuals(x)
	if err != nil {
		return 0, err
	}

	return sumSquares(r), nil
}

func (p *problem) Residuals(x []float64) ([]float64, error) {
	r := make([]float64, p.n)
	if err := p.eval(x, r, nil); err != nil {
		return nil, err
	}

	return r, nil
}

func (p *problem) Jacobian(x []float64) ([]float64, *mat.Dense, error) {
	r := make([]float64, p.n)
	jac := mat.NewDense(p.n, p.Dim(), nil)
	if err := p.eval(x, r, jac); err != nil {
		return nil, nil, err
	}

	return r, jac, nil
}

func (p *problem) Gradient(x, grad []float64) (float64, error) {
	r, jac, err := p.Jacobian(x)
	if err != nil {
		return 0, err
	}
	g := mat.NewVecDense(len(grad), grad)
	g.MulVec(jac.T(), mat.NewVecDense(len(r), r))
	g.ScaleVec(2, g)

	return sumSquares(r), nil
}

// eval fills r, and jac when it is not nil, for the trial vector x.
func (p *problem) eval(x, r []float64, jac *mat.Dense) error {
	p.evals.Add(1)
	duals, err := p.g.Trial(p.names, p.params, p.point(x), jac != nil)
	if err != nil {
		return err
	}
	if !p.parallel || len(p.segs) < 2 {
		for i := range p.segs {
			if err := p.evalSegment(&p.segs[i], duals, r, jac); err != nil {
				return err
			}
		}

		return nil
	}
	var eg errgroup.Group
	for i := range p.segs {
		seg := &p.segs[i]
		eg.Go(func() error { return p.evalSegment(seg, duals, r, jac) })
	}

	return eg.Wait()
}

// evalSegment writes rows [seg.off, seg.off+len(seg.x)) only.
func (p *problem) evalSegment(seg *segment, duals map[string]expr.Dual, r []float64, jac *mat.Dense) error {
	params := make([][]expr.Dual, len(seg.fns))
	for k, slots := range seg.slots {
		params[k] = make([]expr.Dual, len(slots))
		for j, v := range slots {
			params[k][j] = duals[v]
		}
	}
	dim := p.Dim()
	row := make([]float64, dim)
	for i, x := range seg.x {
		var y float64
		clear(row)
		for k, f := range seg.fns {
			d, err := f.At(expr.Const(x), params[k])
			if err != nil {
				return fmt.Errorf("fit: %%%s at x=%g: %w", f.Name(), x, err)
			}
			y += d.V
			if jac != nil {
				for j := range row {
					row[j] += d.Partial(j)
				}
			}
		}
		s := seg.s[i]
		r[seg.off+i] = (seg.y[i] - y) / s
		if jac != nil {
			out := jac.RawRowView(seg.off + i)
			for j, v := range row {
				out[j] = -v / s
			}
		}
	}

	return nil
}

// stats returns the unweighted residual and total sums of squares for the
// weighted residuals r.
func (p *problem) stats(r []float64) (ssr, sst float64) {
	var mean float64
	for _, seg := range p.segs {
		for _, y := range seg.y {
			mean += y
		}
	}
	mean /= float64(p.n)
	for _, seg := range p.segs {
		for i, y := range seg.y {
			d := r[seg.off+i] * seg.s[i]
			ssr += d * d
			sst += (y - mean) * (y - mean)
		}
	}

	return ssr, sst
}

func sumSquares(r []float64) float64 {
	var s float64
	for _, v := range r {
		s += v * v
	}

	return s
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// worse maps NaN to +Inf so comparisons treat it as the worst value.
func worse(v float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(1)
	}

	return v
}
