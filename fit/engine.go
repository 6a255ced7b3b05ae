package fit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/katalvlaran/lvfit/config"
	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/vars"
)

// Engine runs fits against a variable graph. One fit runs at a time.
type Engine struct {
	g       *vars.Graph
	s       *config.Settings
	log     *zap.Logger
	metrics *Metrics
	state   atomic.Int32

	mu    sync.Mutex
	algos map[string]Algorithm
	hist  []vars.Snapshot
	pos   int
	last  *Result
}

// New returns an Engine with the built-in algorithms registered. The
// settings are read at the start of every fit, so later changes apply.
func New(g *vars.Graph, s *config.Settings, opts ...Option) *Engine {
	e := &Engine{g: g, s: s, log: zap.NewNop(), algos: make(map[string]Algorithm)}
	for _, opt := range opts {
		opt(e)
	}
	e.algos["levenberg_marquardt"] = NewLevenbergMarquardt(s)
	e.algos["nelder_mead_simplex"] = NewNelderMead(s)
	e.algos["genetic_algorithms"] = NewGenetic(s)
	e.algos["lm_external"] = NewLMExternal(s)
	for _, m := range GonumMethods(s) {
		e.algos[m.Name()] = m
	}

	return e
}

// Register adds an algorithm under a.Name().
func (e *Engine) Register(a Algorithm) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.algos[a.Name()]; ok {
		return fmt.Errorf("fit: method %s already registered: %w", a.Name(), errs.ErrEvaluation)
	}
	e.algos[a.Name()] = a

	return nil
}

// Methods returns the registered algorithm names, sorted.
func (e *Engine) Methods() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return slices.Sorted(maps.Keys(e.algos))
}

// Algorithm returns the algorithm registered as name.
func (e *Engine) Algorithm(name string) (Algorithm, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.algos[name]
	if !ok {
		return nil, fmt.Errorf("fit: unknown method %q: %w", name, errs.ErrEvaluation)
	}

	return a, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() Status { return Status(e.state.Load()) }

// Last returns the result of the latest fit, or nil.
func (e *Engine) Last() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.last
}

// Fit minimizes the total WSSR of targets over their free parameters with
// the method named by fitting_method. maxEvals overrides
// max_wssr_evaluations when positive.
//
// The returned Result is non-nil once the problem is prepared, including
// on ErrAborted and ErrFit.
func (e *Engine) Fit(ctx context.Context, targets []Target, maxEvals int) (*Result, error) {
	if !e.state.CompareAndSwap(int32(Idle), int32(Prepared)) {
		return nil, fmt.Errorf("fit: a fit is already running: %w", errs.ErrFit)
	}
	defer e.state.Store(int32(Idle))
	start := time.Now()

	// 1. Prepare
	alg, err := e.Algorithm(e.s.FittingMethod)
	if err != nil {
		return nil, err
	}
	p, err := newProblem(e.g, targets, e.s)
	if err != nil {
		return nil, err
	}
	if p.Dim() == 0 {
		return nil, fmt.Errorf("fit: no free parameters: %w", errs.ErrFit)
	}
	x0, err := e.g.Values(p.params)
	if err != nil {
		return nil, err
	}
	res := &Result{
		RunID:   uuid.New(),
		Method:  alg.Name(),
		Params:  p.Params(),
		Initial: x0,
		Final:   x0,
		DoF:     p.Points() - p.Dim(),
	}
	log := e.log.With(zap.String("run_id", res.RunID.String()), zap.String("method", res.Method))
	res.InitialWSSR, err = p.Objective(x0)
	res.WSSR = res.InitialWSSR
	if err == nil && !finite(res.InitialWSSR) {
		err = fmt.Errorf("fit: initial WSSR is %g", res.InitialWSSR)
	}
	if err != nil {
		return e.finish(log, res, p, start, Failed, err)
	}
	log.Info("fit started",
		zap.Int("params", p.Dim()), zap.Int("points", p.Points()), zap.Float64("wssr", res.InitialWSSR))

	// 2. Run
	e.state.Store(int32(Running))
	budget := Budget{
		MaxEvaluations: e.s.MaxWSSREvaluations,
		OnIteration: func(iter int, wssr float64) {
			log.Debug("fit iteration", zap.Int("iter", iter), zap.Float64("wssr", wssr))
		},
	}
	if maxEvals > 0 {
		budget.MaxEvaluations = maxEvals
	}
	if e.s.MaxFittingTime > 0 {
		budget.Deadline = start.Add(time.Duration(e.s.MaxFittingTime * float64(time.Second)))
	}
	out, runErr := alg.Minimize(ctx, p, append([]float64(nil), x0...), budget)
	res.Iterations = out.Iterations

	// 3. Classify
	var status Status
	switch {
	case ctx.Err() != nil || errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		status = Aborted
		if runErr == nil {
			runErr = ctx.Err()
		}
	case runErr != nil:
		status = Failed
	case out.X == nil || !finite(out.WSSR):
		status, runErr = Failed, fmt.Errorf("fit: %s ended with WSSR %g", alg.Name(), out.WSSR)
	case out.Converged:
		status = Converged
	default:
		status = MaxIterationsReached
	}

	// 4. Write back an improvement
	if status != Failed && out.X != nil && out.WSSR < res.InitialWSSR {
		if err := e.commit(res, p, out); err != nil {
			status, runErr = Failed, err
		}
	}

	// 5. Standard errors
	if (status == Converged || status == MaxIterationsReached) && alg.UsesGradient() {
		if se, err := e.stdErrors(p, res.Final, res.WSSR, res.DoF); err != nil {
			log.Warn("fit: standard errors unavailable", zap.Error(err))
		} else {
			res.StdErrors = se
		}
	}

	return e.finish(log, res, p, start, status, runErr)
}

// commit assigns the outcome to the graph, clamped to the domains, and
// records an undo step.
func (e *Engine) commit(res *Result, p *problem, out Outcome) error {
	final := p.clamp(out.X)
	wssr := out.WSSR
	if !slices.Equal(final, p.point(out.X)) {
		w, err := p.Objective(final)
		if err != nil {
			return err
		}
		if !(w < res.InitialWSSR) {
			return nil
		}
		wssr = w
	}
	before := e.g.Snapshot()
	if err := e.g.AssignAll(p.params, final); err != nil {
		return err
	}
	e.record(before, e.g.Snapshot())
	res.Final, res.WSSR = final, wssr

	return nil
}

func (e *Engine) stdErrors(p *problem, x []float64, wssr float64, dof int) ([]float64, error) {
	_, jac, err := p.Jacobian(x)
	if err != nil {
		return nil, err
	}
	cov, undefined, err := covariance(jac)
	if err != nil {
		return nil, err
	}
	se := stdErrors(cov, undefined, wssr, dof)
	for i, name := range p.params {
		e.g.SetStdErr(name, se[i])
	}

	return se, nil
}

// finish records the result, logs and maps the status to the returned
// error.
func (e *Engine) finish(log *zap.Logger, res *Result, p *problem, start time.Time, status Status, cause error) (*Result, error) {
	res.Status = status
	res.Evaluations = p.Evaluations()
	res.Duration = time.Since(start)
	e.state.Store(int32(status))
	e.metrics.observe(res)
	e.mu.Lock()
	e.last = res
	e.mu.Unlock()

	fields := []zap.Field{
		zap.String("status", status.String()),
		zap.Float64("initial_wssr", res.InitialWSSR),
		zap.Float64("wssr", res.WSSR),
		zap.Int("evaluations", res.Evaluations),
		zap.Int("iterations", res.Iterations),
		zap.Duration("duration", res.Duration),
	}
	switch status {
	case Aborted:
		log.Warn("fit aborted", append(fields, zap.Error(cause))...)
		return res, fmt.Errorf("fit: %s: %v: %w", res.Method, cause, errs.ErrAborted)
	case Failed:
		log.Warn("fit failed", append(fields, zap.Error(cause))...)
		return res, fmt.Errorf("fit: %s: %v: %w", res.Method, cause, errs.ErrFit)
	}
	log.Info("fit finished", fields...)

	return res, nil
}

// Diagnostics computes statistics of the targets at the current values.
func (e *Engine) Diagnostics(targets []Target) (*Diagnostics, error) {
	p, err := newProblem(e.g, targets, e.s)
	if err != nil {
		return nil, err
	}
	x, err := e.g.Values(p.params)
	if err != nil {
		return nil, err
	}
	r, err := p.Residuals(x)
	if err != nil {
		return nil, err
	}
	d := &Diagnostics{
		Params: p.Params(),
		Values: x,
		Points: p.Points(),
		DoF:    p.Points() - p.Dim(),
		WSSR:   sumSquares(r),
	}
	var sst float64
	d.SSR, sst = p.stats(r)
	d.RSquared = math.NaN()
	if sst > 0 {
		d.RSquared = 1 - d.SSR/sst
	}
	if p.Dim() == 0 {
		return d, nil
	}
	_, jac, err := p.Jacobian(x)
	if err != nil {
		return nil, err
	}
	cov, undefined, err := covariance(jac)
	if err != nil {
		return nil, err
	}
	d.Covariance = cov
	d.StdErrors = stdErrors(cov, undefined, d.WSSR, d.DoF)

	return d, nil
}
