package fit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/katalvlaran/lvfit/dataset"
	"github.com/katalvlaran/lvfit/model"
)

// Status is the fit lifecycle state.
type Status int32

const (
	Idle Status = iota
	Prepared
	Running
	Converged
	MaxIterationsReached
	Aborted
	Failed
)

var statusNames = [...]string{"idle", "prepared", "running", "converged", "max_iterations_reached", "aborted", "failed"}

// String returns the lower-case status name used in logs and metric labels.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}

	return statusNames[s]
}

// Target pairs a dataset with the model fitted to it.
type Target struct {
	Data  *dataset.Dataset
	Model *model.Model
}

// Problem is the objective an Algorithm minimizes. x always has Dim()
// entries, ordered as Params().
type Problem interface {
	Dim() int
	Params() []string
	// Points is the number of residuals.
	Points() int
	// Objective returns WSSR at x.
	Objective(x []float64) (float64, error)
	// Gradient stores dWSSR/dx in grad and returns WSSR.
	Gradient(x, grad []float64) (float64, error)
	Residuals(x []float64) ([]float64, error)
	// Jacobian returns the residuals and dr_i/dx_j.
	Jacobian(x []float64) ([]float64, *mat.Dense, error)
	// Bounds are the parameter domains (infinite when undeclared).
	Bounds() (lo, hi []float64)
	// SearchRange is where random and simplex methods draw trial values.
	SearchRange() (lo, hi []float64)
	// Evaluations counts objective, residual and Jacobian calls so far.
	Evaluations() int
}

// Budget limits a run. Zero values mean no limit.
type Budget struct {
	MaxEvaluations int
	Deadline       time.Time
	// OnIteration, when set, receives the best WSSR after each iteration.
	OnIteration func(iter int, wssr float64)
}

// Exhausted reports whether p has used up the budget.
func (b Budget) Exhausted(p Problem) bool {
	if b.MaxEvaluations > 0 && p.Evaluations() >= b.MaxEvaluations {
		return true
	}

	return !b.Deadline.IsZero() && !time.Now().Before(b.Deadline)
}

func (b Budget) report(iter int, wssr float64) {
	if b.OnIteration != nil {
		b.OnIteration(iter, wssr)
	}
}

// Outcome is what an Algorithm found. X is nil when nothing was evaluated.
type Outcome struct {
	X          []float64
	WSSR       float64
	Iterations int
	// Converged is false when the run stopped on the budget.
	Converged bool
}

// Algorithm is a minimizer. Minimize returns the best point seen so far
// together with any error, including ctx.Err() on cancellation.
type Algorithm interface {
	Name() string
	// UsesGradient reports whether standard errors are computed after a
	// run of this algorithm.
	UsesGradient() bool
	Minimize(ctx context.Context, p Problem, x0 []float64, b Budget) (Outcome, error)
}

// Result describes one run of Engine.Fit.
type Result struct {
	RunID       uuid.UUID
	Method      string
	Status      Status
	Params      []string
	Initial     []float64
	Final       []float64
	InitialWSSR float64
	WSSR        float64
	Evaluations int
	Iterations  int
	DoF         int
	Duration    time.Duration
	// StdErrors is nil unless the method uses gradients.
	StdErrors []float64
}

// Diagnostics are statistics of the current parameter values.
type Diagnostics struct {
	Params   []string
	Values   []float64
	Points   int
	DoF      int
	WSSR     float64
	SSR      float64
	RSquared float64
	// StdErrors and Covariance are nil when there are no free parameters.
	StdErrors  []float64
	Covariance *mat.SymDense
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger; the default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics records run metrics in m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}
