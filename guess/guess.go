package guess

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/katalvlaran/lvfit/config"
	"github.com/katalvlaran/lvfit/dataset"
	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
	"github.com/katalvlaran/lvfit/model"
)

// Trait names usable in parameter defaults.
var (
	peakTraits    = []string{"center", "height", "hwhm", "area"}
	linearTraits  = []string{"slope", "intercept", "avgy"}
	sigmoidTraits = []string{"lower", "upper", "xmid", "wsig"}
)

// Options are the estimation settings.
type Options struct {
	UseWeights       bool
	HeightCorrection float64
	WidthCorrection  float64
	Epsilon          float64
}

// OptionsFrom reads the guess settings.
func OptionsFrom(s *config.Settings) Options {
	return Options{
		UseWeights:       s.GuessUsesWeights,
		HeightCorrection: s.HeightCorrection,
		WidthCorrection:  s.WidthCorrection,
		Epsilon:          s.Epsilon,
	}
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

// Engine turns data into parameter values for a template.
type Engine struct {
	opts Options
	log  *zap.Logger
}

// New returns an Engine.
func New(o Options, opts ...Option) *Engine {
	e := &Engine{opts: o, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Collect builds estimation input from the active points of d with
// lo <= x <= hi, subtracting every instance of m except exclude (the
// function being re-guessed, or "" for none). A nil m subtracts nothing.
func Collect(d *dataset.Dataset, m *model.Model, exclude string, lo, hi float64) (Data, error) {
	pts := d.ActiveRange(lo, hi)
	out := Data{
		X:     make([]float64, len(pts)),
		Y:     make([]float64, len(pts)),
		Sigma: make([]float64, len(pts)),
	}
	var fs []*model.Function
	if m != nil {
		for _, f := range m.Functions() {
			if f.Name() != exclude {
				fs = append(fs, f)
			}
		}
	}
	for i, p := range pts {
		y := p.Y
		for _, f := range fs {
			v, err := f.Value(p.X)
			if err != nil {
				return Data{}, err
			}
			y -= v
		}
		out.X[i], out.Y[i], out.Sigma[i] = p.X, y, p.Sigma
	}

	return out, nil
}

// Traits measures every trait family tpl's defaults refer to.
func (e *Engine) Traits(tpl *model.Template, d Data) map[string]float64 {
	need := make(map[string]bool)
	for _, t := range tpl.Traits() {
		need[t] = true
	}
	out := make(map[string]float64)
	if needsAny(need, peakTraits) {
		p := Peak(d, e.opts.UseWeights, e.opts.HeightCorrection, e.opts.WidthCorrection, e.opts.Epsilon)
		out["center"], out["height"], out["hwhm"], out["area"] = p.Center, p.Height, p.HWHM, p.Area
		if p.Fallback {
			e.log.Warn("guess: no interior peak, using global maximum",
				zap.String("template", tpl.Name), zap.Int("points", d.Len()))
		}
	}
	if needsAny(need, linearTraits) {
		l := Linear(d)
		out["slope"], out["intercept"], out["avgy"] = l.Slope, l.Intercept, l.AvgY
		if l.Fallback {
			e.log.Warn("guess: degenerate data for a line", zap.String("template", tpl.Name), zap.Int("points", d.Len()))
		}
	}
	if needsAny(need, sigmoidTraits) {
		s := Sigmoid(d)
		out["lower"], out["upper"], out["xmid"], out["wsig"] = s.Lower, s.Upper, s.XMid, s.WSig
		if s.Fallback {
			e.log.Warn("guess: no clear step", zap.String("template", tpl.Name), zap.Int("points", d.Len()))
		}
	}

	return out
}

func needsAny(need map[string]bool, family []string) bool {
	for _, t := range family {
		if need[t] {
			return true
		}
	}

	return false
}

// Guess returns one value per parameter of tpl. Values in given (by
// parameter name) are taken as they are; the others come from the parameter
// defaults evaluated over the measured traits.
func (e *Engine) Guess(tpl *model.Template, d Data, given map[string]float64) ([]float64, error) {
	traits := e.Traits(tpl, d)
	repl := make(map[string]expr.Node, len(traits))
	for k, v := range traits {
		repl[k] = &expr.Num{V: v}
	}

	out := make([]float64, len(tpl.Params))
	for i, p := range tpl.Params {
		if v, ok := given[p.Name]; ok {
			out[i] = v
			continue
		}
		v, err := expr.Eval(expr.Substitute(tpl.DefaultOf(i), repl), nil)
		if err != nil {
			return nil, fmt.Errorf("guess: %s: parameter %s has no usable default: %w", tpl.Name, p.Name, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("guess: %s: parameter %s guessed as %g: %w", tpl.Name, p.Name, v, errs.ErrEvaluation)
		}
		out[i] = v
	}
	e.log.Debug("guess", zap.String("template", tpl.Name), zap.Float64s("values", out), zap.Int("points", d.Len()))

	return out, nil
}
