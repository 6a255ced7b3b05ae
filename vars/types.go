package vars

import (
	"fmt"
	"math"
	"regexp"

	"go.uber.org/zap"

	"github.com/katalvlaran/lvfit/expr"
)

// Kind distinguishes simple from compound variables.
type Kind int

const (
	// Simple variables hold a value directly.
	Simple Kind = iota
	// Compound variables are defined by an expression.
	Compound
)

// String returns "simple" or "compound".
func (k Kind) String() string {
	if k == Compound {
		return "compound"
	}

	return "simple"
}

// Domain is an inclusive bound [Lo, Hi]; either side may be infinite.
type Domain struct {
	Lo, Hi float64
}

// Unbounded is the domain (-inf, inf).
var Unbounded = Domain{Lo: math.Inf(-1), Hi: math.Inf(1)}

// Contains reports whether v lies within the domain.
func (d Domain) Contains(v float64) bool { return v >= d.Lo && v <= d.Hi }

// Finite reports whether both bounds are finite.
func (d Domain) Finite() bool { return !math.IsInf(d.Lo, 0) && !math.IsInf(d.Hi, 0) }

// Clamp returns v limited to the domain.
func (d Domain) Clamp(v float64) float64 { return math.Max(d.Lo, math.Min(d.Hi, v)) }

// String renders the domain as "[lo:hi]", leaving infinite sides empty.
func (d Domain) String() string {
	side := func(v float64) string {
		if math.IsInf(v, 0) {
			return ""
		}
		return expr.FormatNumber(v)
	}

	return "[" + side(d.Lo) + ":" + side(d.Hi) + "]"
}

// Variable is a read-only view of one variable.
type Variable struct {
	Name   string
	Kind   Kind
	Value  float64
	Free   bool       // simple only: optimized by fits
	Domain *Domain    // simple only
	Expr   expr.Node  // compound only
	Auto   bool       // auto-named (_N)
	StdErr float64    // NaN until a fit computes it
	Deps   []string   // direct dependencies, sorted
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger; the default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.log = l
		}
	}
}

var (
	nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	autoRe = regexp.MustCompile(`^_([0-9]+)$`)
)

// ValidName reports whether name can name a variable.
func ValidName(name string) bool { return nameRe.MatchString(name) }

// IsAuto reports whether name has the auto-generated form _N.
func IsAuto(name string) bool { return autoRe.MatchString(name) }

func autoName(n int) string { return fmt.Sprintf("_%d", n) }
