package expr

import "math"

var (
	posInf = math.Inf(1)
	nan    = math.NaN()
)

// Dual is a value with its gradient over a caller-defined slot space.
// A nil D means every partial derivative is zero.
type Dual struct {
	V float64
	D []float64
}

// Const returns a Dual with zero gradient.
func Const(v float64) Dual { return Dual{V: v} }

// Seed returns a Dual whose gradient is the unit vector e_i of length dim.
func Seed(v float64, i, dim int) Dual {
	d := make([]float64, dim)
	d[i] = 1

	return Dual{V: v, D: d}
}

// Partial returns ∂/∂slot i (0 when out of range or constant).
func (a Dual) Partial(i int) float64 {
	if i < 0 || i >= len(a.D) {
		return 0
	}

	return a.D[i]
}

// combine returns ca*a + cb*b treating nil as the zero vector.
func combine(a []float64, ca float64, b []float64, cb float64) []float64 {
	switch {
	case a == nil && b == nil:
		return nil
	case b == nil || cb == 0:
		if a == nil {
			return nil
		}
		out := make([]float64, len(a))
		for i, v := range a {
			out[i] = ca * v
		}

		return out
	case a == nil || ca == 0:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = cb * v
		}

		return out
	}
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]float64, n)
	for i, v := range a {
		out[i] = ca * v
	}
	for i, v := range b {
		out[i] += cb * v
	}

	return out
}

// chain applies f with derivative df at a.V: result (f, df·a.D).
func chain(a Dual, f, df float64) Dual {
	return Dual{V: f, D: combine(a.D, df, nil, 0)}
}

// Add returns a + b.
func (a Dual) Add(b Dual) Dual { return Dual{V: a.V + b.V, D: combine(a.D, 1, b.D, 1)} }

// Sub returns a - b.
func (a Dual) Sub(b Dual) Dual { return Dual{V: a.V - b.V, D: combine(a.D, 1, b.D, -1)} }

// Mul returns a * b.
func (a Dual) Mul(b Dual) Dual { return Dual{V: a.V * b.V, D: combine(a.D, b.V, b.D, a.V)} }

// Div returns a / b.
func (a Dual) Div(b Dual) Dual {
	v := a.V / b.V

	return Dual{V: v, D: combine(a.D, 1/b.V, b.D, -v/b.V)}
}

// Neg returns -a.
func (a Dual) Neg() Dual { return Dual{V: -a.V, D: combine(a.D, -1, nil, 0)} }

// Scale returns c * a.
func (a Dual) Scale(c float64) Dual { return Dual{V: c * a.V, D: combine(a.D, c, nil, 0)} }

// Pow returns a^b. The ln(a) term is only formed when b carries a gradient,
// so integer powers of negative bases stay finite.
func (a Dual) Pow(b Dual) Dual {
	v := math.Pow(a.V, b.V)
	var da float64
	if a.D != nil {
		if b.V == 0 {
			da = 0
		} else {
			da = b.V * math.Pow(a.V, b.V-1)
		}
	}
	var db float64
	if b.D != nil && a.V > 0 {
		db = v * math.Log(a.V)
	}

	return Dual{V: v, D: combine(a.D, da, b.D, db)}
}

// Exp returns e^a.
func (a Dual) Exp() Dual {
	v := math.Exp(a.V)

	return chain(a, v, v)
}

// Sqrt returns √a.
func (a Dual) Sqrt() Dual {
	v := math.Sqrt(a.V)

	return chain(a, v, 0.5/v)
}

// Log returns ln(a).
func (a Dual) Log() Dual { return chain(a, math.Log(a.V), 1/a.V) }
