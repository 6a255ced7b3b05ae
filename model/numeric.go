package model

import (
	"fmt"
	"math"

	"github.com/katalvlaran/lvfit/errs"
)

const (
	maxRootIterations = 200
	rootTolerance     = 1e-12
)

// curve returns y(x) and dy/dx.
type curve func(x float64) (y, dydx float64, err error)

func (f *Function) curve() (curve, error) {
	p, err := f.Params(nil)
	if err != nil {
		return nil, err
	}

	return func(x float64) (float64, float64, error) { return f.valueAndSlope(p, x) }, nil
}

// NumericArea integrates the function over [lo, hi] with the composite
// Simpson rule on n subdivisions (n is raised to the next even number, at
// least 2).
func (f *Function) NumericArea(lo, hi float64, n int) (float64, error) {
	c, err := f.curve()
	if err != nil {
		return 0, err
	}

	return simpson(c, lo, hi, n)
}

// FindX returns x in [lo, hi] with value(x) = y. The function must change
// sign around y between the ends, otherwise ErrNotFound.
func (f *Function) FindX(lo, hi, y float64) (float64, error) {
	c, err := f.curve()
	if err != nil {
		return 0, err
	}

	return findX(c, lo, hi, y)
}

// Extremum returns the x of a local extremum in [lo, hi], found by
// bisection on dy/dx. ErrNotFound when dy/dx has the same sign at both ends.
func (f *Function) Extremum(lo, hi float64) (float64, error) {
	c, err := f.curve()
	if err != nil {
		return 0, err
	}

	return extremum(c, lo, hi)
}

func simpson(f curve, lo, hi float64, n int) (float64, error) {
	if n < 2 {
		n = 2
	}
	if n%2 == 1 {
		n++
	}
	h := (hi - lo) / float64(n)
	var sum float64
	for i := 0; i <= n; i++ {
		y, _, err := f(lo + float64(i)*h)
		if err != nil {
			return 0, err
		}
		switch {
		case i == 0 || i == n:
			sum += y
		case i%2 == 1:
			sum += 4 * y
		default:
			sum += 2 * y
		}
	}

	return sum * h / 3, nil
}

func findX(f curve, lo, hi, target float64) (float64, error) {
	if lo > hi {
		lo, hi = hi, lo
	}
	flo, _, err := f(lo)
	if err != nil {
		return 0, err
	}
	fhi, _, err := f(hi)
	if err != nil {
		return 0, err
	}
	flo, fhi = flo-target, fhi-target
	switch {
	case flo == 0:
		return lo, nil
	case fhi == 0:
		return hi, nil
	case math.Signbit(flo) == math.Signbit(fhi):
		return 0, fmt.Errorf("model: no value %g bracketed in [%g, %g]: %w", target, lo, hi, errs.ErrNotFound)
	}
	x := (lo + hi) / 2
	for i := 0; i < maxRootIterations; i++ {
		y, dy, err := f(x)
		if err != nil {
			return 0, err
		}
		y -= target
		if y == 0 || hi-lo <= rootTolerance*(1+math.Abs(x)) {
			return x, nil
		}
		// 1. shrink the bracket
		if math.Signbit(y) == math.Signbit(flo) {
			lo, flo = x, y
		} else {
			hi = x
		}
		// 2. Newton step when it stays inside, else bisect
		next := (lo + hi) / 2
		if dy != 0 {
			if nx := x - y/dy; nx > lo && nx < hi {
				next = nx
			}
		}
		if next == x {
			return x, nil
		}
		x = next
	}

	return x, nil
}

func extremum(f curve, lo, hi float64) (float64, error) {
	if lo > hi {
		lo, hi = hi, lo
	}
	_, dlo, err := f(lo)
	if err != nil {
		return 0, err
	}
	_, dhi, err := f(hi)
	if err != nil {
		return 0, err
	}
	switch {
	case dlo == 0:
		return lo, nil
	case dhi == 0:
		return hi, nil
	case math.Signbit(dlo) == math.Signbit(dhi):
		return 0, fmt.Errorf("model: no extremum in [%g, %g]: %w", lo, hi, errs.ErrNotFound)
	}
	for i := 0; i < maxRootIterations && hi-lo > rootTolerance*(1+math.Abs(lo)); i++ {
		mid := (lo + hi) / 2
		_, d, err := f(mid)
		if err != nil {
			return 0, err
		}
		if d == 0 {
			return mid, nil
		}
		if math.Signbit(d) == math.Signbit(dlo) {
			lo = mid
		} else {
			hi = mid
		}
	}

	return (lo + hi) / 2, nil
}
