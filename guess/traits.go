package guess

import (
	"math"
)

// fluctuationPoints is how many consecutive points below half maximum end a
// peak side.
const fluctuationPoints = 3

// Data is the input of estimation: points ordered by x, with the part of the
// model that is not being guessed already subtracted from Y. Sigma may be
// nil.
type Data struct {
	X, Y, Sigma []float64
}

// Len returns the number of points.
func (d Data) Len() int { return len(d.X) }

// PeakTraits describes the most prominent peak.
type PeakTraits struct {
	Center, Height, HWHM, Area float64
	// Fallback is set when no interior maximum exists and the estimate
	// comes from the global maximum or neutral values.
	Fallback bool
}

// LinearTraits is the least-squares line through the data.
type LinearTraits struct {
	Slope, Intercept, AvgY float64
	Fallback               bool
}

// SigmoidTraits describes a step between two plateaus.
type SigmoidTraits struct {
	Lower, Upper, XMid, WSig float64
	Fallback                 bool
}

// Peak estimates the peak traits of d. heightCorr and widthCorr scale the
// measured height and half width; eps is the smallest half width returned.
func Peak(d Data, useWeights bool, heightCorr, widthCorr, eps float64) PeakTraits {
	n := d.Len()
	if n == 0 {
		return PeakTraits{Height: 1, HWHM: 1, Area: 1, Fallback: true}
	}
	weighted := useWeights && len(d.Sigma) == n

	// 1. Highest interior point: higher than the previous candidate and
	// not lower than the next point
	higher := func(i, t int) bool {
		if weighted {
			return d.Sigma[t]*d.Y[i] > d.Sigma[i]*d.Y[t]
		}
		return d.Y[i] > d.Y[t]
	}
	notLower := func(i, next int) bool {
		if weighted {
			return d.Sigma[next]*d.Y[i] >= d.Sigma[i]*d.Y[next]
		}
		return d.Y[i] >= d.Y[next]
	}
	pos := -1
	for i := 1; i < n-1; i++ {
		t := pos
		if t == -1 {
			t = i - 1
		}
		if higher(i, t) && notLower(i, i+1) {
			pos = i
		}
	}

	// 2. Otherwise the global maximum
	fallback := pos == -1
	if fallback {
		pos = 0
		for i := 1; i < n; i++ {
			if higher(i, pos) {
				pos = i
			}
		}
	}

	hwhm, area := halfWidth(d, pos, eps)

	return PeakTraits{
		Center:   d.X[pos],
		Height:   d.Y[pos] * heightCorr,
		HWHM:     hwhm * widthCorr,
		Area:     area,
		Fallback: fallback,
	}
}

// halfWidth walks both sides of pos down to half maximum and returns the
// half width and the trapezoid area between the two ends.
func halfWidth(d Data, pos int, eps float64) (hwhm, area float64) {
	hm := 0.5 * d.Y[pos]
	left, right := 0, d.Len()-1

	below := 0
	for i := pos; i > 0; i-- {
		if d.Y[i] > hm {
			if below > 0 {
				below--
			}
			continue
		}
		if below++; below == fluctuationPoints {
			left = i + below
			break
		}
	}

	below = 0
	for i := pos; i < right; i++ {
		if d.Y[i] > hm {
			if below > 0 {
				below--
			}
			continue
		}
		if below++; below == fluctuationPoints {
			right = i - below + 1
			break
		}
	}

	// a non-positive maximum is "below" its own half
	left, right = min(left, pos), max(right, pos)
	for i := left; i < right; i++ {
		area += (d.X[i+1] - d.X[i]) * (d.Y[i] + d.Y[i+1]) / 2
	}
	hwhm = (d.X[right] - d.X[left]) / 2

	return math.Max(hwhm, eps), area
}

// Linear fits y = intercept + slope·x by least squares.
func Linear(d Data) LinearTraits {
	n := float64(d.Len())
	if n == 0 {
		return LinearTraits{Fallback: true}
	}
	var sx, sy, sxx, sxy float64
	for i := range d.X {
		x, y := d.X[i], d.Y[i]
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	avgy := sy / n
	den := n*sxx - sx*sx
	if den == 0 {
		return LinearTraits{Intercept: avgy, AvgY: avgy, Fallback: true}
	}
	slope := (n*sxy - sx*sy) / den

	return LinearTraits{Slope: slope, Intercept: (sy - slope*sx) / n, AvgY: avgy}
}

// Sigmoid estimates the plateaus from the first and last tenth of the
// points, the midpoint from the half-level crossing and the width from the
// quarter-level crossings (x75 - x25 = 2·ln3·wsig for a logistic step).
func Sigmoid(d Data) SigmoidTraits {
	n := d.Len()
	if n == 0 {
		return SigmoidTraits{Upper: 1, WSig: 1, Fallback: true}
	}
	k := n / 10
	if k < 1 {
		k = 1
	}
	lower, upper := mean(d.Y[:k]), mean(d.Y[n-k:])
	span := d.X[n-1] - d.X[0]
	out := SigmoidTraits{Lower: lower, Upper: upper, XMid: (d.X[0] + d.X[n-1]) / 2, WSig: span / 10}
	if out.WSig == 0 {
		out.WSig = 1
	}

	mid, okMid := crossing(d, lower+(upper-lower)/2)
	q1, ok1 := crossing(d, lower+(upper-lower)/4)
	q3, ok3 := crossing(d, lower+3*(upper-lower)/4)
	if okMid {
		out.XMid = mid
	}
	if ok1 && ok3 && q3 != q1 {
		out.WSig = (q3 - q1) / (2 * math.Log(3))
	}
	out.Fallback = !okMid || !ok1 || !ok3

	return out
}

// crossing returns the linearly interpolated x where y first reaches level.
func crossing(d Data, level float64) (float64, bool) {
	for i := 0; i+1 < d.Len(); i++ {
		a, b := d.Y[i]-level, d.Y[i+1]-level
		switch {
		case a == 0:
			return d.X[i], true
		case math.Signbit(a) != math.Signbit(b):
			return d.X[i] + (d.X[i+1]-d.X[i])*a/(a-b), true
		}
	}

	return 0, false
}

func mean(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}

	return s / float64(len(v))
}
