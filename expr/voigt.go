package expr

import (
	"math"
	"math/cmplx"
)

const invSqrtPi = 0.5641895835477563

// faddeeva approximates w(z) = exp(-z²)·erfc(-iz) for Im z >= 0 with
// Humlicek's four-region rational approximation (relative error ~1e-4).
func faddeeva(z complex128) complex128 {
	x, y := real(z), imag(z)
	t := complex(y, -x)
	s := math.Abs(x) + y
	switch {
	case s >= 15:
		return t * 0.5641896 / (0.5 + t*t)
	case s >= 5.5:
		u := t * t
		return t * (1.410474 + u*0.5641896) / (0.75 + u*(3+u))
	case y >= 0.195*math.Abs(x)-0.176:
		return (16.4955 + t*(20.20933+t*(11.96482+t*(3.778987+t*0.5642236)))) /
			(16.4955 + t*(38.82363+t*(39.27121+t*(21.69274+t*(6.699398+t)))))
	}
	u := t * t
	num := t * (36183.31 - u*(3321.9905-u*(1540.787-u*(219.0313-u*(35.76683-u*(1.320522-u*0.56419))))))
	den := 32066.6 - u*(24322.84-u*(9022.228-u*(2186.181-u*(364.2191-u*(61.57037-u*(1.841439-u))))))

	return cmplx.Exp(u) - num/den
}

// Voigt returns the Voigt kernel K(x, y) = Re w(x + i|y|) together with
// ∂K/∂x and ∂K/∂y. K(x, 0) is exp(-x²); K(0, y) is exp(y²)·erfc(y).
func Voigt(x, y float64) (k, dkdx, dkdy float64) {
	ay := math.Abs(y)
	z := complex(x, ay)
	w := faddeeva(z)
	// w'(z) = -2z·w(z) + 2i/√π; ∂w/∂x = w', ∂w/∂y = i·w'
	dw := -2*z*w + complex(0, 2*invSqrtPi)
	k = real(w)
	dkdx = real(dw)
	dkdy = -imag(dw)
	if y < 0 {
		dkdy = -dkdy
	}

	return k, dkdx, dkdy
}

// VoigtK is Voigt in forward mode.
func VoigtK(x, y Dual) Dual {
	k, dx, dy := Voigt(x.V, y.V)

	return Dual{V: k, D: combine(x.D, dx, y.D, dy)}
}
