package model

import (
	"math"

	"github.com/katalvlaran/lvfit/expr"
)

// builtinSources lists the built-in templates in registration order. A
// template may only call templates listed before it.
var builtinSources = []string{
	"Constant(a=avgy) = a",
	"Linear(a0=intercept, a1=slope) = a0 + a1*x",
	"Quadratic(a0=intercept, a1=slope, a2=0) = a0 + a1*x + a2*x^2",
	"Cubic(a0=intercept, a1=slope, a2=0, a3=0) = a0 + a1*x + a2*x^2 + a3*x^3",
	"Polynomial4(a0=intercept, a1=slope, a2=0, a3=0, a4=0) = a0 + a1*x + a2*x^2 + a3*x^3 + a4*x^4",
	"Polynomial5(a0=intercept, a1=slope, a2=0, a3=0, a4=0, a5=0) = a0 + a1*x + a2*x^2 + a3*x^3 + a4*x^4 + a5*x^5",
	"Polynomial6(a0=intercept, a1=slope, a2=0, a3=0, a4=0, a5=0, a6=0) = a0 + a1*x + a2*x^2 + a3*x^3 + a4*x^4 + a5*x^5 + a6*x^6",
	"Gaussian(height, center, hwhm) = height*exp(-ln(2)*((x-center)/hwhm)^2)",
	"SplitGaussian(height, center, hwhm1=hwhm, hwhm2=hwhm) = x < center ? Gaussian(height, center, hwhm1) : Gaussian(height, center, hwhm2)",
	"Lorentzian(height, center, hwhm) = height/(1+((x-center)/hwhm)^2)",
	"Pearson7(height, center, hwhm, shape=2) = height/(1+((x-center)/hwhm)^2*(2^(1/shape)-1))^shape",
	"SplitPearson7(height, center, hwhm1=hwhm, hwhm2=hwhm, shape1=2, shape2=2) = x < center ? Pearson7(height, center, hwhm1, shape1) : Pearson7(height, center, hwhm2, shape2)",
	"PseudoVoigt(height, center, hwhm, shape=0.5 [0:1]) = height*((1-shape)*exp(-ln(2)*((x-center)/hwhm)^2) + shape/(1+((x-center)/hwhm)^2))",
	"Voigt(height, center, gwidth=hwhm*0.8, shape=0.1)",
	"VoigtA(area, center, gwidth=hwhm*0.8, shape=0.1)",
	"EMG(a=height, b=center, c=hwhm*0.8, d=hwhm*0.08) = a*c*(2*pi)^0.5/(2*d)*exp((b-x)/d + c^2/(2*d^2))*(abs(d)/d - erf((b-x)/(2^0.5*c) + c/(2^0.5*d)))",
	"DoniachSunjic(h=height, a=0.1, f=1, e=center) = h*cos(pi*a/2 + (1-a)*atan((x-e)/f))/(f^2 + (x-e)^2)^((1-a)/2)",
	"LogNormal(height, center, width=2*hwhm, asym=0.1) = height*exp(-ln(2)*(ln(2*asym*(x-center)/width + 1)/asym)^2)",
	"ExpDecay(a=0, t=1) = a*exp(-x/t)",
	"GaussianA(area, center, hwhm) = Gaussian(area/hwhm/sqrt(pi/ln(2)), center, hwhm)",
	"LogNormalA(area, center, width=2*hwhm, asym=0.1) = LogNormal(sqrt(ln(2)/pi)*(2*area/width)*exp(-asym^2/4/ln(2)), center, width, asym)",
	"LorentzianA(area, center, hwhm) = Lorentzian(area/hwhm/pi, center, hwhm)",
	"Pearson7A(area, center, hwhm, shape=2) = Pearson7(area/(hwhm*exp(lgamma(shape-0.5)-lgamma(shape))*sqrt(pi/(2^(1/shape)-1))), center, hwhm, shape)",
	"PseudoVoigtA(area, center, hwhm, shape=0.5 [0:1]) = GaussianA(area*(1-shape), center, hwhm) + LorentzianA(area*shape, center, hwhm)",
	"Sigmoid(lower, upper, xmid, wsig) = lower + (upper-lower)/(1+exp((xmid-x)/wsig))",
	"SplitLorentzian(height, center, hwhm1=hwhm, hwhm2=hwhm) = x < center ? Lorentzian(height, center, hwhm1) : Lorentzian(height, center, hwhm2)",
	"SplitPseudoVoigt(height, center, hwhm1=hwhm, hwhm2=hwhm, shape1=0.5 [0:1], shape2=0.5 [0:1]) = x < center ? PseudoVoigt(height, center, hwhm1, shape1) : PseudoVoigt(height, center, hwhm2, shape2)",
	"SplitVoigt(height, center, gwidth1=hwhm*0.8, gwidth2=hwhm*0.8, shape1=0.5, shape2=0.5) = x < center ? Voigt(height, center, gwidth1, shape1) : Voigt(height, center, gwidth2, shape2)",
}

// codedTemplates maps header-only entries of builtinSources to Go code.
var codedTemplates = map[string]coded{
	"Voigt":  voigt,
	"VoigtA": voigtA,
}

// voigt is height·K(xa, shape)/K(0, shape) with xa = (x-center)/gwidth, so
// the peak value equals height for every shape.
func voigt(x expr.Dual, p []expr.Dual) expr.Dual {
	xa := x.Sub(p[1]).Div(p[2])
	k := expr.VoigtK(xa, p[3])
	k0 := expr.VoigtK(expr.Const(0), p[3])

	return p[0].Mul(k).Div(k0)
}

// voigtA is area·K(xa, shape)/(√π·gwidth).
func voigtA(x expr.Dual, p []expr.Dual) expr.Dual {
	xa := x.Sub(p[1]).Div(p[2])
	k := expr.VoigtK(xa, p[3])

	return p[0].Mul(k).Div(p[2].Scale(math.Sqrt(math.Pi)))
}
