package model

import (
	"fmt"
	"math"

	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
)

// Property names understood by Function.Property.
const (
	PropCenter         = "Center"
	PropHeight         = "Height"
	PropFWHM           = "FWHM"
	PropArea           = "Area"
	PropIWidth         = "IWidth"
	PropGaussianFWHM   = "GaussianFWHM"
	PropLorentzianFWHM = "LorentzianFWHM"
)

type propFunc func(p []float64) (float64, bool)

var (
	sqrtPiLn2 = math.Sqrt(math.Pi / math.Ln2)
	sqrtPi    = math.Sqrt(math.Pi)
)

func gaussArea(h, w float64) float64   { return h * math.Abs(w) * sqrtPiLn2 }
func lorentzArea(h, w float64) float64 { return h * math.Abs(w) * math.Pi }

func pvArea(h, w, s float64) float64 {
	return h * math.Abs(w) * (s*math.Pi + (1-s)*sqrtPiLn2)
}

// pearsonArea is undefined for shape <= 0.5.
func pearsonArea(h, w, m float64) (float64, bool) {
	if m <= 0.5 {
		return 0, false
	}
	g := math.Exp(lgamma(m-0.5) - lgamma(m))

	return h * math.Abs(w) * sqrtPi * g / math.Sqrt(math.Pow(2, 1/m)-1), true
}

func lgamma(v float64) float64 {
	r, _ := math.Lgamma(v)

	return r
}

func voigtK0(shape float64) float64 {
	k, _, _ := expr.Voigt(0, shape)

	return k
}

// voigtFWHM approximates the Voigt FWHM from its Gaussian and Lorentzian
// components (Olivero and Longbothum).
func voigtFWHM(gwidth, shape float64) float64 {
	fG, fL := voigtGaussFWHM(gwidth), voigtLorentzFWHM(gwidth, shape)

	return 0.5346*fL + math.Sqrt(0.2166*fL*fL+fG*fG)
}

func voigtGaussFWHM(gwidth float64) float64 {
	sigma := math.Abs(gwidth) / math.Sqrt2

	return 2 * sigma * math.Sqrt(2*math.Ln2)
}

func voigtLorentzFWHM(gwidth, shape float64) float64 { return 2 * math.Abs(gwidth) * shape }

func voigtArea(h, g, s float64) float64 { return h * math.Abs(g*sqrtPi/voigtK0(s)) }

func always(v float64) (float64, bool) { return v, true }

// templateProps overrides the name-based property rules per template.
var templateProps = map[string]map[string]propFunc{
	"Gaussian": {
		PropArea: func(p []float64) (float64, bool) { return always(gaussArea(p[0], p[2])) },
	},
	"SplitGaussian": {
		PropFWHM: func(p []float64) (float64, bool) { return always(math.Abs(p[2]) + math.Abs(p[3])) },
		PropArea: func(p []float64) (float64, bool) { return always((gaussArea(p[0], p[2]) + gaussArea(p[0], p[3])) / 2) },
	},
	"Lorentzian": {
		PropArea: func(p []float64) (float64, bool) { return always(lorentzArea(p[0], p[2])) },
	},
	"SplitLorentzian": {
		PropFWHM: func(p []float64) (float64, bool) { return always(math.Abs(p[2]) + math.Abs(p[3])) },
		PropArea: func(p []float64) (float64, bool) {
			return always((lorentzArea(p[0], p[2]) + lorentzArea(p[0], p[3])) / 2)
		},
	},
	"Pearson7": {
		PropArea: func(p []float64) (float64, bool) { return pearsonArea(p[0], p[2], p[3]) },
	},
	"SplitPearson7": {
		PropFWHM: func(p []float64) (float64, bool) { return always(math.Abs(p[2]) + math.Abs(p[3])) },
		PropArea: func(p []float64) (float64, bool) {
			a1, ok1 := pearsonArea(p[0], p[2], p[4])
			a2, ok2 := pearsonArea(p[0], p[3], p[5])
			return (a1 + a2) / 2, ok1 && ok2
		},
	},
	"PseudoVoigt": {
		PropArea: func(p []float64) (float64, bool) { return always(pvArea(p[0], p[2], p[3])) },
	},
	"SplitPseudoVoigt": {
		PropFWHM: func(p []float64) (float64, bool) { return always(math.Abs(p[2]) + math.Abs(p[3])) },
		PropArea: func(p []float64) (float64, bool) {
			return always((pvArea(p[0], p[2], p[4]) + pvArea(p[0], p[3], p[5])) / 2)
		},
	},
	"Voigt": {
		PropFWHM:           func(p []float64) (float64, bool) { return always(voigtFWHM(p[2], p[3])) },
		PropArea:           func(p []float64) (float64, bool) { return always(voigtArea(p[0], p[2], p[3])) },
		PropGaussianFWHM:   func(p []float64) (float64, bool) { return always(voigtGaussFWHM(p[2])) },
		PropLorentzianFWHM: func(p []float64) (float64, bool) { return always(voigtLorentzFWHM(p[2], p[3])) },
	},
	"VoigtA": {
		PropFWHM:           func(p []float64) (float64, bool) { return always(voigtFWHM(p[2], p[3])) },
		PropHeight:         func(p []float64) (float64, bool) { return always(p[0] * voigtK0(p[3]) / math.Abs(p[2]*sqrtPi)) },
		PropGaussianFWHM:   func(p []float64) (float64, bool) { return always(voigtGaussFWHM(p[2])) },
		PropLorentzianFWHM: func(p []float64) (float64, bool) { return always(voigtLorentzFWHM(p[2], p[3])) },
	},
	"SplitVoigt": {
		PropFWHM: func(p []float64) (float64, bool) {
			return always((voigtFWHM(p[2], p[4]) + voigtFWHM(p[3], p[5])) / 2)
		},
		PropArea: func(p []float64) (float64, bool) {
			return always((voigtArea(p[0], p[2], p[4]) + voigtArea(p[0], p[3], p[5])) / 2)
		},
	},
	"EMG": {
		PropArea: func(p []float64) (float64, bool) { return always(p[0] * p[2] * math.Sqrt(2*math.Pi)) },
	},
	"LogNormal": {
		PropFWHM: func(p []float64) (float64, bool) { return always(p[2] * math.Sinh(p[3]) / p[3]) },
		PropArea: func(p []float64) (float64, bool) {
			return always(p[0] / math.Sqrt(math.Ln2/math.Pi) / (2 / p[2]) / math.Exp(-p[3]*p[3]/4/math.Ln2))
		},
	},
	"GaussianA": {
		PropHeight: func(p []float64) (float64, bool) { return always(p[0] / math.Abs(p[2]) / sqrtPiLn2) },
	},
	"LorentzianA": {
		PropHeight: func(p []float64) (float64, bool) { return always(p[0] / math.Abs(p[2]) / math.Pi) },
	},
	"Pearson7A": {
		PropHeight: func(p []float64) (float64, bool) {
			unit, defined := pearsonArea(1, p[2], p[3])
			return p[0] / unit, defined
		},
	},
	"PseudoVoigtA": {
		PropHeight: func(p []float64) (float64, bool) { return always(p[0] / pvArea(1, p[2], p[3])) },
	},
	"LogNormalA": {
		PropFWHM: func(p []float64) (float64, bool) { return always(p[2] * math.Sinh(p[3]) / p[3]) },
	},
}

// Properties returns the property names available for f, in a fixed order.
func (f *Function) Properties() []string {
	var out []string
	for _, name := range []string{PropCenter, PropHeight, PropFWHM, PropArea, PropIWidth, PropGaussianFWHM, PropLorentzianFWHM} {
		if _, err := f.Property(name); err == nil {
			out = append(out, name)
		}
	}

	return out
}

// Property returns a derived peak property (Center, Height, FWHM, Area,
// IWidth and for Voigt profiles GaussianFWHM, LorentzianFWHM). Templates
// without a dedicated rule fall back to parameters named center (xmid for
// sigmoids), height, hwhm and area.
func (f *Function) Property(name string) (float64, error) {
	p, err := f.ParamValues()
	if err != nil {
		return 0, err
	}
	if v, found := f.property(name, p); found {
		return v, nil
	}

	return 0, fmt.Errorf("model: %%%s (%s) has no property %s: %w", f.name, f.tpl.Name, name, errs.ErrEvaluation)
}

func (f *Function) property(name string, p []float64) (float64, bool) {
	if fn, has := templateProps[f.tpl.Name][name]; has && f.tpl.Builtin {
		return fn(p)
	}
	param := func(n string) (float64, bool) {
		if i := f.tpl.ParamIndex(n); i >= 0 {
			return p[i], true
		}
		return 0, false
	}
	switch name {
	case PropCenter:
		if v, found := param("center"); found {
			return v, true
		}
		return param("xmid")
	case PropHeight:
		return param("height")
	case PropFWHM:
		w, found := param("hwhm")
		return 2 * math.Abs(w), found
	case PropArea:
		return param("area")
	case PropIWidth:
		area, okA := f.property(PropArea, p)
		height, okH := f.property(PropHeight, p)
		if !okA || !okH {
			return 0, false
		}
		if height == 0 {
			return 0, true
		}
		return area / height, true
	}

	return 0, false
}
