package fit

import (
	"math"
	"math/rand"
	"time"
)

// Distributions for random trial values, as accepted by nm_distribution.
const (
	DistBound   = "bound"
	DistUniform = "uniform"
	DistGauss   = "gauss"
	DistLorentz = "lorentz"
)

// rngFromSeed returns a *rand.Rand. Seed 0 seeds from the clock, so runs
// differ; any other seed makes runs reproducible.
//
// math/rand.Rand is not goroutine-safe; each run creates its own.
func rngFromSeed(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return rand.New(rand.NewSource(seed))
}

// drawer picks trial values inside a problem's search range.
type drawer struct {
	rng    *rand.Rand
	dist   string
	lo, hi []float64
}

func newDrawer(rng *rand.Rand, dist string, p Problem) *drawer {
	lo, hi := p.SearchRange()

	return &drawer{rng: rng, dist: dist, lo: lo, hi: hi}
}

// unit returns a sample of the distribution: ±1 for bound, [-1, 1) for
// uniform, standard normal for gauss and standard Cauchy for lorentz.
func (d *drawer) unit() float64 {
	switch d.dist {
	case DistBound:
		if d.rng.Intn(2) == 0 {
			return -1
		}
		return 1
	case DistGauss:
		return d.rng.NormFloat64()
	case DistLorentz:
		return math.Tan(math.Pi * (d.rng.Float64() - 0.5))
	default:
		return 2*d.rng.Float64() - 1
	}
}

// draw maps a sample scaled by mult onto the search range of parameter i:
// -1 is the lower end, 1 the upper end.
func (d *drawer) draw(i int, mult float64) float64 {
	v := mult * d.unit()

	return d.lo[i] + 0.5*(v+1)*(d.hi[i]-d.lo[i])
}
