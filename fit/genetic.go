package fit

import (
	"context"
	"slices"

	"github.com/katalvlaran/lvfit/config"
)

// defaultGenerations bounds a genetic run that has neither a generation
// nor an evaluation limit.
const defaultGenerations = 100

// Genetic is a steady-state genetic algorithm with tournament selection,
// uniform crossover and per-gene mutation.
type Genetic struct {
	s *config.Settings
}

// NewGenetic returns the genetic_algorithms algorithm.
func NewGenetic(s *config.Settings) *Genetic { return &Genetic{s: s} }

func (*Genetic) Name() string       { return "genetic_algorithms" }
func (*Genetic) UsesGradient() bool { return false }

type individual struct {
	g    []float64
	wssr float64
}

// Minimize evolves ga_population individuals drawn uniformly over the
// search range, one of them x0. Each generation keeps the ga_elitism best
// unchanged and fills the rest with children of tournament winners. The
// run ends after ga_max_generations or when the budget runs out.
func (a *Genetic) Minimize(ctx context.Context, p Problem, x0 []float64, b Budget) (Outcome, error) {
	rng := rngFromSeed(a.s.PseudoRandomSeed)
	d := newDrawer(rng, DistUniform, p)
	size, elite := a.s.GAPopulation, a.s.GAElitism
	gens := a.s.GAMaxGenerations
	if gens == 0 && b.MaxEvaluations == 0 && b.Deadline.IsZero() {
		gens = defaultGenerations
	}

	score := func(g []float64) (float64, error) {
		w, err := p.Objective(g)
		return worse(w), err
	}

	// 1. Initial population
	pop := make([]individual, size)
	for i := range pop {
		g := append([]float64(nil), x0...)
		if i > 0 {
			for j := range g {
				g[j] = d.draw(j, 1)
			}
		}
		w, err := score(g)
		if err != nil {
			return Outcome{}, err
		}
		pop[i] = individual{g: g, wssr: w}
	}
	byScore := func(x, y individual) int {
		switch {
		case x.wssr < y.wssr:
			return -1
		case x.wssr > y.wssr:
			return 1
		}
		return 0
	}
	slices.SortStableFunc(pop, byScore)
	out := Outcome{X: pop[0].g, WSSR: pop[0].wssr}

	tournament := func() individual {
		x, y := pop[rng.Intn(size)], pop[rng.Intn(size)]
		if y.wssr < x.wssr {
			return y
		}
		return x
	}

	// 2. Generations
	for gen := 1; ; gen++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if gens > 0 && gen > gens {
			out.Converged = true
			return out, nil
		}
		if b.Exhausted(p) {
			return out, nil
		}
		next := make([]individual, 0, size)
		next = append(next, pop[:elite]...)
		for len(next) < size {
			child := append([]float64(nil), tournament().g...)
			if rng.Float64() < a.s.GACrossoverProbability {
				mate := tournament().g
				for j := range child {
					if rng.Intn(2) == 0 {
						child[j] = mate[j]
					}
				}
			}
			for j := range child {
				if rng.Float64() < a.s.GAMutationProbability {
					child[j] = d.draw(j, a.s.GAMutationStrength)
				}
			}
			w, err := score(child)
			if err != nil {
				return out, err
			}
			next = append(next, individual{g: child, wssr: w})
		}
		pop = next
		slices.SortStableFunc(pop, byScore)
		if pop[0].wssr < out.WSSR {
			out.X, out.WSSR = pop[0].g, pop[0].wssr
		}
		out.Iterations = gen
		b.report(gen, out.WSSR)
	}
}
