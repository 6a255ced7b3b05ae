package fit_test

import (
	"context"
	"math"
	"testing"

	"github.com/katalvlaran/lvfit/dataset"
	"github.com/katalvlaran/lvfit/fit"
)

// BenchmarkFit_Misra1a measures a full LM run from the first NIST start.
func BenchmarkFit_Misra1a(b *testing.B) {
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		env := newBench()
		tg, _ := misra(b, env)
		e := fit.New(env.g, env.s)
		b.StartTimer()
		if _, err := e.Fit(context.Background(), []fit.Target{tg}, 0); err != nil {
			b.Fatalf("Fit failed: %v", err)
		}
	}
}

// BenchmarkDiagnostics_Peaks measures WSSR, Jacobian and covariance over
// 2000 points and three peaks.
func BenchmarkDiagnostics_Peaks(b *testing.B) {
	env := newBench()
	xs, ys := make([]float64, 2000), make([]float64, 2000)
	for i := range xs {
		x := float64(i) / 100
		xs[i] = x
		ys[i] = 5*math.Exp(-(x-4)*(x-4)) + 3/(1+(x-10)*(x-10)) + 1
	}
	d, err := dataset.FromArrays(xs, ys, nil, "", dataset.SigmaSqrt)
	if err != nil {
		b.Fatal(err)
	}
	tg := env.target(b, d,
		env.create(b, "a", "Gaussian", true, 5, 4, 0.8),
		env.create(b, "b", "Lorentzian", true, 3, 10, 1),
		env.create(b, "c", "Constant", true, 1))
	e := fit.New(env.g, env.s)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Diagnostics([]fit.Target{tg}); err != nil {
			b.Fatalf("Diagnostics failed: %v", err)
		}
	}
}
