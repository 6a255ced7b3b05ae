package expr_test

import (
	"testing"

	"github.com/katalvlaran/lvfit/expr"
)

// BenchmarkEvalDual_Gaussian measures forward-mode evaluation of a peak formula.
func BenchmarkEvalDual_Gaussian(b *testing.B) {
	n := expr.Bind(expr.MustParse("height*exp(-ln(2)*((x-center)/hwhm)^2)"),
		[]string{"x", "height", "center", "hwhm"})
	slots := []expr.Dual{expr.Const(0.3), expr.Seed(10, 0, 3), expr.Seed(0, 1, 3), expr.Seed(0.5, 2, 3)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := expr.EvalDual(n, nil, slots); err != nil {
			b.Fatalf("EvalDual failed: %v", err)
		}
	}
}

// BenchmarkEvalPoints_Darea measures a per-point formula with an aggregate.
func BenchmarkEvalPoints_Darea(b *testing.B) {
	c := &expr.Columns{}
	for i := 0; i < 1000; i++ {
		c.X = append(c.X, float64(i))
		c.Y = append(c.Y, float64(i%17))
		c.S = append(c.S, 1)
		c.A = append(c.A, true)
	}
	n := expr.MustParse("y/darea(y)")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := expr.EvalPoints(n, nil, c); err != nil {
			b.Fatalf("EvalPoints failed: %v", err)
		}
	}
}
