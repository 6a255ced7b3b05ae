package expr_test

import (
	"fmt"

	"github.com/katalvlaran/lvfit/expr"
)

// ////////////////////////////////////////////////////////////////////////////
// ExampleEvalDual
// ////////////////////////////////////////////////////////////////////////////
//
// Scenario:
//
//	Evaluate a Gaussian-like formula at x = 1 and read its partial
//	derivatives with respect to height and hwhm from the same walk.
//
// ExampleEvalDual binds the formula's parameters to slots and seeds them.
func ExampleEvalDual() {
	n := expr.Bind(expr.MustParse("h*exp(-ln(2)*(x/w)^2)"), []string{"x", "h", "w"})
	d, err := expr.EvalDual(n, nil, []expr.Dual{
		expr.Const(1),
		expr.Seed(2, 0, 2),
		expr.Seed(1, 1, 2),
	})
	if err != nil {
		fmt.Println("error:", err)

		return
	}
	fmt.Printf("value=%.4f d/dh=%.4f d/dw=%.4f\n", d.V, d.Partial(0), d.Partial(1))
	// Output:
	// value=1.0000 d/dh=0.5000 d/dw=1.3863
}

// ExampleRender shows the canonical layout of a piecewise formula.
func ExampleRender() {
	n := expr.MustParse("x<43.2?Voigt(926,43.2,0.144,0.1):Voigt(926,43.2,0.143,0.13)")
	fmt.Println(expr.Render(n))
	// Output:
	// x < 43.2 ? Voigt(926, 43.2, 0.144, 0.1) : Voigt(926, 43.2, 0.143, 0.13)
}
