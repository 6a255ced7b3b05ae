package session_test

import (
	"fmt"

	"github.com/katalvlaran/lvfit/session"
)

// ////////////////////////////////////////////////////////////////////////////
// ExampleSession_Execute
// ////////////////////////////////////////////////////////////////////////////
//
// Scenario:
//
//	A dataset is generated by a transformation statement (a parabola plus a
//	constant offset), a Quadratic starting from a flat line is fitted, and
//	the fitted coefficients are read back through the query API.
//
// ExampleSession_Execute drives a session with commands only.
func ExampleSession_Execute() {
	s := session.New()
	err := s.Execute(`
		M = 21, X = n/2 - 5, Y = 3*X^2 + 1, S = 1
		%q = Quadratic(~0, ~0, ~1)
		F = %q
		fit`)
	if err != nil {
		fmt.Println("error:", err)

		return
	}
	a2, _ := s.ParamValue("q", "a2")
	a0, _ := s.ParamValue("q", "a0")
	fmt.Printf("a2=%.4f a0=%.4f\n", a2, a0)
	// Output:
	// a2=3.0000 a0=1.0000
}
