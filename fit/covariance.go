package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/katalvlaran/lvfit/errs"
)

// normalEquations returns alpha = JᵀJ and beta = -Jᵀr.
func normalEquations(r []float64, jac *mat.Dense) (*mat.SymDense, *mat.VecDense) {
	_, dim := jac.Dims()
	alpha := mat.NewSymDense(dim, nil)
	alpha.SymOuterK(1, jac.T())
	beta := mat.NewVecDense(dim, nil)
	beta.MulVec(jac.T(), mat.NewVecDense(len(r), r))
	beta.ScaleVec(-1, beta)

	return alpha, beta
}

// solveSym solves a·x = b with Cholesky, falling back to LU for matrices
// that are not positive definite.
func solveSym(a *mat.SymDense, b *mat.VecDense) ([]float64, error) {
	var x mat.VecDense
	var ch mat.Cholesky
	if ch.Factorize(a) {
		if err := ch.SolveVecTo(&x, b); err == nil {
			return x.RawVector().Data, nil
		}
	}
	var lu mat.LU
	lu.Factorize(a)
	err := lu.SolveVecTo(&x, false, b)
	if err != nil && !allFinite(x.RawVector().Data) {
		return nil, fmt.Errorf("fit: singular matrix: %w", errs.ErrFit)
	}

	return x.RawVector().Data, nil
}

// covariance returns (JᵀJ)⁻¹. Parameters the residuals do not depend on
// have an all-zero row; they get a unit diagonal so the rest stays
// invertible, and are reported in undefined.
func covariance(jac *mat.Dense) (*mat.SymDense, []bool, error) {
	_, dim := jac.Dims()
	alpha := mat.NewSymDense(dim, nil)
	alpha.SymOuterK(1, jac.T())
	undefined := make([]bool, dim)
	for i := 0; i < dim; i++ {
		if alpha.At(i, i) == 0 {
			undefined[i] = true
			alpha.SetSym(i, i, 1)
		}
	}

	cov := mat.NewSymDense(dim, nil)
	var ch mat.Cholesky
	if ch.Factorize(alpha) {
		if err := ch.InverseTo(cov); err == nil {
			return cov, undefined, nil
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(alpha); err != nil && !allFinite(inv.RawMatrix().Data) {
		return nil, nil, fmt.Errorf("fit: singular covariance matrix: %w", errs.ErrFit)
	}
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			cov.SetSym(i, j, inv.At(i, j))
		}
	}

	return cov, undefined, nil
}

// stdErrors returns sqrt(wssr/dof · C_ii); undefined parameters and a
// non-positive dof give 0.
func stdErrors(cov *mat.SymDense, undefined []bool, wssr float64, dof int) []float64 {
	out := make([]float64, len(undefined))
	if dof <= 0 {
		return out
	}
	for i := range out {
		if undefined[i] {
			continue
		}
		out[i] = math.Sqrt(wssr / float64(dof) * math.Abs(cov.At(i, i)))
	}

	return out
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if !finite(x) {
			return false
		}
	}

	return len(v) > 0
}
