// Package fit adjusts the free variables of one or more models so that they
// match their datasets in the weighted least-squares sense.
//
// What:
//
//   - Problem: the residual vector r_i = (y_i - model(x_i))/sigma_i over the
//     active points of every included dataset, its Jacobian with respect to
//     the free simple variables, and WSSR = sum r_i^2.
//   - Algorithm: a pluggable minimizer. Built in are levenberg_marquardt,
//     nelder_mead_simplex and genetic_algorithms, plus adapters around
//     gonum/optimize (gonum_lbfgs, gonum_bfgs, gonum_cg, gonum_nelder_mead)
//     and around github.com/maorshutman/lm (lm_external).
//   - Engine: runs one fit at a time, writes improved values back into the
//     variable graph, computes standard errors and keeps an undo history.
//
// Lifecycle:
//
//	Idle -> Prepared -> Running -> {Converged, MaxIterationsReached, Aborted, Failed} -> Idle
//
// Parameters are only written back when the final WSSR is lower than the
// initial one. A canceled context ends the run at the next iteration
// boundary; the best fully evaluated vector is kept if it improves WSSR and
// ErrAborted is returned. Numerical breakdown (NaN objective, singular
// normal equations) leaves parameters untouched and returns ErrFit.
//
// Residuals of separate datasets are computed concurrently with errgroup
// when parallel_residuals is set; every dataset writes to its own fixed
// offset, so results do not depend on scheduling.
//
// Complexity:
//
//   - one WSSR evaluation: O(N·F) for N points and F function terms
//   - one Jacobian: O(N·F·P) for P free parameters
//   - one LM step: O(N·P^2 + P^3)
//
// Errors:
//
//   - ErrFit      no free parameters, no active points, NaN objective,
//     singular system, or a fit already running.
//   - ErrAborted  the context was canceled during the run.
package fit
