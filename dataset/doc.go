// Package dataset holds the tabulated data a session fits: ordered
// (x, y, sigma, active) points with a title, and the Store of datasets
// addressed as @0, @1, ...
//
// Points are kept ascending by x. Transformations are statements of
// comma-separated column assignments (X=..., Y[3]=..., S=..., A=...) where
// lowercase names read the points as they were before the statement and
// uppercase names read the values assigned so far. A statement is applied
// to a copy and committed only when every assignment succeeds; when the
// result is not ordered by x it is re-sorted with a stable sort, so each
// point keeps its y, sigma and active flag.
//
// Default sigma: when data is loaded without uncertainties, sigma is
// sqrt(y) for y > 1 and 1 otherwise ("sqrt"), or 1 everywhere ("one").
//
// Errors (see package errs):
//
//   - ErrEvaluation  mismatched array lengths, bad index, bad size, unknown dataset.
//
// Complexity:
//
//   - Transform: O(k·M + M log M) for k assignments over M points.
//   - Filter:    O(M).
package dataset
