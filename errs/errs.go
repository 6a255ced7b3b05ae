// Package errs defines the error taxonomy shared by every lvfit package.
//
// Each package returns these sentinels wrapped with context, e.g.
//
//	fmt.Errorf("vars: assign $a=12 outside [0:10]: %w", errs.ErrDomain)
//
// and callers match them with errors.Is. Kind maps any wrapped error back to
// its taxonomy name for user-facing reports.
//
// Errors:
//
//	ErrSyntax      malformed formula or command.
//	ErrEvaluation  valid syntax, invalid semantics (unknown name, arity, type).
//	ErrDomain      value assignment outside a declared domain.
//	ErrReference   delete/mutate something still depended upon, or a cycle.
//	ErrNotFound    root/extremum search failed to bracket a solution.
//	ErrFit         numerical breakdown during optimization.
//	ErrAborted     cooperative cancellation of a long computation.
package errs

import "errors"

var (
	// ErrSyntax is returned for malformed formulas and commands.
	ErrSyntax = errors.New("syntax error")

	// ErrEvaluation is returned when a well-formed expression cannot be evaluated.
	ErrEvaluation = errors.New("evaluation error")

	// ErrDomain is returned when a value falls outside a declared domain.
	ErrDomain = errors.New("domain error")

	// ErrReference is returned when an operation would break a live dependency.
	ErrReference = errors.New("reference error")

	// ErrNotFound is returned when a numeric search cannot bracket a solution.
	ErrNotFound = errors.New("not found")

	// ErrFit is returned when an optimization breaks down numerically.
	ErrFit = errors.New("fit error")

	// ErrAborted is returned when a computation is interrupted by its caller.
	ErrAborted = errors.New("aborted")
)

// kinds lists sentinels in match priority order.
var kinds = []struct {
	err  error
	name string
}{
	{ErrSyntax, "SyntaxError"},
	{ErrEvaluation, "EvaluationError"},
	{ErrDomain, "DomainError"},
	{ErrReference, "ReferenceError"},
	{ErrNotFound, "NotFoundError"},
	{ErrFit, "FitError"},
	{ErrAborted, "Aborted"},
}

// Kind returns the taxonomy name of err ("SyntaxError", "DomainError", ...),
// or "Error" when err wraps none of the sentinels. Kind(nil) is "".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}

	return "Error"
}
