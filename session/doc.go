// Package session ties the lvfit packages together behind a small command
// language and a read-only query API.
//
// What:
//
//   - Execute runs statements separated by ';' or newlines ('#' starts a
//     comment). Statements declare variables ("$a = ~1.5 [0:10]"), create
//     and edit function instances ("%f = Gaussian(~10, ~3, ~1)",
//     "%f.hwhm = copy($w)"), build models ("F = %f + %g", "@1.F =
//     copy(@0.F)"), guess peaks, define templates, transform and filter
//     datasets ("Y = y - F(x)", "delete(x < 2)"), change settings and fit.
//   - A leading "@n:" or "@*:" prefix selects the datasets a statement acts
//     on; without it the default dataset ("use @n") is used.
//   - Queries (Eval, Variable, Formula, Points, FitInfo, ...) read state
//     without changing it.
//   - StateScript renders the whole session as statements; running them on
//     a fresh session reproduces values, domains, structure and formula
//     text.
//
// Statements run one at a time under the session lock. A failing
// statement changes nothing it had not already committed, is logged with
// its error kind and stops the rest of the text; the session stays usable.
//
// Errors:
//
//   - *StatementError wraps the failure with the statement text; errs.Kind
//     and errors.Is see through it.
package session
