// Package expr parses, evaluates, differentiates and renders the formula
// language shared by variable definitions, function templates and dataset
// transformations.
//
// What:
//
//   - Tokenize/Parser: a precedence-climbing parser producing a small AST.
//     Precedence, low to high: ternary `c ? a : b`, `or`, `and`, `not`,
//     comparisons, `+ -`, `* /`, unary minus, `^` (right associative).
//   - Eval / EvalDual: scalar evaluation, optionally in forward mode. A Dual
//     carries a value and its gradient over caller-defined slots, so the
//     partial derivatives of compound variables and template formulas come
//     out of the same walk as the value.
//   - EvalData / EvalPoints: evaluation over a dataset's Columns, giving
//     access to point attributes (x, y, s, a, n, M), indexed access (y[3])
//     and aggregates (count, sum, darea, avg, min, max, stddev, argmin, argmax).
//   - Render / Fold / Transform / Refs: canonical text rendering, constant
//     folding, structural rewriting and reference extraction.
//
// Conditional formulas are a tagged Cond node rather than text, so rendering
// and differentiation treat both branches structurally.
//
// Errors:
//
//   - *SyntaxError (wraps errs.ErrSyntax) with the offending token and position.
//   - errs.ErrEvaluation for unknown names, wrong arity and bad indexes.
//
// Evaluation is a pure function of the node and its Scope; the package keeps
// no hidden state and is safe for concurrent use.
package expr
