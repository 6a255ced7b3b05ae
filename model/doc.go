// Package model implements the function library: parametrized templates
// (Gaussian, Lorentzian, user-defined formulas, ...), function instances
// binding template parameters to variables, and models (ordered sums of
// instances attached to a dataset).
//
// Templates come in four kinds:
//
//   - KindExpression  a closed-form formula over x and the parameters.
//   - KindPiecewise   a top-level conditional choosing between template
//     calls, e.g. "x < center ? Voigt(...) : Voigt(...)".
//   - KindCompound    a formula calling other templates (GaussianA).
//   - KindCoded       evaluated in Go (Voigt, VoigtA).
//
// Every template is evaluated in forward mode (expr.Dual), so a function's
// value comes with exact partial derivatives with respect to its parameters
// and, through vars.Graph.Dual, with respect to the simple variables behind
// them.
//
// Numeric operations:
//
//   - NumericArea  composite Simpson rule, subdivisions rounded up to even;
//     exact for polynomials up to degree three.
//   - FindX        bracketed Newton iteration with bisection fallback.
//   - Extremum     bisection on dy/dx.
//
// Registry owns the instances, keeps vars.Graph informed of which variables
// each instance uses (owner "%name"), and refuses to delete an instance a
// model still refers to.
package model
