// Package lvfit is a curve-fitting engine driven by a small command
// language: variables, peak functions, models, datasets and fits, all
// manipulated through one session.
//
// 🚀 What is lvfit?
//
//	A nonlinear least-squares toolkit for spectra, diffraction scans and
//	other peak-shaped data:
//		• Expressions with automatic derivatives
//		• Variables that are simple, compound or bound to a domain
//		• A library of built-in and user-defined function templates
//		• Datasets with per-point transformations and active masks
//		• Peak guessing over a range
//		• Levenberg-Marquardt, Nelder-Mead, genetic and gonum optimizers
//		• Undo/redo of parameter history and fit diagnostics
//
// Under the hood the work is split into packages:
//
//	errs/     error kinds shared by every package
//	expr/     tokenizer, parser and dual-number evaluator
//	dag/      dependency graph with cycle checks and topological order
//	vars/     variable graph, domains, auto-named variables
//	model/    templates, functions and per-dataset models
//	dataset/  points, transformations and the dataset store
//	config/   validated session settings (YAML)
//	guess/    peak and linear parameter estimation
//	fit/      fitting engine, optimizers, history, metrics
//	session/  statement execution, queries and the state script
//	cmd/lvfit  command-line runner
//
// Quick example:
//
//	s := session.New()
//	_ = s.Execute(`M = 21, X = n/2 - 5, Y = 3*X^2 + 1, S = 1`)
//	_ = s.Execute(`%q = Quadratic(~0, ~0, ~1); F = %q; fit`)
//	a2, _ := s.ParamValue("q", "a2") // 3
//
//	go install github.com/katalvlaran/lvfit/cmd/lvfit@latest
package lvfit
