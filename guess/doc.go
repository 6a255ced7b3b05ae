// Package guess estimates initial parameter values for a template from data,
// without running the optimizer.
//
// Estimation works on traits: named quantities measured on the data
// (center, height, hwhm, area for peaks; slope, intercept, avgy for lines;
// lower, upper, xmid, wsig for sigmoids). Template parameter defaults are
// expressions over traits, e.g. "gwidth=hwhm*0.8", so a guess is the
// evaluation of every default with the measured traits substituted.
//
// Peaks are located at the highest interior point (y/sigma when weights are
// used). The half width is taken from the half-maximum crossings, where a
// side ends only after three consecutive points below half maximum so single
// noisy points do not cut the peak short.
//
// Failures caused by the shape of the data are soft: empty ranges, fewer
// than three points or monotonic data fall back to the global maximum or to
// neutral values and are logged at Warn. The only hard error is a template
// parameter whose default names something that is not a trait.
//
// Errors (see package errs):
//
//   - ErrEvaluation  a parameter default cannot be evaluated from traits.
package guess
