// Package config holds the session settings: numeric tolerances, data
// defaults, guess corrections and the knobs of every fitting method.
//
// Settings are a flat YAML document (gopkg.in/yaml.v3) whose keys are the
// names used by "set key = value" commands. Every change goes through the
// go-playground validator on a copy and is committed only when the whole
// struct validates, so a rejected Set leaves the settings untouched.
//
//	s := config.Default()
//	_ = s.Set("lm_lambda_start", "0.01")
//	v, _ := s.Get("lm_lambda_start") // "0.01"
//
// Errors (see package errs):
//
//   - ErrEvaluation  unknown key, unparsable value, or a value failing validation.
package config
