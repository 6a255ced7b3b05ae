package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/lvfit/config"
	"github.com/katalvlaran/lvfit/errs"
)

// TestDefault_Valid verifies the defaults pass validation.
func TestDefault_Valid(t *testing.T) {
	s := config.Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, "levenberg_marquardt", s.FittingMethod)
	assert.Equal(t, 1000, s.MaxWSSREvaluations)
	assert.Equal(t, 1e-7, s.LMStopRelChange)
}

// TestSet verifies typed updates by key, including quoted strings and
// numeric booleans.
func TestSet(t *testing.T) {
	s := config.Default()
	tests := []struct {
		key, value, want string
	}{
		{"lm_lambda_start", "0.01", "0.01"},
		{"max_wssr_evaluations", "250", "250"},
		{"numeric_format", "'%.8g'", "%.8g"},
		{"default_sigma", "one", "one"},
		{"box_constraints", "0", "false"},
		{"guess_uses_weights", "false", "false"},
		{"pseudo_random_seed", "42", "42"},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			require.NoError(t, s.Set(tc.key, tc.value))
			got, err := s.Get(tc.key)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
	assert.Equal(t, 0.01, s.LMLambdaStart)
	assert.False(t, s.BoxConstraints)
	assert.Equal(t, int64(42), s.PseudoRandomSeed)
}

// TestSet_RejectedLeavesSettings verifies that invalid updates fail with an
// EvaluationError and change nothing.
func TestSet_RejectedLeavesSettings(t *testing.T) {
	s := config.Default()
	for key, value := range map[string]string{
		"no_such_option":       "1",
		"epsilon":              "-1",
		"default_sigma":        "poisson",
		"max_wssr_evaluations": "many",
		"ga_elitism":           "500",
		"numeric_format":       "g",
	} {
		err := s.Set(key, value)
		assert.True(t, errors.Is(err, errs.ErrEvaluation), "%s = %s: %v", key, value, err)
	}
	assert.Equal(t, config.Default(), s)
}

// TestKeys verifies every key round-trips through Get and Set.
func TestKeys(t *testing.T) {
	s := config.Default()
	keys := s.Keys()
	assert.Contains(t, keys, "fitting_method")
	assert.Contains(t, keys, "nm_distribution")
	assert.IsIncreasing(t, keys)

	c := config.Default()
	for _, k := range keys {
		v, err := s.Get(k)
		require.NoError(t, err)
		require.NoError(t, c.Set(k, v), k)
	}
	assert.Equal(t, s, c)
}

// TestDecode verifies YAML overlays, unknown keys and validation.
func TestDecode(t *testing.T) {
	s, err := config.Decode(strings.NewReader("fitting_method: nelder_mead_simplex\nnm_convergence: 0.001\n"))
	require.NoError(t, err)
	assert.Equal(t, "nelder_mead_simplex", s.FittingMethod)
	assert.Equal(t, 0.001, s.NMConvergence)
	assert.Equal(t, 0.001, s.LMLambdaStart)

	s, err = config.Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), s)

	_, err = config.Decode(strings.NewReader("bogus: 1\n"))
	assert.True(t, errors.Is(err, errs.ErrEvaluation))
	_, err = config.Decode(strings.NewReader("lm_lambda_up_factor: 0.5\n"))
	assert.True(t, errors.Is(err, errs.ErrEvaluation))
}

// TestLoad verifies reading from a file.
func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lvfit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("width_correction: 0.5\n"), 0o600))
	s, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, s.WidthCorrection)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// TestSetAll verifies that mutually constrained options change together and
// that a failing pair commits nothing.
func TestSetAll(t *testing.T) {
	s := config.Default()
	require.Error(t, s.Set("ga_elitism", "150"))

	require.NoError(t, s.SetAll([][2]string{{"ga_elitism", "150"}, {"ga_population", "200"}}))
	assert.Equal(t, 150, s.GAElitism)
	assert.Equal(t, 200, s.GAPopulation)

	err := s.SetAll([][2]string{{"epsilon", "1e-6"}, {"nm_distribution", "cauchy"}})
	assert.True(t, errors.Is(err, errs.ErrEvaluation))
	assert.Equal(t, 1e-12, s.Epsilon)
}
