package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/katalvlaran/lvfit/errs"
)

// TestKind_Wrapped verifies that Kind sees through fmt.Errorf wrapping.
func TestKind_Wrapped(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("expr: bad token: %w", errs.ErrSyntax), "SyntaxError"},
		{fmt.Errorf("vars: $a: %w", errs.ErrDomain), "DomainError"},
		{fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", errs.ErrFit)), "FitError"},
		{errs.ErrReference, "ReferenceError"},
		{errors.New("plain"), "Error"},
		{nil, ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, errs.Kind(c.err))
	}
}
