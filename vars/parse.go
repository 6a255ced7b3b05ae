package vars

import (
	"fmt"
	"math"

	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
)

// ParseDomain parses an optional "[lo:hi]" at the parser cursor. Either
// bound may be omitted (infinite) and may be any constant expression, e.g.
// "[-pi:pi]". It returns nil when the cursor is not at '['.
func ParseDomain(p *expr.Parser) (*Domain, error) {
	if !p.Accept("[") {
		return nil, nil
	}
	d := Unbounded
	bound := func(stop string, dst *float64) error {
		if p.IsOp(stop) {
			return nil
		}
		n, err := p.ParseExpr()
		if err != nil {
			return err
		}
		v, err := expr.Eval(n, nil)
		if err != nil {
			return err
		}
		if math.IsNaN(v) {
			return fmt.Errorf("vars: domain bound %s is NaN: %w", expr.Render(n), errs.ErrDomain)
		}
		*dst = v

		return nil
	}
	if err := bound(":", &d.Lo); err != nil {
		return nil, err
	}
	if err := p.Expect(":"); err != nil {
		return nil, err
	}
	if err := bound("]", &d.Hi); err != nil {
		return nil, err
	}
	if err := p.Expect("]"); err != nil {
		return nil, err
	}
	if d.Lo > d.Hi {
		return nil, fmt.Errorf("vars: empty domain %s: %w", d, errs.ErrDomain)
	}

	return &d, nil
}
