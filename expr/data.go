package expr

import (
	"fmt"
	"math"

	"github.com/katalvlaran/lvfit/errs"
)

// Columns exposes a dataset's point arrays to data formulas. Lowercase
// attributes (x y s a) read these columns; uppercase ones (X Y S A) read
// Next when it is set, which lets a transformation see both the state
// before the statement and the values assigned so far.
type Columns struct {
	X, Y, S []float64
	A       []bool
	Next    *Columns
}

// Len returns the number of points.
func (c *Columns) Len() int { return len(c.X) }

func (c *Columns) attr(name string, i int) float64 {
	src := c
	if name[0] >= 'A' && name[0] <= 'Z' && c.Next != nil {
		src = c.Next
	}
	switch name {
	case "x", "X":
		return src.X[i]
	case "y", "Y":
		return src.Y[i]
	case "s", "S":
		return src.S[i]
	case "a", "A":
		if src.A[i] {
			return 1
		}
	}

	return 0
}

// resolve maps an index value to a point, counting negative indexes from
// the end.
func (c *Columns) resolve(v float64) (int, error) {
	if math.IsNaN(v) {
		return 0, fmt.Errorf("index is NaN: %w", errs.ErrEvaluation)
	}
	i := int(math.Round(v))
	if i < 0 {
		i += c.Len()
	}
	if i < 0 || i >= c.Len() {
		return 0, fmt.Errorf("index %g out of range [0, %d): %w", v, c.Len(), errs.ErrEvaluation)
	}

	return i, nil
}

// Resolve is the exported form of index resolution used by statements such
// as Y[-2] = 12.34.
func (c *Columns) Resolve(v float64) (int, error) { return c.resolve(v) }
