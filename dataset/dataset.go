package dataset

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
)

// MaxPoints bounds the size accepted by Resize.
const MaxPoints = 1000000

// Default sigma rules accepted by FromArrays.
const (
	SigmaSqrt = "sqrt"
	SigmaOne  = "one"
)

// Point is one data point. Inactive points are kept but ignored by fitting
// and guessing.
type Point struct {
	X, Y, Sigma float64
	Active      bool
}

func newPoint() Point { return Point{Sigma: 1, Active: true} }

// Assignment is one column assignment of a transformation statement. Attr is
// one of 'X', 'Y', 'S', 'A'. A nil Index assigns the whole column, evaluating
// Value once per point; otherwise Index selects a single point (negative
// values count from the end) and an index equal to the size appends a point
// when Attr is 'X'.
type Assignment struct {
	Attr  byte
	Index expr.Node
	Value expr.Node
}

// Dataset is an ordered list of points with a title. It is safe for
// concurrent use.
type Dataset struct {
	mu     sync.RWMutex
	title  string
	points []Point
}

// New returns an empty dataset.
func New(title string) *Dataset { return &Dataset{title: title} }

// DefaultSigma returns the sigma assigned to y under rule (SigmaSqrt or
// SigmaOne).
func DefaultSigma(y float64, rule string) float64 {
	if rule == SigmaSqrt && y > 1 {
		return math.Sqrt(y)
	}

	return 1
}

// QuotableTitle reports whether t can be written as a quoted string, which
// has no escapes: it may hold ' or " but not both.
func QuotableTitle(t string) bool { return !strings.Contains(t, "'") || !strings.Contains(t, `"`) }

// FromArrays builds a dataset from parallel arrays. A nil sigma is filled by
// DefaultSigma. Points are sorted by x. A title that is not QuotableTitle
// is ErrEvaluation.
func FromArrays(x, y, sigma []float64, title, defaultSigma string) (*Dataset, error) {
	if len(x) != len(y) || (sigma != nil && len(sigma) != len(x)) {
		return nil, fmt.Errorf("dataset: array lengths differ (x=%d, y=%d, sigma=%d): %w",
			len(x), len(y), len(sigma), errs.ErrEvaluation)
	}
	if defaultSigma != SigmaSqrt && defaultSigma != SigmaOne {
		return nil, fmt.Errorf("dataset: unknown default sigma %q: %w", defaultSigma, errs.ErrEvaluation)
	}
	if !QuotableTitle(title) {
		return nil, fmt.Errorf("dataset: title %q mixes ' and \": %w", title, errs.ErrEvaluation)
	}
	pts := make([]Point, len(x))
	for i := range x {
		s := DefaultSigma(y[i], defaultSigma)
		if sigma != nil {
			s = sigma[i]
		}
		pts[i] = Point{X: x[i], Y: y[i], Sigma: s, Active: true}
	}
	sortPoints(pts)

	return &Dataset{title: title, points: pts}, nil
}

// Title returns the dataset title.
func (d *Dataset) Title() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.title
}

// SetTitle renames the dataset.
func (d *Dataset) SetTitle(t string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.title = t
}

// Len returns the number of points.
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.points)
}

// Points returns a copy of every point.
func (d *Dataset) Points() []Point {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return slices.Clone(d.points)
}

// SetPoints replaces the points; they are sorted by x.
func (d *Dataset) SetPoints(pts []Point) {
	pts = slices.Clone(pts)
	sortPoints(pts)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.points = pts
}

// Active returns the active points.
func (d *Dataset) Active() []Point {
	return d.ActiveRange(math.Inf(-1), math.Inf(1))
}

// ActiveRange returns the active points with lo <= x <= hi.
func (d *Dataset) ActiveRange(lo, hi float64) []Point {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Point
	for _, p := range d.points {
		if p.Active && p.X >= lo && p.X <= hi {
			out = append(out, p)
		}
	}

	return out
}

// Clone returns an independent copy.
func (d *Dataset) Clone() *Dataset {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return &Dataset{title: d.title, points: slices.Clone(d.points)}
}

// Columns returns the points as columns for data formulas.
func (d *Dataset) Columns() *expr.Columns {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return toColumns(d.points)
}

// Eval evaluates a scalar formula with the dataset's aggregates and indexed
// attributes available, e.g. "darea(y if x > 0)" or "y[-1]".
func (d *Dataset) Eval(n expr.Node, s expr.Scope) (float64, error) {
	return expr.EvalData(n, s, d.Columns())
}

// Transform applies one statement of assignments atomically.
func (d *Dataset) Transform(stmt []Assignment, s expr.Scope) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// 1. Lowercase names read old, uppercase names read next
	old := toColumns(d.points)
	next := toColumns(d.points)
	old.Next = next

	// 2. Apply assignments in order on next
	for _, a := range stmt {
		if err := assign(old, next, a, s); err != nil {
			return err
		}
	}

	// 3. Commit, re-sorting only when the order was broken
	pts := fromColumns(next)
	sortPoints(pts)
	d.points = pts

	return nil
}

func assign(old, next *expr.Columns, a Assignment, s expr.Scope) error {
	set, err := setter(a.Attr)
	if err != nil {
		return err
	}
	if a.Index == nil {
		vals, err := expr.EvalPoints(a.Value, s, old)
		if err != nil {
			return fmt.Errorf("dataset: %c=...: %w", a.Attr, err)
		}
		for i, v := range vals {
			set(next, i, v)
		}
		return nil
	}

	iv, err := expr.EvalData(a.Index, s, old)
	if err != nil {
		return fmt.Errorf("dataset: %c[...]: %w", a.Attr, err)
	}
	v, err := expr.EvalData(a.Value, s, old)
	if err != nil {
		return fmt.Errorf("dataset: %c[%g]=...: %w", a.Attr, iv, err)
	}
	if math.IsNaN(iv) {
		return fmt.Errorf("dataset: point index is NaN: %w", errs.ErrEvaluation)
	}
	i := int(math.Round(iv))
	if i < 0 {
		i += next.Len()
	}
	switch {
	case i == next.Len() && a.Attr == 'X':
		// appended to both views so later per-point formulas stay aligned
		appendColumns(old, newPoint())
		appendColumns(next, newPoint())
	case i == next.Len():
		return fmt.Errorf("dataset: %c[%d]: assign X first to add a point: %w", a.Attr, i, errs.ErrEvaluation)
	case i < 0 || i > next.Len():
		return fmt.Errorf("dataset: wrong point index %g: %w", iv, errs.ErrEvaluation)
	}
	set(next, i, v)

	return nil
}

func setter(attr byte) (func(c *expr.Columns, i int, v float64), error) {
	switch attr {
	case 'X', 'x':
		return func(c *expr.Columns, i int, v float64) { c.X[i] = v }, nil
	case 'Y', 'y':
		return func(c *expr.Columns, i int, v float64) { c.Y[i] = v }, nil
	case 'S', 's':
		return func(c *expr.Columns, i int, v float64) { c.S[i] = v }, nil
	case 'A', 'a':
		return func(c *expr.Columns, i int, v float64) { c.A[i] = math.Abs(v) >= 0.5 }, nil
	}

	return nil, fmt.Errorf("dataset: cannot assign %q: %w", attr, errs.ErrEvaluation)
}

// Resize truncates or extends the dataset to m points. New points are
// (0, 0), sigma 1, active.
func (d *Dataset) Resize(m int) error {
	if m < 0 || m > MaxPoints {
		return fmt.Errorf("dataset: wrong length %d: %w", m, errs.ErrEvaluation)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	pts := slices.Clone(d.points)
	if m <= len(pts) {
		pts = pts[:m]
	}
	for len(pts) < m {
		pts = append(pts, newPoint())
	}
	sortPoints(pts)
	d.points = pts

	return nil
}

// Filter removes every point for which pred is non-zero and returns how
// many were removed. Applying the same predicate twice removes nothing the
// second time when pred depends only on the point itself.
func (d *Dataset) Filter(pred expr.Node, s expr.Scope) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vals, err := expr.EvalPoints(pred, s, toColumns(d.points))
	if err != nil {
		return 0, fmt.Errorf("dataset: delete(...): %w", err)
	}
	kept := make([]Point, 0, len(d.points))
	for i, p := range d.points {
		if vals[i] == 0 {
			kept = append(kept, p)
		}
	}
	removed := len(d.points) - len(kept)
	d.points = kept

	return removed, nil
}

func toColumns(pts []Point) *expr.Columns {
	c := &expr.Columns{
		X: make([]float64, len(pts)),
		Y: make([]float64, len(pts)),
		S: make([]float64, len(pts)),
		A: make([]bool, len(pts)),
	}
	for i, p := range pts {
		c.X[i], c.Y[i], c.S[i], c.A[i] = p.X, p.Y, p.Sigma, p.Active
	}

	return c
}

func appendColumns(c *expr.Columns, p Point) {
	c.X = append(c.X, p.X)
	c.Y = append(c.Y, p.Y)
	c.S = append(c.S, p.Sigma)
	c.A = append(c.A, p.Active)
}

func fromColumns(c *expr.Columns) []Point {
	pts := make([]Point, c.Len())
	for i := range pts {
		pts[i] = Point{X: c.X[i], Y: c.Y[i], Sigma: c.S[i], Active: c.A[i]}
	}

	return pts
}

// sortPoints orders pts by x, stably, when they are not already ordered.
func sortPoints(pts []Point) {
	byX := func(a, b Point) int { return cmp.Compare(a.X, b.X) }
	if !slices.IsSortedFunc(pts, byX) {
		slices.SortStableFunc(pts, byX)
	}
}
