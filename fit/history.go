package fit

import (
	"fmt"
	"maps"

	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/vars"
)

// record appends a fit step. Steps after the current position are
// dropped; before is skipped when it equals the current step.
func (e *Engine) record(before, after vars.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.hist) > 0 {
		e.hist = e.hist[:e.pos+1]
	}
	if len(e.hist) == 0 || !maps.Equal(e.hist[e.pos], before) {
		e.hist = append(e.hist, before)
	}
	e.hist = append(e.hist, after)
	e.pos = len(e.hist) - 1
}

// Undo restores the values from before the current fit step.
func (e *Engine) Undo() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pos == 0 {
		return fmt.Errorf("fit: nothing to undo: %w", errs.ErrEvaluation)
	}
	e.pos--
	e.g.Restore(e.hist[e.pos])

	return nil
}

// Redo re-applies the step undone last.
func (e *Engine) Redo() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pos+1 >= len(e.hist) {
		return fmt.Errorf("fit: nothing to redo: %w", errs.ErrEvaluation)
	}
	e.pos++
	e.g.Restore(e.hist[e.pos])

	return nil
}

// History returns the current position and the number of recorded
// parameter sets.
func (e *Engine) History() (pos, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.pos, len(e.hist)
}
