package vars

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/katalvlaran/lvfit/dag"
	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
)

// Copy makes dst an independent deep copy of src. A simple src is copied
// with its value, free flag and domain. A compound src is copied together
// with everything it depends on: every referenced variable gets a fresh
// auto-named copy, linked to dst with Owned edges, so later edits on either
// side never reach the other.
func (g *Graph) Copy(dst, src string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var created []string
	if err := g.copyLocked(dst, src, &created); err != nil {
		g.rollback(created)
		return err
	}
	g.log.Debug("copy variable", zap.String("dst", dst), zap.String("src", src), zap.Strings("created", created))

	return nil
}

// CopyAuto copies src into a fresh auto-named variable and returns its name.
func (g *Graph) CopyAuto(src string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var created []string
	name, err := g.copyAutoLocked(src, &created)
	if err != nil {
		g.rollback(created)
		return "", err
	}

	return name, nil
}

func (g *Graph) copyAutoLocked(src string, created *[]string) (string, error) {
	name := g.nextAutoLocked()
	if err := g.copyLocked(name, src, created); err != nil {
		return "", err
	}

	return name, nil
}

func (g *Graph) copyLocked(dst, src string, created *[]string) error {
	e, err := g.lookup(src)
	if err != nil {
		return err
	}
	if err = g.refreshLocked(e); err != nil {
		return err
	}
	if e.kind == Simple {
		var dom *Domain
		if e.domain != nil {
			d := *e.domain
			dom = &d
		}
		// the copy takes the source's domain, or none, never dst's old one
		if err = g.installSimpleLocked(dst, e.value, e.free, dom); err != nil {
			return err
		}
		*created = append(*created, dst)

		return nil
	}
	rename := make(map[string]string, len(e.refs))
	for _, r := range e.refs {
		n, err := g.copyAutoLocked(r, created)
		if err != nil {
			return err
		}
		rename[r] = n
	}
	if err = g.declareCompoundLocked(dst, expr.RenameVars(e.node, rename), dag.Owned); err != nil {
		return err
	}
	*created = append(*created, dst)

	return nil
}

// rollback deletes variables created by a failed multi-step operation,
// newest first.
func (g *Graph) rollback(created []string) {
	for i := len(created) - 1; i >= 0; i-- {
		name := created[i]
		if len(g.deps.Successors(name)) == 0 {
			_ = g.deps.RemoveVertex(name)
			delete(g.vars, name)
		}
	}
}

// Alias defines dst as a shared reference to src: reading dst yields src's
// current value until dst is redefined.
func (g *Graph) Alias(dst, src string) error {
	if dst == src {
		return fmt.Errorf("vars: $%s aliased to itself: %w", dst, errs.ErrReference)
	}

	return g.DeclareCompound(dst, &expr.VarRef{Name: src})
}

// NewAuto declares a fresh auto-named simple variable and returns its name.
func (g *Graph) NewAuto(value float64, free bool, dom *Domain) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	name := g.nextAutoLocked()
	if err := g.declareSimpleLocked(name, value, free, dom); err != nil {
		return "", err
	}

	return name, nil
}

// NewAutoCompound declares a fresh auto-named compound variable.
func (g *Graph) NewAutoCompound(node expr.Node) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	name := g.nextAutoLocked()
	if err := g.declareCompoundLocked(name, node, dag.Shared); err != nil {
		return "", err
	}

	return name, nil
}

// Prune deletes auto-named variables nothing depends on, repeatedly, and
// returns the removed names in removal order.
func (g *Graph) Prune() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var removed []string
	for {
		progress := false
		for name := range g.vars {
			if !IsAuto(name) || len(g.deps.Successors(name)) > 0 {
				continue
			}
			_ = g.deps.RemoveVertex(name)
			delete(g.vars, name)
			removed = append(removed, name)
			progress = true
		}
		if !progress {
			break
		}
	}
	if len(removed) > 0 {
		g.log.Debug("pruned variables", zap.Strings("names", removed))
	}

	return removed
}
