package session

import (
	"fmt"
	"io"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/katalvlaran/lvfit/expr"
	"github.com/katalvlaran/lvfit/vars"
)

var plainValue = regexp.MustCompile(`^[A-Za-z0-9_.+-]+$`)

// StateScript renders the session as statements that rebuild it on a
// fresh session: settings, user templates, datasets point by point,
// variables, functions, models and the default dataset. Numbers are
// written in their shortest exact form.
func (s *Session) StateScript() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder

	// 1. Settings, in one statement so related options change together
	keys := s.cfg.Keys()
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := s.cfg.Get(k)
		if err != nil {
			return "", err
		}
		if !plainValue.MatchString(v) {
			v = "'" + v + "'"
		}
		pairs = append(pairs, k+" = "+v)
	}
	fmt.Fprintf(&b, "set %s\n", strings.Join(pairs, ", "))

	// 2. Templates, oldest first so later ones may call earlier ones
	for _, t := range s.lib.UserDefined() {
		fmt.Fprintf(&b, "define %s\n", t.Definition())
	}

	// 3. Datasets
	for i, d := range s.data.All() {
		if i > 0 {
			fmt.Fprintln(&b, "@+ = 0")
		}
		if t := d.Title(); t != "" {
			fmt.Fprintf(&b, "@%d: title = %s\n", i, quote(t))
		}
		for j, p := range d.Points() {
			a := 0
			if p.Active {
				a = 1
			}
			fmt.Fprintf(&b, "@%d: X[%d] = %s, Y[%d] = %s, S[%d] = %s, A[%d] = %d\n", i,
				j, expr.FormatNumber(p.X), j, expr.FormatNumber(p.Y), j, expr.FormatNumber(p.Sigma), j, a)
		}
	}

	// 4. Variables and functions
	if err := s.writeDefinitions(&b); err != nil {
		return "", err
	}

	// 5. Models
	for i, m := range s.models {
		names := m.Names()
		if len(names) == 0 {
			continue
		}
		fmt.Fprintf(&b, "@%d.F = %%%s\n", i, strings.Join(names, " + %"))
	}
	fmt.Fprintf(&b, "use @%d\n", s.data.Default())

	return b.String(), nil
}

// writeDefinitions writes named variables first, then every function right
// after the auto-named variables it needs, so no auto-named variable is
// left unused between two statements of the replay.
func (s *Session) writeDefinitions(w io.Writer) error {
	order, err := s.g.Ordered()
	if err != nil {
		return err
	}
	rank := make(map[string]int, len(order))
	for i, n := range order {
		rank[n] = i
	}
	done := make(map[string]bool, len(order))
	emit := func(roots []string) error {
		need := make(map[string]bool)
		var visit func(string) error
		visit = func(n string) error {
			if need[n] || done[n] {
				return nil
			}
			need[n] = true
			v, err := s.g.Get(n)
			if err != nil {
				return err
			}
			for _, d := range v.Deps {
				if err = visit(d); err != nil {
					return err
				}
			}
			return nil
		}
		for _, r := range roots {
			if err := visit(r); err != nil {
				return err
			}
		}
		names := slices.SortedFunc(maps.Keys(need), func(a, b string) int { return rank[a] - rank[b] })
		for _, n := range names {
			def, err := s.g.Definition(n)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "$%s = %s\n", n, def)
			done[n] = true
		}
		return nil
	}

	var named []string
	for _, n := range order {
		if !vars.IsAuto(n) {
			named = append(named, n)
		}
	}
	if err = emit(named); err != nil {
		return err
	}
	for _, f := range s.reg.Functions() {
		if err = emit(f.Vars()); err != nil {
			return err
		}
		fmt.Fprintln(w, f.Assignment())
	}

	return emit(order)
}

// quote wraps a dataset.QuotableTitle title in whichever quote it lacks.
func quote(t string) string {
	if strings.Contains(t, "'") {
		return `"` + t + `"`
	}

	return "'" + t + "'"
}
