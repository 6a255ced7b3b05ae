package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Render returns the canonical text of n with numbers in their shortest
// exact form, so Parse(Render(n)) evaluates bit-identically to n.
func Render(n Node) string { return RenderWith(n, "") }

// RenderWith renders n formatting numbers with the fmt verb numFmt
// (e.g. "%g"); an empty numFmt selects the shortest exact form.
//
// Layout: "+", "-", comparisons, "and"/"or" and the ternary are spaced;
// "*", "/" and "^" are not; call arguments are joined with ", ".
func RenderWith(n Node, numFmt string) string {
	var b strings.Builder
	r := renderer{b: &b, numFmt: numFmt}
	r.render(n, 0)

	return b.String()
}

// Precedence levels, low to high.
const (
	precCond = iota + 1
	precOr
	precAnd
	precNot
	precCmp
	precAdd
	precMul
	precNeg
	precPow
	precAtom
)

func precedence(n Node) int {
	switch n := n.(type) {
	case *Cond:
		return precCond
	case *Binary:
		switch n.Op {
		case "or":
			return precOr
		case "and":
			return precAnd
		case "+", "-":
			return precAdd
		case "*", "/":
			return precMul
		case "^":
			return precPow
		}
		return precCmp
	case *Unary:
		if n.Op == "not" {
			return precNot
		}
		return precNeg
	case *Num:
		if math.Signbit(n.V) && !math.IsNaN(n.V) {
			return precNeg
		}
	}

	return precAtom
}

type renderer struct {
	b      *strings.Builder
	numFmt string
}

// render writes n, parenthesised when it binds looser than minPrec.
func (r *renderer) render(n Node, minPrec int) {
	if precedence(n) < minPrec {
		r.b.WriteByte('(')
		r.render(n, 0)
		r.b.WriteByte(')')
		return
	}
	switch n := n.(type) {
	case *Num:
		r.b.WriteString(r.number(n.V))
	case *Ident:
		r.b.WriteString(n.Name)
	case *Slot:
		r.b.WriteString(n.Name)
	case *VarRef:
		r.b.WriteString("$" + n.Name)
	case *Unary:
		if n.Op == "not" {
			r.b.WriteString("not ")
			r.render(n.X, precNot)
			return
		}
		r.b.WriteByte('-')
		r.render(n.X, precPow)
	case *Binary:
		p := precedence(n)
		switch n.Op {
		case "^":
			r.render(n.L, precAtom)
			r.b.WriteByte('^')
			r.render(n.R, precNeg)
		case "*", "/":
			r.render(n.L, p)
			r.b.WriteString(n.Op)
			r.render(n.R, p+1)
		default:
			r.render(n.L, p)
			r.b.WriteString(" " + n.Op + " ")
			r.render(n.R, p+1)
		}
	case *Cond:
		r.render(n.If, precOr)
		r.b.WriteString(" ? ")
		r.render(n.Then, precCond)
		r.b.WriteString(" : ")
		r.render(n.Else, precCond)
	case *Call:
		r.b.WriteString(n.Name + "(")
		for i, a := range n.Args {
			if i > 0 {
				r.b.WriteString(", ")
			}
			r.render(a, 0)
		}
		r.b.WriteByte(')')
	case *Aggregate:
		r.b.WriteString(n.Name + "(")
		r.render(n.Arg, 0)
		if n.Where != nil {
			r.b.WriteString(" if ")
			r.render(n.Where, 0)
		}
		r.b.WriteByte(')')
	case *Index:
		r.b.WriteString(n.Name + "[")
		r.render(n.Idx, 0)
		r.b.WriteByte(']')
	case *FuncRef:
		r.b.WriteString("%" + n.Name + "(")
		r.render(n.Arg, 0)
		r.b.WriteByte(')')
	case *FuncParam:
		r.b.WriteString("%" + n.Name + "." + n.Param)
	}
}

func (r *renderer) number(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	if r.numFmt == "" {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}

	return fmt.Sprintf(r.numFmt, v)
}

// FormatNumber renders v the way Render does.
func FormatNumber(v float64) string { return (&renderer{}).number(v) }

// Transform rebuilds n bottom-up, replacing every node with fn(node) after
// its children were transformed. fn returns its argument to keep a node.
func Transform(n Node, fn func(Node) Node) Node {
	switch t := n.(type) {
	case *Unary:
		n = &Unary{Op: t.Op, X: Transform(t.X, fn)}
	case *Binary:
		n = &Binary{Op: t.Op, L: Transform(t.L, fn), R: Transform(t.R, fn)}
	case *Cond:
		n = &Cond{If: Transform(t.If, fn), Then: Transform(t.Then, fn), Else: Transform(t.Else, fn)}
	case *Call:
		args := make([]Node, len(t.Args))
		for i, a := range t.Args {
			args[i] = Transform(a, fn)
		}
		n = &Call{Name: t.Name, Args: args}
	case *Aggregate:
		agg := &Aggregate{Name: t.Name, Arg: Transform(t.Arg, fn)}
		if t.Where != nil {
			agg.Where = Transform(t.Where, fn)
		}
		n = agg
	case *Index:
		n = &Index{Name: t.Name, Idx: Transform(t.Idx, fn)}
	case *FuncRef:
		n = &FuncRef{Name: t.Name, Arg: Transform(t.Arg, fn)}
	}

	return fn(n)
}

// Walk visits n in pre-order; returning false from fn skips the children.
func Walk(n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}
	switch t := n.(type) {
	case *Unary:
		Walk(t.X, fn)
	case *Binary:
		Walk(t.L, fn)
		Walk(t.R, fn)
	case *Cond:
		Walk(t.If, fn)
		Walk(t.Then, fn)
		Walk(t.Else, fn)
	case *Call:
		for _, a := range t.Args {
			Walk(a, fn)
		}
	case *Aggregate:
		Walk(t.Arg, fn)
		if t.Where != nil {
			Walk(t.Where, fn)
		}
	case *Index:
		Walk(t.Idx, fn)
	case *FuncRef:
		Walk(t.Arg, fn)
	}
}

// Refs returns the distinct $variable names referenced by n in order of
// first appearance.
func Refs(n Node) []string {
	var (
		out  []string
		seen = map[string]bool{}
	)
	Walk(n, func(n Node) bool {
		if v, ok := n.(*VarRef); ok && !seen[v.Name] {
			seen[v.Name] = true
			out = append(out, v.Name)
		}
		return true
	})

	return out
}

// FuncRefs returns the distinct %function names referenced by n.
func FuncRefs(n Node) []string {
	var (
		out  []string
		seen = map[string]bool{}
	)
	Walk(n, func(n Node) bool {
		name := ""
		switch t := n.(type) {
		case *FuncRef:
			name = t.Name
		case *FuncParam:
			name = t.Name
		}
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
		return true
	})

	return out
}

// Calls returns the distinct names of non-builtin calls in n.
func Calls(n Node) []string {
	var (
		out  []string
		seen = map[string]bool{}
	)
	Walk(n, func(n Node) bool {
		if c, ok := n.(*Call); ok && !IsBuiltin(c.Name) && !seen[c.Name] {
			seen[c.Name] = true
			out = append(out, c.Name)
		}
		return true
	})

	return out
}

// Substitute replaces identifiers and bound slots by name.
func Substitute(n Node, repl map[string]Node) Node {
	return Transform(n, func(n Node) Node {
		switch t := n.(type) {
		case *Ident:
			if r, ok := repl[t.Name]; ok {
				return r
			}
		case *Slot:
			if r, ok := repl[t.Name]; ok {
				return r
			}
		}
		return n
	})
}

// RenameVars replaces $old with $new for every pair in m.
func RenameVars(n Node, m map[string]string) Node {
	return Transform(n, func(n Node) Node {
		if v, ok := n.(*VarRef); ok {
			if to, ok := m[v.Name]; ok {
				return &VarRef{Name: to}
			}
		}
		return n
	})
}

// Bind replaces identifiers listed in names by Slot nodes indexed by their
// position, so evaluation reads them from the slots passed to EvalDual.
func Bind(n Node, names []string) Node {
	pos := make(map[string]int, len(names))
	for i, name := range names {
		pos[name] = i
	}

	return Transform(n, func(n Node) Node {
		if id, ok := n.(*Ident); ok {
			if i, ok := pos[id.Name]; ok {
				return &Slot{I: i, Name: id.Name}
			}
		}
		return n
	})
}

// Idents returns the distinct bare identifiers of n that are not constants.
func Idents(n Node) []string {
	var (
		out  []string
		seen = map[string]bool{}
	)
	Walk(n, func(n Node) bool {
		if id, ok := n.(*Ident); ok && !seen[id.Name] {
			if _, isConst := constants[id.Name]; !isConst {
				seen[id.Name] = true
				out = append(out, id.Name)
			}
		}
		return true
	})

	return out
}

// Fold collapses constant sub-expressions (literals, pi, inf and pure
// built-ins over them) into numbers and picks the branch of a conditional
// whose condition is constant. It only changes presentation.
func Fold(n Node) Node {
	return Transform(n, func(n Node) Node {
		switch t := n.(type) {
		case *Cond:
			if c, ok := t.If.(*Num); ok {
				if c.V != 0 {
					return t.Then
				}
				return t.Else
			}
			return n
		case *Unary, *Binary:
		case *Call:
			if !IsBuiltin(t.Name) {
				return n
			}
		default:
			return n
		}
		constant := true
		Walk(n, func(c Node) bool {
			switch c := c.(type) {
			case *Num:
			case *Ident:
				if _, ok := constants[c.Name]; !ok {
					constant = false
				}
			case *Unary, *Binary, *Call:
				return true
			default:
				constant = false
			}
			return constant
		})
		if !constant {
			return n
		}
		v, err := Eval(n, nil)
		if err != nil {
			return n
		}

		return &Num{V: v}
	})
}
