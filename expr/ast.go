package expr

// Node is an expression tree node. Nodes are immutable once built; every
// rewriting helper returns a new tree and shares unchanged subtrees.
type Node interface {
	node()
}

// Num is a numeric literal.
type Num struct {
	V float64
}

// Ident is a bare identifier: x, a template parameter, a point attribute
// (x y s a X Y S A n M) or a constant (pi, inf, true, false).
type Ident struct {
	Name string
}

// VarRef references a named variable ($name).
type VarRef struct {
	Name string
}

// Slot is a bound identifier; see Bind. Name is kept for rendering.
type Slot struct {
	I    int
	Name string
}

// Unary is "-" (negation) or "not".
type Unary struct {
	Op string
	X  Node
}

// Binary holds arithmetic, comparison and boolean operators:
// + - * / ^ < <= > >= == != and or.
type Binary struct {
	Op   string
	L, R Node
}

// Cond is the tagged conditional `If ? Then : Else`.
type Cond struct {
	If, Then, Else Node
}

// Call is a built-in function, aggregate or template call.
type Call struct {
	Name string
	Args []Node
}

// Aggregate reduces Arg over the points of a dataset, optionally only
// those where Where is true: sum(y), count(y > 0), avg(y if x > 3).
type Aggregate struct {
	Name  string
	Arg   Node
	Where Node
}

// Index is indexed point access such as y[3] or x[n-1].
type Index struct {
	Name string
	Idx  Node
}

// FuncRef is the value of a function instance, %name(arg).
type FuncRef struct {
	Name string
	Arg  Node
}

// FuncParam is a function instance parameter, %name.param.
type FuncParam struct {
	Name  string
	Param string
}

func (*Num) node()       {}
func (*Ident) node()     {}
func (*VarRef) node()    {}
func (*Slot) node()      {}
func (*Unary) node()     {}
func (*Binary) node()    {}
func (*Cond) node()      {}
func (*Call) node()      {}
func (*Aggregate) node() {}
func (*Index) node()     {}
func (*FuncRef) node()   {}
func (*FuncParam) node() {}

// constants are identifiers with a fixed value.
var constants = map[string]float64{
	"pi":    3.141592653589793,
	"inf":   posInf,
	"true":  1,
	"false": 0,
	"nan":   nan,
}

// aggregates are the dataset reductions; see Aggregate.
var aggregates = map[string]bool{
	"count": true, "sum": true, "darea": true, "avg": true, "min": true,
	"max": true, "stddev": true, "argmin": true, "argmax": true,
}

// IsAggregate reports whether name is a dataset reduction.
func IsAggregate(name string) bool { return aggregates[name] }
