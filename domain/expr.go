// Package domain provides the boolean filter-expression library used by the
// search store: a small AST over record-field predicates, combinators, a
// binding-aware evaluator and a lossless serialized form.
package domain

// Expr is a boolean filter predicate over record fields.
type Expr interface {
	isExpr()
	// String returns the serialized form of the expression, see Serialize.
	String() string
}

// Leaf is a single predicate: a field compared to a value with an operator
// such as "=", "!=", "<", "<=", ">", ">=", "like", "ilike" or "in".
type Leaf struct {
	Field string
	Op    string
	Value interface{}
}

func (Leaf) isExpr() {}

// And combines its children conjunctively.
type And struct {
	Children []Expr
}

func (And) isExpr() {}

// Or combines its children disjunctively.
type Or struct {
	Children []Expr
}

func (Or) isExpr() {}

// Not negates its child.
type Not struct {
	Child Expr
}

func (Not) isExpr() {}

// True is the empty predicate; it matches every record. Combining zero
// expressions yields True.
type True struct{}

func (True) isExpr() {}

// FalseLeaf is the canonical always-false condition, the counterpart of the
// empty (always-true) expression. Unlike Not{True} it has a token form that
// survives a serialize/parse round trip.
func FalseLeaf() Leaf { return Leaf{Field: "0", Op: "=", Value: 1} }

// Var is a deferred binding. It may appear in Leaf values (or stand alone as
// a whole sub-expression value) and is substituted by Evaluate. Expressions
// containing vars are "symbolic": they can be stored and re-evaluated later
// without freezing relative semantics such as the current user or date.
type Var struct {
	Name string
}

func (Var) isExpr() {}

// Operator selects how Combine joins expressions.
type Operator int

const (
	AndOp Operator = iota
	OrOp
)

// Combine joins the given expressions with the operator. Nil and True
// entries are dropped; zero remaining expressions yield True, a single one
// is returned as-is.
func Combine(exprs []Expr, op Operator) Expr {
	kept := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if _, ok := e.(True); ok {
			continue
		}
		kept = append(kept, e)
	}
	switch len(kept) {
	case 0:
		return True{}
	case 1:
		return kept[0]
	}
	if op == AndOp {
		return And{Children: kept}
	}
	return Or{Children: kept}
}

func (e Leaf) String() string { return Serialize(e) }
func (e And) String() string  { return Serialize(e) }
func (e Or) String() string   { return Serialize(e) }
func (e Not) String() string  { return Serialize(e) }
func (e True) String() string { return Serialize(e) }
func (e Var) String() string  { return Serialize(e) }
