package domain

import "fmt"

// EvalError reports that an expression could not be resolved against the
// provided bindings. The serialized form of the attempted expression is
// attached so callers can surface it.
type EvalError struct {
	Expr    string
	Binding string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("cannot evaluate expression %s: unknown binding %q", e.Expr, e.Binding)
}

// Evaluate resolves every Var in the expression using bindings and returns
// the resulting concrete expression. A var bound to an Expr is spliced in; a
// var bound to true becomes the True expression and one bound to false the
// FalseLeaf condition; any other standalone var binding, or a missing
// binding, is an error. The input expression is not modified.
func Evaluate(expr Expr, bindings map[string]interface{}) (Expr, error) {
	resolved, err := evaluate(expr, bindings)
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func evaluate(expr Expr, bindings map[string]interface{}) (Expr, error) {
	switch e := expr.(type) {
	case nil:
		return True{}, nil
	case True:
		return e, nil
	case Leaf:
		v, ok := e.Value.(Var)
		if !ok {
			return e, nil
		}
		bound, found := bindings[v.Name]
		if !found {
			return nil, &EvalError{Expr: Serialize(expr), Binding: v.Name}
		}
		return Leaf{Field: e.Field, Op: e.Op, Value: bound}, nil
	case Var:
		bound, found := bindings[e.Name]
		if !found {
			return nil, &EvalError{Expr: Serialize(expr), Binding: e.Name}
		}
		switch b := bound.(type) {
		case Expr:
			return evaluate(b, bindings)
		case bool:
			if b {
				return True{}, nil
			}
			return FalseLeaf(), nil
		default:
			return nil, &EvalError{Expr: Serialize(expr), Binding: e.Name}
		}
	case Not:
		child, err := evaluate(e.Child, bindings)
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil
	case And:
		children, err := evaluateAll(e.Children, bindings)
		if err != nil {
			return nil, err
		}
		return And{Children: children}, nil
	case Or:
		children, err := evaluateAll(e.Children, bindings)
		if err != nil {
			return nil, err
		}
		return Or{Children: children}, nil
	default:
		return expr, nil
	}
}

func evaluateAll(exprs []Expr, bindings map[string]interface{}) ([]Expr, error) {
	out := make([]Expr, len(exprs))
	for i, e := range exprs {
		resolved, err := evaluate(e, bindings)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

// MergeContexts merges key/value context maps left to right, later maps
// winning on conflicts. The inputs are not modified.
func MergeContexts(contexts ...map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, ctx := range contexts {
		for k, v := range ctx {
			merged[k] = v
		}
	}
	return merged
}
