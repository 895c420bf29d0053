package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// The serialized form is a JSON array in prefix notation: the tokens are the
// strings "&", "|" and "!" followed by their operands, three-element arrays
// [field, operator, value] for leaves, and {"$var": name} objects for
// deferred bindings. An empty array is the True expression.
//
// Serialize and Parse round-trip losslessly for any expression produced by
// the store; Parse flattens nested runs of one operator into a single n-ary
// node, which Serialize emits identically.

const varKey = "$var"

// Serialize returns the serialized form of the expression.
func Serialize(e Expr) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// Operator tokens like "&" must appear literally, not as &.
	enc.SetEscapeHTML(false)
	if err := enc.Encode(exprTokens(e)); err != nil {
		// Tokens are built from plain strings, slices and maps; marshaling
		// can only fail on an unmarshalable leaf value.
		return fmt.Sprintf("<unserializable domain: %v>", err)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func exprTokens(e Expr) []interface{} {
	switch v := e.(type) {
	case nil:
		return []interface{}{}
	case True:
		return []interface{}{}
	case Leaf:
		return []interface{}{leafToken(v)}
	case Var:
		return []interface{}{map[string]interface{}{varKey: v.Name}}
	case Not:
		return append([]interface{}{"!"}, exprTokens(v.Child)...)
	case And:
		return naryTokens("&", v.Children)
	case Or:
		return naryTokens("|", v.Children)
	default:
		return []interface{}{}
	}
}

func naryTokens(op string, children []Expr) []interface{} {
	// True and nil children are neutral; emitting them would leave their
	// operator token dangling.
	kept := make([]Expr, 0, len(children))
	for _, child := range children {
		if child == nil {
			continue
		}
		if _, ok := child.(True); ok {
			continue
		}
		kept = append(kept, child)
	}
	if len(kept) == 0 {
		return []interface{}{}
	}
	tokens := make([]interface{}, 0, 3*len(kept))
	for i := 1; i < len(kept); i++ {
		tokens = append(tokens, op)
	}
	for _, child := range kept {
		tokens = append(tokens, exprTokens(child)...)
	}
	return tokens
}

func leafToken(l Leaf) []interface{} {
	value := l.Value
	if v, ok := value.(Var); ok {
		value = map[string]interface{}{varKey: v.Name}
	}
	return []interface{}{l.Field, l.Op, value}
}

// Parse reads a serialized expression back into its AST form.
func Parse(data string) (Expr, error) {
	if data == "" {
		return True{}, nil
	}
	var tokens []interface{}
	if err := json.Unmarshal([]byte(data), &tokens); err != nil {
		return nil, fmt.Errorf("malformed domain %q: %w", data, err)
	}
	if len(tokens) == 0 {
		return True{}, nil
	}
	p := &tokenParser{tokens: tokens}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("malformed domain %q: %w", data, err)
	}
	// The original format treats trailing expressions as an implicit AND.
	rest := []Expr{expr}
	for p.pos < len(p.tokens) {
		next, err := p.parseExpr()
		if err != nil {
			return nil, fmt.Errorf("malformed domain %q: %w", data, err)
		}
		rest = append(rest, next)
	}
	if len(rest) == 1 {
		return expr, nil
	}
	return flatten(AndOp, rest), nil
}

type tokenParser struct {
	tokens []interface{}
	pos    int
}

func (p *tokenParser) parseExpr() (Expr, error) {
	if p.pos >= len(p.tokens) {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	token := p.tokens[p.pos]
	p.pos++

	switch t := token.(type) {
	case string:
		switch t {
		case "!":
			child, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return Not{Child: child}, nil
		case "&", "|":
			left, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			right, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			op := AndOp
			if t == "|" {
				op = OrOp
			}
			return flatten(op, []Expr{left, right}), nil
		default:
			return nil, fmt.Errorf("unknown operator %q", t)
		}
	case []interface{}:
		return parseLeaf(t)
	case map[string]interface{}:
		name, ok := t[varKey].(string)
		if !ok {
			return nil, fmt.Errorf("invalid var token %v", t)
		}
		return Var{Name: name}, nil
	default:
		return nil, fmt.Errorf("invalid token %v", token)
	}
}

func parseLeaf(triple []interface{}) (Expr, error) {
	if len(triple) != 3 {
		return nil, fmt.Errorf("leaf must have exactly 3 elements, got %d", len(triple))
	}
	field, ok := triple[0].(string)
	if !ok {
		return nil, fmt.Errorf("leaf field must be a string, got %v", triple[0])
	}
	op, ok := triple[1].(string)
	if !ok {
		return nil, fmt.Errorf("leaf operator must be a string, got %v", triple[1])
	}
	value := triple[2]
	if m, ok := value.(map[string]interface{}); ok {
		if name, ok := m[varKey].(string); ok {
			value = Var{Name: name}
		}
	}
	return Leaf{Field: field, Op: op, Value: value}, nil
}

// flatten merges children that are themselves nodes of the same operator,
// keeping the n-ary form canonical.
func flatten(op Operator, children []Expr) Expr {
	merged := make([]Expr, 0, len(children))
	for _, child := range children {
		switch c := child.(type) {
		case And:
			if op == AndOp {
				merged = append(merged, c.Children...)
				continue
			}
		case Or:
			if op == OrOp {
				merged = append(merged, c.Children...)
				continue
			}
		}
		merged = append(merged, child)
	}
	if op == AndOp {
		return And{Children: merged}
	}
	return Or{Children: merged}
}
