package splitter

import (
	"errors"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	"github.com/kailas-cloud/kbchat/internal/domain"
)

// goja positions are 1-based and the source is wrapped in "(" before parsing.
const idxShift = 2

// ObjectTree is a parsed object expression used to resolve key scopes by offset.
type ObjectTree struct {
	src  string
	root *ast.ObjectLiteral
}

// ParseObject parses src as a single object expression. Anything else, including
// trailing statements or an unterminated literal, is a *domain.MalformedInputError.
func ParseObject(src string) (*ObjectTree, error) {
	// The newline keeps a trailing line comment from swallowing the closing paren.
	prog, err := parser.ParseFile(nil, "", "("+src+"\n)", 0)
	if err != nil {
		return nil, malformedFromParser(err)
	}
	if len(prog.Body) != 1 {
		return nil, domain.NewMalformedInput("expected a single expression")
	}
	stmt, ok := prog.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return nil, domain.NewMalformedInput("expected an expression statement")
	}
	obj, ok := stmt.Expression.(*ast.ObjectLiteral)
	if !ok {
		return nil, domain.NewMalformedInput("expression is not an object literal")
	}
	return &ObjectTree{src: src, root: obj}, nil
}

// ScopeAt returns the keys of the properties enclosing offset, outermost first.
// Bounds are inclusive on both ends; only object values are descended into.
func (t *ObjectTree) ScopeAt(offset int) []string {
	var keys []string
	node := t.root
	for node != nil {
		var next *ast.ObjectLiteral
		for _, prop := range node.Value {
			start, end := t.offsets(prop)
			if offset < start || offset > end {
				continue
			}
			key, value := t.property(prop)
			keys = append(keys, key)
			if obj, ok := value.(*ast.ObjectLiteral); ok {
				next = obj
			}
			break
		}
		node = next
	}
	return keys
}

func (t *ObjectTree) offsets(n ast.Node) (int, int) {
	return int(n.Idx0()) - idxShift, int(n.Idx1()) - idxShift
}

func (t *ObjectTree) property(prop ast.Property) (string, ast.Expression) {
	switch p := prop.(type) {
	case *ast.PropertyKeyed:
		return t.keyName(p.Key), p.Value
	case *ast.PropertyShort:
		return p.Name.Name.String(), nil
	default:
		start, end := t.offsets(prop)
		return t.slice(start, end), nil
	}
}

func (t *ObjectTree) keyName(key ast.Expression) string {
	switch k := key.(type) {
	case *ast.StringLiteral:
		return k.Value.String()
	case *ast.Identifier:
		return k.Name.String()
	case *ast.NumberLiteral:
		return k.Literal
	default:
		start, end := t.offsets(key)
		return t.slice(start, end)
	}
}

func (t *ObjectTree) slice(start, end int) string {
	start = max(0, start)
	end = min(len(t.src), end)
	if start >= end {
		return ""
	}
	return t.src[start:end]
}

func malformedFromParser(err error) error {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return &domain.MalformedInputError{Reason: list[0].Message, Offset: -1}
	}
	return domain.NewMalformedInput(err.Error())
}
