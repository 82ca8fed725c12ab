// Package logicexpr compiles boolean formulas over condition indices, such as
// "1 AND (2 OR NOT 3)", into immutable expression trees and predicates.
//
// Grammar, lowest precedence first:
//
//	expr    = and { "OR" and }
//	and     = unary { "AND" unary }
//	unary   = "NOT" unary | primary
//	primary = INDEX | "(" expr ")"
package logicexpr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/capitalize-ai/social-inbox/internal/apperr"
	"github.com/capitalize-ai/social-inbox/internal/predicate"
)

// ParseError reports malformed expression text or an unknown index.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("logical expression: %s at position %d", e.Msg, e.Pos)
}

// Is makes errors.Is(err, apperr.ErrParse) hold.
func (e *ParseError) Is(target error) bool { return target == apperr.ErrParse }

func errorf(pos int, format string, args ...any) *ParseError {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Node is an immutable expression tree node.
type Node interface {
	// Eval evaluates the node, asking leaf for the value of each index.
	// AND and OR short-circuit left to right.
	Eval(leaf func(index int) bool) bool
	String() string
	collect(set map[int]struct{})
}

// Leaf references a condition by index.
type Leaf struct{ Index int }

// Not negates its operand.
type Not struct{ X Node }

// And holds two or more operands that must all be true.
type And struct{ Children []Node }

// Or holds two or more operands of which one must be true.
type Or struct{ Children []Node }

func (n Leaf) Eval(leaf func(int) bool) bool { return leaf(n.Index) }
func (n Not) Eval(leaf func(int) bool) bool { return !n.X.Eval(leaf) }

func (n And) Eval(leaf func(int) bool) bool {
	for _, c := range n.Children {
		if !c.Eval(leaf) {
			return false
		}
	}
	return true
}

func (n Or) Eval(leaf func(int) bool) bool {
	for _, c := range n.Children {
		if c.Eval(leaf) {
			return true
		}
	}
	return false
}

func (n Leaf) String() string { return strconv.Itoa(n.Index) }
func (n Not) String() string { return "NOT " + n.X.String() }
func (n And) String() string { return joinChildren(n.Children, " AND ") }
func (n Or) String() string { return joinChildren(n.Children, " OR ") }

func joinChildren(children []Node, sep string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func (n Leaf) collect(set map[int]struct{}) { set[n.Index] = struct{}{} }
func (n Not) collect(set map[int]struct{}) { n.X.collect(set) }
func (n And) collect(set map[int]struct{}) {
	for _, c := range n.Children {
		c.collect(set)
	}
}
func (n Or) collect(set map[int]struct{}) {
	for _, c := range n.Children {
		c.collect(set)
	}
}

// Indices returns the distinct condition indices referenced by n, ascending.
func Indices(n Node) []int {
	set := make(map[int]struct{})
	n.collect(set)
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

type parser struct {
	tokens []token
	pos    int
}

// Parse parses the expression text into a tree.
func Parse(src string) (Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errorf(0, "expression is empty")
	}
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		if tok.kind == tokRParen {
			return nil, errorf(tok.pos, "unbalanced parentheses: unexpected ')'")
		}
		return nil, errorf(tok.pos, "unexpected %s", tok.kind)
	}
	return n, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for p.peek().kind == tokOr {
		p.next()
		n, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	if len(children) == 1 {
		return first, nil
	}
	return Or{Children: flatten(children, func(n Node) ([]Node, bool) {
		or, ok := n.(Or)
		return or.Children, ok
	})}, nil
}

func (p *parser) parseAnd() (Node, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for p.peek().kind == tokAnd {
		p.next()
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	if len(children) == 1 {
		return first, nil
	}
	return And{Children: flatten(children, func(n Node) ([]Node, bool) {
		and, ok := n.(And)
		return and.Children, ok
	})}, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.peek().kind == tokNot {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokIndex:
		return Leaf{Index: tok.index}, nil
	case tokLParen:
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing := p.next()
		if closing.kind != tokRParen {
			return nil, errorf(tok.pos, "unbalanced parentheses: '(' is never closed")
		}
		return n, nil
	case tokRParen:
		return nil, errorf(tok.pos, "unbalanced parentheses: unexpected ')'")
	case tokEOF:
		return nil, errorf(tok.pos, "unexpected end of expression")
	}
	return nil, errorf(tok.pos, "unexpected %s", tok.kind)
}

// flatten merges nested nodes of the same operator; parentheses group but
// do not change associative results.
func flatten(children []Node, same func(Node) ([]Node, bool)) []Node {
	out := make([]Node, 0, len(children))
	for _, c := range children {
		if inner, ok := same(c); ok {
			out = append(out, inner...)
			continue
		}
		out = append(out, c)
	}
	return out
}

// Build parses expr and compiles it against the per-condition predicates.
// Every referenced index must be present in preds.
func Build(preds map[int]predicate.Predicate, expr string) (predicate.Predicate, error) {
	n, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	if err := CheckIndices(n, preds); err != nil {
		return nil, err
	}
	return Compile(n, preds), nil
}

// CheckIndices verifies that every index used by n has a predicate.
func CheckIndices[V any](n Node, known map[int]V) error {
	for _, i := range Indices(n) {
		if _, ok := known[i]; !ok {
			return errorf(0, "unknown condition index %d", i)
		}
	}
	return nil
}

// Compile turns a checked tree into a predicate.
func Compile(n Node, preds map[int]predicate.Predicate) predicate.Predicate {
	switch n := n.(type) {
	case Leaf:
		return preds[n.Index]
	case Not:
		return predicate.Not(Compile(n.X, preds))
	case And:
		return predicate.And(compileAll(n.Children, preds)...)
	case Or:
		return predicate.Or(compileAll(n.Children, preds)...)
	}
	return predicate.False()
}

func compileAll(nodes []Node, preds map[int]predicate.Predicate) []predicate.Predicate {
	out := make([]predicate.Predicate, len(nodes))
	for i, n := range nodes {
		out[i] = Compile(n, preds)
	}
	return out
}
