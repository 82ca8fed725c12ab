package logicexpr

import (
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIndex
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokIndex:
		return "condition index"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	}
	return "unknown"
}

type token struct {
	kind  tokenKind
	pos   int
	text  string
	index int
}

// lex splits the expression into tokens. Keywords are case-insensitive.
func lex(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		r := rune(src[i])
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, pos: i, text: "("})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, pos: i, text: ")"})
			i++
		case r >= '0' && r <= '9':
			start := i
			for i < len(src) && src[i] >= '0' && src[i] <= '9' {
				i++
			}
			text := src[start:i]
			n, err := strconv.Atoi(text)
			if err != nil || n <= 0 {
				return nil, errorf(start, "invalid condition index %q", text)
			}
			tokens = append(tokens, token{kind: tokIndex, pos: start, text: text, index: n})
		case isWordByte(src[i]):
			start := i
			for i < len(src) && isWordByte(src[i]) {
				i++
			}
			word := src[start:i]
			switch strings.ToUpper(word) {
			case "AND":
				tokens = append(tokens, token{kind: tokAnd, pos: start, text: word})
			case "OR":
				tokens = append(tokens, token{kind: tokOr, pos: start, text: word})
			case "NOT":
				tokens = append(tokens, token{kind: tokNot, pos: start, text: word})
			default:
				return nil, errorf(start, "unrecognized token %q", word)
			}
		default:
			return nil, errorf(i, "unrecognized token %q", string(src[i]))
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(src)})
	return tokens, nil
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}
