package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// SyntaxError reports the byte offset of a malformed equation.
type SyntaxError struct {
	Source string
	Pos    int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d in %q: %s", e.Pos, e.Source, e.Msg)
}

func isIdentRune(r rune, first bool) bool {
	if r == '_' || unicode.IsLetter(r) {
		return true
	}
	return !first && unicode.IsDigit(r)
}

func lex(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.') {
				i++
			}
			if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
				j := i + 1
				if j < len(rs) && (rs[j] == '+' || rs[j] == '-') {
					j++
				}
				if j < len(rs) && unicode.IsDigit(rs[j]) {
					i = j
					for i < len(rs) && unicode.IsDigit(rs[i]) {
						i++
					}
				}
			}
			text := string(rs[start:i])
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, &SyntaxError{Source: src, Pos: start, Msg: fmt.Sprintf("bad number %q", text)}
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: v, pos: start})
		case isIdentRune(r, true):
			start := i
			for i < len(rs) && isIdentRune(rs[i], false) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(rs[start:i]), pos: start})
		case r == '"':
			start := i
			i++
			for i < len(rs) && rs[i] != '"' {
				i++
			}
			if i >= len(rs) {
				return nil, &SyntaxError{Source: src, Pos: start, Msg: "unterminated quoted name"}
			}
			name := strings.TrimSpace(string(rs[start+1 : i]))
			i++
			if name == "" {
				return nil, &SyntaxError{Source: src, Pos: start, Msg: "empty quoted name"}
			}
			toks = append(toks, token{kind: tokIdent, text: name, pos: start})
		default:
			start := i
			op := string(r)
			if i+1 < len(rs) {
				two := string(rs[i : i+2])
				if two == "<=" || two == ">=" || two == "<>" {
					op = two
				}
			}
			if !strings.Contains("+-*/^()[],<>=", string(r)) {
				return nil, &SyntaxError{Source: src, Pos: start, Msg: fmt.Sprintf("unexpected character %q", r)}
			}
			i += len([]rune(op))
			toks = append(toks, token{kind: tokOp, text: op, pos: start})
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(rs)})
	return toks, nil
}
