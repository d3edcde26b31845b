package expr

import (
	"fmt"
	"strings"
	"unicode"
)

// tokenKind identifies a lexical token.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokMeasured // number immediately followed by [unit]
	tokString
	tokTemporal // `...`
	tokLParen
	tokRParen
	tokComma
	tokDot
	tokBang
	tokHash
	tokPipe
	tokQuestion
	tokColon
	tokEq
	tokNeq
	tokLt
	tokLe
	tokGt
	tokGe
	tokPlus
	tokMinus
	tokStar
	tokSlash
)

var tokenNames = map[tokenKind]string{
	tokEOF: "end of expression", tokIdent: "identifier", tokNumber: "number",
	tokMeasured: "measured literal", tokString: "string", tokTemporal: "temporal literal",
	tokLParen: "(", tokRParen: ")", tokComma: ",", tokDot: ".", tokBang: "!",
	tokHash: "#", tokPipe: "|", tokQuestion: "?", tokColon: ":", tokEq: "==",
	tokNeq: "!=", tokLt: "<", tokLe: "<=", tokGt: ">", tokGe: ">=", tokPlus: "+",
	tokMinus: "-", tokStar: "*", tokSlash: "/",
}

func (k tokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// token is one lexeme. For tokMeasured, Text is the amount and Unit the
// bracketed unit name.
type token struct {
	Kind tokenKind
	Text string
	Unit string
	Pos  int
}

// lex splits src into tokens. Qualified names ("model::Order") are returned
// as a single identifier.
func lex(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	i := 0
	emit := func(k tokenKind, text string, pos int) {
		toks = append(toks, token{Kind: k, Text: text, Pos: pos})
	}
	for i < len(rs) {
		c := rs[i]
		start := i
		switch {
		case unicode.IsSpace(c):
			i++
		case isIdentStart(c):
			for i < len(rs) {
				if isIdentPart(rs[i]) {
					i++
					continue
				}
				if rs[i] == ':' && i+2 < len(rs) && rs[i+1] == ':' && isIdentStart(rs[i+2]) {
					i += 2
					continue
				}
				break
			}
			emit(tokIdent, string(rs[start:i]), start)
		case unicode.IsDigit(c):
			for i < len(rs) && unicode.IsDigit(rs[i]) {
				i++
			}
			if i+1 < len(rs) && rs[i] == '.' && unicode.IsDigit(rs[i+1]) {
				i++
				for i < len(rs) && unicode.IsDigit(rs[i]) {
					i++
				}
			}
			text := string(rs[start:i])
			if i < len(rs) && rs[i] == '[' {
				j := i + 1
				for j < len(rs) && rs[j] != ']' {
					j++
				}
				if j >= len(rs) {
					return nil, &SyntaxError{Expr: src, Pos: i, Message: "unterminated unit"}
				}
				unit := strings.TrimSpace(string(rs[i+1 : j]))
				if unit == "" {
					return nil, &SyntaxError{Expr: src, Pos: i, Message: "empty unit"}
				}
				i = j + 1
				toks = append(toks, token{Kind: tokMeasured, Text: text, Unit: unit, Pos: start})
				continue
			}
			emit(tokNumber, text, start)
		case c == '\'' || c == '"':
			i++
			var sb strings.Builder
			closed := false
			for i < len(rs) {
				if rs[i] == '\\' && i+1 < len(rs) {
					switch rs[i+1] {
					case 'n':
						sb.WriteRune('\n')
					case 't':
						sb.WriteRune('\t')
					default:
						sb.WriteRune(rs[i+1])
					}
					i += 2
					continue
				}
				if rs[i] == c {
					closed = true
					i++
					break
				}
				sb.WriteRune(rs[i])
				i++
			}
			if !closed {
				return nil, &SyntaxError{Expr: src, Pos: start, Message: "unterminated string"}
			}
			emit(tokString, sb.String(), start)
		case c == '`':
			i++
			for i < len(rs) && rs[i] != '`' {
				i++
			}
			if i >= len(rs) {
				return nil, &SyntaxError{Expr: src, Pos: start, Message: "unterminated temporal literal"}
			}
			emit(tokTemporal, string(rs[start+1:i]), start)
			i++
		default:
			next := rune(0)
			if i+1 < len(rs) {
				next = rs[i+1]
			}
			kind, width := operator(c, next)
			if width == 0 {
				return nil, &SyntaxError{Expr: src, Pos: start, Message: fmt.Sprintf("unexpected character %q", c)}
			}
			i += width
			emit(kind, string(rs[start:i]), start)
		}
	}
	emit(tokEOF, "", len(rs))
	return toks, nil
}

func operator(c, next rune) (tokenKind, int) {
	switch c {
	case '(':
		return tokLParen, 1
	case ')':
		return tokRParen, 1
	case ',':
		return tokComma, 1
	case '.':
		return tokDot, 1
	case '#':
		return tokHash, 1
	case '|':
		return tokPipe, 1
	case '?':
		return tokQuestion, 1
	case ':':
		return tokColon, 1
	case '+':
		return tokPlus, 1
	case '-':
		return tokMinus, 1
	case '*':
		return tokStar, 1
	case '/':
		return tokSlash, 1
	case '!':
		if next == '=' {
			return tokNeq, 2
		}
		return tokBang, 1
	case '=':
		if next == '=' {
			return tokEq, 2
		}
		return tokEq, 1
	case '<':
		switch next {
		case '=':
			return tokLe, 2
		case '>':
			return tokNeq, 2
		}
		return tokLt, 1
	case '>':
		if next == '=' {
			return tokGe, 2
		}
		return tokGt, 1
	}
	return tokEOF, 0
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
