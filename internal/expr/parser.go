package expr

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
)

// parseCache holds parsed expressions process-wide. Keys are source text,
// values are parseResult.
var parseCache sync.Map

type parseResult struct {
	node Node
	err  error
}

// Parse parses src into an AST. Results, including syntax errors, are cached
// so every distinct expression is parsed once per process.
func Parse(src string) (Node, error) {
	if cached, ok := parseCache.Load(src); ok {
		r := cached.(parseResult)
		return r.node, r.err
	}
	n, err := parse(src)
	parseCache.Store(src, parseResult{node: n, err: err})
	return n, err
}

func parse(src string) (Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &SyntaxError{Expr: src, Message: "empty expression"}
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	n, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind != tokEOF {
		return nil, p.errorf("unexpected %s", describe(p.peek()))
	}
	return n, nil
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.Kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) *SyntaxError {
	return &SyntaxError{Expr: p.src, Pos: p.peek().Pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(k tokenKind) (token, error) {
	if p.peek().Kind != k {
		return token{}, p.errorf("expected %s, found %s", k, describe(p.peek()))
	}
	return p.next(), nil
}

// keyword reports whether the next token is the identifier kw
// (case-insensitive for word operators).
func (p *parser) keyword(kw string) bool {
	t := p.peek()
	return t.Kind == tokIdent && strings.EqualFold(t.Text, kw)
}

func describe(t token) string {
	switch t.Kind {
	case tokEOF:
		return "end of expression"
	case tokIdent, tokNumber:
		return fmt.Sprintf("%q", t.Text)
	}
	return t.Kind.String()
}

func (p *parser) parseTernary() (Node, error) {
	cond, err := p.parseImplies()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind != tokQuestion {
		return cond, nil
	}
	p.next()
	then, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokColon); err != nil {
		return nil, err
	}
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &Ternary{Cond: cond, Then: then, Else: els}, nil
}

func (p *parser) parseImplies() (Node, error) {
	l, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	for p.keyword("implies") {
		p.next()
		r, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: "implies", L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseOr() (Node, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") || p.keyword("xor") {
		op := strings.ToLower(p.next().Text)
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: op, L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseAnd() (Node, error) {
	l, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		p.next()
		r, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: "and", L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseEquality() (Node, error) {
	l, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().Kind {
		case tokEq:
			op = "=="
		case tokNeq:
			op = "!="
		default:
			return l, nil
		}
		p.next()
		r, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: op, L: l, R: r}
	}
}

func (p *parser) parseRelational() (Node, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().Kind {
		case tokLt:
			op = "<"
		case tokLe:
			op = "<="
		case tokGt:
			op = ">"
		case tokGe:
			op = ">="
		default:
			return l, nil
		}
		p.next()
		r, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: op, L: l, R: r}
	}
}

func (p *parser) parseAdditive() (Node, error) {
	l, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().Kind {
		case tokPlus:
			op = "+"
		case tokMinus:
			op = "-"
		default:
			return l, nil
		}
		p.next()
		r, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: op, L: l, R: r}
	}
}

func (p *parser) parseMultiplicative() (Node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.peek().Kind == tokStar:
			op = "*"
		case p.peek().Kind == tokSlash:
			op = "/"
		case p.keyword("div"):
			op = "div"
		case p.keyword("mod"):
			op = "mod"
		default:
			return l, nil
		}
		p.next()
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: op, L: l, R: r}
	}
}

func (p *parser) parseUnary() (Node, error) {
	switch {
	case p.keyword("not"):
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "not", X: x}, nil
	case p.peek().Kind == tokMinus:
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "-", X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Kind {
		case tokDot:
			p.next()
			name, err := p.expect(tokIdent)
			if err != nil {
				return nil, err
			}
			n = &Member{Target: n, Name: name.Text}
		case tokBang:
			p.next()
			call, err := p.parseCall(n)
			if err != nil {
				return nil, err
			}
			n = call
		default:
			return n, nil
		}
	}
}

// parseCall parses "name(args)" after the "!" of a call on target.
func (p *parser) parseCall(target Node) (Node, error) {
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	call := &Call{Target: target, Name: name.Text}
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	if p.peek().Kind == tokRParen {
		p.next()
		return call, nil
	}
	// Lambda form: ident "|" body
	if p.peek().Kind == tokIdent && p.toks[p.pos+1].Kind == tokPipe {
		call.Var = p.next().Text
		p.next()
		body, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		call.Args = []Node{body}
		switch {
		case p.keyword("desc"):
			p.next()
			call.Desc = true
		case p.keyword("asc"):
			p.next()
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return call, nil
	}
	for {
		arg, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if p.peek().Kind != tokComma {
			break
		}
		p.next()
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.peek()
	switch t.Kind {
	case tokNumber:
		p.next()
		v, err := numberLiteral(t.Text)
		if err != nil {
			return nil, &SyntaxError{Expr: p.src, Pos: t.Pos, Message: err.Error()}
		}
		return Literal{Value: v}, nil
	case tokMeasured:
		p.next()
		return MeasuredLiteral{Amount: t.Text, Unit: t.Unit}, nil
	case tokString:
		p.next()
		return Literal{Value: ir.String(t.Text)}, nil
	case tokTemporal:
		p.next()
		v, err := temporalLiteral(t.Text)
		if err != nil {
			return nil, &SyntaxError{Expr: p.src, Pos: t.Pos, Message: err.Error()}
		}
		return Literal{Value: v}, nil
	case tokHash:
		p.next()
		lit, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		return EnumLiteral{Literal: lit.Text}, nil
	case tokLParen:
		p.next()
		n, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return n, nil
	case tokIdent:
		p.next()
		switch strings.ToLower(t.Text) {
		case "true":
			return Literal{Value: ir.Bool(true)}, nil
		case "false":
			return Literal{Value: ir.Bool(false)}, nil
		case "self":
			return Self{}, nil
		}
		if p.peek().Kind == tokHash {
			p.next()
			lit, err := p.expect(tokIdent)
			if err != nil {
				return nil, err
			}
			return EnumLiteral{Enumeration: t.Text, Literal: lit.Text}, nil
		}
		return Ident{Name: t.Text}, nil
	}
	return nil, p.errorf("unexpected %s", describe(t))
}

func numberLiteral(text string) (ir.Value, error) {
	if !strings.Contains(text, ".") {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return ir.Integer(n), nil
		}
	}
	d, err := parseDecimal(text)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", text)
	}
	return ir.Decimal{Dec: d}, nil
}

// temporalLiteral classifies a backtick literal: Timestamp when it has a
// date and a time part, Date when it only has dashes, Time when it only has
// colons.
func temporalLiteral(text string) (ir.Value, error) {
	switch {
	case strings.ContainsAny(text, "Tt ") && strings.Contains(text, "-"):
		s := strings.Replace(text, " ", "T", 1)
		ts, err := ir.ParseTimestamp(s)
		if err != nil {
			// Timestamps without a zone are UTC.
			if ts, err = ir.ParseTimestamp(s + "Z"); err != nil {
				return nil, fmt.Errorf("invalid timestamp %q", text)
			}
		}
		return ts, nil
	case strings.Contains(text, "-"):
		d, err := ir.ParseDate(text)
		if err != nil {
			return nil, err
		}
		return d, nil
	case strings.Contains(text, ":"):
		t, err := ir.ParseTime(text)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, fmt.Errorf("invalid temporal literal %q", text)
}
