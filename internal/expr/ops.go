package expr

import (
	"errors"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/measure"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

func unary(op string, v ir.Value) (ir.Value, error) {
	if ir.IsNull(v) {
		return ir.Null{}, nil
	}
	switch op {
	case "not":
		b, ok := v.(ir.Bool)
		if !ok {
			return nil, evalErrorf("not applied to %s", ir.KindName(v))
		}
		return !b, nil
	case "-":
		switch n := v.(type) {
		case ir.Integer:
			return -n, nil
		case ir.Count:
			return ir.Integer(-n), nil
		case ir.Decimal:
			return ir.Decimal{Dec: measure.Neg(n.Dec)}, nil
		case ir.Measured:
			return ir.Measured{Amount: measure.Neg(n.Amount), Unit: n.Unit}, nil
		}
		return nil, evalErrorf("cannot negate %s", ir.KindName(v))
	}
	return nil, evalErrorf("unknown unary operator %s", op)
}

func (f *frame) binary(op string, l, r ir.Value) (ir.Value, error) {
	if ir.IsNull(l) || ir.IsNull(r) {
		return ir.Null{}, nil
	}
	switch op {
	case "and", "or", "xor", "implies":
		return logical(op, l, r)
	case "==", "!=":
		eq, err := f.equal(l, r)
		if err != nil {
			return nil, err
		}
		return ir.Bool(eq == (op == "==")), nil
	case "<", "<=", ">", ">=":
		c, err := f.compare(l, r)
		if err != nil {
			return nil, err
		}
		switch op {
		case "<":
			return ir.Bool(c < 0), nil
		case "<=":
			return ir.Bool(c <= 0), nil
		case ">":
			return ir.Bool(c > 0), nil
		}
		return ir.Bool(c >= 0), nil
	}
	return f.arith(op, l, r)
}

func logical(op string, l, r ir.Value) (ir.Value, error) {
	a, ok := l.(ir.Bool)
	if !ok {
		return nil, evalErrorf("%s applied to %s", op, ir.KindName(l))
	}
	b, ok := r.(ir.Bool)
	if !ok {
		return nil, evalErrorf("%s applied to %s", op, ir.KindName(r))
	}
	switch op {
	case "and":
		return a && b, nil
	case "or":
		return a || b, nil
	case "xor":
		return ir.Bool(a != b), nil
	}
	return !a || b, nil
}

// equal compares two defined values. Kinds that cannot be compared are an
// error rather than false.
func (f *frame) equal(l, r ir.Value) (bool, error) {
	switch a := l.(type) {
	case *ir.Instance:
		b, ok := r.(*ir.Instance)
		if !ok {
			return false, mismatch("==", l, r)
		}
		return a.ID == b.ID, nil
	case ir.Enum:
		b, ok := r.(ir.Enum)
		if !ok {
			return false, mismatch("==", l, r)
		}
		if a.Enumeration != "" && b.Enumeration != "" && a.Enumeration != b.Enumeration {
			return false, evalErrorf("cannot compare %s with %s", a.Enumeration, b.Enumeration)
		}
		return a.Literal == b.Literal, nil
	case ir.Collection:
		b, ok := r.(ir.Collection)
		if !ok {
			return false, mismatch("==", l, r)
		}
		return ir.Equal(a, b), nil
	}
	c, err := f.compare(l, r)
	if err != nil {
		return false, err
	}
	return c == 0, nil
}

// compare orders two defined values of compatible kinds.
func (f *frame) compare(l, r ir.Value) (int, error) {
	if x, ok := ir.AsDecimal(l); ok {
		y, ok := ir.AsDecimal(r)
		if !ok {
			return 0, mismatch("compare", l, r)
		}
		return x.Cmp(y), nil
	}
	switch a := l.(type) {
	case ir.String:
		b, ok := r.(ir.String)
		if !ok {
			return 0, mismatch("compare", l, r)
		}
		return strings.Compare(string(a), string(b)), nil
	case ir.Bool:
		b, ok := r.(ir.Bool)
		if !ok {
			return 0, mismatch("compare", l, r)
		}
		switch {
		case a == b:
			return 0, nil
		case !bool(a):
			return -1, nil
		}
		return 1, nil
	case ir.Date:
		b, ok := r.(ir.Date)
		if !ok {
			return 0, mismatch("compare", l, r)
		}
		return a.Compare(b.Time), nil
	case ir.Timestamp:
		b, ok := r.(ir.Timestamp)
		if !ok {
			return 0, mismatch("compare", l, r)
		}
		return a.Compare(b.Time), nil
	case ir.Time:
		b, ok := r.(ir.Time)
		if !ok {
			return 0, mismatch("compare", l, r)
		}
		switch {
		case a.Offset < b.Offset:
			return -1, nil
		case a.Offset > b.Offset:
			return 1, nil
		}
		return 0, nil
	case ir.Enum:
		b, ok := r.(ir.Enum)
		if !ok {
			return 0, mismatch("compare", l, r)
		}
		x, y, err := f.ordinals(a, b)
		if err != nil {
			return 0, err
		}
		return x - y, nil
	case ir.Measured:
		b, ok := r.(ir.Measured)
		if !ok {
			return 0, mismatch("compare", l, r)
		}
		x, y, _, err := f.toCommonUnit(a, b)
		if err != nil {
			return 0, err
		}
		return x.Cmp(y), nil
	case *ir.Instance:
		b, ok := r.(*ir.Instance)
		if !ok {
			return 0, mismatch("compare", l, r)
		}
		return strings.Compare(a.ID, b.ID), nil
	}
	return 0, mismatch("compare", l, r)
}

func (f *frame) ordinals(a, b ir.Enum) (int, int, error) {
	name := a.Enumeration
	if name == "" {
		name = b.Enumeration
	}
	if a.Enumeration != "" && b.Enumeration != "" && a.Enumeration != b.Enumeration {
		return 0, 0, evalErrorf("cannot compare %s with %s", a.Enumeration, b.Enumeration)
	}
	x, y := a.Ordinal, b.Ordinal
	if x < 0 || y < 0 {
		e, ok := f.ev.graph.Enumeration(name)
		if !ok {
			return 0, 0, evalErrorf("cannot order literal #%s without an enumeration", a.Literal)
		}
		if x < 0 {
			x = e.Ordinal(a.Literal)
		}
		if y < 0 {
			y = e.Ordinal(b.Literal)
		}
		if x < 0 || y < 0 {
			return 0, 0, evalErrorf("unknown literal of %s", e.Name)
		}
	}
	return x, y, nil
}

func mismatch(op string, l, r ir.Value) *EvalError {
	return evalErrorf("cannot %s %s with %s", op, ir.KindName(l), ir.KindName(r))
}

func (f *frame) unitOf(m ir.Measured) (*schema.Unit, error) {
	u, ok := f.ev.graph.Unit(m.Unit)
	if !ok {
		return nil, evalErrorf("unknown unit %q", m.Unit)
	}
	return u, nil
}

// toCommonUnit returns both amounts in one unit: the shared unit when they
// already agree, the base unit of their measure otherwise.
func (f *frame) toCommonUnit(a, b ir.Measured) (*apd.Decimal, *apd.Decimal, string, error) {
	if a.Unit == b.Unit {
		return a.Amount, b.Amount, a.Unit, nil
	}
	ua, err := f.unitOf(a)
	if err != nil {
		return nil, nil, "", err
	}
	ub, err := f.unitOf(b)
	if err != nil {
		return nil, nil, "", err
	}
	if ua.Measure != ub.Measure {
		return nil, nil, "", evalErrorf("cannot combine %s (%s) with %s (%s)", ua.Name, ua.Measure, ub.Name, ub.Measure)
	}
	m, _ := f.ev.graph.Measure(ua.Measure)
	base := m.Base()
	if base == nil {
		return nil, nil, "", evalErrorf("measure %s has no base unit", m.Name)
	}
	x, err := measure.ToBase(a.Amount, ua.Rate)
	if err != nil {
		return nil, nil, "", arithError(err)
	}
	y, err := measure.ToBase(b.Amount, ub.Rate)
	if err != nil {
		return nil, nil, "", arithError(err)
	}
	return x, y, base.Name, nil
}

func (f *frame) arith(op string, l, r ir.Value) (ir.Value, error) {
	if a, ok := l.(ir.String); ok {
		b, ok := r.(ir.String)
		if !ok || op != "+" {
			return nil, mismatch(op, l, r)
		}
		return a + b, nil
	}
	ma, lm := l.(ir.Measured)
	mb, rm := r.(ir.Measured)
	switch {
	case lm && rm:
		return f.measuredArith(op, ma, mb)
	case lm:
		n, ok := ir.AsDecimal(r)
		if !ok || (op != "*" && op != "/") {
			return nil, mismatch(op, l, r)
		}
		amount, err := decimalOp(op, ma.Amount, n)
		if err != nil {
			return nil, err
		}
		return ir.Measured{Amount: amount, Unit: ma.Unit}, nil
	case rm:
		n, ok := ir.AsDecimal(l)
		if !ok || op != "*" {
			return nil, mismatch(op, l, r)
		}
		amount, err := decimalOp(op, n, mb.Amount)
		if err != nil {
			return nil, err
		}
		return ir.Measured{Amount: amount, Unit: mb.Unit}, nil
	}

	x, ok := ir.AsDecimal(l)
	if !ok {
		return nil, mismatch(op, l, r)
	}
	y, ok := ir.AsDecimal(r)
	if !ok {
		return nil, mismatch(op, l, r)
	}
	integral := isIntegral(l) && isIntegral(r)
	if (op == "div" || op == "mod") && !integral {
		return nil, evalErrorf("%s requires integers, got %s and %s", op, ir.KindName(l), ir.KindName(r))
	}
	out, err := decimalOp(op, x, y)
	if err != nil {
		return nil, err
	}
	if integral && op != "/" {
		if n, err := measure.Int64(out); err == nil {
			return ir.Integer(n), nil
		}
	}
	return ir.Decimal{Dec: out}, nil
}

func (f *frame) measuredArith(op string, a, b ir.Measured) (ir.Value, error) {
	switch op {
	case "+", "-", "/":
		x, y, unit, err := f.toCommonUnit(a, b)
		if err != nil {
			return nil, err
		}
		out, err := decimalOp(op, x, y)
		if err != nil {
			return nil, err
		}
		if op == "/" {
			return ir.Decimal{Dec: out}, nil
		}
		return ir.Measured{Amount: out, Unit: unit}, nil
	}
	return nil, mismatch(op, a, b)
}

func decimalOp(op string, x, y *apd.Decimal) (*apd.Decimal, error) {
	var (
		out *apd.Decimal
		err error
	)
	switch op {
	case "+":
		out, err = measure.Add(x, y)
	case "-":
		out, err = measure.Sub(x, y)
	case "*":
		out, err = measure.Mul(x, y)
	case "/":
		out, err = measure.Quo(x, y)
	case "div":
		out, err = measure.QuoInteger(x, y)
	case "mod":
		out, err = measure.Rem(x, y)
	default:
		return nil, evalErrorf("unknown operator %s", op)
	}
	if err != nil {
		return nil, arithError(err)
	}
	return out, nil
}

func arithError(err error) *EvalError {
	if errors.Is(err, measure.ErrDivisionByZero) {
		return &EvalError{Message: "division by zero", Err: err}
	}
	return &EvalError{Message: "arithmetic", Err: err}
}

func isIntegral(v ir.Value) bool {
	switch v.(type) {
	case ir.Integer, ir.Count:
		return true
	}
	return false
}
