package dao

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/unicode/norm"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/measure"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

// toStored converts a payload value to the JSON form kept in the attrs
// column. Null converts to nil, which removes the key on update.
//
// Numbers are fitted to the attribute's precision and scale; measured
// amounts are converted to the store unit first. Strings are NFC
// normalised.
func toStored(g *schema.Graph, dt schema.DataType, v ir.Value) (any, error) {
	if ir.IsNull(v) {
		return nil, nil
	}
	switch dt.Kind {
	case schema.DataString:
		s, ok := v.(ir.String)
		if !ok {
			return nil, kindError(dt, v)
		}
		out := norm.NFC.String(string(s))
		if dt.MaxLength > 0 && utf8.RuneCountInString(out) > dt.MaxLength {
			return nil, fmt.Errorf("%d characters exceed max length %d", utf8.RuneCountInString(out), dt.MaxLength)
		}
		return out, nil

	case schema.DataNumeric:
		d, ok := ir.AsDecimal(v)
		if !ok {
			return nil, kindError(dt, v)
		}
		return storedNumber(dt, d)

	case schema.DataMeasured:
		d, err := storeUnitAmount(g, dt, v)
		if err != nil {
			return nil, err
		}
		return storedNumber(dt, d)

	case schema.DataBoolean:
		b, ok := v.(ir.Bool)
		if !ok {
			return nil, kindError(dt, v)
		}
		return bool(b), nil

	case schema.DataDate:
		switch x := v.(type) {
		case ir.Date:
			return ir.Format(x), nil
		case ir.String:
			d, err := ir.ParseDate(string(x))
			if err != nil {
				return nil, err
			}
			return ir.Format(d), nil
		}
		return nil, kindError(dt, v)

	case schema.DataTime:
		switch x := v.(type) {
		case ir.Time:
			return ir.FormatTime(x), nil
		case ir.String:
			t, err := ir.ParseTime(string(x))
			if err != nil {
				return nil, err
			}
			return ir.FormatTime(t), nil
		}
		return nil, kindError(dt, v)

	case schema.DataTimestamp:
		switch x := v.(type) {
		case ir.Timestamp:
			return ir.Format(ir.NewTimestamp(x.Time)), nil
		case ir.String:
			ts, err := ir.ParseTimestamp(string(x))
			if err != nil {
				return nil, err
			}
			return ir.Format(ts), nil
		}
		return nil, kindError(dt, v)

	case schema.DataEnum:
		e, ok := g.Enumeration(dt.Enumeration)
		if !ok {
			return nil, fmt.Errorf("unknown enumeration %s", dt.Enumeration)
		}
		var literal string
		switch x := v.(type) {
		case ir.Enum:
			if x.Enumeration != "" && x.Enumeration != e.Name {
				return nil, fmt.Errorf("literal of %s assigned to %s", x.Enumeration, e.Name)
			}
			literal = x.Literal
		case ir.String:
			literal = string(x)
		default:
			return nil, kindError(dt, v)
		}
		if e.Ordinal(literal) < 0 {
			return nil, fmt.Errorf("enumeration %s has no literal %s", e.Name, literal)
		}
		return literal, nil
	}
	return nil, fmt.Errorf("unsupported data type %s", dt.Name)
}

func kindError(dt schema.DataType, v ir.Value) error {
	return fmt.Errorf("%s value for %s attribute", ir.KindName(v), dt.Name)
}

// storeUnitAmount converts a measured or plain numeric value to an amount
// in the attribute's store unit. Plain numbers are taken as store-unit
// amounts.
func storeUnitAmount(g *schema.Graph, dt schema.DataType, v ir.Value) (*apd.Decimal, error) {
	if d, ok := ir.AsDecimal(v); ok {
		return d, nil
	}
	m, ok := v.(ir.Measured)
	if !ok {
		return nil, kindError(dt, v)
	}
	from, ok := g.Unit(m.Unit)
	if !ok {
		return nil, fmt.Errorf("unknown unit %s", m.Unit)
	}
	if from.Measure != dt.Measure {
		return nil, fmt.Errorf("unit %s is not a unit of %s", from.Name, dt.Measure)
	}
	to, ok := g.Unit(dt.Unit)
	if !ok {
		return nil, fmt.Errorf("unknown unit %s", dt.Unit)
	}
	return measure.Convert(m.Amount, from.Rate, to.Rate)
}

func storedNumber(dt schema.DataType, d *apd.Decimal) (any, error) {
	fitted, err := measure.Fit(d, dt.Precision, dt.Scale)
	if err != nil {
		return nil, err
	}
	if dt.IsInteger() {
		return measure.Int64(fitted)
	}
	return json.Number(fitted.Text('f')), nil
}

// fromStored converts a value read from the attrs column back to a typed
// value. Unknown shapes are corruption, not user error.
func fromStored(g *schema.Graph, dt schema.DataType, raw any) (ir.Value, error) {
	if raw == nil {
		return ir.Null{}, nil
	}
	switch dt.Kind {
	case schema.DataString:
		if s, ok := raw.(string); ok {
			return ir.String(s), nil
		}
	case schema.DataNumeric, schema.DataMeasured:
		d, err := storedDecimal(raw)
		if err != nil {
			return nil, err
		}
		if dt.Kind == schema.DataMeasured {
			return ir.Measured{Amount: d, Unit: dt.Unit}, nil
		}
		if dt.IsInteger() {
			n, err := measure.Int64(d)
			if err != nil {
				return nil, err
			}
			return ir.Integer(n), nil
		}
		return ir.Decimal{Dec: d}, nil
	case schema.DataBoolean:
		if b, ok := raw.(bool); ok {
			return ir.Bool(b), nil
		}
	case schema.DataDate:
		if s, ok := raw.(string); ok {
			return ir.ParseDate(s)
		}
	case schema.DataTime:
		if s, ok := raw.(string); ok {
			return ir.ParseTime(s)
		}
	case schema.DataTimestamp:
		if s, ok := raw.(string); ok {
			return ir.ParseTimestamp(s)
		}
	case schema.DataEnum:
		if s, ok := raw.(string); ok {
			e, ok := g.Enumeration(dt.Enumeration)
			if !ok {
				return nil, fmt.Errorf("unknown enumeration %s", dt.Enumeration)
			}
			ord := e.Ordinal(s)
			if ord < 0 {
				return nil, fmt.Errorf("enumeration %s has no literal %s", e.Name, s)
			}
			return ir.Enum{Enumeration: e.Name, Literal: s, Ordinal: ord}, nil
		}
	}
	return nil, fmt.Errorf("stored %T is not a %s", raw, dt.Name)
}

func storedDecimal(raw any) (*apd.Decimal, error) {
	var text string
	switch n := raw.(type) {
	case json.Number:
		text = n.String()
	case string:
		text = n
	case int64:
		return apd.New(n, 0), nil
	case float64:
		text = fmt.Sprintf("%v", n)
	default:
		return nil, fmt.Errorf("stored %T is not a number", raw)
	}
	d, _, err := apd.NewFromString(text)
	if err != nil {
		return nil, fmt.Errorf("stored number %q: %w", text, err)
	}
	return d, nil
}

// coerceDerived converts a computed measured value to the attribute's
// store unit so derived and stored values read alike.
func coerceDerived(g *schema.Graph, dt schema.DataType, v ir.Value) ir.Value {
	m, ok := v.(ir.Measured)
	if !ok || dt.Kind != schema.DataMeasured || m.Unit == dt.Unit {
		return v
	}
	d, err := storeUnitAmount(g, dt, m)
	if err != nil {
		return v
	}
	if fitted, err := measure.Fit(d, dt.Precision, dt.Scale); err == nil {
		d = fitted
	}
	return ir.Measured{Amount: d, Unit: dt.Unit}
}
