package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces canonical JSON for traces and golden files.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units, not UTF-8 bytes
//  2. No HTML escaping
//  3. Strings are NFC normalized
//  4. Decimals are written as plain numbers without exponent
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		return writeCanonicalString(buf, string(val))
	case Integer:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Count:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Decimal:
		if val.Dec == nil {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(val.Dec.Text('f'))
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case Date, Time, Timestamp, Enum:
		return writeCanonicalString(buf, Format(val))
	case Measured:
		buf.WriteString(`{"amount":`)
		buf.WriteString(val.Amount.Text('f'))
		buf.WriteString(`,"unit":`)
		return writeCanonicalStringThen(buf, val.Unit, '}')
	case Collection:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case *Payload:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val.values[k]); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
		buf.WriteByte('}')
	case *Instance:
		return writeCanonicalString(buf, val.ID)
	default:
		return fmt.Errorf("unsupported value for canonical JSON: %T", v)
	}
	return nil
}

func writeCanonicalStringThen(buf *bytes.Buffer, s string, tail byte) error {
	if err := writeCanonicalString(buf, s); err != nil {
		return err
	}
	buf.WriteByte(tail)
	return nil
}

// writeCanonicalString writes s NFC-normalised with only control
// characters, backslash and quote escaped.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'})
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators undoes encoding/json's escaping of U+2028 and
// U+2029. A sequence preceded by an odd number of backslashes is a literal
// "\\u2028" text and stays as is.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+1 < len(data) && data[i+1] == '\\' {
			out = append(out, '\\', '\\')
			i++
			continue
		}
		if bytes.HasPrefix(data[i:], []byte(`\u2028`)) {
			out = append(out, "\u2028"...)
			i += 5
			continue
		}
		if bytes.HasPrefix(data[i:], []byte(`\u2029`)) {
			out = append(out, "\u2029"...)
			i += 5
			continue
		}
		out = append(out, data[i])
	}
	return out
}

// ToJSON converts v into a value encoding/json renders faithfully.
// Payloads keep insertion order; decimals become json.Number.
func ToJSON(v Value) any {
	switch x := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(x)
	case Integer:
		return int64(x)
	case Count:
		return int64(x)
	case Decimal:
		if x.Dec == nil {
			return nil
		}
		return json.Number(x.Dec.Text('f'))
	case Bool:
		return bool(x)
	case Date, Time, Timestamp:
		return Format(x)
	case Enum:
		return x.Literal
	case Measured:
		return map[string]any{"amount": json.Number(x.Amount.Text('f')), "unit": x.Unit}
	case Collection:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = ToJSON(e)
		}
		return out
	case *Payload:
		return x
	case *Instance:
		return x.ID
	}
	return nil
}

// FromAny converts plain Go values (as produced by encoding/json, yaml.v3 or
// literals in tests) into payload values. Map keys are sorted so the result
// is deterministic.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case int:
		return Integer(x), nil
	case int64:
		return Integer(x), nil
	case int32:
		return Integer(x), nil
	case uint64:
		return Integer(int64(x)), nil
	case float64:
		return floatValue(x)
	case float32:
		return floatValue(float64(x))
	case bool:
		return Bool(x), nil
	case json.Number:
		return numberValue(string(x))
	case *apd.Decimal:
		return Decimal{Dec: x}, nil
	case time.Time:
		return NewTimestamp(x), nil
	case []any:
		c := make(Collection, len(x))
		for i, e := range x {
			ev, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			c[i] = ev
		}
		return c, nil
	case []string:
		c := make(Collection, len(x))
		for i, e := range x {
			c[i] = String(e)
		}
		return c, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		p := NewPayload()
		for _, k := range keys {
			ev, err := FromAny(x[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			p.Set(k, ev)
		}
		return p, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func floatValue(f float64) (Value, error) {
	if f == float64(int64(f)) {
		return Integer(int64(f)), nil
	}
	d, _, err := parseDecimal(strconv.FormatFloat(f, 'f', -1, 64))
	return d, err
}

func parseDecimal(s string) (Decimal, apd.Condition, error) {
	d, c, err := apd.NewFromString(s)
	if err != nil {
		return Decimal{}, c, err
	}
	return Decimal{Dec: d}, c, nil
}
