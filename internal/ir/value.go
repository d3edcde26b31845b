package ir

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Value is a sealed interface over the closed set of payload values.
// Only the types in this file (plus *Payload) implement it, so consumers can
// switch exhaustively on the variant.
//
// Null doubles as "undefined" in expression evaluation.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null is the absent/undefined value.
type Null struct{}

func (Null) value() {}

// String is a text value.
type String string

func (String) value() {}

// Integer is a business integer (numeric type with scale 0).
type Integer int64

func (Integer) value() {}

// Decimal is a business decimal. The wrapped decimal is treated as
// immutable: operations always allocate a new one.
type Decimal struct {
	Dec *apd.Decimal
}

func (Decimal) value() {}

// Count is the unscaled result of count()-style aggregates.
// It never widens into Integer or Decimal on assignment; arithmetic with a
// Count produces a business numeric.
type Count int64

func (Count) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Date is a calendar date. The wrapped time is midnight UTC.
type Date struct {
	time.Time
}

func (Date) value() {}

// Time is a time of day, stored as the offset since midnight.
type Time struct {
	Offset time.Duration
}

func (Time) value() {}

// Timestamp is an instant, always normalised to UTC.
type Timestamp struct {
	time.Time
}

func (Timestamp) value() {}

// Enum is an enumeration literal.
type Enum struct {
	Enumeration string
	Literal     string
	Ordinal     int
}

func (Enum) value() {}

// Measured is an amount expressed in a unit of a measure.
// Unit is the unit name as registered in the schema graph.
type Measured struct {
	Amount *apd.Decimal
	Unit   string
}

func (Measured) value() {}

// Collection is an ordered list of values.
type Collection []Value

func (Collection) value() {}

// Instance is a handle to a persisted instance used during evaluation.
// Type is the most specific type name; Attrs holds stored attribute values.
type Instance struct {
	Type    string
	ID      string
	Version int64
	Created time.Time
	Updated time.Time
	Attrs   *Payload
}

func (*Instance) value() {}

// NewDate truncates t to its calendar date in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// TimeOf returns the time of day of t.
func TimeOf(t time.Time) Time {
	h, m, s := t.Clock()
	return Time{Offset: time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())}
}

// NewTimestamp normalises t to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC()}
}

// NewDecimal parses a decimal literal. It panics on malformed input and is
// meant for constants and tests.
func NewDecimal(s string) Decimal {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("ir: invalid decimal %q: %v", s, err))
	}
	return Decimal{Dec: d}
}

// NewMeasured parses amount and pairs it with unit. Panics on malformed
// amount, like NewDecimal.
func NewMeasured(amount, unit string) Measured {
	return Measured{Amount: NewDecimal(amount).Dec, Unit: unit}
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal reports structural equality. Numbers compare by value regardless of
// variant; instances compare by identifier.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	if x, ok := AsDecimal(a); ok {
		if y, ok := AsDecimal(b); ok {
			return x.Cmp(y) == 0
		}
		return false
	}
	switch x := a.(type) {
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Date:
		y, ok := b.(Date)
		return ok && x.Equal(y.Time)
	case Time:
		y, ok := b.(Time)
		return ok && x.Offset == y.Offset
	case Timestamp:
		y, ok := b.(Timestamp)
		return ok && x.Equal(y.Time)
	case Enum:
		y, ok := b.(Enum)
		return ok && x.Literal == y.Literal && (x.Enumeration == y.Enumeration || x.Enumeration == "" || y.Enumeration == "")
	case Measured:
		y, ok := b.(Measured)
		return ok && x.Unit == y.Unit && x.Amount.Cmp(y.Amount) == 0
	case *Instance:
		y, ok := b.(*Instance)
		return ok && x.ID == y.ID
	case Collection:
		y, ok := b.(Collection)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case *Payload:
		y, ok := b.(*Payload)
		return ok && x.Equal(y)
	}
	return false
}

// AsDecimal widens Integer, Decimal and Count to a decimal.
func AsDecimal(v Value) (*apd.Decimal, bool) {
	switch n := v.(type) {
	case Integer:
		return apd.New(int64(n), 0), true
	case Count:
		return apd.New(int64(n), 0), true
	case Decimal:
		if n.Dec == nil {
			return nil, false
		}
		return n.Dec, true
	}
	return nil, false
}

// KindName returns a short, stable name of the variant for messages.
func KindName(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "undefined"
	case String:
		return "string"
	case Integer:
		return "integer"
	case Decimal:
		return "decimal"
	case Count:
		return "count"
	case Bool:
		return "boolean"
	case Date:
		return "date"
	case Time:
		return "time"
	case Timestamp:
		return "timestamp"
	case Enum:
		return "enum"
	case Measured:
		return "measured"
	case Collection:
		return "collection"
	case *Payload:
		return "payload"
	case *Instance:
		return "instance"
	}
	return fmt.Sprintf("%T", v)
}

// Format renders v for diagnostics and text output.
func Format(v Value) string {
	switch x := v.(type) {
	case nil, Null:
		return "<undefined>"
	case String:
		return string(x)
	case Integer:
		return fmt.Sprintf("%d", int64(x))
	case Count:
		return fmt.Sprintf("%d", int64(x))
	case Decimal:
		return x.Dec.Text('f')
	case Bool:
		if x {
			return "true"
		}
		return "false"
	case Date:
		return x.Format(DateLayout)
	case Time:
		return FormatTime(x)
	case Timestamp:
		return x.Format(TimestampLayout)
	case Enum:
		if x.Enumeration == "" {
			return "#" + x.Literal
		}
		return x.Enumeration + "#" + x.Literal
	case Measured:
		return x.Amount.Text('f') + "[" + x.Unit + "]"
	case Collection:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = Format(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Payload:
		b, err := x.MarshalJSON()
		if err != nil {
			return "<payload>"
		}
		return string(b)
	case *Instance:
		return x.Type + "(" + x.ID + ")"
	}
	return fmt.Sprintf("%v", v)
}

// Layouts used for textual date/time values.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
	// TimestampLayout is fixed width so lexical order equals chronological
	// order for UTC values.
	TimestampLayout = "2006-01-02T15:04:05.000000000Z"
)

// FormatTime renders a time of day as HH:MM:SS[.fffffffff].
func FormatTime(t Time) string {
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(t.Offset)
	if base.Nanosecond() == 0 {
		return base.Format(TimeLayout)
	}
	return base.Format("15:04:05.999999999")
}

// ParseTime parses HH:MM[:SS[.fff]] into a time of day.
func ParseTime(s string) (Time, error) {
	for _, layout := range []string{"15:04:05.999999999", TimeLayout, "15:04"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return TimeOf(t), nil
		}
	}
	return Time{}, fmt.Errorf("invalid time %q", s)
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return Date{t}, nil
}

// ParseTimestamp accepts RFC 3339 with optional fractional seconds.
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return NewTimestamp(t), nil
}
