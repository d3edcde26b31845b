// Package measure implements decimal arithmetic for business numerics and
// measured values.
//
// All arithmetic uses one shared apd context with 34 significant digits and
// half-up rounding. Unit conversion is exact rational scaling: a unit with
// rate dividend/divisor converts an amount to the base unit as
// amount * dividend / divisor.
package measure

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Precision is the number of significant digits kept by intermediate results.
const Precision = 34

// Context is the shared arithmetic context. It is read-only after init.
var Context = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(Precision)
	c.Rounding = apd.RoundHalfUp
	return c
}()

// ErrDivisionByZero is returned by Quo, QuoInteger and Rem for a zero divisor.
var ErrDivisionByZero = errors.New("division by zero")

// ErrOverflow is returned when a value does not fit a precision/scale pair.
var ErrOverflow = errors.New("numeric overflow")

// Rate is the conversion factor of a unit relative to its measure's base
// unit. The zero Rate is treated as 1/1.
type Rate struct {
	Dividend *apd.Decimal
	Divisor  *apd.Decimal
}

// NewRate builds a rate from decimal literals. Empty strings mean 1.
func NewRate(dividend, divisor string) (Rate, error) {
	r := Rate{}
	var err error
	if dividend != "" {
		if r.Dividend, _, err = apd.NewFromString(dividend); err != nil {
			return Rate{}, fmt.Errorf("dividend %q: %w", dividend, err)
		}
	}
	if divisor != "" {
		if r.Divisor, _, err = apd.NewFromString(divisor); err != nil {
			return Rate{}, fmt.Errorf("divisor %q: %w", divisor, err)
		}
		if r.Divisor.IsZero() {
			return Rate{}, fmt.Errorf("divisor: %w", ErrDivisionByZero)
		}
	}
	return r, nil
}

// IsOne reports whether r is the identity rate of a base unit.
func (r Rate) IsOne() bool {
	var q apd.Decimal
	if _, err := Context.Quo(&q, r.dividend(), r.divisor()); err != nil {
		return false
	}
	return q.Cmp(apd.New(1, 0)) == 0
}

func (r Rate) dividend() *apd.Decimal {
	if r.Dividend == nil {
		return apd.New(1, 0)
	}
	return r.Dividend
}

func (r Rate) divisor() *apd.Decimal {
	if r.Divisor == nil {
		return apd.New(1, 0)
	}
	return r.Divisor
}

// ToBase converts amount expressed in a unit with rate r to the base unit.
func ToBase(amount *apd.Decimal, r Rate) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	if _, err := Context.Mul(out, amount, r.dividend()); err != nil {
		return nil, err
	}
	return Quo(out, r.divisor())
}

// FromBase converts a base-unit amount into a unit with rate r.
func FromBase(amount *apd.Decimal, r Rate) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	if _, err := Context.Mul(out, amount, r.divisor()); err != nil {
		return nil, err
	}
	return Quo(out, r.dividend())
}

// Convert converts amount from one unit to another of the same measure.
func Convert(amount *apd.Decimal, from, to Rate) (*apd.Decimal, error) {
	base, err := ToBase(amount, from)
	if err != nil {
		return nil, err
	}
	return FromBase(base, to)
}

// Add returns a + b.
func Add(a, b *apd.Decimal) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	_, err := Context.Add(out, a, b)
	return out, err
}

// Sub returns a - b.
func Sub(a, b *apd.Decimal) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	_, err := Context.Sub(out, a, b)
	return out, err
}

// Mul returns a * b.
func Mul(a, b *apd.Decimal) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	_, err := Context.Mul(out, a, b)
	return out, err
}

// Quo returns a / b rounded to Precision digits.
func Quo(a, b *apd.Decimal) (*apd.Decimal, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	out := new(apd.Decimal)
	if _, err := Context.Quo(out, a, b); err != nil {
		return nil, err
	}
	out.Reduce(out)
	return out, nil
}

// QuoInteger returns the integer part of a / b.
func QuoInteger(a, b *apd.Decimal) (*apd.Decimal, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	out := new(apd.Decimal)
	_, err := Context.QuoInteger(out, a, b)
	return out, err
}

// Rem returns the remainder of a / b with the sign of a.
func Rem(a, b *apd.Decimal) (*apd.Decimal, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	out := new(apd.Decimal)
	_, err := Context.Rem(out, a, b)
	return out, err
}

// Neg returns -a.
func Neg(a *apd.Decimal) *apd.Decimal {
	return new(apd.Decimal).Neg(a)
}

// Abs returns |a|.
func Abs(a *apd.Decimal) *apd.Decimal {
	return new(apd.Decimal).Abs(a)
}

// Round rounds a half-up to scale fractional digits.
func Round(a *apd.Decimal, scale int32) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	if _, err := Context.Quantize(out, a, -scale); err != nil {
		return nil, err
	}
	return out, nil
}

// Fit rounds a to scale and checks it has at most precision total digits.
// A precision of 0 disables the digit check.
func Fit(a *apd.Decimal, precision, scale int32) (*apd.Decimal, error) {
	out, err := Round(a, scale)
	if err != nil {
		return nil, err
	}
	if precision > 0 && !out.IsZero() {
		intDigits := int32(out.NumDigits()) + out.Exponent
		if intDigits > precision-scale {
			return nil, fmt.Errorf("%s exceeds precision %d scale %d: %w", a.Text('f'), precision, scale, ErrOverflow)
		}
	}
	return out, nil
}

// IsIntegral reports whether a has no fractional part.
func IsIntegral(a *apd.Decimal) bool {
	var frac apd.Decimal
	var integ apd.Decimal
	a.Modf(&integ, &frac)
	return frac.IsZero()
}

// Int64 converts an integral decimal to int64.
func Int64(a *apd.Decimal) (int64, error) {
	if !IsIntegral(a) {
		return 0, fmt.Errorf("%s is not integral", a.Text('f'))
	}
	var integ apd.Decimal
	if _, err := Context.RoundToIntegralValue(&integ, a); err != nil {
		return 0, err
	}
	return integ.Int64()
}
