// Package decimal wraps apd fixed-point decimals with the value semantics and
// JSON encoding the scoring protocol uses. Marks travel over the wire as JSON
// numbers, never as strings.
package decimal

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Precision is the number of significant digits kept by every operation.
const Precision = 34

// ErrDivisionByZero is returned by Quo when the divisor is zero.
var ErrDivisionByZero = errors.New("decimal: division by zero")

var ctx = apd.BaseContext.WithPrecision(Precision)

// Decimal is an immutable fixed-point number. Operations always allocate a
// fresh result, so values may be copied freely.
type Decimal struct {
	d apd.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{}

// New returns coeff * 10^exp.
func New(coeff int64, exp int32) Decimal {
	var r Decimal
	r.d.SetFinite(coeff, exp)
	return r
}

// FromInt returns the decimal form of an integer.
func FromInt(v int64) Decimal {
	return New(v, 0)
}

// Parse reads a plain decimal literal such as "7.5" or "-0.25".
func Parse(s string) (Decimal, error) {
	var r Decimal
	if _, _, err := r.d.SetString(s); err != nil {
		return Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	if r.d.Form != apd.Finite {
		return Decimal{}, fmt.Errorf("parse decimal %q: not a finite number", s)
	}
	return r, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Decimal {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Add returns d + x.
func (d Decimal) Add(x Decimal) Decimal {
	var r Decimal
	_, _ = ctx.Add(&r.d, &d.d, &x.d)
	return r
}

// Sub returns d - x.
func (d Decimal) Sub(x Decimal) Decimal {
	var r Decimal
	_, _ = ctx.Sub(&r.d, &d.d, &x.d)
	return r
}

// Mul returns d * x.
func (d Decimal) Mul(x Decimal) Decimal {
	var r Decimal
	_, _ = ctx.Mul(&r.d, &d.d, &x.d)
	return r
}

// Quo returns d / x with trailing zeros removed.
func (d Decimal) Quo(x Decimal) (Decimal, error) {
	if x.IsZero() {
		return Decimal{}, ErrDivisionByZero
	}
	var r Decimal
	if _, err := ctx.Quo(&r.d, &d.d, &x.d); err != nil {
		return Decimal{}, fmt.Errorf("quo: %w", err)
	}
	return r.Reduce(), nil
}

// Rem returns the remainder of d / x, truncated toward zero.
func (d Decimal) Rem(x Decimal) (Decimal, error) {
	if x.IsZero() {
		return Decimal{}, ErrDivisionByZero
	}
	var r Decimal
	if _, err := ctx.Rem(&r.d, &d.d, &x.d); err != nil {
		return Decimal{}, fmt.Errorf("rem: %w", err)
	}
	return r, nil
}

// Round returns d quantized to the given number of fractional digits using
// the rounding mode (for example apd.RoundCeiling).
func (d Decimal) Round(scale int32, rounding apd.Rounder) Decimal {
	c := ctx.WithPrecision(Precision)
	c.Rounding = rounding
	var r Decimal
	_, _ = c.Quantize(&r.d, &d.d, -scale)
	return r
}

// Reduce strips trailing zeros from the coefficient.
func (d Decimal) Reduce() Decimal {
	var r Decimal
	r.d.Reduce(&d.d)
	return r
}

// Scale is the number of digits after the decimal point, as written.
func (d Decimal) Scale() int32 {
	if d.d.Exponent >= 0 {
		return 0
	}
	return -d.d.Exponent
}

// Cmp compares d and x and returns -1, 0 or +1.
func (d Decimal) Cmp(x Decimal) int {
	return d.d.Cmp(&x.d)
}

// Equal reports whether d and x have the same numeric value.
func (d Decimal) Equal(x Decimal) bool {
	return d.Cmp(x) == 0
}

// IsZero reports whether d == 0.
func (d Decimal) IsZero() bool {
	return d.d.IsZero()
}

// Sign returns -1, 0 or +1.
func (d Decimal) Sign() int {
	return d.d.Sign()
}

// Float64 converts d for display code that needs a float.
func (d Decimal) Float64() float64 {
	f, _ := d.d.Float64()
	return f
}

// String formats d without exponent notation.
func (d Decimal) String() string {
	return d.d.Text('f')
}

// MarshalJSON encodes d as a JSON number.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	data = bytes.Trim(data, `"`)
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Sum adds every value in xs.
func Sum(xs []Decimal) Decimal {
	total := Zero
	for _, x := range xs {
		total = total.Add(x)
	}
	return total
}

// Ptr returns a pointer to a copy of d, for optional fields.
func Ptr(d Decimal) *Decimal {
	return &d
}
