// Package money holds fixed-point currency amounts in minor units (cents).
//
// Ratios and proportional allocations go through shopspring/decimal and are
// rounded half-up to a whole cent; callers that split an amount get the
// residual back explicitly so nothing is created or lost.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is an amount of currency in minor units.
type Cents int64

const centsPerUnit = 100

var hundred = decimal.NewFromInt(centsPerUnit)

// ErrOutOfRange is returned when an amount does not fit in Cents.
var ErrOutOfRange = errors.New("money: amount out of range")

// FromUnits converts whole currency units into Cents.
func FromUnits(units int64) Cents { return Cents(units * centsPerUnit) }

// FromDecimal converts a major-unit decimal (e.g. 12.345) into Cents, rounding
// half-up. It fails with ErrOutOfRange instead of wrapping past int64.
func FromDecimal(d decimal.Decimal) (Cents, error) {
	minor := d.Mul(hundred).Round(0)
	if !minor.BigInt().IsInt64() {
		return 0, ErrOutOfRange
	}
	return Cents(minor.IntPart()), nil
}

// Parse reads a major-unit string such as "1000" or "12.50".
func Parse(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	c, err := FromDecimal(d)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return c, nil
}

// Decimal returns the amount in major units.
func (c Cents) Decimal() decimal.Decimal { return decimal.New(int64(c), -2) }

func (c Cents) String() string { return c.Decimal().StringFixed(2) }

// Mul scales c by ratio, rounding half-up to the cent.
func (c Cents) Mul(ratio decimal.Decimal) Cents {
	return Cents(decimal.NewFromInt(int64(c)).Mul(ratio).Round(0).IntPart())
}

// MulDown scales c by ratio, truncating toward zero.
func (c Cents) MulDown(ratio decimal.Decimal) Cents {
	return Cents(decimal.NewFromInt(int64(c)).Mul(ratio).Truncate(0).IntPart())
}

// FloorUnits drops the fractional cents below a whole currency unit.
func (c Cents) FloorUnits() Cents {
	whole := decimal.NewFromInt(int64(c)).Div(hundred).Floor().IntPart()
	return Cents(whole * centsPerUnit)
}

// Prorate returns c × num / den rounded half-up. den must be non-zero.
func (c Cents) Prorate(num, den Cents) Cents {
	r := decimal.NewFromInt(int64(num)).Div(decimal.NewFromInt(int64(den)))
	return c.Mul(r)
}

// Portion returns c × part / whole rounded half-up. whole must be positive.
func (c Cents) Portion(part, whole int64) Cents {
	q := decimal.NewFromInt(int64(c)).Mul(decimal.NewFromInt(part)).Div(decimal.NewFromInt(whole))
	return Cents(q.Round(0).IntPart())
}

// Allot returns the floor of c × part / whole. Summing Allot over parts that
// add up to whole never exceeds c. whole must be positive.
func (c Cents) Allot(part, whole int64) Cents {
	q := decimal.NewFromInt(int64(c)).Mul(decimal.NewFromInt(part)).Div(decimal.NewFromInt(whole))
	return Cents(q.Floor().IntPart())
}

// Split divides total into a share of ratio and the remainder, so that
// share + rest == total always holds.
func Split(total Cents, ratio decimal.Decimal) (share, rest Cents) {
	share = total.Mul(ratio)
	return share, total - share
}

func Min(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}

func Max(a, b Cents) Cents {
	if a > b {
		return a
	}
	return b
}
