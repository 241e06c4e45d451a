package inventory

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in the smallest currency subunit. All price arithmetic
// stays in integers; decimal is only used where a division has to be rounded.
type Money int64

var CurrencySymbol = "₫"

// NewMoneyFromStr parses an amount as typed or as printed by String. Dots and
// commas are both thousand separators since the currency has no subunit.
func NewMoneyFromStr(str string) (Money, error) {
	str = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(str), CurrencySymbol))
	str = strings.NewReplacer(",", "", ".", "", " ", "").Replace(str)
	d, err := decimal.NewFromString(str)
	if err != nil {
		return 0, err
	}
	return Money(d.IntPart()), nil
}

// UnmarshalJSON accepts a JSON number, rounded to a whole amount, or a string
// in any form NewMoneyFromStr reads.
func (m *Money) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := NewMoneyFromStr(s)
		if err != nil {
			return err
		}
		*m = v
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return err
	}
	*m = Money(d.Round(0).IntPart())
	return nil
}

// Multiply returns m * qty.
func (m Money) Multiply(qty int64) Money {
	return Money(int64(m) * qty)
}

// DivRound divides m by divisor and rounds half up to the nearest minor unit.
func (m Money) DivRound(divisor int64) Money {
	if divisor == 0 {
		return 0
	}
	q := decimal.NewFromInt(int64(m)).Div(decimal.NewFromInt(divisor))
	return Money(q.Round(0).IntPart())
}

// String formats with dot thousand separators, e.g. "175.000 ₫".
func (m Money) String() string {
	s := decimal.NewFromInt(int64(m)).Abs().String()
	var b strings.Builder
	if m < 0 {
		b.WriteByte('-')
	}
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	b.WriteString(" ")
	b.WriteString(CurrencySymbol)
	return b.String()
}

func (m *Money) Scan(src any) error {
	iSrc, ok := src.(int64)
	if !ok {
		return errors.New("src must be int64")
	}
	*m = Money(iSrc)
	return nil
}

func (m Money) Value() (driver.Value, error) {
	return int64(m), nil
}
