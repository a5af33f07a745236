// Package money implements fixed-point currency amounts and the conversion
// between them. Amounts are always held as whole minor units of their
// currency, so sums never drift.
package money

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInvalidDivisor      = errors.New("divisor must be at least 1")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// Money is an amount in a single currency.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// New rounds amount to the currency's minor unit.
func New(amount decimal.Decimal, c Currency) Money {
	return Money{Amount: amount.Round(c.Digits()), Currency: c}
}

// FromMinor builds a value from an integer number of minor units (cents).
func FromMinor(units int64, c Currency) Money {
	return Money{Amount: decimal.New(units, -c.Digits()), Currency: c}
}

// Parse reads a decimal string such as "12.50".
func Parse(amount string, c Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return New(d, c), nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(amount string, c Currency) Money {
	m, err := Parse(amount, c)
	if err != nil {
		panic(err)
	}
	return m
}

func Zero(c Currency) Money {
	return Money{Amount: decimal.Zero, Currency: c}
}

// Minor returns the amount in minor units.
func (m Money) Minor() int64 {
	return m.Amount.Shift(m.Currency.Digits()).IntPart()
}

func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, mismatch(m, o)
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, mismatch(m, o)
	}
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}, nil
}

// Multiply scales by a decimal factor and rounds back to the minor unit.
func (m Money) Multiply(factor decimal.Decimal) Money {
	return New(m.Amount.Mul(factor), m.Currency)
}

// Divide splits m into n shares whose sum is exactly m. The rounding
// remainder, in minor units, goes one unit each to the first shares.
func (m Money) Divide(n int) ([]Money, error) {
	if n < 1 {
		return nil, ErrInvalidDivisor
	}
	d := m.Currency.Digits()
	units := m.Amount.Shift(d)
	count := decimal.NewFromInt(int64(n))
	base := units.Div(count).Truncate(0)
	rem := units.Sub(base.Mul(count)).IntPart()

	step := decimal.NewFromInt(1)
	if rem < 0 {
		step = step.Neg()
		rem = -rem
	}

	shares := make([]Money, n)
	for i := range shares {
		share := base
		if int64(i) < rem {
			share = share.Add(step)
		}
		shares[i] = Money{Amount: share.Shift(-d), Currency: m.Currency}
	}
	return shares, nil
}

// Compare returns -1, 0 or 1.
func (m Money) Compare(o Money) (int, error) {
	if m.Currency != o.Currency {
		return 0, mismatch(m, o)
	}
	return m.Amount.Cmp(o.Amount), nil
}

// Equal reports whether both the currency and the amount match.
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

func (m Money) IsZero() bool { return m.Amount.IsZero() }

func (m Money) Sign() int { return m.Amount.Sign() }

func (m Money) Abs() Money { return Money{Amount: m.Amount.Abs(), Currency: m.Currency} }

func (m Money) Neg() Money { return Money{Amount: m.Amount.Neg(), Currency: m.Currency} }

// StringFixed formats the amount with the currency's number of decimals.
func (m Money) StringFixed() string {
	return m.Amount.StringFixed(m.Currency.Digits())
}

func (m Money) String() string {
	return string(m.Currency) + " " + m.StringFixed()
}

// Display is the symbol form used in notifications, e.g. "NT$320.00".
func (m Money) Display() string {
	if m.Sign() < 0 {
		return "-" + m.Currency.Symbol() + m.Abs().StringFixed()
	}
	return m.Currency.Symbol() + m.StringFixed()
}

// Sum adds values that must all be in currency c.
func Sum(c Currency, values ...Money) (Money, error) {
	total := Zero(c)
	for _, v := range values {
		var err error
		if total, err = total.Add(v); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

type moneyJSON struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}{m.StringFixed(), string(m.Currency)})
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c, err := ParseCurrency(raw.Currency)
	if err != nil {
		return err
	}
	*m = New(raw.Amount, c)
	return nil
}

func mismatch(a, b Money) error {
	return fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, a.Currency, b.Currency)
}
