package money

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 code.
type Currency string

const (
	USD Currency = "USD"
	TWD Currency = "TWD"
	EUR Currency = "EUR"
	INR Currency = "INR"
	JPY Currency = "JPY"
)

// minor unit digits per supported currency
var digits = map[Currency]int32{
	USD: 2,
	TWD: 2,
	EUR: 2,
	INR: 2,
	JPY: 0,
}

// ParseCurrency normalizes a code and checks that it is supported.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if _, ok := digits[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
	}
	return c, nil
}

// Digits is the number of decimal places of the currency's minor unit.
func (c Currency) Digits() int32 {
	if d, ok := digits[c]; ok {
		return d
	}
	return 2
}

func (c Currency) Valid() bool {
	_, ok := digits[c]
	return ok
}

// Symbol is used in human readable messages (notifications, e-mails).
func (c Currency) Symbol() string {
	switch c {
	case USD:
		return "$"
	case TWD:
		return "NT$"
	case EUR:
		return "€"
	case INR:
		return "₹"
	case JPY:
		return "¥"
	}
	return string(c) + " "
}

func (c Currency) String() string {
	return string(c)
}
