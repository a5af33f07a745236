package money

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidRate = errors.New("invalid exchange rate")

// Pair identifies a conversion direction: one unit of From buys Rate units of To.
type Pair struct {
	From Currency
	To   Currency
}

func (p Pair) String() string {
	return string(p.From) + "/" + string(p.To)
}

// Rate is one configured entry, as listed by Converter.Rates.
type Rate struct {
	Pair Pair            `json:"pair"`
	Rate decimal.Decimal `json:"rate"`
}

// Converter converts between currencies with a fixed rate table supplied
// at construction.
type Converter struct {
	rates map[Pair]decimal.Decimal
}

func NewConverter(rates map[Pair]decimal.Decimal) (*Converter, error) {
	table := make(map[Pair]decimal.Decimal, len(rates))
	for pair, rate := range rates {
		if !pair.From.Valid() || !pair.To.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, pair)
		}
		if rate.Sign() <= 0 {
			return nil, fmt.Errorf("%w: %s=%s", ErrInvalidRate, pair, rate)
		}
		table[pair] = rate
	}
	return &Converter{rates: table}, nil
}

// Convert returns m expressed in target. A pair that is only configured in
// the opposite direction is converted with the reciprocal rate.
func (c *Converter) Convert(m Money, target Currency) (Money, error) {
	if m.Currency == target {
		return m, nil
	}
	if rate, ok := c.rates[Pair{From: m.Currency, To: target}]; ok {
		return New(m.Amount.Mul(rate), target), nil
	}
	if rate, ok := c.rates[Pair{From: target, To: m.Currency}]; ok {
		return New(m.Amount.Div(rate), target), nil
	}
	return Money{}, fmt.Errorf("%w: no rate for %s/%s", ErrUnsupportedCurrency, m.Currency, target)
}

// Supports reports whether Convert can produce target from source.
func (c *Converter) Supports(source, target Currency) bool {
	if source == target {
		return true
	}
	_, direct := c.rates[Pair{From: source, To: target}]
	_, reverse := c.rates[Pair{From: target, To: source}]
	return direct || reverse
}

// Rates lists the configured table ordered by pair.
func (c *Converter) Rates() []Rate {
	out := make([]Rate, 0, len(c.rates))
	for pair, rate := range c.rates {
		out = append(out, Rate{Pair: pair, Rate: rate})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Pair.String() < out[j].Pair.String()
	})
	return out
}

// ParseRates reads a comma separated list like "USD/TWD=32,EUR/USD=1.08".
func ParseRates(s string) (map[Pair]decimal.Decimal, error) {
	rates := make(map[Pair]decimal.Decimal)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		pairText, rateText, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRate, entry)
		}
		pair, err := ParsePair(pairText)
		if err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(rateText))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRate, entry)
		}
		rates[pair] = rate
	}
	return rates, nil
}

// ParsePair reads "USD/TWD".
func ParsePair(s string) (Pair, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Pair{}, fmt.Errorf("%w: pair %q", ErrInvalidRate, s)
	}
	f, err := ParseCurrency(from)
	if err != nil {
		return Pair{}, err
	}
	t, err := ParseCurrency(to)
	if err != nil {
		return Pair{}, err
	}
	return Pair{From: f, To: t}, nil
}
