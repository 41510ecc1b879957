// Package domain holds the value types exchanged between the trading
// terminal, the sessions and the money management: currencies, forex
// symbols, prices, money and volume.
package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidCurrency is returned for currency codes that are not three
	// ASCII letters.
	ErrInvalidCurrency = errors.New("invalid currency code")

	// ErrInvalidSymbol is returned for forex symbols that are not six letters.
	ErrInvalidSymbol = errors.New("invalid forex symbol")
)

// pipette is the smallest price step of a forex quote.
var pipette = decimal.New(1, -5)

// Currency is an upper case ISO 4217 code such as "EUR".
type Currency string

// ParseCurrency validates and normalizes a three letter currency code.
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("%w: %q must have exactly 3 letters", ErrInvalidCurrency, code)
	}

	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
		}
	}

	return Currency(code), nil
}

func (c Currency) String() string {
	return string(c)
}

// ForexSymbol is a currency pair like EURUSD: one unit of Base costs Quote.
type ForexSymbol struct {
	Base  Currency
	Quote Currency
}

// ParseForexSymbol parses a six letter pair such as "GBPUSD".
func ParseForexSymbol(name string) (ForexSymbol, error) {
	name = strings.TrimSpace(name)
	if len(name) != 6 {
		return ForexSymbol{}, fmt.Errorf("%w: a forex symbol must have exactly 6 letters but %q has %d",
			ErrInvalidSymbol, name, len(name))
	}

	base, err := ParseCurrency(name[:3])
	if err != nil {
		return ForexSymbol{}, fmt.Errorf("%w: %w", ErrInvalidSymbol, err)
	}

	quote, err := ParseCurrency(name[3:])
	if err != nil {
		return ForexSymbol{}, fmt.Errorf("%w: %w", ErrInvalidSymbol, err)
	}

	return ForexSymbol{Base: base, Quote: quote}, nil
}

// MustForexSymbol is ParseForexSymbol for constants; it panics on bad input.
func MustForexSymbol(name string) ForexSymbol {
	s, err := ParseForexSymbol(name)
	if err != nil {
		panic(err)
	}

	return s
}

// Inverse returns the pair with base and quote swapped.
func (s ForexSymbol) Inverse() ForexSymbol {
	return ForexSymbol{Base: s.Quote, Quote: s.Base}
}

func (s ForexSymbol) String() string {
	return string(s.Base) + string(s.Quote)
}

// Price is a quote or a price distance.
type Price struct {
	value decimal.Decimal
}

// NewPrice converts a float as received on the wire.
func NewPrice(v float64) Price {
	return Price{value: decimal.NewFromFloat(v)}
}

// PriceFromDecimal wraps an exact decimal value.
func PriceFromDecimal(d decimal.Decimal) Price {
	return Price{value: d}
}

// PriceFromPipettes builds a price distance of n pipettes.
func PriceFromPipettes(n int64) Price {
	return Price{value: decimal.NewFromInt(n).Mul(pipette)}
}

func (p Price) Decimal() decimal.Decimal {
	return p.value
}

func (p Price) Float64() float64 {
	f, _ := p.value.Float64()
	return f
}

// Pipettes returns the price expressed in whole pipettes, truncated.
func (p Price) Pipettes() int64 {
	return p.value.Div(pipette).IntPart()
}

func (p Price) IsPositive() bool {
	return p.value.IsPositive()
}

func (p Price) String() string {
	return p.value.String()
}

// Money is an amount in a currency.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// NewMoney builds money from a major/minor decimal amount.
func NewMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// MoneyFromMinor builds money from minor units (cents), the representation
// used on the wire.
func MoneyFromMinor(minor int64, currency Currency) Money {
	return Money{Amount: decimal.New(minor, -2), Currency: currency}
}

// Minor returns the amount in minor units, truncated.
func (m Money) Minor() int64 {
	return m.Amount.Shift(2).IntPart()
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + string(m.Currency)
}

// Ratio is a fraction such as 0.01 for one percent.
type Ratio struct {
	value decimal.Decimal
}

// Percent builds a ratio from a percentage.
func Percent(p float64) Ratio {
	return Ratio{value: decimal.NewFromFloat(p).Div(decimal.NewFromInt(100))}
}

func (r Ratio) Decimal() decimal.Decimal {
	return r.value
}

// Within reports whether the ratio lies in [0, 1].
func (r Ratio) Within() bool {
	return !r.value.IsNegative() && r.value.LessThanOrEqual(decimal.NewFromInt(1))
}

func (r Ratio) String() string {
	return r.value.Shift(2).String() + "%"
}
