package money

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ZMW is the only currency listings are priced in.
const ZMW = "ZMW"

var (
	ErrInvalidCurrency  = errors.New("money: invalid currency code")
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	ErrNegativeAmount   = errors.New("money: amount must be non-negative")
)

// Money keeps amounts in integer minor units (ngwee for ZMW).
type Money struct {
	Amount   int64
	Currency string
}

// New constructs a Money value validating minimal invariants.
func New(amount int64, currency string) (Money, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return Money{}, ErrInvalidCurrency
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// Must creates Money and panics if validation fails; useful in tests and fixtures.
func Must(amount int64, currency string) Money {
	m, err := New(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Kwacha converts a whole/decimal kwacha figure into ngwee.
func Kwacha(value float64) (Money, error) {
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return Money{}, ErrNegativeAmount
	}
	return Money{Amount: int64(math.Round(value * 100)), Currency: ZMW}, nil
}

// Major returns the amount in major units (kwacha).
func (m Money) Major() float64 {
	return float64(m.Amount) / 100
}

// Add adds two money values ensuring currencies match.
func (m Money) Add(other Money) (Money, error) {
	if err := m.ensureSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// IsZero returns true if the amount equals zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// String renders the value the way prices are shown to buyers, e.g. "K1250.00".
func (m Money) String() string {
	if m.Currency == ZMW {
		return fmt.Sprintf("K%d.%02d", m.Amount/100, abs(m.Amount%100))
	}
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, abs(m.Amount%100), m.Currency)
}

func (m Money) ensureSameCurrency(other Money) error {
	if m.Currency == "" || other.Currency == "" {
		return ErrInvalidCurrency
	}
	if m.Currency != other.Currency {
		return ErrCurrencyMismatch
	}
	return nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
