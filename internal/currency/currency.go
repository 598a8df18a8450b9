package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownCurrency = errors.New("unknown currency code")

// RateProvider looks up the conversion rate from the base currency (USD)
// to the given code. Treated as an external collaborator by sessions.
type RateProvider interface {
	Rate(ctx context.Context, code string) (float64, error)
}

// Static serves rates from a fixed table, USD base.
type Static struct {
	rates map[string]float64
}

func NewStatic() *Static {
	return &Static{rates: map[string]float64{
		"USD": 1.0,
		"EUR": 0.92,
		"GBP": 0.79,
		"JPY": 149.50,
		"PHP": 58.75,
		"CAD": 1.36,
	}}
}

func (s *Static) Rate(ctx context.Context, code string) (float64, error) {
	rate, ok := s.rates[strings.ToUpper(code)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	return rate, nil
}

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"PHP": "₱",
}

// Format renders an amount as a single token, e.g. "$1.50" or "CAD2.04",
// so whitespace-tokenized protocol lines keep a fixed field count.
func Format(amount float64, code string) string {
	sym, ok := symbols[strings.ToUpper(code)]
	if !ok {
		sym = strings.ToUpper(code)
	}
	return fmt.Sprintf("%s%.2f", sym, amount)
}
