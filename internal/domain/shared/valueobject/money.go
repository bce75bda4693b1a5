package valueobject

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code
type Currency string

const (
	VND Currency = "VND"
	USD Currency = "USD"
)

// DefaultCurrency applies when a request names none
const DefaultCurrency = VND

// minor units per supported currency; GHN only settles VND
var minorUnits = map[Currency]int32{
	VND: 0,
	USD: 2,
}

// ParseCurrency normalizes code, defaulting the empty code to VND
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if c == "" {
		return DefaultCurrency, nil
	}
	if _, ok := minorUnits[c]; !ok {
		return "", fmt.Errorf("unsupported currency %q", code)
	}
	return c, nil
}

// Money is an immutable non-negative amount in a supported currency
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	c, err := ParseCurrency(string(currency))
	if err != nil {
		return Money{}, err
	}
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("amount %s is negative", amount)
	}
	return Money{amount: amount, currency: c}, nil
}

// NewVND wraps amount without validation; callers hold a checked price
func NewVND(amount decimal.Decimal) Money {
	return Money{amount: amount, currency: VND}
}

func (m Money) Amount() decimal.Decimal {
	return m.amount
}

func (m Money) Currency() Currency {
	if m.currency == "" {
		return DefaultCurrency
	}
	return m.currency
}

// Settled rounds the amount to the currency's minor unit, half away from zero
func (m Money) Settled() decimal.Decimal {
	return m.amount.Round(minorUnits[m.Currency()])
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// Add sums two amounts of the same currency
func (m Money) Add(other Money) (Money, error) {
	if m.Currency() != other.Currency() {
		return Money{}, fmt.Errorf("cannot add %s to %s", other.Currency(), m.Currency())
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.Currency()}, nil
}

func (m Money) Equals(other Money) bool {
	return m.Currency() == other.Currency() && m.amount.Equal(other.amount)
}

func (m Money) String() string {
	return m.amount.String() + " " + string(m.Currency())
}

type moneyJSON struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// MarshalJSON writes the amount as a string so no precision is lost
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.amount, Currency: m.Currency()})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewMoney(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
