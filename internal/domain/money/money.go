package money

import (
	"fmt"
	"regexp"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Money は最小通貨単位（円なら円、ドルならセント）で表した金額
type Money struct {
	Amount   int64
	Currency string
}

// New は金額を作成する（通貨コードの検証を含む）
func New(amount int64, currency string) (Money, error) {
	m := Money{Amount: amount, Currency: currency}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// Zero は指定通貨のゼロ金額を返す
func Zero(currency string) Money {
	return Money{Currency: currency}
}

// Validate は金額の検証を行う
func (m Money) Validate() error {
	if !currencyPattern.MatchString(m.Currency) {
		return ErrInvalidCurrency
	}
	if m.Amount < 0 {
		return ErrNegativeAmount
	}
	return nil
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) IsNegative() bool {
	return m.Amount < 0
}

// Add は同一通貨の金額を加算する
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub は同一通貨の金額を減算する（結果が負になることもある）
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Multiply は金額を n 倍する
func (m Money) Multiply(n int) Money {
	return Money{Amount: m.Amount * int64(n), Currency: m.Currency}
}

// GreaterOrEqual は m >= other を返す
func (m Money) GreaterOrEqual(other Money) (bool, error) {
	if err := m.sameCurrency(other); err != nil {
		return false, err
	}
	return m.Amount >= other.Amount, nil
}

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return fmt.Errorf("%w: %s != %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return nil
}
