package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountPrecision — количество знаков после запятой, с которым хранятся суммы
const AmountPrecision int32 = 4

// Границы ввода: порядок и длина должны оставаться в пределах float64,
// иначе округление через big.Int стоит секунды CPU под мьютексом контроллера
const (
	maxAmountInput    = 64
	maxAmountExponent = 308
	minAmountExponent = -330
)

var ErrInvalidAmount = errors.New("amount must be a finite number greater than zero")

// Amount — неотрицательная сумма в SOL с точностью 0.0001.
// В JSON пишется числом, а не строкой (совместимость со схемой amountSol).
type Amount struct {
	decimal.Decimal
}

// ParseAmount разбирает ввод пользователя и округляет до 4 знаков.
// Значения, которые после округления не больше нуля, отклоняются.
func ParseAmount(raw string) (Amount, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxAmountInput {
		return Amount{}, fmt.Errorf("%w: input too long", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if err := checkFinite(d); err != nil {
		return Amount{}, err
	}
	d = d.Round(AmountPrecision)
	if !d.IsPositive() {
		return Amount{}, ErrInvalidAmount
	}
	return Amount{Decimal: d}, nil
}

// checkFinite отсекает значения, которые не помещаются в float64
func checkFinite(d decimal.Decimal) error {
	exp := d.Exponent()
	if exp > maxAmountExponent || exp < minAmountExponent {
		return fmt.Errorf("%w: exponent out of range", ErrInvalidAmount)
	}
	if math.IsInf(d.InexactFloat64(), 0) {
		return fmt.Errorf("%w: not finite", ErrInvalidAmount)
	}
	return nil
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d.Round(AmountPrecision)}
}

// MustAmount используется в тестах и сидах
func MustAmount(raw string) Amount {
	a, err := ParseAmount(raw)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// UnmarshalJSON принимает и число, и строку в кавычках
func (a *Amount) UnmarshalJSON(data []byte) error {
	if len(data) > maxAmountInput+2 {
		return fmt.Errorf("amountSol: %w: input too long", ErrInvalidAmount)
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("amountSol: %w", err)
	}
	if err := checkFinite(d); err != nil {
		return fmt.Errorf("amountSol: %w", err)
	}
	a.Decimal = d.Round(AmountPrecision)
	return nil
}
