package fixed

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the scale of every price and rate handled by the module.
const Decimals = 18

var (
	ErrDivideByZero = errors.New("fixed: divide by zero")
	ErrNegative     = errors.New("fixed: negative value")
)

var one = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// One returns 1.0 in fixed18.
func One() *big.Int {
	return new(big.Int).Set(one)
}

// FromInt returns n as a fixed18 value.
func FromInt(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), one)
}

// Mul returns a*b in fixed18, truncating toward zero.
func Mul(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, one)
}

// Div returns a/b in fixed18, truncating toward zero.
func Div(a, b *big.Int) (*big.Int, error) {
	if b == nil || b.Sign() == 0 {
		return nil, ErrDivideByZero
	}
	out := new(big.Int).Mul(a, one)
	return out.Quo(out, b), nil
}

// Shift rescales value from a token's native decimals to fixed18.
// Scaling down truncates.
func Shift(value *big.Int, decimals uint8) *big.Int {
	if value == nil {
		return new(big.Int)
	}
	switch {
	case decimals == Decimals:
		return new(big.Int).Set(value)
	case decimals < Decimals:
		return new(big.Int).Mul(value, pow10(Decimals-int(decimals)))
	default:
		return new(big.Int).Quo(value, pow10(int(decimals)-Decimals))
	}
}

// Parse converts a decimal string such as "1.05" to fixed18, truncating
// digits past the 18th decimal place.
func Parse(input string) (*big.Int, error) {
	d, err := decimal.NewFromString(input)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", input, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("parse %q: %w", input, ErrNegative)
	}
	return d.Shift(Decimals).Truncate(0).BigInt(), nil
}

// Format renders a fixed18 value as a decimal string.
func Format(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -Decimals).String()
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
