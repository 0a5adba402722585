package fixed

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMulTruncates(t *testing.T) {
	a, _ := new(big.Int).SetString("1010000000000000000", 10)
	b, _ := new(big.Int).SetString("990000000000000000", 10)
	require.Equal(t, "999900000000000000", Mul(a, b).String())

	tiny := big.NewInt(1)
	require.Equal(t, int64(0), Mul(tiny, tiny).Int64())
}

func TestDiv(t *testing.T) {
	got, err := Div(FromInt(30_000), FromInt(29_000))
	require.NoError(t, err)
	require.Equal(t, "1034482758620689655", got.String())

	_, err = Div(One(), big.NewInt(0))
	require.ErrorIs(t, err, ErrDivideByZero)
}

func TestShift(t *testing.T) {
	usdc := big.NewInt(10_000_000_000) // 10,000 at 6 decimals
	require.Equal(t, FromInt(10_000).String(), Shift(usdc, 6).String())
	require.Equal(t, FromInt(7).String(), Shift(FromInt(7), 18).String())

	wide, _ := new(big.Int).SetString("123456789012345678901", 10)
	require.Equal(t, "12345678901234567890", Shift(wide, 19).String())
}

func TestParseAndFormat(t *testing.T) {
	v, err := Parse("0.02")
	require.NoError(t, err)
	require.Equal(t, "20000000000000000", v.String())

	v, err = Parse("1.0000000000000000019")
	require.NoError(t, err)
	require.Equal(t, "1000000000000000001", v.String())

	_, err = Parse("-1")
	require.ErrorIs(t, err, ErrNegative)

	_, err = Parse("abc")
	require.Error(t, err)

	require.Equal(t, "1.034482758620689655", Format(big.NewInt(1034482758620689655)))
	require.Equal(t, "1", Format(One()))
	require.Equal(t, "0", Format(nil))
}
