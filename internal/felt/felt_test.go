package felt

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHex(t *testing.T) {
	v, err := ParseHex("0x1f")
	require.NoError(t, err)
	assert.Equal(t, int64(31), v.Int64())

	_, err = ParseHex("1f")
	assert.Error(t, err)

	_, err = ParseHex("0x")
	assert.Error(t, err)

	_, err = ParseHex("0xzz")
	assert.Error(t, err)

	_, err = ParseHex(PrimeHex)
	assert.Error(t, err, "prime itself is out of range")
}

func TestParseDecimalReduces(t *testing.T) {
	v, err := Parse("-1")
	require.NoError(t, err)

	expected := new(big.Int).Sub(Prime, big.NewInt(1))
	assert.Equal(t, 0, expected.Cmp(v))
}

func TestHex(t *testing.T) {
	assert.Equal(t, "0x0", Hex(big.NewInt(0)))
	assert.Equal(t, "0xff", Hex(big.NewInt(255)))
	assert.Equal(t, PrimeHex, Hex(Prime))
}

func TestShortStringRoundTrip(t *testing.T) {
	v, err := ShortString("sierra")
	require.NoError(t, err)
	assert.Equal(t, "0x736965727261", Hex(v))

	s, err := DecodeShortString(v)
	require.NoError(t, err)
	assert.Equal(t, "sierra", s)
}

func TestShortStringRejects(t *testing.T) {
	_, err := ShortString("this string is definitely longer than 31")
	assert.Error(t, err)

	_, err = ShortString("café")
	assert.Error(t, err)

	_, err = DecodeShortString(big.NewInt(0x80))
	assert.Error(t, err)
}

func TestNeg(t *testing.T) {
	assert.Equal(t, 0, New(-5).Cmp(Neg(big.NewInt(5))))
	assert.Equal(t, int64(0), Neg(big.NewInt(0)).Int64())
}
