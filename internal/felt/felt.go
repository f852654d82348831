// Package felt provides helpers for felt252 values, the field elements used by
// both Sierra programs and CASM bytecode.
//
// Felts are carried as *big.Int in the range [0, Prime). Negative values
// appearing in programs (e.g. constants) are reduced modulo Prime.
package felt

import (
	"fmt"
	"math/big"
	"strings"
)

// PrimeHex is the field prime 2^251 + 17*2^192 + 1.
const PrimeHex = "0x800000000000011000000000000000000000000000000000000000000000001"

// MaxShortStringLen is the number of bytes a short string felt can hold.
const MaxShortStringLen = 31

// Prime is the field modulus.
var Prime = mustParse(PrimeHex)

func mustParse(s string) *big.Int {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		panic("felt: invalid constant " + s)
	}
	return v
}

// New returns the felt for a signed integer.
func New(v int64) *big.Int {
	return Reduce(big.NewInt(v))
}

// Reduce returns v mod Prime as a fresh value in [0, Prime).
func Reduce(v *big.Int) *big.Int {
	r := new(big.Int).Mod(v, Prime)
	return r
}

// ParseHex parses a 0x-prefixed hexadecimal felt.
// The value must already be in range; no reduction is applied.
func ParseHex(s string) (*big.Int, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("felt %q: missing 0x prefix", s)
	}
	digits := s[2:]
	if digits == "" {
		return nil, fmt.Errorf("felt %q: no digits", s)
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("felt %q: invalid hex digits", s)
	}
	if v.Cmp(Prime) >= 0 {
		return nil, fmt.Errorf("felt %q: value out of field range", s)
	}
	return v, nil
}

// Parse accepts either 0x-prefixed hex or a (possibly negative) decimal string.
func Parse(s string) (*big.Int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return ParseHex(s)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("felt %q: invalid decimal", s)
	}
	return Reduce(v), nil
}

// Hex renders v as a lowercase 0x-prefixed hex string.
func Hex(v *big.Int) string {
	return "0x" + v.Text(16)
}

// HexAll renders a sequence of felts.
func HexAll(vs []*big.Int) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = Hex(v)
	}
	return out
}

// ShortString encodes an ASCII string of at most 31 bytes as a felt
// (big-endian bytes).
func ShortString(s string) (*big.Int, error) {
	if len(s) > MaxShortStringLen {
		return nil, fmt.Errorf("short string %q: longer than %d bytes", s, MaxShortStringLen)
	}
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return nil, fmt.Errorf("short string %q: non-ASCII byte at %d", s, i)
		}
	}
	return new(big.Int).SetBytes([]byte(s)), nil
}

// MustShortString is like ShortString but panics on error.
// Use only for constants.
func MustShortString(s string) *big.Int {
	v, err := ShortString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// DecodeShortString is the inverse of ShortString.
func DecodeShortString(v *big.Int) (string, error) {
	if v.Sign() < 0 {
		return "", fmt.Errorf("short string: negative value")
	}
	b := v.Bytes()
	if len(b) > MaxShortStringLen {
		return "", fmt.Errorf("short string: %d bytes exceeds %d", len(b), MaxShortStringLen)
	}
	for i, c := range b {
		if c == 0 || c >= 0x80 {
			return "", fmt.Errorf("short string: invalid byte 0x%02x at %d", c, i)
		}
	}
	return string(b), nil
}

// Neg returns -v mod Prime.
func Neg(v *big.Int) *big.Int {
	return Reduce(new(big.Int).Neg(v))
}
