package jsondoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalOrderingAndEscaping(t *testing.T) {
	doc := Object{
		"z":   String("<a&b>"),
		"a":   Array{Number("0"), Bool(true)},
		"mid": Object{"y": Number("2"), "x": Number("1")},
	}

	out, err := MarshalCanonical(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[0,true],"mid":{"x":1,"y":2},"z":"<a&b>"}`, string(out))
}

func TestMarshalCanonicalRejectsNullAndFloats(t *testing.T) {
	_, err := MarshalCanonical(Object{"a": Null{}})
	assert.ErrorContains(t, err, "null is forbidden")

	_, err = MarshalCanonical(Array{Number("1.5")})
	assert.ErrorContains(t, err, "non-integer")

	_, err = MarshalCanonical(Array{Number("1e3")})
	assert.Error(t, err)
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9.
	out, err := MarshalCanonical(String("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(out))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	out, err := MarshalCanonical(String("a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(out))

	// Literal backslash followed by the text u2028 must stay escaped.
	out, err = MarshalCanonical(String(`a\u2028b`))
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(out))
}

func TestCanonicalizeStruct(t *testing.T) {
	type pair struct {
		B []string `json:"b"`
		A int      `json:"a"`
	}

	out, err := Canonicalize(pair{A: 7, B: []string{"0x1"}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":7,"b":["0x1"]}`, string(out))
}

func TestCanonicalDeterministic(t *testing.T) {
	doc := Object{}
	for _, k := range []string{"q", "w", "e", "r", "t", "y"} {
		doc[k] = String(k)
	}

	first, err := MarshalCanonical(doc)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := MarshalCanonical(doc)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
