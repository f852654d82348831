package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/usc/internal/jsondoc"
)

type settings struct {
	GasUsageCheck bool `json:"gas_usage_check"`
}

func TestKeyIsStable(t *testing.T) {
	a, err := jsondoc.Parse([]byte(`{"funcs":[],"statements":[1,2]}`))
	require.NoError(t, err)
	b, err := jsondoc.Parse([]byte(`{ "statements": [1, 2], "funcs": [] }`))
	require.NoError(t, err)

	ka, err := Key("compile-raw", a, settings{true})
	require.NoError(t, err)
	kb, err := Key("compile-raw", b, settings{true})
	require.NoError(t, err)

	assert.Equal(t, ka, kb, "formatting and key order do not matter")
	assert.Len(t, ka, 64)
}

func TestKeySeparatesInputs(t *testing.T) {
	doc := jsondoc.Object{"sierra_program": jsondoc.Array{jsondoc.String("0x1")}}
	base, err := Key("compile-contract", doc, settings{true})
	require.NoError(t, err)

	for name, k := range map[string]func() (string, error){
		"command":  func() (string, error) { return Key("compile-raw", doc, settings{true}) },
		"settings": func() (string, error) { return Key("compile-contract", doc, settings{false}) },
		"input": func() (string, error) {
			return Key("compile-contract", jsondoc.Object{"sierra_program": jsondoc.Array{}}, settings{true})
		},
	} {
		t.Run(name, func(t *testing.T) {
			other, err := k()
			require.NoError(t, err)
			assert.NotEqual(t, base, other)
		})
	}
}

func TestHashWithDomainSeparatesDomains(t *testing.T) {
	assert.NotEqual(t, hashWithDomain("a", []byte("bc")), hashWithDomain("ab", []byte("c")))
}

func TestKeyRejectsUnmarshalableSettings(t *testing.T) {
	_, err := Key("compile-raw", jsondoc.Null{}, func() {})
	assert.ErrorContains(t, err, "settings")
}
