package lowering_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/usc/internal/lowering"
	"github.com/roach88/usc/internal/testutil"
)

func TestEntryPointBuiltins(t *testing.T) {
	p := testutil.NewProgram().
		Type(0, "RangeCheck").
		Type(1, "GasBuiltin").
		Type(2, "Pedersen").
		Type(3, "System").
		Type(4, "felt252").
		Return().
		Func(0, "entry", 0, [][2]uint64{{0, 2}, {1, 0}, {2, 1}, {3, 3}, {4, 4}}).
		Build()

	got, err := lowering.EntryPointBuiltins(p, p.Funcs[0], []string{"pedersen", "range_check"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pedersen", "range_check"}, got, "parameter order, implicits skipped")

	_, err = lowering.EntryPointBuiltins(p, p.Funcs[0], []string{"range_check"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "builtin pedersen is not supported")
}

func TestEntryPointBuiltinsNone(t *testing.T) {
	p := testutil.SampleProgram()
	got, err := lowering.EntryPointBuiltins(p, p.Funcs[1], nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
