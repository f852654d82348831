package lowering_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/usc/internal/lowering"
	"github.com/roach88/usc/internal/sierra"
	"github.com/roach88/usc/internal/testutil"
)

func TestCalcMetadataGasCosts(t *testing.T) {
	md, err := lowering.CalcMetadata(testutil.GasProgram(), lowering.MetadataConfig{})
	require.NoError(t, err)

	// withdraw_gas pays for the worse of the two u128 add outcomes.
	assert.Equal(t, map[int]int64{0: 700}, md.GasCosts)
	assert.Equal(t, map[uint64]int64{0: 700, 1: 600, 2: 400}, md.FunctionCosts)
}

func TestCalcMetadataTypeSizes(t *testing.T) {
	md, err := lowering.CalcMetadata(testutil.GasProgram(), lowering.MetadataConfig{})
	require.NoError(t, err)

	assert.Equal(t, 1, md.TypeSizes[2], "u128")
	assert.Equal(t, 2, md.TypeSizes[4], "Array")
	assert.Equal(t, 0, md.TypeSizes[6], "Unit")
	assert.Equal(t, 2, md.TypeSizes[7], "Option<u128>")
}

func TestCalcMetadataSkipsGasWithoutWithdrawals(t *testing.T) {
	md, err := lowering.CalcMetadata(testutil.SampleProgram(), lowering.MetadataConfig{})
	require.NoError(t, err)
	assert.Empty(t, md.GasCosts)
	assert.Empty(t, md.FunctionCosts)

	md, err = lowering.CalcMetadata(testutil.GasProgram(), lowering.MetadataConfig{SkipGas: true})
	require.NoError(t, err)
	assert.Empty(t, md.GasCosts)
}

func TestCalcMetadataErrors(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *sierra.Program
		wantErr string
	}{
		{
			name: "recursive type",
			build: func() *sierra.Program {
				return testutil.NewProgram().
					Type(0, "Struct", sierra.UserTypeArg("Loop"), sierra.TypeArg(0)).
					Return().Func(0, "f", 0, nil).Build()
			},
			wantErr: "unbounded recursion",
		},
		{
			name: "unknown type",
			build: func() *sierra.Program {
				return testutil.NewProgram().Type(0, "Quaternion").
					Return().Func(0, "f", 0, nil).Build()
			},
			wantErr: "unknown type",
		},
		{
			name: "loop without withdrawal",
			build: func() *sierra.Program {
				return testutil.NewProgram().
					Libfunc(0, "withdraw_gas").
					Libfunc(1, "jump").
					Invoke(1, nil, testutil.Goto(0)).
					Func(0, "spin", 0, nil).Build()
			},
			wantErr: "cycle without withdraw_gas",
		},
		{
			name: "entry point out of range",
			build: func() *sierra.Program {
				return testutil.NewProgram().Return().Func(0, "f", 3, nil).Build()
			},
			wantErr: "entry point 3 out of range",
		},
		{
			name: "duplicate function",
			build: func() *sierra.Program {
				return testutil.NewProgram().Return().
					Func(0, "f", 0, nil).Func(0, "g", 0, nil).Build()
			},
			wantErr: "duplicate function",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lowering.CalcMetadata(tt.build(), lowering.MetadataConfig{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
