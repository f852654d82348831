package casm

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/usc/internal/felt"
)

func sampleContract() *ContractClass {
	one := big.NewInt(1)
	hints := HintList{{Pos: 1, Hints: []Hint{
		TestLessThanOrEqual(CellOperand(Fp(-4)), ImmOperand(big.NewInt(100)), Ap(0)),
	}}}
	return &ContractClass{
		Prime:           felt.Prime,
		CompilerVersion: "2.7.0",
		Bytecode:        Bytecode{one, one, one},
		Hints:           hints,
		PythonicHints:   PythonicHints(hints),
		EntryPointsByType: EntryPointsByType{
			External: EntryPointList{{Selector: big.NewInt(0x1234), Offset: 0, Builtins: []string{"range_check"}}},
		},
	}
}

func TestContractClassWireShape(t *testing.T) {
	data, err := json.Marshal(sampleContract())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, felt.PrimeHex, doc["prime"])
	assert.Equal(t, "2.7.0", doc["compiler_version"])
	assert.NotContains(t, doc, "bytecode_segment_lengths", "absent segment lengths are omitted")

	eps := doc["entry_points_by_type"].(map[string]any)
	assert.Equal(t, []any{}, eps["L1_HANDLER"])
	assert.Equal(t, []any{}, eps["CONSTRUCTOR"])
	ext := eps["EXTERNAL"].([]any)[0].(map[string]any)
	assert.Equal(t, "0x1234", ext["selector"])
	assert.Equal(t, []any{"range_check"}, ext["builtins"])

	pythonic := doc["pythonic_hints"].([]any)
	assert.Equal(t, []any{float64(1), []any{"memory[ap + 0] = memory[fp + -4] <= 100"}}, pythonic[0])
}

func TestContractClassRoundTrip(t *testing.T) {
	in := sampleContract()
	in.BytecodeSegmentLengths = []int{2, 1}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out ContractClass
	require.NoError(t, json.Unmarshal(data, &out))
	require.NoError(t, out.Validate())

	assert.Equal(t, 0, felt.Prime.Cmp(out.Prime))
	assert.Equal(t, []int{2, 1}, out.BytecodeSegmentLengths)
	require.Len(t, out.EntryPointsByType.External, 1)
	assert.Equal(t, int64(0x1234), out.EntryPointsByType.External[0].Selector.Int64())

	again, err := json.Marshal(&out)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestContractClassValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, sampleContract().Validate())
	})

	t.Run("entry point outside bytecode", func(t *testing.T) {
		c := sampleContract()
		c.EntryPointsByType.Constructor = EntryPointList{{Selector: big.NewInt(1), Offset: 3}}
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CONSTRUCTOR")
	})

	t.Run("segment lengths mismatch", func(t *testing.T) {
		c := sampleContract()
		c.BytecodeSegmentLengths = []int{1, 1}
		assert.Error(t, c.Validate())
	})

	t.Run("hint outside bytecode", func(t *testing.T) {
		c := sampleContract()
		c.Hints = HintList{{Pos: 7}}
		assert.Error(t, c.Validate())
	})
}

func TestHintJSONRejectsUnknownVariant(t *testing.T) {
	var h Hint
	assert.Error(t, json.Unmarshal([]byte(`{"Halt":{"dst":{"register":"AP","offset":0}}}`), &h))
	assert.Error(t, json.Unmarshal([]byte(`{"TestLessThan":{"dst":{"register":"AP","offset":0}}}`), &h))
	require.NoError(t, json.Unmarshal([]byte(`{"AllocSegment":{"dst":{"register":"FP","offset":3}}}`), &h))
	assert.Equal(t, "memory[fp + 3] = segments.add()", h.Pythonic())
}
