package lowering_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/usc/internal/casm"
	"github.com/roach88/usc/internal/felt"
	"github.com/roach88/usc/internal/lowering"
	"github.com/roach88/usc/internal/sierra"
	"github.com/roach88/usc/internal/testutil"
)

func compile(t *testing.T, p *sierra.Program, cfg lowering.Config) *casm.CairoProgram {
	t.Helper()
	md, err := lowering.CalcMetadata(p, lowering.MetadataConfig{})
	require.NoError(t, err)
	cp, err := lowering.Compile(p, md, cfg)
	require.NoError(t, err)
	return cp
}

func compileErr(t *testing.T, p *sierra.Program, cfg lowering.Config) error {
	t.Helper()
	md, err := lowering.CalcMetadata(p, lowering.MetadataConfig{})
	if err != nil {
		return err
	}
	_, err = lowering.Compile(p, md, cfg)
	return err
}

func TestCompileSampleProgramLayout(t *testing.T) {
	cp := compile(t, testutil.SampleProgram(), lowering.Config{GasUsageCheck: true})

	assert.Len(t, cp.Instructions, 21)
	assert.Equal(t, 29, cp.CodeSize())

	offsets := [][2]int{
		{0, 0}, {4, 2}, {5, 3}, {6, 4},
		{8, 6}, {17, 11}, {17, 11}, {19, 12}, {20, 13},
		{22, 15}, {22, 15}, {23, 16}, {27, 19},
	}
	require.Len(t, cp.DebugInfo, len(offsets), "one debug entry per statement")
	for i, o := range offsets {
		assert.Equal(t, casm.DebugEntry{Offset: o[0], InstructionIdx: o[1]}, cp.DebugInfo[i], "statement %d", i)
	}
}

func TestCompileSampleProgramRelocations(t *testing.T) {
	cp := compile(t, testutil.SampleProgram(), lowering.Config{})

	jnz := cp.Instructions[7]
	require.Equal(t, casm.OpJnz, jnz.Op)
	assert.Equal(t, 4, jnz.Rel, "jnz lands on the non-zero branch block")

	assert.Equal(t, 5, cp.Instructions[8].Rel, "zero branch jumps to statement 5")
	assert.Equal(t, 7, cp.Instructions[10].Rel, "non-zero branch jumps to statement 9")

	call := cp.Instructions[17]
	require.Equal(t, casm.OpCallRel, call.Op)
	assert.Equal(t, -24, call.Rel, "call targets add_five at offset 0")
}

func TestCompileSampleProgramBytecode(t *testing.T) {
	cp := compile(t, testutil.SampleProgram(), lowering.Config{})
	asm, err := cp.Assemble()
	require.NoError(t, err)

	require.Len(t, asm.Bytecode, 29)
	assert.Equal(t,
		[]string{"0x40780017fff7fff", "0x3", "0x400780017fff8000", "0x5"},
		felt.HexAll(asm.Bytecode[:4]),
		"add_five reserves its frame then stores the constant")
	assert.Equal(t, "0x208b7fff7fff7ffe", felt.Hex(asm.Bytecode[7]))
	assert.Empty(t, asm.Hints)
}

func TestFunctionOffset(t *testing.T) {
	p := testutil.SampleProgram()
	cp := compile(t, p, lowering.Config{})

	off, err := lowering.FunctionOffset(cp, p.Funcs[0])
	require.NoError(t, err)
	assert.Equal(t, 0, off)

	off, err = lowering.FunctionOffset(cp, p.Funcs[1])
	require.NoError(t, err)
	assert.Equal(t, 8, off)
}

func TestCompileGasProgram(t *testing.T) {
	p := testutil.GasProgram()
	cp := compile(t, p, lowering.Config{GasUsageCheck: true})
	assert.Len(t, cp.DebugInfo, len(p.Statements))

	asm, err := cp.Assemble()
	require.NoError(t, err)

	var kinds []casm.HintKind
	for _, h := range asm.Hints {
		for _, hint := range h.Hints {
			kinds = append(kinds, hint.Kind)
		}
	}
	assert.Equal(t, []casm.HintKind{
		casm.HintTestLessThanOrEqual, // withdraw_gas
		casm.HintTestLessThan,        // u128_overflowing_add
		casm.HintAllocSegment,        // array_new
	}, kinds)

	prog := casm.Program{Bytecode: asm.Bytecode, Hints: asm.Hints, DebugInfo: cp.DebugInfo}
	assert.NoError(t, prog.Validate())
}

func TestCompileEnumMatchUsesJumpTable(t *testing.T) {
	p := testutil.GasProgram()
	cp := compile(t, p, lowering.Config{})

	start := cp.DebugInfo[32].InstructionIdx
	var indirect int
	for _, ins := range cp.Instructions[start:] {
		if ins.Op == casm.OpJumpRel && ins.RelCell != nil {
			indirect++
		}
	}
	assert.Equal(t, 1, indirect, "a two-variant match dispatches through one indirect jump")
}

func TestCompileMaxBytecodeSize(t *testing.T) {
	p := testutil.SampleProgram()

	assert.NoError(t, compileErr(t, p, lowering.Config{MaxBytecodeSize: 29}))

	err := compileErr(t, p, lowering.Config{MaxBytecodeSize: 28})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code size limit exceeded")
}

func TestCompileRejectsDisallowedLibfunc(t *testing.T) {
	err := compileErr(t, testutil.GasProgram(), lowering.Config{Libfuncs: lowering.CoreLibfuncs()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")

	assert.NoError(t, compileErr(t, testutil.SampleProgram(), lowering.Config{Libfuncs: lowering.CoreLibfuncs()}))
}

func TestCompileRejectsInvalidPrograms(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *sierra.Program
		wantErr string
	}{
		{
			name: "unknown libfunc",
			build: func() *sierra.Program {
				return testutil.NewProgram().Type(0, "felt252").
					Libfunc(0, "felt252_div").
					Step(0, testutil.Vals(0, 0), 1).Return(1).
					Func(0, "f", 0, [][2]uint64{{0, 0}}, 0).Build()
			},
			wantErr: "unsupported libfunc",
		},
		{
			name: "branch target out of range",
			build: func() *sierra.Program {
				return testutil.NewProgram().Type(0, "felt252").
					Libfunc(0, "jump").
					Invoke(0, nil, testutil.Goto(5)).
					Func(0, "f", 0, nil).Build()
			},
			wantErr: "out of range",
		},
		{
			name: "fallthrough past the end",
			build: func() *sierra.Program {
				return testutil.NewProgram().Type(0, "felt252").
					Libfunc(0, "branch_align").
					Step(0, nil).
					Func(0, "f", 0, nil).Build()
			},
			wantErr: "out of range",
		},
		{
			name: "undefined variable",
			build: func() *sierra.Program {
				return testutil.NewProgram().Type(0, "felt252").
					Libfunc(0, "store_temp", sierra.TypeArg(0)).
					Step(0, testutil.Vals(7), 1).Return(1).
					Func(0, "f", 0, nil, 0).Build()
			},
			wantErr: "used before definition",
		},
		{
			name: "arity mismatch",
			build: func() *sierra.Program {
				return testutil.NewProgram().Type(0, "felt252").
					Libfunc(0, "felt252_add").
					Step(0, testutil.Vals(0), 1).Return(1).
					Func(0, "f", 0, [][2]uint64{{0, 0}}, 0).Build()
			},
			wantErr: "arguments, expected 2",
		},
		{
			name: "wrong branch count",
			build: func() *sierra.Program {
				return testutil.NewProgram().Type(0, "felt252").Type(1, "NonZero", sierra.TypeArg(0)).
					Libfunc(0, "felt252_is_zero").
					Invoke(0, testutil.Vals(0), testutil.Next()).Return().
					Func(0, "f", 0, [][2]uint64{{0, 0}}).Build()
			},
			wantErr: "branches, expected 2",
		},
		{
			name: "return type mismatch",
			build: func() *sierra.Program {
				return testutil.NewProgram().Type(0, "felt252").Type(1, "u128").
					Return(0).
					Func(0, "f", 0, [][2]uint64{{0, 0}}, 1).Build()
			},
			wantErr: "expected u128",
		},
		{
			name: "statement shared between functions",
			build: func() *sierra.Program {
				return testutil.NewProgram().Type(0, "felt252").
					Libfunc(0, "jump").
					Return().
					Invoke(0, nil, testutil.Goto(0)).
					Func(0, "f", 0, nil).
					Func(1, "g", 1, nil).Build()
			},
			wantErr: "reachable from functions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := compileErr(t, tt.build(), lowering.Config{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompileJoinCopiesIntoPlannedSlots(t *testing.T) {
	// Both branches of is_zero define variable 5 and reach the same return.
	p := testutil.NewProgram().
		Type(0, "felt252").
		Type(1, "NonZero", sierra.TypeArg(0)).
		Libfunc(0, "felt252_is_zero").
		Libfunc(1, "felt252_const", sierra.ValueArg(1)).
		Libfunc(2, "unwrap_non_zero", sierra.TypeArg(0)).
		Invoke(0, testutil.Vals(0), testutil.Next(), testutil.Goto(3, 1)). // 0
		Invoke(1, nil, testutil.Goto(4, 5)).                               // 1
		Return().                                                          // 2, unreachable
		Step(2, testutil.Vals(1), 5).                                      // 3
		Return(5).                                                         // 4
		Func(0, "f", 0, [][2]uint64{{0, 0}}, 0).
		Build()

	cp := compile(t, p, lowering.Config{})
	assert.Equal(t, cp.DebugInfo[2], cp.DebugInfo[3], "unreachable statements emit nothing")

	// The zero path planned the return, so the path through statement 3
	// copies its result into that slot and falls through.
	start, end := cp.DebugInfo[3].InstructionIdx, cp.DebugInfo[4].InstructionIdx
	body := cp.Instructions[start:end]
	require.Len(t, body, 2)
	assert.Equal(t, casm.Fp(2), body[0].Dst, "unwrap result")
	assert.Equal(t, casm.Fp(1), body[1].Dst, "join move into the planned slot")
	assert.Equal(t, casm.Deref(casm.Fp(2)), body[1].Res)
}
