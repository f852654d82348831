package testutil

import (
	"github.com/roach88/usc/internal/sierra"
)

// ProgramBuilder assembles Sierra programs for tests.
//
// Statements are appended in order, so the index of the next statement is
// always Len().
type ProgramBuilder struct {
	p sierra.Program
}

// NewProgram creates an empty program builder.
func NewProgram() *ProgramBuilder {
	return &ProgramBuilder{}
}

// Type declares a concrete type.
func (b *ProgramBuilder) Type(id uint64, generic string, args ...sierra.GenericArg) *ProgramBuilder {
	b.p.TypeDeclarations = append(b.p.TypeDeclarations, sierra.TypeDeclaration{
		ID:     sierra.ID{ID: id},
		LongID: sierra.LongID{GenericID: generic, GenericArgs: nonNil(args)},
	})
	return b
}

// Libfunc declares a concrete libfunc.
func (b *ProgramBuilder) Libfunc(id uint64, generic string, args ...sierra.GenericArg) *ProgramBuilder {
	b.p.LibfuncDeclarations = append(b.p.LibfuncDeclarations, sierra.LibfuncDeclaration{
		ID:     sierra.ID{ID: id},
		LongID: sierra.LongID{GenericID: generic, GenericArgs: nonNil(args)},
	})
	return b
}

// Invoke appends an invocation statement.
func (b *ProgramBuilder) Invoke(libfunc uint64, args []uint64, branches ...sierra.BranchInfo) *ProgramBuilder {
	b.p.Statements = append(b.p.Statements, sierra.Statement{Invocation: &sierra.Invocation{
		LibfuncID: sierra.ID{ID: libfunc},
		Args:      Vars(args...),
		Branches:  branches,
	}})
	return b
}

// Step appends a single-branch invocation falling through to the next statement.
func (b *ProgramBuilder) Step(libfunc uint64, args []uint64, results ...uint64) *ProgramBuilder {
	return b.Invoke(libfunc, args, Next(results...))
}

// Return appends a return statement.
func (b *ProgramBuilder) Return(vars ...uint64) *ProgramBuilder {
	b.p.Statements = append(b.p.Statements, sierra.Statement{Return: Vars(vars...)})
	return b
}

// Func declares a function. Each param is a {variable, type} pair.
func (b *ProgramBuilder) Func(id uint64, name string, entry int, params [][2]uint64, rets ...uint64) *ProgramBuilder {
	f := sierra.Function{
		ID:         sierra.ID{ID: id, DebugName: name},
		EntryPoint: entry,
		Params:     []sierra.Param{},
		Signature:  sierra.Signature{ParamTypes: []sierra.ID{}, RetTypes: Vars(rets...)},
	}
	for _, p := range params {
		f.Params = append(f.Params, sierra.Param{ID: sierra.ID{ID: p[0]}, Ty: sierra.ID{ID: p[1]}})
		f.Signature.ParamTypes = append(f.Signature.ParamTypes, sierra.ID{ID: p[1]})
	}
	b.p.Funcs = append(b.p.Funcs, f)
	return b
}

// Len returns the number of statements appended so far.
func (b *ProgramBuilder) Len() int {
	return len(b.p.Statements)
}

// Build returns the program. The builder must not be reused.
func (b *ProgramBuilder) Build() *sierra.Program {
	p := b.p
	if p.TypeDeclarations == nil {
		p.TypeDeclarations = []sierra.TypeDeclaration{}
	}
	if p.LibfuncDeclarations == nil {
		p.LibfuncDeclarations = []sierra.LibfuncDeclaration{}
	}
	if p.Statements == nil {
		p.Statements = []sierra.Statement{}
	}
	if p.Funcs == nil {
		p.Funcs = []sierra.Function{}
	}
	return &p
}

// Next is a branch falling through to the next statement.
func Next(results ...uint64) sierra.BranchInfo {
	return sierra.BranchInfo{Target: sierra.Fallthrough, Results: Vars(results...)}
}

// Goto is a branch to an explicit statement.
func Goto(stmt int, results ...uint64) sierra.BranchInfo {
	return sierra.BranchInfo{Target: sierra.Target(stmt), Results: Vars(results...)}
}

// Vars converts raw ids to sierra ids.
func Vars(ids ...uint64) []sierra.ID {
	out := make([]sierra.ID, len(ids))
	for i, id := range ids {
		out[i] = sierra.ID{ID: id}
	}
	return out
}

func nonNil(args []sierra.GenericArg) []sierra.GenericArg {
	if args == nil {
		return []sierra.GenericArg{}
	}
	return args
}

// Vals lists variable ids; it keeps call sites short.
func Vals(ids ...uint64) []uint64 { return ids }

// SampleProgram returns a two-function felt252 program:
//
//	add_five(x) = x + 5
//	main(x)     = 5 if x == 0 else add_five(x)
//
// main branches on felt252_is_zero and calls add_five on the non-zero path.
func SampleProgram() *sierra.Program {
	const (
		felt252 = 0
		nonZero = 1

		constFive   = 0
		feltAdd     = 1
		storeTemp   = 2
		isZero      = 3
		unwrap      = 4
		callAddFive = 5
		align       = 6
	)
	return NewProgram().
		Type(felt252, "felt252").
		Type(nonZero, "NonZero", sierra.TypeArg(felt252)).
		Libfunc(constFive, "felt252_const", sierra.ValueArg(5)).
		Libfunc(feltAdd, "felt252_add").
		Libfunc(storeTemp, "store_temp", sierra.TypeArg(felt252)).
		Libfunc(isZero, "felt252_is_zero").
		Libfunc(unwrap, "unwrap_non_zero", sierra.TypeArg(felt252)).
		Libfunc(callAddFive, "function_call", sierra.UserFuncArg(0)).
		Libfunc(align, "branch_align").
		// add_five
		Step(constFive, nil, 1).      // 0
		Step(feltAdd, Vals(0, 1), 2). // 1
		Step(storeTemp, Vals(2), 3).  // 2
		Return(3).                    // 3
		// main
		Invoke(isZero, Vals(0), Next(), Goto(9, 1)). // 4
		Step(align, nil).                            // 5
		Step(constFive, nil, 2).                     // 6
		Step(storeTemp, Vals(2), 3).                 // 7
		Return(3).                                   // 8
		Step(align, nil).                            // 9
		Step(unwrap, Vals(1), 4).                    // 10
		Step(callAddFive, Vals(4), 5).               // 11
		Return(5).                                   // 12
		Func(0, "add_five", 0, [][2]uint64{{0, felt252}}, felt252).
		Func(1, "main", 4, [][2]uint64{{0, felt252}}, felt252).
		Build()
}

// GasProgram returns a program exercising gas metering, u128 arithmetic,
// arrays and enums. Its functions are:
//
//	checked_add(rc, gas, a, b) -> (rc, gas, Option<u128>)
//	collect() -> u32
//	unwrap_or_zero(Option<u128>) -> u128
func GasProgram() *sierra.Program {
	const (
		rangeCheck = 0
		gasBuiltin = 1
		u128       = 2
		felt252    = 3
		feltArray  = 4
		u32        = 5
		unit       = 6
		option     = 7
	)
	const (
		withdrawGas = iota
		u128Add
		align
		initSome
		storeRC
		storeGas
		storeOption
		dropU128
		makeUnit
		initNone
		arrayNew
		constSeven
		arrayAppend
		arrayLen
		storeU32
		matchOption
		storeU128
		dropUnit
		constZero
	)
	return NewProgram().
		Type(rangeCheck, "RangeCheck").
		Type(gasBuiltin, "GasBuiltin").
		Type(u128, "u128").
		Type(felt252, "felt252").
		Type(feltArray, "Array", sierra.TypeArg(felt252)).
		Type(u32, "u32").
		Type(unit, "Struct", sierra.UserTypeArg("Unit")).
		Type(option, "Enum", sierra.UserTypeArg("core::option::Option::<core::integer::u128>"),
			sierra.TypeArg(u128), sierra.TypeArg(unit)).
		Libfunc(withdrawGas, "withdraw_gas").
		Libfunc(u128Add, "u128_overflowing_add").
		Libfunc(align, "branch_align").
		Libfunc(initSome, "enum_init", sierra.TypeArg(option), sierra.ValueArg(0)).
		Libfunc(storeRC, "store_temp", sierra.TypeArg(rangeCheck)).
		Libfunc(storeGas, "store_temp", sierra.TypeArg(gasBuiltin)).
		Libfunc(storeOption, "store_temp", sierra.TypeArg(option)).
		Libfunc(dropU128, "drop", sierra.TypeArg(u128)).
		Libfunc(makeUnit, "struct_construct", sierra.TypeArg(unit)).
		Libfunc(initNone, "enum_init", sierra.TypeArg(option), sierra.ValueArg(1)).
		Libfunc(arrayNew, "array_new", sierra.TypeArg(felt252)).
		Libfunc(constSeven, "felt252_const", sierra.ValueArg(7)).
		Libfunc(arrayAppend, "array_append", sierra.TypeArg(felt252)).
		Libfunc(arrayLen, "array_len", sierra.TypeArg(felt252)).
		Libfunc(storeU32, "store_temp", sierra.TypeArg(u32)).
		Libfunc(matchOption, "enum_match", sierra.TypeArg(option)).
		Libfunc(storeU128, "store_temp", sierra.TypeArg(u128)).
		Libfunc(dropUnit, "drop", sierra.TypeArg(unit)).
		Libfunc(constZero, "u128_const", sierra.ValueArg(0)).
		// checked_add
		Invoke(withdrawGas, Vals(0, 1), Next(4, 5), Goto(17, 6, 7)). // 0
		Step(align, nil).                                            // 1
		Invoke(u128Add, Vals(4, 2, 3), Next(8, 9), Goto(9, 10, 11)). // 2
		Step(align, nil).                                            // 3
		Step(initSome, Vals(9), 12).                                 // 4
		Step(storeRC, Vals(8), 13).                                  // 5
		Step(storeGas, Vals(5), 14).                                 // 6
		Step(storeOption, Vals(12), 15).                             // 7
		Return(13, 14, 15).                                          // 8
		Step(align, nil).                                            // 9
		Step(dropU128, Vals(11)).                                    // 10
		Step(makeUnit, nil, 16).                                     // 11
		Step(initNone, Vals(16), 17).                                // 12
		Step(storeRC, Vals(10), 18).                                 // 13
		Step(storeGas, Vals(5), 19).                                 // 14
		Step(storeOption, Vals(17), 20).                             // 15
		Return(18, 19, 20).                                          // 16
		Step(align, nil).                                            // 17
		Step(dropU128, Vals(2)).                                     // 18
		Step(dropU128, Vals(3)).                                     // 19
		Step(makeUnit, nil, 21).                                     // 20
		Step(initNone, Vals(21), 22).                                // 21
		Step(storeRC, Vals(6), 23).                                  // 22
		Step(storeGas, Vals(7), 24).                                 // 23
		Step(storeOption, Vals(22), 25).                             // 24
		Return(23, 24, 25).                                          // 25
		// collect
		Step(arrayNew, nil, 0).           // 26
		Step(constSeven, nil, 1).         // 27
		Step(arrayAppend, Vals(0, 1), 2). // 28
		Step(arrayLen, Vals(2), 3).       // 29
		Step(storeU32, Vals(3), 4).       // 30
		Return(4).                        // 31
		// unwrap_or_zero
		Invoke(matchOption, Vals(0), Next(1), Goto(35, 2)). // 32
		Step(storeU128, Vals(1), 3).                        // 33
		Return(3).                                          // 34
		Step(dropUnit, Vals(2)).                            // 35
		Step(constZero, nil, 3).                            // 36
		Step(storeU128, Vals(3), 4).                        // 37
		Return(4).                                          // 38
		Func(0, "checked_add", 0,
			[][2]uint64{{0, rangeCheck}, {1, gasBuiltin}, {2, u128}, {3, u128}},
			rangeCheck, gasBuiltin, option).
		Func(1, "collect", 26, nil, u32).
		Func(2, "unwrap_or_zero", 32, [][2]uint64{{0, option}}, u128).
		Build()
}
