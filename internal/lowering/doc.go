// Package lowering compiles Sierra programs to CASM.
//
// Compilation runs in three steps. CalcMetadata sizes every type and, for
// programs that meter gas, precomputes the amount each withdraw_gas statement
// deducts. Compile plans a frame per function and lowers each statement in
// index order. The resulting casm.CairoProgram is then assembled into
// bytecode.
//
// Frames are fp-relative. A function's parameters sit directly below the
// saved frame pointer and return address:
//
//	[fp - 2 - S + i]   parameter cell i of S
//	[fp - 2]           caller fp
//	[fp - 1]           return pc
//	[fp + k]           local cell k, reserved by ap += L at entry
//
// Every variable definition gets its own local slot. When two paths reach the
// same statement with a variable in different slots, the later path copies it
// into the slot the statement was planned with before jumping.
package lowering
