// Package sierra100 compiles contract classes in the Sierra 1.0.0 and 1.1.0
// formats. The felt stream is an uncompressed body behind the 1.x version
// header.
package sierra100

import (
	"fmt"
	"math/big"

	"github.com/roach88/usc/internal/casm"
	"github.com/roach88/usc/internal/classes"
	"github.com/roach88/usc/internal/felt"
	"github.com/roach88/usc/internal/lowering"
	"github.com/roach88/usc/internal/sierra"
)

// CompilerVersion is reported in compiled classes.
const CompilerVersion = "1.1.1"

// Builtins lists the builtins entry points may take.
var Builtins = []string{"pedersen", "range_check", "bitwise", "ec_op", "poseidon", "segment_arena"}

// Options controls FromContractClass.
type Options struct {
	AddPythonicHints bool
}

// CasmEntryPoint is a compiled entry point.
type CasmEntryPoint struct {
	Selector *big.Int
	Offset   int
	Builtins []string
}

// CasmEntryPoints groups compiled entry points by kind.
type CasmEntryPoints struct {
	External    []CasmEntryPoint
	L1Handler   []CasmEntryPoint
	Constructor []CasmEntryPoint
}

// CasmContractClass is a compiled contract class of this revision.
type CasmContractClass struct {
	Prime             *big.Int
	CompilerVersion   string
	Bytecode          []*big.Int
	Hints             []casm.HintEntry
	PythonicHints     []casm.PythonicHintEntry
	EntryPointsByType CasmEntryPoints
}

// Supported reports whether v is a Sierra version of this revision.
func Supported(v classes.VersionID) bool {
	return v.Major == 1 && v.Minor <= 1 && v.Patch == 0
}

// EncodeProgram renders a program as a felt stream of this revision.
func EncodeProgram(p *sierra.Program, version, compiler classes.VersionID) ([]*big.Int, error) {
	body, err := sierra.EncodeBody(p)
	if err != nil {
		return nil, err
	}
	return append(classes.VersionHeader(version, compiler), body...), nil
}

// ExtractProgram reads the program out of a contract class.
func ExtractProgram(c *classes.ContractClass) (*sierra.Program, error) {
	felts, err := c.Felts()
	if err != nil {
		return nil, err
	}
	version, _, body, err := classes.ReadVersionHeader(felts)
	if err != nil {
		return nil, err
	}
	if !Supported(version) {
		return nil, fmt.Errorf("sierra version %s is not supported by compiler %s", version, CompilerVersion)
	}
	return sierra.DecodeBody(body)
}

// FromContractClass compiles a contract class. Failures to read the program
// are wrapped with classes.ErrMalformedProgram.
func FromContractClass(c *classes.ContractClass, opts Options) (*CasmContractClass, error) {
	prog, err := ExtractProgram(c)
	if err != nil {
		return nil, classes.Malformed(err)
	}
	compiled, err := classes.Compile(prog, lowering.Config{GasUsageCheck: true})
	if err != nil {
		return nil, err
	}

	out := &CasmContractClass{
		Prime:           felt.Prime,
		CompilerVersion: CompilerVersion,
		Bytecode:        compiled.Assembled.Bytecode,
		Hints:           compiled.Assembled.Hints,
	}
	if opts.AddPythonicHints {
		out.PythonicHints = casm.PythonicHints(compiled.Assembled.Hints)
	}

	eps := c.EntryPointsByType
	for _, g := range []struct {
		declared []classes.EntryPoint
		dst      *[]CasmEntryPoint
	}{
		{eps.External, &out.EntryPointsByType.External},
		{eps.L1Handler, &out.EntryPointsByType.L1Handler},
		{eps.Constructor, &out.EntryPointsByType.Constructor},
	} {
		resolved, err := classes.ResolveEntryPoints(prog, compiled, g.declared, Builtins)
		if err != nil {
			return nil, err
		}
		*g.dst = make([]CasmEntryPoint, len(resolved))
		for i, r := range resolved {
			(*g.dst)[i] = CasmEntryPoint{Selector: r.Selector, Offset: r.Offset, Builtins: r.Builtins}
		}
	}
	return out, nil
}
