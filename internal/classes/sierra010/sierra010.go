// Package sierra010 compiles contract classes in the Sierra 0.1.0 format
// emitted by the 1.0.0 alpha compilers.
//
// The program's felt stream starts with the version and compiler name as
// short strings and a checksum of the body:
//
//	[ss("0.1.0"), ss(compiler), checksum, body...]
//
// Compiled classes of this revision carry no builtins on entry points and
// key their hints by bytecode position.
package sierra010

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"

	"github.com/roach88/usc/internal/casm"
	"github.com/roach88/usc/internal/classes"
	"github.com/roach88/usc/internal/felt"
	"github.com/roach88/usc/internal/lowering"
	"github.com/roach88/usc/internal/sierra"
)

const (
	// SierraVersion is the version string stored in the program header.
	SierraVersion = "0.1.0"

	// CompilerVersion is reported in compiled classes.
	CompilerVersion = "1.0.0-alpha.6"
)

// headerLen counts the version, compiler and checksum felts.
const headerLen = 3

// Options controls FromContractClass.
type Options struct {
	AddPythonicHints bool
}

// CasmEntryPoint is a compiled entry point.
type CasmEntryPoint struct {
	Selector *big.Int
	Offset   int
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
	Hints             map[int][]casm.Hint
	PythonicHints     map[int][]string
	EntryPointsByType CasmEntryPoints
}

// Checksum is the first 31 bytes of the SHA-256 digest of the body words,
// each hashed as a 32-byte big-endian integer.
func Checksum(body []*big.Int) *big.Int {
	h := sha256.New()
	var buf [32]byte
	for _, w := range body {
		h.Write(w.FillBytes(buf[:]))
	}
	return new(big.Int).SetBytes(h.Sum(nil)[:31])
}

// EncodeProgram renders a program as a felt stream of this revision.
func EncodeProgram(p *sierra.Program, compiler string) ([]*big.Int, error) {
	body, err := sierra.EncodeBody(p)
	if err != nil {
		return nil, err
	}
	version := felt.MustShortString(SierraVersion)
	name, err := felt.ShortString(compiler)
	if err != nil {
		return nil, fmt.Errorf("compiler name: %w", err)
	}
	return append([]*big.Int{version, name, Checksum(body)}, body...), nil
}

// ExtractProgram reads the program out of a contract class.
func ExtractProgram(c *classes.ContractClass) (*sierra.Program, error) {
	felts, err := c.Felts()
	if err != nil {
		return nil, err
	}
	if len(felts) < headerLen {
		return nil, fmt.Errorf("felt stream of %d words has no header", len(felts))
	}
	version, err := felt.DecodeShortString(felts[0])
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	if !strings.HasPrefix(version, "0.") {
		return nil, fmt.Errorf("version %q is not a 0.x sierra version", version)
	}
	if _, err := felt.DecodeShortString(felts[1]); err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}
	body := felts[headerLen:]
	if Checksum(body).Cmp(felts[2]) != 0 {
		return nil, fmt.Errorf("checksum mismatch")
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
	compiled, err := classes.Compile(prog, lowering.Config{Libfuncs: lowering.CoreLibfuncs()})
	if err != nil {
		return nil, err
	}

	out := &CasmContractClass{
		Prime:           felt.Prime,
		CompilerVersion: CompilerVersion,
		Bytecode:        compiled.Assembled.Bytecode,
		Hints:           make(map[int][]casm.Hint, len(compiled.Assembled.Hints)),
	}
	for _, h := range compiled.Assembled.Hints {
		out.Hints[h.Pos] = h.Hints
	}
	if opts.AddPythonicHints {
		out.PythonicHints = make(map[int][]string, len(out.Hints))
		for _, h := range casm.PythonicHints(compiled.Assembled.Hints) {
			out.PythonicHints[h.Pos] = h.Code
		}
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
		resolved, err := classes.ResolveEntryPoints(prog, compiled, g.declared, nil)
		if err != nil {
			return nil, err
		}
		*g.dst = make([]CasmEntryPoint, len(resolved))
		for i, r := range resolved {
			(*g.dst)[i] = CasmEntryPoint{Selector: r.Selector, Offset: r.Offset}
		}
	}
	return out, nil
}
