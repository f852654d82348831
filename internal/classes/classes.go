// Package classes holds what the contract-class backend families share: the
// Sierra contract class document, entry point resolution and the compile
// step. Each family package under classes/ owns its felt-stream header and
// its native compiled-class shape.
package classes

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"slices"

	"github.com/roach88/usc/internal/casm"
	"github.com/roach88/usc/internal/felt"
	"github.com/roach88/usc/internal/lowering"
	"github.com/roach88/usc/internal/sierra"
)

// ErrMalformedProgram marks failures to read the program out of a contract
// class, as opposed to failures of the compiler itself.
var ErrMalformedProgram = errors.New("malformed sierra program")

// Malformed wraps err as a program decoding failure.
func Malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformedProgram, err)
}

// EntryPoint is an entry point as declared by a Sierra contract class.
type EntryPoint struct {
	Selector    *big.Int
	FunctionIdx int
}

type entryPointWire struct {
	Selector    string `json:"selector"`
	FunctionIdx *int   `json:"function_idx"`
}

// MarshalJSON renders {"selector": "0x..", "function_idx": n}.
func (e EntryPoint) MarshalJSON() ([]byte, error) {
	if e.Selector == nil {
		return nil, fmt.Errorf("entry point for function %d has no selector", e.FunctionIdx)
	}
	idx := e.FunctionIdx
	return json.Marshal(entryPointWire{Selector: felt.Hex(e.Selector), FunctionIdx: &idx})
}

// UnmarshalJSON requires both fields.
func (e *EntryPoint) UnmarshalJSON(data []byte) error {
	var w entryPointWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.FunctionIdx == nil {
		return fmt.Errorf("entry point: missing function_idx")
	}
	sel, err := felt.Parse(w.Selector)
	if err != nil {
		return fmt.Errorf("entry point selector: %w", err)
	}
	*e = EntryPoint{Selector: sel, FunctionIdx: *w.FunctionIdx}
	return nil
}

// EntryPoints groups declared entry points by invocation kind.
type EntryPoints struct {
	External    []EntryPoint `json:"EXTERNAL"`
	L1Handler   []EntryPoint `json:"L1_HANDLER"`
	Constructor []EntryPoint `json:"CONSTRUCTOR"`
}

// UnmarshalJSON requires all three groups; an empty group is written as [].
func (e *EntryPoints) UnmarshalJSON(data []byte) error {
	var w struct {
		External    *[]EntryPoint `json:"EXTERNAL"`
		L1Handler   *[]EntryPoint `json:"L1_HANDLER"`
		Constructor *[]EntryPoint `json:"CONSTRUCTOR"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	for _, g := range []struct {
		name string
		eps  *[]EntryPoint
	}{
		{"EXTERNAL", w.External},
		{"L1_HANDLER", w.L1Handler},
		{"CONSTRUCTOR", w.Constructor},
	} {
		if g.eps == nil {
			return fmt.Errorf("entry_points_by_type: missing %s", g.name)
		}
	}
	*e = EntryPoints{External: *w.External, L1Handler: *w.L1Handler, Constructor: *w.Constructor}
	return nil
}

// MarshalJSON renders missing groups as empty lists.
func (e EntryPoints) MarshalJSON() ([]byte, error) {
	orEmpty := func(eps []EntryPoint) []EntryPoint {
		if eps == nil {
			return []EntryPoint{}
		}
		return eps
	}
	type plain EntryPoints
	return json.Marshal(plain{
		External:    orEmpty(e.External),
		L1Handler:   orEmpty(e.L1Handler),
		Constructor: orEmpty(e.Constructor),
	})
}

// ContractClass is a Sierra contract class after normalization: the ABI and
// debug info are null and the class version is empty.
type ContractClass struct {
	SierraProgram          []string        `json:"sierra_program"`
	SierraProgramDebugInfo json.RawMessage `json:"sierra_program_debug_info"`
	ContractClassVersion   string          `json:"contract_class_version"`
	EntryPointsByType      EntryPoints     `json:"entry_points_by_type"`
	ABI                    json.RawMessage `json:"abi"`
}

// Decode parses a contract class document. Unknown fields are ignored;
// sierra_program and entry_points_by_type must be present.
func Decode(data []byte) (*ContractClass, error) {
	var present struct {
		SierraProgram     json.RawMessage `json:"sierra_program"`
		EntryPointsByType json.RawMessage `json:"entry_points_by_type"`
	}
	if err := json.Unmarshal(data, &present); err != nil {
		return nil, err
	}
	if present.SierraProgram == nil {
		return nil, fmt.Errorf("missing sierra_program")
	}
	if present.EntryPointsByType == nil {
		return nil, fmt.Errorf("missing entry_points_by_type")
	}

	var c ContractClass
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.SierraProgram == nil {
		return nil, fmt.Errorf("missing sierra_program")
	}
	return &c, nil
}

// Felts parses the class's sierra_program.
func (c *ContractClass) Felts() ([]*big.Int, error) {
	out := make([]*big.Int, len(c.SierraProgram))
	for i, s := range c.SierraProgram {
		v, err := felt.ParseHex(s)
		if err != nil {
			return nil, fmt.Errorf("sierra_program[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Compiled is a contract program lowered and assembled.
type Compiled struct {
	Program   *casm.CairoProgram
	Assembled *casm.AssembledProgram
}

// Compile runs metadata computation, lowering and assembly.
func Compile(p *sierra.Program, cfg lowering.Config) (*Compiled, error) {
	md, err := lowering.CalcMetadata(p, lowering.MetadataConfig{})
	if err != nil {
		return nil, err
	}
	cp, err := lowering.Compile(p, md, cfg)
	if err != nil {
		return nil, err
	}
	asm, err := cp.Assemble()
	if err != nil {
		return nil, err
	}
	return &Compiled{Program: cp, Assembled: asm}, nil
}

// ResolvedEntryPoint is an entry point located in the compiled code.
type ResolvedEntryPoint struct {
	Selector *big.Int
	Offset   int
	Builtins []string
}

// ResolveEntryPoints locates declared entry points in the compiled code.
// Selectors must be strictly increasing. Builtins are derived from the
// function's parameters only when allowed is non-nil.
func ResolveEntryPoints(p *sierra.Program, c *Compiled, eps []EntryPoint, allowed []string) ([]ResolvedEntryPoint, error) {
	out := make([]ResolvedEntryPoint, 0, len(eps))
	var prev *big.Int
	for _, ep := range eps {
		if ep.FunctionIdx < 0 || ep.FunctionIdx >= len(p.Funcs) {
			return nil, fmt.Errorf("entry point function index %d out of range", ep.FunctionIdx)
		}
		if prev != nil && ep.Selector.Cmp(prev) <= 0 {
			return nil, fmt.Errorf("entry point selectors are not sorted: %s after %s", felt.Hex(ep.Selector), felt.Hex(prev))
		}
		prev = ep.Selector

		fn := p.Funcs[ep.FunctionIdx]
		off, err := lowering.FunctionOffset(c.Program, fn)
		if err != nil {
			return nil, err
		}
		r := ResolvedEntryPoint{Selector: ep.Selector, Offset: off}
		if allowed != nil {
			if r.Builtins, err = lowering.EntryPointBuiltins(p, fn, allowed); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// SegmentLengths splits the bytecode at function boundaries.
func SegmentLengths(p *sierra.Program, c *Compiled) ([]int, error) {
	starts := []int{}
	for _, fn := range p.Funcs {
		off, err := lowering.FunctionOffset(c.Program, fn)
		if err != nil {
			return nil, err
		}
		starts = append(starts, off)
	}
	slices.Sort(starts)
	starts = slices.Compact(starts)

	total := len(c.Assembled.Bytecode)
	out := []int{}
	if len(starts) > 0 && starts[0] > 0 {
		out = append(out, starts[0])
	}
	for i, s := range starts {
		end := total
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		out = append(out, end-s)
	}
	return out, nil
}
