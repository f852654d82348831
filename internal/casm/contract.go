package casm

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/roach88/usc/internal/felt"
)

// Entry point type names as they appear on the wire.
const (
	EntryPointExternal    = "EXTERNAL"
	EntryPointL1Handler   = "L1_HANDLER"
	EntryPointConstructor = "CONSTRUCTOR"
)

// EntryPoint is a callable contract entry.
type EntryPoint struct {
	Selector *big.Int
	Offset   int
	Builtins []string
}

type entryPointWire struct {
	Selector string   `json:"selector"`
	Offset   int      `json:"offset"`
	Builtins []string `json:"builtins"`
}

// MarshalJSON renders the selector as hex and builtins as [] when empty.
func (e EntryPoint) MarshalJSON() ([]byte, error) {
	if e.Selector == nil {
		return nil, fmt.Errorf("entry point at offset %d has no selector", e.Offset)
	}
	builtins := e.Builtins
	if builtins == nil {
		builtins = []string{}
	}
	return json.Marshal(entryPointWire{Selector: felt.Hex(e.Selector), Offset: e.Offset, Builtins: builtins})
}

// UnmarshalJSON accepts the form produced by MarshalJSON.
func (e *EntryPoint) UnmarshalJSON(data []byte) error {
	var w entryPointWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("entry point: %w", err)
	}
	sel, err := felt.Parse(w.Selector)
	if err != nil {
		return fmt.Errorf("entry point selector: %w", err)
	}
	*e = EntryPoint{Selector: sel, Offset: w.Offset, Builtins: w.Builtins}
	return nil
}

// EntryPointList renders as [] when empty.
type EntryPointList []EntryPoint

// MarshalJSON renders a nil list as [].
func (l EntryPointList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]EntryPoint(l))
}

// EntryPointsByType groups entry points by invocation kind.
type EntryPointsByType struct {
	External    EntryPointList `json:"EXTERNAL"`
	L1Handler   EntryPointList `json:"L1_HANDLER"`
	Constructor EntryPointList `json:"CONSTRUCTOR"`
}

// Each calls fn for every group in wire order.
func (e EntryPointsByType) Each(fn func(kind string, eps EntryPointList) error) error {
	for _, g := range []struct {
		kind string
		eps  EntryPointList
	}{
		{EntryPointExternal, e.External},
		{EntryPointL1Handler, e.L1Handler},
		{EntryPointConstructor, e.Constructor},
	} {
		if err := fn(g.kind, g.eps); err != nil {
			return err
		}
	}
	return nil
}

// PythonicHintEntry pairs a bytecode position with Python hint code.
type PythonicHintEntry struct {
	Pos  int
	Code []string
}

// MarshalJSON renders [pos, [code, ...]].
func (e PythonicHintEntry) MarshalJSON() ([]byte, error) {
	code := e.Code
	if code == nil {
		code = []string{}
	}
	return json.Marshal([]any{e.Pos, code})
}

// UnmarshalJSON accepts [pos, [code, ...]].
func (e *PythonicHintEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("pythonic hint entry: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("pythonic hint entry: expected [pos, code], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Pos); err != nil {
		return fmt.Errorf("pythonic hint position: %w", err)
	}
	return json.Unmarshal(pair[1], &e.Code)
}

// PythonicHints derives Python hint code for every positioned hint.
func PythonicHints(hints HintList) []PythonicHintEntry {
	out := make([]PythonicHintEntry, 0, len(hints))
	for _, h := range hints {
		code := make([]string, len(h.Hints))
		for i, hint := range h.Hints {
			code[i] = hint.Pythonic()
		}
		out = append(out, PythonicHintEntry{Pos: h.Pos, Code: code})
	}
	return out
}

// ContractClass is the compiled contract artifact every backend family is
// translated into.
type ContractClass struct {
	Prime                  *big.Int
	CompilerVersion        string
	Bytecode               Bytecode
	BytecodeSegmentLengths []int
	Hints                  HintList
	PythonicHints          []PythonicHintEntry
	EntryPointsByType      EntryPointsByType
}

type contractClassWire struct {
	Prime                  string              `json:"prime"`
	CompilerVersion        string              `json:"compiler_version"`
	Bytecode               Bytecode            `json:"bytecode"`
	BytecodeSegmentLengths []int               `json:"bytecode_segment_lengths,omitempty"`
	Hints                  HintList            `json:"hints"`
	PythonicHints          []PythonicHintEntry `json:"pythonic_hints,omitempty"`
	EntryPointsByType      EntryPointsByType   `json:"entry_points_by_type"`
}

// MarshalJSON renders the contract wire document.
func (c ContractClass) MarshalJSON() ([]byte, error) {
	prime := c.Prime
	if prime == nil {
		prime = felt.Prime
	}
	bytecode := c.Bytecode
	if bytecode == nil {
		bytecode = Bytecode{}
	}
	return json.Marshal(contractClassWire{
		Prime:                  felt.Hex(prime),
		CompilerVersion:        c.CompilerVersion,
		Bytecode:               bytecode,
		BytecodeSegmentLengths: c.BytecodeSegmentLengths,
		Hints:                  c.Hints,
		PythonicHints:          c.PythonicHints,
		EntryPointsByType:      c.EntryPointsByType,
	})
}

// UnmarshalJSON accepts the contract wire document.
func (c *ContractClass) UnmarshalJSON(data []byte) error {
	var w contractClassWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	prime, err := felt.ParseHex(w.Prime)
	if w.Prime == felt.PrimeHex {
		prime, err = felt.Prime, nil
	}
	if err != nil {
		return fmt.Errorf("prime: %w", err)
	}
	*c = ContractClass{
		Prime:                  prime,
		CompilerVersion:        w.CompilerVersion,
		Bytecode:               w.Bytecode,
		BytecodeSegmentLengths: w.BytecodeSegmentLengths,
		Hints:                  w.Hints,
		PythonicHints:          w.PythonicHints,
		EntryPointsByType:      w.EntryPointsByType,
	}
	return nil
}

// Validate checks hint positions, entry point offsets and segment lengths
// against the bytecode.
func (c *ContractClass) Validate() error {
	if err := validateHints(c.Bytecode, c.Hints); err != nil {
		return err
	}
	if c.BytecodeSegmentLengths != nil {
		sum := 0
		for _, n := range c.BytecodeSegmentLengths {
			if n < 0 {
				return fmt.Errorf("negative bytecode segment length %d", n)
			}
			sum += n
		}
		if sum != len(c.Bytecode) {
			return fmt.Errorf("bytecode segment lengths sum to %d, bytecode has %d words", sum, len(c.Bytecode))
		}
	}
	return c.EntryPointsByType.Each(func(kind string, eps EntryPointList) error {
		for _, ep := range eps {
			if ep.Offset < 0 || ep.Offset >= len(c.Bytecode) {
				return fmt.Errorf("%s entry point offset %d outside bytecode of length %d", kind, ep.Offset, len(c.Bytecode))
			}
		}
		return nil
	})
}
