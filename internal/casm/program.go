package casm

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/roach88/usc/internal/felt"
)

// Bytecode is a sequence of felt words, rendered as 0x-prefixed hex strings.
type Bytecode []*big.Int

// MarshalJSON renders hex strings; a nil slice renders as [].
func (b Bytecode) MarshalJSON() ([]byte, error) {
	out := make([]string, len(b))
	for i, w := range b {
		if w == nil {
			return nil, fmt.Errorf("bytecode word %d is nil", i)
		}
		out[i] = felt.Hex(w)
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts hex or decimal strings.
func (b *Bytecode) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("bytecode: %w", err)
	}
	out := make(Bytecode, len(raw))
	for i, s := range raw {
		v, err := felt.Parse(s)
		if err != nil {
			return fmt.Errorf("bytecode word %d: %w", i, err)
		}
		out[i] = v
	}
	*b = out
	return nil
}

// HintEntry attaches hints to a bytecode position. On the wire it is the
// pair [pos, [hint, ...]].
type HintEntry struct {
	Pos   int
	Hints []Hint
}

// MarshalJSON renders [pos, hints].
func (e HintEntry) MarshalJSON() ([]byte, error) {
	hints := e.Hints
	if hints == nil {
		hints = []Hint{}
	}
	return json.Marshal([]any{e.Pos, hints})
}

// UnmarshalJSON accepts [pos, hints].
func (e *HintEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("hint entry: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("hint entry: expected [pos, hints], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Pos); err != nil {
		return fmt.Errorf("hint entry position: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Hints); err != nil {
		return fmt.Errorf("hint entry hints: %w", err)
	}
	return nil
}

// HintList renders as [] when empty.
type HintList []HintEntry

// MarshalJSON renders a nil list as [].
func (l HintList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]HintEntry(l))
}

// DebugEntry maps a Sierra statement to its code offset and the index of its
// first instruction. On the wire it is the pair [offset, instruction_idx].
type DebugEntry struct {
	Offset         int
	InstructionIdx int
}

// MarshalJSON renders [offset, instruction_idx].
func (d DebugEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{d.Offset, d.InstructionIdx})
}

// UnmarshalJSON accepts [offset, instruction_idx].
func (d *DebugEntry) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("debug entry: %w", err)
	}
	d.Offset, d.InstructionIdx = pair[0], pair[1]
	return nil
}

// CairoProgram is the compiler output before assembly: instructions with
// resolved relative offsets plus per-statement debug info.
type CairoProgram struct {
	Instructions []Instruction
	DebugInfo    []DebugEntry
}

// AssembledProgram is bytecode plus positioned hints.
type AssembledProgram struct {
	Bytecode Bytecode `json:"bytecode"`
	Hints    HintList `json:"hints"`
}

// Assemble encodes every instruction. Hints are positioned at the pc of the
// instruction they are attached to, in increasing order.
func (p *CairoProgram) Assemble() (*AssembledProgram, error) {
	out := &AssembledProgram{Bytecode: Bytecode{}, Hints: HintList{}}
	for i, ins := range p.Instructions {
		pc := len(out.Bytecode)
		words, err := ins.Encode()
		if err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i, ins, err)
		}
		if len(ins.Hints) > 0 {
			out.Hints = append(out.Hints, HintEntry{Pos: pc, Hints: ins.Hints})
		}
		out.Bytecode = append(out.Bytecode, words...)
	}
	return out, nil
}

// CodeSize is the total bytecode length in words.
func (p *CairoProgram) CodeSize() int {
	n := 0
	for _, ins := range p.Instructions {
		n += ins.Size()
	}
	return n
}

// Program is the canonical compiled artifact: bytecode, positioned hints and
// the statement debug table. It is built once and not modified afterwards.
type Program struct {
	Bytecode  Bytecode
	Hints     HintList
	DebugInfo []DebugEntry
}

// Validate checks that hints are ordered and reference existing bytecode.
func (p *Program) Validate() error {
	return validateHints(p.Bytecode, p.Hints)
}

func validateHints(bytecode Bytecode, hints HintList) error {
	for i, w := range bytecode {
		if w == nil {
			return fmt.Errorf("bytecode word %d is nil", i)
		}
	}
	last := -1
	for _, h := range hints {
		if h.Pos < 0 || h.Pos >= len(bytecode) {
			return fmt.Errorf("hint position %d outside bytecode of length %d", h.Pos, len(bytecode))
		}
		if h.Pos <= last {
			return fmt.Errorf("hint positions not strictly increasing at %d", h.Pos)
		}
		last = h.Pos
	}
	return nil
}

// RawOutput is the wire document of the raw-program path.
type RawOutput struct {
	AssembledCairoProgram AssembledProgram `json:"assembled_cairo_program"`
	DebugInfo             []DebugEntry     `json:"debug_info"`
}

// RawOutputFor builds the wire document for a compiled artifact.
func RawOutputFor(p *Program) RawOutput {
	debug := p.DebugInfo
	if debug == nil {
		debug = []DebugEntry{}
	}
	return RawOutput{
		AssembledCairoProgram: AssembledProgram{Bytecode: p.Bytecode, Hints: p.Hints},
		DebugInfo:             debug,
	}
}
