package casm

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/roach88/usc/internal/felt"
)

// HintKind names a hint.
type HintKind string

const (
	HintTestLessThan        HintKind = "TestLessThan"
	HintTestLessThanOrEqual HintKind = "TestLessThanOrEqual"
	HintAllocSegment        HintKind = "AllocSegment"
)

// Operand is a hint input: either a cell dereference or an immediate.
type Operand struct {
	Deref     *CellRef
	Immediate *big.Int
}

// CellOperand is the hint operand [c].
func CellOperand(c CellRef) Operand { return Operand{Deref: &c} }

// ImmOperand is an immediate hint operand.
func ImmOperand(v *big.Int) Operand { return Operand{Immediate: v} }

func (o Operand) pythonic() string {
	if o.Deref != nil {
		return pythonicCell(*o.Deref)
	}
	return o.Immediate.String()
}

// MarshalJSON renders {"Deref": {...}} or {"Immediate": "0x.."}.
func (o Operand) MarshalJSON() ([]byte, error) {
	if o.Deref != nil {
		return json.Marshal(map[string]CellRef{"Deref": *o.Deref})
	}
	if o.Immediate == nil {
		return nil, fmt.Errorf("empty hint operand")
	}
	return json.Marshal(map[string]string{"Immediate": felt.Hex(felt.Reduce(o.Immediate))})
}

// UnmarshalJSON accepts the form produced by MarshalJSON.
func (o *Operand) UnmarshalJSON(data []byte) error {
	var raw struct {
		Deref     *CellRef `json:"Deref"`
		Immediate *string  `json:"Immediate"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Deref != nil && raw.Immediate == nil:
		o.Deref = raw.Deref
	case raw.Immediate != nil && raw.Deref == nil:
		v, err := felt.Parse(*raw.Immediate)
		if err != nil {
			return fmt.Errorf("hint operand: %w", err)
		}
		o.Immediate = v
	default:
		return fmt.Errorf("hint operand: expected exactly one of Deref, Immediate")
	}
	return nil
}

// Hint is a non-deterministic side-channel instruction run by the VM before
// the instruction it is attached to.
type Hint struct {
	Kind HintKind
	Lhs  *Operand
	Rhs  *Operand
	Dst  CellRef
}

// TestLessThan sets dst to 1 if lhs < rhs, else 0.
func TestLessThan(lhs, rhs Operand, dst CellRef) Hint {
	return Hint{Kind: HintTestLessThan, Lhs: &lhs, Rhs: &rhs, Dst: dst}
}

// TestLessThanOrEqual sets dst to 1 if lhs <= rhs, else 0.
func TestLessThanOrEqual(lhs, rhs Operand, dst CellRef) Hint {
	return Hint{Kind: HintTestLessThanOrEqual, Lhs: &lhs, Rhs: &rhs, Dst: dst}
}

// AllocSegment stores the base of a fresh memory segment in dst.
func AllocSegment(dst CellRef) Hint {
	return Hint{Kind: HintAllocSegment, Dst: dst}
}

// Pythonic renders the hint as Python hint code.
func (h Hint) Pythonic() string {
	switch h.Kind {
	case HintTestLessThan:
		return fmt.Sprintf("%s = %s < %s", pythonicCell(h.Dst), h.Lhs.pythonic(), h.Rhs.pythonic())
	case HintTestLessThanOrEqual:
		return fmt.Sprintf("%s = %s <= %s", pythonicCell(h.Dst), h.Lhs.pythonic(), h.Rhs.pythonic())
	case HintAllocSegment:
		return fmt.Sprintf("%s = segments.add()", pythonicCell(h.Dst))
	}
	return ""
}

func pythonicCell(c CellRef) string {
	return fmt.Sprintf("memory[%s + %d]", c.Register, c.Offset)
}

type hintBody struct {
	Lhs *Operand `json:"lhs,omitempty"`
	Rhs *Operand `json:"rhs,omitempty"`
	Dst CellRef  `json:"dst"`
}

// MarshalJSON renders the externally tagged form, e.g.
// {"AllocSegment": {"dst": {...}}}.
func (h Hint) MarshalJSON() ([]byte, error) {
	switch h.Kind {
	case HintTestLessThan, HintTestLessThanOrEqual:
		if h.Lhs == nil || h.Rhs == nil {
			return nil, fmt.Errorf("hint %s: missing operand", h.Kind)
		}
	case HintAllocSegment:
	default:
		return nil, fmt.Errorf("unknown hint kind %q", h.Kind)
	}
	return json.Marshal(map[HintKind]hintBody{h.Kind: {Lhs: h.Lhs, Rhs: h.Rhs, Dst: h.Dst}})
}

// UnmarshalJSON accepts the externally tagged form.
func (h *Hint) UnmarshalJSON(data []byte) error {
	var tagged map[HintKind]hintBody
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("hint: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("hint: expected exactly one variant, got %d", len(tagged))
	}
	for kind, body := range tagged {
		switch kind {
		case HintTestLessThan, HintTestLessThanOrEqual:
			if body.Lhs == nil || body.Rhs == nil {
				return fmt.Errorf("hint %s: missing operand", kind)
			}
		case HintAllocSegment:
			if body.Lhs != nil || body.Rhs != nil {
				return fmt.Errorf("hint %s: unexpected operands", kind)
			}
		default:
			return fmt.Errorf("hint: unknown variant %q", kind)
		}
		*h = Hint{Kind: kind, Lhs: body.Lhs, Rhs: body.Rhs, Dst: body.Dst}
	}
	return nil
}
