package casm

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/roach88/usc/internal/felt"
)

// Register is one of the two frame registers addressable by instructions.
type Register int

const (
	AP Register = iota
	FP
)

func (r Register) String() string {
	if r == FP {
		return "fp"
	}
	return "ap"
}

// CellRef addresses the memory cell [reg + offset].
type CellRef struct {
	Register Register
	Offset   int16
}

// Ap returns [ap + off].
func Ap(off int) CellRef { return CellRef{Register: AP, Offset: int16(off)} }

// Fp returns [fp + off].
func Fp(off int) CellRef { return CellRef{Register: FP, Offset: int16(off)} }

func (c CellRef) String() string {
	return fmt.Sprintf("[%s + %d]", c.Register, c.Offset)
}

// MarshalJSON renders {"register": "AP", "offset": -1}.
func (c CellRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Register string `json:"register"`
		Offset   int16  `json:"offset"`
	}{strings.ToUpper(c.Register.String()), c.Offset})
}

// UnmarshalJSON accepts the form produced by MarshalJSON.
func (c *CellRef) UnmarshalJSON(data []byte) error {
	var raw struct {
		Register string `json:"register"`
		Offset   int16  `json:"offset"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Register {
	case "AP":
		c.Register = AP
	case "FP":
		c.Register = FP
	default:
		return fmt.Errorf("cell ref: unknown register %q", raw.Register)
	}
	c.Offset = raw.Offset
	return nil
}

// Op is the instruction kind.
type Op int

const (
	OpAssertEq Op = iota
	OpJumpRel
	OpJnz
	OpCallRel
	OpRet
	OpAddAp
)

// ResKind selects how an assert_eq right-hand side is computed.
type ResKind int

const (
	ResDeref       ResKind = iota // [B]
	ResDoubleDeref                // [[A] + Off]
	ResImm                        // Imm
	ResAdd                        // [A] + [B] or [A] + Imm
	ResMul                        // [A] * [B] or [A] * Imm
)

// Res is the right-hand side of assert_eq, or the amount of ap += .
// For ResAdd/ResMul, a non-nil Imm replaces B.
type Res struct {
	Kind ResKind
	A    CellRef
	B    CellRef
	Off  int16
	Imm  *big.Int
}

// Deref is the operand [c].
func Deref(c CellRef) Res { return Res{Kind: ResDeref, B: c} }

// DoubleDeref is the operand [[c] + off].
func DoubleDeref(c CellRef, off int) Res { return Res{Kind: ResDoubleDeref, A: c, Off: int16(off)} }

// Imm is an immediate operand.
func Imm(v *big.Int) Res { return Res{Kind: ResImm, Imm: v} }

// Add is [a] + [b].
func Add(a, b CellRef) Res { return Res{Kind: ResAdd, A: a, B: b} }

// AddImm is [a] + imm.
func AddImm(a CellRef, imm *big.Int) Res { return Res{Kind: ResAdd, A: a, Imm: imm} }

// Mul is [a] * [b].
func Mul(a, b CellRef) Res { return Res{Kind: ResMul, A: a, B: b} }

// MulImm is [a] * imm.
func MulImm(a CellRef, imm *big.Int) Res { return Res{Kind: ResMul, A: a, Imm: imm} }

func (r Res) String() string {
	switch r.Kind {
	case ResDeref:
		return r.B.String()
	case ResDoubleDeref:
		return fmt.Sprintf("[%s + %d]", r.A, r.Off)
	case ResImm:
		return r.Imm.String()
	case ResAdd, ResMul:
		op := "+"
		if r.Kind == ResMul {
			op = "*"
		}
		if r.Imm != nil {
			return fmt.Sprintf("%s %s %s", r.A, op, r.Imm)
		}
		return fmt.Sprintf("%s %s %s", r.A, op, r.B)
	}
	return "?"
}

func (r Res) hasImm() bool {
	return r.Kind == ResImm || ((r.Kind == ResAdd || r.Kind == ResMul) && r.Imm != nil)
}

// Instruction is one CASM instruction plus the hints that run before it.
//
// For jumps and calls, Rel holds the relative pc offset once resolved.
// A relative jump with RelCell set reads its offset from that cell instead.
type Instruction struct {
	Op        Op
	Dst       CellRef
	Res       Res
	Rel       int
	RelCell   *CellRef
	ApPlusOne bool
	Hints     []Hint
}

// Size is the number of bytecode words the instruction occupies.
func (ins Instruction) Size() int {
	switch ins.Op {
	case OpRet:
		return 1
	case OpAssertEq, OpAddAp:
		if ins.Res.hasImm() {
			return 2
		}
		return 1
	case OpJumpRel:
		if ins.RelCell != nil {
			return 1
		}
		return 2
	default:
		return 2
	}
}

func (ins Instruction) String() string {
	var s string
	switch ins.Op {
	case OpAssertEq:
		s = fmt.Sprintf("%s = %s", ins.Dst, ins.Res)
	case OpJumpRel:
		if ins.RelCell != nil {
			s = fmt.Sprintf("jmp rel %s", *ins.RelCell)
		} else {
			s = fmt.Sprintf("jmp rel %d", ins.Rel)
		}
	case OpJnz:
		s = fmt.Sprintf("jmp rel %d if %s != 0", ins.Rel, ins.Dst)
	case OpCallRel:
		s = fmt.Sprintf("call rel %d", ins.Rel)
	case OpRet:
		return "ret"
	case OpAddAp:
		s = fmt.Sprintf("ap += %s", ins.Res)
	}
	if ins.ApPlusOne {
		s += ", ap++"
	}
	return s
}

// Flag bit positions of the Cairo instruction word.
const (
	flagDstReg    = 0
	flagOp0Reg    = 1
	flagOp1Imm    = 2
	flagOp1Fp     = 3
	flagOp1Ap     = 4
	flagResAdd    = 5
	flagResMul    = 6
	flagPcJumpAbs = 7
	flagPcJumpRel = 8
	flagPcJnz     = 9
	flagApAdd     = 10
	flagApAdd1    = 11
	flagOpCall    = 12
	flagOpRet     = 13
	flagOpAssert  = 14

	offsetBias = 1 << 15
)

type encoding struct {
	offDst, offOp0, offOp1 int16
	flags                  uint64
	imm                    *big.Int
}

func (e *encoding) set(bit uint) { e.flags |= 1 << bit }

func (e *encoding) dst(c CellRef) {
	e.offDst = c.Offset
	if c.Register == FP {
		e.set(flagDstReg)
	}
}

func (e *encoding) op0(c CellRef) {
	e.offOp0 = c.Offset
	if c.Register == FP {
		e.set(flagOp0Reg)
	}
}

func (e *encoding) op1Cell(c CellRef) {
	e.offOp1 = c.Offset
	if c.Register == FP {
		e.set(flagOp1Fp)
	} else {
		e.set(flagOp1Ap)
	}
}

func (e *encoding) op1Imm(v *big.Int) {
	e.offOp1 = 1
	e.set(flagOp1Imm)
	e.imm = felt.Reduce(v)
}

func (e *encoding) words() []*big.Int {
	w := new(big.Int).SetUint64(uint64(uint16(int32(e.offDst) + offsetBias)))
	w.Or(w, new(big.Int).Lsh(new(big.Int).SetUint64(uint64(uint16(int32(e.offOp0)+offsetBias))), 16))
	w.Or(w, new(big.Int).Lsh(new(big.Int).SetUint64(uint64(uint16(int32(e.offOp1)+offsetBias))), 32))
	w.Or(w, new(big.Int).Lsh(new(big.Int).SetUint64(e.flags), 48))
	if e.imm != nil {
		return []*big.Int{w, e.imm}
	}
	return []*big.Int{w}
}

// Encode renders the instruction as bytecode words.
func (ins Instruction) Encode() ([]*big.Int, error) {
	e := &encoding{}
	unusedFp := Fp(-1)

	switch ins.Op {
	case OpAssertEq:
		e.set(flagOpAssert)
		e.dst(ins.Dst)
		if err := e.res(ins.Res, unusedFp); err != nil {
			return nil, err
		}
	case OpAddAp:
		if ins.ApPlusOne {
			return nil, fmt.Errorf("ap += cannot be combined with ap++")
		}
		e.set(flagApAdd)
		e.dst(unusedFp)
		if err := e.res(ins.Res, unusedFp); err != nil {
			return nil, err
		}
	case OpJumpRel:
		e.set(flagPcJumpRel)
		e.dst(unusedFp)
		e.op0(unusedFp)
		if ins.RelCell != nil {
			e.op1Cell(*ins.RelCell)
		} else {
			e.op1Imm(big.NewInt(int64(ins.Rel)))
		}
	case OpJnz:
		e.set(flagPcJnz)
		e.dst(ins.Dst)
		e.op0(unusedFp)
		e.op1Imm(big.NewInt(int64(ins.Rel)))
	case OpCallRel:
		if ins.ApPlusOne {
			return nil, fmt.Errorf("call cannot be combined with ap++")
		}
		e.set(flagOpCall)
		e.set(flagPcJumpRel)
		e.dst(Ap(0))
		e.op0(Ap(1))
		e.op1Imm(big.NewInt(int64(ins.Rel)))
	case OpRet:
		e.set(flagOpRet)
		e.set(flagPcJumpAbs)
		e.dst(Fp(-2))
		e.op0(unusedFp)
		e.op1Cell(Fp(-1))
	default:
		return nil, fmt.Errorf("unknown op %d", ins.Op)
	}

	if ins.ApPlusOne {
		e.set(flagApAdd1)
	}
	return e.words(), nil
}

func (e *encoding) res(r Res, unused CellRef) error {
	switch r.Kind {
	case ResDeref:
		e.op0(unused)
		e.op1Cell(r.B)
	case ResDoubleDeref:
		e.op0(r.A)
		e.offOp1 = r.Off
	case ResImm:
		if r.Imm == nil {
			return fmt.Errorf("immediate operand without value")
		}
		e.op0(unused)
		e.op1Imm(r.Imm)
	case ResAdd, ResMul:
		e.op0(r.A)
		if r.Imm != nil {
			e.op1Imm(r.Imm)
		} else {
			e.op1Cell(r.B)
		}
		if r.Kind == ResAdd {
			e.set(flagResAdd)
		} else {
			e.set(flagResMul)
		}
	default:
		return fmt.Errorf("unknown operand kind %d", r.Kind)
	}
	return nil
}
