package lowering

import (
	"fmt"

	"github.com/roach88/usc/internal/casm"
)

// label names a position in the instruction stream.
type label int

type reloc struct {
	ins    int
	target label
}

// emitter accumulates instructions and patches relative offsets once the
// layout is final. Instruction sizes never depend on offsets, so a single
// resolve pass suffices.
type emitter struct {
	instrs  []casm.Instruction
	labels  []int
	relocs  []reloc
	pending []casm.Hint
}

func (e *emitter) newLabel() label {
	e.labels = append(e.labels, -1)
	return label(len(e.labels) - 1)
}

func (e *emitter) bind(l label) {
	e.labels[l] = len(e.instrs)
}

// hint attaches h to the next emitted instruction.
func (e *emitter) hint(h casm.Hint) {
	e.pending = append(e.pending, h)
}

func (e *emitter) emit(ins casm.Instruction) {
	if len(e.pending) > 0 {
		ins.Hints = append(ins.Hints, e.pending...)
		e.pending = nil
	}
	e.instrs = append(e.instrs, ins)
}

// jump emits a relative jump (or call, or jnz on dst) to a label.
func (e *emitter) jump(op casm.Op, dst casm.CellRef, target label) {
	e.relocs = append(e.relocs, reloc{ins: len(e.instrs), target: target})
	e.emit(casm.Instruction{Op: op, Dst: dst})
}

// resolve patches every relocation and returns the pc of each instruction
// index, including the end position.
func (e *emitter) resolve() ([]int, error) {
	if len(e.pending) > 0 {
		return nil, fmt.Errorf("%d hints not attached to any instruction", len(e.pending))
	}
	pcs := make([]int, len(e.instrs)+1)
	for i, ins := range e.instrs {
		pcs[i+1] = pcs[i] + ins.Size()
	}
	for _, r := range e.relocs {
		at := e.labels[r.target]
		if at < 0 {
			return nil, fmt.Errorf("unbound label %d", r.target)
		}
		if at >= len(e.instrs) {
			return nil, fmt.Errorf("jump from instruction %d past the end of the program", r.ins)
		}
		e.instrs[r.ins].Rel = pcs[at] - pcs[r.ins]
	}
	return pcs, nil
}
