package lowering

import (
	"fmt"
	"maps"
	"math"
	"math/big"
	"slices"

	"github.com/roach88/usc/internal/casm"
	"github.com/roach88/usc/internal/sierra"
)

// Config controls code generation.
type Config struct {
	// GasUsageCheck requires a computed cost for every withdraw_gas statement.
	GasUsageCheck bool

	// MaxBytecodeSize bounds the emitted code size in words. Zero means unlimited.
	MaxBytecodeSize int

	// Libfuncs restricts the accepted generic libfuncs. Nil accepts every
	// supported libfunc.
	Libfuncs []string
}

// maxFrameOffset bounds fp-relative offsets so they fit an instruction word.
const maxFrameOffset = math.MaxInt16 - 2

// slot is the frame location of a variable.
type slot struct {
	base casm.CellRef
	size int
	ty   uint64
}

func (s slot) cell(i int) casm.CellRef {
	return casm.CellRef{Register: s.base.Register, Offset: s.base.Offset + int16(i)}
}

// sub returns the size-n sub-slot starting at cell off.
func (s slot) sub(off, n int, ty uint64) slot {
	return slot{base: s.cell(off), size: n, ty: ty}
}

type move struct {
	dst, src slot
}

type plannedStmt struct {
	fn      int
	env     map[uint64]slot
	lib     *libfunc
	long    sierra.LongID
	args    []slot
	results [][]slot
	moves   [][]move
	scratch slot
	callee  int
}

type frameInfo struct {
	locals int
}

type compiler struct {
	prog    *sierra.Program
	reg     *registry
	md      *Metadata
	cfg     Config
	allowed map[string]bool

	plans  []*plannedStmt
	frames []frameInfo

	*emitter
	stmtStart []label
	stmtBody  []label
}

// Compile lowers a Sierra program to CASM. Every statement yields one debug
// entry holding its code offset and first instruction index.
func Compile(p *sierra.Program, md *Metadata, cfg Config) (*casm.CairoProgram, error) {
	if md == nil {
		return nil, fmt.Errorf("missing metadata")
	}
	reg, err := newRegistry(p)
	if err != nil {
		return nil, err
	}
	reg.sizes = md.TypeSizes
	if reg.sizes == nil {
		reg.sizes = map[uint64]int{}
	}

	c := &compiler{
		prog:    p,
		reg:     reg,
		md:      md,
		cfg:     cfg,
		plans:   make([]*plannedStmt, len(p.Statements)),
		frames:  make([]frameInfo, len(p.Funcs)),
		emitter: &emitter{},
	}
	if cfg.Libfuncs != nil {
		c.allowed = make(map[string]bool, len(cfg.Libfuncs))
		for _, name := range cfg.Libfuncs {
			c.allowed[name] = true
		}
	}
	if err := c.checkLibfuncs(); err != nil {
		return nil, err
	}
	for fi := range p.Funcs {
		if err := c.planFunction(fi); err != nil {
			return nil, fmt.Errorf("function %s: %w", p.Funcs[fi].ID, err)
		}
	}

	debug, err := c.emitAll()
	if err != nil {
		return nil, err
	}
	pcs, err := c.resolve()
	if err != nil {
		return nil, err
	}

	out := &casm.CairoProgram{Instructions: c.instrs, DebugInfo: make([]casm.DebugEntry, len(debug))}
	for i, ins := range debug {
		out.DebugInfo[i] = casm.DebugEntry{Offset: pcs[ins], InstructionIdx: ins}
	}
	if cfg.MaxBytecodeSize > 0 && out.CodeSize() > cfg.MaxBytecodeSize {
		return nil, fmt.Errorf("code size limit exceeded: %d words, limit %d", out.CodeSize(), cfg.MaxBytecodeSize)
	}
	return out, nil
}

// FunctionOffset returns the code offset of a function's entry statement.
func FunctionOffset(cp *casm.CairoProgram, f sierra.Function) (int, error) {
	if f.EntryPoint < 0 || f.EntryPoint >= len(cp.DebugInfo) {
		return 0, fmt.Errorf("function %s: entry point %d has no code", f.ID, f.EntryPoint)
	}
	return cp.DebugInfo[f.EntryPoint].Offset, nil
}

func (c *compiler) checkLibfuncs() error {
	for _, d := range c.prog.LibfuncDeclarations {
		name := d.LongID.GenericID
		if _, ok := libfuncs[name]; !ok {
			return fmt.Errorf("unsupported libfunc %s", d.LongID)
		}
		if c.allowed != nil && !c.allowed[name] {
			return fmt.Errorf("libfunc %s is not allowed in this compiler version", d.LongID)
		}
	}
	return nil
}

type edge struct {
	from, branch, to int
	env              map[uint64]slot
}

// planFunction walks the statements reachable from a function's entry point,
// assigning a frame slot to every defined variable. Parameters sit below the
// frame pointer; locals start at [fp + 0].
func (c *compiler) planFunction(fi int) error {
	f := &c.prog.Funcs[fi]
	fr := &c.frames[fi]

	env := make(map[uint64]slot, len(f.Params))
	total := 0
	sizes := make([]int, len(f.Params))
	for i, p := range f.Params {
		n, ok := c.reg.sizes[p.Ty.ID]
		if !ok {
			return fmt.Errorf("param %s: undeclared type %s", p.ID, p.Ty)
		}
		sizes[i] = n
		total += n
	}
	if total > maxFrameOffset {
		return fmt.Errorf("parameters too large: %d cells", total)
	}
	off := -2 - total
	for i, p := range f.Params {
		env[p.ID.ID] = slot{base: casm.Fp(off), size: sizes[i], ty: p.Ty.ID}
		off += sizes[i]
	}

	alloc := func(size int, ty uint64) (slot, error) {
		if fr.locals+size > maxFrameOffset {
			return slot{}, fmt.Errorf("frame exceeds %d cells", maxFrameOffset)
		}
		s := slot{base: casm.Fp(fr.locals), size: size, ty: ty}
		fr.locals += size
		return s, nil
	}

	stack := []edge{{from: -1, to: f.EntryPoint, env: env}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if e.to < 0 || e.to >= len(c.prog.Statements) {
			return fmt.Errorf("statement %d: branch target %d out of range", e.from, e.to)
		}
		if p := c.plans[e.to]; p != nil {
			if p.fn != fi {
				return fmt.Errorf("statement %d is reachable from functions %s and %s",
					e.to, c.prog.Funcs[p.fn].ID, f.ID)
			}
			if e.from >= 0 {
				for _, v := range usedVars(c.prog.Statements[e.to]) {
					if _, ok := e.env[v.ID]; !ok {
						return fmt.Errorf("statement %d: variable %s undefined when reached from statement %d", e.to, v, e.from)
					}
				}
				c.plans[e.from].moves[e.branch] = joinMoves(p.env, e.env)
			}
			continue
		}

		idx := e.to
		plan := &plannedStmt{fn: fi, env: e.env, callee: -1}
		c.plans[idx] = plan
		stmt := c.prog.Statements[idx]

		if stmt.IsReturn() {
			if err := c.checkReturn(f, idx, stmt.Return, e.env); err != nil {
				return err
			}
			continue
		}

		if err := c.planInvocation(idx, plan, stmt.Invocation, alloc); err != nil {
			return fmt.Errorf("statement %d: %w", idx, err)
		}

		inv := stmt.Invocation
		plan.moves = make([][]move, len(inv.Branches))
		// Push in reverse so branch 0 is explored first.
		for b := len(inv.Branches) - 1; b >= 0; b-- {
			next := maps.Clone(e.env)
			for _, a := range inv.Args {
				delete(next, a.ID)
			}
			for j, r := range inv.Branches[b].Results {
				next[r.ID] = plan.results[b][j]
			}
			stack = append(stack, edge{from: idx, branch: b, to: inv.Branches[b].Target.Resolve(idx), env: next})
		}
	}
	return nil
}

func usedVars(s sierra.Statement) []sierra.ID {
	if s.IsReturn() {
		return s.Return
	}
	return s.Invocation.Args
}

// joinMoves copies variables reaching an already planned statement into the
// slots that statement was planned with.
func joinMoves(planned, incoming map[uint64]slot) []move {
	var out []move
	ids := slices.Sorted(maps.Keys(planned))
	for _, id := range ids {
		dst := planned[id]
		src, ok := incoming[id]
		if !ok || src.base == dst.base {
			continue
		}
		out = append(out, move{dst: dst, src: src})
	}
	return out
}

func (c *compiler) checkReturn(f *sierra.Function, idx int, vars []sierra.ID, env map[uint64]slot) error {
	if len(vars) != len(f.Signature.RetTypes) {
		return fmt.Errorf("statement %d: returning %d values, function returns %d", idx, len(vars), len(f.Signature.RetTypes))
	}
	for i, v := range vars {
		s, ok := env[v.ID]
		if !ok {
			return fmt.Errorf("statement %d: variable %s used before definition", idx, v)
		}
		if s.ty != f.Signature.RetTypes[i].ID {
			return fmt.Errorf("statement %d: return value %d has type %s, expected %s",
				idx, i, c.reg.typeName(s.ty), c.reg.typeName(f.Signature.RetTypes[i].ID))
		}
	}
	return nil
}

func (c *compiler) planInvocation(idx int, plan *plannedStmt, inv *sierra.Invocation, alloc func(int, uint64) (slot, error)) error {
	decl, ok := c.reg.libfuncs[inv.LibfuncID.ID]
	if !ok {
		return fmt.Errorf("undeclared libfunc %s", inv.LibfuncID)
	}
	lib := libfuncs[decl.LongID.GenericID]
	plan.lib = &lib
	plan.long = decl.LongID

	argTypes := make([]uint64, len(inv.Args))
	plan.args = make([]slot, len(inv.Args))
	seen := make(map[uint64]bool, len(inv.Args))
	for i, a := range inv.Args {
		s, ok := plan.env[a.ID]
		if !ok {
			return fmt.Errorf("variable %s used before definition", a)
		}
		if seen[a.ID] {
			return fmt.Errorf("variable %s passed twice", a)
		}
		seen[a.ID] = true
		plan.args[i] = s
		argTypes[i] = s.ty
	}

	sc := &sigCtx{reg: c.reg, long: decl.LongID, args: argTypes, callee: -1}
	outs, err := lib.signature(sc)
	if err != nil {
		return fmt.Errorf("%s: %w", decl.LongID, err)
	}
	plan.callee = sc.callee
	if len(outs) != len(inv.Branches) {
		return fmt.Errorf("%s: %d branches, expected %d", decl.LongID, len(inv.Branches), len(outs))
	}

	plan.results = make([][]slot, len(outs))
	for b, types := range outs {
		results := inv.Branches[b].Results
		if len(results) != len(types) {
			return fmt.Errorf("%s branch %d: %d results, expected %d", decl.LongID, b, len(results), len(types))
		}
		dup := make(map[uint64]bool, len(results))
		plan.results[b] = make([]slot, len(types))
		for j, ty := range types {
			if dup[results[j].ID] {
				return fmt.Errorf("%s branch %d: variable %s defined twice", decl.LongID, b, results[j])
			}
			dup[results[j].ID] = true
			n, ok := c.reg.sizes[ty]
			if !ok {
				return fmt.Errorf("undeclared type [%d]", ty)
			}
			if plan.results[b][j], err = alloc(n, ty); err != nil {
				return err
			}
		}
	}

	if lib.scratch > 0 {
		if plan.scratch, err = alloc(lib.scratch, 0); err != nil {
			return err
		}
	}
	return nil
}

// emitAll lays out every statement in index order. Unreachable statements
// produce no code. It returns the first instruction index of each statement.
func (c *compiler) emitAll() ([]int, error) {
	n := len(c.prog.Statements)
	c.stmtStart = make([]label, n)
	c.stmtBody = make([]label, n)
	for i := range n {
		c.stmtStart[i] = c.newLabel()
		c.stmtBody[i] = c.newLabel()
	}
	entries := make(map[int]int, len(c.prog.Funcs))
	for fi, f := range c.prog.Funcs {
		entries[f.EntryPoint] = fi
	}

	debug := make([]int, n)
	for idx, stmt := range c.prog.Statements {
		debug[idx] = len(c.instrs)
		c.bind(c.stmtStart[idx])
		plan := c.plans[idx]
		if fi, ok := entries[idx]; ok && plan != nil && plan.fn == fi && c.frames[fi].locals > 0 {
			c.emit(casm.Instruction{Op: casm.OpAddAp, Res: casm.Imm(big.NewInt(int64(c.frames[fi].locals)))})
		}
		c.bind(c.stmtBody[idx])
		if plan == nil {
			continue
		}

		if stmt.IsReturn() {
			for _, v := range stmt.Return {
				c.push(plan.env[v.ID])
			}
			c.emit(casm.Instruction{Op: casm.OpRet})
			continue
		}

		sc := &stmtCtx{compiler: c, idx: idx, inv: stmt.Invocation, plan: plan}
		if err := plan.lib.lower(sc); err != nil {
			return nil, fmt.Errorf("statement %d: %s: %w", idx, plan.long, err)
		}
	}
	return debug, nil
}

// push appends a slot's cells at ap.
func (c *compiler) push(s slot) {
	for i := 0; i < s.size; i++ {
		c.emit(casm.Instruction{Op: casm.OpAssertEq, Dst: casm.Ap(0), Res: casm.Deref(s.cell(i)), ApPlusOne: true})
	}
}

// copySlot asserts dst equal to src cell by cell.
func (c *compiler) copySlot(dst, src slot) {
	for i := 0; i < dst.size && i < src.size; i++ {
		c.emit(casm.Instruction{Op: casm.OpAssertEq, Dst: dst.cell(i), Res: casm.Deref(src.cell(i))})
	}
}

// stmtCtx is handed to libfunc lowering.
type stmtCtx struct {
	*compiler
	idx  int
	inv  *sierra.Invocation
	plan *plannedStmt
}

func (s *stmtCtx) arg(i int) slot         { return s.plan.args[i] }
func (s *stmtCtx) result(b, j int) slot   { return s.plan.results[b][j] }
func (s *stmtCtx) tmp(i int) casm.CellRef { return s.plan.scratch.cell(i) }

// target returns the statement index branch b continues at.
func (s *stmtCtx) target(b int) int {
	return s.inv.Branches[b].Target.Resolve(s.idx)
}

// goBranch performs the join moves of branch b and jumps to its target.
func (s *stmtCtx) goBranch(b int) {
	s.branchMoves(b)
	s.jump(casm.OpJumpRel, casm.CellRef{}, s.stmtBody[s.target(b)])
}

// endBranch is goBranch for the code laid out last in the statement; the
// jump is dropped when the target is the next statement.
func (s *stmtCtx) endBranch(b int) {
	s.branchMoves(b)
	if s.target(b) != s.idx+1 {
		s.jump(casm.OpJumpRel, casm.CellRef{}, s.stmtBody[s.target(b)])
	}
}

func (s *stmtCtx) branchMoves(b int) {
	if b < len(s.plan.moves) {
		for _, m := range s.plan.moves[b] {
			s.copySlot(m.dst, m.src)
		}
	}
}

func (s *stmtCtx) genericValue(i int) (*big.Int, error) {
	args := s.plan.long.GenericArgs
	if i >= len(args) || args[i].Kind != sierra.ArgValue || args[i].Value == nil {
		return nil, fmt.Errorf("expected a value as generic argument %d", i)
	}
	return args[i].Value, nil
}
