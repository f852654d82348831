package lowering

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/usc/internal/sierra"
)

// MetadataConfig tunes metadata computation.
type MetadataConfig struct {
	// SkipGas leaves gas costs empty even when the program withdraws gas.
	SkipGas bool
}

// Metadata is what the compiler needs beyond the program itself.
type Metadata struct {
	// TypeSizes is the cell size of every declared type.
	TypeSizes map[uint64]int

	// GasCosts is the amount withdrawn by each withdraw_gas statement: the
	// worst-case cost of its success path up to the next withdrawal or return.
	GasCosts map[int]int64

	// FunctionCosts is the worst-case cost of each function, keyed by id.
	FunctionCosts map[uint64]int64
}

// CalcMetadata computes type sizes and, when the program withdraws gas,
// statement and function costs. A cycle that does not pass through
// withdraw_gas makes the cost unbounded and fails the computation.
func CalcMetadata(p *sierra.Program, cfg MetadataConfig) (*Metadata, error) {
	reg, err := newRegistry(p)
	if err != nil {
		return nil, err
	}
	if err := reg.resolveSizes(); err != nil {
		return nil, err
	}
	md := &Metadata{
		TypeSizes:     reg.sizes,
		GasCosts:      map[int]int64{},
		FunctionCosts: map[uint64]int64{},
	}
	if cfg.SkipGas || !usesGas(p) {
		return md, nil
	}

	g := &gasSolver{
		prog:     p,
		reg:      reg,
		stmt:     make(map[int]int64),
		inStmt:   make(map[int]bool),
		fn:       make(map[int]int64),
		inFn:     make(map[int]bool),
		withdraw: make(map[int]int),
	}
	for fi := range p.Funcs {
		cost, err := g.function(fi)
		if err != nil {
			return nil, fmt.Errorf("gas computation failed: %w", err)
		}
		md.FunctionCosts[p.Funcs[fi].ID.ID] = cost
	}
	// Success paths can reach further withdraw_gas statements.
	for len(md.GasCosts) < len(g.withdraw) {
		for _, idx := range slices.Sorted(maps.Keys(g.withdraw)) {
			if _, done := md.GasCosts[idx]; done {
				continue
			}
			cost, err := g.path(g.withdraw[idx])
			if err != nil {
				return nil, fmt.Errorf("gas computation failed: %w", err)
			}
			md.GasCosts[idx] = cost
		}
	}
	return md, nil
}

func usesGas(p *sierra.Program) bool {
	for _, d := range p.LibfuncDeclarations {
		if d.LongID.GenericID == "withdraw_gas" {
			return true
		}
	}
	return false
}

// gasSolver computes worst-case path costs by memoized search.
type gasSolver struct {
	prog     *sierra.Program
	reg      *registry
	stmt     map[int]int64
	inStmt   map[int]bool
	fn       map[int]int64
	inFn     map[int]bool
	withdraw map[int]int // withdraw_gas statement -> success target
}

func (g *gasSolver) function(fi int) (int64, error) {
	if c, ok := g.fn[fi]; ok {
		return c, nil
	}
	f := g.prog.Funcs[fi]
	if g.inFn[fi] {
		return 0, fmt.Errorf("function %s recurses without withdraw_gas", f.ID)
	}
	g.inFn[fi] = true
	defer delete(g.inFn, fi)

	c, err := g.path(f.EntryPoint)
	if err != nil {
		return 0, err
	}
	g.fn[fi] = c
	return c, nil
}

// path returns the worst-case cost from idx to a return or a withdraw_gas
// statement. A withdraw_gas statement costs its base plus its failure path;
// its success path is paid for by the withdrawal itself.
func (g *gasSolver) path(idx int) (int64, error) {
	if idx < 0 || idx >= len(g.prog.Statements) {
		return 0, fmt.Errorf("statement index %d out of range", idx)
	}
	if c, ok := g.stmt[idx]; ok {
		return c, nil
	}
	if g.inStmt[idx] {
		return 0, fmt.Errorf("statement %d is part of a cycle without withdraw_gas", idx)
	}
	g.inStmt[idx] = true
	defer delete(g.inStmt, idx)

	s := g.prog.Statements[idx]
	if s.IsReturn() {
		g.stmt[idx] = stepCost
		return stepCost, nil
	}

	decl, ok := g.reg.libfuncs[s.Invocation.LibfuncID.ID]
	if !ok {
		return 0, fmt.Errorf("statement %d: undeclared libfunc %s", idx, s.Invocation.LibfuncID)
	}
	lib, ok := libfuncs[decl.LongID.GenericID]
	if !ok {
		return 0, fmt.Errorf("statement %d: unsupported libfunc %s", idx, decl.LongID)
	}
	cost := lib.cost

	branches := s.Invocation.Branches
	switch decl.LongID.GenericID {
	case "withdraw_gas":
		if len(branches) != 2 {
			return 0, fmt.Errorf("statement %d: withdraw_gas needs 2 branches", idx)
		}
		g.withdraw[idx] = branches[0].Target.Resolve(idx)
		branches = branches[1:]
	case "function_call":
		args := decl.LongID.GenericArgs
		if len(args) != 1 || args[0].Kind != sierra.ArgUserFunc {
			return 0, fmt.Errorf("statement %d: malformed %s", idx, decl.LongID)
		}
		fi, ok := g.reg.funcs[args[0].ID.ID]
		if !ok {
			return 0, fmt.Errorf("statement %d: undeclared function %s", idx, args[0].ID)
		}
		callee, err := g.function(fi)
		if err != nil {
			return 0, err
		}
		cost += callee
	}

	var worst int64
	for _, b := range branches {
		c, err := g.path(b.Target.Resolve(idx))
		if err != nil {
			return 0, err
		}
		worst = max(worst, c)
	}
	g.stmt[idx] = cost + worst
	return cost + worst, nil
}
