package lowering

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/roach88/usc/internal/casm"
	"github.com/roach88/usc/internal/sierra"
)

// stepCost is the gas charged for one libfunc invocation or return.
const stepCost = 100

// libfunc describes how a generic libfunc is typed, costed and lowered.
type libfunc struct {
	// cost is the base gas cost; function_call adds the callee's cost.
	cost int64

	// scratch is the number of temporary frame cells the lowering needs.
	scratch int

	// gated libfuncs are unavailable to the oldest compiler revision.
	gated bool

	// signature validates argument types and returns the result types of
	// every branch.
	signature func(*sigCtx) ([][]uint64, error)

	lower func(*stmtCtx) error
}

var libfuncs = map[string]libfunc{
	"felt252_const": {cost: stepCost, signature: constSignature("felt252", nil), lower: lowerConst},
	"felt252_add":   {cost: stepCost, signature: feltBinarySignature, lower: lowerFeltAdd},
	"felt252_sub":   {cost: stepCost, signature: feltBinarySignature, lower: lowerFeltSub},
	"felt252_mul":   {cost: stepCost, signature: feltBinarySignature, lower: lowerFeltMul},

	"store_temp":  {cost: stepCost, signature: passSignature, lower: lowerPass},
	"rename":      {signature: passSignature, lower: lowerPass},
	"dup":         {signature: dupSignature, lower: lowerDup},
	"drop":        {signature: dropSignature, lower: lowerNoop},
	"store_local": {cost: stepCost, signature: storeLocalSignature, lower: lowerStoreLocal},
	"alloc_local": {signature: allocLocalSignature, lower: lowerNoop},

	"finalize_locals":     {signature: noopSignature, lower: lowerNoop},
	"branch_align":        {signature: noopSignature, lower: lowerNoop},
	"disable_ap_tracking": {signature: noopSignature, lower: lowerNoop},
	"enable_ap_tracking":  {signature: noopSignature, lower: lowerNoop},
	"revoke_ap_tracking":  {signature: noopSignature, lower: lowerNoop},
	"jump":                {cost: stepCost, signature: noopSignature, lower: lowerNoop},

	"u128_overflowing_add": {cost: stepCost, scratch: 2, gated: true, signature: u128AddSignature, lower: lowerU128OverflowingAdd},
	"withdraw_gas":         {cost: stepCost, scratch: 3, gated: true, signature: withdrawGasSignature, lower: lowerWithdrawGas},

	"array_new":    {cost: stepCost, signature: arrayNewSignature, lower: lowerArrayNew},
	"array_append": {cost: stepCost, signature: arrayAppendSignature, lower: lowerArrayAppend},
	"array_len":    {cost: stepCost, scratch: 1, signature: arrayLenSignature, lower: lowerArrayLen},

	"struct_construct":   {cost: stepCost, signature: structConstructSignature, lower: lowerStructConstruct},
	"struct_deconstruct": {cost: stepCost, signature: structDeconstructSignature, lower: lowerStructDeconstruct},
	"enum_init":          {cost: stepCost, signature: enumInitSignature, lower: lowerEnumInit},
	"enum_match":         {cost: stepCost, scratch: 2, signature: enumMatchSignature, lower: lowerEnumMatch},

	"snapshot_take":   {signature: snapshotSignature, lower: lowerSnapshot},
	"unwrap_non_zero": {signature: unwrapNonZeroSignature, lower: lowerPass},
	"into_box":        {cost: stepCost, signature: intoBoxSignature, lower: lowerIntoBox},
	"unbox":           {cost: stepCost, signature: unboxSignature, lower: lowerUnbox},

	"function_call": {cost: stepCost, signature: functionCallSignature, lower: lowerFunctionCall},
}

// intBits maps unsigned integer types to their width.
var intBits = map[string]uint{"u8": 8, "u16": 16, "u32": 32, "u64": 64, "u128": 128}

func init() {
	for name, bits := range intBits {
		limit := new(big.Int).Lsh(big.NewInt(1), bits)
		libfuncs[name+"_const"] = libfunc{cost: stepCost, signature: constSignature(name, limit), lower: lowerConst}
	}
	for _, name := range []string{"felt252", "u8", "u16", "u32", "u64", "u128"} {
		libfuncs[name+"_is_zero"] = libfunc{cost: stepCost, signature: isZeroSignature(name), lower: lowerIsZero}
	}
}

// CoreLibfuncs lists the generic libfuncs accepted by the oldest compiler
// revision.
func CoreLibfuncs() []string {
	var out []string
	for name, lf := range libfuncs {
		if !lf.gated {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// sigCtx is handed to signature functions.
type sigCtx struct {
	reg    *registry
	long   sierra.LongID
	args   []uint64
	callee int
}

func (s *sigCtx) typeArg(i int) (uint64, error) {
	a := s.long.GenericArgs
	if i >= len(a) || a[i].Kind != sierra.ArgType {
		return 0, fmt.Errorf("expected a type as generic argument %d", i)
	}
	if _, ok := s.reg.types[a[i].ID.ID]; !ok {
		return 0, fmt.Errorf("undeclared type %s", a[i].ID)
	}
	return a[i].ID.ID, nil
}

// expect checks the argument count and types.
func (s *sigCtx) expect(types ...uint64) error {
	if len(s.args) != len(types) {
		return fmt.Errorf("%d arguments, expected %d", len(s.args), len(types))
	}
	for i, ty := range types {
		if s.args[i] != ty {
			return fmt.Errorf("argument %d has type %s, expected %s", i, s.reg.typeName(s.args[i]), s.reg.typeName(ty))
		}
	}
	return nil
}

func (s *sigCtx) wrap(generic string, inner uint64) (uint64, error) {
	return s.reg.find(generic, sierra.TypeArg(inner))
}

func single(types ...uint64) [][]uint64 { return [][]uint64{types} }

func noopSignature(s *sigCtx) ([][]uint64, error) {
	return single(), s.expect()
}

func constSignature(generic string, limit *big.Int) func(*sigCtx) ([][]uint64, error) {
	return func(s *sigCtx) ([][]uint64, error) {
		a := s.long.GenericArgs
		if len(a) != 1 || a[0].Kind != sierra.ArgValue || a[0].Value == nil {
			return nil, fmt.Errorf("expected a single value argument")
		}
		if limit != nil && (a[0].Value.Sign() < 0 || a[0].Value.Cmp(limit) >= 0) {
			return nil, fmt.Errorf("constant %s out of range for %s", a[0].Value, generic)
		}
		ty, err := s.reg.find(generic)
		if err != nil {
			return nil, err
		}
		return single(ty), s.expect()
	}
}

func feltBinarySignature(s *sigCtx) ([][]uint64, error) {
	felt, err := s.reg.find("felt252")
	if err != nil {
		return nil, err
	}
	return single(felt), s.expect(felt, felt)
}

func passSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	return single(ty), s.expect(ty)
}

func unwrapNonZeroSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	nz, err := s.wrap("NonZero", ty)
	if err != nil {
		return nil, err
	}
	return single(ty), s.expect(nz)
}

func dupSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	return single(ty, ty), s.expect(ty)
}

func dropSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	return single(), s.expect(ty)
}

func storeLocalSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	uninit, err := s.wrap("Uninitialized", ty)
	if err != nil {
		return nil, err
	}
	return single(ty), s.expect(uninit, ty)
}

func allocLocalSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	uninit, err := s.wrap("Uninitialized", ty)
	if err != nil {
		return nil, err
	}
	return single(uninit), s.expect()
}

func isZeroSignature(generic string) func(*sigCtx) ([][]uint64, error) {
	return func(s *sigCtx) ([][]uint64, error) {
		ty, err := s.reg.find(generic)
		if err != nil {
			return nil, err
		}
		nz, err := s.wrap("NonZero", ty)
		if err != nil {
			return nil, err
		}
		return [][]uint64{{}, {nz}}, s.expect(ty)
	}
}

func u128AddSignature(s *sigCtx) ([][]uint64, error) {
	rc, err := s.reg.find("RangeCheck")
	if err != nil {
		return nil, err
	}
	u128, err := s.reg.find("u128")
	if err != nil {
		return nil, err
	}
	return [][]uint64{{rc, u128}, {rc, u128}}, s.expect(rc, u128, u128)
}

func withdrawGasSignature(s *sigCtx) ([][]uint64, error) {
	rc, err := s.reg.find("RangeCheck")
	if err != nil {
		return nil, err
	}
	gas, err := s.reg.find("GasBuiltin")
	if err != nil {
		return nil, err
	}
	return [][]uint64{{rc, gas}, {rc, gas}}, s.expect(rc, gas)
}

func arrayNewSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	arr, err := s.wrap("Array", ty)
	if err != nil {
		return nil, err
	}
	return single(arr), s.expect()
}

func arrayAppendSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	arr, err := s.wrap("Array", ty)
	if err != nil {
		return nil, err
	}
	return single(arr), s.expect(arr, ty)
}

func arrayLenSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	arr, err := s.wrap("Array", ty)
	if err != nil {
		return nil, err
	}
	u32, err := s.reg.find("u32")
	if err != nil {
		return nil, err
	}
	if snap, err := s.wrap("Snapshot", arr); err == nil && len(s.args) == 1 && s.args[0] == snap {
		return single(u32), nil
	}
	return single(u32), s.expect(arr)
}

func structConstructSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	members, err := s.reg.typeMembers(ty, "Struct")
	if err != nil {
		return nil, err
	}
	return single(ty), s.expect(members...)
}

func structDeconstructSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	members, err := s.reg.typeMembers(ty, "Struct")
	if err != nil {
		return nil, err
	}
	return single(members...), s.expect(ty)
}

func enumInitSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	variants, err := s.reg.typeMembers(ty, "Enum")
	if err != nil {
		return nil, err
	}
	a := s.long.GenericArgs
	if len(a) != 2 || a[1].Kind != sierra.ArgValue || a[1].Value == nil {
		return nil, fmt.Errorf("expected the variant index as second argument")
	}
	if !a[1].Value.IsInt64() || a[1].Value.Sign() < 0 || a[1].Value.Int64() >= int64(len(variants)) {
		return nil, fmt.Errorf("variant index %s out of range for %d variants", a[1].Value, len(variants))
	}
	return single(ty), s.expect(variants[a[1].Value.Int64()])
}

func enumMatchSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	variants, err := s.reg.typeMembers(ty, "Enum")
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("cannot match an enum without variants")
	}
	out := make([][]uint64, len(variants))
	for i, v := range variants {
		out[i] = []uint64{v}
	}
	return out, s.expect(ty)
}

func snapshotSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	snap, err := s.wrap("Snapshot", ty)
	if err != nil {
		return nil, err
	}
	return single(ty, snap), s.expect(ty)
}

func intoBoxSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	box, err := s.wrap("Box", ty)
	if err != nil {
		return nil, err
	}
	if s.reg.sizes[ty] == 0 {
		return nil, fmt.Errorf("cannot box zero-sized type %s", s.reg.typeName(ty))
	}
	return single(box), s.expect(ty)
}

func unboxSignature(s *sigCtx) ([][]uint64, error) {
	ty, err := s.typeArg(0)
	if err != nil {
		return nil, err
	}
	box, err := s.wrap("Box", ty)
	if err != nil {
		return nil, err
	}
	return single(ty), s.expect(box)
}

func functionCallSignature(s *sigCtx) ([][]uint64, error) {
	a := s.long.GenericArgs
	if len(a) != 1 || a[0].Kind != sierra.ArgUserFunc {
		return nil, fmt.Errorf("expected a user function as generic argument")
	}
	fi, ok := s.reg.funcs[a[0].ID.ID]
	if !ok {
		return nil, fmt.Errorf("undeclared function %s", a[0].ID)
	}
	s.callee = fi
	f := s.reg.prog.Funcs[fi]
	params := make([]uint64, len(f.Signature.ParamTypes))
	for i, p := range f.Signature.ParamTypes {
		params[i] = p.ID
	}
	rets := make([]uint64, len(f.Signature.RetTypes))
	for i, r := range f.Signature.RetTypes {
		rets[i] = r.ID
	}
	return single(rets...), s.expect(params...)
}

func assertEq(dst casm.CellRef, res casm.Res) casm.Instruction {
	return casm.Instruction{Op: casm.OpAssertEq, Dst: dst, Res: res}
}

func lowerNoop(s *stmtCtx) error {
	s.endBranch(0)
	return nil
}

func lowerConst(s *stmtCtx) error {
	v, err := s.genericValue(0)
	if err != nil {
		return err
	}
	s.emit(assertEq(s.result(0, 0).cell(0), casm.Imm(v)))
	s.endBranch(0)
	return nil
}

func lowerFeltAdd(s *stmtCtx) error {
	s.emit(assertEq(s.result(0, 0).cell(0), casm.Add(s.arg(0).cell(0), s.arg(1).cell(0))))
	s.endBranch(0)
	return nil
}

// lowerFeltSub asserts a = r + b, letting the VM deduce r.
func lowerFeltSub(s *stmtCtx) error {
	s.emit(assertEq(s.arg(0).cell(0), casm.Add(s.result(0, 0).cell(0), s.arg(1).cell(0))))
	s.endBranch(0)
	return nil
}

func lowerFeltMul(s *stmtCtx) error {
	s.emit(assertEq(s.result(0, 0).cell(0), casm.Mul(s.arg(0).cell(0), s.arg(1).cell(0))))
	s.endBranch(0)
	return nil
}

func lowerPass(s *stmtCtx) error {
	s.copySlot(s.result(0, 0), s.arg(len(s.plan.args)-1))
	s.endBranch(0)
	return nil
}

func lowerDup(s *stmtCtx) error {
	s.copySlot(s.result(0, 0), s.arg(0))
	s.copySlot(s.result(0, 1), s.arg(0))
	s.endBranch(0)
	return nil
}

func lowerStoreLocal(s *stmtCtx) error {
	s.copySlot(s.result(0, 0), s.arg(1))
	s.endBranch(0)
	return nil
}

func lowerIsZero(s *stmtCtx) error {
	nonZero := s.newLabel()
	s.jump(casm.OpJnz, s.arg(0).cell(0), nonZero)
	s.goBranch(0)
	s.bind(nonZero)
	s.copySlot(s.result(1, 0), s.arg(0))
	s.endBranch(1)
	return nil
}

var u128Bound = new(big.Int).Lsh(big.NewInt(1), 128)

// lowerU128OverflowingAdd computes the felt sum, branches on sum < 2^128 and
// range checks the wrapped result on either path.
func lowerU128OverflowingAdd(s *stmtCtx) error {
	rc, a, b := s.arg(0).cell(0), s.arg(1).cell(0), s.arg(2).cell(0)
	sum, fits := s.tmp(0), s.tmp(1)

	s.emit(assertEq(sum, casm.Add(a, b)))
	noOverflow := s.newLabel()
	s.hint(casm.TestLessThan(casm.CellOperand(sum), casm.ImmOperand(u128Bound), fits))
	s.jump(casm.OpJnz, fits, noOverflow)

	wrapped := s.result(1, 1).cell(0)
	s.emit(assertEq(wrapped, casm.AddImm(sum, new(big.Int).Neg(u128Bound))))
	s.emit(assertEq(wrapped, casm.DoubleDeref(rc, 0)))
	s.emit(assertEq(s.result(1, 0).cell(0), casm.AddImm(rc, big.NewInt(1))))
	s.goBranch(1)

	s.bind(noOverflow)
	res := s.result(0, 1).cell(0)
	s.emit(assertEq(res, casm.Deref(sum)))
	s.emit(assertEq(res, casm.DoubleDeref(rc, 0)))
	s.emit(assertEq(s.result(0, 0).cell(0), casm.AddImm(rc, big.NewInt(1))))
	s.endBranch(0)
	return nil
}

// lowerWithdrawGas deducts the precomputed cost of the success path. On
// failure it range checks cost - 1 - gas to prove the wallet was short.
func lowerWithdrawGas(s *stmtCtx) error {
	amount, ok := s.md.GasCosts[s.idx]
	if !ok && s.cfg.GasUsageCheck {
		return fmt.Errorf("gas usage check failed: no cost computed for statement %d", s.idx)
	}
	cost := big.NewInt(amount)
	rc, gas := s.arg(0).cell(0), s.arg(1).cell(0)
	enough, deficit, bound := s.tmp(0), s.tmp(1), s.tmp(2)

	success := s.newLabel()
	s.hint(casm.TestLessThanOrEqual(casm.ImmOperand(cost), casm.CellOperand(gas), enough))
	s.jump(casm.OpJnz, enough, success)

	s.emit(assertEq(bound, casm.Imm(big.NewInt(amount-1))))
	s.emit(assertEq(bound, casm.Add(deficit, gas)))
	s.emit(assertEq(deficit, casm.DoubleDeref(rc, 0)))
	s.emit(assertEq(s.result(1, 0).cell(0), casm.AddImm(rc, big.NewInt(1))))
	s.emit(assertEq(s.result(1, 1).cell(0), casm.Deref(gas)))
	s.goBranch(1)

	s.bind(success)
	left := s.result(0, 1).cell(0)
	s.emit(assertEq(left, casm.AddImm(gas, new(big.Int).Neg(cost))))
	s.emit(assertEq(left, casm.DoubleDeref(rc, 0)))
	s.emit(assertEq(s.result(0, 0).cell(0), casm.AddImm(rc, big.NewInt(1))))
	s.endBranch(0)
	return nil
}

func lowerArrayNew(s *stmtCtx) error {
	arr := s.result(0, 0)
	s.hint(casm.AllocSegment(arr.cell(0)))
	s.emit(assertEq(arr.cell(1), casm.Deref(arr.cell(0))))
	s.endBranch(0)
	return nil
}

func lowerArrayAppend(s *stmtCtx) error {
	arr, v, out := s.arg(0), s.arg(1), s.result(0, 0)
	for i := 0; i < v.size; i++ {
		s.emit(assertEq(v.cell(i), casm.DoubleDeref(arr.cell(1), i)))
	}
	s.emit(assertEq(out.cell(0), casm.Deref(arr.cell(0))))
	s.emit(assertEq(out.cell(1), casm.AddImm(arr.cell(1), big.NewInt(int64(v.size)))))
	s.endBranch(0)
	return nil
}

func lowerArrayLen(s *stmtCtx) error {
	ty, _ := (&sigCtx{reg: s.reg, long: s.plan.long}).typeArg(0)
	elem := s.reg.sizes[ty]
	arr, n := s.arg(0), s.result(0, 0).cell(0)
	switch elem {
	case 0:
		return fmt.Errorf("array of zero-sized elements")
	case 1:
		s.emit(assertEq(arr.cell(1), casm.Add(n, arr.cell(0))))
	default:
		cells := s.tmp(0)
		s.emit(assertEq(arr.cell(1), casm.Add(cells, arr.cell(0))))
		s.emit(assertEq(cells, casm.MulImm(n, big.NewInt(int64(elem)))))
	}
	s.endBranch(0)
	return nil
}

func lowerStructConstruct(s *stmtCtx) error {
	out := s.result(0, 0)
	off := 0
	for _, a := range s.plan.args {
		s.copySlot(out.sub(off, a.size, a.ty), a)
		off += a.size
	}
	s.endBranch(0)
	return nil
}

func lowerStructDeconstruct(s *stmtCtx) error {
	in := s.arg(0)
	off := 0
	for _, r := range s.plan.results[0] {
		s.copySlot(r, in.sub(off, r.size, r.ty))
		off += r.size
	}
	s.endBranch(0)
	return nil
}

// lowerEnumInit stores the variant index followed by the payload; unused
// payload cells are zeroed so the value can be copied as a whole.
func lowerEnumInit(s *stmtCtx) error {
	idx, err := s.genericValue(1)
	if err != nil {
		return err
	}
	out, payload := s.result(0, 0), s.arg(0)
	s.emit(assertEq(out.cell(0), casm.Imm(idx)))
	s.copySlot(out.sub(1, payload.size, payload.ty), payload)
	for i := 1 + payload.size; i < out.size; i++ {
		s.emit(assertEq(out.cell(i), casm.Imm(big.NewInt(0))))
	}
	s.endBranch(0)
	return nil
}

// lowerEnumMatch dispatches through a table of relative jumps: the selector
// 2*index+1 lands on the index-th two-word entry.
func lowerEnumMatch(s *stmtCtx) error {
	in := s.arg(0)
	n := len(s.plan.results)
	payload := func(i int) {
		r := s.result(i, 0)
		s.copySlot(r, in.sub(1, r.size, r.ty))
	}
	if n == 1 {
		payload(0)
		s.endBranch(0)
		return nil
	}

	doubled, selector := s.tmp(0), s.tmp(1)
	s.emit(assertEq(doubled, casm.MulImm(in.cell(0), big.NewInt(2))))
	s.emit(assertEq(selector, casm.AddImm(doubled, big.NewInt(1))))
	s.emit(casm.Instruction{Op: casm.OpJumpRel, RelCell: &selector})

	landings := make([]label, n)
	for i := range landings {
		landings[i] = s.newLabel()
		s.jump(casm.OpJumpRel, casm.CellRef{}, landings[i])
	}
	for i := range landings {
		s.bind(landings[i])
		payload(i)
		if i < n-1 {
			s.goBranch(i)
		} else {
			s.endBranch(i)
		}
	}
	return nil
}

func lowerSnapshot(s *stmtCtx) error {
	s.copySlot(s.result(0, 0), s.arg(0))
	s.copySlot(s.result(0, 1), s.arg(0))
	s.endBranch(0)
	return nil
}

func lowerIntoBox(s *stmtCtx) error {
	v, box := s.arg(0), s.result(0, 0).cell(0)
	s.hint(casm.AllocSegment(box))
	for i := 0; i < v.size; i++ {
		s.emit(assertEq(v.cell(i), casm.DoubleDeref(box, i)))
	}
	s.endBranch(0)
	return nil
}

func lowerUnbox(s *stmtCtx) error {
	box, out := s.arg(0).cell(0), s.result(0, 0)
	for i := 0; i < out.size; i++ {
		s.emit(assertEq(out.cell(i), casm.DoubleDeref(box, i)))
	}
	s.endBranch(0)
	return nil
}

// lowerFunctionCall pushes the arguments, calls the callee's entry statement
// and copies the returned cells, which end at ap, into the result slots.
func lowerFunctionCall(s *stmtCtx) error {
	for _, a := range s.plan.args {
		s.push(a)
	}
	callee := s.prog.Funcs[s.plan.callee]
	s.jump(casm.OpCallRel, casm.CellRef{}, s.stmtStart[callee.EntryPoint])

	total := 0
	for _, r := range s.plan.results[0] {
		total += r.size
	}
	off := -total
	for _, r := range s.plan.results[0] {
		for i := 0; i < r.size; i++ {
			s.emit(assertEq(r.cell(i), casm.Deref(casm.Ap(off))))
			off++
		}
	}
	s.endBranch(0)
	return nil
}
