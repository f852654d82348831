package lowering

import (
	"fmt"

	"github.com/roach88/usc/internal/sierra"
)

// singleCellTypes occupy exactly one memory cell.
var singleCellTypes = map[string]bool{
	"felt252": true, "u8": true, "u16": true, "u32": true, "u64": true, "u128": true,
	"i8": true, "i16": true, "i32": true, "i64": true, "i128": true,
	"GasBuiltin": true, "RangeCheck": true, "Pedersen": true, "Bitwise": true,
	"EcOp": true, "Poseidon": true, "SegmentArena": true, "System": true,
	"RangeCheck96": true, "AddMod": true, "MulMod": true, "BuiltinCosts": true,
}

// pointerTypes are one cell wide regardless of their inner type.
var pointerTypes = map[string]bool{"Box": true, "Nullable": true}

// wrapperTypes share the representation of their inner type.
var wrapperTypes = map[string]bool{"NonZero": true, "Snapshot": true, "Uninitialized": true}

// registry indexes a program's declarations.
type registry struct {
	prog     *sierra.Program
	types    map[uint64]sierra.TypeDeclaration
	libfuncs map[uint64]sierra.LibfuncDeclaration
	funcs    map[uint64]int
	sizes    map[uint64]int
}

func newRegistry(p *sierra.Program) (*registry, error) {
	r := &registry{
		prog:     p,
		types:    make(map[uint64]sierra.TypeDeclaration, len(p.TypeDeclarations)),
		libfuncs: make(map[uint64]sierra.LibfuncDeclaration, len(p.LibfuncDeclarations)),
		funcs:    make(map[uint64]int, len(p.Funcs)),
		sizes:    make(map[uint64]int, len(p.TypeDeclarations)),
	}
	for _, d := range p.TypeDeclarations {
		if _, dup := r.types[d.ID.ID]; dup {
			return nil, fmt.Errorf("duplicate type declaration %s", d.ID)
		}
		r.types[d.ID.ID] = d
	}
	for _, d := range p.LibfuncDeclarations {
		if _, dup := r.libfuncs[d.ID.ID]; dup {
			return nil, fmt.Errorf("duplicate libfunc declaration %s", d.ID)
		}
		r.libfuncs[d.ID.ID] = d
	}
	for i, f := range p.Funcs {
		if _, dup := r.funcs[f.ID.ID]; dup {
			return nil, fmt.Errorf("duplicate function %s", f.ID)
		}
		if f.EntryPoint < 0 || f.EntryPoint >= len(p.Statements) {
			return nil, fmt.Errorf("function %s: entry point %d out of range", f.ID, f.EntryPoint)
		}
		if len(f.Params) != len(f.Signature.ParamTypes) {
			return nil, fmt.Errorf("function %s: %d params for %d param types", f.ID, len(f.Params), len(f.Signature.ParamTypes))
		}
		r.funcs[f.ID.ID] = i
	}
	return r, nil
}

// resolveSizes computes the cell size of every declared type.
func (r *registry) resolveSizes() error {
	visiting := make(map[uint64]bool)
	for _, d := range r.prog.TypeDeclarations {
		if _, err := r.size(d.ID.ID, visiting); err != nil {
			return err
		}
	}
	return nil
}

func (r *registry) size(id uint64, visiting map[uint64]bool) (int, error) {
	if n, ok := r.sizes[id]; ok {
		return n, nil
	}
	d, ok := r.types[id]
	if !ok {
		return 0, fmt.Errorf("undeclared type [%d]", id)
	}
	if visiting[id] {
		return 0, fmt.Errorf("unbounded recursion in type resolution of %s", d.LongID)
	}
	visiting[id] = true
	defer delete(visiting, id)

	long := d.LongID
	var n int
	switch g := long.GenericID; {
	case singleCellTypes[g]:
		n = 1
	case pointerTypes[g]:
		if _, err := r.innerType(long); err != nil {
			return 0, err
		}
		n = 1
	case g == "Array":
		if _, err := r.innerType(long); err != nil {
			return 0, err
		}
		n = 2
	case wrapperTypes[g]:
		inner, err := r.innerType(long)
		if err != nil {
			return 0, err
		}
		if n, err = r.size(inner, visiting); err != nil {
			return 0, err
		}
	case g == "Struct", g == "Enum":
		members, err := r.members(long)
		if err != nil {
			return 0, err
		}
		largest := 0
		for _, m := range members {
			ms, err := r.size(m, visiting)
			if err != nil {
				return 0, err
			}
			n += ms
			largest = max(largest, ms)
		}
		if g == "Enum" {
			n = 1 + largest
		}
	default:
		return 0, fmt.Errorf("unknown type %s", long)
	}
	r.sizes[id] = n
	return n, nil
}

// innerType returns the single type argument of a generic wrapper.
func (r *registry) innerType(long sierra.LongID) (uint64, error) {
	if len(long.GenericArgs) != 1 || long.GenericArgs[0].Kind != sierra.ArgType {
		return 0, fmt.Errorf("%s: expected a single type argument", long)
	}
	id := long.GenericArgs[0].ID.ID
	if _, ok := r.types[id]; !ok {
		return 0, fmt.Errorf("%s: undeclared type [%d]", long, id)
	}
	return id, nil
}

// members returns struct members or enum variants, skipping the leading
// user type argument.
func (r *registry) members(long sierra.LongID) ([]uint64, error) {
	if len(long.GenericArgs) == 0 || long.GenericArgs[0].Kind != sierra.ArgUserType {
		return nil, fmt.Errorf("%s: expected a user type as first argument", long)
	}
	out := make([]uint64, 0, len(long.GenericArgs)-1)
	for _, a := range long.GenericArgs[1:] {
		if a.Kind != sierra.ArgType {
			return nil, fmt.Errorf("%s: member arguments must be types", long)
		}
		if _, ok := r.types[a.ID.ID]; !ok {
			return nil, fmt.Errorf("%s: undeclared type %s", long, a.ID)
		}
		out = append(out, a.ID.ID)
	}
	return out, nil
}

// typeMembers returns the members of a declared struct or enum type.
func (r *registry) typeMembers(id uint64, generic string) ([]uint64, error) {
	d, ok := r.types[id]
	if !ok {
		return nil, fmt.Errorf("undeclared type [%d]", id)
	}
	if d.LongID.GenericID != generic {
		return nil, fmt.Errorf("type %s is not a %s", d.LongID, generic)
	}
	return r.members(d.LongID)
}

// find looks up the declared type with the given generic id and arguments.
func (r *registry) find(generic string, args ...sierra.GenericArg) (uint64, error) {
	for _, d := range r.prog.TypeDeclarations {
		if d.LongID.GenericID != generic || len(d.LongID.GenericArgs) != len(args) {
			continue
		}
		match := true
		for i, a := range d.LongID.GenericArgs {
			if !sameArg(a, args[i]) {
				match = false
				break
			}
		}
		if match {
			return d.ID.ID, nil
		}
	}
	want := sierra.LongID{GenericID: generic, GenericArgs: args}
	return 0, fmt.Errorf("type %s is not declared", want)
}

func sameArg(a, b sierra.GenericArg) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case sierra.ArgValue, sierra.ArgUserType:
		return a.Value != nil && b.Value != nil && a.Value.Cmp(b.Value) == 0
	default:
		return a.ID.ID == b.ID.ID
	}
}

func (r *registry) typeName(id uint64) string {
	if d, ok := r.types[id]; ok {
		return d.LongID.String()
	}
	return fmt.Sprintf("[%d]", id)
}
