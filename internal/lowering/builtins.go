package lowering

import (
	"fmt"
	"slices"

	"github.com/roach88/usc/internal/sierra"
)

// builtinNames maps builtin types to the names used in entry points.
var builtinNames = map[string]string{
	"Pedersen":     "pedersen",
	"RangeCheck":   "range_check",
	"Bitwise":      "bitwise",
	"EcOp":         "ec_op",
	"Poseidon":     "poseidon",
	"SegmentArena": "segment_arena",
	"RangeCheck96": "range_check96",
	"AddMod":       "add_mod",
	"MulMod":       "mul_mod",
}

// implicitTypes are passed to entry points but are not builtins.
var implicitTypes = map[string]bool{"GasBuiltin": true, "System": true}

// EntryPointBuiltins returns the builtins an entry point function takes, in
// parameter order. Builtins outside allowed are rejected.
func EntryPointBuiltins(p *sierra.Program, fn sierra.Function, allowed []string) ([]string, error) {
	types := make(map[uint64]sierra.TypeDeclaration, len(p.TypeDeclarations))
	for _, d := range p.TypeDeclarations {
		types[d.ID.ID] = d
	}
	var out []string
	for _, ty := range fn.Signature.ParamTypes {
		d, ok := types[ty.ID]
		if !ok {
			return nil, fmt.Errorf("function %s: undeclared param type %s", fn.ID, ty)
		}
		generic := d.LongID.GenericID
		if implicitTypes[generic] {
			continue
		}
		name, ok := builtinNames[generic]
		if !ok {
			continue
		}
		if !slices.Contains(allowed, name) {
			return nil, fmt.Errorf("function %s: builtin %s is not supported by this compiler version", fn.ID, name)
		}
		out = append(out, name)
	}
	return out, nil
}
