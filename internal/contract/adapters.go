package contract

import (
	"errors"
	"slices"

	"github.com/roach88/usc/internal/casm"
	"github.com/roach88/usc/internal/classes"
	"github.com/roach88/usc/internal/classes/latest"
	"github.com/roach88/usc/internal/classes/sierra010"
	"github.com/roach88/usc/internal/classes/sierra100"
	"github.com/roach88/usc/internal/diag"
	"github.com/roach88/usc/internal/jsondoc"
	"github.com/roach88/usc/internal/schema"
	"github.com/roach88/usc/internal/version"
)

// Adapter compiles a normalized contract class with one backend family.
type Adapter func(doc jsondoc.Object, opts Options) (*casm.ContractClass, error)

// Registry maps probed versions to backend families, most specific first.
var Registry = version.NewRegistry(
	version.Descriptor[Adapter]{
		Name:    "latest",
		Range:   "1.2.0 - 1.7.x",
		Match:   func(v [3]uint8) bool { return v[0] == 1 && v[1] >= 2 && v[1] <= 7 },
		Adapter: compileLatest,
	},
	version.Descriptor[Adapter]{
		Name:    "sierra100",
		Range:   "1.0.0, 1.1.0",
		Match:   func(v [3]uint8) bool { return v[0] == 1 && v[1] <= 1 && v[2] == 0 },
		Adapter: compileSierra100,
	},
	version.Descriptor[Adapter]{
		Name:    "sierra010",
		Range:   "0.x",
		Match:   func(v [3]uint8) bool { return v[0] == 0 },
		Adapter: compileSierra010,
	},
)

// decode checks doc against the family schema and decodes it.
func decode(def string, doc jsondoc.Object) (*classes.ContractClass, error) {
	data, err := jsondoc.Marshal(doc)
	if err != nil {
		return nil, diag.Wrap(diag.KindBackendDeserialization, diag.MsgContractDeserialize, err)
	}
	if err := schema.Validate(def, data); err != nil {
		return nil, diag.Wrap(diag.KindBackendDeserialization, diag.MsgContractDeserialize, err)
	}
	c, err := classes.Decode(data)
	if err != nil {
		return nil, diag.Wrap(diag.KindBackendDeserialization, diag.MsgContractDeserialize, err)
	}
	return c, nil
}

// classify sorts backend failures into deserialization and compilation errors.
func classify(err error) error {
	if errors.Is(err, classes.ErrMalformedProgram) {
		return diag.Wrap(diag.KindBackendDeserialization, diag.MsgContractDeserialize, err)
	}
	return diag.Wrap(diag.KindBackendCompilation, diag.MsgContractCompile, err)
}

// finish validates the translated class.
func finish(c *casm.ContractClass) (*casm.ContractClass, error) {
	if err := c.Validate(); err != nil {
		return nil, diag.Wrap(diag.KindBackendCompilation, diag.MsgContractCompile, err)
	}
	return c, nil
}

func compileLatest(doc jsondoc.Object, opts Options) (*casm.ContractClass, error) {
	c, err := decode(schema.Latest, doc)
	if err != nil {
		return nil, err
	}
	native, err := latest.FromContractClass(c, latest.Options{
		AddPythonicHints: opts.AddPythonicHints,
		MaxBytecodeSize:  opts.MaxBytecodeSize,
	})
	if err != nil {
		return nil, classify(err)
	}

	out := &casm.ContractClass{
		Prime:                  native.Prime,
		CompilerVersion:        native.CompilerVersion,
		Bytecode:               native.Bytecode,
		BytecodeSegmentLengths: native.BytecodeSegmentLengths,
		Hints:                  native.Hints,
		PythonicHints:          native.PythonicHints,
	}
	eps := native.EntryPointsByType
	out.EntryPointsByType = casm.EntryPointsByType{
		External:    latestEntryPoints(eps.External),
		L1Handler:   latestEntryPoints(eps.L1Handler),
		Constructor: latestEntryPoints(eps.Constructor),
	}
	return finish(out)
}

func latestEntryPoints(eps []latest.CasmEntryPoint) casm.EntryPointList {
	out := make(casm.EntryPointList, len(eps))
	for i, ep := range eps {
		out[i] = casm.EntryPoint{Selector: ep.Selector, Offset: ep.Offset, Builtins: ep.Builtins}
	}
	return out
}

func compileSierra100(doc jsondoc.Object, opts Options) (*casm.ContractClass, error) {
	c, err := decode(schema.Sierra100, doc)
	if err != nil {
		return nil, err
	}
	native, err := sierra100.FromContractClass(c, sierra100.Options{AddPythonicHints: opts.AddPythonicHints})
	if err != nil {
		return nil, classify(err)
	}

	out := &casm.ContractClass{
		Prime:           native.Prime,
		CompilerVersion: native.CompilerVersion,
		Bytecode:        native.Bytecode,
		Hints:           native.Hints,
		PythonicHints:   native.PythonicHints,
	}
	eps := native.EntryPointsByType
	out.EntryPointsByType = casm.EntryPointsByType{
		External:    sierra100EntryPoints(eps.External),
		L1Handler:   sierra100EntryPoints(eps.L1Handler),
		Constructor: sierra100EntryPoints(eps.Constructor),
	}
	return finish(out)
}

func sierra100EntryPoints(eps []sierra100.CasmEntryPoint) casm.EntryPointList {
	out := make(casm.EntryPointList, len(eps))
	for i, ep := range eps {
		out[i] = casm.EntryPoint{Selector: ep.Selector, Offset: ep.Offset, Builtins: ep.Builtins}
	}
	return out
}

func compileSierra010(doc jsondoc.Object, opts Options) (*casm.ContractClass, error) {
	c, err := decode(schema.Sierra010, doc)
	if err != nil {
		return nil, err
	}
	native, err := sierra010.FromContractClass(c, sierra010.Options{AddPythonicHints: opts.AddPythonicHints})
	if err != nil {
		return nil, classify(err)
	}

	out := &casm.ContractClass{
		Prime:           native.Prime,
		CompilerVersion: native.CompilerVersion,
		Bytecode:        native.Bytecode,
		Hints:           casm.HintList{},
	}
	// Hints are keyed by position in this revision.
	positions := make([]int, 0, len(native.Hints))
	for pos := range native.Hints {
		positions = append(positions, pos)
	}
	slices.Sort(positions)
	for _, pos := range positions {
		out.Hints = append(out.Hints, casm.HintEntry{Pos: pos, Hints: native.Hints[pos]})
		if code, ok := native.PythonicHints[pos]; ok {
			out.PythonicHints = append(out.PythonicHints, casm.PythonicHintEntry{Pos: pos, Code: code})
		}
	}

	eps := native.EntryPointsByType
	out.EntryPointsByType = casm.EntryPointsByType{
		External:    sierra010EntryPoints(eps.External),
		L1Handler:   sierra010EntryPoints(eps.L1Handler),
		Constructor: sierra010EntryPoints(eps.Constructor),
	}
	return finish(out)
}

func sierra010EntryPoints(eps []sierra010.CasmEntryPoint) casm.EntryPointList {
	out := make(casm.EntryPointList, len(eps))
	for i, ep := range eps {
		out[i] = casm.EntryPoint{Selector: ep.Selector, Offset: ep.Offset}
	}
	return out
}
