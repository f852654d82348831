package testutil

import (
	"encoding/json"
	"math/big"

	"github.com/roach88/usc/internal/classes"
	"github.com/roach88/usc/internal/classes/latest"
	"github.com/roach88/usc/internal/classes/sierra010"
	"github.com/roach88/usc/internal/classes/sierra100"
	"github.com/roach88/usc/internal/felt"
	"github.com/roach88/usc/internal/jsondoc"
)

// Selectors used by fixture contracts, in increasing order.
var (
	SelectorAddFive      = felt.MustShortString("add_five")
	SelectorMain         = felt.MustShortString("main")
	SelectorCollect      = felt.MustShortString("collect")
	SelectorCheckedAdd   = felt.MustShortString("checked_add")
	SelectorUnwrapOrZero = felt.MustShortString("unwrap_or_zero")
)

// SampleEntryPoints exposes both SampleProgram functions as externals.
func SampleEntryPoints() classes.EntryPoints {
	return classes.EntryPoints{
		External: []classes.EntryPoint{
			{Selector: SelectorMain, FunctionIdx: 1},
			{Selector: SelectorAddFive, FunctionIdx: 0},
		},
	}
}

// GasEntryPoints exposes GasProgram's functions, with collect as the
// constructor.
func GasEntryPoints() classes.EntryPoints {
	return classes.EntryPoints{
		External: []classes.EntryPoint{
			{Selector: SelectorCheckedAdd, FunctionIdx: 0},
			{Selector: SelectorUnwrapOrZero, FunctionIdx: 2},
		},
		Constructor: []classes.EntryPoint{
			{Selector: SelectorCollect, FunctionIdx: 1},
		},
	}
}

// ContractDoc wraps a felt stream as a contract class document. The abi,
// debug info and class version carry values that normalization replaces.
func ContractDoc(felts []*big.Int, eps classes.EntryPoints) jsondoc.Object {
	data, err := json.Marshal(map[string]any{
		"sierra_program": felt.HexAll(felts),
		"sierra_program_debug_info": map[string]any{
			"type_names":      [][]any{{0, "felt252"}},
			"libfunc_names":   [][]any{},
			"user_func_names": [][]any{},
		},
		"contract_class_version": "0.1.0",
		"entry_points_by_type":   eps,
		"abi":                    `[{"type": "function", "name": "main"}]`,
	})
	if err != nil {
		panic(err)
	}
	doc, err := jsondoc.ParseObject(data)
	if err != nil {
		panic(err)
	}
	return doc
}

// Sierra010Contract is SampleProgram as a Sierra 0.1.0 contract class.
func Sierra010Contract() jsondoc.Object {
	felts, err := sierra010.EncodeProgram(SampleProgram(), sierra010.CompilerVersion)
	if err != nil {
		panic(err)
	}
	return ContractDoc(felts, SampleEntryPoints())
}

// Sierra100Contract is GasProgram as a Sierra 1.minor.0 contract class.
func Sierra100Contract(minor uint64) jsondoc.Object {
	felts, err := sierra100.EncodeProgram(GasProgram(),
		classes.VersionID{Major: 1, Minor: minor},
		classes.VersionID{Major: 1, Minor: minor})
	if err != nil {
		panic(err)
	}
	return ContractDoc(felts, GasEntryPoints())
}

// LatestContract is GasProgram as a Sierra 1.minor.0 contract class.
func LatestContract(minor uint64) jsondoc.Object {
	felts, err := latest.EncodeProgram(GasProgram(),
		classes.VersionID{Major: 1, Minor: minor},
		classes.VersionID{Major: 2, Minor: minor + 2})
	if err != nil {
		panic(err)
	}
	return ContractDoc(felts, GasEntryPoints())
}
