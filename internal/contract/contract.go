// Package contract compiles Sierra contract classes of any supported
// revision. The probed version selects a backend family from an ordered
// registry; each family's adapter decodes the class into the family's
// native shape, compiles it and translates the result into casm.ContractClass.
package contract

import (
	"log/slog"

	"github.com/roach88/usc/internal/casm"
	"github.com/roach88/usc/internal/jsondoc"
	"github.com/roach88/usc/internal/version"
)

// Options tunes contract compilation.
type Options struct {
	// AddPythonicHints emits Python hint code next to structured hints.
	AddPythonicHints bool

	// MaxBytecodeSize bounds the compiled code size for families that
	// support a limit; zero means unlimited.
	MaxBytecodeSize int
}

// DefaultOptions match what the command line uses without a config file.
func DefaultOptions() Options {
	return Options{AddPythonicHints: true}
}

// Result is a compiled contract with the dispatch decision that produced it.
type Result struct {
	Version version.SchemaVersion
	Backend string
	Class   *casm.ContractClass
}

// Fields replaced by Normalize.
const (
	fieldABI          = "abi"
	fieldDebugInfo    = "sierra_program_debug_info"
	fieldClassVersion = "contract_class_version"
)

// Normalize returns a copy of doc with the ABI and debug info set to null and
// the class version emptied. Their shapes vary between minor revisions and
// compilation never reads them.
func Normalize(doc jsondoc.Object) jsondoc.Object {
	out := doc.Clone()
	out[fieldABI] = jsondoc.Null{}
	out[fieldDebugInfo] = jsondoc.Null{}
	out[fieldClassVersion] = jsondoc.String("")
	return out
}

// Compile normalizes doc, probes its version and runs the matching backend.
func Compile(doc jsondoc.Object, opts Options) (*Result, error) {
	normalized := Normalize(doc)
	v, err := version.Probe(normalized)
	if err != nil {
		return nil, err
	}
	d, err := Registry.Resolve(v)
	if err != nil {
		return nil, err
	}
	slog.Debug("backend selected", "version", v.String(), "backend", d.Name)

	class, err := d.Adapter(normalized, opts)
	if err != nil {
		return nil, err
	}
	return &Result{Version: v, Backend: d.Name, Class: class}, nil
}
