// Package raw compiles plain Sierra programs, the output of compiling Cairo
// code that is not a contract. The input has no version header, so the
// registry holds a single unconditional entry and every program runs the
// same four-stage pipeline.
package raw

import (
	"log/slog"
	"time"

	"github.com/roach88/usc/internal/casm"
	"github.com/roach88/usc/internal/diag"
	"github.com/roach88/usc/internal/jsondoc"
	"github.com/roach88/usc/internal/lowering"
	"github.com/roach88/usc/internal/schema"
	"github.com/roach88/usc/internal/sierra"
	"github.com/roach88/usc/internal/version"
)

// Pipeline stages, in execution order.
const (
	StageCalcMetadata = "calc_metadata"
	StageCompile      = "compile_sierra_to_casm"
	StageAssemble     = "assemble_cairo_program"
	StageSerialize    = "serialize_result"
)

// Clock reads the time used to measure stages.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options tunes the pipeline.
type Options struct {
	// GasUsageCheck makes a missing gas cost a compilation failure.
	GasUsageCheck bool

	// MaxBytecodeSize bounds the compiled code size; zero means unlimited.
	MaxBytecodeSize int

	// Clock measures stage durations. Nil uses the wall clock.
	Clock Clock
}

// DefaultOptions match what the command line uses without a config file.
func DefaultOptions() Options {
	return Options{GasUsageCheck: true}
}

// Pipeline compiles a decoded program.
type Pipeline func(p *sierra.Program, opts Options) (*Result, error)

// Result is a compiled program and the descriptor that produced it.
type Result struct {
	Backend string
	Program *casm.Program
	Output  casm.RawOutput
}

// Registry holds the single raw-program backend.
var Registry = version.NewRegistry(
	version.Descriptor[Pipeline]{
		Name:    "latest",
		Range:   "any",
		Match:   version.Always,
		Adapter: runLatest,
	},
)

// Compile validates and decodes doc as a Sierra program, then compiles it.
func Compile(doc jsondoc.Value, opts Options) (*Result, error) {
	p, err := Decode(doc)
	if err != nil {
		return nil, err
	}
	d, err := Registry.Resolve(nil)
	if err != nil {
		return nil, err
	}
	res, err := d.Adapter(p, opts)
	if err != nil {
		return nil, err
	}
	res.Backend = d.Name
	return res, nil
}

// Decode checks doc against the program schema and decodes it.
func Decode(doc jsondoc.Value) (*sierra.Program, error) {
	data, err := jsondoc.Marshal(doc)
	if err != nil {
		return nil, diag.Wrap(diag.KindRawDeserialization, diag.MsgRawDeserialization, err)
	}
	if err := schema.Validate(schema.Program, data); err != nil {
		return nil, diag.Wrap(diag.KindRawDeserialization, diag.MsgRawDeserialization, err)
	}
	p, err := sierra.Decode(data)
	if err != nil {
		return nil, diag.Wrap(diag.KindRawDeserialization, diag.MsgRawDeserialization, err)
	}
	return p, nil
}

// stage runs fn and logs its duration at debug level.
func stage(clock Clock, name string, fn func() error) error {
	start := clock.Now()
	err := fn()
	slog.Debug("stage finished", "stage", name, "duration", clock.Now().Sub(start), "ok", err == nil)
	return err
}

func runLatest(p *sierra.Program, opts Options) (*Result, error) {
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	fail := func(err error) (*Result, error) {
		return nil, diag.Wrap(diag.KindBackendCompilation, diag.MsgRawCompile, err)
	}

	var md *lowering.Metadata
	err := stage(clock, StageCalcMetadata, func() (err error) {
		md, err = lowering.CalcMetadata(p, lowering.MetadataConfig{})
		return err
	})
	if err != nil {
		return fail(err)
	}

	var cp *casm.CairoProgram
	err = stage(clock, StageCompile, func() (err error) {
		cp, err = lowering.Compile(p, md, lowering.Config{
			GasUsageCheck:   opts.GasUsageCheck,
			MaxBytecodeSize: opts.MaxBytecodeSize,
		})
		return err
	})
	if err != nil {
		return fail(err)
	}

	var asm *casm.AssembledProgram
	err = stage(clock, StageAssemble, func() (err error) {
		asm, err = cp.Assemble()
		return err
	})
	if err != nil {
		return fail(err)
	}

	res := &Result{Program: &casm.Program{Bytecode: asm.Bytecode, Hints: asm.Hints, DebugInfo: cp.DebugInfo}}
	err = stage(clock, StageSerialize, func() error {
		if err := res.Program.Validate(); err != nil {
			return err
		}
		res.Output = casm.RawOutputFor(res.Program)
		return nil
	})
	if err != nil {
		return fail(err)
	}
	return res, nil
}
