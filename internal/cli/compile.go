package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/usc/internal/cache"
	"github.com/roach88/usc/internal/config"
	"github.com/roach88/usc/internal/contract"
	"github.com/roach88/usc/internal/diag"
	"github.com/roach88/usc/internal/jsondoc"
	"github.com/roach88/usc/internal/raw"
)

// Command names.
const (
	CommandCompileContract = "compile-contract"
	CommandCompileRaw      = "compile-raw"
)

// CompileOptions holds flags shared by the compile commands.
type CompileOptions struct {
	*RootOptions
	SierraPath string // input file path
	OutputPath string // output file path; stdout when empty
}

// compiled is what a compile command produces before rendering.
type compiled struct {
	backend string
	output  any
}

// compileFunc compiles an input document under cfg.
type compileFunc func(doc jsondoc.Value, cfg *config.Config) (compiled, error)

// NewCompileContractCommand creates the compile-contract command.
func NewCompileContractCommand(rootOpts *RootOptions) *cobra.Command {
	return newCompileCommand(rootOpts, CommandCompileContract,
		"Compile a Sierra contract class to a CASM contract class",
		`Compile a Sierra contract class to a CASM contract class.

The input must have sierra_program and entry_points_by_type fields. The
Sierra version stored at the start of sierra_program selects the backend.`,
		compileContract)
}

// NewCompileRawCommand creates the compile-raw command.
func NewCompileRawCommand(rootOpts *RootOptions) *cobra.Command {
	return newCompileCommand(rootOpts, CommandCompileRaw,
		"Compile a raw Sierra program to CASM",
		`Compile a raw Sierra program to CASM.

The input must have type_declarations, libfunc_declarations, statements and
funcs fields. The output has assembled_cairo_program and debug_info fields.`,
		compileRaw)
}

func newCompileCommand(rootOpts *RootOptions, use, short, long string, fn compileFunc) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), opts, cmd.Name(), fn, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.SierraPath, "sierra-path", "s", "", "path to the Sierra json file")
	cmd.Flags().StringVarP(&opts.OutputPath, "output-path", "o", "", "path to write the CASM json to (default stdout)")

	// Names used by earlier releases.
	cmd.Flags().StringVar(&opts.SierraPath, "sierra-input-path", "", "")
	cmd.Flags().StringVar(&opts.OutputPath, "casm-output-path", "", "")
	_ = cmd.Flags().MarkHidden("sierra-input-path")
	_ = cmd.Flags().MarkHidden("casm-output-path")

	return cmd
}

func runCompile(ctx context.Context, opts *CompileOptions, command string, fn compileFunc, cmd *cobra.Command) error {
	if opts.SierraPath == "" {
		return NewExitError(ExitCommandError, `required flag(s) "sierra-path" not set`)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	doc, err := readInput(opts.SierraPath)
	if err != nil {
		return commandError(err)
	}

	data, err := compileCached(ctx, cfg, command, doc, fn)
	if err != nil {
		return commandError(err)
	}

	if err := writeOutput(data, opts.OutputPath, cmd.OutOrStdout()); err != nil {
		return commandError(err)
	}
	return nil
}

// compileCached consults the cache, when configured, before compiling.
func compileCached(ctx context.Context, cfg *config.Config, command string, doc jsondoc.Value, fn compileFunc) ([]byte, error) {
	if cfg.Cache.Path == "" {
		res, err := fn(doc, cfg)
		if err != nil {
			return nil, err
		}
		return render(res)
	}

	c, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return nil, diag.Wrap(diag.KindIO, "Unable to open compilation cache", err)
	}
	defer c.Close()

	key, err := cache.Key(command, doc, cfg.Compiler)
	if err != nil {
		return nil, diag.Wrap(diag.KindIO, "Unable to compute cache key", err)
	}
	if e, ok, err := c.Get(ctx, key); err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
	} else if ok {
		n, err := c.Len(ctx)
		if err != nil {
			slog.Warn("cache count failed", "error", err)
		}
		slog.Debug("cache hit", "key", key, "backend", e.Backend, "entries", n)
		return e.Output, nil
	}

	res, err := fn(doc, cfg)
	if err != nil {
		return nil, err
	}
	data, err := render(res)
	if err != nil {
		return nil, err
	}
	if err := c.Put(ctx, key, cache.Entry{Command: command, Backend: res.backend, Output: data}); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
	return data, nil
}

func render(res compiled) ([]byte, error) {
	data, err := jsondoc.Canonicalize(res.output)
	if err != nil {
		return nil, fmt.Errorf("render output: %w", err)
	}
	return data, nil
}

func compileContract(doc jsondoc.Value, cfg *config.Config) (compiled, error) {
	obj, ok := doc.(jsondoc.Object)
	if !ok {
		return compiled{}, diag.New(diag.KindMalformedVersionField, diag.MsgMalformedVersionField)
	}
	res, err := contract.Compile(obj, cfg.ContractOptions())
	if err != nil {
		return compiled{}, err
	}
	slog.Debug("contract compiled", "version", res.Version.String(), "backend", res.Backend,
		"bytecode_len", len(res.Class.Bytecode))
	return compiled{backend: res.Backend, output: res.Class}, nil
}

func compileRaw(doc jsondoc.Value, cfg *config.Config) (compiled, error) {
	res, err := raw.Compile(doc, cfg.RawOptions())
	if err != nil {
		return compiled{}, err
	}
	slog.Debug("program compiled", "backend", res.Backend, "bytecode_len", len(res.Program.Bytecode))
	return compiled{backend: res.Backend, output: res.Output}, nil
}
