package cli

import (
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/usc/internal/config"
)

// Version is the release reported by --version. Release builds set it with
// -ldflags "-X github.com/roach88/usc/internal/cli.Version=...".
var Version = "0.1.0"

// IDGenerator produces invocation ids for log correlation.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 invocation ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	ConfigPath string

	// IDs generates the invocation id. Defaults to UUIDv7Generator.
	IDs IDGenerator

	// Config is the effective configuration, set before any command runs.
	Config *config.Config
}

// NewRootCommand creates the root command for the usc CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{IDs: UUIDv7Generator{}})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usc",
		Short: "Universal Sierra compiler",
		Long: `Compile Sierra contract classes and raw Sierra programs of any supported
version to CASM.

The Sierra version is read from the input and selects the compiler backend.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log compilation stages to stderr")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "configuration file (.yaml, .yml or .toml)")

	cmd.AddCommand(NewCompileContractCommand(opts))
	cmd.AddCommand(NewCompileRawCommand(opts))
	cmd.AddCommand(NewVersionsCommand(opts))

	return cmd
}

// setup loads the configuration and installs the invocation logger.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "Unable to load config file: "+err.Error(), err)
		}
		cfg = loaded
	}
	o.Config = cfg

	level, err := cfg.LogLevel()
	if err != nil {
		return WrapExitError(ExitCommandError, err.Error(), err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	ids := o.IDs
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), level).With("invocation_id", ids.Generate()))
	slog.Debug("invocation started", "command", cmd.Name())
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Execute runs the CLI with args and returns the process exit code. A
// failure is reported as one diagnostic line; see diagnosticWriter.
func Execute(args []string, stdout, stderr io.Writer) int {
	return execute(NewRootCommand(), args, stdout, stderr)
}

func execute(cmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	ran, err := cmd.ExecuteC()
	if err != nil {
		slog.Debug("invocation failed", "error", err)
		PrintError(diagnosticWriter(ran, stdout, stderr), err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// diagnosticWriter picks the stream for the [ERROR] line. Diagnostics go to
// stdout, except for compile-raw, which has always reported on stderr.
func diagnosticWriter(ran *cobra.Command, stdout, stderr io.Writer) io.Writer {
	if ran != nil && ran.Name() == CommandCompileRaw {
		return stderr
	}
	return stdout
}
