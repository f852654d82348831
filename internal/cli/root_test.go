package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/usc/internal/testutil"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// run executes the CLI with a fixed invocation id.
func run(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand(&RootOptions{IDs: testutil.NewFixedIDGenerator("inv-1")})
	code = execute(cmd, args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "usc", cmd.Use)
	assert.Contains(t, cmd.Long, "selects the compiler backend")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, cmdName := range []string{"compile-contract", "compile-raw", "versions"} {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestCompileCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"compile-contract", "compile-raw"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)

			sierra := sub.Flags().Lookup("sierra-path")
			require.NotNil(t, sierra)
			assert.Equal(t, "s", sierra.Shorthand)

			output := sub.Flags().Lookup("output-path")
			require.NotNil(t, output)
			assert.Equal(t, "o", output.Shorthand)

			for _, legacy := range []string{"sierra-input-path", "casm-output-path"} {
				f := sub.Flags().Lookup(legacy)
				require.NotNil(t, f, legacy)
				assert.True(t, f.Hidden, legacy)
			}
		})
	}
}

func TestVersionsGolden(t *testing.T) {
	code, stdout, stderr := run(t, "versions")
	require.Equal(t, ExitSuccess, code, stderr)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "versions", []byte(stdout))
}

func TestVerboseLogsInvocation(t *testing.T) {
	path := writeJSON(t, "contract.json", testutil.Sierra100Contract(1))

	code, _, stderr := run(t, "compile-contract", "-v", "-s", path)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stderr, "invocation_id=inv-1")
	assert.Contains(t, stderr, "backend=sierra100")
	assert.Contains(t, stderr, "version=1.1.0")
}

func TestQuietByDefault(t *testing.T) {
	path := writeJSON(t, "contract.json", testutil.Sierra100Contract(1))

	code, _, stderr := run(t, "compile-contract", "-s", path)
	require.Equal(t, ExitSuccess, code)
	assert.Empty(t, stderr)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "usc.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[log]\nlevel = \"debug\"\n"), 0o644))
	path := writeJSON(t, "program.json", testutil.SampleProgram())

	code, _, stderr := run(t, "--config", cfgPath, "compile-raw", "-s", path)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stderr, "stage=compile_sierra_to_casm")
}

func TestConfigFileErrors(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "usc.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("compiler:\n  unknown: 1\n"), 0o644))

	code, stdout, _ := run(t, "--config", cfgPath, "versions")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stdout, "[ERROR] Unable to load config file")

	code, stdout, stderr := run(t, "--config", cfgPath, "compile-raw", "-s", "program.json")
	assert.Equal(t, ExitCommandError, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "[ERROR] Unable to load config file")
}

func TestUnknownCommand(t *testing.T) {
	code, stdout, _ := run(t, "compile-everything")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stdout, "[ERROR] unknown command")
}

func TestVersionFlag(t *testing.T) {
	prev := Version
	Version = "9.9.9"
	t.Cleanup(func() { Version = prev })

	code, stdout, stderr := run(t, "--version")
	require.Equal(t, ExitSuccess, code, stderr)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "version", []byte(stdout))
}
