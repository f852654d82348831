package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/usc/internal/casm"
	"github.com/roach88/usc/internal/jsondoc"
	"github.com/roach88/usc/internal/schema"
	"github.com/roach88/usc/internal/testutil"
)

// writeJSON stores v as a JSON file in a fresh temp dir and returns its path.
func writeJSON(t *testing.T, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return writeRaw(t, name, string(data))
}

func writeRaw(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCompileContractToStdout(t *testing.T) {
	for name, doc := range map[string]jsondoc.Object{
		"sierra 0.1.0": testutil.Sierra010Contract(),
		"sierra 1.0.0": testutil.Sierra100Contract(0),
		"sierra 1.5.0": testutil.LatestContract(5),
	} {
		t.Run(name, func(t *testing.T) {
			path := writeJSON(t, "contract.json", doc)

			code, stdout, stderr := run(t, "compile-contract", "--sierra-path", path)
			require.Equal(t, ExitSuccess, code, stderr)
			require.True(t, strings.HasSuffix(stdout, "}\n"))

			body := []byte(strings.TrimSuffix(stdout, "\n"))
			assert.NoError(t, schema.Validate(schema.CasmContractClass, body))

			var class casm.ContractClass
			require.NoError(t, json.Unmarshal(body, &class))
			assert.NoError(t, class.Validate())
			assert.NotEmpty(t, class.Bytecode)
		})
	}
}

func TestCompileContractToFile(t *testing.T) {
	path := writeJSON(t, "contract.json", testutil.LatestContract(7))
	out := filepath.Join(t.TempDir(), "casm.json")
	require.NoError(t, os.WriteFile(out, []byte(strings.Repeat("x", 1<<16)), 0o644))

	code, stdout, stderr := run(t, "compile-contract", "-s", path, "-o", out)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NoError(t, schema.Validate(schema.CasmContractClass, data), "previous contents are replaced")

	// The file holds exactly what stdout would show.
	_, again, _ := run(t, "compile-contract", "-s", path)
	assert.Equal(t, string(data)+"\n", again)
}

func TestCompileContractLegacyFlags(t *testing.T) {
	path := writeJSON(t, "contract.json", testutil.Sierra010Contract())
	out := filepath.Join(t.TempDir(), "casm.json")

	code, _, stderr := run(t, "compile-contract", "--sierra-input-path", path, "--casm-output-path", out)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.FileExists(t, out)
}

func TestCompileContractErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.json")
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "wrong json",
			input: writeRaw(t, "wrong.json", `{"wrong": "data"}`),
			want:  "[ERROR] Unable to read sierra_program. Make sure it is an array of felts\n",
		},
		{
			name:  "top-level array",
			input: writeRaw(t, "array.json", `["0x1"]`),
			want:  "[ERROR] Unable to read sierra_program. Make sure it is an array of felts\n",
		},
		{
			name:  "unsupported version",
			input: writeRaw(t, "future.json", `{"sierra_program": ["0x1", "0x8", "0x0"]}`),
			want:  "[ERROR] Unable to compile Sierra to Casm. No matching ContractClass or CasmContractClass found for version 1.8.0\n",
		},
		{
			name:  "missing entry points",
			input: writeRaw(t, "partial.json", `{"sierra_program": ["0x1", "0x4", "0x0", "0x2", "0x6", "0x0", "0x0", "0x0", "0x0"]}`),
			want:  "[ERROR] Unable to deserialize Sierra contract class\n",
		},
		{
			name:  "missing file",
			input: missing,
			want:  "[ERROR] Unable to open sierra json file\n",
		},
		{
			name:  "not json",
			input: writeRaw(t, "broken.json", `{"sierra_program": [`),
			want:  "[ERROR] Unable to read sierra json file\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "casm.json")
			code, stdout, stderr := run(t, "compile-contract", "-s", tt.input, "-o", out)

			assert.Equal(t, ExitCommandError, code)
			assert.Equal(t, tt.want, stdout)
			assert.Empty(t, stderr)
			assert.NoFileExists(t, out, "nothing is written on failure")
		})
	}
}

func TestCompileRequiresInput(t *testing.T) {
	code, _, stderr := run(t, "compile-raw")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, `"sierra-path" not set`)
}

func TestCompileRaw(t *testing.T) {
	p := testutil.GasProgram()
	path := writeJSON(t, "program.json", p)

	code, stdout, stderr := run(t, "compile-raw", "-s", path)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "assembled_cairo_program")
	assert.Contains(t, stdout, "debug_info")

	var out struct {
		DebugInfo [][2]int `json:"debug_info"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Len(t, out.DebugInfo, len(p.Statements))
}

func TestCompileRawWrongJSON(t *testing.T) {
	path := writeRaw(t, "wrong_sierra.json", `{"wrong": "data"}`)
	out := filepath.Join(t.TempDir(), "casm.json")

	code, stdout, stderr := run(t, "compile-raw", "--sierra-path", path, "--output-path", out)
	assert.Equal(t, ExitCommandError, code)
	assert.Empty(t, stdout)
	assert.Equal(t, "[ERROR] Unable to deserialize Sierra program. Make sure it is in a correct format\n", stderr)
	assert.NoFileExists(t, out)
}

func TestCompileUsesCache(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "usc.yaml")
	cfg := "cache:\n  path: " + filepath.Join(dir, "cache.db") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	path := writeJSON(t, "contract.json", testutil.LatestContract(3))

	code, first, stderr := run(t, "--config", cfgPath, "compile-contract", "-s", path)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.NotContains(t, stderr, "cache hit")

	code, second, stderr := run(t, "--config", cfgPath, "-v", "compile-contract", "-s", path)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stderr, "cache hit")
	assert.Contains(t, stderr, "entries=1")
	assert.NotContains(t, stderr, "backend selected", "the compiler is skipped")
	assert.Equal(t, first, second)
}
