package raw_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/usc/internal/diag"
	"github.com/roach88/usc/internal/jsondoc"
	"github.com/roach88/usc/internal/raw"
	"github.com/roach88/usc/internal/schema"
	"github.com/roach88/usc/internal/sierra"
	"github.com/roach88/usc/internal/testutil"
)

func programDoc(t *testing.T, p *sierra.Program) jsondoc.Value {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	doc, err := jsondoc.Parse(data)
	require.NoError(t, err)
	return doc
}

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestCompileGasProgram(t *testing.T) {
	p := testutil.GasProgram()
	res, err := raw.Compile(programDoc(t, p), raw.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "latest", res.Backend)
	assert.NotEmpty(t, res.Program.Bytecode)
	assert.Len(t, res.Program.DebugInfo, len(p.Statements), "one debug entry per statement")
	assert.Len(t, res.Program.Hints, 3)

	data, err := jsondoc.Canonicalize(res.Output)
	require.NoError(t, err)
	assert.NoError(t, schema.Validate(schema.RawOutput, data))
}

func TestCompileOutputShape(t *testing.T) {
	res, err := raw.Compile(programDoc(t, testutil.SampleProgram()), raw.DefaultOptions())
	require.NoError(t, err)

	data, err := json.Marshal(res.Output)
	require.NoError(t, err)

	var out struct {
		Assembled struct {
			Bytecode []string          `json:"bytecode"`
			Hints    []json.RawMessage `json:"hints"`
		} `json:"assembled_cairo_program"`
		DebugInfo [][2]int `json:"debug_info"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Len(t, out.Assembled.Bytecode, 29)
	assert.Equal(t, "0x40780017fff7fff", out.Assembled.Bytecode[0])
	assert.Empty(t, out.Assembled.Hints)
	require.Len(t, out.DebugInfo, 13)
	assert.Equal(t, [2]int{8, 6}, out.DebugInfo[4], "main starts after add_five")
}

func TestCompileIsDeterministic(t *testing.T) {
	doc := programDoc(t, testutil.GasProgram())
	render := func() []byte {
		res, err := raw.Compile(doc, raw.DefaultOptions())
		require.NoError(t, err)
		data, err := jsondoc.Canonicalize(res.Output)
		require.NoError(t, err)
		return data
	}
	assert.Equal(t, render(), render())
}

func TestCompileLogsStages(t *testing.T) {
	logs := captureLogs(t)
	clock := testutil.NewStepClock(time.Millisecond)

	_, err := raw.Compile(programDoc(t, testutil.SampleProgram()), raw.Options{GasUsageCheck: true, Clock: clock})
	require.NoError(t, err)

	var stages []string
	sc := bufio.NewScanner(logs)
	for sc.Scan() {
		var rec struct {
			Msg      string `json:"msg"`
			Stage    string `json:"stage"`
			Duration int64  `json:"duration"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		if rec.Msg != "stage finished" {
			continue
		}
		stages = append(stages, rec.Stage)
		assert.Equal(t, time.Millisecond.Nanoseconds(), rec.Duration, rec.Stage)
	}
	assert.Equal(t, []string{raw.StageCalcMetadata, raw.StageCompile, raw.StageAssemble, raw.StageSerialize}, stages)
	assert.Equal(t, int64(8), clock.Reads())
}

func TestCompileIgnoresExtraFields(t *testing.T) {
	doc := programDoc(t, testutil.SampleProgram()).(jsondoc.Object)
	want, err := raw.Compile(doc, raw.DefaultOptions())
	require.NoError(t, err)

	doc["debug_info"] = jsondoc.Object{"type_names": jsondoc.Array{}}
	got, err := raw.Compile(doc, raw.DefaultOptions())
	require.NoError(t, err)

	wantJSON, err := jsondoc.Canonicalize(want.Output)
	require.NoError(t, err)
	gotJSON, err := jsondoc.Canonicalize(got.Output)
	require.NoError(t, err)
	assert.Equal(t, wantJSON, gotJSON)
}

func TestCompileDeserializationErrors(t *testing.T) {
	tests := map[string]jsondoc.Value{
		"wrong fields":  jsondoc.Object{"wrong": jsondoc.String("data")},
		"not an object": jsondoc.Array{jsondoc.Number("1")},
		"statement without target": func() jsondoc.Value {
			doc := programDoc(t, testutil.SampleProgram()).(jsondoc.Object)
			doc["statements"] = jsondoc.Array{jsondoc.Object{"Invalid": jsondoc.Null{}}}
			return doc
		}(),
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := raw.Compile(doc, raw.DefaultOptions())
			require.Error(t, err)
			assert.True(t, diag.Is(err, diag.KindRawDeserialization), "got %v", err)
			assert.Contains(t, err.Error(), diag.MsgRawDeserialization)
		})
	}
}

func TestCompileCompilationErrors(t *testing.T) {
	t.Run("unsupported libfunc", func(t *testing.T) {
		p := testutil.NewProgram().Type(0, "felt252").
			Libfunc(0, "felt252_div").
			Step(0, testutil.Vals(0, 0), 1).Return(1).
			Func(0, "f", 0, [][2]uint64{{0, 0}}, 0).Build()

		_, err := raw.Compile(programDoc(t, p), raw.DefaultOptions())
		require.Error(t, err)
		assert.True(t, diag.Is(err, diag.KindBackendCompilation))
		assert.Contains(t, err.Error(), diag.MsgRawCompile)
	})

	t.Run("bytecode size limit", func(t *testing.T) {
		_, err := raw.Compile(programDoc(t, testutil.SampleProgram()), raw.Options{MaxBytecodeSize: 28})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "code size limit exceeded")
	})
}

func TestRegistryHasOneUnconditionalEntry(t *testing.T) {
	ds := raw.Registry.Describe()
	require.Len(t, ds, 1)
	assert.Equal(t, "latest", ds[0].Name)
	assert.True(t, ds[0].Match([3]uint8{9, 9, 9}))
}
