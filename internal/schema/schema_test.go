package schema_test

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/usc/internal/casm"
	"github.com/roach88/usc/internal/jsondoc"
	"github.com/roach88/usc/internal/schema"
	"github.com/roach88/usc/internal/testutil"
)

func normalized(t *testing.T, doc jsondoc.Object) []byte {
	t.Helper()
	doc["abi"] = jsondoc.Null{}
	doc["sierra_program_debug_info"] = jsondoc.Null{}
	doc["contract_class_version"] = jsondoc.String("")
	data, err := jsondoc.Marshal(doc)
	require.NoError(t, err)
	return data
}

func TestContractClassSchemas(t *testing.T) {
	tests := []struct {
		def string
		doc jsondoc.Object
	}{
		{schema.Sierra010, testutil.Sierra010Contract()},
		{schema.Sierra100, testutil.Sierra100Contract(1)},
		{schema.Latest, testutil.LatestContract(4)},
	}
	for _, tt := range tests {
		t.Run(tt.def, func(t *testing.T) {
			assert.NoError(t, schema.Validate(tt.def, normalized(t, tt.doc)))
		})
	}
}

func TestContractClassSchemaRejects(t *testing.T) {
	t.Run("abi not stripped", func(t *testing.T) {
		data, err := jsondoc.Marshal(testutil.Sierra010Contract())
		require.NoError(t, err)
		err = schema.Validate(schema.Sierra010, data)
		require.Error(t, err)

		var ve *schema.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, schema.Sierra010, ve.Schema)
	})

	t.Run("missing entry points", func(t *testing.T) {
		doc := testutil.LatestContract(3)
		delete(doc, "entry_points_by_type")
		assert.Error(t, schema.Validate(schema.Latest, normalized(t, doc)))
	})

	t.Run("missing entry point group", func(t *testing.T) {
		doc := testutil.Sierra100Contract(0)
		doc["entry_points_by_type"] = jsondoc.Object{
			"EXTERNAL":    jsondoc.Array{},
			"CONSTRUCTOR": jsondoc.Array{},
		}
		assert.Error(t, schema.Validate(schema.Sierra100, normalized(t, doc)))
	})

	t.Run("short header", func(t *testing.T) {
		doc := testutil.Sierra010Contract()
		doc["sierra_program"] = jsondoc.Array{jsondoc.String("0x1"), jsondoc.String("0x0"), jsondoc.String("0x0")}
		assert.Error(t, schema.Validate(schema.Sierra100, normalized(t, doc)))
	})

	t.Run("decimal felt", func(t *testing.T) {
		doc := testutil.Sierra010Contract()
		doc["sierra_program"] = jsondoc.Array{jsondoc.Number("1"), jsondoc.String("0x0"), jsondoc.String("0x0")}
		assert.Error(t, schema.Validate(schema.Sierra010, normalized(t, doc)))
	})
}

func TestContractClassSchemaIgnoresExtraFields(t *testing.T) {
	doc := testutil.Sierra010Contract()
	doc["wrong"] = jsondoc.String("data")
	assert.NoError(t, schema.Validate(schema.Sierra010, normalized(t, doc)))
}

func TestProgramSchema(t *testing.T) {
	for name, p := range map[string]any{
		"sample": testutil.SampleProgram(),
		"gas":    testutil.GasProgram(),
	} {
		t.Run(name, func(t *testing.T) {
			data, err := json.Marshal(p)
			require.NoError(t, err)
			assert.NoError(t, schema.Validate(schema.Program, data))
		})
	}

	t.Run("extra fields", func(t *testing.T) {
		data, err := json.Marshal(testutil.SampleProgram())
		require.NoError(t, err)
		doc, err := jsondoc.ParseObject(data)
		require.NoError(t, err)
		doc["debug_info"] = jsondoc.Object{"type_names": jsondoc.Array{}}
		data, err = jsondoc.Marshal(doc)
		require.NoError(t, err)
		assert.NoError(t, schema.Validate(schema.Program, data))
	})

	bad := []string{
		`{"wrong": "data"}`,
		`{"type_declarations": [], "libfunc_declarations": [], "statements": []}`,
		`{"type_declarations": [], "libfunc_declarations": [], "statements": [{"Jump": 1}], "funcs": []}`,
		`{"type_declarations": [], "libfunc_declarations": [], "statements": [], "funcs": [{"id": {"id": -1}}]}`,
		`[1, 2, 3]`,
	}
	for _, doc := range bad {
		t.Run(doc, func(t *testing.T) {
			assert.Error(t, schema.Validate(schema.Program, []byte(doc)))
		})
	}
}

func TestRawOutputSchema(t *testing.T) {
	out := casm.RawOutputFor(&casm.Program{
		Bytecode: casm.Bytecode{big.NewInt(0x208b7fff7fff7ffe)},
		Hints: casm.HintList{{Pos: 0, Hints: []casm.Hint{
			casm.AllocSegment(casm.Fp(0)),
		}}},
		DebugInfo: []casm.DebugEntry{{Offset: 0, InstructionIdx: 0}},
	})
	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NoError(t, schema.Validate(schema.RawOutput, data))

	err = schema.Validate(schema.RawOutput, []byte(`{"assembled_cairo_program": {"bytecode": [1], "hints": []}, "debug_info": []}`))
	assert.Error(t, err)
}

func TestUnknownDefinition(t *testing.T) {
	err := schema.Validate("#Nope", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not defined")
}
