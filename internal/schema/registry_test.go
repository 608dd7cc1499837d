package schema_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/taxforms-extractor/constants"
	"github.com/joseph-ayodele/taxforms-extractor/internal/common"
	"github.com/joseph-ayodele/taxforms-extractor/internal/schema"
)

func TestDefault_KnownVariants(t *testing.T) {
	reg, err := schema.Default()
	require.NoError(t, err)

	assert.Equal(t, []constants.FormVariant{constants.Form15G, constants.Form15H}, reg.Variants())

	for _, v := range reg.Variants() {
		s, err := reg.SchemaFor(v)
		require.NoError(t, err)
		assert.Equal(t, string(v), s.Marker)
		assert.Contains(t, s.TableColumns, "Nature of income")
		assert.Equal(t, "Whether assessed to tax", s.CheckboxLabelField)
	}

	g, _ := reg.SchemaFor(constants.Form15G)
	assert.Contains(t, g.FlatFields, "PAN of the Assessee")
	h, _ := reg.SchemaFor(constants.Form15H)
	assert.Contains(t, h.FlatFields, "Date of Birth (DD/MM/YYYY)")
}

func TestAllFieldNames_Order(t *testing.T) {
	reg, err := schema.New(schema.Schema{
		Variant:            "A",
		FlatFields:         []string{"f1", "f2"},
		TableColumns:       []string{"t1"},
		CheckboxFields:     []string{"c1"},
		CheckboxLabelField: "c1",
		CheckboxTokens:     []string{"Yes", "No"},
	})
	require.NoError(t, err)

	all, err := reg.AllFieldNames("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2", "t1", "c1"}, all)

	// callers get a copy
	all[0] = "mutated"
	again, _ := reg.AllFieldNames("A")
	assert.Equal(t, "f1", again[0])

	s, _ := reg.SchemaFor("A")
	assert.Equal(t, "A", s.Marker, "marker defaults to the variant name")
}

func TestUnknownVariant(t *testing.T) {
	reg, err := schema.Default()
	require.NoError(t, err)

	_, err = reg.SchemaFor(constants.Undetermined)
	assert.True(t, errors.Is(err, common.ErrUnknownVariant))

	_, err = reg.AllFieldNames("15X")
	assert.True(t, errors.Is(err, common.ErrUnknownVariant))

	_, err = reg.CheckboxLabelField("15X")
	assert.True(t, errors.Is(err, common.ErrUnknownVariant))

	assert.False(t, reg.IsCheckboxField("15X", "Whether assessed to tax"))
	_, ok := reg.CheckboxToken("15X", "yes")
	assert.False(t, ok)
}

func TestCheckboxHelpers(t *testing.T) {
	reg, err := schema.Default()
	require.NoError(t, err)

	assert.True(t, reg.IsCheckboxField(constants.Form15G, "Whether assessed to tax"))
	assert.False(t, reg.IsCheckboxField(constants.Form15G, "PAN of the Assessee"))

	tok, ok := reg.CheckboxToken(constants.Form15H, "YES")
	assert.True(t, ok)
	assert.Equal(t, "Yes", tok)

	tok, ok = reg.CheckboxToken(constants.Form15H, "no")
	assert.True(t, ok)
	assert.Equal(t, "No", tok)

	_, ok = reg.CheckboxToken(constants.Form15H, "maybe")
	assert.False(t, ok)
}

func TestNew_RejectsDuplicates(t *testing.T) {
	tests := []struct {
		name    string
		schemas []schema.Schema
	}{
		{
			name: "field in flat and table",
			schemas: []schema.Schema{{
				Variant: "A", FlatFields: []string{"x"}, TableColumns: []string{"x"},
			}},
		},
		{
			name: "variant twice",
			schemas: []schema.Schema{
				{Variant: "A", FlatFields: []string{"x"}},
				{Variant: "A", FlatFields: []string{"y"}},
			},
		},
		{
			name: "label field outside checkbox fields",
			schemas: []schema.Schema{{
				Variant: "A", FlatFields: []string{"x"}, CheckboxLabelField: "x",
			}},
		},
		{
			name:    "empty variant",
			schemas: []schema.Schema{{FlatFields: []string{"x"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.New(tt.schemas...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrInvalidInput))
		})
	}
}

func TestLoad_InvalidDocument(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "missing variants", doc: "version: 1\n"},
		{name: "unknown key", doc: "version: 1\nvariants:\n  - name: A\n    marker: A\n    flat_fields: [x]\n    colour: red\n"},
		{name: "duplicate flat field", doc: "version: 1\nvariants:\n  - name: A\n    marker: A\n    flat_fields: [x, x]\n"},
		{name: "not yaml", doc: "version: [1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.Load([]byte(tt.doc))
			require.Error(t, err)
			assert.Equal(t, "SCHEMA_ERROR", common.ErrorCode(err))
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forms.yaml")
	doc := `version: 2
variants:
  - name: "15G"
    marker: "15G"
    flat_fields: ["PAN of the Assessee"]
    table_columns: ["Nature of income"]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	reg, err := schema.LoadFile(path)
	require.NoError(t, err)

	all, err := reg.AllFieldNames(constants.Form15G)
	require.NoError(t, err)
	assert.Equal(t, []string{"PAN of the Assessee", "Nature of income"}, all)

	label, err := reg.CheckboxLabelField(constants.Form15G)
	require.NoError(t, err)
	assert.Empty(t, label)

	_, err = schema.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
