// Package schema holds the canonical field names of each declaration form.
//
// A Registry is built once at process start and passed to every component that
// needs it. It is read-only after construction.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/taxforms-extractor/constants"
	"github.com/joseph-ayodele/taxforms-extractor/internal/common"
)

//go:embed forms.yaml
var defaultDocument []byte

//go:embed document.schema.json
var documentSchema []byte

// Schema is the canonical layout of one form variant.
type Schema struct {
	Variant            constants.FormVariant
	Marker             string
	FlatFields         []string
	TableColumns       []string
	CheckboxFields     []string
	CheckboxLabelField string
	CheckboxTokens     []string
}

// Registry resolves schemas by variant.
type Registry struct {
	schemas map[constants.FormVariant]*Schema
	order   []constants.FormVariant
	all     map[constants.FormVariant][]string
}

type document struct {
	Version  int               `yaml:"version"`
	Variants []variantDocument `yaml:"variants"`
}

type variantDocument struct {
	Name               string   `yaml:"name"`
	Marker             string   `yaml:"marker"`
	FlatFields         []string `yaml:"flat_fields"`
	TableColumns       []string `yaml:"table_columns"`
	CheckboxFields     []string `yaml:"checkbox_fields"`
	CheckboxLabelField string   `yaml:"checkbox_label_field"`
	CheckboxTokens     []string `yaml:"checkbox_tokens"`
}

// Default returns the registry for the schema document shipped with the binary.
func Default() (*Registry, error) {
	return Load(defaultDocument)
}

// LoadFile reads a schema document from disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return Load(data)
}

// Load parses and validates a YAML schema document.
func Load(data []byte) (*Registry, error) {
	if err := validateDocument(data); err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, common.NewAppError("SCHEMA_ERROR", "parse schema document", err)
	}

	schemas := make([]Schema, 0, len(doc.Variants))
	for _, v := range doc.Variants {
		schemas = append(schemas, Schema{
			Variant:            constants.FormVariant(v.Name),
			Marker:             v.Marker,
			FlatFields:         v.FlatFields,
			TableColumns:       v.TableColumns,
			CheckboxFields:     v.CheckboxFields,
			CheckboxLabelField: v.CheckboxLabelField,
			CheckboxTokens:     v.CheckboxTokens,
		})
	}
	return New(schemas...)
}

func validateDocument(data []byte) error {
	asJSON, err := yaml.YAMLToJSON(data)
	if err != nil {
		return common.NewAppError("SCHEMA_ERROR", "convert schema document", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("document.schema.json", bytes.NewReader(documentSchema)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("document.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(asJSON, &v); err != nil {
		return common.NewAppError("SCHEMA_ERROR", "decode schema document", err)
	}
	if err := compiled.Validate(v); err != nil {
		return common.NewAppError("SCHEMA_ERROR", "schema document is invalid", err)
	}
	return nil
}

// New builds a registry from explicit schemas. Field names must be unique across
// a variant's flat fields, table columns and checkbox fields.
func New(schemas ...Schema) (*Registry, error) {
	r := &Registry{
		schemas: make(map[constants.FormVariant]*Schema, len(schemas)),
		all:     make(map[constants.FormVariant][]string, len(schemas)),
	}
	for i := range schemas {
		s := schemas[i]
		if s.Variant == constants.Undetermined {
			return nil, common.NewAppError("SCHEMA_ERROR", "variant name is required", common.ErrInvalidInput)
		}
		if _, dup := r.schemas[s.Variant]; dup {
			return nil, common.NewAppError("SCHEMA_ERROR", fmt.Sprintf("variant %s declared twice", s.Variant), common.ErrInvalidInput)
		}
		if s.Marker == "" {
			s.Marker = string(s.Variant)
		}

		all := make([]string, 0, len(s.FlatFields)+len(s.TableColumns)+len(s.CheckboxFields))
		all = append(all, s.FlatFields...)
		all = append(all, s.TableColumns...)
		all = append(all, s.CheckboxFields...)

		seen := make(map[string]struct{}, len(all))
		for _, name := range all {
			if _, dup := seen[name]; dup {
				return nil, common.NewAppError("SCHEMA_ERROR", fmt.Sprintf("variant %s: field %q declared twice", s.Variant, name), common.ErrInvalidInput)
			}
			seen[name] = struct{}{}
		}
		if s.CheckboxLabelField != "" && !contains(s.CheckboxFields, s.CheckboxLabelField) {
			return nil, common.NewAppError("SCHEMA_ERROR", fmt.Sprintf("variant %s: checkbox label field %q is not a checkbox field", s.Variant, s.CheckboxLabelField), common.ErrInvalidInput)
		}

		r.schemas[s.Variant] = &s
		r.all[s.Variant] = all
		r.order = append(r.order, s.Variant)
	}
	return r, nil
}

// Variants lists the registered variants in declaration order.
func (r *Registry) Variants() []constants.FormVariant {
	out := make([]constants.FormVariant, len(r.order))
	copy(out, r.order)
	return out
}

// SchemaFor returns the schema of variant or ErrUnknownVariant.
func (r *Registry) SchemaFor(variant constants.FormVariant) (*Schema, error) {
	s, ok := r.schemas[variant]
	if !ok {
		return nil, common.NewAppError("UNKNOWN_VARIANT", variant.String(), common.ErrUnknownVariant)
	}
	return s, nil
}

// AllFieldNames is flat fields, then table columns, then checkbox fields. It is
// both the spreadsheet header and the number of keys a complete document yields.
func (r *Registry) AllFieldNames(variant constants.FormVariant) ([]string, error) {
	all, ok := r.all[variant]
	if !ok {
		return nil, common.NewAppError("UNKNOWN_VARIANT", variant.String(), common.ErrUnknownVariant)
	}
	out := make([]string, len(all))
	copy(out, all)
	return out, nil
}

func (r *Registry) IsCheckboxField(variant constants.FormVariant, name string) bool {
	s, ok := r.schemas[variant]
	if !ok {
		return false
	}
	return contains(s.CheckboxFields, name)
}

// CheckboxLabelField is the field that records which checkbox label (Yes/No) was ticked.
func (r *Registry) CheckboxLabelField(variant constants.FormVariant) (string, error) {
	s, err := r.SchemaFor(variant)
	if err != nil {
		return "", err
	}
	return s.CheckboxLabelField, nil
}

// CheckboxToken returns the schema's spelling of label when it is one of the
// variant's checkbox labels (compared case-insensitively).
func (r *Registry) CheckboxToken(variant constants.FormVariant, label string) (string, bool) {
	s, ok := r.schemas[variant]
	if !ok || s.CheckboxLabelField == "" {
		return "", false
	}
	for _, tok := range s.CheckboxTokens {
		if strings.EqualFold(tok, label) {
			return tok, true
		}
	}
	return "", false
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
