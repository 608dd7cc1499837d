package reconcile

import (
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/taxforms-extractor/constants"
)

// ConflictValue is stored in the checkbox label field when more than one
// checkbox label of the same question is ticked.
const ConflictValue = "Unknown"

type ValueKind int

const (
	TextKind ValueKind = iota
	BoolKind
	ListKind
)

// Value is a reconciled field value: free text, a checkbox state, or a table column.
type Value struct {
	Kind ValueKind
	Text string
	Bool bool
	List []string
}

func Text(s string) Value       { return Value{Kind: TextKind, Text: s} }
func Bool(b bool) Value         { return Value{Kind: BoolKind, Bool: b} }
func List(items []string) Value { return Value{Kind: ListKind, List: items} }

// String renders the value for a spreadsheet cell. Lists are newline-joined.
func (v Value) String() string {
	switch v.Kind {
	case BoolKind:
		return strconv.FormatBool(v.Bool)
	case ListKind:
		return strings.Join(v.List, "\n")
	default:
		return v.Text
	}
}

// Interface returns the value as string, bool or []string.
func (v Value) Interface() any {
	switch v.Kind {
	case BoolKind:
		return v.Bool
	case ListKind:
		return v.List
	default:
		return v.Text
	}
}

// Result is the canonical key/value mapping of one document.
type Result struct {
	Variant constants.FormVariant
	Fields  map[string]Value
	// Pages is the number of OCR page requests made for the document.
	Pages int
}

// Keys returns the matched canonical keys in lexical order.
func (r *Result) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsMap is the JSON-friendly form stored in the job ledger.
func (r *Result) AsMap() map[string]any {
	m := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		m[k] = v.Interface()
	}
	return m
}
