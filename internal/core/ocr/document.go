// Package ocr defines the boundary between the reconciler and the external
// document-understanding service, and the text normalizer applied to its output.
package ocr

import (
	"context"
	"strings"
)

// Processor runs OCR on a single page of a document. Each call may be metered by
// the provider; page is 1-based. A response with no pages means the document has
// fewer pages than requested.
type Processor interface {
	ProcessPage(ctx context.Context, content []byte, mimeType string, page int) (*Document, error)
}

// Segment is a [Start, End) byte range into Document.Text.
type Segment struct {
	Start int64
	End   int64
}

// TextAnchor points at the (possibly non-contiguous) text of one logical element.
// Content is used only when there are no segments.
type TextAnchor struct {
	Segments []Segment
	Content  string
}

// Layout is an anchored piece of text with the provider's confidence in [0,1].
type Layout struct {
	Anchor     TextAnchor
	Confidence float32
}

// FormField is a detected key/value pair.
type FormField struct {
	Name  Layout
	Value Layout
}

// Table is one detected table region. Rows are lists of cells.
type Table struct {
	HeaderRows [][]Layout
	BodyRows   [][]Layout
}

type Page struct {
	Number     int
	FormFields []FormField
	Tables     []Table
}

// Document is one provider response. Text is shared by every anchor of every
// page in the response and must not be modified.
type Document struct {
	Text  string
	Pages []Page
}

// RawField is a form field with its anchors resolved.
type RawField struct {
	Name            string
	NameConfidence  float32
	Value           string
	ValueConfidence float32
}

// RawTable is a table with its anchors resolved.
type RawTable struct {
	HeaderCells []string
	BodyRows    [][]string
}

// Resolve concatenates the anchored segments of text. Out-of-range indexes are
// clamped rather than trusted.
func Resolve(text string, anchor TextAnchor) string {
	if len(anchor.Segments) == 0 {
		return anchor.Content
	}
	n := int64(len(text))
	var b strings.Builder
	for _, seg := range anchor.Segments {
		start, end := clamp(seg.Start, 0, n), clamp(seg.End, 0, n)
		if end <= start {
			continue
		}
		b.WriteString(text[start:end])
	}
	return b.String()
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Fields resolves the form fields of p against the document text.
func (d *Document) Fields(p Page) []RawField {
	out := make([]RawField, 0, len(p.FormFields))
	for _, f := range p.FormFields {
		out = append(out, RawField{
			Name:            Resolve(d.Text, f.Name.Anchor),
			NameConfidence:  f.Name.Confidence,
			Value:           Resolve(d.Text, f.Value.Anchor),
			ValueConfidence: f.Value.Confidence,
		})
	}
	return out
}

// Tables resolves the tables of p. Only the first header row is kept; tables
// without a header row yield no header cells.
func (d *Document) Tables(p Page) []RawTable {
	out := make([]RawTable, 0, len(p.Tables))
	for _, t := range p.Tables {
		var rt RawTable
		if len(t.HeaderRows) > 0 {
			rt.HeaderCells = d.cells(t.HeaderRows[0])
		}
		for _, row := range t.BodyRows {
			rt.BodyRows = append(rt.BodyRows, d.cells(row))
		}
		out = append(out, rt)
	}
	return out
}

func (d *Document) cells(row []Layout) []string {
	values := make([]string, len(row))
	for i, c := range row {
		values[i] = Resolve(d.Text, c.Anchor)
	}
	return values
}
