package documentai

import (
	"cloud.google.com/go/documentai/apiv1/documentaipb"

	"github.com/joseph-ayodele/taxforms-extractor/internal/core/ocr"
)

// Form parser value types for checkbox fields.
const (
	filledCheckbox   = "filled_checkbox"
	unfilledCheckbox = "unfilled_checkbox"
)

// FromProto converts a Document AI document into the reconciler's boundary types.
// Checkbox values are rewritten to "checked" / "unchecked".
func FromProto(doc *documentaipb.Document) *ocr.Document {
	out := &ocr.Document{Text: doc.GetText()}
	for i, p := range doc.GetPages() {
		number := int(p.GetPageNumber())
		if number == 0 {
			number = i + 1
		}
		page := ocr.Page{Number: number}

		for _, f := range p.GetFormFields() {
			field := ocr.FormField{
				Name:  layout(f.GetFieldName()),
				Value: layout(f.GetFieldValue()),
			}
			switch f.GetValueType() {
			case filledCheckbox:
				field.Value.Anchor = ocr.TextAnchor{Content: "checked"}
			case unfilledCheckbox:
				field.Value.Anchor = ocr.TextAnchor{Content: "unchecked"}
			}
			page.FormFields = append(page.FormFields, field)
		}

		for _, t := range p.GetTables() {
			page.Tables = append(page.Tables, ocr.Table{
				HeaderRows: rows(t.GetHeaderRows()),
				BodyRows:   rows(t.GetBodyRows()),
			})
		}
		out.Pages = append(out.Pages, page)
	}
	return out
}

func layout(l *documentaipb.Document_Page_Layout) ocr.Layout {
	a := l.GetTextAnchor()
	out := ocr.Layout{
		Anchor:     ocr.TextAnchor{Content: a.GetContent()},
		Confidence: l.GetConfidence(),
	}
	for _, s := range a.GetTextSegments() {
		out.Anchor.Segments = append(out.Anchor.Segments, ocr.Segment{Start: s.GetStartIndex(), End: s.GetEndIndex()})
	}
	return out
}

func rows(in []*documentaipb.Document_Page_Table_TableRow) [][]ocr.Layout {
	out := make([][]ocr.Layout, 0, len(in))
	for _, r := range in {
		cells := make([]ocr.Layout, 0, len(r.GetCells()))
		for _, c := range r.GetCells() {
			cells = append(cells, layout(c.GetLayout()))
		}
		out = append(out, cells)
	}
	return out
}
