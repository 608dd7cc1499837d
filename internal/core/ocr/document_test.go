package ocr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/taxforms-extractor/internal/core/ocr"
)

func TestResolve(t *testing.T) {
	text := "PAN of the\nAssessee ABCDE1234F"

	tests := []struct {
		name   string
		anchor ocr.TextAnchor
		want   string
	}{
		{
			name:   "single segment",
			anchor: ocr.TextAnchor{Segments: []ocr.Segment{{Start: 20, End: 30}}},
			want:   "ABCDE1234F",
		},
		{
			name:   "non-contiguous segments are concatenated",
			anchor: ocr.TextAnchor{Segments: []ocr.Segment{{Start: 0, End: 10}, {Start: 10, End: 19}}},
			want:   "PAN of the\nAssessee",
		},
		{
			name:   "out of range is clamped",
			anchor: ocr.TextAnchor{Segments: []ocr.Segment{{Start: 25, End: 400}}},
			want:   "1234F",
		},
		{
			name:   "inverted segment ignored",
			anchor: ocr.TextAnchor{Segments: []ocr.Segment{{Start: 10, End: 2}}},
			want:   "",
		},
		{
			name:   "content fallback",
			anchor: ocr.TextAnchor{Content: "inline"},
			want:   "inline",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ocr.Resolve(text, tt.anchor))
		})
	}
}

func TestDocumentFieldsAndTables(t *testing.T) {
	text := "Nature of income\nInterest\nDividend\nEmail\na@b.in"
	seg := func(s, e int64) ocr.Layout {
		return ocr.Layout{Anchor: ocr.TextAnchor{Segments: []ocr.Segment{{Start: s, End: e}}}, Confidence: 0.9}
	}
	doc := &ocr.Document{
		Text: text,
		Pages: []ocr.Page{{
			Number:     1,
			FormFields: []ocr.FormField{{Name: seg(35, 40), Value: seg(41, 47)}},
			Tables: []ocr.Table{
				{
					HeaderRows: [][]ocr.Layout{{seg(0, 16)}},
					BodyRows:   [][]ocr.Layout{{seg(17, 25)}, {seg(26, 34)}},
				},
				{BodyRows: [][]ocr.Layout{{seg(17, 25)}}},
			},
		}},
	}

	fields := doc.Fields(doc.Pages[0])
	require.Len(t, fields, 1)
	assert.Equal(t, ocr.RawField{Name: "Email", NameConfidence: 0.9, Value: "a@b.in", ValueConfidence: 0.9}, fields[0])

	tables := doc.Tables(doc.Pages[0])
	require.Len(t, tables, 2)
	assert.Equal(t, []string{"Nature of income"}, tables[0].HeaderCells)
	assert.Equal(t, [][]string{{"Interest"}, {"Dividend"}}, tables[0].BodyRows)
	assert.Empty(t, tables[1].HeaderCells)
}
