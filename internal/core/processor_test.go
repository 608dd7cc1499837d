package core_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/taxforms-extractor/constants"
	"github.com/joseph-ayodele/taxforms-extractor/internal/common"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core/classify"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core/match"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core/ocr"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core/reconcile"
	"github.com/joseph-ayodele/taxforms-extractor/internal/export"
	"github.com/joseph-ayodele/taxforms-extractor/internal/ingest"
	"github.com/joseph-ayodele/taxforms-extractor/internal/repository"
	"github.com/joseph-ayodele/taxforms-extractor/internal/schema"
)

// fakeOCR serves pages per document content and counts requests.
type fakeOCR struct {
	docs  map[string]map[int]*ocr.Document
	errs  map[string]error
	calls map[string][]int
}

func newFakeOCR() *fakeOCR {
	return &fakeOCR{
		docs:  map[string]map[int]*ocr.Document{},
		errs:  map[string]error{},
		calls: map[string][]int{},
	}
}

func (f *fakeOCR) ProcessPage(_ context.Context, content []byte, _ string, page int) (*ocr.Document, error) {
	key := string(content)
	f.calls[key] = append(f.calls[key], page)
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	if d, ok := f.docs[key][page]; ok {
		return d, nil
	}
	return &ocr.Document{}, nil
}

// formPage lays out a page whose text starts with header and carries the
// given name/value pairs at 0.95 confidence.
func formPage(header string, fields ...[2]string) *ocr.Document {
	var b strings.Builder
	b.WriteString(header + "\n")
	anchor := func(s string) ocr.Layout {
		start := int64(b.Len())
		b.WriteString(s)
		end := int64(b.Len())
		b.WriteString("\n")
		return ocr.Layout{Anchor: ocr.TextAnchor{Segments: []ocr.Segment{{Start: start, End: end}}}, Confidence: 0.95}
	}
	page := ocr.Page{Number: 1}
	for _, f := range fields {
		page.FormFields = append(page.FormFields, ocr.FormField{Name: anchor(f[0]), Value: anchor(f[1])})
	}
	return &ocr.Document{Text: b.String(), Pages: []ocr.Page{page}}
}

type sliceSource struct {
	entries []ingest.Entry
	err     error
}

func (s *sliceSource) Walk(_ context.Context, fn func(ingest.Entry) error) error {
	for _, e := range s.entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return s.err
}

func (s *sliceSource) Close() error { return nil }

type harness struct {
	registry *schema.Registry
	ocr      *fakeOCR
	sheet    *export.SheetWriter
	jobs     repository.ExtractJobRepository
	proc     *core.Processor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg, err := schema.Default()
	require.NoError(t, err)

	fake := newFakeOCR()
	rec := reconcile.New(
		fake,
		reg,
		match.NewMatcher(reg, match.DefaultThreshold, nil),
		classify.New(reg),
		ocr.NewNormalizer("anywhere"),
		reconcile.DefaultConfig(),
		nil,
	)

	sheet, err := export.NewSheetWriter(reg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sheet.Close() })

	db, err := repository.Open(context.Background(), repository.Config{DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	jobs := repository.NewExtractJobRepository(db, nil)

	return &harness{
		registry: reg,
		ocr:      fake,
		sheet:    sheet,
		jobs:     jobs,
		proc:     core.NewProcessor(nil, rec, sheet, jobs),
	}
}

func (h *harness) rows(t *testing.T) [][]string {
	t.Helper()
	data, err := h.sheet.Bytes()
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	return rows
}

func TestProcessSource_SingleDocument(t *testing.T) {
	h := newHarness(t)
	h.ocr.docs["doc-a"] = map[int]*ocr.Document{
		1: formPage("FORM NO. 15G", [2]string{"PAN of the Assessee", "ABCDE1234F"}),
	}

	runID, stats, err := h.proc.ProcessSource(context.Background(), &sliceSource{
		entries: []ingest.Entry{{Name: "15G/a.pdf", Content: []byte("doc-a")}},
	})
	require.NoError(t, err)
	assert.Equal(t, core.Stats{Scanned: 1, Processed: 1}, stats)

	header, err := h.registry.AllFieldNames(constants.Form15G)
	require.NoError(t, err)

	rows := h.rows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, header, rows[0])
	for i, col := range header {
		got := ""
		if i < len(rows[1]) {
			got = rows[1][i]
		}
		if col == "PAN of the Assessee" {
			assert.Equal(t, "ABCDE1234F", got)
		} else {
			assert.Empty(t, got, col)
		}
	}

	jobs, err := h.jobs.ListByRun(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, constants.JobStatusDone, jobs[0].Status)
	assert.Equal(t, constants.Form15G, jobs[0].FormVariant)
	assert.Equal(t, constants.MimePDF, jobs[0].MimeType)
	assert.Equal(t, 1, jobs[0].FieldsMatched)
	assert.Equal(t, 2, jobs[0].PagesProcessed, "page 2 came back empty")
}

func TestProcessSource_MixedBatch(t *testing.T) {
	h := newHarness(t)
	h.ocr.docs["doc-ok"] = map[int]*ocr.Document{
		1: formPage("FORM NO. 15H", [2]string{"Email", "senior@example.in"}),
	}
	h.ocr.docs["doc-unknown"] = map[int]*ocr.Document{
		1: formPage("DECLARATION", [2]string{"PAN of the Assessee", "X"}),
		2: formPage("CONTINUED"),
		3: formPage("FORM NO. 15G"),
	}
	h.ocr.errs["doc-broken"] = errors.New("deadline exceeded")

	src := &sliceSource{entries: []ingest.Entry{
		{Name: "b/unknown.jpg", Content: []byte("doc-unknown")},
		{Name: "b/readme.txt", Content: []byte("text")},
		{Name: "b/broken.pdf", Content: []byte("doc-broken")},
		{Name: "b/ok.pdf", Content: []byte("doc-ok")},
	}}

	runID, stats, err := h.proc.ProcessSource(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, core.Stats{Scanned: 4, Processed: 1, Failed: 2, Skipped: 1}, stats)

	assert.Equal(t, []int{1, 2}, h.ocr.calls["doc-unknown"], "variant detection gives up after two pages")
	assert.Equal(t, []int{1}, h.ocr.calls["doc-broken"])
	assert.Empty(t, h.ocr.calls["text"])

	// header follows the first successful document
	header, err := h.registry.AllFieldNames(constants.Form15H)
	require.NoError(t, err)
	rows := h.rows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, 1, h.sheet.Rows())

	jobs, err := h.jobs.ListByRun(context.Background(), runID)
	require.NoError(t, err)
	status := map[string]constants.JobStatus{}
	messages := map[string]string{}
	for _, j := range jobs {
		status[j.SourceName] = j.Status
		if j.ErrorMessage != nil {
			messages[j.SourceName] = *j.ErrorMessage
		}
	}
	assert.Equal(t, map[string]constants.JobStatus{
		"b/unknown.jpg": constants.JobStatusFailed,
		"b/readme.txt":  constants.JobStatusSkipped,
		"b/broken.pdf":  constants.JobStatusFailed,
		"b/ok.pdf":      constants.JobStatusDone,
	}, status)
	assert.Contains(t, messages["b/unknown.jpg"], "VARIANT_UNDETERMINED")
	assert.Contains(t, messages["b/broken.pdf"], "deadline exceeded")
}

func TestProcessEntry_ReportsCause(t *testing.T) {
	h := newHarness(t)
	h.ocr.errs["doc"] = errors.New("unavailable")

	status, err := h.proc.ProcessEntry(context.Background(), ingest.Entry{Name: "x.pdf", Content: []byte("doc")})
	assert.Equal(t, constants.JobStatusFailed, status)
	assert.ErrorIs(t, err, common.ErrOCR)
	assert.Equal(t, "OCR_ERROR", common.ErrorCode(err))

	status, err = h.proc.ProcessEntry(context.Background(), ingest.Entry{Name: "x.png", Content: []byte("doc")})
	assert.Equal(t, constants.JobStatusSkipped, status)
	assert.NoError(t, err)
}

func TestProcessSource_WithoutLedger(t *testing.T) {
	h := newHarness(t)
	h.ocr.docs["doc"] = map[int]*ocr.Document{
		1: formPage("FORM NO. 15G", [2]string{"Email", "a@b.in"}),
	}
	rec := reconcile.New(h.ocr, h.registry, match.NewMatcher(h.registry, 0, nil), classify.New(h.registry),
		ocr.NewNormalizer("anywhere"), reconcile.DefaultConfig(), nil)
	proc := core.NewProcessor(nil, rec, h.sheet, nil)

	_, stats, err := proc.ProcessSource(context.Background(), &sliceSource{
		entries: []ingest.Entry{{Name: "a.pdf", Content: []byte("doc")}},
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), stats.Processed)
}

func TestProcessSource_SourceError(t *testing.T) {
	h := newHarness(t)
	readErr := errors.New("corrupt archive")

	_, stats, err := h.proc.ProcessSource(context.Background(), &sliceSource{err: readErr})
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, core.Stats{}, stats)
}

func TestProcessSource_UnreadableArchiveEntry(t *testing.T) {
	h := newHarness(t)
	h.ocr.docs["doc-b body"] = map[int]*ocr.Document{
		1: formPage("FORM NO. 15G", [2]string{"PAN of the Assessee", "ABCDE1234F"}),
	}

	// stored entries; flipping a byte of a.pdf's body breaks its CRC
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range [][2]string{{"a.pdf", "doc-a body"}, {"b.pdf", "doc-b body"}} {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f[0], Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write([]byte(f[1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	raw := buf.Bytes()
	i := bytes.Index(raw, []byte("doc-a body"))
	require.GreaterOrEqual(t, i, 0)
	raw[i] ^= 0xff
	path := filepath.Join(t.TempDir(), "batch.zip")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	src, err := ingest.Open(path)
	require.NoError(t, err)
	defer src.Close()

	runID, stats, err := h.proc.ProcessSource(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, core.Stats{Scanned: 2, Processed: 1, Failed: 1}, stats)
	assert.Len(t, h.ocr.calls, 1, "only the readable document reaches OCR")
	assert.Equal(t, []int{1, 2}, h.ocr.calls["doc-b body"])
	assert.Equal(t, 1, h.sheet.Rows())

	jobs, err := h.jobs.ListByRun(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	byName := map[string]int{}
	for i, j := range jobs {
		byName[j.SourceName] = i
	}
	failed := jobs[byName["a.pdf"]]
	assert.Equal(t, constants.JobStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "READ_ERROR")
	assert.Contains(t, *failed.ErrorMessage, zip.ErrChecksum.Error())
	assert.Equal(t, constants.JobStatusDone, jobs[byName["b.pdf"]].Status)
}

func TestProcessEntry_ReadError(t *testing.T) {
	h := newHarness(t)
	readErr := errors.New("unexpected EOF")

	status, err := h.proc.ProcessEntry(context.Background(), ingest.Entry{Name: "x.pdf", Err: readErr})
	assert.Equal(t, constants.JobStatusFailed, status)
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, "READ_ERROR", common.ErrorCode(err))
	assert.Empty(t, h.ocr.calls)
}
