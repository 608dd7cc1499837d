// Package export writes reconciled documents to an XLSX workbook.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/taxforms-extractor/constants"
	"github.com/joseph-ayodele/taxforms-extractor/internal/common"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core/reconcile"
	"github.com/joseph-ayodele/taxforms-extractor/internal/schema"
)

// SheetName is the single worksheet every batch is written to.
const SheetName = "Declarations"

// Sink receives one reconciled document at a time.
type Sink interface {
	Append(ctx context.Context, res *reconcile.Result) error
}

// SheetWriter lays results out in the canonical column order of the first
// document it receives. It is not safe for concurrent use.
type SheetWriter struct {
	registry *schema.Registry
	logger   *slog.Logger

	file    *excelize.File
	header  []string
	columns map[string]int
	variant constants.FormVariant
	nextRow int
}

func NewSheetWriter(registry *schema.Registry, logger *slog.Logger) (*SheetWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	return &SheetWriter{
		registry: registry,
		logger:   logger,
		file:     f,
		nextRow:  1,
	}, nil
}

// Append writes res as the next data row. The header is written on the first
// call. Keys missing from the header are logged and skipped.
func (w *SheetWriter) Append(ctx context.Context, res *reconcile.Result) error {
	if res == nil {
		return common.NewAppError("INVALID_INPUT", "nil result", common.ErrInvalidInput)
	}
	source := common.SourceNameFromContext(ctx)

	if w.header == nil {
		if err := w.writeHeader(res.Variant); err != nil {
			return err
		}
	}
	if res.Variant != w.variant {
		w.logger.Warn("result variant differs from sheet header", "file", source, "variant", res.Variant.String(), "header_variant", w.variant.String())
	}

	row := w.nextRow
	skipped := 0
	for _, key := range res.Keys() {
		col, ok := w.columns[key]
		if !ok {
			w.logger.Error("result key has no column", "file", source, "key", key, "err", common.ErrSchemaColumnMissing)
			skipped++
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := w.file.SetCellStr(SheetName, cell, res.Fields[key].String()); err != nil {
			return fmt.Errorf("write %s: %w", cell, err)
		}
	}
	w.nextRow++

	w.logger.Debug("row written", "file", source, "row", row, "keys", len(res.Fields)-skipped, "skipped", skipped)
	return nil
}

func (w *SheetWriter) writeHeader(variant constants.FormVariant) error {
	header, err := w.registry.AllFieldNames(variant)
	if err != nil {
		return err
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := w.file.SetCellStr(SheetName, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		columns[h] = i + 1
	}
	if last, err := excelize.ColumnNumberToName(len(header)); err == nil && len(header) > 0 {
		_ = w.file.SetColWidth(SheetName, "A", last, 28)
	}

	w.header = header
	w.columns = columns
	w.variant = variant
	w.nextRow = 2
	return nil
}

// Header returns the header row, or nil before the first Append.
func (w *SheetWriter) Header() []string {
	return append([]string(nil), w.header...)
}

// Rows is the number of data rows written so far.
func (w *SheetWriter) Rows() int {
	if w.header == nil {
		return 0
	}
	return w.nextRow - 2
}

// WriteTo serializes the workbook.
func (w *SheetWriter) WriteTo(out io.Writer) (int64, error) {
	n, err := w.file.WriteTo(out)
	if err != nil {
		return n, fmt.Errorf("xlsx write: %w", err)
	}
	return n, nil
}

// Bytes returns the workbook as XLSX bytes.
func (w *SheetWriter) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveAs writes the workbook to path and logs the row count.
func (w *SheetWriter) SaveAs(path string) error {
	if err := w.file.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx save %s: %w", path, err)
	}
	w.logger.Info("export.xlsx.ok", "path", path, "rows", w.Rows(), "variant", w.variant.String())
	return nil
}

func (w *SheetWriter) Close() error {
	return w.file.Close()
}
