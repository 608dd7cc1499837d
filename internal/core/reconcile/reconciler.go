// Package reconcile turns OCR output into canonical form fields, one document at
// a time, requesting as few OCR pages as possible.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/taxforms-extractor/constants"
	"github.com/joseph-ayodele/taxforms-extractor/internal/common"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core/classify"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core/match"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core/ocr"
	"github.com/joseph-ayodele/taxforms-extractor/internal/schema"
)

type Config struct {
	NameConfidence  float32
	ValueConfidence float32
	// PageCap bounds the pages requested per document.
	PageCap int
	// VariantPageCap bounds the pages scanned for a form marker.
	VariantPageCap int
}

func DefaultConfig() Config {
	return Config{NameConfidence: 0.6, ValueConfidence: 0.6, PageCap: 3, VariantPageCap: 2}
}

type state int

const (
	seekingVariant state = iota
	extracting
	done
	failed
)

func (s state) String() string {
	switch s {
	case seekingVariant:
		return "seeking_variant"
	case extracting:
		return "extracting"
	case done:
		return "done"
	default:
		return "failed"
	}
}

// Reconciler drives OCR page by page and accumulates canonical fields.
type Reconciler struct {
	ocr        ocr.Processor
	registry   *schema.Registry
	matcher    *match.Matcher
	classifier *classify.Classifier
	normalizer ocr.Normalizer
	cfg        Config
	logger     *slog.Logger
}

func New(
	processor ocr.Processor,
	registry *schema.Registry,
	matcher *match.Matcher,
	classifier *classify.Classifier,
	normalizer ocr.Normalizer,
	cfg Config,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.PageCap <= 0 {
		cfg.PageCap = def.PageCap
	}
	if cfg.VariantPageCap <= 0 {
		cfg.VariantPageCap = def.VariantPageCap
	}
	if cfg.VariantPageCap > cfg.PageCap {
		cfg.VariantPageCap = cfg.PageCap
	}
	return &Reconciler{
		ocr:        processor,
		registry:   registry,
		matcher:    matcher,
		classifier: classifier,
		normalizer: normalizer,
		cfg:        cfg,
		logger:     logger,
	}
}

// Reconcile processes one document. It fails with ErrVariantUndetermined when
// no form marker shows up within the variant page budget, and with ErrOCR when
// a page request fails.
func (r *Reconciler) Reconcile(ctx context.Context, content []byte, mimeType string) (*Result, error) {
	source := common.SourceNameFromContext(ctx)
	res := &Result{Fields: make(map[string]Value)}

	var (
		st       = seekingVariant
		seen     strings.Builder
		pending  []*ocr.Document
		expected int
	)

	for page := 1; st == seekingVariant || st == extracting; page++ {
		doc, err := r.ocr.ProcessPage(ctx, content, mimeType, page)
		if err != nil {
			return nil, common.NewAppError("OCR_ERROR", fmt.Sprintf("page %d", page), fmt.Errorf("%w: %w", common.ErrOCR, err))
		}
		res.Pages = page

		if len(doc.Pages) == 0 {
			r.logger.Info("document has no more pages", "file", source, "page", page, "state", st.String())
			if st == seekingVariant {
				st = failed
			} else {
				st = done
			}
			break
		}

		if st == seekingVariant {
			seen.WriteString(doc.Text)
			seen.WriteString("\n")
			pending = append(pending, doc)

			variant := r.classifier.Classify(seen.String())
			if variant == constants.Undetermined {
				r.logger.Debug("form marker not found yet", "file", source, "page", page)
				if page >= r.cfg.VariantPageCap {
					st = failed
				}
				continue
			}

			all, err := r.registry.AllFieldNames(variant)
			if err != nil {
				return nil, err
			}
			expected = len(all)
			res.Variant = variant
			st = extracting
			r.logger.Debug("form variant found", "file", source, "page", page, "variant", variant)

			// pages read while the variant was unknown are extracted now, in order
			for i, d := range pending {
				r.extract(source, i+1, variant, d, res)
			}
			pending = nil
		} else {
			r.extract(source, page, res.Variant, doc, res)
		}

		if page >= r.cfg.PageCap || len(res.Fields) >= expected {
			st = done
		}
	}

	if st == failed {
		r.logger.Warn("form variant undetermined", "file", source, "pages", res.Pages)
		return nil, common.NewAppError("VARIANT_UNDETERMINED",
			fmt.Sprintf("no form marker within %d page(s)", res.Pages), common.ErrVariantUndetermined)
	}

	r.logger.Info("document reconciled",
		"file", source,
		"variant", res.Variant,
		"pages", res.Pages,
		"keys", len(res.Fields),
		"expected", expected,
	)
	return res, nil
}

func (r *Reconciler) extract(source string, page int, variant constants.FormVariant, doc *ocr.Document, res *Result) {
	for _, p := range doc.Pages {
		for _, f := range doc.Fields(p) {
			r.applyField(source, page, variant, f, res)
		}
		for _, t := range doc.Tables(p) {
			r.applyTable(source, page, variant, t, res)
		}
	}
}

func (r *Reconciler) applyField(source string, page int, variant constants.FormVariant, f ocr.RawField, res *Result) {
	name := r.normalizer.Normalize(f.Name, true)
	value := r.normalizer.Normalize(f.Value, false)

	if f.NameConfidence < r.cfg.NameConfidence || f.ValueConfidence < r.cfg.ValueConfidence {
		r.logger.Warn("field below confidence threshold",
			"file", source, "page", page, "label", name,
			"name_confidence", f.NameConfidence, "value_confidence", f.ValueConfidence)
		return
	}

	if token, ok := r.registry.CheckboxToken(variant, name); ok {
		if isChecked(value) {
			r.recordCheckbox(source, page, variant, token, res)
		}
		// an unticked Yes/No box carries no value, and "No" would fuzzy-match "...Block No."
		return
	}

	key, ok := r.matcher.Match(name, variant, false)
	if !ok {
		r.logger.Warn("label not in schema", "file", source, "page", page, "label", name, "variant", variant)
		return
	}
	if r.registry.IsCheckboxField(variant, key) {
		if checked, ok := checkState(value); ok {
			res.Fields[key] = Bool(checked)
			return
		}
	}
	res.Fields[key] = Text(value)
}

func (r *Reconciler) recordCheckbox(source string, page int, variant constants.FormVariant, token string, res *Result) {
	field, err := r.registry.CheckboxLabelField(variant)
	if err != nil || field == "" {
		r.logger.Warn("checkbox ticked but schema has no checkbox field", "file", source, "page", page, "label", token)
		return
	}
	if _, exists := res.Fields[field]; exists {
		r.logger.Warn("checkbox ticked more than once", "file", source, "page", page, "field", field, "label", token)
		res.Fields[field] = Text(ConflictValue)
		return
	}
	res.Fields[field] = Text(token)
}

func (r *Reconciler) applyTable(source string, page int, variant constants.FormVariant, t ocr.RawTable, res *Result) {
	if len(t.HeaderCells) == 0 {
		r.logger.Debug("table without header row skipped", "file", source, "page", page, "rows", len(t.BodyRows))
		return
	}
	for col, header := range t.HeaderCells {
		label := r.normalizer.Normalize(header, true)
		key, ok := r.matcher.Match(label, variant, true)
		if !ok {
			r.logger.Warn("table column not in schema", "file", source, "page", page, "label", label, "variant", variant)
			continue
		}
		values := make([]string, len(t.BodyRows))
		for i, row := range t.BodyRows {
			if col < len(row) {
				values[i] = r.normalizer.Normalize(row[col], false)
			}
		}
		res.Fields[key] = List(values)
	}
}

func isChecked(value string) bool {
	checked, _ := checkState(value)
	return checked
}

// checkState reads a checkbox value. ok is false for free text.
func checkState(value string) (checked, ok bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "checked":
		return true, true
	case "false", "unchecked":
		return false, true
	}
	return false, false
}
