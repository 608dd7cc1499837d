// Package match maps noisy OCR labels onto canonical schema field names.
package match

import (
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/taxforms-extractor/constants"
	"github.com/joseph-ayodele/taxforms-extractor/internal/schema"
)

// DefaultThreshold is the score a candidate must exceed to be accepted.
const DefaultThreshold = 80

// Scorer returns a similarity score in 0..100.
type Scorer func(a, b string) int

// Matcher picks the best canonical field name for a raw label.
type Matcher struct {
	registry  *schema.Registry
	threshold int
	score     Scorer
	logger    *slog.Logger
}

// NewMatcher returns a matcher using PartialRatio. A threshold <= 0 selects DefaultThreshold.
func NewMatcher(registry *schema.Registry, threshold int, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{registry: registry, threshold: threshold, score: PartialRatio, logger: logger}
}

// WithScorer swaps the similarity function.
func (m *Matcher) WithScorer(s Scorer) *Matcher {
	m.score = s
	return m
}

func (m *Matcher) Threshold() int { return m.threshold }

// Match returns the canonical name for label and true, or "" and false when no
// candidate scores strictly above the threshold. Table mode searches table
// columns; otherwise flat fields then checkbox fields are searched. Candidates
// are visited in schema order and the first of equally scored candidates wins.
// A case-insensitive exact match is returned before any scoring.
func (m *Matcher) Match(label string, variant constants.FormVariant, isTableColumn bool) (string, bool) {
	s, err := m.registry.SchemaFor(variant)
	if err != nil {
		return "", false
	}

	candidates := s.TableColumns
	if !isTableColumn {
		candidates = make([]string, 0, len(s.FlatFields)+len(s.CheckboxFields))
		candidates = append(candidates, s.FlatFields...)
		candidates = append(candidates, s.CheckboxFields...)
	}

	for _, c := range candidates {
		if strings.EqualFold(c, label) {
			return c, true
		}
	}

	bestScore, bestKey := 0, ""
	for _, c := range candidates {
		if score := m.score(c, label); score > bestScore {
			bestScore, bestKey = score, c
		}
	}

	if bestScore > m.threshold {
		m.logger.Debug("label matched", "label", label, "key", bestKey, "score", bestScore, "variant", variant)
		return bestKey, true
	}
	m.logger.Debug("label below threshold", "label", label, "best", bestKey, "score", bestScore, "variant", variant)
	return "", false
}
