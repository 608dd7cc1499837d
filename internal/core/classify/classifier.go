// Package classify decides which declaration form a document is.
package classify

import (
	"strings"

	"github.com/joseph-ayodele/taxforms-extractor/constants"
	"github.com/joseph-ayodele/taxforms-extractor/internal/schema"
)

type marker struct {
	token   string
	variant constants.FormVariant
}

// Classifier searches document text for each variant's marker ("15G", "15H").
type Classifier struct {
	markers []marker
}

// New builds a classifier from the registry's variant markers.
func New(registry *schema.Registry) *Classifier {
	c := &Classifier{}
	for _, v := range registry.Variants() {
		s, err := registry.SchemaFor(v)
		if err != nil {
			continue
		}
		c.markers = append(c.markers, marker{token: strings.ToUpper(s.Marker), variant: v})
	}
	return c
}

// Classify returns the variant whose marker occurs earliest in text, compared
// case-insensitively. Equal positions go to the variant registered first.
// Undetermined is returned when no marker occurs.
func (c *Classifier) Classify(text string) constants.FormVariant {
	upper := strings.ToUpper(text)
	best, bestAt := constants.Undetermined, -1
	for _, m := range c.markers {
		at := strings.Index(upper, m.token)
		if at < 0 {
			continue
		}
		if bestAt < 0 || at < bestAt {
			best, bestAt = m.variant, at
		}
	}
	return best
}
