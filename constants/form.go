package constants

import (
	"strings"
)

// FormVariant identifies which tax declaration template a document follows.
type FormVariant string

const (
	Form15G      FormVariant = "15G"
	Form15H      FormVariant = "15H"
	Undetermined FormVariant = ""
)

var knownVariants = []FormVariant{
	Form15G,
	Form15H,
}

func (v FormVariant) String() string {
	if v == Undetermined {
		return "undetermined"
	}
	return string(v)
}

// KnownVariants returns the variants shipped with the default schema.
func KnownVariants() []FormVariant {
	out := make([]FormVariant, len(knownVariants))
	copy(out, knownVariants)
	return out
}

// ParseVariant maps user input such as "15g", "form 15H" onto a known variant.
func ParseVariant(input string) (FormVariant, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(input))
	normalized = strings.TrimPrefix(normalized, "FORM")
	normalized = strings.TrimSpace(strings.TrimPrefix(normalized, "NO."))

	for _, v := range knownVariants {
		if normalized == string(v) {
			return v, true
		}
	}
	return Undetermined, false
}
