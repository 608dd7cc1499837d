package ocr

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// PrefixMode controls how enumeration prefixes ("16.") are removed from keys.
type PrefixMode string

const (
	// StripAnywhere removes every digits-and-period run, wherever it occurs.
	StripAnywhere PrefixMode = "anywhere"
	// StripLeading removes a single enumeration ("12.", "3)") at the start only.
	StripLeading PrefixMode = "leading"
	StripOff     PrefixMode = "off"
)

var (
	reCRLF          = regexp.MustCompile(`\r\n?`)
	reSpaces        = regexp.MustCompile(`[ \t\f\v]{2,}`)
	reEnumAnywhere  = regexp.MustCompile(`\d+\.`)
	reEnumLeading   = regexp.MustCompile(`^\d+[.)]\s*`)
	reSpaceAroundNL = regexp.MustCompile(`[ \t]*\n[ \t]*`)
)

// Normalizer cleans OCR text before it is matched or stored.
type Normalizer struct {
	Prefix PrefixMode
}

// NewNormalizer parses mode, defaulting to StripAnywhere for unknown values.
func NewNormalizer(mode string) Normalizer {
	switch m := PrefixMode(strings.ToLower(strings.TrimSpace(mode))); m {
	case StripLeading, StripOff:
		return Normalizer{Prefix: m}
	default:
		return Normalizer{Prefix: StripAnywhere}
	}
}

// Normalize trims, folds compatibility characters (NFKC), turns newlines into
// single spaces and collapses runs of spaces. Keys additionally lose their
// enumeration prefixes according to n.Prefix.
func (n Normalizer) Normalize(raw string, isKey bool) string {
	if raw == "" {
		return raw
	}
	s := norm.NFKC.String(raw)
	s = reCRLF.ReplaceAllString(s, "\n")
	s = strings.TrimSpace(s)
	s = reSpaceAroundNL.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")

	if isKey {
		switch n.Prefix {
		case StripAnywhere:
			s = reEnumAnywhere.ReplaceAllString(s, "")
		case StripLeading:
			s = reEnumLeading.ReplaceAllString(s, "")
		}
		s = strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
	}
	return s
}
