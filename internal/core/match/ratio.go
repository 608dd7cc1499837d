package match

import (
	"math"
	"strings"

	"github.com/agext/levenshtein"
)

// indel distance: substitutions cost as a delete plus an insert.
var indelParams = levenshtein.NewParams().SubCost(2)

// Ratio is the normalized indel similarity of a and b, 0..100.
func Ratio(a, b string) int {
	return round(ratio([]rune(a), []rune(b)))
}

// PartialRatio scores the best alignment of the shorter string against every
// equally long window of the longer one, and against the windows clipped by
// the end of the longer one, 0..100.
func PartialRatio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	shorter, longer := []rune(a), []rune(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if strings.Contains(string(longer), string(shorter)) {
		return 100
	}

	best := 0.0
	for start := 0; start < len(longer); start++ {
		end := min(start+len(shorter), len(longer))
		r := ratio(shorter, longer[start:end])
		if r > best {
			best = r
			if best > 0.995 {
				return 100
			}
		}
	}
	return round(best)
}

func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	d := levenshtein.Distance(string(a), string(b), indelParams)
	return float64(total-d) / float64(total)
}

func round(r float64) int {
	return int(math.Round(r * 100))
}
