package ingest

import (
	"path"
	"strings"

	"github.com/joseph-ayodele/taxforms-extractor/constants"
)

// IsHidden reports whether any element of a slash separated name starts with '.'
// or is an archiver metadata folder.
func IsHidden(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
		if part == "__MACOSX" {
			return true
		}
	}
	return false
}

func extOf(name string) string {
	return constants.NormalizeExt(path.Ext(name))
}
