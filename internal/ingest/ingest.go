// Package ingest enumerates the documents of a batch input.
package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joseph-ayodele/taxforms-extractor/internal/common"
)

// Entry is one file read from a batch input.
type Entry struct {
	// Name is the path of the entry inside the archive or directory, slash separated.
	Name    string
	Content []byte
	// Err is set when the entry was listed but its content could not be read.
	// Content is nil in that case and the walk carries on with the next entry.
	Err error
}

// Source yields the entries of a batch input in storage order. Walk stops at
// the first error returned by fn or when the input itself is unreadable;
// a single unreadable entry is reported through Entry.Err instead.
type Source interface {
	Walk(ctx context.Context, fn func(Entry) error) error
	Close() error
}

// Open picks a Source for path: a directory, a .zip or a .rar archive.
func Open(path string) (Source, error) {
	if strings.TrimSpace(path) == "" {
		return nil, common.NewAppError("INVALID_INPUT", "input path is required", common.ErrInvalidInput)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return NewDirectorySource(path), nil
	}

	switch ext := strings.ToLower(extOf(path)); ext {
	case "zip":
		return OpenZip(path)
	case "rar":
		return OpenRar(path)
	default:
		return nil, common.NewAppError("INVALID_INPUT", fmt.Sprintf("unsupported input %q: expected a directory, .zip or .rar", path), common.ErrInvalidInput)
	}
}
