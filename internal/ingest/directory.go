package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DirectorySource walks a directory tree in lexical order, skipping hidden
// files and folders.
type DirectorySource struct {
	root string
}

func NewDirectorySource(root string) *DirectorySource {
	return &DirectorySource{root: root}
}

func (s *DirectorySource) Walk(ctx context.Context, fn func(Entry) error) error {
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && IsHidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		e := Entry{Name: rel}
		if e.Content, err = os.ReadFile(path); err != nil {
			e.Content, e.Err = nil, fmt.Errorf("read %s: %w", rel, err)
		}
		return fn(e)
	})
}

func (s *DirectorySource) Close() error { return nil }
