package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nwaples/rardecode/v2"
)

// RarSource streams the file entries of a rar archive in stored order.
type RarSource struct {
	path string
}

func OpenRar(path string) (*RarSource, error) {
	// open once up front so a bad archive fails the run before any OCR call
	rc, err := rardecode.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open rar %s: %w", path, err)
	}
	if err := rc.Close(); err != nil {
		return nil, fmt.Errorf("close rar %s: %w", path, err)
	}
	return &RarSource{path: path}, nil
}

func (s *RarSource) Walk(ctx context.Context, fn func(Entry) error) error {
	rc, err := rardecode.OpenReader(s.path)
	if err != nil {
		return fmt.Errorf("open rar %s: %w", s.path, err)
	}
	defer rc.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := rc.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("rar next: %w", err)
		}
		if hdr.IsDir || IsHidden(hdr.Name) {
			continue
		}
		e := Entry{Name: hdr.Name}
		if e.Content, err = io.ReadAll(rc); err != nil {
			e.Content, e.Err = nil, fmt.Errorf("read %s: %w", hdr.Name, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

func (s *RarSource) Close() error { return nil }
