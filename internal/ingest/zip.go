package ingest

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
)

// ZipSource reads the file entries of a zip archive in central directory order.
type ZipSource struct {
	r *zip.ReadCloser
}

func OpenZip(path string) (*ZipSource, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", path, err)
	}
	return &ZipSource{r: r}, nil
}

func (s *ZipSource) Walk(ctx context.Context, fn func(Entry) error) error {
	for _, f := range s.r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() || IsHidden(f.Name) {
			continue
		}
		content, err := readZipFile(f)
		if err := fn(Entry{Name: f.Name, Content: content, Err: err}); err != nil {
			return err
		}
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return content, nil
}

func (s *ZipSource) Close() error {
	return s.r.Close()
}
