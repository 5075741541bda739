package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileBlobStore keeps each blob as two files under dir: <id> holds the
// content and <id>.json the metadata.
type FileBlobStore struct {
	dir string
}

func NewFileBlobStore(dir string) (*FileBlobStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob directory %s: %w", dir, err)
	}
	return &FileBlobStore{dir: dir}, nil
}

// path rejects ids that could escape dir.
func (s *FileBlobStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", ErrBlobNotFound
	}
	return filepath.Join(s.dir, id), nil
}

func (s *FileBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	data, err := readLimited(&meta, content)
	if err != nil {
		return nil, err
	}
	p, err := s.path(meta.ID)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(p, data, 0o640); err != nil {
		return nil, fmt.Errorf("write blob %s: %w", meta.ID, err)
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		os.Remove(p)
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(p+".json", encoded, 0o640); err != nil {
		os.Remove(p)
		return nil, fmt.Errorf("write metadata %s: %w", meta.ID, err)
	}
	return &meta, nil
}

func (s *FileBlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	meta, err := s.GetMetadata(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	p, _ := s.path(id)
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("open blob %s: %w", id, err)
	}
	return f, meta, nil
}

func (s *FileBlobStore) Delete(_ context.Context, id string) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p + ".json"); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("delete metadata %s: %w", id, err)
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	return nil
}

func (s *FileBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	return readMetadata(p + ".json")
}

func readMetadata(path string) (*BlobMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("read metadata %s: %w", path, err)
	}
	var meta BlobMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", path, err)
	}
	return &meta, nil
}

func (s *FileBlobStore) ListByRecord(_ context.Context, recordID string) ([]*BlobMetadata, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	var out []*BlobMetadata
	for _, m := range matches {
		meta, err := readMetadata(m)
		if err != nil {
			return nil, err
		}
		if meta.RecordID == recordID {
			out = append(out, meta)
		}
	}
	sortByCreated(out)
	return out, nil
}
