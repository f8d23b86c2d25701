// Package local keeps staged objects as files under a root directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/flatbridge/flatbridge/internal/storage"
)

type Store struct {
	root string
}

func New(dir, prefix string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("staging dir is required")
	}
	root := filepath.Join(dir, prefix)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir %q: %w", root, err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	target, normalized, err := s.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("create dir for %q: %w", normalized, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("create temp for %q: %w", normalized, err)
	}
	written, copyErr := io.Copy(tmp, contextReader{ctx: ctx, r: body})
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		return storage.ObjectInfo{}, fmt.Errorf("write object %q: %w", normalized, errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return storage.ObjectInfo{}, fmt.Errorf("commit object %q: %w", normalized, err)
	}
	return storage.ObjectInfo{Key: normalized, Size: written}, nil
}

func (s *Store) Open(_ context.Context, key string) (io.ReadCloser, error) {
	target, normalized, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("open object %q: %w", normalized, err)
	}
	return file, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	target, normalized, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete object %q: %w", normalized, err)
	}
	// drop the per-job directory once empty
	_ = os.Remove(filepath.Dir(target))
	return nil
}

func (s *Store) resolve(key string) (string, string, error) {
	normalized, err := storage.NormalizeKey(key)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(normalized)), normalized, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
