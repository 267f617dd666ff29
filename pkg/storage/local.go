package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStorage keeps objects as plain files below baseDir.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage creates baseDir when missing.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./public"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save streams r into key through a temp file in the same directory, so the
// final path only ever holds complete uploads.
func (s *LocalStorage) Save(ctx context.Context, key string, r io.Reader, _ string) (int64, error) {
	target, err := s.resolve(key)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("prepare storage directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return 0, fmt.Errorf("chmod %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return 0, fmt.Errorf("publish %s: %w", key, err)
	}
	committed = true
	return written, nil
}

// Open returns a reader for key or ErrObjectNotFound.
func (s *LocalStorage) Open(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, fmt.Errorf("open %s: %w", key, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		file.Close() //nolint:errcheck
		return nil, nil, ErrObjectNotFound
	}
	return file, &Object{Key: key, Size: info.Size()}, nil
}

// Delete removes key. A missing file counts as success.
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is a regular file.
func (s *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	target, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return info.Mode().IsRegular(), nil
}

// Dir is the absolute directory for a key prefix, used to serve public images.
func (s *LocalStorage) Dir(prefix string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(prefix))
}

func (s *LocalStorage) resolve(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(cleaned)), nil
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
