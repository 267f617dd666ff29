package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrObjectNotFound is returned by Open when the key has no bytes behind it.
var ErrObjectNotFound = errors.New("storage: object not found")

// Object describes stored bytes.
type Object struct {
	Key         string
	Size        int64
	ContentType string
}

// Store persists uploaded bytes under slash-separated keys such as
// "uploads/model/1700000000000-ab12cd34.stl". Delete must succeed for keys
// that do not exist.
type Store interface {
	Save(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, *Object, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CleanKey normalises key and rejects anything that could escape the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return "", fmt.Errorf("storage key is empty")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("storage key %q must be relative", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("storage key %q escapes root", key)
		}
	}
	cleaned := path.Clean(key)
	if cleaned == "." {
		return "", fmt.Errorf("storage key %q is empty", key)
	}
	return cleaned, nil
}
