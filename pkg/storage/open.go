package storage

import (
	"context"
	"fmt"

	"github.com/noah-isme/fabnest-api/pkg/config"
)

// PublicPrefixes are the key prefixes readable without authentication.
var PublicPrefixes = []string{"products", "gallery", "uploads/image"}

// Open builds the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", config.StorageDriverLocal:
		return NewLocalStorage(cfg.BaseDir)
	case config.StorageDriverMinio:
		return NewMinioStore(ctx, cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// PublicDirs maps URL paths to local directories for static serving. Only
// the local driver has directories to serve.
func PublicDirs(store Store) map[string]string {
	local, ok := store.(*LocalStorage)
	if !ok {
		return nil
	}
	dirs := make(map[string]string, len(PublicPrefixes))
	for _, prefix := range PublicPrefixes {
		dirs["/"+prefix] = local.Dir(prefix)
	}
	return dirs
}
