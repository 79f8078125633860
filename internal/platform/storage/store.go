package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/phrazzld/adforge/internal/config"
)

// ErrAssetNotFound is returned when a reference points at nothing.
var ErrAssetNotFound = errors.New("asset not found")

// ErrInvalidKey is returned for keys that would escape the store.
var ErrInvalidKey = errors.New("invalid asset key")

// AssetStore reads and writes binary assets.
type AssetStore interface {
	// Put stores data under key and returns the reference to record.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get loads the asset behind a reference previously returned by Put.
	Get(ctx context.Context, ref string) ([]byte, string, error)
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (AssetStore, error) {
	switch cfg.Backend {
	case "fs":
		return NewFSStore(cfg.Dir, logger)
	case "gcs":
		return NewGCSStore(ctx, cfg.Bucket, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// AssetKey names the object for a task's output.
func AssetKey(jobID, taskID, contentType string) string {
	return path.Join("jobs", jobID, taskID+extensionFor(contentType))
}

// cleanKey normalises a key to a slash separated relative path.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(key)), "/")
	if key == "" || key == "." {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return key, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// contentTypeOf guesses the type of stored bytes from the key, falling back
// to sniffing.
func contentTypeOf(key string, data []byte) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
