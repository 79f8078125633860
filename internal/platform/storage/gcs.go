package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"
)

const gcsScheme = "gs://"

// GCSStore keeps assets in a Cloud Storage bucket. References are gs://
// URLs so they stay meaningful outside this service.
type GCSStore struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

var _ AssetStore = (*GCSStore)(nil)

// NewGCSStore connects with application default credentials.
func NewGCSStore(ctx context.Context, bucket string, logger *slog.Logger) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSStore{client: client, bucket: bucket, logger: logger.With("component", "gcs_store")}, nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Put uploads data and returns its gs:// reference.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload %s: %w", key, err)
	}

	ref := gcsScheme + s.bucket + "/" + key
	s.logger.Debug("asset uploaded", "ref", ref, "bytes", len(data))
	return ref, nil
}

// Get downloads the object behind ref. Bare keys are read from the
// configured bucket.
func (s *GCSStore) Get(ctx context.Context, ref string) ([]byte, string, error) {
	bucket, key, err := s.parseRef(ref)
	if err != nil {
		return nil, "", err
	}

	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, "", fmt.Errorf("%w: %s", ErrAssetNotFound, ref)
	}
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", ref, err)
	}
	defer r.Close() //nolint:errcheck // read-only

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", ref, err)
	}

	ct := r.Attrs.ContentType
	if ct == "" {
		ct = contentTypeOf(key, data)
	}
	return data, ct, nil
}

func (s *GCSStore) parseRef(ref string) (string, string, error) {
	bucket := s.bucket
	rest := ref
	if strings.HasPrefix(ref, gcsScheme) {
		var ok bool
		bucket, rest, ok = strings.Cut(strings.TrimPrefix(ref, gcsScheme), "/")
		if !ok || bucket == "" {
			return "", "", fmt.Errorf("%w: malformed reference %q", ErrInvalidKey, ref)
		}
	}
	key, err := cleanKey(rest)
	return bucket, key, err
}
