package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// ObjectStore persists raw asset bytes and returns a stable public URL.
type ObjectStore interface {
	Write(ctx context.Context, object string, contentType string, data []byte) (string, error)
}

// GCSObjectStore writes objects into a fixed assets bucket.
type GCSObjectStore struct {
	client *gcs.Client
	bucket string
}

var _ ObjectStore = (*GCSObjectStore)(nil)

// NewGCSObjectStore builds an object store bound to the given bucket.
func NewGCSObjectStore(client *gcs.Client, bucket string) (*GCSObjectStore, error) {
	if client == nil {
		return nil, errors.New("storage: gcs client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	return &GCSObjectStore{client: client, bucket: bucket}, nil
}

// Write streams the payload into the bucket. Objects are content addressed by
// path and never rewritten, so aggressive caching is safe.
func (s *GCSObjectStore) Write(ctx context.Context, object string, contentType string, data []byte) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("storage: object store not initialised")
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return "", errInvalidObject
	}
	if len(data) == 0 {
		return "", errors.New("storage: object payload is empty")
	}

	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = strings.TrimSpace(contentType)
	writer.CacheControl = "public, max-age=31536000, immutable"
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage: write object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage: finalise object %s: %w", object, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, object), nil
}
