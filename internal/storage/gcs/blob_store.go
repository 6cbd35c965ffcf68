// Package gcs archives raw page HTML in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// BlobStore implements the crawler blob store on a GCS bucket.
// Authentication uses Application Default Credentials.
type BlobStore struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// New creates the client and verifies the bucket up front, so bad
// configuration fails at startup instead of mid-crawl.
func New(ctx context.Context, bucket string, logger *zap.Logger) (*BlobStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage.bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close GCS client after bucket check", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to access GCS bucket %q: %w", bucket, err)
	}
	return &BlobStore{client: client, bucket: bucket, logger: logger}, nil
}

// PutObject uploads data and returns its gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path, contentType string, data []byte) (string, error) {
	wc := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		wc.ContentType = contentType
	}
	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			s.logger.Warn("failed to close GCS writer after write failure", zap.Error(closeErr))
		}
		return "", fmt.Errorf("failed to write GCS object %s: %w", path, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize GCS object %s: %w", path, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}

// Close releases the underlying client.
func (s *BlobStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close GCS client: %w", err)
	}
	return nil
}
