// Package gcs implements an artifact store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// Config captures the parameters for the GCS artifact store.
type Config struct {
	// Bucket is the GCS bucket receiving artifacts.
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
}

// ArtifactStore uploads export artifacts to a GCS bucket.
type ArtifactStore struct {
	client *storage.Client
	bucket string
}

// New initializes a GCS client and verifies the bucket is reachable.
// Authentication is handled via Google's Application Default Credentials.
func New(ctx context.Context, cfg Config) (*ArtifactStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	// Fail fast on startup if the bucket is missing or inaccessible.
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			zap.L().Warn("failed to close GCS client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to get GCS bucket %q attributes: %w", cfg.Bucket, err)
	}

	return &ArtifactStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Put uploads the data to the given object path and returns a gs:// URI.
func (s *ArtifactStore) Put(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	wc := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		wc.ContentType = contentType
	}
	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			zap.L().Warn("failed to close GCS writer after write failure", zap.Error(closeErr))
		}
		return "", fmt.Errorf("failed to write GCS object %s: %w", path, err)
	}
	// Close finalizes the upload and flushes buffered data.
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for object %s: %w", path, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}

// Close releases the underlying GCS client.
func (s *ArtifactStore) Close() error {
	return s.client.Close()
}
