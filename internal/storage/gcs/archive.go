// Package gcs archives run evidence bundles in Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string
}

// Archive writes objects to a configured GCS bucket.
type Archive struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed archive from an existing client.
func New(client *storage.Client, cfg Config) (*Archive, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &Archive{client: client, bucket: cfg.Bucket}, nil
}

// Dial creates a client using Application Default Credentials and fails fast
// when the bucket is missing or not readable.
func Dial(ctx context.Context, cfg Config) (*Archive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	a, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := a.Check(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return a, nil
}

// Check reads the bucket attributes.
func (a *Archive) Check(ctx context.Context) error {
	if _, err := a.client.Bucket(a.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("get bucket %q attributes: %w", a.bucket, err)
	}
	return nil
}

// Close releases the client.
func (a *Archive) Close() error {
	return a.client.Close()
}

// PutObject uploads data to the bucket and returns a gs:// URI.
func (a *Archive) PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path is required")
	}
	writer := a.client.Bucket(a.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, path), nil
}
