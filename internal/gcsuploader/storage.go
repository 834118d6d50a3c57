// Package gcsuploader archives uploaded spreadsheets in Google Cloud Storage.
package gcsuploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/sales-tracker/internal/gcs"
)

// Re-export interface from shared package.
type StorageService = gcs.StorageService

const uploadTimeout = 2 * time.Minute

// GCSStorageService is the concrete implementation of StorageService
// that interacts with Google Cloud Storage. It writes to a single bucket.
type GCSStorageService struct {
	client *storage.Client
	bucket string
}

// NewGCSStorageService creates a client using Application Default Credentials.
func NewGCSStorageService(ctx context.Context, bucket string) (*GCSStorageService, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewGCSStorageService: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStorageService{client: client, bucket: bucket}, nil
}

// Close releases the storage client.
func (s *GCSStorageService) Close() error {
	return s.client.Close()
}

// UploadBytes writes data to objectName in the configured bucket.
func (s *GCSStorageService) UploadBytes(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return BuildURI(s.bucket, objectName), nil
}

// FetchFromGCS downloads the file bytes from the given GCS URI. The URI may
// name any bucket the credentials can read.
func (s *GCSStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := ParseURI(gcsURI)
	if err != nil {
		return nil, err
	}

	rc, err := s.client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: reading bytes: %w", err)
	}

	return data, nil
}

// BuildURI formats a gs:// URI.
func BuildURI(bucket, objectName string) string {
	return "gs://" + bucket + "/" + strings.TrimPrefix(objectName, "/")
}

// ParseURI splits gs://bucket/path into bucket and object path.
func ParseURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// ExtractFilenameFromGCSURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/uploads/USA/b1/q1.xlsx" → "q1.xlsx"
func ExtractFilenameFromGCSURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// IsGCSURI reports whether s looks like a gs:// URI.
func IsGCSURI(s string) bool {
	return strings.HasPrefix(s, "gs://")
}

// Ensure GCSStorageService implements the StorageService interface.
var _ StorageService = (*GCSStorageService)(nil)
