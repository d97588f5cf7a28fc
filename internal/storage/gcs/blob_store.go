// Package gcs archives session transcripts in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	blob "github.com/JakeFAU/stagebridge/internal/storage"
)

// Config selects the bucket and object layout.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
	// Metadata is attached to every object written.
	Metadata map[string]string
}

// BlobStore writes each transcript once. A second write to the same name is
// rejected by GCS and reported as blob.ErrObjectExists.
type BlobStore struct {
	bucket   *storage.BucketHandle
	name     string
	prefix   string
	metadata map[string]string
}

// New validates cfg and binds the store to its bucket.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{
		bucket:   client.Bucket(bucket),
		name:     bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		metadata: cfg.Metadata,
	}, nil
}

func (s *BlobStore) objectName(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// PutObject uploads r under name and returns a gs:// URI. An empty
// contentType is derived from the name.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("path is required")
	}
	object := s.objectName(name)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := s.bucket.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = blob.ContentType(object, contentType)
	w.Metadata = s.metadata

	_, copyErr := io.Copy(w, r)
	if copyErr != nil {
		// Abort so Close does not commit a partial object.
		cancel()
	}
	closeErr := w.Close()
	switch err := errors.Join(copyErr, closeErr); {
	case err == nil:
	case isPreconditionFailed(err):
		return "", fmt.Errorf("upload %s: %w", object, blob.ErrObjectExists)
	case copyErr != nil:
		return "", fmt.Errorf("upload %s: %w", object, copyErr)
	default:
		return "", fmt.Errorf("finalize %s: %w", object, closeErr)
	}
	return fmt.Sprintf("gs://%s/%s", s.name, object), nil
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
