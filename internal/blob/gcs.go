package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

// GCSStore keeps objects in a Google Cloud Storage bucket.
type GCSStore struct {
	svc    *storage.Service
	bucket string
}

// NewGCSStore creates a store for bucket. Credentials come from opts, for
// example option.WithCredentialsFile; with none, application default
// credentials are used.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}
	return &GCSStore{svc: svc, bucket: bucket}, nil
}

// Put uploads r to key. The upload is conditional on the object not
// existing, so an existing key yields ErrExists.
func (s *GCSStore) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	cleaned, err := cleanKey(key)
	if err != nil {
		return err
	}
	obj := &storage.Object{Name: cleaned, ContentType: contentType}
	_, err = s.svc.Objects.Insert(s.bucket, obj).
		Media(r, googleapi.ContentType(contentType)).
		IfGenerationMatch(0).
		Context(ctx).
		Do()
	if err != nil {
		return mapGCSError(err)
	}
	return nil
}

// Get downloads key.
func (s *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	resp, err := s.svc.Objects.Get(s.bucket, cleaned).Context(ctx).Download()
	if err != nil {
		return nil, mapGCSError(err)
	}
	return resp.Body, nil
}

// Ping checks the bucket is reachable with the configured credentials.
func (s *GCSStore) Ping(ctx context.Context) error {
	if _, err := s.svc.Buckets.Get(s.bucket).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gcs bucket %s unavailable: %w", s.bucket, mapGCSError(err))
	}
	return nil
}

func mapGCSError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusPreconditionFailed:
			return ErrExists
		case http.StatusNotFound:
			return ErrNotFound
		}
	}
	return fmt.Errorf("gcs request failed: %w", err)
}
