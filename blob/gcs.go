package blob

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore uploads evidence to a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	public string
}

// NewGCSStore creates a GCS uploader authenticated with a service account key.
// publicBase overrides the read URL prefix (defaults to storage.googleapis.com).
func NewGCSStore(ctx context.Context, credentialsJSON, bucket, publicBase string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	if publicBase == "" {
		publicBase = "https://storage.googleapis.com"
	}
	return &GCSStore{client: client, bucket: bucket, public: publicBase}, nil
}

func (s *GCSStore) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	obj := s.client.Bucket(s.bucket).Object(name).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("gcs write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close %s: %w", name, err)
	}
	return fmt.Sprintf("%s/%s/%s", s.public, s.bucket, name), nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
