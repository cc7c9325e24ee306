package blob

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// TokenFunc yields the bearer token for the current session ("" when signed out).
type TokenFunc func() string

// HTTPStore uploads to the backend's storage API:
// POST {base}/storage/v1/object/{bucket}/{name}.
type HTTPStore struct {
	client *resty.Client
	base   string
	bucket string
	apiKey string
	token  TokenFunc
}

// NewHTTPStore creates an uploader for one bucket.
func NewHTTPStore(baseURL, apiKey, bucket string, token TokenFunc) *HTTPStore {
	base := strings.TrimSuffix(baseURL, "/")
	client := resty.New().
		SetBaseURL(base).
		SetHeader("apikey", apiKey).
		SetTimeout(30 * time.Second)
	return &HTTPStore{client: client, base: base, bucket: bucket, apiKey: apiKey, token: token}
}

func (s *HTTPStore) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	bearer := s.apiKey
	if s.token != nil {
		if t := s.token(); t != "" {
			bearer = t
		}
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(bearer).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "false").
		SetBody(data).
		Post(fmt.Sprintf("/storage/v1/object/%s/%s", s.bucket, url.PathEscape(name)))
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return "", fmt.Errorf("upload %s: HTTP %d: %s", name, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return s.PublicURL(name), nil
}

// PublicURL is where an uploaded object can be read without credentials.
func (s *HTTPStore) PublicURL(name string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.base, s.bucket, url.PathEscape(name))
}
