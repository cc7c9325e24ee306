// Package blob uploads movement evidence (signature images) to object storage.
package blob

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Store puts an object and returns the URL it can be publicly read from.
type Store interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// ErrBadDataURL is returned for evidence that is not a base64 data URL.
var ErrBadDataURL = errors.New("blob: malformed data URL")

// DecodeDataURL splits a "data:<type>;base64,<payload>" string.
func DecodeDataURL(s string) (contentType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrBadDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrBadDataURL
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if !isBase64 {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrBadDataURL, err)
		}
		return contentType, []byte(unescaped), nil
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadDataURL, err)
	}
	return contentType, data, nil
}

// EvidenceName builds the object name for an item's evidence: the upload
// time in unix milliseconds and the item id.
func EvidenceName(at time.Time, itemID, contentType string) string {
	return fmt.Sprintf("%d_%s%s", at.UnixMilli(), itemID, extension(contentType))
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	default:
		return ".png"
	}
}
