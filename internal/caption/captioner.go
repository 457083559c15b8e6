// Package caption talks to the services that turn image bytes into a
// free-text response expected to hold a {"title", "description"} object.
package caption

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("captioning service unavailable")

// Captioner maps image bytes to the raw text a captioning backend returns.
type Captioner interface {
	Caption(ctx context.Context, image []byte, mimeType string) (string, error)
}
