// Package blobstore adapts object storage backends to the flat, name-keyed
// store the upload pipeline and catalog need.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("object not found")
	ErrInvalidName = errors.New("invalid object name")
)

// Store is a durable key-value store for binary objects.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
	Get(ctx context.Context, name string) ([]byte, error)
	Exists(ctx context.Context, name string) (bool, error)
	// List returns object names starting with prefix in backend order.
	List(ctx context.Context, prefix string) ([]string, error)
	SignedURL(ctx context.Context, name string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, name string) error
}

// validateName enforces the flat namespace shared by every backend.
func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
