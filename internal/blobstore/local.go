package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"image-annotator/internal/signing"
)

const localTmpDir = ".tmp"

// LocalStore keeps objects as files in a single directory. Writes land in a
// temp file first and are renamed into place, so readers never see a
// partially written object.
type LocalStore struct {
	root   string
	signer *signing.Signer
}

func NewLocalStore(root string, signer *signing.Signer) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, localTmpDir), 0o755); err != nil {
		return nil, fmt.Errorf("create local store root failed: %w", err)
	}
	return &LocalStore{root: abs, signer: signer}, nil
}

func (s *LocalStore) Put(ctx context.Context, name string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.pathFor(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, localTmpDir), "put-*")
	if err != nil {
		return fmt.Errorf("create temp object failed: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write object %q failed: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close object %q failed: %w", name, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return fmt.Errorf("publish object %q failed: %w", name, err)
	}
	return nil
}

func (s *LocalStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.pathFor(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %q failed: %w", name, err)
	}
	return data, nil
}

func (s *LocalStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := s.pathFor(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat object %q failed: %w", name, err)
	}
	return info.Mode().IsRegular(), nil
}

func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list objects failed: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *LocalStore) SignedURL(_ context.Context, name string, ttl time.Duration) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	if s.signer == nil {
		return "", fmt.Errorf("local store has no url signer")
	}
	return s.signer.URL(name, ttl)
}

// Delete removes name. Missing objects are ignored.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.pathFor(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object %q failed: %w", name, err)
	}
	return nil
}

func (s *LocalStore) pathFor(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	if name == localTmpDir {
		return "", fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	return filepath.Join(s.root, name), nil
}
