package blobstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"image-annotator/internal/signing"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore is a process-local Store for development and tests. Listing
// follows insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	order   []string
	signer  *signing.Signer
}

func NewMemoryStore(signer *signing.Signer) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		signer:  signer,
	}
}

func (s *MemoryStore) Put(ctx context.Context, name string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[name]; !ok {
		s.order = append(s.order, name)
	}
	s.objects[name] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return append([]byte(nil), obj.data...), nil
}

func (s *MemoryStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[name]
	return ok, nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.order))
	for _, name := range s.order {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *MemoryStore) SignedURL(_ context.Context, name string, ttl time.Duration) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	if s.signer == nil {
		return "", fmt.Errorf("memory store has no url signer")
	}
	return s.signer.URL(name, ttl)
}

func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[name]; !ok {
		return nil
	}
	delete(s.objects, name)
	for i, existing := range s.order {
		if existing == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// ContentType reports the content type name was stored with.
func (s *MemoryStore) ContentType(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects[name].contentType
}
