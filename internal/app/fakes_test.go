package app

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"image-annotator/internal/blobstore"
	"image-annotator/internal/model"
	"image-annotator/internal/signing"
)

type fakeCaptioner struct {
	mu    sync.Mutex
	raw   string
	err   error
	calls int
	mime  string
}

func (f *fakeCaptioner) Caption(_ context.Context, _ []byte, mimeType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.mime = mimeType
	return f.raw, f.err
}

// failingStore wraps a MemoryStore and fails Put for the listed names.
type failingStore struct {
	*blobstore.MemoryStore
	failPut    map[string]error
	failDelete error
}

func (s *failingStore) Put(ctx context.Context, name string, data []byte, contentType string) error {
	if err, ok := s.failPut[name]; ok {
		return err
	}
	return s.MemoryStore.Put(ctx, name, data, contentType)
}

func (s *failingStore) Delete(ctx context.Context, name string) error {
	if s.failDelete != nil {
		return s.failDelete
	}
	return s.MemoryStore.Delete(ctx, name)
}

// hookStore runs afterGet once, right after the next Get returns from the
// underlying store.
type hookStore struct {
	*blobstore.MemoryStore
	afterGet func(name string)
}

func (s *hookStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.MemoryStore.Get(ctx, name)
	if hook := s.afterGet; hook != nil {
		s.afterGet = nil
		hook(name)
	}
	return data, err
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]model.Metadata
	deletes []string
	err     error
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]model.Metadata)}
}

func (c *mapCache) Get(_ context.Context, key string) (model.Metadata, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return model.Metadata{}, false, c.err
	}
	record, ok := c.entries[key]
	return record, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, record model.Metadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.entries[key] = record
	return nil
}

func (c *mapCache) Add(_ context.Context, key string, record model.Metadata) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if _, ok := c.entries[key]; ok {
		return false, nil
	}
	c.entries[key] = record
	return true, nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, key)
	delete(c.entries, key)
	return c.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.UploadEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event model.UploadEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) last(t *testing.T) model.UploadEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		t.Fatal("no upload event published")
	}
	return p.events[len(p.events)-1]
}

var errBackendDown = errors.New("backend down")

func newTestMemoryStore(t *testing.T) *blobstore.MemoryStore {
	t.Helper()
	signer, err := signing.NewSigner("test-secret", "http://annotator.test")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return blobstore.NewMemoryStore(signer)
}

func assertStagingEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("staging dir not empty: %v", names)
	}
}
