package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"image-annotator/internal/annotation"
	"image-annotator/internal/blobstore"
	"image-annotator/internal/model"
)

const defaultSignedURLTTL = time.Hour

type CatalogConfig struct {
	// PublicBaseURL, when set, is used to build plain object URLs instead of
	// signed ones.
	PublicBaseURL string
	SignedURLTTL  time.Duration
}

// View is everything the view page needs for one image.
type View struct {
	Filename    string `json:"filename"`
	DisplayURL  string `json:"display_url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CatalogService reads the image catalog. Listings always go to the store;
// only decoded metadata records are cached.
type CatalogService struct {
	store blobstore.Store
	cache MetadataCache
	log   *zap.Logger

	publicBaseURL string
	signedURLTTL  time.Duration
}

func NewCatalogService(store blobstore.Store, cache MetadataCache, log *zap.Logger, cfg CatalogConfig) *CatalogService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedURLTTL
	}
	return &CatalogService{
		store:         store,
		cache:         cache,
		log:           log,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		signedURLTTL:  cfg.SignedURLTTL,
	}
}

// ListImages returns the stored image names in store order.
func (s *CatalogService) ListImages(ctx context.Context) ([]string, error) {
	names, err := s.store.List(ctx, "")
	if err != nil {
		return nil, newError(KindStorageRead, StageRead, "", err)
	}
	images := make([]string, 0, len(names))
	for _, name := range names {
		if annotation.IsImageName(name) {
			images = append(images, name)
		}
	}
	return images, nil
}

func (s *CatalogService) ViewImage(ctx context.Context, filename string) (*View, error) {
	name := annotation.SanitizeFilename(filename)
	if name == "" {
		return nil, newError(KindValidation, StageRead, filename, fmt.Errorf("%w: filename is required", ErrInvalidInput))
	}
	if !annotation.IsImageName(name) {
		return nil, newError(KindNotFound, StageRead, name, ErrImageNotFound)
	}

	record, err := s.metadata(ctx, name)
	if err != nil {
		return nil, err
	}

	exists, err := s.store.Exists(ctx, name)
	if err != nil {
		return nil, newError(KindStorageRead, StageRead, name, err)
	}
	if !exists {
		return nil, newError(KindNotFound, StageRead, name, ErrImageNotFound)
	}

	displayURL, err := s.displayURL(ctx, name)
	if err != nil {
		return nil, newError(KindStorageRead, StageRead, name, err)
	}
	return &View{
		Filename:    name,
		DisplayURL:  displayURL,
		Title:       record.Title,
		Description: record.Description,
	}, nil
}

func (s *CatalogService) metadata(ctx context.Context, name string) (model.Metadata, error) {
	key := annotation.MetadataKey(name)
	if s.cache != nil {
		record, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("metadata cache read failed", zap.String("metadata_key", key), zap.Error(err))
		} else if ok {
			return record, nil
		}
	}

	data, err := s.store.Get(ctx, key)
	if errors.Is(err, blobstore.ErrNotFound) {
		return model.Metadata{}, newError(KindNotFound, StageRead, name,
			fmt.Errorf("%w: no metadata record %q", ErrImageNotFound, key))
	}
	if err != nil {
		return model.Metadata{}, newError(KindStorageRead, StageRead, name, err)
	}
	record, err := annotation.DecodeRecord(data)
	if err != nil {
		return model.Metadata{}, newError(KindMetadataCorrupt, StageRead, name, err)
	}

	if s.cache != nil {
		if _, err := s.cache.Add(ctx, key, record); err != nil {
			s.log.Warn("metadata cache fill failed", zap.String("metadata_key", key), zap.Error(err))
		}
	}
	return record, nil
}

func (s *CatalogService) displayURL(ctx context.Context, name string) (string, error) {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + url.PathEscape(name), nil
	}
	return s.store.SignedURL(ctx, name, s.signedURLTTL)
}

// StoreHealthCheck probes the blob store with an existence check.
func StoreHealthCheck(store blobstore.Store) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if _, err := store.Exists(ctx, healthProbeKey); err != nil {
			return err
		}
		return nil
	}
}

const healthProbeKey = "healthcheck.probe"
