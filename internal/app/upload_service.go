package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"image-annotator/internal/annotation"
	"image-annotator/internal/blobstore"
	"image-annotator/internal/metrics"
	"image-annotator/internal/model"
)

const (
	stagingPrefix     = "upload-"
	stagingSuffix     = ".part"
	defaultMaxBytes   = 10 << 20
	sideEffectTimeout = 5 * time.Second
	metadataMIMEType  = "application/json"
)

type Captioner interface {
	Caption(ctx context.Context, image []byte, mimeType string) (string, error)
}

// MetadataCache caches decoded metadata records. Writers use Set after a
// record is committed; readers fill misses with Add so a record read before
// a concurrent upload can never replace the one that upload cached.
type MetadataCache interface {
	Get(ctx context.Context, key string) (model.Metadata, bool, error)
	Set(ctx context.Context, key string, record model.Metadata) error
	Add(ctx context.Context, key string, record model.Metadata) (bool, error)
	Delete(ctx context.Context, key string) error
}

type UploadEventPublisher interface {
	Publish(ctx context.Context, event model.UploadEvent) error
}

type UploadConfig struct {
	StagingDir string
	MaxBytes   int64
}

type UploadInput struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type UploadResult struct {
	Filename    string         `json:"filename"`
	MetadataKey string         `json:"metadata_key"`
	Metadata    model.Metadata `json:"metadata"`
	Degraded    bool           `json:"degraded"`
	Warning     string         `json:"warning,omitempty"`
}

// UploadService stages an uploaded image, captions it and persists the image
// together with its metadata record.
//
// Metadata is written before the image. Listing only enumerates images, so
// an image never becomes visible without its record; if the image write
// fails the metadata write is rolled back. Two uploads that sanitize to the
// same name race and the last write wins.
//
// The metadata key drops the image extension, so cat.png and cat.jpg share
// cat.json: uploading either one replaces the caption shown for both.
type UploadService struct {
	store     blobstore.Store
	captioner Captioner
	cache     MetadataCache
	publisher UploadEventPublisher
	metrics   metrics.Pipeline
	log       *zap.Logger

	stagingDir string
	maxBytes   int64
}

// uploadRun tracks one pipeline invocation for logging and the event log.
type uploadRun struct {
	started time.Time
	stage   Stage
	event   model.UploadEvent
}

func NewUploadService(
	store blobstore.Store,
	captioner Captioner,
	cache MetadataCache,
	publisher UploadEventPublisher,
	pipelineMetrics metrics.Pipeline,
	log *zap.Logger,
	cfg UploadConfig,
) *UploadService {
	if pipelineMetrics == nil {
		pipelineMetrics = metrics.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = os.TempDir()
	}
	return &UploadService{
		store:      store,
		captioner:  captioner,
		cache:      cache,
		publisher:  publisher,
		metrics:    pipelineMetrics,
		log:        log,
		stagingDir: cfg.StagingDir,
		maxBytes:   cfg.MaxBytes,
	}
}

func (s *UploadService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	run := &uploadRun{
		started: time.Now(),
		stage:   StageValidate,
		event: model.UploadEvent{
			EventID:  uuid.NewString(),
			Filename: input.Filename,
		},
	}
	result, err := s.upload(ctx, input, run)
	s.finish(ctx, run, result, err)
	return result, err
}

func (s *UploadService) upload(ctx context.Context, input UploadInput, run *uploadRun) (*UploadResult, error) {
	if input.Body == nil || strings.TrimSpace(input.Filename) == "" {
		return nil, newError(KindValidation, StageValidate, "", ErrNoFile)
	}
	name := annotation.SanitizeFilename(input.Filename)
	if name == "" {
		return nil, newError(KindValidation, StageValidate, input.Filename,
			fmt.Errorf("%w: unusable filename", ErrInvalidInput))
	}
	if !annotation.IsImageName(name) {
		return nil, newError(KindValidation, StageValidate, name, ErrUnsupportedType)
	}
	run.event.Filename = name
	contentType := resolveContentType(input.ContentType, name)

	run.stage = StageStage
	stagingPath := filepath.Join(s.stagingDir, stagingPrefix+uuid.NewString()+stagingSuffix)
	defer s.discardStaging(stagingPath, name)

	if err := s.timed(StageStage, func() error {
		return s.stage(stagingPath, input.Body, name, run)
	}); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(stagingPath)
	if err != nil {
		return nil, newError(KindUnknown, StageStage, name, fmt.Errorf("read staged upload failed: %w", err))
	}

	run.stage = StageAnnotate
	var raw string
	if err := s.timed(StageAnnotate, func() error {
		var captionErr error
		raw, captionErr = s.captioner.Caption(ctx, data, contentType)
		return captionErr
	}); err != nil {
		return nil, newError(KindCaptioning, StageAnnotate, name, err)
	}

	run.stage = StageParse
	record, parseErr := annotation.ParseCaption(raw)
	result := &UploadResult{
		Filename:    name,
		MetadataKey: annotation.MetadataKey(name),
		Metadata:    record,
	}
	if parseErr != nil {
		degraded := newError(KindMetadataParseDegraded, StageParse, name, parseErr)
		result.Degraded = true
		result.Warning = degraded.Error()
		s.log.Warn("caption response degraded to sentinel metadata",
			zap.String("filename", name),
			zap.String("stage", string(StageParse)),
			zap.Error(parseErr))
	}

	if err := s.persist(ctx, run, result, data, contentType); err != nil {
		return nil, err
	}
	run.stage = StageDone
	return result, nil
}

// stage copies the upload to path, enforcing the size limit.
func (s *UploadService) stage(path string, body io.Reader, name string, run *uploadRun) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return newError(KindUnknown, StageStage, name, fmt.Errorf("create staging file failed: %w", err))
	}
	hasher, err := blake2b.New256(nil)
	if err != nil {
		_ = f.Close()
		return newError(KindUnknown, StageStage, name, err)
	}

	n, copyErr := io.Copy(io.MultiWriter(f, hasher), io.LimitReader(body, s.maxBytes+1))
	closeErr := f.Close()
	if copyErr != nil {
		return newError(KindUnknown, StageStage, name, fmt.Errorf("write staging file failed: %w", copyErr))
	}
	if closeErr != nil {
		return newError(KindUnknown, StageStage, name, fmt.Errorf("close staging file failed: %w", closeErr))
	}
	if n > s.maxBytes {
		return newError(KindValidation, StageStage, name,
			fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.maxBytes))
	}
	if n == 0 {
		return newError(KindValidation, StageStage, name, ErrEmptyFile)
	}

	run.event.SizeBytes = n
	run.event.ContentDigest = hex.EncodeToString(hasher.Sum(nil))
	return nil
}

func (s *UploadService) persist(ctx context.Context, run *uploadRun, result *UploadResult, data []byte, contentType string) error {
	name, metaKey := result.Filename, result.MetadataKey

	run.stage = StagePersistMetadata
	payload, err := annotation.EncodeRecord(result.Metadata)
	if err != nil {
		return newError(KindStorageWrite, StagePersistMetadata, name, err)
	}
	previous, hadPrevious, err := s.previousMetadata(ctx, metaKey)
	if err != nil {
		return newError(KindStorageWrite, StagePersistMetadata, name, err)
	}
	if err := s.timed(StagePersistMetadata, func() error {
		return s.store.Put(ctx, metaKey, payload, metadataMIMEType)
	}); err != nil {
		return newError(KindStorageWrite, StagePersistMetadata, name, err)
	}
	s.invalidate(ctx, metaKey)

	run.stage = StagePersistImage
	if err := s.timed(StagePersistImage, func() error {
		return s.store.Put(ctx, name, data, contentType)
	}); err != nil {
		if rollbackErr := s.rollbackMetadata(ctx, metaKey, previous, hadPrevious); rollbackErr != nil {
			s.log.Error("metadata rollback failed, image and metadata may be unpaired",
				zap.String("filename", name),
				zap.String("metadata_key", metaKey),
				zap.Error(rollbackErr))
			err = errors.Join(err, fmt.Errorf("rollback metadata %q failed: %w", metaKey, rollbackErr))
		}
		return newError(KindStorageWrite, StagePersistImage, name, err)
	}
	s.cacheCommitted(ctx, metaKey, result.Metadata)
	return nil
}

// cacheCommitted writes the committed record through to the cache. Falls
// back to invalidation when the write fails.
func (s *UploadService) cacheCommitted(ctx context.Context, metaKey string, record model.Metadata) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, metaKey, record); err != nil {
		s.log.Warn("metadata cache write failed", zap.String("metadata_key", metaKey), zap.Error(err))
		s.invalidate(ctx, metaKey)
	}
}

// previousMetadata returns the stored record bytes that an upload is about
// to replace, so a failed upload can put them back.
func (s *UploadService) previousMetadata(ctx context.Context, metaKey string) ([]byte, bool, error) {
	data, err := s.store.Get(ctx, metaKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read existing metadata failed: %w", err)
	}
	return data, true, nil
}

func (s *UploadService) rollbackMetadata(ctx context.Context, metaKey string, previous []byte, hadPrevious bool) error {
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	defer s.invalidate(rollbackCtx, metaKey)

	if hadPrevious {
		return s.store.Put(rollbackCtx, metaKey, previous, metadataMIMEType)
	}
	return s.store.Delete(rollbackCtx, metaKey)
}

func (s *UploadService) invalidate(ctx context.Context, metaKey string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, metaKey); err != nil {
		s.log.Warn("metadata cache invalidation failed", zap.String("metadata_key", metaKey), zap.Error(err))
	}
}

func (s *UploadService) discardStaging(path, name string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Error("remove staging file failed",
			zap.String("filename", name),
			zap.String("staging_path", path),
			zap.Error(err))
	}
}

func (s *UploadService) timed(stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.ObserveStage(string(stage), time.Since(start).Seconds())
	return err
}

func (s *UploadService) finish(ctx context.Context, run *uploadRun, result *UploadResult, err error) {
	event := run.event
	event.Stage = string(run.stage)
	event.DurationMS = time.Since(run.started).Milliseconds()
	event.CreatedAt = time.Now()

	fields := []zap.Field{
		zap.String("event_id", event.EventID),
		zap.String("filename", event.Filename),
		zap.String("stage", event.Stage),
		zap.Int64("duration_ms", event.DurationMS),
	}
	switch {
	case err != nil:
		event.Outcome = model.UploadOutcomeFailed
		event.Error = err.Error()
		kind := KindOf(err)
		fields = append(fields, zap.String("kind", kind.String()), zap.Error(err))
		if kind == KindValidation {
			s.log.Info("upload rejected", fields...)
		} else {
			s.log.Error("upload failed", fields...)
		}
	case result.Degraded:
		event.Outcome = model.UploadOutcomeDegraded
		event.Degraded = true
		event.Title = result.Metadata.Title
		s.log.Info("upload stored with sentinel metadata", fields...)
	default:
		event.Outcome = model.UploadOutcomeSucceeded
		event.Title = result.Metadata.Title
		s.log.Info("upload stored", fields...)
	}
	s.metrics.IncUpload(event.Outcome)

	if s.publisher == nil {
		return
	}
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := s.publisher.Publish(publishCtx, event); err != nil {
		s.log.Warn("publish upload event failed", zap.String("event_id", event.EventID), zap.Error(err))
	}
}

// resolveContentType trusts the client header only when it names an image
// type; otherwise the extension decides.
func resolveContentType(header, name string) string {
	header = strings.TrimSpace(strings.ToLower(header))
	if strings.HasPrefix(header, "image/") {
		return header
	}
	return annotation.ContentTypeFor(name)
}
