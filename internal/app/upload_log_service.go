package app

import (
	"context"
	"errors"
	"fmt"

	"image-annotator/internal/model"
)

var ErrUploadLogDisabled = errors.New("upload event log is disabled")

const (
	defaultUploadLogLimit = 50
	maxUploadLogLimit     = 200
)

type UploadEventStore interface {
	ListRecent(ctx context.Context, limit int) ([]model.UploadEvent, error)
}

type UploadLogService struct {
	events UploadEventStore
}

func NewUploadLogService(events UploadEventStore) *UploadLogService {
	return &UploadLogService{events: events}
}

// Recent returns the newest upload events first. limit is clamped to
// [1, 200]; zero or negative selects the default.
func (s *UploadLogService) Recent(ctx context.Context, limit int) ([]model.UploadEvent, error) {
	if s.events == nil {
		return nil, ErrUploadLogDisabled
	}
	if limit <= 0 {
		limit = defaultUploadLogLimit
	}
	if limit > maxUploadLogLimit {
		limit = maxUploadLogLimit
	}
	events, err := s.events.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list upload events failed: %w", err)
	}
	return events, nil
}
