package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"image-annotator/internal/model"
)

type UploadEventRepository struct {
	db *gorm.DB
}

func NewUploadEventRepository(db *gorm.DB) *UploadEventRepository {
	return &UploadEventRepository{db: db}
}

// Create inserts event; a redelivered event with a known EventID is ignored.
func (r *UploadEventRepository) Create(ctx context.Context, event *model.UploadEvent) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(event).Error
	if err != nil {
		return fmt.Errorf("create upload event failed: %w", err)
	}
	return nil
}

func (r *UploadEventRepository) ListRecent(ctx context.Context, limit int) ([]model.UploadEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var events []model.UploadEvent
	if err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list upload events failed: %w", err)
	}
	return events, nil
}
