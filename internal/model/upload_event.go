package model

import "time"

const (
	UploadOutcomeSucceeded = "succeeded"
	UploadOutcomeDegraded  = "degraded"
	UploadOutcomeFailed    = "failed"
)

// UploadEvent records one run of the upload pipeline.
type UploadEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	EventID       string    `gorm:"size:36;not null;uniqueIndex" json:"event_id"`
	Filename      string    `gorm:"size:255;not null;index" json:"filename"`
	Outcome       string    `gorm:"size:16;not null;index" json:"outcome"`
	Stage         string    `gorm:"size:32;not null" json:"stage"`
	Degraded      bool      `gorm:"not null" json:"degraded"`
	Title         string    `gorm:"size:512" json:"title"`
	ContentDigest string    `gorm:"size:64" json:"content_digest"`
	SizeBytes     int64     `json:"size_bytes"`
	DurationMS    int64     `json:"duration_ms"`
	Error         string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}
