package models

import (
	"time"

	"github.com/google/uuid"
)

// CarImage is one listing photo queued for archival. Source CDNs expire
// images once a lot closes, so the archiver copies them to our own bucket.
type CarImage struct {
	ID          uuid.UUID `json:"id" db:"id"`
	CarID       string    `json:"car_id" db:"car_id"`
	OriginalURL string    `json:"original_url" db:"original_url"`
	S3Key       *string   `json:"s3_key" db:"s3_key"` // nullable until uploaded
	ContentHash string    `json:"content_hash" db:"content_hash"`
	Position    int       `json:"position" db:"position"`
	Status      string    `json:"status" db:"status"` // pending, uploaded, failed
	Attempts    int       `json:"attempts" db:"attempts"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Image status
const (
	ImageStatusPending  = "pending"
	ImageStatusUploaded = "uploaded"
	ImageStatusFailed   = "failed"
)
