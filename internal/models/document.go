package models

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	FilePath  string    `json:"file_path,omitempty" db:"file_path"`
	PageCount int       `json:"page_count" db:"page_count"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

const (
	DocStatusUploaded  = "uploaded"
	DocStatusAnalyzing = "analyzing"
	DocStatusCompleted = "completed"
	DocStatusFailed    = "failed"
)
