package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Stage status values for Material.ParsingStatus and Material.EmbeddingStatus.
// EmbeddingStatus additionally uses "" (never entered).
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Material struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CourseID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"course_id"`
	Unit            string         `gorm:"column:unit;index" json:"unit"`
	OriginalName    string         `gorm:"column:original_name;not null" json:"original_name"`
	MimeType        string         `gorm:"column:mime_type" json:"mime_type"`
	SizeBytes       int64          `gorm:"column:size_bytes" json:"size_bytes"`
	StoragePath     string         `gorm:"column:storage_path" json:"storage_path"`
	ParsingStatus   string         `gorm:"column:parsing_status;not null;default:'pending'" json:"parsing_status"`
	ParsingError    string         `gorm:"column:parsing_error" json:"parsing_error,omitempty"`
	ParsedContent   string         `gorm:"column:parsed_content;type:text" json:"parsed_content,omitempty"`
	PageCount       int            `gorm:"column:page_count" json:"page_count"`
	EmbeddingStatus string         `gorm:"column:embedding_status" json:"embedding_status,omitempty"`
	EmbeddingError  string         `gorm:"column:embedding_error" json:"embedding_error,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Material) TableName() string { return "material" }
